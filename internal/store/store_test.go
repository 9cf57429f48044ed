package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/recipebox/apiserver/config"
	"github.com/recipebox/apiserver/internal/db"
	"github.com/recipebox/apiserver/internal/store"
	"github.com/recipebox/apiserver/types"
	"github.com/stretchr/testify/require"
)

func openTestHandle(t *testing.T) *db.Handle {
	t.Helper()
	ctx := context.Background()
	handle, err := db.Open(ctx, config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "store.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close(ctx) })
	return handle
}

func createUser(t *testing.T, h *db.Handle, email string) types.User {
	t.Helper()
	user, err := h.Users.Create(context.Background(), types.User{
		ID:           uuid.NewString(),
		Name:         "Cook",
		Email:        email,
		PasswordHash: "$2a$10$hash",
	})
	require.NoError(t, err)
	return user
}

func TestUserRepository(t *testing.T) {
	h := openTestHandle(t)
	ctx := context.Background()

	user := createUser(t, h, "cook@example.com")
	require.False(t, user.CreatedAt.IsZero())

	byEmail, err := h.Users.GetByEmail(ctx, "cook@example.com")
	require.NoError(t, err)
	require.Equal(t, user.ID, byEmail.ID)
	require.Equal(t, "$2a$10$hash", byEmail.PasswordHash)
	require.True(t, user.CreatedAt.Equal(byEmail.CreatedAt))

	_, err = h.Users.Create(ctx, types.User{
		ID:           uuid.NewString(),
		Name:         "Other",
		Email:        "cook@example.com",
		PasswordHash: "x",
	})
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = h.Users.GetByID(ctx, uuid.NewString())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecipeRepositoryCRUD(t *testing.T) {
	h := openTestHandle(t)
	ctx := context.Background()
	author := createUser(t, h, "a@example.com")

	created, err := h.Recipes.Create(ctx, types.Recipe{
		ID:           uuid.NewString(),
		Title:        "Soup",
		Ingredients:  []string{"water", "salt"},
		Instructions: "Boil.",
		Time:         "10 min",
		Author:       author.ID,
	})
	require.NoError(t, err)

	got, err := h.Recipes.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"water", "salt"}, got.Ingredients)
	require.Equal(t, "10 min", got.Time)
	require.Equal(t, author.ID, got.Author)
	require.Empty(t, got.Image)

	got.Title = "Hot soup"
	got.Image = "0b7c2c0e-8d8a-4c57-9d8e-6a7b1e0c2f11.png"
	_, err = h.Recipes.Update(ctx, got)
	require.NoError(t, err)

	updated, err := h.Recipes.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Hot soup", updated.Title)
	require.Equal(t, got.Image, updated.Image)
	require.True(t, created.CreatedAt.Equal(updated.CreatedAt))

	require.NoError(t, h.Recipes.Delete(ctx, created.ID))
	_, err = h.Recipes.Get(ctx, created.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, h.Recipes.Delete(ctx, created.ID), store.ErrNotFound)

	_, err = h.Recipes.Update(ctx, created)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecipeRepositoryRejectsUnknownAuthor(t *testing.T) {
	h := openTestHandle(t)

	_, err := h.Recipes.Create(context.Background(), types.Recipe{
		ID:           uuid.NewString(),
		Title:        "Ghost",
		Ingredients:  []string{"air"},
		Instructions: "None.",
		Author:       uuid.NewString(),
	})
	require.Error(t, err)
}

func TestRecipeRepositoryList(t *testing.T) {
	h := openTestHandle(t)
	ctx := context.Background()
	alice := createUser(t, h, "alice@example.com")
	bob := createUser(t, h, "bob@example.com")

	var titles []string
	for i, author := range []types.User{alice, bob, alice, alice} {
		title := string(rune('A' + i))
		_, err := h.Recipes.Create(ctx, types.Recipe{
			ID:           uuid.NewString(),
			Title:        title,
			Ingredients:  []string{"x"},
			Instructions: "y",
			Author:       author.ID,
		})
		require.NoError(t, err)
		titles = append([]string{title}, titles...)
		time.Sleep(2 * time.Millisecond)
	}

	all, total, err := h.Recipes.List(ctx, types.RecipeFilter{})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Equal(t, titles, recipeTitles(all))

	page, total, err := h.Recipes.List(ctx, types.RecipeFilter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Equal(t, titles[1:3], recipeTitles(page))

	mine, total, err := h.Recipes.List(ctx, types.RecipeFilter{Author: alice.ID})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Equal(t, []string{"D", "C", "A"}, recipeTitles(mine))

	empty, total, err := h.Recipes.List(ctx, types.RecipeFilter{Offset: 10, Limit: 5})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Empty(t, empty)
}

func recipeTitles(recipes []types.Recipe) []string {
	out := make([]string, 0, len(recipes))
	for _, r := range recipes {
		out = append(out, r.Title)
	}
	return out
}
