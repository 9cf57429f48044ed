package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/recipebox/apiserver/types"
)

// RecipeRepository handles persistence for recipes.
type RecipeRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewRecipeRepository(db *sql.DB, dialect Dialect) *RecipeRepository {
	return &RecipeRepository{db: db, dialect: dialect}
}

const recipeColumns = `id, title, ingredients, instructions, prep_time, image, author_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *RecipeRepository) List(ctx context.Context, filter types.RecipeFilter) ([]types.Recipe, int, error) {
	where := ""
	var args []any
	if filter.Author != "" {
		where = ` WHERE author_id = ?`
		args = append(args, filter.Author)
	}

	var total int
	countQuery := r.dialect.rebind(`SELECT COUNT(1) FROM recipes` + where)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recipes: %w", err)
	}

	listQuery := `SELECT ` + recipeColumns + ` FROM recipes` + where + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		listQuery += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(listQuery), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()

	recipes := make([]types.Recipe, 0, filter.Limit)
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, 0, err
		}
		recipes = append(recipes, recipe)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list recipes: %w", err)
	}

	return recipes, total, nil
}

func (r *RecipeRepository) Get(ctx context.Context, id string) (types.Recipe, error) {
	query := r.dialect.rebind(`SELECT ` + recipeColumns + ` FROM recipes WHERE id = ?`)
	recipe, err := scanRecipe(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Recipe{}, ErrNotFound
		}
		return types.Recipe{}, err
	}
	return recipe, nil
}

func (r *RecipeRepository) Create(ctx context.Context, recipe types.Recipe) (types.Recipe, error) {
	ts := now()
	recipe.CreatedAt = ts
	recipe.UpdatedAt = ts

	ingredientsJSON, err := marshalIngredients(recipe.Ingredients)
	if err != nil {
		return types.Recipe{}, err
	}

	query := r.dialect.rebind(`
		INSERT INTO recipes (` + recipeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(
		ctx,
		query,
		recipe.ID,
		recipe.Title,
		ingredientsJSON,
		recipe.Instructions,
		recipe.Time,
		recipe.Image,
		recipe.Author,
		recipe.CreatedAt,
		recipe.UpdatedAt,
	); err != nil {
		if r.dialect.isUniqueViolation(err) {
			return types.Recipe{}, ErrConflict
		}
		return types.Recipe{}, fmt.Errorf("insert recipe: %w", err)
	}

	return recipe, nil
}

func (r *RecipeRepository) Update(ctx context.Context, recipe types.Recipe) (types.Recipe, error) {
	recipe.UpdatedAt = now()

	ingredientsJSON, err := marshalIngredients(recipe.Ingredients)
	if err != nil {
		return types.Recipe{}, err
	}

	query := r.dialect.rebind(`
		UPDATE recipes
		SET title = ?,
			ingredients = ?,
			instructions = ?,
			prep_time = ?,
			image = ?,
			updated_at = ?
		WHERE id = ?`)
	result, err := r.db.ExecContext(
		ctx,
		query,
		recipe.Title,
		ingredientsJSON,
		recipe.Instructions,
		recipe.Time,
		recipe.Image,
		recipe.UpdatedAt,
		recipe.ID,
	)
	if err != nil {
		return types.Recipe{}, fmt.Errorf("update recipe: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Recipe{}, err
	}
	if affected == 0 {
		return types.Recipe{}, ErrNotFound
	}

	return recipe, nil
}

func (r *RecipeRepository) Delete(ctx context.Context, id string) error {
	query := r.dialect.rebind(`DELETE FROM recipes WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete recipe: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecipe(row rowScanner) (types.Recipe, error) {
	var recipe types.Recipe
	var ingredientsJSON string
	if err := row.Scan(
		&recipe.ID,
		&recipe.Title,
		&ingredientsJSON,
		&recipe.Instructions,
		&recipe.Time,
		&recipe.Image,
		&recipe.Author,
		&recipe.CreatedAt,
		&recipe.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Recipe{}, err
		}
		return types.Recipe{}, fmt.Errorf("scan recipe: %w", err)
	}
	if err := json.Unmarshal([]byte(ingredientsJSON), &recipe.Ingredients); err != nil {
		return types.Recipe{}, fmt.Errorf("decode ingredients of recipe %s: %w", recipe.ID, err)
	}
	recipe.CreatedAt = recipe.CreatedAt.UTC()
	recipe.UpdatedAt = recipe.UpdatedAt.UTC()
	return recipe, nil
}

// marshalIngredients encodes ingredients as text so lib/pq sends it as a
// JSONB literal rather than bytea.
func marshalIngredients(ingredients []string) (string, error) {
	if ingredients == nil {
		ingredients = []string{}
	}
	data, err := json.Marshal(ingredients)
	if err != nil {
		return "", fmt.Errorf("encode ingredients: %w", err)
	}
	return string(data), nil
}
