package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/recipebox/apiserver/internal/events"
	"github.com/recipebox/apiserver/internal/storage"
	"github.com/recipebox/apiserver/internal/store"
	"github.com/recipebox/apiserver/types"
)

const maxListLimit = 100

// RecipeRepository defines persistence operations for recipes.
type RecipeRepository interface {
	List(ctx context.Context, filter types.RecipeFilter) ([]types.Recipe, int, error)
	Get(ctx context.Context, id string) (types.Recipe, error)
	Create(ctx context.Context, recipe types.Recipe) (types.Recipe, error)
	Update(ctx context.Context, recipe types.Recipe) (types.Recipe, error)
	Delete(ctx context.Context, id string) error
}

// ImageStore accepts uploaded images and returns the name they are stored
// under.
type ImageStore interface {
	Accept(ctx context.Context, upload storage.Upload) (string, error)
	Discard(ctx context.Context, name string) error
}

// EventPublisher receives recipe lifecycle events after each committed write.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.RecipeEvent) error
}

// RecipeService encapsulates recipe use-cases.
type RecipeService struct {
	repo   RecipeRepository
	users  UserRepository
	images ImageStore
	events EventPublisher
}

func NewRecipeService(repo RecipeRepository, users UserRepository, images ImageStore, publisher EventPublisher) *RecipeService {
	return &RecipeService{
		repo:   repo,
		users:  users,
		images: images,
		events: publisher,
	}
}

func (s *RecipeService) List(ctx context.Context, filter types.RecipeFilter) ([]types.Recipe, int, error) {
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

func (s *RecipeService) Get(ctx context.Context, id string) (types.Recipe, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new recipe authored by authorID. Title, ingredients and
// instructions are required; image is optional.
func (s *RecipeService) Create(ctx context.Context, authorID string, fields types.RecipePatch, image *storage.Upload) (types.Recipe, error) {
	fields = normalizePatch(fields)
	if err := validatePatch(fields); err != nil {
		return types.Recipe{}, err
	}
	switch {
	case fields.Title == nil:
		return types.Recipe{}, invalid("title", "title is required")
	case len(fields.Ingredients) == 0:
		return types.Recipe{}, invalid("ingredients", "at least one ingredient is required")
	case fields.Instructions == nil:
		return types.Recipe{}, invalid("instructions", "instructions are required")
	}

	if _, err := s.users.GetByID(ctx, authorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Recipe{}, ErrInvalidCredentials
		}
		return types.Recipe{}, fmt.Errorf("load author: %w", err)
	}

	recipe := types.Recipe{ID: uuid.NewString(), Author: authorID}
	fields.Apply(&recipe)

	if image != nil {
		name, err := s.acceptImage(ctx, *image)
		if err != nil {
			return types.Recipe{}, err
		}
		recipe.Image = name
	}

	created, err := s.repo.Create(ctx, recipe)
	if err != nil {
		s.discard(ctx, recipe.Image)
		return types.Recipe{}, err
	}

	s.publish(ctx, events.RecipeEvent{
		Kind:     events.RecipeCreated,
		RecipeID: created.ID,
		AuthorID: created.Author,
		Image:    created.Image,
	})
	return created, nil
}

// Update replaces the fields set in fields on the recipe identified by id.
// Only the recipe's author may update it.
func (s *RecipeService) Update(ctx context.Context, actorID, id string, fields types.RecipePatch, image *storage.Upload) (types.Recipe, error) {
	fields = normalizePatch(fields)
	if err := validatePatch(fields); err != nil {
		return types.Recipe{}, err
	}

	recipe, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Recipe{}, err
	}
	if recipe.Author != actorID {
		return types.Recipe{}, ErrForbidden
	}
	previousImage := recipe.Image

	if image != nil {
		name, err := s.acceptImage(ctx, *image)
		if err != nil {
			return types.Recipe{}, err
		}
		fields.Image = &name
	}

	fields.Apply(&recipe)
	updated, err := s.repo.Update(ctx, recipe)
	if err != nil {
		if fields.Image != nil {
			s.discard(ctx, *fields.Image)
		}
		return types.Recipe{}, err
	}

	s.publish(ctx, events.RecipeEvent{
		Kind:          events.RecipeUpdated,
		RecipeID:      updated.ID,
		AuthorID:      updated.Author,
		Image:         updated.Image,
		PreviousImage: previousImage,
	})
	return updated, nil
}

// Delete removes the recipe identified by id. Only the recipe's author may
// delete it.
func (s *RecipeService) Delete(ctx context.Context, actorID, id string) error {
	recipe, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if recipe.Author != actorID {
		return ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, events.RecipeEvent{
		Kind:     events.RecipeDeleted,
		RecipeID: recipe.ID,
		AuthorID: recipe.Author,
		Image:    recipe.Image,
	})
	return nil
}

func (s *RecipeService) acceptImage(ctx context.Context, upload storage.Upload) (string, error) {
	name, err := s.images.Accept(ctx, upload)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidImage) {
			return "", invalid("image", err.Error())
		}
		return "", err
	}
	return name, nil
}

func (s *RecipeService) discard(ctx context.Context, name string) {
	if name == "" {
		return
	}
	if err := s.images.Discard(ctx, name); err != nil {
		slog.WarnContext(ctx, "failed to discard image", "image", name, "error", err)
	}
}

// publish never fails the caller; the write it describes is already committed.
func (s *RecipeService) publish(ctx context.Context, ev events.RecipeEvent) {
	if s.events == nil {
		return
	}
	ev.OccurredAt = time.Now().UTC()
	if err := s.events.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "failed to publish recipe event", "kind", ev.Kind, "recipe_id", ev.RecipeID, "error", err)
	}
}

// ParseIngredients splits a comma-joined ingredient list.
func ParseIngredients(raw string) []string {
	return NormalizeIngredients(strings.Split(raw, ","))
}

// NormalizeIngredients trims every ingredient and drops blank entries,
// preserving order. It never returns nil.
func NormalizeIngredients(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func normalizePatch(p types.RecipePatch) types.RecipePatch {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	p.Title = trim(p.Title)
	p.Instructions = trim(p.Instructions)
	p.Time = trim(p.Time)
	if p.Ingredients != nil {
		p.Ingredients = NormalizeIngredients(p.Ingredients)
	}
	return p
}

// validatePatch rejects supplied fields that would leave a required value
// blank.
func validatePatch(p types.RecipePatch) error {
	if p.Title != nil && *p.Title == "" {
		return invalid("title", "title must not be blank")
	}
	if p.Ingredients != nil && len(p.Ingredients) == 0 {
		return invalid("ingredients", "at least one ingredient is required")
	}
	if p.Instructions != nil && *p.Instructions == "" {
		return invalid("instructions", "instructions must not be blank")
	}
	return nil
}
