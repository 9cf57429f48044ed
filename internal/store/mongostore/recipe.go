package mongostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/recipebox/apiserver/internal/store"
	"github.com/recipebox/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// RecipeRepository handles persistence for recipes in MongoDB.
type RecipeRepository struct {
	coll *mongo.Collection
}

func NewRecipeRepository(db *mongo.Database) *RecipeRepository {
	return &RecipeRepository{coll: db.Collection(recipesCollection)}
}

func (r *RecipeRepository) List(ctx context.Context, filter types.RecipeFilter) ([]types.Recipe, int, error) {
	query := bson.M{}
	if filter.Author != "" {
		query["author"] = filter.Author
	}

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count recipes: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		opts.SetSkip(int64(offset)).SetLimit(int64(filter.Limit))
	}

	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list recipes: %w", err)
	}
	defer cursor.Close(ctx)

	recipes := make([]types.Recipe, 0, filter.Limit)
	for cursor.Next(ctx) {
		var recipe types.Recipe
		if err := cursor.Decode(&recipe); err != nil {
			return nil, 0, fmt.Errorf("decode recipe: %w", err)
		}
		recipes = append(recipes, normalize(recipe))
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("list recipes: %w", err)
	}

	return recipes, int(total), nil
}

func (r *RecipeRepository) Get(ctx context.Context, id string) (types.Recipe, error) {
	var recipe types.Recipe
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&recipe); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Recipe{}, store.ErrNotFound
		}
		return types.Recipe{}, fmt.Errorf("find recipe: %w", err)
	}
	return normalize(recipe), nil
}

func (r *RecipeRepository) Create(ctx context.Context, recipe types.Recipe) (types.Recipe, error) {
	ts := now()
	recipe.CreatedAt = ts
	recipe.UpdatedAt = ts
	recipe = normalize(recipe)

	if _, err := r.coll.InsertOne(ctx, recipe); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.Recipe{}, store.ErrConflict
		}
		return types.Recipe{}, fmt.Errorf("insert recipe: %w", err)
	}
	return recipe, nil
}

func (r *RecipeRepository) Update(ctx context.Context, recipe types.Recipe) (types.Recipe, error) {
	recipe.UpdatedAt = now()
	recipe = normalize(recipe)

	result, err := r.coll.ReplaceOne(ctx, bson.M{"_id": recipe.ID}, recipe)
	if err != nil {
		return types.Recipe{}, fmt.Errorf("replace recipe: %w", err)
	}
	if result.MatchedCount == 0 {
		return types.Recipe{}, store.ErrNotFound
	}
	return recipe, nil
}

func (r *RecipeRepository) Delete(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete recipe: %w", err)
	}
	if result.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func normalize(recipe types.Recipe) types.Recipe {
	if recipe.Ingredients == nil {
		recipe.Ingredients = []string{}
	}
	recipe.CreatedAt = recipe.CreatedAt.UTC()
	recipe.UpdatedAt = recipe.UpdatedAt.UTC()
	return recipe
}
