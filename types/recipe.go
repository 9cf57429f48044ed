package types

import "time"

// Recipe is a dish shared by a user.
type Recipe struct {
	// ID is the unique identifier of the recipe.
	ID string `json:"id" db:"id" bson:"_id"`

	// Title is the human-readable name of the dish.
	Title string `json:"title" db:"title" bson:"title"`

	// Ingredients is the ordered list of ingredients, one entry per line
	// item (e.g., "2 eggs").
	Ingredients []string `json:"ingredients" db:"ingredients" bson:"ingredients"`

	// Instructions contains the free-text preparation steps.
	Instructions string `json:"instructions" db:"instructions" bson:"instructions"`

	// Time is the free-text preparation time (e.g., "45 min").
	Time string `json:"time" db:"time" bson:"time"`

	// Image is the server-generated name of the uploaded image in the
	// image store. Empty when the recipe has no image.
	Image string `json:"image,omitempty" db:"image" bson:"image,omitempty"`

	// Author is the ID of the user who created the recipe.
	Author string `json:"author" db:"author_id" bson:"author"`

	// CreatedAt is the timestamp at which the recipe was created.
	CreatedAt time.Time `json:"created_at" db:"created_at" bson:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the recipe.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at" bson:"updated_at"`
}

// RecipePatch carries the fields of a partial recipe update. A nil field
// leaves the stored value unchanged.
type RecipePatch struct {
	Title        *string
	Ingredients  []string
	Instructions *string
	Time         *string
	Image        *string
}

// Apply replaces the fields set in p on r.
func (p RecipePatch) Apply(r *Recipe) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Ingredients != nil {
		r.Ingredients = append([]string(nil), p.Ingredients...)
	}
	if p.Instructions != nil {
		r.Instructions = *p.Instructions
	}
	if p.Time != nil {
		r.Time = *p.Time
	}
	if p.Image != nil {
		r.Image = *p.Image
	}
}

// RecipeFilter narrows a recipe listing. Zero values mean no constraint.
type RecipeFilter struct {
	Author string
	Offset int
	// Limit of zero returns every matching recipe.
	Limit int
}
