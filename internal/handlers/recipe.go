package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/recipebox/apiserver/internal/services"
	"github.com/recipebox/apiserver/internal/storage"
	"github.com/recipebox/apiserver/types"
)

const (
	defaultPage           = 1
	defaultLimit          = 20
	maxLimit              = 100
	maxMultipartMemory    = 8 << 20
	multipartOverhead     = 1 << 20
	formFieldTitle        = "title"
	formFieldIngredients  = "ingredients"
	formFieldInstructions = "instructions"
	formFieldTime         = "time"
	formFieldImage        = "image"
	imagePathPrefix       = "/images/"
)

// RecipeHandler provides HTTP handlers for recipes.
type RecipeHandler struct {
	recipeService  *services.RecipeService
	maxUploadBytes int64
}

// NewRecipeHandler constructs a handler that accepts images up to
// maxUploadBytes.
func NewRecipeHandler(recipeService *services.RecipeService, maxUploadBytes int64) *RecipeHandler {
	return &RecipeHandler{
		recipeService:  recipeService,
		maxUploadBytes: maxUploadBytes,
	}
}

// RecipeRouter registers recipe routes on the given router. Reads are
// public; writes go through authMiddleware.
func RecipeRouter(r chi.Router, handler *RecipeHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Get("/", handler.ListRecipes)
	r.With(authMiddleware).Post("/", handler.CreateRecipe)
	r.Route("/{recipeID}", func(r chi.Router) {
		r.Get("/", handler.GetRecipe)
		r.With(authMiddleware).Put("/", handler.UpdateRecipe)
		r.With(authMiddleware).Patch("/", handler.UpdateRecipe)
		r.With(authMiddleware).Delete("/", handler.DeleteRecipe)
	})
}

func (h *RecipeHandler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := types.RecipeFilter{Offset: offset, Limit: limit}
	if author := strings.TrimSpace(r.URL.Query().Get("author")); author != "" {
		parsed, err := uuid.Parse(author)
		if err != nil {
			// No account can have a non-UUID id.
			w.Header().Set("X-Total-Count", "0")
			writeJSON(w, http.StatusOK, []RecipeResponse{})
			return
		}
		filter.Author = parsed.String()
	}
	items, total, err := h.recipeService.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err, "recipe")
		return
	}

	resp := make([]RecipeResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, newRecipeResponse(item))
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	writeJSON(w, http.StatusOK, resp)
}

func (h *RecipeHandler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := recipeIDParam(w, r)
	if !ok {
		return
	}

	recipe, err := h.recipeService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "recipe")
		return
	}

	writeJSON(w, http.StatusOK, newRecipeResponse(recipe))
}

func (h *RecipeHandler) CreateRecipe(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, err := h.parseRecipeRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer req.close()

	created, err := h.recipeService.Create(r.Context(), userID, req.Fields, req.Image)
	if err != nil {
		writeServiceError(w, r, err, "recipe")
		return
	}

	w.Header().Set("Location", "/recipes/"+created.ID)
	writeJSON(w, http.StatusCreated, newRecipeResponse(created))
}

func (h *RecipeHandler) UpdateRecipe(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := recipeIDParam(w, r)
	if !ok {
		return
	}

	req, err := h.parseRecipeRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer req.close()

	updated, err := h.recipeService.Update(r.Context(), userID, id, req.Fields, req.Image)
	if err != nil {
		writeServiceError(w, r, err, "recipe")
		return
	}

	writeJSON(w, http.StatusOK, newRecipeResponse(updated))
}

func (h *RecipeHandler) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, ok := recipeIDParam(w, r)
	if !ok {
		return
	}

	if err := h.recipeService.Delete(r.Context(), userID, id); err != nil {
		writeServiceError(w, r, err, "recipe")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RecipeRequest is the JSON body accepted by create and update.
type RecipeRequest struct {
	Title        *string        `json:"title"`
	Ingredients  IngredientList `json:"ingredients"`
	Instructions *string        `json:"instructions"`
	Time         *string        `json:"time"`
}

// IngredientList decodes either a JSON array of strings or a single
// comma-joined string.
type IngredientList []string

func (l *IngredientList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*l = services.NormalizeIngredients(items)
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return errors.New("ingredients must be an array of strings or a comma-separated string")
	}
	*l = services.ParseIngredients(joined)
	return nil
}

// RecipeResponse is a recipe as returned to clients.
type RecipeResponse struct {
	types.Recipe
	ImageURL string `json:"image_url,omitempty"`
}

func newRecipeResponse(recipe types.Recipe) RecipeResponse {
	resp := RecipeResponse{Recipe: recipe}
	if recipe.Ingredients == nil {
		resp.Ingredients = []string{}
	}
	if recipe.Image != "" {
		resp.ImageURL = imagePathPrefix + recipe.Image
	}
	return resp
}

type recipeUpsert struct {
	Fields types.RecipePatch
	Image  *storage.Upload
	file   multipart.File
	form   *multipart.Form
}

func (u *recipeUpsert) close() {
	if u.file != nil {
		_ = u.file.Close()
	}
	if u.form != nil {
		_ = u.form.RemoveAll()
	}
}

// parseRecipeRequest reads recipe fields from a JSON body or a multipart
// form. Only multipart forms may carry an image.
func (h *RecipeHandler) parseRecipeRequest(w http.ResponseWriter, r *http.Request) (*recipeUpsert, error) {
	mediaType := "application/json"
	if raw := r.Header.Get("Content-Type"); raw != "" {
		parsed, _, err := mime.ParseMediaType(raw)
		if err != nil {
			return nil, errors.New("invalid content type")
		}
		mediaType = parsed
	}

	switch mediaType {
	case "application/json":
		var req RecipeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, err
		}
		return &recipeUpsert{Fields: types.RecipePatch{
			Title:        req.Title,
			Ingredients:  []string(req.Ingredients),
			Instructions: req.Instructions,
			Time:         req.Time,
		}}, nil
	case "multipart/form-data":
		return h.parseRecipeForm(w, r)
	default:
		return nil, fmt.Errorf("unsupported content type %s", mediaType)
	}
}

func (h *RecipeHandler) parseRecipeForm(w http.ResponseWriter, r *http.Request) (*recipeUpsert, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errors.New("request body too large")
		}
		return nil, errors.New("invalid multipart form")
	}
	form := r.MultipartForm
	req := &recipeUpsert{form: form}

	for key := range form.Value {
		switch key {
		case formFieldTitle, formFieldIngredients, formFieldInstructions, formFieldTime:
		default:
			req.close()
			return nil, fmt.Errorf("unknown field %q", key)
		}
	}
	for key := range form.File {
		if key != formFieldImage {
			req.close()
			return nil, fmt.Errorf("unknown field %q", key)
		}
	}

	req.Fields.Title = formValue(form, formFieldTitle)
	req.Fields.Instructions = formValue(form, formFieldInstructions)
	req.Fields.Time = formValue(form, formFieldTime)
	if values, ok := form.Value[formFieldIngredients]; ok {
		if len(values) == 1 {
			req.Fields.Ingredients = services.ParseIngredients(values[0])
		} else {
			req.Fields.Ingredients = services.NormalizeIngredients(values)
		}
	}

	files := form.File[formFieldImage]
	switch len(files) {
	case 0:
	case 1:
		header := files[0]
		if header.Size > h.maxUploadBytes {
			req.close()
			return nil, fmt.Errorf("image exceeds %d bytes", h.maxUploadBytes)
		}
		file, err := header.Open()
		if err != nil {
			req.close()
			return nil, errors.New("failed to read image")
		}
		req.file = file
		req.Image = &storage.Upload{
			Filename: header.Filename,
			Size:     header.Size,
			Reader:   file,
		}
	default:
		req.close()
		return nil, errors.New("only one image may be uploaded")
	}

	return req, nil
}

func formValue(form *multipart.Form, key string) *string {
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	value := values[0]
	return &value
}

// parsePagination returns the offset and limit requested by the page and
// limit query parameters. A zero limit means no pagination was requested.
func parsePagination(r *http.Request) (offset, limit int, err error) {
	rawPage := strings.TrimSpace(r.URL.Query().Get("page"))
	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawPage == "" && rawLimit == "" {
		return 0, 0, nil
	}

	page := defaultPage
	limit = defaultLimit

	if rawPage != "" {
		page, err = strconv.Atoi(rawPage)
		if err != nil || page < 1 {
			return 0, 0, errors.New("invalid page")
		}
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}
	if page-1 > math.MaxInt/limit {
		return 0, 0, errors.New("invalid page")
	}

	return (page - 1) * limit, limit, nil
}

// recipeIDParam extracts the recipe id from the URL. Ids that are not UUIDs
// cannot exist and are reported as not found.
func recipeIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	parsed, err := uuid.Parse(chi.URLParam(r, "recipeID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "recipe not found")
		return "", false
	}
	return parsed.String(), true
}
