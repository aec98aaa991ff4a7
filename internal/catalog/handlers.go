package catalog

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

// Handler exposes the catalog endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	PerPage  int
}

type productView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Stock       int32     `json:"stock"`
	Images      []string  `json:"images,omitempty"`
	CategoryID  *string   `json:"category_id,omitempty"`
	BrandID     *string   `json:"brand_id,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewOf(p store.Product) productView {
	v := productView{
		ID:          p.ID.String(),
		Title:       p.Title,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Images:      p.Images,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
	}
	if p.CategoryID != nil {
		s := p.CategoryID.String()
		v.CategoryID = &s
	}
	if p.BrandID != nil {
		s := p.BrandID.String()
		v.BrandID = &s
	}
	return v
}

// List handles GET /products.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, h.perPage())
	filter := store.ProductFilter{
		Search: r.URL.Query().Get("q"),
		Limit:  int32(perPage),
		Offset: int32((page - 1) * perPage),
	}
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			filter.CategoryID = &id
		}
	}
	if raw := r.URL.Query().Get("brand_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			filter.BrandID = &id
		}
	}
	res, err := h.Svc.List(r.Context(), filter)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	views := make([]productView, 0, len(res.Products))
	for _, p := range res.Products {
		views = append(views, viewOf(p))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"products": views,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(res.Total),
		},
	})
}

// GetBySlug handles GET /products/{slug}.
func (h *Handler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	p, err := h.Svc.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"product": viewOf(p)})
}

// Brands handles GET /brands.
func (h *Handler) Brands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.Svc.Brands(r.Context())
	if err != nil {
		common.RenderError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(brands))
	for _, b := range brands {
		out = append(out, map[string]any{"id": b.ID.String(), "name": b.Name, "slug": b.Slug})
	}
	common.JSON(w, http.StatusOK, map[string]any{"brands": out})
}

// Categories handles GET /categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Svc.Categories(r.Context())
	if err != nil {
		common.RenderError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(categories))
	for _, c := range categories {
		out = append(out, map[string]any{"id": c.ID.String(), "name": c.Name, "slug": c.Slug})
	}
	common.JSON(w, http.StatusOK, map[string]any{"categories": out})
}

type productPayload struct {
	Title       string   `json:"title" validate:"required,min=1,max=200"`
	Slug        string   `json:"slug" validate:"required,min=1,max=200"`
	Description string   `json:"description"`
	Price       float64  `json:"price" validate:"required,gt=0"`
	Stock       int32    `json:"stock" validate:"gte=0"`
	Images      []string `json:"images" validate:"omitempty,dive,url"`
	CategoryID  *string  `json:"category_id" validate:"omitempty,uuid"`
	BrandID     *string  `json:"brand_id" validate:"omitempty,uuid"`
	IsActive    *bool    `json:"is_active"`
}

func (h *Handler) decodeProduct(w http.ResponseWriter, r *http.Request) (store.CreateProductParams, bool) {
	var payload productPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", nil)
		return store.CreateProductParams{}, false
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", err.Error())
		return store.CreateProductParams{}, false
	}
	active := true
	if payload.IsActive != nil {
		active = *payload.IsActive
	}
	params := store.CreateProductParams{
		Title:       payload.Title,
		Slug:        payload.Slug,
		Description: payload.Description,
		Price:       payload.Price,
		Stock:       payload.Stock,
		Images:      payload.Images,
		IsActive:    active,
	}
	if payload.CategoryID != nil {
		if id, err := uuid.Parse(*payload.CategoryID); err == nil {
			params.CategoryID = &id
		}
	}
	if payload.BrandID != nil {
		if id, err := uuid.Parse(*payload.BrandID); err == nil {
			params.BrandID = &id
		}
	}
	return params, true
}

// AdminCreateProduct handles POST /admin/products.
func (h *Handler) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	params, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}
	p, err := h.Svc.CreateProduct(r.Context(), params)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"product": viewOf(p)})
}

// AdminUpdateProduct handles PUT /admin/products/{productID}.
func (h *Handler) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found", nil)
		return
	}
	params, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}
	p, err := h.Svc.UpdateProduct(r.Context(), id, params)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"product": viewOf(p)})
}

// AdminDeleteProduct handles DELETE /admin/products/{productID}.
func (h *Handler) AdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found", nil)
		return
	}
	if err := h.Svc.DeleteProduct(r.Context(), id); err != nil {
		common.RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type namedPayload struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
	Slug string `json:"slug" validate:"required,min=1,max=100"`
}

func (h *Handler) decodeNamed(w http.ResponseWriter, r *http.Request) (namedPayload, bool) {
	var payload namedPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", nil)
		return namedPayload{}, false
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", err.Error())
		return namedPayload{}, false
	}
	return payload, true
}

// AdminCreateBrand handles POST /admin/brands.
func (h *Handler) AdminCreateBrand(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeNamed(w, r)
	if !ok {
		return
	}
	b, err := h.Svc.CreateBrand(r.Context(), payload.Name, payload.Slug)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"brand": map[string]any{"id": b.ID.String(), "name": b.Name, "slug": b.Slug},
	})
}

// AdminDeleteBrand handles DELETE /admin/brands/{brandID}.
func (h *Handler) AdminDeleteBrand(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "brandID"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "BRAND_NOT_FOUND", "Brand not found", nil)
		return
	}
	if err := h.Svc.DeleteBrand(r.Context(), id); err != nil {
		common.RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminCreateCategory handles POST /admin/categories.
func (h *Handler) AdminCreateCategory(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeNamed(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.CreateCategory(r.Context(), payload.Name, payload.Slug)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"category": map[string]any{"id": c.ID.String(), "name": c.Name, "slug": c.Slug},
	})
}

// AdminDeleteCategory handles DELETE /admin/categories/{categoryID}.
func (h *Handler) AdminDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "categoryID"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "CATEGORY_NOT_FOUND", "Category not found", nil)
		return
	}
	if err := h.Svc.DeleteCategory(r.Context(), id); err != nil {
		common.RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) perPage() int {
	if h.PerPage > 0 {
		return h.PerPage
	}
	return 20
}
