package coupon

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

// Handler exposes the coupon endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type applyPayload struct {
	Code string `json:"code" validate:"required,min=1,max=64"`
}

type couponView struct {
	ID                   string     `json:"id"`
	Code                 string     `json:"code"`
	Type                 string     `json:"type"`
	Value                float64    `json:"value"`
	ApplicableProducts   []string   `json:"applicable_products,omitempty"`
	ApplicableCategories []string   `json:"applicable_categories,omitempty"`
	ApplicableBrands     []string   `json:"applicable_brands,omitempty"`
	StartsAt             *time.Time `json:"starts_at,omitempty"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	UsageLimit           *int32     `json:"usage_limit,omitempty"`
	UsedCount            int32      `json:"used_count"`
	PerUserLimit         *int32     `json:"per_user_limit,omitempty"`
	Active               bool       `json:"active"`
}

func viewOf(c store.Coupon) couponView {
	return couponView{
		ID:                   c.ID.String(),
		Code:                 c.Code,
		Type:                 c.Type,
		Value:                c.Value,
		ApplicableProducts:   idStrings(c.ApplicableProducts),
		ApplicableCategories: idStrings(c.ApplicableCategories),
		ApplicableBrands:     idStrings(c.ApplicableBrands),
		StartsAt:             c.StartsAt,
		ExpiresAt:            c.ExpiresAt,
		UsageLimit:           c.UsageLimit,
		UsedCount:            c.UsedCount,
		PerUserLimit:         c.PerUserLimit,
		Active:               c.Active,
	}
}

func idStrings(ids []uuid.UUID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// Apply handles POST /coupons/apply. It previews the discount the coupon
// would grant against the caller's cart.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	raw, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var payload applyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", err.Error())
		return
	}
	res, err := h.Svc.Preview(r.Context(), userID, payload.Code)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"valid":    true,
		"code":     res.Code,
		"type":     res.Type,
		"discount": res.Discount,
		"summary": map[string]any{
			"subtotal":       res.Summary.Subtotal,
			"shipping":       res.Summary.Shipping,
			"tax":            res.Summary.Tax,
			"original_total": res.Summary.OriginalTotal,
			"discount":       res.Summary.Discount,
			"total":          res.Summary.Total,
		},
	})
}

type registryPayload struct {
	Code                 string     `json:"code" validate:"required,min=1,max=64"`
	Type                 string     `json:"type" validate:"required,oneof=percentage flat"`
	Value                float64    `json:"value" validate:"required,gt=0"`
	ApplicableProducts   []string   `json:"applicable_products" validate:"omitempty,dive,uuid"`
	ApplicableCategories []string   `json:"applicable_categories" validate:"omitempty,dive,uuid"`
	ApplicableBrands     []string   `json:"applicable_brands" validate:"omitempty,dive,uuid"`
	StartsAt             *time.Time `json:"starts_at"`
	ExpiresAt            *time.Time `json:"expires_at"`
	UsageLimit           *int32     `json:"usage_limit" validate:"omitempty,gt=0"`
	PerUserLimit         *int32     `json:"per_user_limit" validate:"omitempty,gt=0"`
	Active               *bool      `json:"active"`
}

func (h *Handler) decodeRegistry(w http.ResponseWriter, r *http.Request) (RegistryParams, bool) {
	var payload registryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", nil)
		return RegistryParams{}, false
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", err.Error())
		return RegistryParams{}, false
	}
	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	return RegistryParams{
		Code:                 payload.Code,
		Type:                 payload.Type,
		Value:                payload.Value,
		ApplicableProducts:   parseIDs(payload.ApplicableProducts),
		ApplicableCategories: parseIDs(payload.ApplicableCategories),
		ApplicableBrands:     parseIDs(payload.ApplicableBrands),
		StartsAt:             payload.StartsAt,
		ExpiresAt:            payload.ExpiresAt,
		UsageLimit:           payload.UsageLimit,
		PerUserLimit:         payload.PerUserLimit,
		Active:               active,
	}, true
}

func parseIDs(values []string) []uuid.UUID {
	var out []uuid.UUID
	for _, v := range values {
		if id, err := uuid.Parse(v); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// AdminCreate handles POST /admin/coupons.
func (h *Handler) AdminCreate(w http.ResponseWriter, r *http.Request) {
	params, ok := h.decodeRegistry(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.CreateRegistry(r.Context(), params)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"coupon": viewOf(c)})
}

// AdminUpdate handles PUT /admin/coupons/{couponID}.
func (h *Handler) AdminUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "couponID"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "COUPON_NOT_FOUND", "Coupon not found", nil)
		return
	}
	params, ok := h.decodeRegistry(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.UpdateRegistry(r.Context(), id, params)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"coupon": viewOf(c)})
}

// AdminDelete handles DELETE /admin/coupons/{couponID}.
func (h *Handler) AdminDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "couponID"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "COUPON_NOT_FOUND", "Coupon not found", nil)
		return
	}
	if err := h.Svc.DeleteRegistry(r.Context(), id); err != nil {
		common.RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminList handles GET /admin/coupons.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 50)
	coupons, err := h.Svc.ListRegistry(r.Context(), int32(perPage), int32((page-1)*perPage))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	views := make([]couponView, 0, len(coupons))
	for _, c := range coupons {
		views = append(views, viewOf(c))
	}
	common.JSON(w, http.StatusOK, map[string]any{"coupons": views})
}
