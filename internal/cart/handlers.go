package cart

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

// Handler exposes the cart endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type itemPayload struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Qty       int32  `json:"qty" validate:"required,gt=0"`
}

type qtyPayload struct {
	Qty int32 `json:"qty" validate:"gte=0"`
}

type lineView struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Qty       int32   `json:"qty"`
	Image     string  `json:"image,omitempty"`
	LineTotal float64 `json:"line_total"`
}

type cartView struct {
	Items []lineView `json:"items"`
	Total float64    `json:"total"`
}

func render(w http.ResponseWriter, v View) {
	out := cartView{Items: make([]lineView, 0, len(v.Items)), Total: v.Cart.Total}
	for _, it := range v.Items {
		out.Items = append(out.Items, lineView{
			ProductID: it.ProductID.String(),
			Title:     it.Title,
			Price:     it.Price,
			Qty:       it.Qty,
			Image:     it.Image,
			LineTotal: it.Price * float64(it.Qty),
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"cart": out})
}

func authedUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return uuid.Nil, false
	}
	return id, true
}

// Get handles GET /cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.Get(r.Context(), userID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	render(w, v)
}

// AddItem handles POST /cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	var payload itemPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", err.Error())
		return
	}
	productID, err := uuid.Parse(payload.ProductID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid product id", nil)
		return
	}
	v, err := h.Svc.AddItem(r.Context(), userID, productID, payload.Qty)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	render(w, v)
}

// UpdateItem handles PUT /cart/items/{productID}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "ITEM_NOT_IN_CART", "Product is not in the cart", nil)
		return
	}
	var payload qtyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", err.Error())
		return
	}
	v, err := h.Svc.UpdateItem(r.Context(), userID, productID, payload.Qty)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	render(w, v)
}

// RemoveItem handles DELETE /cart/items/{productID}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "ITEM_NOT_IN_CART", "Product is not in the cart", nil)
		return
	}
	v, err := h.Svc.RemoveItem(r.Context(), userID, productID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	render(w, v)
}

// Clear handles DELETE /cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Clear(r.Context(), userID); err != nil {
		common.RenderError(w, err)
		return
	}
	render(w, View{Cart: store.Cart{}})
}
