package order

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

// Handler exposes the order endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	PerPage  int
}

type createOrderPayload struct {
	Items []struct {
		ProductID string `json:"product_id" validate:"required,uuid"`
		Qty       int32  `json:"qty" validate:"required,gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
	CouponCode      string          `json:"coupon_code"`
	ShippingAddress json.RawMessage `json:"shipping_address" validate:"required"`
	PaymentMethod   string          `json:"payment_method" validate:"omitempty,oneof=cod card upi netbanking"`
}

// addressFields are the minimum the fulfilment side needs; anything else in
// the address object is stored as-is.
type addressFields struct {
	Line1   string `json:"line1" validate:"required"`
	City    string `json:"city" validate:"required"`
	Pincode string `json:"pincode" validate:"required"`
}

type orderItemView struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Qty       int32   `json:"qty"`
	Image     string  `json:"image,omitempty"`
}

type orderView struct {
	ID            string          `json:"id"`
	Items         []orderItemView `json:"items,omitempty"`
	Subtotal      float64         `json:"subtotal"`
	Shipping      float64         `json:"shipping"`
	Tax           float64         `json:"tax"`
	OriginalTotal float64         `json:"original_total"`
	Discount      float64         `json:"discount"`
	Total         float64         `json:"total"`
	CouponCode    *string         `json:"coupon_code,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	PaymentStatus string          `json:"payment_status"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

func viewOf(o store.Order, items []store.OrderItem) orderView {
	v := orderView{
		ID:            o.ID.String(),
		Subtotal:      o.Subtotal,
		Shipping:      o.Shipping,
		Tax:           o.Tax,
		OriginalTotal: o.OriginalTotal,
		Discount:      o.Discount,
		Total:         o.Total,
		CouponCode:    o.CouponCode,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
	}
	for _, it := range items {
		v.Items = append(v.Items, orderItemView{
			ProductID: it.ProductID.String(),
			Title:     it.Title,
			Price:     it.Price,
			Qty:       it.Qty,
			Image:     it.Image,
		})
	}
	return v
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

// Create handles POST /orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	var payload createOrderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", err.Error())
		return
	}
	var addr addressFields
	if err := json.Unmarshal(payload.ShippingAddress, &addr); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid shipping address", nil)
		return
	}
	if err := h.Validate.Struct(addr); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION",
			"shipping address must include line1, city and pincode", nil)
		return
	}
	req := CreateRequest{
		CouponCode:      payload.CouponCode,
		ShippingAddress: payload.ShippingAddress,
		PaymentMethod:   payload.PaymentMethod,
	}
	for _, it := range payload.Items {
		id, err := uuid.Parse(it.ProductID)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid product id", nil)
			return
		}
		req.Items = append(req.Items, LineInput{ProductID: id, Qty: it.Qty})
	}
	det, err := h.Svc.Create(r.Context(), userID, req)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"order": viewOf(det.Order, det.Items)})
}

// List handles GET /orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, h.perPage())
	orders, total, err := h.Svc.List(r.Context(), userID, int32(perPage), int32((page-1)*perPage))
	if err != nil {
		common.RenderError(w, err)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, viewOf(o, nil))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"orders": views,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(total),
		},
	})
}

// Get handles GET /orders/{orderID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found", nil)
		return
	}
	det, err := h.Svc.Get(r.Context(), userID, orderID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"order": viewOf(det.Order, det.Items)})
}

// Cancel handles POST /orders/{orderID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found", nil)
		return
	}
	if err := h.Svc.Cancel(r.Context(), userID, orderID); err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"status": StatusCancelled})
}

type statusPayload struct {
	Status string `json:"status" validate:"required,oneof=paid shipped delivered"`
}

// AdminUpdateStatus handles PATCH /admin/orders/{orderID}/status.
func (h *Handler) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found", nil)
		return
	}
	var payload statusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", err.Error())
		return
	}
	o, err := h.Svc.UpdateStatus(r.Context(), orderID, payload.Status)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"order": viewOf(o, nil)})
}

func (h *Handler) perPage() int {
	if h.PerPage > 0 {
		return h.PerPage
	}
	return 20
}
