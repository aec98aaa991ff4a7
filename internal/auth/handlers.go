package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

// Handler exposes the auth and profile endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type requestCodePayload struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyCodePayload struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,min=4,max=10"`
}

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

func userViewOf(u store.User) userView {
	return userView{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		Roles:     u.Roles,
		CreatedAt: u.CreatedAt,
	}
}

// RequestCode handles POST /auth/otp/request. The response is identical for
// known and unknown addresses.
func (h *Handler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var payload requestCodePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "a valid email is required", nil)
		return
	}
	if err := h.Svc.RequestCode(r.Context(), payload.Email); err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"status": "sent"})
}

// VerifyCode handles POST /auth/otp/verify.
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var payload verifyCodePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "email and code are required", nil)
		return
	}
	res, err := h.Svc.VerifyCode(r.Context(), payload.Email, payload.Code)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"token": res.Token,
		"user":  userViewOf(res.User),
	})
}

// Me handles GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	u, err := h.Svc.Users.GetUser(r.Context(), userID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"user": userViewOf(u)})
}

type updateProfilePayload struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// UpdateMe handles PUT /me.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	var payload updateProfilePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "a name is required", nil)
		return
	}
	u, err := h.Svc.Users.UpdateUserName(r.Context(), userID, payload.Name)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"user": userViewOf(u)})
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
