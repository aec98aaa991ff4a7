package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

// Reader is the slice of the store the worker needs to render mails.
type Reader interface {
	GetUser(ctx context.Context, id uuid.UUID) (store.User, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (store.Order, error)
	OrderItems(ctx context.Context, orderID uuid.UUID) ([]store.OrderItem, error)
}

// Worker renders and sends queued notification mails.
type Worker struct {
	Email common.EmailSender
	Q     Reader
	Log   zerolog.Logger
}

// Register attaches the worker's handlers to the mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeOTPEmail, w.HandleOTPEmail)
	mux.HandleFunc(TypeOrderConfirmation, w.HandleOrderConfirmation)
}

// HandleOTPEmail delivers a one-time login code.
func (w *Worker) HandleOTPEmail(ctx context.Context, t *asynq.Task) error {
	var payload OTPEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal otp payload: %w: %w", err, asynq.SkipRetry)
	}
	html := fmt.Sprintf(
		"<p>Your login code is <strong>%s</strong>.</p><p>It expires in a few minutes. If you did not request it, ignore this mail.</p>",
		payload.Code)
	if err := w.Email.Send(payload.Email, "Your login code", html); err != nil {
		return fmt.Errorf("send otp email: %w", err)
	}
	w.Log.Info().Str("email", payload.Email).Msg("otp email sent")
	return nil
}

// HandleOrderConfirmation delivers the order summary mail.
func (w *Worker) HandleOrderConfirmation(ctx context.Context, t *asynq.Task) error {
	var payload OrderConfirmationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal confirmation payload: %w: %w", err, asynq.SkipRetry)
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return fmt.Errorf("parse user id: %w: %w", err, asynq.SkipRetry)
	}
	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return fmt.Errorf("parse order id: %w: %w", err, asynq.SkipRetry)
	}

	user, err := w.Q.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	order, err := w.Q.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	items, err := w.Q.OrderItems(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}

	if err := w.Email.Send(user.Email, "Order confirmed", renderConfirmation(order, items)); err != nil {
		return fmt.Errorf("send confirmation email: %w", err)
	}
	w.Log.Info().Str("order_id", payload.OrderID).Msg("order confirmation sent")
	return nil
}

func renderConfirmation(order store.Order, items []store.OrderItem) string {
	var b strings.Builder
	b.WriteString("<p>Thanks for your order!</p><ul>")
	for _, it := range items {
		fmt.Fprintf(&b, "<li>%s x%d @ %.2f</li>", it.Title, it.Qty, it.Price)
	}
	b.WriteString("</ul>")
	if order.Discount > 0 {
		fmt.Fprintf(&b, "<p>Discount: %.2f</p>", order.Discount)
	}
	fmt.Fprintf(&b, "<p>Total: <strong>%.2f</strong></p>", order.Total)
	return b.String()
}
