package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Task type names routed through the queue.
const (
	TypeOTPEmail          = "email:otp"
	TypeOrderConfirmation = "email:order_confirmation"
)

// OTPEmailPayload carries a one-time code delivery.
type OTPEmailPayload struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// OrderConfirmationPayload points at a placed order.
type OrderConfirmationPayload struct {
	UserID  string `json:"user_id"`
	OrderID string `json:"order_id"`
}

// Enqueuer submits notification tasks to the queue.
type Enqueuer struct {
	Client *asynq.Client
	Log    zerolog.Logger
}

// EnqueueOTPEmail schedules delivery of a one-time code. OTP mail is
// time-sensitive, so it retries quickly and gives up within the code's
// useful lifetime.
func (e *Enqueuer) EnqueueOTPEmail(ctx context.Context, email, code string) error {
	payload, err := json.Marshal(OTPEmailPayload{Email: email, Code: code})
	if err != nil {
		return fmt.Errorf("marshal otp payload: %w", err)
	}
	_, err = e.Client.EnqueueContext(ctx, asynq.NewTask(TypeOTPEmail, payload),
		asynq.MaxRetry(3),
		asynq.Retention(time.Hour),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("enqueue otp email: %w", err)
	}
	return nil
}

// EnqueueOrderConfirmation schedules the post-checkout confirmation mail.
func (e *Enqueuer) EnqueueOrderConfirmation(ctx context.Context, userID, orderID uuid.UUID) error {
	payload, err := json.Marshal(OrderConfirmationPayload{
		UserID:  userID.String(),
		OrderID: orderID.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal confirmation payload: %w", err)
	}
	_, err = e.Client.EnqueueContext(ctx, asynq.NewTask(TypeOrderConfirmation, payload),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
		asynq.Timeout(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue order confirmation: %w", err)
	}
	return nil
}
