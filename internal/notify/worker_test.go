package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

type fakeReader struct {
	user  store.User
	order store.Order
	items []store.OrderItem
}

func (f *fakeReader) GetUser(context.Context, uuid.UUID) (store.User, error) {
	return f.user, nil
}

func (f *fakeReader) GetOrder(context.Context, uuid.UUID) (store.Order, error) {
	return f.order, nil
}

func (f *fakeReader) OrderItems(context.Context, uuid.UUID) ([]store.OrderItem, error) {
	return f.items, nil
}

func TestHandleOTPEmail(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	w := &Worker{Email: outbox}

	payload, err := json.Marshal(OTPEmailPayload{Email: "alice@example.com", Code: "482913"})
	require.NoError(t, err)
	err = w.HandleOTPEmail(context.Background(), asynq.NewTask(TypeOTPEmail, payload))
	require.NoError(t, err)

	require.Len(t, outbox.Outbox, 1)
	assert.Equal(t, "alice@example.com", outbox.Outbox[0].To)
	assert.Contains(t, outbox.Outbox[0].HTML, "482913")
}

func TestHandleOTPEmailBadPayloadSkipsRetry(t *testing.T) {
	w := &Worker{Email: &common.InMemoryEmail{}}
	err := w.HandleOTPEmail(context.Background(), asynq.NewTask(TypeOTPEmail, []byte("not json")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleOrderConfirmation(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	reader := &fakeReader{
		user:  store.User{ID: uuid.New(), Email: "bob@example.com"},
		order: store.Order{ID: uuid.New(), Total: 1080, Discount: 100},
		items: []store.OrderItem{{Title: "Desk Lamp", Qty: 2, Price: 500}},
	}
	w := &Worker{Email: outbox, Q: reader}

	payload, err := json.Marshal(OrderConfirmationPayload{
		UserID:  reader.user.ID.String(),
		OrderID: reader.order.ID.String(),
	})
	require.NoError(t, err)
	err = w.HandleOrderConfirmation(context.Background(), asynq.NewTask(TypeOrderConfirmation, payload))
	require.NoError(t, err)

	require.Len(t, outbox.Outbox, 1)
	assert.Equal(t, "bob@example.com", outbox.Outbox[0].To)
	assert.Contains(t, outbox.Outbox[0].HTML, "Desk Lamp")
	assert.Contains(t, outbox.Outbox[0].HTML, "1080.00")
}
