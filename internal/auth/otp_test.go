package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

type fakeUsers struct {
	users map[string]store.User
}

func (f *fakeUsers) GetOrCreateUserByEmail(_ context.Context, email string) (store.User, error) {
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	u := store.User{ID: uuid.New(), Email: email, Roles: []string{"user"}}
	f.users[email] = u
	return u, nil
}

func (f *fakeUsers) GetUser(_ context.Context, id uuid.UUID) (store.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeUsers) UpdateUserName(_ context.Context, id uuid.UUID, name string) (store.User, error) {
	for email, u := range f.users {
		if u.ID == id {
			u.Name = name
			f.users[email] = u
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

type captureSender struct {
	email string
	code  string
	sends int
}

func (c *captureSender) EnqueueOTPEmail(_ context.Context, email, code string) error {
	c.email = email
	c.code = code
	c.sends++
	return nil
}

type allowAll struct{}

func (allowAll) Allow(context.Context, string) (bool, error) { return true, nil }

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, error) { return false, nil }

func testTokens() *TokenIssuer {
	return &TokenIssuer{
		Secret:   []byte("test-secret-0123456789abcdef"),
		Issuer:   "bazaar-api",
		Audience: "bazaar-storefront",
		TTL:      time.Hour,
	}
}

func testAuth(t *testing.T) (*Service, *captureSender) {
	t.Helper()
	srv := miniredis.RunT(t)
	sender := &captureSender{}
	svc := &Service{
		Users:       &fakeUsers{users: map[string]store.User{}},
		Redis:       redis.NewClient(&redis.Options{Addr: srv.Addr()}),
		Limiter:     allowAll{},
		Sender:      sender,
		Tokens:      testTokens(),
		CodeLength:  6,
		CodeTTL:     5 * time.Minute,
		MaxAttempts: 3,
	}
	return svc, sender
}

func TestRequestAndVerifyRoundTrip(t *testing.T) {
	svc, sender := testAuth(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestCode(ctx, "Alice@Example.com"))
	assert.Equal(t, "alice@example.com", sender.email)
	require.Len(t, sender.code, 6)

	res, err := svc.VerifyCode(ctx, "alice@example.com", sender.code)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", res.User.Email)
	require.NotEmpty(t, res.Token)

	claims, err := svc.Tokens.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID.String(), claims.Subject)
	assert.Contains(t, claims.Roles, "user")
}

func TestVerifyWrongCode(t *testing.T) {
	svc, sender := testAuth(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestCode(ctx, "alice@example.com"))
	_, err := svc.VerifyCode(ctx, "alice@example.com", "000000")
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "OTP_INVALID", appErr.Code)

	// The right code still works within the attempt budget.
	_, err = svc.VerifyCode(ctx, "alice@example.com", sender.code)
	require.NoError(t, err)
}

func TestVerifyCodeIsSingleUse(t *testing.T) {
	svc, sender := testAuth(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestCode(ctx, "alice@example.com"))
	_, err := svc.VerifyCode(ctx, "alice@example.com", sender.code)
	require.NoError(t, err)

	_, err = svc.VerifyCode(ctx, "alice@example.com", sender.code)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "OTP_INVALID", appErr.Code)
}

func TestVerifyAttemptBudget(t *testing.T) {
	svc, sender := testAuth(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestCode(ctx, "alice@example.com"))
	for i := 0; i < 3; i++ {
		_, err := svc.VerifyCode(ctx, "alice@example.com", "000000")
		require.Error(t, err)
	}
	_, err := svc.VerifyCode(ctx, "alice@example.com", sender.code)
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "OTP_ATTEMPTS_EXCEEDED", appErr.Code)

	// The code is burned even with the correct value.
	_, err = svc.VerifyCode(ctx, "alice@example.com", sender.code)
	require.Error(t, err)
}

func TestRequestCodeRateLimited(t *testing.T) {
	svc, _ := testAuth(t)
	svc.Limiter = denyAll{}

	err := svc.RequestCode(context.Background(), "alice@example.com")
	appErr, ok := common.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "OTP_RATE_LIMITED", appErr.Code)
}

func TestNewCodeInvalidatesOld(t *testing.T) {
	svc, sender := testAuth(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestCode(ctx, "alice@example.com"))
	first := sender.code
	require.NoError(t, svc.RequestCode(ctx, "alice@example.com"))

	if first != sender.code {
		_, err := svc.VerifyCode(ctx, "alice@example.com", first)
		require.Error(t, err)
	}
	_, err := svc.VerifyCode(ctx, "alice@example.com", sender.code)
	require.NoError(t, err)
}

func TestRequireAuthMiddleware(t *testing.T) {
	tokens := testTokens()
	userID := uuid.New().String()
	token, err := tokens.Issue(userID, []string{"user", "admin"})
	require.NoError(t, err)

	mw := &Middleware{Tokens: tokens}
	var gotUser string
	var gotRoles []string
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = common.UserID(r.Context())
		gotRoles = RolesFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, gotUser)
	assert.Contains(t, gotRoles, "admin")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRoles(req.Context(), []string{"user"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRoles(req.Context(), []string{"admin"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExpiredTokenRejected(t *testing.T) {
	tokens := testTokens()
	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens.Now = func() time.Time { return issued }
	token, err := tokens.Issue(uuid.New().String(), nil)
	require.NoError(t, err)

	tokens.Now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = tokens.Parse(token)
	require.Error(t, err)
}
