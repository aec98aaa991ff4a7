package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

// UserStore is the slice of the store the auth flow needs.
type UserStore interface {
	GetOrCreateUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (store.User, error)
	UpdateUserName(ctx context.Context, id uuid.UUID, name string) (store.User, error)
}

// CodeSender delivers one-time codes out of band.
type CodeSender interface {
	EnqueueOTPEmail(ctx context.Context, email, code string) error
}

// RequestLimiter throttles code requests per email address.
type RequestLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Service implements passwordless login. Codes are stored hashed with a
// TTL; the plaintext only travels through the mail queue.
type Service struct {
	Users   UserStore
	Redis   *redis.Client
	Limiter RequestLimiter
	Sender  CodeSender
	Tokens  *TokenIssuer
	Log     zerolog.Logger

	CodeLength  int
	CodeTTL     time.Duration
	MaxAttempts int
}

func otpHashKey(email string) string     { return "otp:h:" + email }
func otpAttemptsKey(email string) string { return "otp:a:" + email }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RequestCode generates a fresh code for the address, stores its hash, and
// queues the delivery mail. Requesting a new code invalidates the old one.
func (s *Service) RequestCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if s.Limiter != nil {
		ok, err := s.Limiter.Allow(ctx, "otp:req:"+email)
		if err != nil {
			return fmt.Errorf("otp rate limit: %w", err)
		}
		if !ok {
			return common.NewAppError("OTP_RATE_LIMITED",
				"Too many codes requested. Try again later", http.StatusTooManyRequests, nil)
		}
	}

	code, err := generateCode(s.codeLength())
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	hash, err := argon2id.CreateHash(code, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}
	if err := s.Redis.Set(ctx, otpHashKey(email), hash, s.codeTTL()).Err(); err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	if err := s.Redis.Del(ctx, otpAttemptsKey(email)).Err(); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	if err := s.Sender.EnqueueOTPEmail(ctx, email, code); err != nil {
		return fmt.Errorf("queue otp mail: %w", err)
	}
	s.Log.Info().Str("email", email).Msg("otp requested")
	return nil
}

// LoginResult is a verified session.
type LoginResult struct {
	Token string
	User  store.User
}

// VerifyCode checks a submitted code, creating the account on first login.
// The attempt counter caps brute forcing; exhausting it burns the code.
func (s *Service) VerifyCode(ctx context.Context, email, code string) (LoginResult, error) {
	email = normalizeEmail(email)

	hash, err := s.Redis.Get(ctx, otpHashKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return LoginResult{}, invalidCodeErr()
		}
		return LoginResult{}, fmt.Errorf("load code: %w", err)
	}

	attempts, err := s.Redis.Incr(ctx, otpAttemptsKey(email)).Result()
	if err != nil {
		return LoginResult{}, fmt.Errorf("count attempt: %w", err)
	}
	if err := s.Redis.Expire(ctx, otpAttemptsKey(email), s.codeTTL()).Err(); err != nil {
		return LoginResult{}, fmt.Errorf("expire attempts: %w", err)
	}
	if attempts > int64(s.maxAttempts()) {
		s.Redis.Del(ctx, otpHashKey(email), otpAttemptsKey(email))
		return LoginResult{}, common.NewAppError("OTP_ATTEMPTS_EXCEEDED",
			"Too many attempts. Request a new code", http.StatusTooManyRequests, nil)
	}

	match, err := argon2id.ComparePasswordAndHash(code, hash)
	if err != nil {
		return LoginResult{}, fmt.Errorf("compare code: %w", err)
	}
	if !match {
		return LoginResult{}, invalidCodeErr()
	}

	s.Redis.Del(ctx, otpHashKey(email), otpAttemptsKey(email))
	user, err := s.Users.GetOrCreateUserByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("load user: %w", err)
	}
	token, err := s.Tokens.Issue(user.ID.String(), user.Roles)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	s.Log.Info().Str("user_id", user.ID.String()).Msg("otp verified")
	return LoginResult{Token: token, User: user}, nil
}

func invalidCodeErr() error {
	return common.NewAppError("OTP_INVALID", "Invalid or expired code", http.StatusBadRequest, nil)
}

func (s *Service) codeLength() int {
	if s.CodeLength > 0 {
		return s.CodeLength
	}
	return 6
}

func (s *Service) codeTTL() time.Duration {
	if s.CodeTTL > 0 {
		return s.CodeTTL
	}
	return 5 * time.Minute
}

func (s *Service) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return 5
}

func generateCode(length int) (string, error) {
	const digits = "0123456789"
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		buf[i] = digits[n.Int64()]
	}
	return string(buf), nil
}
