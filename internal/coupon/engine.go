package coupon

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anurag-sv/bazaar-api/internal/pricing"
)

// Discount kinds supported by the registry.
const (
	TypePercentage = "percentage"
	TypeFlat       = "flat"
)

var (
	// ErrInvalidCode is returned when no coupon matches the supplied code.
	ErrInvalidCode = errors.New("Invalid coupon code")
	// ErrNotActive is returned when the coupon has been disabled.
	ErrNotActive = errors.New("Coupon is not active")
	// ErrExpired is returned when the coupon validity window has passed.
	ErrExpired = errors.New("Coupon has expired")
	// ErrNotStarted is returned when the coupon validity window has not opened yet.
	ErrNotStarted = errors.New("Coupon is not yet active")
	// ErrUsageLimitReached indicates the coupon has exhausted its global quota.
	ErrUsageLimitReached = errors.New("Coupon usage limit exceeded")
	// ErrPerUserLimitReached indicates the caller exhausted their own allowance.
	ErrPerUserLimitReached = errors.New("Coupon usage limit reached for this account")
	// ErrNotApplicable is returned when no cart line qualifies for the coupon.
	ErrNotApplicable = errors.New("Coupon not applicable to cart items")
)

// Rule captures the runtime constraints of a coupon.
type Rule struct {
	Code         string
	Type         string
	Value        float64
	ProductIDs   []uuid.UUID
	CategoryIDs  []uuid.UUID
	BrandIDs     []uuid.UUID
	StartsAt     *time.Time
	ExpiresAt    *time.Time
	UsageLimit   *int32
	UsedCount    int32
	PerUserLimit *int32
	PerUserUsed  int32
	Active       bool
}

// Item represents a priced cart line eligible for discount calculation.
type Item struct {
	ProductID  uuid.UUID
	CategoryID *uuid.UUID
	BrandID    *uuid.UUID
	Price      float64
	Qty        int
}

// Subtotal returns the line total.
func (it Item) Subtotal() float64 {
	if it.Qty <= 0 {
		return 0
	}
	return it.Price * float64(it.Qty)
}

// Validate checks the rule against the provided instant. Checks short-circuit
// in a fixed order so callers always see the most specific reason.
func (r Rule) Validate(now time.Time) error {
	if !r.Active {
		return ErrNotActive
	}
	if r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
		return ErrExpired
	}
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return ErrNotStarted
	}
	if r.UsageLimit != nil && r.UsedCount >= *r.UsageLimit {
		return ErrUsageLimitReached
	}
	if r.PerUserLimit != nil && *r.PerUserLimit > 0 && r.PerUserUsed >= *r.PerUserLimit {
		return ErrPerUserLimitReached
	}
	return nil
}

// Scoped reports whether the rule restricts applicability to specific
// products, categories, or brands. An unscoped rule applies to the whole cart.
func (r Rule) Scoped() bool {
	return len(r.ProductIDs) > 0 || len(r.CategoryIDs) > 0 || len(r.BrandIDs) > 0
}

// ApplicableSubtotal calculates the portion of the cart the rule may discount.
func ApplicableSubtotal(items []Item, r Rule) float64 {
	var total float64
	scoped := r.Scoped()
	for _, it := range items {
		sub := it.Subtotal()
		if sub <= 0 {
			continue
		}
		if !scoped || ruleMatchesItem(r, it) {
			total += sub
		}
	}
	return total
}

// An item matches when its product, category, or brand appears in any scope
// list. Membership tests are ORed across the three lists.
func ruleMatchesItem(r Rule, it Item) bool {
	for _, id := range r.ProductIDs {
		if id == it.ProductID {
			return true
		}
	}
	if it.CategoryID != nil {
		for _, id := range r.CategoryIDs {
			if id == *it.CategoryID {
				return true
			}
		}
	}
	if it.BrandID != nil {
		for _, id := range r.BrandIDs {
			if id == *it.BrandID {
				return true
			}
		}
	}
	return false
}

// Compute determines the discount amount for the applicable subtotal, rounded
// to two decimal places. Flat discounts cap at the applicable subtotal so a
// coupon can never push a line set negative; percentage values are applied
// as stored, even when malformed data exceeds 100.
func Compute(applicable float64, r Rule) float64 {
	if applicable <= 0 {
		return 0
	}
	var discount float64
	switch strings.ToLower(strings.TrimSpace(r.Type)) {
	case TypePercentage:
		discount = applicable * (r.Value / 100)
	case TypeFlat:
		discount = r.Value
		if discount > applicable {
			discount = applicable
		}
	default:
		return 0
	}
	if discount < 0 {
		return 0
	}
	return pricing.Round2(discount)
}

// NormalizeCode canonicalises user-supplied coupon codes for lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
