package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Product is a catalog entry. Price and stock are read at order time and
// frozen into order items.
type Product struct {
	ID          uuid.UUID
	Title       string
	Slug        string
	Description string
	Price       float64
	Stock       int32
	Images      []string
	CategoryID  *uuid.UUID
	BrandID     *uuid.UUID
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Brand is a catalog brand.
type Brand struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	CreatedAt time.Time
}

// Category is a catalog category.
type Category struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	CreatedAt time.Time
}

// Coupon is a discount rule stored in the registry. Codes are stored
// uppercase so lookups are case-insensitive.
type Coupon struct {
	ID                   uuid.UUID
	Code                 string
	Type                 string
	Value                float64
	ApplicableProducts   []uuid.UUID
	ApplicableCategories []uuid.UUID
	ApplicableBrands     []uuid.UUID
	StartsAt             *time.Time
	ExpiresAt            *time.Time
	UsageLimit           *int32
	UsedCount            int32
	PerUserLimit         *int32
	Active               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Cart is the per-user mutable cart. Total is recomputed on every mutation.
type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Total     float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem is a live cart line with cached product snapshots.
type CartItem struct {
	ID        uuid.UUID
	CartID    uuid.UUID
	ProductID uuid.UUID
	Title     string
	Price     float64
	Qty       int32
	Image     string
}

// Order is an immutable record of a checkout.
type Order struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Subtotal        float64
	Shipping        float64
	Tax             float64
	OriginalTotal   float64
	Discount        float64
	Total           float64
	CouponCode      *string
	CouponID        *uuid.UUID
	ShippingAddress json.RawMessage
	PaymentMethod   string
	PaymentStatus   string
	Status          string
	CreatedAt       time.Time
}

// OrderItem freezes product price, title, and image at order creation.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Title     string
	Price     float64
	Qty       int32
	Image     string
}

// User is a storefront account, created lazily on first OTP verification.
type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	Roles     []string
	CreatedAt time.Time
	UpdatedAt time.Time
}
