package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/anurag-sv/bazaar-api/internal/config"
	"github.com/anurag-sv/bazaar-api/internal/coupon"
	"github.com/anurag-sv/bazaar-api/internal/db"
	"github.com/anurag-sv/bazaar-api/internal/obs"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

// Seeds a development database with a small catalog and a few coupons.
func main() {
	logger := obs.NewLogger("console", os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	ctx := context.Background()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	q := store.New(pool)

	lighting, err := q.CreateCategory(ctx, "Lighting", "lighting")
	if err != nil {
		logger.Fatal().Err(err).Msg("seed category")
	}
	kitchen, err := q.CreateCategory(ctx, "Kitchen", "kitchen")
	if err != nil {
		logger.Fatal().Err(err).Msg("seed category")
	}
	lumina, err := q.CreateBrand(ctx, "Lumina", "lumina")
	if err != nil {
		logger.Fatal().Err(err).Msg("seed brand")
	}
	homeware, err := q.CreateBrand(ctx, "Homeware Co", "homeware-co")
	if err != nil {
		logger.Fatal().Err(err).Msg("seed brand")
	}

	products := []store.CreateProductParams{
		{
			Title: "Desk Lamp", Slug: "desk-lamp", Price: 500, Stock: 40,
			Description: "Adjustable LED desk lamp with three colour modes.",
			CategoryID:  &lighting.ID, BrandID: &lumina.ID, IsActive: true,
		},
		{
			Title: "Floor Lamp", Slug: "floor-lamp", Price: 1299, Stock: 15,
			Description: "Tall arc floor lamp with a fabric shade.",
			CategoryID:  &lighting.ID, BrandID: &lumina.ID, IsActive: true,
		},
		{
			Title: "Ceramic Mug", Slug: "ceramic-mug", Price: 300, Stock: 200,
			Description: "Hand glazed 350ml mug.",
			CategoryID:  &kitchen.ID, BrandID: &homeware.ID, IsActive: true,
		},
		{
			Title: "Chef Knife", Slug: "chef-knife", Price: 2150, Stock: 25,
			Description: "20cm stainless steel chef knife.",
			CategoryID:  &kitchen.ID, BrandID: &homeware.ID, IsActive: true,
		},
	}
	for _, p := range products {
		if _, err := q.CreateProduct(ctx, p); err != nil {
			logger.Fatal().Err(err).Str("slug", p.Slug).Msg("seed product")
		}
	}

	expiry := time.Now().AddDate(0, 3, 0)
	usageLimit := int32(100)
	perUser := int32(1)
	coupons := []store.CouponParams{
		{
			Code: "WELCOME10", Type: coupon.TypePercentage, Value: 10,
			ExpiresAt: &expiry, PerUserLimit: &perUser, Active: true,
		},
		{
			Code: "FLAT200", Type: coupon.TypeFlat, Value: 200,
			UsageLimit: &usageLimit, Active: true,
		},
		{
			Code: "LIGHTS20", Type: coupon.TypePercentage, Value: 20,
			ApplicableCategories: []uuid.UUID{lighting.ID}, Active: true,
		},
	}
	for _, c := range coupons {
		if _, err := q.CreateCoupon(ctx, c); err != nil {
			logger.Fatal().Err(err).Str("code", c.Code).Msg("seed coupon")
		}
	}

	logger.Info().Msg("seed complete")
}
