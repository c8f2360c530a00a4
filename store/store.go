// Package store persists meal entries behind a driver-neutral interface.
package store

import (
	"context"
	"fmt"

	"nutrilog/apperr"
	"nutrilog/config"
	"nutrilog/models"
)

// ErrNotFound is returned when an entry does not exist or belongs to another user.
var ErrNotFound = &apperr.Error{Kind: apperr.KindNotFound, Message: "meal entry not found"}

// MealStore is the diary persistence contract. Every call is scoped to a user.
type MealStore interface {
	// FindMealEntry returns the oldest entry for user/date/mealType, or ErrNotFound.
	FindMealEntry(ctx context.Context, user, date string, mealType models.MealType) (*models.MealEntry, error)
	GetMealEntry(ctx context.Context, user, id string) (*models.MealEntry, error)
	CreateMealEntry(ctx context.Context, entry *models.MealEntry) error
	UpdateMealEntry(ctx context.Context, entry *models.MealEntry) error
	DeleteMealEntry(ctx context.Context, user, id string) error
	// ListMealEntries returns entries with from <= date <= to, ordered by date then creation.
	ListMealEntries(ctx context.Context, user, from, to string) ([]models.MealEntry, error)
	Close(ctx context.Context) error
}

// Open connects the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (MealStore, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.DriverPostgres:
		return NewGormStore(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
