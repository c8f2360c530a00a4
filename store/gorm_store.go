package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"nutrilog/models"
)

// mealEntryRow is one diary entry (breakfast/lunch/…) in Postgres.
type mealEntryRow struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	UserID    string `gorm:"index:idx_entry_lookup;not null"`
	Date      string `gorm:"index:idx_entry_lookup;type:char(10);not null"`
	MealType  string `gorm:"index:idx_entry_lookup;type:varchar(16);not null"`
	Source    string
	PhotoURL  string
	Calories  float64
	Protein   float64
	Carbs     float64
	Fat       float64
	Items     []mealItemRow `gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time     `gorm:"index:idx_entry_lookup"`
	UpdatedAt time.Time
}

func (mealEntryRow) TableName() string { return "meal_entries" }

// mealItemRow stores the nutrition snapshot of one confirmed item.
type mealItemRow struct {
	gorm.Model
	EntryID   string `gorm:"index;type:varchar(36);not null"`
	Position  int
	ItemID    string `gorm:"type:varchar(255)"`
	Name      string
	Quantity  float64
	Unit      string
	Calories  float64
	Protein   float64
	Carbs     float64
	Fat       float64
	Nutrients string // JSON object
	Warnings  string // newline-separated
}

func (mealItemRow) TableName() string { return "meal_items" }

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewGormStoreWithDB(db)
}

// NewGormStoreWithDB migrates and wraps an existing connection.
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&mealEntryRow{}, &mealItemRow{}); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) FindMealEntry(ctx context.Context, user, date string, mealType models.MealType) (*models.MealEntry, error) {
	var row mealEntryRow
	err := s.preload(ctx).
		Where("user_id = ? AND date = ? AND meal_type = ?", user, date, string(mealType)).
		Order("created_at ASC").
		First(&row).Error
	return rowResult(row, err)
}

func (s *GormStore) GetMealEntry(ctx context.Context, user, id string) (*models.MealEntry, error) {
	var row mealEntryRow
	err := s.preload(ctx).Where("id = ? AND user_id = ?", id, user).First(&row).Error
	return rowResult(row, err)
}

func (s *GormStore) CreateMealEntry(ctx context.Context, entry *models.MealEntry) error {
	row, err := toRow(entry)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert meal entry: %w", err)
	}
	return nil
}

// UpdateMealEntry rewrites the entry header and replaces its items.
func (s *GormStore) UpdateMealEntry(ctx context.Context, entry *models.MealEntry) error {
	row, err := toRow(entry)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&mealEntryRow{}).
			Where("id = ? AND user_id = ?", row.ID, row.UserID).
			Updates(map[string]any{
				"source":     row.Source,
				"photo_url":  row.PhotoURL,
				"calories":   row.Calories,
				"protein":    row.Protein,
				"carbs":      row.Carbs,
				"fat":        row.Fat,
				"updated_at": row.UpdatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update meal entry: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Unscoped().Where("entry_id = ?", row.ID).Delete(&mealItemRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear meal items: %w", err)
		}
		if len(row.Items) > 0 {
			if err := tx.Create(&row.Items).Error; err != nil {
				return fmt.Errorf("failed to insert meal items: %w", err)
			}
		}
		return nil
	})
}

func (s *GormStore) DeleteMealEntry(ctx context.Context, user, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, user).Delete(&mealEntryRow{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete meal entry: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Unscoped().Where("entry_id = ?", id).Delete(&mealItemRow{}).Error
	})
}

func (s *GormStore) ListMealEntries(ctx context.Context, user, from, to string) ([]models.MealEntry, error) {
	var rows []mealEntryRow
	err := s.preload(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?", user, from, to).
		Order("date ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list meal entries: %w", err)
	}
	entries := make([]models.MealEntry, 0, len(rows))
	for _, r := range rows {
		e, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

func (s *GormStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) preload(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func rowResult(row mealEntryRow, err error) (*models.MealEntry, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load meal entry: %w", err)
	}
	return fromRow(row)
}

func toRow(e *models.MealEntry) (mealEntryRow, error) {
	row := mealEntryRow{
		ID:        e.ID,
		UserID:    e.User,
		Date:      e.Date,
		MealType:  string(e.MealType),
		Source:    e.Source,
		PhotoURL:  e.PhotoURL,
		Calories:  e.TotalNutrition.Calories,
		Protein:   e.TotalNutrition.Protein,
		Carbs:     e.TotalNutrition.Carbs,
		Fat:       e.TotalNutrition.Fat,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	for i, it := range e.Items {
		var nutrients string
		if len(it.Nutrients) > 0 {
			b, err := json.Marshal(it.Nutrients)
			if err != nil {
				return mealEntryRow{}, fmt.Errorf("failed to encode nutrients for %s: %w", it.Name, err)
			}
			nutrients = string(b)
		}
		row.Items = append(row.Items, mealItemRow{
			EntryID:   e.ID,
			Position:  i,
			ItemID:    it.ID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Unit:      it.Unit,
			Calories:  it.Calories,
			Protein:   it.Protein,
			Carbs:     it.Carbs,
			Fat:       it.Fat,
			Nutrients: nutrients,
			Warnings:  strings.Join(it.Warnings, "\n"),
		})
	}
	return row, nil
}

func fromRow(r mealEntryRow) (*models.MealEntry, error) {
	e := &models.MealEntry{
		ID:       r.ID,
		User:     r.UserID,
		Date:     r.Date,
		MealType: models.MealType(r.MealType),
		Source:   r.Source,
		PhotoURL: r.PhotoURL,
		Items:    make([]models.ConfirmedItem, 0, len(r.Items)),
		TotalNutrition: models.Nutrition{
			Calories: r.Calories,
			Protein:  r.Protein,
			Carbs:    r.Carbs,
			Fat:      r.Fat,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	for _, it := range r.Items {
		item := models.ConfirmedItem{
			ID:       it.ItemID,
			Name:     it.Name,
			Quantity: it.Quantity,
			Unit:     it.Unit,
			Nutrition: models.Nutrition{
				Calories: it.Calories,
				Protein:  it.Protein,
				Carbs:    it.Carbs,
				Fat:      it.Fat,
			},
		}
		if it.Nutrients != "" {
			if err := json.Unmarshal([]byte(it.Nutrients), &item.Nutrients); err != nil {
				return nil, fmt.Errorf("failed to decode nutrients for %s: %w", it.Name, err)
			}
		}
		if it.Warnings != "" {
			item.Warnings = strings.Split(it.Warnings, "\n")
		}
		e.Items = append(e.Items, item)
	}
	return e, nil
}
