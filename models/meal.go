package models

import (
	"fmt"
	"strings"
	"time"
)

// MealType is one of the four diary slots.
type MealType string

const (
	Breakfast MealType = "breakfast"
	Lunch     MealType = "lunch"
	Dinner    MealType = "dinner"
	Snacks    MealType = "snacks"
)

var MealTypes = []MealType{Breakfast, Lunch, Dinner, Snacks}

// ParseMealType accepts any casing ("Lunch", "SNACKS").
func ParseMealType(s string) (MealType, error) {
	mt := MealType(strings.ToLower(strings.TrimSpace(s)))
	if mt.Valid() {
		return mt, nil
	}
	return "", fmt.Errorf("invalid meal type %q", s)
}

func (m MealType) Valid() bool {
	switch m {
	case Breakfast, Lunch, Dinner, Snacks:
		return true
	}
	return false
}

// DateLayout is the diary date format.
const DateLayout = "2006-01-02"

// Nutrition is a calorie + macro tuple. Missing vendor values are 0.
type Nutrition struct {
	Calories float64 `json:"calories" bson:"calories"`
	Protein  float64 `json:"protein" bson:"protein"`
	Carbs    float64 `json:"carbs" bson:"carbs"`
	Fat      float64 `json:"fat" bson:"fat"`
}

func (n Nutrition) Add(o Nutrition) Nutrition {
	return Nutrition{
		Calories: n.Calories + o.Calories,
		Protein:  n.Protein + o.Protein,
		Carbs:    n.Carbs + o.Carbs,
		Fat:      n.Fat + o.Fat,
	}
}

// ConfirmedItem is a food with its nutrition snapshot.
type ConfirmedItem struct {
	ID        string  `json:"id" bson:"id"`
	Name      string  `json:"name" bson:"name"`
	Quantity  float64 `json:"quantity" bson:"quantity"`
	Unit      string  `json:"unit,omitempty" bson:"unit,omitempty"`
	Nutrition `bson:",inline"`
	// Nutrients is the full feed nutrient map (NA, SUGAR, FASAT...), when known.
	Nutrients map[string]float64 `json:"nutrients,omitempty" bson:"nutrients,omitempty"`
	Warnings  []string           `json:"warnings,omitempty" bson:"warnings,omitempty"`
}

// MealEntry holds every item a user logged for one date and meal type.
type MealEntry struct {
	ID             string          `json:"id" bson:"_id"`
	User           string          `json:"user" bson:"user"`
	Date           string          `json:"date" bson:"date"`
	MealType       MealType        `json:"mealType" bson:"meal_type"`
	Items          []ConfirmedItem `json:"items" bson:"items"`
	TotalNutrition Nutrition       `json:"totalNutrition" bson:"total_nutrition"`
	Source         string          `json:"source,omitempty" bson:"source,omitempty"`
	PhotoURL       string          `json:"photoUrl,omitempty" bson:"photo_url,omitempty"`
	CreatedAt      time.Time       `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" bson:"updated_at"`
}

// Recompute rebuilds TotalNutrition from Items.
func (m *MealEntry) Recompute() {
	var total Nutrition
	for _, it := range m.Items {
		total = total.Add(it.Nutrition)
	}
	m.TotalNutrition = total
}

// Sum totals the nutrition of several entries.
func Sum(entries []MealEntry) Nutrition {
	var total Nutrition
	for _, e := range entries {
		total = total.Add(e.TotalNutrition)
	}
	return total
}
