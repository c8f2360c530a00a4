package models

// PlannedItem is one food in a generated plan.
type PlannedItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Nutrition
}

type PlannedMeal struct {
	MealType MealType      `json:"mealType"`
	Items    []PlannedItem `json:"items"`
	Total    Nutrition     `json:"total"`
}

type PlanDay struct {
	Day   int           `json:"day"`
	Meals []PlannedMeal `json:"meals"`
	Total Nutrition     `json:"total"`
}

// MealPlan is a multi-day plan produced by the text generator.
type MealPlan struct {
	Days []PlanDay `json:"days"`
}

// FoodSuggestion fills part of a remaining macro budget.
type FoodSuggestion struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Reason   string  `json:"reason,omitempty"`
	Nutrition
}
