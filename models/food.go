package models

// FoodHint is a catalog match from the food database search.
type FoodHint struct {
	FoodID   string `json:"foodId"`
	Label    string `json:"label"`
	Category string `json:"category,omitempty"`
	// Per100g is the nutrition per 100 g as reported by the catalog.
	Per100g Nutrition `json:"per100g"`
}

// Scale returns the nutrition of grams of this food.
func (f FoodHint) Scale(grams float64) Nutrition {
	k := grams / 100
	return Nutrition{
		Calories: f.Per100g.Calories * k,
		Protein:  f.Per100g.Protein * k,
		Carbs:    f.Per100g.Carbs * k,
		Fat:      f.Per100g.Fat * k,
	}
}
