package models

// Targets holds a user's daily intake targets.
type Targets struct {
	BMR      float64 `json:"bmr"`
	TDEE     float64 `json:"tdee"`
	Calories float64 `json:"calories"` // e.g. 2200 kcal
	Protein  float64 `json:"protein"`  // e.g. 120 g
	Carbs    float64 `json:"carbs"`    // e.g. 275 g
	Fat      float64 `json:"fat"`      // e.g. 70 g
}
