package models

// MacroProgress compares consumed against a goal. Percent is capped at 1.
type MacroProgress struct {
	Consumed float64 `json:"consumed"`
	Goal     float64 `json:"goal"`
	Percent  float64 `json:"percent"`
}

// DailySummary totals one day of the diary.
type DailySummary struct {
	Date       string                 `json:"date"`
	ByMealType map[MealType]Nutrition `json:"byMealType"`
	Total      Nutrition              `json:"total"`
	Entries    int                    `json:"entries"`
}

// DailyProgress is a day's intake measured against targets.
type DailyProgress struct {
	Date     string                   `json:"date"`
	Targets  Targets                  `json:"targets"`
	Progress map[string]MacroProgress `json:"progress"`
}
