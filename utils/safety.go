package utils

import (
	"fmt"
	"math"
	"strings"

	"nutrilog/models"
)

// AssessmentContext personalises the limits used when flagging an item.
type AssessmentContext struct {
	AgeYears      int
	CalorieTarget float64 // 2000 kcal when zero
}

type WarningSeverity string

const (
	Info    WarningSeverity = "info"
	Caution WarningSeverity = "caution"
	High    WarningSeverity = "high"
)

// Warning is one finding about a logged food.
type Warning struct {
	Code     string          `json:"code"`
	Severity WarningSeverity `json:"severity"`
	Message  string          `json:"message"`
	Metric   string          `json:"metric,omitempty"`
	Value    float64         `json:"value,omitempty"`
	Limit    float64         `json:"limit,omitempty"`
}

// NutrientMap merges a macro tuple into the feed-style nutrient map without
// overwriting keys the feed already reported.
func NutrientMap(n models.Nutrition, extra map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(extra)+4)
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range map[string]float64{
		"ENERC_KCAL": n.Calories,
		"PROCNT":     n.Protein,
		"CHOCDF":     n.Carbs,
		"FAT":        n.Fat,
	} {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// ItemWarnings returns caution and high severity findings for a logged item.
// Info nudges are left out of persisted items.
func ItemWarnings(item models.ConfirmedItem, ctx AssessmentContext) []string {
	var out []string
	for _, w := range AssessFoodSafetyDGA(item.Name, NutrientMap(item.Nutrition, item.Nutrients), ctx) {
		if w.Severity != Info {
			out = append(out, w.Message)
		}
	}
	return out
}

// dailyLimit describes a nutrient capped as a share of the day.
type dailyLimit struct {
	code   string
	label  string
	unit   string
	keys   []string
	amount func(ctx AssessmentContext, kcal float64) float64
}

var dailyLimits = []dailyLimit{
	{
		code: "added_sugars", label: "added sugars", unit: "g",
		keys:   []string{"SUGAR.added", "SUGAR_ADDED", "added_sugar"},
		amount: func(_ AssessmentContext, kcal float64) float64 { return kcal * 0.10 / 4 },
	},
	{
		code: "saturated_fat", label: "saturated fat", unit: "g",
		keys:   []string{"FASAT", "saturated_fat"},
		amount: func(_ AssessmentContext, kcal float64) float64 { return kcal * 0.10 / 9 },
	},
	{
		code: "sodium", label: "sodium", unit: "mg",
		keys:   []string{"NA", "sodium"},
		amount: func(ctx AssessmentContext, _ float64) float64 { return sodiumLimit(ctx.AgeYears) },
	},
}

// AssessFoodSafetyDGA flags one food against dietary-guideline limits. A
// single item using 40% of a daily limit is high, 20% is a caution.
func AssessFoodSafetyDGA(name string, nutrients map[string]float64, ctx AssessmentContext) []Warning {
	day := ctx.CalorieTarget
	if day <= 0 {
		day = 2000
	}
	kcal := nutrient(nutrients, "ENERC_KCAL", "calories")
	if kcal <= 0 {
		kcal = 4*nutrient(nutrients, "CHOCDF") + 4*nutrient(nutrients, "PROCNT") + 9*nutrient(nutrients, "FAT")
	}

	var ws []Warning
	for _, l := range dailyLimits {
		v := nutrient(nutrients, l.keys...)
		limit := l.amount(ctx, day)
		if v <= 0 || limit <= 0 {
			continue
		}
		share := v / limit
		w := Warning{Metric: l.code, Value: round2(v), Limit: round2(limit)}
		switch {
		case share >= 0.40:
			w.Code, w.Severity = l.code+"_very_high", High
			w.Message = fmt.Sprintf("Very high %s: %.0f%s is %.0f%% of the daily limit", l.label, v, l.unit, share*100)
		case share >= 0.20:
			w.Code, w.Severity = l.code+"_high", Caution
			w.Message = fmt.Sprintf("High %s: %.0f%s is %.0f%% of the daily limit", l.label, v, l.unit, share*100)
		default:
			continue
		}
		ws = append(ws, w)
	}

	if kcal > 0 {
		// per-item energy share, independent of the day's budget
		if sat := nutrient(nutrients, "FASAT"); sat*9/kcal >= 0.10 && !hasWarning(ws, "saturated_fat") {
			ws = append(ws, Warning{
				Code: "saturated_fat_dense", Severity: Caution, Metric: "saturated_fat",
				Message: fmt.Sprintf("%.0f%% of this item's calories come from saturated fat", sat*900/kcal),
			})
		}
		if na := nutrient(nutrients, "NA"); na/kcal*100 >= 400 && !hasWarning(ws, "sodium") {
			ws = append(ws, Warning{
				Code: "sodium_dense", Severity: Info, Metric: "sodium",
				Message: "Salty for its calories; watch the rest of the day",
			})
		}
	}

	if trans := nutrient(nutrients, "FATRN", "trans_fat"); trans > 0 {
		sev := Caution
		if trans >= 0.5 {
			sev = High
		}
		ws = append(ws, Warning{
			Code: "trans_fat", Severity: sev, Metric: "trans_fat", Value: round2(trans),
			Message: fmt.Sprintf("Contains %.1fg trans fat", trans),
		})
	}

	if ctx.AgeYears > 0 && ctx.AgeYears < 2 && nutrient(nutrients, dailyLimits[0].keys...) > 0 {
		ws = append(ws, Warning{
			Code: "added_sugars_infant", Severity: High, Metric: "added_sugars",
			Message: "Added sugars are not recommended under age 2",
		})
	}

	if refinedGrain(name) {
		ws = append(ws, Warning{
			Code: "refined_grain", Severity: Info,
			Message: "Refined grain; whole-grain swaps add fibre",
		})
	}
	return ws
}

// nutrient returns the first non-zero value among keys, matching case-insensitively.
func nutrient(n map[string]float64, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := n[k]; ok && v != 0 {
			return v
		}
	}
	for _, k := range keys {
		for nk, v := range n {
			if v != 0 && strings.EqualFold(nk, k) {
				return v
			}
		}
	}
	return 0
}

func sodiumLimit(age int) float64 {
	switch {
	case age <= 0 || age >= 14:
		return 2300
	case age <= 3:
		return 1200
	case age <= 8:
		return 1500
	default:
		return 1800
	}
}

func hasWarning(ws []Warning, metric string) bool {
	for _, w := range ws {
		if w.Metric == metric {
			return true
		}
	}
	return false
}

func refinedGrain(name string) bool {
	name = strings.ToLower(name)
	if strings.Contains(name, "whole") || strings.Contains(name, "brown") {
		return false
	}
	for _, s := range []string{"white rice", "white bread", "pasta", "noodle", "bagel", "croissant"} {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
