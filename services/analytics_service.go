package services

import (
	"context"
	"math"
	"slices"
	"time"

	"nutrilog/apperr"
	"nutrilog/models"
	"nutrilog/store"
)

// AnalyticsService aggregates diary entries over date ranges.
type AnalyticsService struct{ store store.MealStore }

func NewAnalyticsService(st store.MealStore) *AnalyticsService { return &AnalyticsService{store: st} }

// ---------- Summary ----------

type NutrAvg struct {
	AvgConsumed float64 `json:"avg_consumed"`
	AvgGoal     float64 `json:"avg_goal,omitempty"`
	AvgPercent  float64 `json:"avg_percent,omitempty"`
	Unit        string  `json:"unit,omitempty"`
}

type SafetyBreakdown struct {
	Safe    int64 `json:"safe"`
	Unsafe  int64 `json:"unsafe"`
	Unknown int64 `json:"unknown"`
	Total   int64 `json:"total"`
}

type AnalyticsSummary struct {
	Range struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"range"`

	Macros map[string]NutrAvg `json:"macros"` // calories, protein, carbs, fat

	Safety struct {
		ScorePct float64 `json:"score_pct"`
		SafetyBreakdown
	} `json:"safety"`

	Metadata struct {
		DaysCounted        int  `json:"days_counted"`
		IncludeMissingDays bool `json:"include_missing_days"`
	} `json:"metadata"`
}

type SummaryRequest struct {
	From               string         `json:"from" binding:"required,isodate"`
	To                 string         `json:"to" binding:"required,isodate"`
	IncludeMissingDays bool           `json:"includeMissingDays"`
	Targets            models.Targets `json:"targets"`
}

// maxRangeDays bounds how much history one request may scan.
const maxRangeDays = 366

// Summary averages daily intake over the range. Days without entries only
// count when IncludeMissingDays is set.
func (s *AnalyticsService) Summary(ctx context.Context, user string, req SummaryRequest) (*AnalyticsSummary, error) {
	from, to, err := parseRange(req.From, req.To)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListMealEntries(ctx, user, req.From, req.To)
	if err != nil {
		return nil, err
	}
	byDay := totalsByDay(entries)

	var dates []string
	if req.IncludeMissingDays {
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			dates = append(dates, d.Format(models.DateLayout))
		}
	} else {
		for d := range byDay {
			dates = append(dates, d)
		}
		slices.Sort(dates)
	}

	type acc struct{ sum, gsum, psum float64 }
	m := map[string]*acc{"calories": {}, "protein": {}, "carbs": {}, "fat": {}}
	g := req.Targets
	for _, d := range dates {
		n := byDay[d] // zero value if not found
		type pair struct {
			k    string
			c, g float64
		}
		for _, p := range []pair{
			{"calories", n.Calories, g.Calories},
			{"protein", n.Protein, g.Protein},
			{"carbs", n.Carbs, g.Carbs},
			{"fat", n.Fat, g.Fat},
		} {
			m[p.k].sum += p.c
			m[p.k].gsum += p.g
			if p.g > 0 {
				m[p.k].psum += (p.c / p.g) * 100.0
			}
		}
	}

	out := &AnalyticsSummary{}
	out.Range.From = req.From
	out.Range.To = req.To
	out.Metadata.DaysCounted = len(dates)
	out.Metadata.IncludeMissingDays = req.IncludeMissingDays

	units := map[string]string{"calories": "kcal", "protein": "g", "carbs": "g", "fat": "g"}
	out.Macros = make(map[string]NutrAvg, len(m))
	for k, a := range m {
		out.Macros[k] = NutrAvg{
			AvgConsumed: avg(a.sum, len(dates)),
			AvgGoal:     avg(a.gsum, len(dates)),
			AvgPercent:  avg(a.psum, len(dates)),
			Unit:        units[k],
		}
	}

	br := safetyBreakdown(entries)
	const unknownWeight = 0.5 // treat unknown as half-safe
	const priorAlpha = 1.0    // Beta prior α (pseudo safe)
	const priorBeta = 1.0     // Beta prior β (pseudo unsafe)
	out.Safety.ScorePct = computeSafetyScore(br, unknownWeight, priorAlpha, priorBeta)
	out.Safety.SafetyBreakdown = br
	return out, nil
}

// ---------- Weekly Overview ----------

type WeeklyOverviewResponse struct {
	WeekStart string `json:"week_start"`
	Mode      string `json:"mode"` // chart|detailed
	Days      any    `json:"days"`
}

type DayChart struct {
	Date        string             `json:"date"`
	Percentages map[string]float64 `json:"percentages"`
}

type Metric struct {
	Actual  float64 `json:"actual"`
	Target  float64 `json:"target"`
	Percent float64 `json:"percent"`
}

type DayDetailed struct {
	Date    string            `json:"date"`
	Metrics map[string]Metric `json:"metrics"`
}

// WeeklyOverview reports the seven days starting on the Monday of weekStart.
func (s *AnalyticsService) WeeklyOverview(ctx context.Context, user string, weekStart time.Time, mode string, goal models.Targets) (*WeeklyOverviewResponse, error) {
	if mode != "chart" && mode != "detailed" {
		return nil, apperr.Validation("mode must be 'chart' or 'detailed'")
	}
	from := StartOfWeek(weekStart)
	to := from.AddDate(0, 0, 6)

	entries, err := s.store.ListMealEntries(ctx, user, from.Format(models.DateLayout), to.Format(models.DateLayout))
	if err != nil {
		return nil, err
	}
	byDay := totalsByDay(entries)

	out := &WeeklyOverviewResponse{WeekStart: from.Format(models.DateLayout), Mode: mode}
	if mode == "chart" {
		days := make([]DayChart, 0, 7)
		for i := 0; i < 7; i++ {
			key := from.AddDate(0, 0, i).Format(models.DateLayout)
			n := byDay[key]
			days = append(days, DayChart{
				Date: key,
				Percentages: map[string]float64{
					"calories":      pct(n.Calories, goal.Calories),
					"protein":       pct(n.Protein, goal.Protein),
					"carbohydrates": pct(n.Carbs, goal.Carbs),
					"fat":           pct(n.Fat, goal.Fat),
				},
			})
		}
		out.Days = days
		return out, nil
	}

	days := make([]DayDetailed, 0, 7)
	for i := 0; i < 7; i++ {
		key := from.AddDate(0, 0, i).Format(models.DateLayout)
		n := byDay[key]
		days = append(days, DayDetailed{
			Date: key,
			Metrics: map[string]Metric{
				"calories":  {Actual: round2(n.Calories), Target: round2(goal.Calories), Percent: pct(n.Calories, goal.Calories)},
				"protein_g": {Actual: round2(n.Protein), Target: round2(goal.Protein), Percent: pct(n.Protein, goal.Protein)},
				"carbs_g":   {Actual: round2(n.Carbs), Target: round2(goal.Carbs), Percent: pct(n.Carbs, goal.Carbs)},
				"fat_g":     {Actual: round2(n.Fat), Target: round2(goal.Fat), Percent: pct(n.Fat, goal.Fat)},
			},
		})
	}
	out.Days = days
	return out, nil
}

// ---------- Safety helpers ----------

// safetyBreakdown classifies logged items: unknown when nutrition could not be
// resolved, unsafe when any other warning was raised, safe otherwise.
func safetyBreakdown(entries []models.MealEntry) SafetyBreakdown {
	var br SafetyBreakdown
	for _, e := range entries {
		for _, it := range e.Items {
			br.Total++
			switch {
			case slices.Contains(it.Warnings, WarnNutritionUnavailable):
				br.Unknown++
			case len(it.Warnings) > 0:
				br.Unsafe++
			default:
				br.Safe++
			}
		}
	}
	return br
}

// unknownWeight in [0..1] (0=ignore unknowns, 1=treat as safe)
// alpha,beta are Beta prior params for smoothing small samples.
func computeSafetyScore(br SafetyBreakdown, unknownWeight, alpha, beta float64) float64 {
	safeEff := float64(br.Safe) + unknownWeight*float64(br.Unknown) + alpha
	totalEff := float64(br.Safe+br.Unsafe) + unknownWeight*float64(br.Unknown) + alpha + beta
	if totalEff <= 0 {
		return 100.0
	}
	return round2((safeEff / totalEff) * 100.0)
}

// ---------- internals ----------

func parseRange(fromStr, toStr string) (from, to time.Time, err error) {
	from, err = time.Parse(models.DateLayout, fromStr)
	if err != nil {
		return from, to, apperr.Validation("invalid from date %q", fromStr)
	}
	to, err = time.Parse(models.DateLayout, toStr)
	if err != nil {
		return from, to, apperr.Validation("invalid to date %q", toStr)
	}
	if to.Before(from) {
		return from, to, apperr.Validation("`to` must be on/after `from`")
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return from, to, apperr.Validation("range is limited to %d days", maxRangeDays)
	}
	return from, to, nil
}

func totalsByDay(entries []models.MealEntry) map[string]models.Nutrition {
	out := make(map[string]models.Nutrition)
	for _, e := range entries {
		out[e.Date] = out[e.Date].Add(e.TotalNutrition)
	}
	return out
}

// StartOfWeek returns the Monday of t's week at midnight.
func StartOfWeek(t time.Time) time.Time {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	tt := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return tt.AddDate(0, 0, -(wd - 1))
}

func pct(actual, goal float64) float64 {
	if goal <= 0 {
		if actual <= 0 {
			return 0
		}
		return 100
	}
	return round2((actual / goal) * 100.0)
}

func avg(sum float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	return round2(sum / float64(n))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
