package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"nutrilog/apperr"
	"nutrilog/config"
	"nutrilog/metrics"
	"nutrilog/models"
)

// TextGenerator returns a JSON document for a system instruction and prompt.
type TextGenerator interface {
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

// GeminiGenerator is a TextGenerator backed by the Gemini API.
type GeminiGenerator struct {
	APIKey string
	Model  string
}

func NewGeminiGenerator(cfg config.GeminiConfig) *GeminiGenerator {
	return &GeminiGenerator{APIKey: cfg.APIKey, Model: cfg.Model}
}

func (g *GeminiGenerator) GenerateJSON(ctx context.Context, system, prompt string) (out string, err error) {
	if g.APIKey == "" {
		return "", errors.New("GEMINI_API_KEY is empty")
	}
	start := time.Now()
	defer func() { metrics.RecordVendorCall("gemini", "generate", time.Since(start), err) }()

	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(strings.TrimSpace(g.Model))
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0.4),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	txt := firstText(resp)
	if txt == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return txt, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }

// StripCodeFences removes a ```json fence around model output.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

type MealPlanService struct {
	gen TextGenerator
}

func NewMealPlanService(gen TextGenerator) *MealPlanService {
	return &MealPlanService{gen: gen}
}

type MealPlanRequest struct {
	Targets     models.Targets `json:"targets"`
	Days        int            `json:"days" binding:"omitempty,min=1,max=7"`
	Preferences string         `json:"preferences" binding:"max=500"`
	Exclusions  []string       `json:"exclusions" binding:"max=20,dive,max=60"`
}

type SuggestRequest struct {
	Remaining   models.Nutrition `json:"remaining"`
	MealType    string           `json:"mealType" binding:"omitempty,mealtype"`
	Preferences string           `json:"preferences" binding:"max=500"`
	Count       int              `json:"count" binding:"omitempty,min=1,max=10"`
}

const planSystem = `You are a nutrition planner. Build meal plans that hit the given daily targets within 10%.
Use common whole foods with gram quantities. Meal types are breakfast, lunch, dinner and snacks.
Return only JSON of the form:
{"days":[{"day":1,"meals":[{"mealType":"breakfast","items":[{"name":"oats","quantity":80,"unit":"g","calories":300,"protein":10,"carbs":54,"fat":5}]}]}]}`

const suggestSystem = `You suggest foods that fit a remaining macro budget for the rest of the day.
Return only JSON of the form:
{"suggestions":[{"name":"greek yogurt","quantity":170,"unit":"g","calories":100,"protein":17,"carbs":6,"fat":0.7,"reason":"high protein"}]}`

// GeneratePlan asks the generator for a plan and validates its shape.
// Meal and day totals are recomputed from the items.
func (s *MealPlanService) GeneratePlan(ctx context.Context, req MealPlanRequest) (*models.MealPlan, error) {
	if req.Targets.Calories <= 0 {
		return nil, apperr.Validation("targets.calories must be positive")
	}
	days := req.Days
	if days == 0 {
		days = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plan %d day(s). Daily targets: %.0f kcal, %.0f g protein, %.0f g carbs, %.0f g fat.",
		days, req.Targets.Calories, req.Targets.Protein, req.Targets.Carbs, req.Targets.Fat)
	if p := strings.TrimSpace(req.Preferences); p != "" {
		fmt.Fprintf(&b, " Preferences: %q.", p)
	}
	if len(req.Exclusions) > 0 {
		fmt.Fprintf(&b, " Never use: %s.", strings.Join(req.Exclusions, ", "))
	}

	txt, err := s.gen.GenerateJSON(ctx, planSystem, b.String())
	if err != nil {
		return nil, apperr.Upstream("meal plan generation failed", "", err)
	}
	txt = StripCodeFences(txt)

	var plan models.MealPlan
	if err := json.Unmarshal([]byte(txt), &plan); err != nil {
		return nil, apperr.Upstream("meal plan is not valid JSON", txt, err)
	}
	if err := validatePlan(&plan, days); err != nil {
		return nil, apperr.Upstream("meal plan has an unexpected shape", txt, err)
	}
	return &plan, nil
}

func validatePlan(plan *models.MealPlan, days int) error {
	if len(plan.Days) == 0 {
		return errors.New("no days")
	}
	if len(plan.Days) < days {
		return fmt.Errorf("got %d of %d days", len(plan.Days), days)
	}
	if len(plan.Days) > days {
		plan.Days = plan.Days[:days]
	}
	for di := range plan.Days {
		d := &plan.Days[di]
		if d.Day == 0 {
			d.Day = di + 1
		}
		if len(d.Meals) == 0 {
			return fmt.Errorf("day %d has no meals", d.Day)
		}
		d.Total = models.Nutrition{}
		for mi := range d.Meals {
			m := &d.Meals[mi]
			mt, err := models.ParseMealType(string(m.MealType))
			if err != nil {
				return fmt.Errorf("day %d: %w", d.Day, err)
			}
			m.MealType = mt
			if len(m.Items) == 0 {
				return fmt.Errorf("day %d %s has no items", d.Day, mt)
			}
			m.Total = models.Nutrition{}
			for _, it := range m.Items {
				if err := checkFood(it.Name, it.Quantity, it.Nutrition); err != nil {
					return fmt.Errorf("day %d %s: %w", d.Day, mt, err)
				}
				m.Total = m.Total.Add(it.Nutrition)
			}
			d.Total = d.Total.Add(m.Total)
		}
	}
	return nil
}

func checkFood(name string, quantity float64, n models.Nutrition) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("item without a name")
	}
	if quantity <= 0 {
		return fmt.Errorf("%s: quantity must be positive", name)
	}
	if n.Calories < 0 || n.Protein < 0 || n.Carbs < 0 || n.Fat < 0 {
		return fmt.Errorf("%s: negative nutrition", name)
	}
	return nil
}

// SuggestFoods asks for foods that fit the remaining budget.
func (s *MealPlanService) SuggestFoods(ctx context.Context, req SuggestRequest) ([]models.FoodSuggestion, error) {
	count := req.Count
	if count == 0 {
		count = 5
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest %d foods. Remaining today: %.0f kcal, %.0f g protein, %.0f g carbs, %.0f g fat.",
		count, req.Remaining.Calories, req.Remaining.Protein, req.Remaining.Carbs, req.Remaining.Fat)
	if req.MealType != "" {
		fmt.Fprintf(&b, " The next meal is %s.", strings.ToLower(req.MealType))
	}
	if p := strings.TrimSpace(req.Preferences); p != "" {
		fmt.Fprintf(&b, " Preferences: %q.", p)
	}

	txt, err := s.gen.GenerateJSON(ctx, suggestSystem, b.String())
	if err != nil {
		return nil, apperr.Upstream("food suggestion failed", "", err)
	}
	txt = StripCodeFences(txt)

	var out struct {
		Suggestions []models.FoodSuggestion `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(txt), &out); err != nil {
		return nil, apperr.Upstream("suggestions are not valid JSON", txt, err)
	}
	if len(out.Suggestions) == 0 {
		return nil, apperr.Upstream("no suggestions returned", txt, nil)
	}
	if len(out.Suggestions) > count {
		out.Suggestions = out.Suggestions[:count]
	}
	for _, sg := range out.Suggestions {
		if err := checkFood(sg.Name, sg.Quantity, sg.Nutrition); err != nil {
			return nil, apperr.Upstream("suggestions have an unexpected shape", txt, err)
		}
	}
	return out.Suggestions, nil
}
