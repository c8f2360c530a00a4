package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"nutrilog/apperr"
	"nutrilog/config"
	"nutrilog/metrics"
	"nutrilog/models"
	"nutrilog/utils"
)

// NutritionLookup resolves nutrition for a named food and amount.
type NutritionLookup interface {
	NutritionFor(ctx context.Context, name string, quantity float64, unit string) (models.Nutrition, map[string]float64, error)
}

// ErrNoMatch is returned when the food database has nothing for a query.
var ErrNoMatch = errors.New("no matching food")

type EdamamService struct {
	baseURL       string
	appID, appKey string
	client        *http.Client
}

func NewEdamamService(cfg config.EdamamConfig) *EdamamService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EdamamService{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		appID:   cfg.AppID,
		appKey:  cfg.AppKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type edamamFood struct {
	FoodID    string             `json:"foodId"`
	Label     string             `json:"label"`
	Category  string             `json:"category"`
	Nutrients map[string]float64 `json:"nutrients"`
}

type foodParserResponse struct {
	Parsed []struct {
		Food edamamFood `json:"food"`
	} `json:"parsed"`
	Hints []struct {
		Food edamamFood `json:"food"`
	} `json:"hints"`
}

func (f edamamFood) hint() models.FoodHint {
	return models.FoodHint{
		FoodID:   f.FoodID,
		Label:    f.Label,
		Category: f.Category,
		Per100g: models.Nutrition{
			Calories: f.Nutrients["ENERC_KCAL"],
			Protein:  f.Nutrients["PROCNT"],
			Carbs:    f.Nutrients["CHOCDF"],
			Fat:      f.Nutrients["FAT"],
		},
	}
}

// Search calls the Edamam Food Database parser endpoint.
func (s *EdamamService) Search(ctx context.Context, query string) ([]models.FoodHint, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("query is required")
	}
	pr, err := s.parse(ctx, "search", query)
	if err != nil {
		return nil, err
	}
	results := make([]models.FoodHint, 0, len(pr.Hints))
	seen := make(map[string]bool, len(pr.Hints))
	for _, h := range pr.Hints {
		if seen[h.Food.FoodID] {
			continue
		}
		seen[h.Food.FoodID] = true
		results = append(results, h.Food.hint())
	}
	return results, nil
}

// NutritionFor scales the best parser match (per 100 g) to the given amount.
// Units without a fixed weight are rejected.
func (s *EdamamService) NutritionFor(ctx context.Context, name string, quantity float64, unit string) (models.Nutrition, map[string]float64, error) {
	grams, ok := utils.ToGrams(quantity, unit)
	if !ok {
		return models.Nutrition{}, nil, fmt.Errorf("unsupported unit %q for %s", unit, name)
	}
	pr, err := s.parse(ctx, "lookup", name)
	if err != nil {
		return models.Nutrition{}, nil, err
	}

	var food *edamamFood
	switch {
	case len(pr.Parsed) > 0:
		food = &pr.Parsed[0].Food
	case len(pr.Hints) > 0:
		food = &pr.Hints[0].Food
	default:
		return models.Nutrition{}, nil, fmt.Errorf("%w: %s", ErrNoMatch, name)
	}

	k := grams / 100
	scaled := make(map[string]float64, len(food.Nutrients))
	for key, v := range food.Nutrients {
		scaled[key] = v * k
	}
	return food.hint().Scale(grams), scaled, nil
}

func (s *EdamamService) parse(ctx context.Context, op, ingr string) (pr *foodParserResponse, err error) {
	start := time.Now()
	defer func() { metrics.RecordVendorCall("edamam", op, time.Since(start), err) }()

	q := url.Values{}
	q.Set("ingr", ingr)
	q.Set("app_id", s.appID)
	q.Set("app_key", s.appKey)
	u := s.baseURL + "/api/food-database/v2/parser?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Edamam request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.Upstream("failed to call Edamam parser", "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream("failed to read Edamam parser response", "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Upstream(fmt.Sprintf("edamam parser API error %d", resp.StatusCode), string(body), nil)
	}

	pr = &foodParserResponse{}
	if err := json.Unmarshal(body, pr); err != nil {
		return nil, apperr.Upstream("failed to parse Edamam parser JSON", string(body), err)
	}
	return pr, nil
}
