package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"nutrilog/apperr"
	"nutrilog/config"
	"nutrilog/logging"
	"nutrilog/metrics"
	"nutrilog/models"
)

const (
	segmentationPath = "/v2/image/segmentation/complete"
	confirmDishPath  = "/v2/image/confirm/dish"
	nutritionPath    = "/v2/recipe/nutritionalInfo"

	noDishesMessage = "No dishes to confirm"
)

// LogMealService talks to the LogMeal food recognition API.
type LogMealService struct {
	baseURL string
	token   string
	topN    int
	client  *http.Client
}

func NewLogMealService(cfg config.LogMealConfig) *LogMealService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	topN := cfg.TopN
	if topN <= 0 {
		topN = 5
	}
	return &LogMealService{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		topN:    topN,
		client:  &http.Client{Timeout: timeout},
	}
}

// ---- segmentation ----

type SegmentationResult struct {
	ImageID int64                   `json:"imageId"`
	Regions []models.DetectedRegion `json:"segmentation_results"`
}

type lmDish struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Prob       float64  `json:"prob"`
	Subclasses []lmDish `json:"subclasses"`
}

type lmRegion struct {
	FoodItemPosition int          `json:"food_item_position"`
	Polygon          [][2]float64 `json:"polygon"`
	ContainedBBox    *struct {
		X int `json:"x"`
		Y int `json:"y"`
		W int `json:"w"`
		H int `json:"h"`
	} `json:"contained_bbox"`
	RecognitionResults []lmDish `json:"recognition_results"`
}

type lmSegmentationResponse struct {
	ImageID             *int64          `json:"imageId"`
	SegmentationResults json.RawMessage `json:"segmentation_results"`
}

// Segment uploads the image at imagePath and returns the detected regions.
func (s *LogMealService) Segment(ctx context.Context, imagePath string) (res *SegmentationResult, err error) {
	start := time.Now()
	defer func() { metrics.RecordVendorCall("logmeal", "segment", time.Since(start), err) }()

	body, contentType, err := multipartImage(imagePath)
	if err != nil {
		return nil, err
	}
	raw, err := s.do(ctx, http.MethodPost, segmentationPath, contentType, body)
	if err != nil {
		return nil, err
	}

	var sr lmSegmentationResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, apperr.Upstream("failed to parse segmentation response", string(raw), err)
	}
	if sr.ImageID == nil {
		return nil, apperr.Upstream("segmentation response has no imageId", string(raw), nil)
	}
	trimmed := bytes.TrimSpace(sr.SegmentationResults)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, apperr.Upstream("segmentation_results is not a list", string(raw), nil)
	}
	var regions []lmRegion
	if err := json.Unmarshal(trimmed, &regions); err != nil {
		return nil, apperr.Upstream("failed to parse segmentation_results", string(raw), err)
	}

	res = &SegmentationResult{ImageID: *sr.ImageID, Regions: make([]models.DetectedRegion, 0, len(regions))}
	for i, r := range regions {
		res.Regions = append(res.Regions, s.toRegion(i, r))
	}
	logging.Ctx(ctx).Debug().
		Int64("image_id", res.ImageID).
		Int("regions", len(res.Regions)).
		Msg("segmentation complete")
	return res, nil
}

func (s *LogMealService) toRegion(i int, r lmRegion) models.DetectedRegion {
	pos := r.FoodItemPosition
	if pos <= 0 {
		pos = i + 1
	}
	region := models.DetectedRegion{Position: pos, Candidates: []models.Candidate{}}
	if len(r.Polygon) > 0 {
		region.Geometry.Polygon = r.Polygon
	}
	if b := r.ContainedBBox; b != nil {
		region.Geometry.BBox = &models.BoundingBox{X: b.X, Y: b.Y, W: b.W, H: b.H}
	}
	for j, d := range r.RecognitionResults {
		if j >= s.topN {
			break
		}
		c := models.Candidate{DishID: d.ID, Name: d.Name, Confidence: d.Prob}
		for _, sc := range d.Subclasses {
			c.SubClasses = append(c.SubClasses, models.SubClass{DishID: sc.ID, Name: sc.Name, Confidence: sc.Prob})
		}
		region.Candidates = append(region.Candidates, c)
	}
	return region
}

func multipartImage(path string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, filepath.Base(path)))
	h.Set("Content-Type", contentTypeFor(path))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to copy image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return body, w.FormDataContentType(), nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// ---- confirmation ----

// ConfirmationPayload is the confirm/dish body. The three lists are parallel.
type ConfirmationPayload struct {
	ImageID          int64 `json:"imageId"`
	ConfirmedClass   []any `json:"confirmedClass"`
	Source           []any `json:"source"`
	FoodItemPosition []any `json:"food_item_position"`
}

// Validate requires matching list lengths when any list is non-empty.
func (p ConfirmationPayload) Validate() error {
	if p.ImageID <= 0 {
		return apperr.Validation("imageId is required")
	}
	n := len(p.ConfirmedClass)
	if len(p.Source) != n || len(p.FoodItemPosition) != n {
		return apperr.Validation(
			"confirmedClass, source and food_item_position must have matching lengths (got %d, %d, %d)",
			n, len(p.Source), len(p.FoodItemPosition),
		)
	}
	for i := range n {
		class, ok := p.ConfirmedClass[i].([]any)
		if !ok {
			continue
		}
		if src, ok := p.Source[i].([]any); ok && len(src) != len(class) {
			return apperr.Validation("source[%d] has %d tags for %d confirmedClass elements", i, len(src), len(class))
		}
	}
	return nil
}

func (p ConfirmationPayload) Empty() bool { return len(p.ConfirmedClass) == 0 }

type ConfirmationResult struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message,omitempty"`
	ImageID      int64           `json:"imageId,omitempty"`
	Confirmation json.RawMessage `json:"confirmation,omitempty"`
}

// BuildConfirmation turns selections into the parallel confirm lists.
// A sub-class selection is sent as [subId, subName, parentId, parentName]
// with four source tags; everything else as [dishId, name] with two.
func BuildConfirmation(imageID int64, selections []models.Selection) ConfirmationPayload {
	p := ConfirmationPayload{
		ImageID:          imageID,
		ConfirmedClass:   make([]any, 0, len(selections)),
		Source:           make([]any, 0, len(selections)),
		FoodItemPosition: make([]any, 0, len(selections)),
	}
	for _, sel := range selections {
		src := sel.Source
		if src == "" {
			src = models.SourceLogMeal
		}
		if sel.HasSubClass() {
			p.ConfirmedClass = append(p.ConfirmedClass, []any{*sel.SubClassID, sel.SubClassName, sel.DishID, sel.Name})
			p.Source = append(p.Source, []string{src, src, src, src})
		} else {
			p.ConfirmedClass = append(p.ConfirmedClass, []any{sel.DishID, sel.Name})
			p.Source = append(p.Source, []string{src, src})
		}
		p.FoodItemPosition = append(p.FoodItemPosition, sel.Position)
	}
	return p
}

// ConfirmSelections builds the payload from selections and confirms it.
func (s *LogMealService) ConfirmSelections(ctx context.Context, imageID int64, selections []models.Selection) (*ConfirmationResult, error) {
	return s.Confirm(ctx, BuildConfirmation(imageID, selections))
}

// Confirm submits the payload. An empty payload is answered locally.
func (s *LogMealService) Confirm(ctx context.Context, p ConfirmationPayload) (res *ConfirmationResult, err error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Empty() {
		return &ConfirmationResult{Success: true, Message: noDishesMessage, ImageID: p.ImageID}, nil
	}

	start := time.Now()
	defer func() { metrics.RecordVendorCall("logmeal", "confirm", time.Since(start), err) }()

	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal confirm payload: %w", err)
	}
	raw, err := s.do(ctx, http.MethodPost, confirmDishPath, "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, apperr.Upstream("confirm response is not JSON", string(raw), nil)
	}
	return &ConfirmationResult{Success: true, ImageID: p.ImageID, Confirmation: raw}, nil
}

// ---- nutrition ----

type NutritionResult struct {
	ImageID int64                  `json:"imageId"`
	Items   []models.ConfirmedItem `json:"items"`
	Totals  models.Nutrition       `json:"totals"`
	// PerItem is the vendor list as received.
	PerItem json.RawMessage `json:"nutritional_info_per_item"`
}

type lmNutrient struct {
	Label    string  `json:"label"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

type lmNutritionItem struct {
	FoodItemPosition int     `json:"food_item_position"`
	ServingSize      float64 `json:"serving_size"`
	NutritionalInfo  struct {
		Calories       float64               `json:"calories"`
		TotalNutrients map[string]lmNutrient `json:"totalNutrients"`
	} `json:"nutritional_info"`
}

// GetNutrition fetches the per-item breakdown for a confirmed image and sums it.
// A response without nutritional_info_per_item is rejected with status 400.
func (s *LogMealService) GetNutrition(ctx context.Context, imageID int64) (res *NutritionResult, err error) {
	if imageID <= 0 {
		return nil, apperr.Validation("imageId is required")
	}
	start := time.Now()
	defer func() { metrics.RecordVendorCall("logmeal", "nutrition", time.Since(start), err) }()

	b, err := json.Marshal(map[string]int64{"imageId": imageID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal nutrition payload: %w", err)
	}
	raw, err := s.do(ctx, http.MethodPost, nutritionPath, "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, apperr.Upstream("failed to parse nutrition response", string(raw), err)
	}
	perItem, ok := top["nutritional_info_per_item"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(perItem), []byte("[")) {
		e := apperr.Upstream("nutrition response lacks nutritional_info_per_item", string(raw), nil)
		e.Status = http.StatusBadRequest
		return nil, e
	}
	var items []lmNutritionItem
	if err := json.Unmarshal(perItem, &items); err != nil {
		return nil, apperr.Upstream("nutritional_info_per_item is not a list", string(raw), err)
	}
	var names []string
	if fn, ok := top["foodName"]; ok {
		if err := json.Unmarshal(fn, &names); err != nil {
			logging.Ctx(ctx).Debug().Err(err).Int64("image_id", imageID).Msg("ignoring malformed foodName")
		}
	}

	res = &NutritionResult{ImageID: imageID, PerItem: perItem, Items: make([]models.ConfirmedItem, 0, len(items))}
	for i, it := range items {
		ci := toConfirmedItem(imageID, i, it, names)
		res.Items = append(res.Items, ci)
		res.Totals = res.Totals.Add(ci.Nutrition)
	}
	return res, nil
}

func toConfirmedItem(imageID int64, i int, it lmNutritionItem, names []string) models.ConfirmedItem {
	pos := it.FoodItemPosition
	if pos <= 0 {
		pos = i + 1
	}
	name := fmt.Sprintf("item %d", pos)
	if i < len(names) && names[i] != "" {
		name = names[i]
	}
	tn := it.NutritionalInfo.TotalNutrients
	nutrients := make(map[string]float64, len(tn))
	for k, v := range tn {
		nutrients[k] = v.Quantity
	}
	return models.ConfirmedItem{
		ID:       fmt.Sprintf("logmeal-%d-%d", imageID, pos),
		Name:     name,
		Quantity: it.ServingSize,
		Unit:     "g",
		Nutrition: models.Nutrition{
			Calories: it.NutritionalInfo.Calories,
			Protein:  tn["PROCNT"].Quantity,
			Carbs:    tn["CHOCDF"].Quantity,
			Fat:      tn["FAT"].Quantity,
		},
		Nutrients: nutrients,
	}
}

// ---- transport ----

func (s *LogMealService) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create logmeal request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperr.Upstream("failed to call logmeal", "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream("failed to read logmeal response", "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logging.Ctx(ctx).Warn().
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("logmeal returned an error")
		return nil, apperr.Upstream(fmt.Sprintf("logmeal API error %d", resp.StatusCode), string(raw), nil)
	}
	return raw, nil
}
