package controllers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"nutrilog/config"
	"nutrilog/middlewares"
	"nutrilog/models"
	"nutrilog/services"
	"nutrilog/store"
	"nutrilog/utils"
)

var testSecret = []byte("controllers-test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

// fakeVendor stands in for the vision API. Each handler may be swapped per test.
type fakeVendor struct {
	mu        sync.Mutex
	calls     map[string]int
	bodies    map[string][]byte
	segment   http.HandlerFunc
	confirm   http.HandlerFunc
	nutrition http.HandlerFunc
}

func (f *fakeVendor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))
	f.mu.Lock()
	f.calls[r.URL.Path]++
	f.bodies[r.URL.Path] = body
	f.mu.Unlock()

	var h http.HandlerFunc
	switch r.URL.Path {
	case "/v2/image/segmentation/complete":
		h = f.segment
	case "/v2/image/confirm/dish":
		h = f.confirm
	case "/v2/recipe/nutritionalInfo":
		h = f.nutrition
	}
	if h == nil {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (f *fakeVendor) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeVendor) body(path string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[path]
}

func respondWith(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

type countingLookup struct{ calls int32 }

func (l *countingLookup) NutritionFor(_ context.Context, name string, _ float64, _ string) (models.Nutrition, map[string]float64, error) {
	atomic.AddInt32(&l.calls, 1)
	return models.Nutrition{}, nil, errors.New("no lookup in this test: " + name)
}

// ---------------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------------

type harness struct {
	router    *gin.Engine
	vendor    *fakeVendor
	store     *store.MemoryStore
	lookup    *countingLookup
	uploadDir string
	token     string
}

func newHarness(t *testing.T, policy string) *harness {
	t.Helper()
	RegisterValidators()

	v := &fakeVendor{calls: map[string]int{}, bodies: map[string][]byte{}}
	srv := httptest.NewServer(v)
	t.Cleanup(srv.Close)

	h := &harness{
		vendor:    v,
		store:     store.NewMemoryStore(),
		lookup:    &countingLookup{},
		uploadDir: t.TempDir(),
	}

	vision := services.NewLogMealService(config.LogMealConfig{BaseURL: srv.URL, Token: "tok", Timeout: 5 * time.Second, TopN: 5})
	mc := NewMealController(vision, nil, utils.UploadPolicy{Dir: h.uploadDir, MaxBytes: 1 << 20})
	dc := NewDiaryController(services.NewMealService(h.store, h.lookup, nil, policy))
	dc.now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }

	r := gin.New()
	r.POST("/dev/token", NewDevController(testSecret).Token)
	r.POST("/targets", ComputeTargets)
	api := r.Group("/", middlewares.AuthMiddleware(testSecret))
	api.POST("/meals/segment", mc.Segment)
	api.POST("/meals/confirm", mc.Confirm)
	api.POST("/meals/nutrition", mc.Nutrition)
	api.POST("/diary/meals", dc.AddMeal)
	api.GET("/diary/meals", dc.ListMeals)
	api.GET("/diary/meals/:id", dc.GetMeal)
	api.DELETE("/diary/meals/:id", dc.DeleteMeal)
	api.DELETE("/diary/meals/:id/items/:itemId", dc.RemoveItem)
	api.GET("/diary/summary", dc.Summary)
	api.POST("/diary/progress", dc.Progress)
	ac := NewAnalyticsController(services.NewAnalyticsService(h.store))
	api.POST("/analytics/summary", ac.Summary)
	api.POST("/analytics/weekly", ac.WeeklyOverview)
	h.router = r

	tok, err := utils.GenerateJWT(testSecret, "user-1", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	h.token = tok
	return h
}

func (h *harness) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) doJSON(t *testing.T, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(b)
	}
	return h.do(t, method, path, body, "application/json")
}

func (h *harness) upload(t *testing.T, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(data)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return h.do(t, http.MethodPost, "/meals/segment", &buf, mw.FormDataContentType())
}

func (h *harness) uploadsLeft(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.uploadDir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

const plateSegmentation = `{
  "imageId": 99,
  "segmentation_results": [{
    "food_item_position": 1,
    "contained_bbox": {"x": 5, "y": 5, "w": 200, "h": 150},
    "recognition_results": [
      {"id": 1, "name": "rice", "prob": 0.9},
      {"id": 2, "name": "noodles", "prob": 0.4}
    ]
  }]
}`

const plateNutrition = `{
  "foodName": ["rice"],
  "nutritional_info_per_item": [{
    "food_item_position": 1,
    "serving_size": 150,
    "nutritional_info": {"calories": 200, "totalNutrients": {
      "PROCNT": {"label": "Protein", "quantity": 4, "unit": "g"},
      "CHOCDF": {"label": "Carbohydrates", "quantity": 45, "unit": "g"},
      "FAT": {"label": "Fat", "quantity": 1, "unit": "g"}
    }}
  }]
}`

// ---------------------------------------------------------------------------
// segmentation
// ---------------------------------------------------------------------------

func TestSegment_RemovesUploadOnEveryPath(t *testing.T) {
	tests := []struct {
		name   string
		vendor http.HandlerFunc
		status int
	}{
		{"success", respondWith(http.StatusOK, plateSegmentation), http.StatusOK},
		{"vendor error", respondWith(http.StatusInternalServerError, `{"message":"boom"}`), http.StatusBadGateway},
		{"malformed response", respondWith(http.StatusOK, `{"imageId": 1, "segmentation_results": {}}`), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, config.AppendToExistingMealEntry)
			var sawFile atomic.Bool
			h.vendor.segment = func(w http.ResponseWriter, r *http.Request) {
				if _, _, err := r.FormFile("image"); err == nil {
					sawFile.Store(true)
				}
				// the upload must still exist while the vendor is working
				if len(h.uploadsLeft(t)) != 1 {
					t.Error("upload missing during segmentation")
				}
				tt.vendor(w, r)
			}

			w := h.upload(t, "plate.jpg", "image/jpeg", []byte("\xff\xd8\xff plate"))
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if !sawFile.Load() {
				t.Error("vendor did not receive the image part")
			}
			if left := h.uploadsLeft(t); len(left) != 0 {
				t.Errorf("temp files left behind: %v", left)
			}
		})
	}
}

func TestSegment_Response(t *testing.T) {
	h := newHarness(t, config.AppendToExistingMealEntry)
	h.vendor.segment = respondWith(http.StatusOK, plateSegmentation)

	w := h.upload(t, "plate.jpg", "image/jpeg", []byte("jpeg"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	res := decode[services.SegmentationResult](t, w)
	if res.ImageID != 99 || len(res.Regions) != 1 {
		t.Fatalf("result = %+v", res)
	}
	r := res.Regions[0]
	if r.Position != 1 || r.Geometry.BBox == nil || len(r.Candidates) != 2 || r.Candidates[0].Name != "rice" {
		t.Errorf("region = %+v", r)
	}
}

func TestSegment_RejectsBadUploads(t *testing.T) {
	h := newHarness(t, config.AppendToExistingMealEntry)
	h.vendor.segment = respondWith(http.StatusOK, plateSegmentation)

	t.Run("missing file", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/meals/segment", strings.NewReader(""), "multipart/form-data; boundary=x")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})
	t.Run("not an image", func(t *testing.T) {
		w := h.upload(t, "notes.txt", "text/plain", []byte("hello"))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
		if b := decode[errorBody](t, w); b.Error != "validation_error" {
			t.Errorf("body = %+v", b)
		}
	})
	t.Run("too large", func(t *testing.T) {
		w := h.upload(t, "big.jpg", "image/jpeg", bytes.Repeat([]byte{0xff}, 1<<20+1))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})

	if n := h.vendor.total(); n != 0 {
		t.Errorf("vendor called %d times for rejected uploads", n)
	}
	if left := h.uploadsLeft(t); len(left) != 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}

// ---------------------------------------------------------------------------
// confirmation
// ---------------------------------------------------------------------------

func TestConfirm_EmptyShortCircuits(t *testing.T) {
	bodies := []map[string]any{
		{"imageId": 7, "selections": []any{}},
		{"imageId": 7, "confirmedClass": []any{}, "source": []any{}, "food_item_position": []any{}},
		{"imageId": 7},
	}
	for i, body := range bodies {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			h := newHarness(t, config.AppendToExistingMealEntry)
			w := h.doJSON(t, http.MethodPost, "/meals/confirm", body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", w.Code, w.Body.String())
			}
			res := decode[services.ConfirmationResult](t, w)
			if !res.Success || res.Message != "No dishes to confirm" {
				t.Errorf("result = %+v", res)
			}
			if n := h.vendor.total(); n != 0 {
				t.Errorf("vendor called %d times", n)
			}
		})
	}
}

func TestConfirm_SubClassPickSendsFourElements(t *testing.T) {
	h := newHarness(t, config.AppendToExistingMealEntry)
	h.vendor.confirm = respondWith(http.StatusOK, `{"imageId": 5, "recognition_results": []}`)

	sub := 0
	w := h.doJSON(t, http.MethodPost, "/meals/confirm", map[string]any{
		"imageId": 5,
		"regions": []models.DetectedRegion{
			{Position: 1, Candidates: []models.Candidate{{DishID: 1, Name: "rice", SubClasses: []models.SubClass{{DishID: 11, Name: "basmati rice"}}}}},
			{Position: 2, Candidates: []models.Candidate{{DishID: 3, Name: "salad"}}},
		},
		"picks": []services.SelectionRequest{
			{Position: 2, CandidateIndex: 0},
			{Position: 1, CandidateIndex: 0, SubClassIndex: &sub},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var sent struct {
		ImageID          int64      `json:"imageId"`
		ConfirmedClass   [][]any    `json:"confirmedClass"`
		Source           [][]string `json:"source"`
		FoodItemPosition []int      `json:"food_item_position"`
	}
	if err := json.Unmarshal(h.vendor.body("/v2/image/confirm/dish"), &sent); err != nil {
		t.Fatal(err)
	}
	if len(sent.ConfirmedClass) != 2 || len(sent.ConfirmedClass[0]) != 4 || len(sent.ConfirmedClass[1]) != 2 {
		t.Fatalf("confirmedClass = %v", sent.ConfirmedClass)
	}
	if fmt.Sprint(sent.ConfirmedClass[0]) != "[11 basmati rice 1 rice]" {
		t.Errorf("sub-class entry = %v", sent.ConfirmedClass[0])
	}
	if len(sent.Source[0]) != 4 || len(sent.Source[1]) != 2 || sent.Source[1][0] != "logmeal" {
		t.Errorf("source = %v", sent.Source)
	}
	if fmt.Sprint(sent.FoodItemPosition) != "[1 2]" {
		t.Errorf("positions = %v", sent.FoodItemPosition)
	}
}

func TestConfirm_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing imageId", map[string]any{"selections": []any{}}},
		{"length mismatch", map[string]any{
			"imageId":            5,
			"confirmedClass":     []any{[]any{1, "rice"}},
			"source":             []any{},
			"food_item_position": []any{1},
		}},
		{"pick out of range", map[string]any{
			"imageId": 5,
			"regions": []models.DetectedRegion{{Position: 1, Candidates: []models.Candidate{{DishID: 1, Name: "rice"}}}},
			"picks":   []map[string]any{{"position": 1, "candidateIndex": 3}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, config.AppendToExistingMealEntry)
			w := h.doJSON(t, http.MethodPost, "/meals/confirm", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d: %s", w.Code, w.Body.String())
			}
			if n := h.vendor.total(); n != 0 {
				t.Errorf("vendor called %d times", n)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// nutrition
// ---------------------------------------------------------------------------

func TestNutrition_MissingPerItemIs400(t *testing.T) {
	h := newHarness(t, config.AppendToExistingMealEntry)
	h.vendor.nutrition = respondWith(http.StatusOK, `{"foodName": ["rice"]}`)

	w := h.doJSON(t, http.MethodPost, "/meals/nutrition", map[string]any{"imageId": 99})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	b := decode[errorBody](t, w)
	if b.Error != "upstream_error" || b.Detail != `{"foodName": ["rice"]}` {
		t.Errorf("body = %+v", b)
	}
}

func TestNutrition_VendorErrorCarriesBody(t *testing.T) {
	h := newHarness(t, config.AppendToExistingMealEntry)
	h.vendor.nutrition = respondWith(http.StatusUnauthorized, `{"message":"invalid token"}`)

	w := h.doJSON(t, http.MethodPost, "/meals/nutrition", map[string]any{"imageId": 99})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
	b := decode[errorBody](t, w)
	if !strings.Contains(b.Message, "401") || b.Detail != `{"message":"invalid token"}` {
		t.Errorf("body = %+v", b)
	}
}

// ---------------------------------------------------------------------------
// diary
// ---------------------------------------------------------------------------

func TestAddMeal_QuantityCoercion(t *testing.T) {
	tests := []struct {
		name     string
		quantity any
		status   int
		want     float64
	}{
		{"suffixed string", "125.000g", http.StatusCreated, 125},
		{"number", 80, http.StatusCreated, 80},
		{"zero", 0, http.StatusBadRequest, 0},
		{"not a number", "abc", http.StatusBadRequest, 0},
		{"negative", "-5g", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, config.AppendToExistingMealEntry)
			w := h.doJSON(t, http.MethodPost, "/diary/meals", map[string]any{
				"date":     "2026-10-16",
				"mealType": "lunch",
				"items": []map[string]any{
					{"name": "rice", "quantity": tt.quantity, "calories": 100, "protein": 2, "carbs": 22, "fat": 0.2},
				},
			})
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.status != http.StatusCreated {
				if b := decode[errorBody](t, w); b.Error != "validation_error" {
					t.Errorf("body = %+v", b)
				}
				return
			}
			e := decode[models.MealEntry](t, w)
			if e.Items[0].Quantity != tt.want {
				t.Errorf("quantity = %v, want %v", e.Items[0].Quantity, tt.want)
			}
		})
	}
}

func TestAddMeal_Validation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad meal type", map[string]any{"mealType": "brunch", "items": []map[string]any{{"name": "egg", "quantity": 1}}}},
		{"bad date", map[string]any{"date": "16/10/2026", "mealType": "lunch", "items": []map[string]any{{"name": "egg", "quantity": 1}}}},
		{"no items", map[string]any{"mealType": "lunch", "items": []map[string]any{}}},
		{"no name", map[string]any{"mealType": "lunch", "items": []map[string]any{{"quantity": 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, config.AppendToExistingMealEntry)
			if w := h.doJSON(t, http.MethodPost, "/diary/meals", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestAddMeal_Policies(t *testing.T) {
	item := map[string]any{"name": "apple", "quantity": "150g", "calories": 78, "protein": 0.4, "carbs": 21, "fat": 0.3}
	body := map[string]any{"date": "2026-10-16", "mealType": "Snacks", "items": []any{item}}

	t.Run("append", func(t *testing.T) {
		h := newHarness(t, config.AppendToExistingMealEntry)
		first := h.doJSON(t, http.MethodPost, "/diary/meals", body)
		second := h.doJSON(t, http.MethodPost, "/diary/meals", body)
		if first.Code != http.StatusCreated || second.Code != http.StatusOK {
			t.Fatalf("codes = %d, %d", first.Code, second.Code)
		}
		e := decode[models.MealEntry](t, second)
		if len(e.Items) != 2 || e.TotalNutrition.Calories != 156 || e.MealType != models.Snacks {
			t.Errorf("entry = %+v", e)
		}
	})
	t.Run("always new", func(t *testing.T) {
		h := newHarness(t, config.AlwaysCreateNew)
		for i := 0; i < 2; i++ {
			if w := h.doJSON(t, http.MethodPost, "/diary/meals", body); w.Code != http.StatusCreated {
				t.Fatalf("write %d status = %d", i, w.Code)
			}
		}
		w := h.do(t, http.MethodGet, "/diary/meals?from=2026-10-16", nil, "")
		if got := decode[[]models.MealEntry](t, w); len(got) != 2 {
			t.Errorf("entries = %d, want 2", len(got))
		}
	})
}

func TestDiary_EntryLifecycle(t *testing.T) {
	h := newHarness(t, config.AppendToExistingMealEntry)
	w := h.doJSON(t, http.MethodPost, "/diary/meals", map[string]any{
		"mealType": "dinner",
		"items": []map[string]any{
			{"id": "a", "name": "salmon", "quantity": 120, "calories": 250, "protein": 25, "carbs": 0, "fat": 16},
			{"id": "b", "name": "rice", "quantity": 150, "calories": 195, "protein": 4, "carbs": 42, "fat": 0.5},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	e := decode[models.MealEntry](t, w)
	if e.Date != "2026-10-16" {
		t.Errorf("date should default to today, got %s", e.Date)
	}

	w = h.do(t, http.MethodGet, "/diary/summary?date=2026-10-16", nil, "")
	sum := decode[models.DailySummary](t, w)
	if sum.Total.Calories != 445 || sum.ByMealType[models.Dinner].Protein != 29 || len(sum.ByMealType) != 4 {
		t.Errorf("summary = %+v", sum)
	}

	w = h.do(t, http.MethodDelete, "/diary/meals/"+e.ID+"/items/a", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("remove first item status = %d", w.Code)
	}
	if got := decode[models.MealEntry](t, w); len(got.Items) != 1 || got.TotalNutrition.Calories != 195 {
		t.Errorf("after removal = %+v", got)
	}

	if w = h.do(t, http.MethodDelete, "/diary/meals/"+e.ID+"/items/missing", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown item status = %d", w.Code)
	}
	if w = h.do(t, http.MethodDelete, "/diary/meals/"+e.ID+"/items/b", nil, ""); w.Code != http.StatusNoContent {
		t.Errorf("remove last item status = %d", w.Code)
	}
	if w = h.do(t, http.MethodGet, "/diary/meals/"+e.ID, nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("entry should be gone, status = %d", w.Code)
	}
	if w = h.do(t, http.MethodDelete, "/diary/meals/"+e.ID, nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d", w.Code)
	}
}

func TestDiary_OtherUsersEntriesAreHidden(t *testing.T) {
	h := newHarness(t, config.AppendToExistingMealEntry)
	w := h.doJSON(t, http.MethodPost, "/diary/meals", map[string]any{
		"mealType": "lunch",
		"items":    []map[string]any{{"name": "egg", "quantity": 50, "calories": 70}},
	})
	e := decode[models.MealEntry](t, w)

	other, err := utils.GenerateJWT(testSecret, "user-2", "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	h.token = other
	if w = h.do(t, http.MethodGet, "/diary/meals/"+e.ID, nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
	if w = h.do(t, http.MethodDelete, "/diary/meals/"+e.ID, nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestDiary_Progress(t *testing.T) {
	h := newHarness(t, config.AppendToExistingMealEntry)
	h.doJSON(t, http.MethodPost, "/diary/meals", map[string]any{
		"mealType": "breakfast",
		"items":    []map[string]any{{"name": "oats", "quantity": 80, "calories": 300, "protein": 10, "carbs": 54, "fat": 5}},
	})

	profile := map[string]any{"weightKg": 70, "heightCm": 175, "age": 30, "sex": "male", "activityLevel": "moderate"}
	w := h.doJSON(t, http.MethodPost, "/diary/progress", map[string]any{"profile": profile})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	p := decode[models.DailyProgress](t, w)
	cal := p.Progress["calories"]
	if cal.Consumed != 300 || cal.Goal <= 0 || cal.Percent <= 0 || cal.Percent > 1 {
		t.Errorf("calories progress = %+v", cal)
	}

	profile["sex"] = "other"
	if w = h.doJSON(t, http.MethodPost, "/diary/progress", map[string]any{"profile": profile}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid profile status = %d", w.Code)
	}
}

func TestAnalytics(t *testing.T) {
	h := newHarness(t, config.AppendToExistingMealEntry)
	h.doJSON(t, http.MethodPost, "/diary/meals", map[string]any{
		"date":     "2026-10-13",
		"mealType": "lunch",
		"items":    []map[string]any{{"name": "pasta", "quantity": 200, "calories": 1000, "protein": 30, "carbs": 150, "fat": 20}},
	})

	w := h.doJSON(t, http.MethodPost, "/analytics/summary", map[string]any{
		"from": "2026-10-12", "to": "2026-10-13", "includeMissingDays": true,
		"targets": map[string]any{"calories": 2000},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("summary status = %d: %s", w.Code, w.Body.String())
	}
	sum := decode[services.AnalyticsSummary](t, w)
	if c := sum.Macros["calories"]; c.AvgConsumed != 500 || c.AvgPercent != 25 {
		t.Errorf("calories = %+v", c)
	}

	w = h.doJSON(t, http.MethodPost, "/analytics/weekly", map[string]any{"weekStart": "2026-10-15", "mode": "chart"})
	if w.Code != http.StatusOK {
		t.Fatalf("weekly status = %d: %s", w.Code, w.Body.String())
	}
	var weekly struct {
		WeekStart string              `json:"week_start"`
		Days      []services.DayChart `json:"days"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &weekly); err != nil {
		t.Fatal(err)
	}
	if weekly.WeekStart != "2026-10-12" || len(weekly.Days) != 7 || weekly.Days[1].Percentages["calories"] != 100 {
		t.Errorf("weekly = %+v", weekly)
	}

	if w = h.doJSON(t, http.MethodPost, "/analytics/summary", map[string]any{"from": "2026-10-12"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing to status = %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// full photo flow
// ---------------------------------------------------------------------------

func TestPhotoToDiary_EndToEnd(t *testing.T) {
	h := newHarness(t, config.AppendToExistingMealEntry)
	h.vendor.segment = respondWith(http.StatusOK, plateSegmentation)
	h.vendor.confirm = respondWith(http.StatusOK, `{"imageId": 99}`)
	h.vendor.nutrition = respondWith(http.StatusOK, plateNutrition)

	// 1. upload plate.jpg
	w := h.upload(t, "plate.jpg", "image/jpeg", []byte("\xff\xd8\xff plate"))
	if w.Code != http.StatusOK {
		t.Fatalf("segment: %d %s", w.Code, w.Body.String())
	}
	seg := decode[services.SegmentationResult](t, w)

	// 2. pick rice (dishId 1) and confirm
	w = h.doJSON(t, http.MethodPost, "/meals/confirm", map[string]any{
		"imageId": seg.ImageID,
		"regions": seg.Regions,
		"picks":   []map[string]any{{"position": 1, "candidateIndex": 0}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", w.Code, w.Body.String())
	}
	var sent map[string]any
	if err := json.Unmarshal(h.vendor.body("/v2/image/confirm/dish"), &sent); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(sent["confirmedClass"]) != "[[1 rice]]" {
		t.Errorf("confirmedClass = %v", sent["confirmedClass"])
	}

	// 3. nutrition
	w = h.doJSON(t, http.MethodPost, "/meals/nutrition", map[string]any{"imageId": seg.ImageID})
	if w.Code != http.StatusOK {
		t.Fatalf("nutrition: %d %s", w.Code, w.Body.String())
	}
	var nut struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &nut); err != nil {
		t.Fatal(err)
	}

	// 4. persist what the vendor returned
	w = h.doJSON(t, http.MethodPost, "/diary/meals", map[string]any{
		"date":     "2026-10-16",
		"mealType": "lunch",
		"source":   models.SourceLogMeal,
		"items":    nut.Items,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("persist: %d %s", w.Code, w.Body.String())
	}
	created := decode[models.MealEntry](t, w)

	stored, err := h.store.GetMealEntry(t.Context(), "user-1", created.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := models.Nutrition{Calories: 200, Protein: 4, Carbs: 45, Fat: 1}
	if got := stored.Items[0].Nutrition; got != want {
		t.Errorf("persisted nutrition = %+v, want %+v", got, want)
	}
	if stored.Items[0].Name != "rice" || stored.Source != models.SourceLogMeal {
		t.Errorf("stored = %+v", stored)
	}
	if n := atomic.LoadInt32(&h.lookup.calls); n != 0 {
		t.Errorf("lookup called %d times for vendor-provided nutrition", n)
	}
	if left := h.uploadsLeft(t); len(left) != 0 {
		t.Errorf("temp files left behind: %v", left)
	}
}

// ---------------------------------------------------------------------------
// misc handlers
// ---------------------------------------------------------------------------

func TestComputeTargets(t *testing.T) {
	h := newHarness(t, config.AppendToExistingMealEntry)
	w := h.doJSON(t, http.MethodPost, "/targets", map[string]any{
		"weightKg": 70, "heightCm": 175, "age": 30, "sex": "male", "activityLevel": "sedentary", "goal": "lose",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		BMI     float64        `json:"bmi"`
		Targets models.Targets `json:"targets"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.BMI < 22 || out.BMI > 23 || out.Targets.Calories <= 0 || out.Targets.Calories >= out.Targets.TDEE {
		t.Errorf("out = %+v", out)
	}

	if w = h.doJSON(t, http.MethodPost, "/targets", map[string]any{"weightKg": 70}); w.Code != http.StatusBadRequest {
		t.Errorf("incomplete profile status = %d", w.Code)
	}
}

func TestDevToken(t *testing.T) {
	h := newHarness(t, config.AppendToExistingMealEntry)
	w := h.doJSON(t, http.MethodPost, "/dev/token", map[string]any{"userId": "user-9", "email": "u9@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	claims, err := utils.ParseJWT(testSecret, out.Token)
	if err != nil || claims.UserID != "user-9" {
		t.Errorf("claims = %+v, err = %v", claims, err)
	}
}

func TestRespondError_UnknownErrorIs500(t *testing.T) {
	r := gin.New()
	r.GET("/boom", func(c *gin.Context) { respondError(c, errors.New("db exploded")) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "db exploded") {
		t.Error("internal error text leaked to the client")
	}
}
