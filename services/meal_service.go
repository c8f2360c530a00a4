// services/meal_service.go
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"nutrilog/apperr"
	"nutrilog/config"
	"nutrilog/logging"
	"nutrilog/metrics"
	"nutrilog/models"
	"nutrilog/store"
	"nutrilog/utils"
)

// WarnNutritionUnavailable marks an item stored with zero nutrition after a
// failed lookup.
const WarnNutritionUnavailable = "Nutrition unavailable; recorded as 0"

type MealService struct {
	store    store.MealStore
	lookup   NutritionLookup
	notifier Notifier
	policy   string
	now      func() time.Time
}

func NewMealService(st store.MealStore, lookup NutritionLookup, notifier Notifier, policy string) *MealService {
	if policy == "" {
		policy = config.AppendToExistingMealEntry
	}
	return &MealService{
		store:    st,
		lookup:   lookup,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}
}

// MealItemRequest is one item as posted by the client. Quantity may be a
// number or a string such as "125g". Items with no macros at all are looked up.
type MealItemRequest struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Quantity  any                `json:"quantity"`
	Unit      string             `json:"unit"`
	Calories  *float64           `json:"calories"`
	Protein   *float64           `json:"protein"`
	Carbs     *float64           `json:"carbs"`
	Fat       *float64           `json:"fat"`
	Nutrients map[string]float64 `json:"nutrients"`
}

func (r MealItemRequest) hasMacros() bool {
	return r.Calories != nil || r.Protein != nil || r.Carbs != nil || r.Fat != nil
}

// EntryMeta carries provenance for a diary write.
type EntryMeta struct {
	Source   string
	PhotoURL string
}

type preparedItem struct {
	req      MealItemRequest
	quantity float64
	unit     string
}

// AddMealEntry validates items, fills missing nutrition and writes them to the
// (user, date, mealType) entry according to the configured policy.
// created reports whether a new entry was stored.
func (s *MealService) AddMealEntry(
	ctx context.Context,
	user, date string,
	mealType models.MealType,
	items []MealItemRequest,
	meta EntryMeta,
) (entry *models.MealEntry, created bool, err error) {
	prepared, err := validateAdd(date, mealType, items)
	if err != nil {
		return nil, false, err
	}

	confirmed := make([]models.ConfirmedItem, 0, len(prepared))
	for _, p := range prepared {
		confirmed = append(confirmed, s.resolve(ctx, p))
	}

	now := s.now().UTC()
	if s.policy == config.AppendToExistingMealEntry {
		existing, err := s.store.FindMealEntry(ctx, user, date, mealType)
		switch {
		case err == nil:
			existing.Items = append(existing.Items, uniqueIDs(existing.Items, confirmed)...)
			if existing.PhotoURL == "" {
				existing.PhotoURL = meta.PhotoURL
			}
			existing.UpdatedAt = now
			existing.Recompute()
			if err := s.store.UpdateMealEntry(ctx, existing); err != nil {
				return nil, false, err
			}
			metrics.RecordMealEntryWrite("append")
			s.notify(user, "appended", existing)
			return existing, false, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, false, err
		}
	}

	entry = &models.MealEntry{
		ID:        uuid.NewString(),
		User:      user,
		Date:      date,
		MealType:  mealType,
		Items:     uniqueIDs(nil, confirmed),
		Source:    meta.Source,
		PhotoURL:  meta.PhotoURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	entry.Recompute()
	if err := s.store.CreateMealEntry(ctx, entry); err != nil {
		return nil, false, err
	}
	metrics.RecordMealEntryWrite("create")
	s.notify(user, "created", entry)
	return entry, true, nil
}

func validateAdd(date string, mealType models.MealType, items []MealItemRequest) ([]preparedItem, error) {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return nil, apperr.Validation("date must be YYYY-MM-DD, got %q", date)
	}
	if !mealType.Valid() {
		return nil, apperr.Validation("mealType must be one of breakfast, lunch, dinner, snacks")
	}
	if len(items) == 0 {
		return nil, apperr.Validation("items must not be empty")
	}
	out := make([]preparedItem, 0, len(items))
	for i, it := range items {
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			return nil, apperr.Validation("items[%d].name is required", i)
		}
		q, unit, err := utils.ParseQuantity(it.Quantity)
		if err != nil {
			return nil, apperr.Validation("items[%d].quantity: %v", i, err)
		}
		if u := strings.TrimSpace(it.Unit); u != "" {
			unit = strings.ToLower(u)
		}
		out = append(out, preparedItem{req: it, quantity: q, unit: unit})
	}
	return out, nil
}

// resolve builds the stored item. A failed lookup leaves the item at zero
// rather than failing the whole write.
func (s *MealService) resolve(ctx context.Context, p preparedItem) models.ConfirmedItem {
	item := models.ConfirmedItem{
		ID:        p.req.ID,
		Name:      p.req.Name,
		Quantity:  p.quantity,
		Unit:      p.unit,
		Nutrients: p.req.Nutrients,
	}

	switch {
	case p.req.hasMacros():
		item.Nutrition = models.Nutrition{
			Calories: deref(p.req.Calories),
			Protein:  deref(p.req.Protein),
			Carbs:    deref(p.req.Carbs),
			Fat:      deref(p.req.Fat),
		}
	case s.lookup != nil:
		n, nutrients, err := s.lookup.NutritionFor(ctx, item.Name, item.Quantity, item.Unit)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("item", item.Name).Msg("nutrition lookup failed, recording zero")
			metrics.NutritionFallbacks.Inc()
			item.Warnings = append(item.Warnings, WarnNutritionUnavailable)
			return item
		}
		item.Nutrition = n
		if len(item.Nutrients) == 0 {
			item.Nutrients = nutrients
		}
	}

	item.Warnings = append(item.Warnings, utils.ItemWarnings(item, utils.AssessmentContext{})...)
	return item
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// uniqueIDs assigns ids to new items, replacing any that collide with existing ones.
func uniqueIDs(existing, add []models.ConfirmedItem) []models.ConfirmedItem {
	seen := make(map[string]bool, len(existing)+len(add))
	for _, it := range existing {
		seen[it.ID] = true
	}
	out := make([]models.ConfirmedItem, 0, len(add))
	for _, it := range add {
		if it.ID == "" || seen[it.ID] {
			it.ID = uuid.NewString()
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	return out
}

func (s *MealService) GetMealEntry(ctx context.Context, user, id string) (*models.MealEntry, error) {
	return s.store.GetMealEntry(ctx, user, id)
}

// ListMealEntries returns entries between from and to inclusive. An empty to
// means the single day from.
func (s *MealService) ListMealEntries(ctx context.Context, user, from, to string) ([]models.MealEntry, error) {
	if to == "" {
		to = from
	}
	f, err := time.Parse(models.DateLayout, from)
	if err != nil {
		return nil, apperr.Validation("from must be YYYY-MM-DD, got %q", from)
	}
	t, err := time.Parse(models.DateLayout, to)
	if err != nil {
		return nil, apperr.Validation("to must be YYYY-MM-DD, got %q", to)
	}
	if t.Before(f) {
		return nil, apperr.Validation("to (%s) is before from (%s)", to, from)
	}
	return s.store.ListMealEntries(ctx, user, from, to)
}

func (s *MealService) DeleteMealEntry(ctx context.Context, user, id string) error {
	entry, err := s.store.GetMealEntry(ctx, user, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMealEntry(ctx, user, id); err != nil {
		return err
	}
	metrics.RecordMealEntryWrite("delete")
	s.notify(user, "deleted", entry)
	return nil
}

// RemoveItem drops one item. Removing the last item deletes the entry, in
// which case the returned entry is nil and deleted is true.
func (s *MealService) RemoveItem(ctx context.Context, user, entryID, itemID string) (entry *models.MealEntry, deleted bool, err error) {
	entry, err = s.store.GetMealEntry(ctx, user, entryID)
	if err != nil {
		return nil, false, err
	}
	idx := -1
	for i, it := range entry.Items {
		if it.ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false, apperr.NotFound("item %s not found in meal entry %s", itemID, entryID)
	}

	if len(entry.Items) == 1 {
		if err := s.store.DeleteMealEntry(ctx, user, entryID); err != nil {
			return nil, false, err
		}
		metrics.RecordMealEntryWrite("delete")
		s.notify(user, "deleted", entry)
		return nil, true, nil
	}

	entry.Items = append(entry.Items[:idx], entry.Items[idx+1:]...)
	entry.UpdatedAt = s.now().UTC()
	entry.Recompute()
	if err := s.store.UpdateMealEntry(ctx, entry); err != nil {
		return nil, false, err
	}
	metrics.RecordMealEntryWrite("remove_item")
	s.notify(user, "item_removed", entry)
	return entry, false, nil
}

// DailySummary totals a day per meal type. All four meal types are present.
func (s *MealService) DailySummary(ctx context.Context, user, date string) (*models.DailySummary, error) {
	entries, err := s.ListMealEntries(ctx, user, date, date)
	if err != nil {
		return nil, err
	}
	sum := &models.DailySummary{
		Date:       date,
		ByMealType: make(map[models.MealType]models.Nutrition, len(models.MealTypes)),
		Entries:    len(entries),
	}
	for _, mt := range models.MealTypes {
		sum.ByMealType[mt] = models.Nutrition{}
	}
	for _, e := range entries {
		sum.ByMealType[e.MealType] = sum.ByMealType[e.MealType].Add(e.TotalNutrition)
	}
	sum.Total = models.Sum(entries)
	return sum, nil
}

// Progress compares a day's intake with targets computed from the profile.
func (s *MealService) Progress(ctx context.Context, user, date string, profile models.Profile) (*models.DailyProgress, error) {
	targets, err := utils.ComputeTargets(profile)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	sum, err := s.DailySummary(ctx, user, date)
	if err != nil {
		return nil, err
	}

	pct := func(consumed, target float64) float64 {
		if target <= 0 {
			return 0
		}
		p := consumed / target
		if p > 1 {
			return 1
		}
		return p
	}
	mp := func(consumed, goal float64) models.MacroProgress {
		return models.MacroProgress{Consumed: consumed, Goal: goal, Percent: pct(consumed, goal)}
	}

	return &models.DailyProgress{
		Date:    date,
		Targets: targets,
		Progress: map[string]models.MacroProgress{
			"calories": mp(sum.Total.Calories, targets.Calories),
			"protein":  mp(sum.Total.Protein, targets.Protein),
			"carbs":    mp(sum.Total.Carbs, targets.Carbs),
			"fat":      mp(sum.Total.Fat, targets.Fat),
		},
	}, nil
}

func (s *MealService) notify(user, action string, e *models.MealEntry) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(user, DiaryEvent{
		Type:     EventDiaryUpdated,
		Action:   action,
		EntryID:  e.ID,
		Date:     e.Date,
		MealType: string(e.MealType),
	})
}
