package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	"nutrilog/models"
)

// MemoryStore keeps entries in process. Used by tests and local runs without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.MealEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]models.MealEntry)}
}

func (s *MemoryStore) FindMealEntry(_ context.Context, user, date string, mealType models.MealType) (*models.MealEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.MealEntry
	for _, e := range s.entries {
		if e.User != user || e.Date != date || e.MealType != mealType {
			continue
		}
		if found == nil || e.CreatedAt.Before(found.CreatedAt) {
			c := clone(e)
			found = &c
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) GetMealEntry(_ context.Context, user, id string) (*models.MealEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || e.User != user {
		return nil, ErrNotFound
	}
	c := clone(e)
	return &c, nil
}

func (s *MemoryStore) CreateMealEntry(_ context.Context, entry *models.MealEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = clone(*entry)
	return nil
}

func (s *MemoryStore) UpdateMealEntry(_ context.Context, entry *models.MealEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[entry.ID]
	if !ok || cur.User != entry.User {
		return ErrNotFound
	}
	s.entries[entry.ID] = clone(*entry)
	return nil
}

func (s *MemoryStore) DeleteMealEntry(_ context.Context, user, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[id]
	if !ok || cur.User != user {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) ListMealEntries(_ context.Context, user, from, to string) ([]models.MealEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.MealEntry{}
	for _, e := range s.entries {
		if e.User == user && e.Date >= from && e.Date <= to {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }

func clone(e models.MealEntry) models.MealEntry {
	e.Items = slices.Clone(e.Items)
	for i := range e.Items {
		e.Items[i].Nutrients = maps.Clone(e.Items[i].Nutrients)
		e.Items[i].Warnings = slices.Clone(e.Items[i].Warnings)
	}
	return e
}
