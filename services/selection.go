package services

import (
	"sort"

	"nutrilog/apperr"
	"nutrilog/models"
)

// SelectionState tracks the user's pick per detected region until confirmation.
// It is request scoped and not safe for concurrent use.
type SelectionState struct {
	regions    map[int]models.DetectedRegion
	selections map[int]models.Selection
}

func NewSelectionState(regions []models.DetectedRegion) *SelectionState {
	st := &SelectionState{
		regions:    make(map[int]models.DetectedRegion, len(regions)),
		selections: make(map[int]models.Selection),
	}
	for _, r := range regions {
		st.regions[r.Position] = r
	}
	return st
}

// Select picks a candidate (and optionally one of its sub-classes) for a region,
// replacing any earlier pick. The sub-class id is confirmed when it has one;
// otherwise the parent candidate's id is carried forward.
func (st *SelectionState) Select(position, candidateIndex int, subClassIndex *int) (models.Selection, error) {
	region, ok := st.regions[position]
	if !ok {
		return models.Selection{}, apperr.Validation("no detected region at position %d", position)
	}
	if candidateIndex < 0 || candidateIndex >= len(region.Candidates) {
		return models.Selection{}, apperr.Validation("candidate %d out of range for position %d", candidateIndex, position)
	}
	cand := region.Candidates[candidateIndex]
	sel := models.Selection{
		Position: position,
		DishID:   cand.DishID,
		Name:     cand.Name,
		Source:   models.SourceLogMeal,
	}
	if subClassIndex != nil {
		i := *subClassIndex
		if i < 0 || i >= len(cand.SubClasses) {
			return models.Selection{}, apperr.Validation("sub-class %d out of range for %q", i, cand.Name)
		}
		sc := cand.SubClasses[i]
		id := sc.DishID
		if id == 0 {
			id = cand.DishID
		}
		sel.SubClassID = &id
		sel.SubClassName = sc.Name
	}
	st.selections[position] = sel
	return sel, nil
}

// Clear drops the pick for a region; it will be left out of the confirmation.
func (st *SelectionState) Clear(position int) {
	delete(st.selections, position)
}

// Selections returns the picks ordered by position.
func (st *SelectionState) Selections() []models.Selection {
	out := make([]models.Selection, 0, len(st.selections))
	for _, s := range st.selections {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// SelectionRequest is one client-side pick as posted to the confirm endpoint.
type SelectionRequest struct {
	Position       int  `json:"position" binding:"required,gt=0"`
	CandidateIndex int  `json:"candidateIndex" binding:"gte=0"`
	SubClassIndex  *int `json:"subClassIndex"`
}

// ApplySelections replays posted picks against the regions. Later picks for
// the same position win.
func ApplySelections(regions []models.DetectedRegion, picks []SelectionRequest) ([]models.Selection, error) {
	st := NewSelectionState(regions)
	for _, p := range picks {
		if _, err := st.Select(p.Position, p.CandidateIndex, p.SubClassIndex); err != nil {
			return nil, err
		}
	}
	return st.Selections(), nil
}
