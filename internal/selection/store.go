package selection

import (
	"sort"
	"sync"

	"curator/pkg/models"
)

// Store tracks which approval-queue items are chosen for bulk action. It is
// the only owner of the selected set; every id in the set refers to an item
// present in the most recently reconciled list, never a removed one.
type Store struct {
	mu       sync.RWMutex
	selected map[string]struct{}
	listIDs  map[string]struct{}
	listLen  int
}

// NewStore creates an empty selection store
func NewStore() *Store {
	return &Store{
		selected: make(map[string]struct{}),
		listIDs:  make(map[string]struct{}),
	}
}

// Reconcile replaces the known backing list and prunes any selected id that
// no longer appears in it. Called on every list change, not by the operator.
func (s *Store) Reconcile(items []models.ApprovalQueueItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listIDs = make(map[string]struct{}, len(items))
	for _, item := range items {
		s.listIDs[item.ID] = struct{}{}
	}
	s.listLen = len(items)

	for id := range s.selected {
		if _, ok := s.listIDs[id]; !ok {
			delete(s.selected, id)
		}
	}
}

// Toggle flips membership of a single id. Toggling an id not present in the
// backing list is a no-op, so a stale click can never select a ghost item.
func (s *Store) Toggle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, inList := s.listIDs[id]; !inList {
		return
	}
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
	} else {
		s.selected[id] = struct{}{}
	}
}

// SelectAll replaces the selection with every id in the backing list
func (s *Store) SelectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = make(map[string]struct{}, len(s.listIDs))
	for id := range s.listIDs {
		s.selected[id] = struct{}{}
	}
}

// Clear empties the selection
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = make(map[string]struct{})
}

// SelectByFilter replaces the selection with exactly the items matching the
// predicate. Prior manual selection is discarded wholesale; applying a filter
// always yields a clean, predictable result.
func (s *Store) SelectByFilter(items []models.ApprovalQueueItem, predicate func(models.ApprovalQueueItem) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = make(map[string]struct{})
	for _, item := range items {
		if _, inList := s.listIDs[item.ID]; !inList {
			continue
		}
		if predicate(item) {
			s.selected[item.ID] = struct{}{}
		}
	}
}

// ToggleSelectAll clears the selection when everything is selected,
// otherwise selects everything. There is no third behavior.
func (s *Store) ToggleSelectAll() {
	if s.IsAllSelected() {
		s.Clear()
	} else {
		s.SelectAll()
	}
}

// IsSelected reports membership of a single id
func (s *Store) IsSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.selected[id]
	return ok
}

// SelectedIDs returns the selected ids in sorted order
func (s *Store) SelectedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of selected items
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.selected)
}

// IsAllSelected is true only when every item in a non-empty list is selected
func (s *Store) IsAllSelected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLen > 0 && len(s.selected) == s.listLen
}

// IsSomeSelected is true when the selection is a strict, non-empty subset of
// the list (the indeterminate checkbox state)
func (s *Store) IsSomeSelected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.selected) > 0 && len(s.selected) < s.listLen
}
