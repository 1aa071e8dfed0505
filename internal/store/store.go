package store

import (
	"sync"
	"time"

	"curator/pkg/models"
)

// ScheduleStore holds the single current copy of the scheduled-item list.
// The canonical list is owned by the publisher backend; this copy is replaced
// wholesale on every refresh and only ever deviates through short-lived
// optimistic deltas that either get confirmed by the next refresh or are
// rolled back.
type ScheduleStore struct {
	mu       sync.RWMutex
	items    []models.ScheduledItem
	onChange func([]models.ScheduledItem)
}

// NewScheduleStore creates an empty schedule store
func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{}
}

// SetOnChange registers a callback invoked with a snapshot after every
// mutation. Wire reconciliation and broadcasts here, not inside callers.
func (s *ScheduleStore) SetOnChange(fn func([]models.ScheduledItem)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Replace installs a fresh canonical list
func (s *ScheduleStore) Replace(items []models.ScheduledItem) {
	s.mu.Lock()
	s.items = make([]models.ScheduledItem, len(items))
	copy(s.items, items)
	s.mu.Unlock()
	s.notify()
}

// Items returns a copy of the current list
func (s *ScheduleStore) Items() []models.ScheduledItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ScheduledItem, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the item with the given id
func (s *ScheduleStore) Get(id string) (models.ScheduledItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return models.ScheduledItem{}, false
}

// ApplyReschedule optimistically moves an item to a new time and returns a
// rollback that restores the prior time. The rollback is a no-op if the item
// has since left the list.
func (s *ScheduleStore) ApplyReschedule(id string, newTime time.Time) (rollback func(), ok bool) {
	s.mu.Lock()
	var prior time.Time
	found := false
	for i := range s.items {
		if s.items[i].ID == id {
			prior = s.items[i].ScheduledTime
			s.items[i].ScheduledTime = newTime
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return nil, false
	}
	s.notify()

	return func() {
		s.mu.Lock()
		for i := range s.items {
			if s.items[i].ID == id {
				s.items[i].ScheduledTime = prior
				break
			}
		}
		s.mu.Unlock()
		s.notify()
	}, true
}

func (s *ScheduleStore) notify() {
	s.mu.RLock()
	fn := s.onChange
	var snapshot []models.ScheduledItem
	if fn != nil {
		snapshot = make([]models.ScheduledItem, len(s.items))
		copy(snapshot, s.items)
	}
	s.mu.RUnlock()
	if fn != nil {
		fn(snapshot)
	}
}

// QueueStore holds the single current copy of the approval queue
type QueueStore struct {
	mu       sync.RWMutex
	items    []models.ApprovalQueueItem
	onChange func([]models.ApprovalQueueItem)
}

// NewQueueStore creates an empty queue store
func NewQueueStore() *QueueStore {
	return &QueueStore{}
}

// SetOnChange registers a callback invoked with a snapshot after every
// mutation. Selection pruning hangs off this hook.
func (s *QueueStore) SetOnChange(fn func([]models.ApprovalQueueItem)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Replace installs a fresh canonical list
func (s *QueueStore) Replace(items []models.ApprovalQueueItem) {
	s.mu.Lock()
	s.items = make([]models.ApprovalQueueItem, len(items))
	copy(s.items, items)
	s.mu.Unlock()
	s.notify()
}

// Items returns a copy of the current list
func (s *QueueStore) Items() []models.ApprovalQueueItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ApprovalQueueItem, len(s.items))
	copy(out, s.items)
	return out
}

// ItemsByID returns the items matching the given ids, in list order
func (s *QueueStore) ItemsByID(ids []string) []models.ApprovalQueueItem {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ApprovalQueueItem
	for _, item := range s.items {
		if _, ok := wanted[item.ID]; ok {
			out = append(out, item)
		}
	}
	return out
}

// RemoveAll optimistically removes the given ids from the visible list and
// returns the removed items plus a restore that reinstates the pre-removal
// list. Restore is only meaningful before the next canonical refresh; the
// refresh that follows every batch outcome wins regardless.
func (s *QueueStore) RemoveAll(ids []string) (removed []models.ApprovalQueueItem, restore func()) {
	toRemove := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		toRemove[id] = struct{}{}
	}

	s.mu.Lock()
	prior := make([]models.ApprovalQueueItem, len(s.items))
	copy(prior, s.items)

	kept := s.items[:0]
	for _, item := range s.items {
		if _, ok := toRemove[item.ID]; ok {
			removed = append(removed, item)
		} else {
			kept = append(kept, item)
		}
	}
	s.items = kept
	s.mu.Unlock()
	s.notify()

	restore = func() {
		s.mu.Lock()
		s.items = prior
		s.mu.Unlock()
		s.notify()
	}
	return removed, restore
}

func (s *QueueStore) notify() {
	s.mu.RLock()
	fn := s.onChange
	var snapshot []models.ApprovalQueueItem
	if fn != nil {
		snapshot = make([]models.ApprovalQueueItem, len(s.items))
		copy(snapshot, s.items)
	}
	s.mu.RUnlock()
	if fn != nil {
		fn(snapshot)
	}
}
