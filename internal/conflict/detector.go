package conflict

import (
	"sort"
	"time"

	"curator/pkg/models"
)

// Severity classifies how crowded an hour slot is
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Default occupancy thresholds. An hour with two items is a warning, three
// or more is critical.
const (
	DefaultWarningThreshold  = 2
	DefaultCriticalThreshold = 3
)

// Bucket holds the items whose scheduled time falls inside one UTC hour
type Bucket struct {
	HourKey  time.Time `json:"hour_key"`
	ItemIDs  []string  `json:"item_ids"`
	Severity Severity  `json:"severity"`
}

// Preview is the answer to "would placing an item at this time conflict?"
type Preview struct {
	HourKey  time.Time `json:"hour_key"`
	Count    int       `json:"count"`
	Severity Severity  `json:"severity"`
}

// Detector computes hour-bucket occupancy over a scheduled item list.
// It is pure: no state beyond the thresholds, and identical input always
// yields identical buckets regardless of item order.
type Detector struct {
	warningThreshold  int
	criticalThreshold int
}

// NewDetector creates a detector with the given severity thresholds.
// Non-positive values fall back to the defaults.
func NewDetector(warningThreshold, criticalThreshold int) *Detector {
	if warningThreshold <= 0 {
		warningThreshold = DefaultWarningThreshold
	}
	if criticalThreshold <= 0 {
		criticalThreshold = DefaultCriticalThreshold
	}
	return &Detector{
		warningThreshold:  warningThreshold,
		criticalThreshold: criticalThreshold,
	}
}

// HourKey truncates a timestamp to the top of its UTC hour. Items exactly on
// an hour boundary belong to the hour they fall within, not the one before.
func HourKey(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// SeverityFor maps an occupancy count to a severity
func (d *Detector) SeverityFor(count int) Severity {
	switch {
	case count >= d.criticalThreshold:
		return SeverityCritical
	case count >= d.warningThreshold:
		return SeverityWarning
	default:
		return SeverityNone
	}
}

// ComputeConflicts groups items into hour buckets. An empty item list yields
// an empty map. Item ids within a bucket are sorted, so permuting the input
// produces identical output.
func (d *Detector) ComputeConflicts(items []models.ScheduledItem) map[time.Time]Bucket {
	buckets := make(map[time.Time]Bucket, len(items))
	for _, item := range items {
		key := HourKey(item.ScheduledTime)
		b := buckets[key]
		b.HourKey = key
		b.ItemIDs = append(b.ItemIDs, item.ID)
		buckets[key] = b
	}
	for key, b := range buckets {
		sort.Strings(b.ItemIDs)
		b.Severity = d.SeverityFor(len(b.ItemIDs))
		buckets[key] = b
	}
	return buckets
}

// PreviewConflict answers what the occupancy of candidateTime's hour would be
// if the item identified by excludeID moved there. The excluded item's
// current slot is removed before the hypothetical occupant is added back, so
// moving an item within its own hour never double-counts it. excludeID may be
// empty when previewing a brand-new placement.
func (d *Detector) PreviewConflict(items []models.ScheduledItem, candidateTime time.Time, excludeID string) Preview {
	key := HourKey(candidateTime)
	count := 1 // the hypothetical occupant
	for _, item := range items {
		if item.ID == excludeID {
			continue
		}
		if HourKey(item.ScheduledTime).Equal(key) {
			count++
		}
	}
	return Preview{
		HourKey:  key,
		Count:    count,
		Severity: d.SeverityFor(count),
	}
}

// ConflictIDsFor returns, for each item id, the other ids sharing its bucket.
// Items alone in their hour map to nil.
func (d *Detector) ConflictIDsFor(items []models.ScheduledItem) map[string][]string {
	buckets := d.ComputeConflicts(items)
	out := make(map[string][]string, len(items))
	for _, b := range buckets {
		if len(b.ItemIDs) < 2 {
			continue
		}
		for _, id := range b.ItemIDs {
			others := make([]string, 0, len(b.ItemIDs)-1)
			for _, other := range b.ItemIDs {
				if other != id {
					others = append(others, other)
				}
			}
			out[id] = others
		}
	}
	return out
}
