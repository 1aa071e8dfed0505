package models

import (
	"encoding/json"
	"time"
)

// ItemStatus is the publish lifecycle state of a scheduled item. The
// authoritative state machine lives in the publisher backend; this service
// only reads it. publish_failed is the only state a retry may be issued from.
type ItemStatus string

const (
	StatusScheduled     ItemStatus = "scheduled"
	StatusPublishing    ItemStatus = "publishing"
	StatusPublished     ItemStatus = "published"
	StatusPublishFailed ItemStatus = "publish_failed"
)

// SourcePriority orders content sources: trending < scheduled < evergreen < research.
type SourcePriority string

const (
	PriorityTrending  SourcePriority = "trending"
	PriorityScheduled SourcePriority = "scheduled"
	PriorityEvergreen SourcePriority = "evergreen"
	PriorityResearch  SourcePriority = "research"
)

// Ordinal returns the sort rank of a source priority. Unknown values sort last.
func (p SourcePriority) Ordinal() int {
	switch p {
	case PriorityTrending:
		return 0
	case PriorityScheduled:
		return 1
	case PriorityEvergreen:
		return 2
	case PriorityResearch:
		return 3
	default:
		return 4
	}
}

// ScheduledItem is a post with a publish time. Canonical copies live in the
// publisher backend; ConflictIDs and IsImminent are derived locally on each
// evaluation and are never persisted.
type ScheduledItem struct {
	ID             string         `json:"id"`
	ScheduledTime  time.Time      `json:"scheduled_time"`
	SourcePriority SourcePriority `json:"source_priority"`
	ConflictIDs    []string       `json:"conflict_ids,omitempty"`
	IsImminent     bool           `json:"is_imminent"`
	Status         ItemStatus     `json:"status"`
	PublishError   string         `json:"publish_error,omitempty"`
}

// ApprovalQueueItem is a content item awaiting a human decision. The
// quality/compliance metadata is opaque to this service and passed through
// untouched; WouldAutoPublish is used only as a selection filter predicate.
type ApprovalQueueItem struct {
	ID               string          `json:"id"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	WouldAutoPublish bool            `json:"would_auto_publish"`
}

// ItemActionResult is the per-item outcome of one bulk mutation call
type ItemActionResult struct {
	ItemID       string `json:"item_id"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// BatchActionResult is the outcome of one bulk approve/reject call.
// It is immutable after creation and drives both UI feedback and the
// retry-failed-subset follow-up.
type BatchActionResult struct {
	BatchID         string             `json:"batch_id"`
	TotalRequested  int                `json:"total_requested"`
	SuccessfulCount int                `json:"successful_count"`
	FailedCount     int                `json:"failed_count"`
	PerItemResults  []ItemActionResult `json:"per_item_results"`
}

// FailedIDs returns the ids of items that did not succeed, in result order.
func (r *BatchActionResult) FailedIDs() []string {
	var ids []string
	for _, res := range r.PerItemResults {
		if !res.Success {
			ids = append(ids, res.ItemID)
		}
	}
	return ids
}
