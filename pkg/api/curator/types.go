package curator

import (
	"time"

	"curator/pkg/models"
)

// ToggleSelectionRequest is the payload for POST /selection/toggle
type ToggleSelectionRequest struct {
	ItemID string `json:"item_id" binding:"required"`
}

// FilterSelectionRequest is the payload for POST /selection/filter.
// The filter replaces the current selection entirely.
type FilterSelectionRequest struct {
	WouldAutoPublish *bool `json:"would_auto_publish,omitempty"`
}

// SelectionResponse reports the current selection state
type SelectionResponse struct {
	SelectedIDs    []string `json:"selected_ids"`
	Count          int      `json:"count"`
	IsAllSelected  bool     `json:"is_all_selected"`
	IsSomeSelected bool     `json:"is_some_selected"`
}

// BatchRequest is the payload for POST /batch/approve and /batch/reject.
// ItemIDs defaults to the current selection when omitted.
type BatchRequest struct {
	ItemIDs    []string `json:"item_ids,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	ReasonText string   `json:"reason_text,omitempty"`
}

// BatchResponse reports a finished batch's accounting
type BatchResponse struct {
	Result     models.BatchActionResult   `json:"result"`
	Action     string                     `json:"action"`
	RolledBack bool                       `json:"rolled_back,omitempty"`
	Failed     []models.ApprovalQueueItem `json:"failed_items,omitempty"`
}

// FailedItemsResponse is the retained failed subset from the last batch
type FailedItemsResponse struct {
	Items  []models.ApprovalQueueItem `json:"items"`
	Errors map[string]string          `json:"errors"`
}

// QueueResponse is the current approval queue snapshot
type QueueResponse struct {
	Items []models.ApprovalQueueItem `json:"items"`
}

// ConflictBucket is an hour slot holding more than one scheduled item
type ConflictBucket struct {
	HourKey  time.Time `json:"hour_key"`
	ItemIDs  []string  `json:"item_ids"`
	Severity string    `json:"severity"`
}

// CalendarResponse is the current schedule snapshot with derived conflicts
type CalendarResponse struct {
	Items     []models.ScheduledItem `json:"items"`
	Conflicts []ConflictBucket       `json:"conflicts"`
}

// ConflictPreviewResponse answers a hover-time conflict query
type ConflictPreviewResponse struct {
	HourKey  time.Time `json:"hour_key"`
	Count    int       `json:"count"`
	Severity string    `json:"severity"`
}

// StartDragRequest is the payload for POST /drag/start
type StartDragRequest struct {
	ItemID string `json:"item_id" binding:"required"`
}

// DragTargetRequest is the payload for POST /drag/hover and /drag/drop
type DragTargetRequest struct {
	Target time.Time `json:"target" binding:"required"`
}

// DragStateResponse reports the drag lifecycle state
type DragStateResponse struct {
	State     string `json:"state"`
	ItemID    string `json:"item_id,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// DropResponse reports a committed drop
type DropResponse struct {
	ItemID          string    `json:"item_id"`
	NewPublishTime  time.Time `json:"new_publish_time"`
	Conflicts       []string  `json:"conflicts,omitempty"`
	PreviewSeverity string    `json:"preview_severity"`
}

// RetryPublishRequest is the payload for POST /schedule/:id/retry-publish
type RetryPublishRequest struct {
	Force bool `json:"force,omitempty"`
}
