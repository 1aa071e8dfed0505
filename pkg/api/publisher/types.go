package publisher

import (
	"time"

	"curator/pkg/models"
)

// BatchApproveRequest is the payload for POST /approval-queue/batch/approve
type BatchApproveRequest struct {
	ItemIDs []string `json:"item_ids"`
}

// BatchRejectRequest is the payload for POST /approval-queue/batch/reject
type BatchRejectRequest struct {
	ItemIDs    []string `json:"item_ids"`
	Reason     string   `json:"reason"`
	ReasonText string   `json:"reason_text,omitempty"`
}

// BatchActionResponse is the publisher's per-item outcome report for one
// bulk mutation call
type BatchActionResponse = models.BatchActionResult

// RescheduleRequest is the payload for PATCH /schedule/{id}/reschedule
type RescheduleRequest struct {
	NewPublishTime time.Time `json:"new_publish_time"`
	Force          bool      `json:"force,omitempty"`
}

// RescheduleResponse is the publisher's reply to a reschedule request
type RescheduleResponse struct {
	Success        bool      `json:"success"`
	NewPublishTime time.Time `json:"new_publish_time"`
	Conflicts      []string  `json:"conflicts,omitempty"`
}

// RetryPublishRequest is the payload for POST /schedule/{id}/retry-publish
type RetryPublishRequest struct {
	Force bool `json:"force,omitempty"`
}

// RetryPublishResponse is the publisher's reply to a retry-publish request.
// A success here only means the retry job was accepted; item status changes
// arrive through the next calendar refresh.
type RetryPublishResponse struct {
	Success bool    `json:"success"`
	JobID   *string `json:"job_id,omitempty"`
}

// CalendarConflict is a server-reported conflict bucket
type CalendarConflict struct {
	HourKey time.Time `json:"hour_key"`
	ItemIDs []string  `json:"item_ids"`
}

// CalendarResponse is the reply to GET /schedule/calendar
type CalendarResponse struct {
	Items     []models.ScheduledItem `json:"items"`
	Conflicts []CalendarConflict     `json:"conflicts"`
}

// QueueResponse is the reply to GET /approval-queue
type QueueResponse struct {
	Items []models.ApprovalQueueItem `json:"items"`
}

// ErrorResponse represents a standard error response from the publisher
type ErrorResponse struct {
	Error string `json:"error"`
}
