package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	publisherapi "curator/pkg/api/publisher"
	"curator/pkg/logging"
	"curator/pkg/models"

	"curator/internal/store"
)

// DefaultProgressThreshold is the batch size at or above which progress
// events are emitted
const DefaultProgressThreshold = 10

// Action is the mutation a batch performs
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

var (
	// ErrBatchInFlight means a batch is already running; only one runs at a time
	ErrBatchInFlight = errors.New("a batch mutation is already in flight")
	// ErrEmptyBatch means no item ids were given
	ErrEmptyBatch = errors.New("batch contains no items")
	// ErrNothingToRetry means there is no failed subset from a previous batch
	ErrNothingToRetry = errors.New("no failed items to retry")
)

// Mutator is the slice of the publisher API the engine needs
type Mutator interface {
	BatchApprove(ctx context.Context, itemIDs []string) (*publisherapi.BatchActionResponse, error)
	BatchReject(ctx context.Context, itemIDs []string, reason, reasonText string) (*publisherapi.BatchActionResponse, error)
}

// Progress is emitted around large batches so the UI can show a bar
type Progress struct {
	BatchID   string `json:"batch_id"`
	Action    Action `json:"action"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Done      bool   `json:"done"`
}

// EventSink receives batch lifecycle events. The websocket hub implements
// this; a nil sink is allowed.
type EventSink interface {
	BatchProgress(p Progress)
	BatchResult(result models.BatchActionResult, action Action)
}

// Outcome is what a finished batch hands back to the caller
type Outcome struct {
	Result     models.BatchActionResult   `json:"result"`
	Action     Action                     `json:"action"`
	RolledBack bool                       `json:"rolled_back"`
	Failed     []models.ApprovalQueueItem `json:"failed_items,omitempty"`
}

// failedBatch is the retained subset a retry re-runs
type failedBatch struct {
	action     Action
	reason     string
	reasonText string
	items      []models.ApprovalQueueItem
	errors     map[string]string
}

// Engine runs bulk approve/reject mutations against the publisher. Items
// leave the visible queue the moment a batch starts; a total failure puts
// them all back, a partial failure puts back only the ones that failed.
// After every outcome, success or not, a canonical refresh is requested so
// the backend's view wins.
type Engine struct {
	queue             *store.QueueStore
	client            Mutator
	events            EventSink
	refresh           func(ctx context.Context)
	logger            logging.Logger
	progressThreshold int

	mu       sync.Mutex
	inFlight bool
	lastFail *failedBatch
}

// Config configures an Engine. Zero values fall back to defaults.
type Config struct {
	Events            EventSink
	Refresh           func(ctx context.Context)
	Logger            logging.Logger
	ProgressThreshold int
}

// NewEngine creates a batch mutation engine over the approval queue
func NewEngine(queue *store.QueueStore, client Mutator, cfg Config) *Engine {
	if cfg.ProgressThreshold <= 0 {
		cfg.ProgressThreshold = DefaultProgressThreshold
	}
	return &Engine{
		queue:             queue,
		client:            client,
		events:            cfg.Events,
		refresh:           cfg.Refresh,
		logger:            cfg.Logger,
		progressThreshold: cfg.ProgressThreshold,
	}
}

// InFlight reports whether a batch is currently running
func (e *Engine) InFlight() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// FailedItems returns the retained failed subset from the last batch, with
// per-item error messages
func (e *Engine) FailedItems() ([]models.ApprovalQueueItem, map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastFail == nil {
		return nil, nil
	}
	items := make([]models.ApprovalQueueItem, len(e.lastFail.items))
	copy(items, e.lastFail.items)
	errs := make(map[string]string, len(e.lastFail.errors))
	for id, msg := range e.lastFail.errors {
		errs[id] = msg
	}
	return items, errs
}

// Approve approves the given items in one batch
func (e *Engine) Approve(ctx context.Context, itemIDs []string) (*Outcome, error) {
	return e.run(ctx, ActionApprove, itemIDs, "", "")
}

// Reject rejects the given items in one batch. Reason is a category code,
// reasonText optional free text.
func (e *Engine) Reject(ctx context.Context, itemIDs []string, reason, reasonText string) (*Outcome, error) {
	return e.run(ctx, ActionReject, itemIDs, reason, reasonText)
}

// RetryFailed re-runs the last batch's failed subset with the same action
// and reason. Succeeded items are never re-sent.
func (e *Engine) RetryFailed(ctx context.Context) (*Outcome, error) {
	e.mu.Lock()
	fail := e.lastFail
	e.mu.Unlock()

	if fail == nil || len(fail.items) == 0 {
		return nil, ErrNothingToRetry
	}
	ids := make([]string, len(fail.items))
	for i, item := range fail.items {
		ids[i] = item.ID
	}
	return e.run(ctx, fail.action, ids, fail.reason, fail.reasonText)
}

func (e *Engine) run(ctx context.Context, action Action, itemIDs []string, reason, reasonText string) (*Outcome, error) {
	if len(itemIDs) == 0 {
		return nil, ErrEmptyBatch
	}

	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return nil, ErrBatchInFlight
	}
	e.inFlight = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
	}()

	batchID := uuid.New().String()
	total := len(itemIDs)
	showProgress := total >= e.progressThreshold

	if e.logger != nil {
		e.logger.WithFields(logging.Fields{
			"batch_id": batchID,
			"action":   string(action),
			"total":    total,
		}).Info("Starting batch mutation")
	}

	if showProgress && e.events != nil {
		e.events.BatchProgress(Progress{BatchID: batchID, Action: action, Processed: 0, Total: total})
	}

	// Phase 1: the items leave the visible queue immediately
	removed, restore := e.queue.RemoveAll(itemIDs)

	// Phase 2: one call to the publisher
	resp, err := e.callPublisher(ctx, action, itemIDs, reason, reasonText)
	if err != nil {
		// Total failure: everything goes back, and the whole batch is
		// retained so the operator can retry it in one click
		restore()
		e.retainWholeBatch(action, reason, reasonText, removed, err)
		e.requestRefresh(ctx)
		if e.logger != nil {
			e.logger.WithFields(logging.Fields{
				"batch_id": batchID,
				"error":    err.Error(),
			}).Warn("Batch mutation failed, queue restored")
		}
		return nil, fmt.Errorf("batch %s failed: %w", action, err)
	}

	// Phase 3: reconcile per-item results
	result := *resp
	result.BatchID = batchID
	result.TotalRequested = total

	outcome := &Outcome{Result: result, Action: action}

	failedIDs := result.FailedIDs()
	if len(failedIDs) == total {
		// Every item was rejected by the publisher; same as a transport
		// failure from the queue's point of view
		restore()
		outcome.RolledBack = true
	} else if len(failedIDs) > 0 {
		// Partial: put everything back, then take out only the successes,
		// so failed items keep their original positions
		restore()
		succeeded := make([]string, 0, total-len(failedIDs))
		for _, r := range result.PerItemResults {
			if r.Success {
				succeeded = append(succeeded, r.ItemID)
			}
		}
		e.queue.RemoveAll(succeeded)
	}

	e.retainFailures(action, reason, reasonText, removed, result)
	outcome.Failed, _ = e.FailedItems()

	if showProgress && e.events != nil {
		e.events.BatchProgress(Progress{BatchID: batchID, Action: action, Processed: total, Total: total, Done: true})
	}
	if e.events != nil {
		e.events.BatchResult(result, action)
	}
	e.requestRefresh(ctx)

	if e.logger != nil {
		e.logger.WithFields(logging.Fields{
			"batch_id":  batchID,
			"action":    string(action),
			"succeeded": result.SuccessfulCount,
			"failed":    result.FailedCount,
		}).Info("Batch mutation finished")
	}
	return outcome, nil
}

func (e *Engine) callPublisher(ctx context.Context, action Action, itemIDs []string, reason, reasonText string) (*publisherapi.BatchActionResponse, error) {
	switch action {
	case ActionApprove:
		return e.client.BatchApprove(ctx, itemIDs)
	case ActionReject:
		return e.client.BatchReject(ctx, itemIDs, reason, reasonText)
	default:
		return nil, fmt.Errorf("unknown batch action %q", action)
	}
}

// retainFailures stores the failed subset so RetryFailed can re-run it
func (e *Engine) retainFailures(action Action, reason, reasonText string, removed []models.ApprovalQueueItem, result models.BatchActionResult) {
	byID := make(map[string]models.ApprovalQueueItem, len(removed))
	for _, item := range removed {
		byID[item.ID] = item
	}

	var fail *failedBatch
	for _, r := range result.PerItemResults {
		if r.Success {
			continue
		}
		if fail == nil {
			fail = &failedBatch{
				action:     action,
				reason:     reason,
				reasonText: reasonText,
				errors:     make(map[string]string),
			}
		}
		if item, ok := byID[r.ItemID]; ok {
			fail.items = append(fail.items, item)
		}
		fail.errors[r.ItemID] = r.ErrorMessage
	}

	e.mu.Lock()
	e.lastFail = fail
	e.mu.Unlock()
}

// retainWholeBatch stores every item of a batch whose call never produced a
// response, so a full retry of the same subset stays one click away
func (e *Engine) retainWholeBatch(action Action, reason, reasonText string, removed []models.ApprovalQueueItem, callErr error) {
	fail := &failedBatch{
		action:     action,
		reason:     reason,
		reasonText: reasonText,
		items:      make([]models.ApprovalQueueItem, len(removed)),
		errors:     make(map[string]string, len(removed)),
	}
	copy(fail.items, removed)
	for _, item := range removed {
		fail.errors[item.ID] = callErr.Error()
	}

	e.mu.Lock()
	e.lastFail = fail
	e.mu.Unlock()
}

func (e *Engine) requestRefresh(ctx context.Context) {
	if e.refresh != nil {
		e.refresh(ctx)
	}
}
