package handlers

import (
	"errors"
	"net/http"

	"curator/pkg/api/common"
	curatorapi "curator/pkg/api/curator"
	"curator/pkg/logging"
	"curator/pkg/middleware"

	"curator/internal/batch"
)

// Batch endpoints. One batch runs at a time; the engine owns the optimistic
// removal, partial-failure accounting and the canonical refresh that
// follows every outcome.

// BatchApprove approves the selected items (or an explicit id list)
func BatchApprove(c middleware.Context) {
	runBatch(c, batch.ActionApprove)
}

// BatchReject rejects the selected items (or an explicit id list)
func BatchReject(c middleware.Context) {
	runBatch(c, batch.ActionReject)
}

func runBatch(c middleware.Context, action batch.Action) {
	var req curatorapi.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: "invalid batch request"})
		return
	}

	itemIDs := req.ItemIDs
	if len(itemIDs) == 0 {
		itemIDs = selected.SelectedIDs()
	}
	if len(itemIDs) == 0 {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: "nothing selected"})
		return
	}

	var (
		outcome *batch.Outcome
		err     error
	)
	switch action {
	case batch.ActionApprove:
		outcome, err = engine.Approve(c.Request.Context(), itemIDs)
	case batch.ActionReject:
		if req.Reason == "" {
			c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: "reason is required"})
			return
		}
		outcome, err = engine.Reject(c.Request.Context(), itemIDs, req.Reason, req.ReasonText)
	}

	if err != nil {
		respondBatchError(c, err)
		return
	}

	observeBatch(outcome)
	c.JSON(http.StatusOK, batchResponse(outcome))
}

// RetryFailedBatch re-runs the failed subset of the last batch
func RetryFailedBatch(c middleware.Context) {
	outcome, err := engine.RetryFailed(c.Request.Context())
	if err != nil {
		respondBatchError(c, err)
		return
	}

	observeBatch(outcome)
	c.JSON(http.StatusOK, batchResponse(outcome))
}

// GetFailedItems returns the retained failed subset with per-item errors
func GetFailedItems(c middleware.Context) {
	items, errs := engine.FailedItems()
	c.JSON(http.StatusOK, curatorapi.FailedItemsResponse{Items: items, Errors: errs})
}

func batchResponse(outcome *batch.Outcome) curatorapi.BatchResponse {
	return curatorapi.BatchResponse{
		Result:     outcome.Result,
		Action:     string(outcome.Action),
		RolledBack: outcome.RolledBack,
		Failed:     outcome.Failed,
	}
}

func respondBatchError(c middleware.Context, err error) {
	switch {
	case errors.Is(err, batch.ErrBatchInFlight):
		c.JSON(http.StatusConflict, common.ErrorResponse{Error: err.Error()})
	case errors.Is(err, batch.ErrEmptyBatch), errors.Is(err, batch.ErrNothingToRetry):
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: err.Error()})
	default:
		logger.WithFields(logging.Fields{
			"error": err.Error(),
		}).Error("Batch mutation failed")
		c.JSON(http.StatusBadGateway, common.ErrorResponse{Error: err.Error()})
	}
}

func observeBatch(outcome *batch.Outcome) {
	if metrics == nil {
		return
	}
	if metrics.BatchOperations != nil {
		metrics.BatchOperations.WithLabelValues(string(outcome.Action)).Inc()
	}
	if metrics.BatchItemResults != nil {
		metrics.BatchItemResults.WithLabelValues(string(outcome.Action), "success").Add(float64(outcome.Result.SuccessfulCount))
		metrics.BatchItemResults.WithLabelValues(string(outcome.Action), "failure").Add(float64(outcome.Result.FailedCount))
	}
	observeSelection()
}
