package handlers

import (
	"errors"
	"net/http"

	"curator/pkg/api/common"
	curatorapi "curator/pkg/api/curator"
	"curator/pkg/middleware"

	"curator/internal/drag"
)

// Drag endpoints expose the reschedule lifecycle: start, hover previews,
// drop (commit) and cancel. One drag at a time.

// GetDragState returns the current drag lifecycle state
func GetDragState(c middleware.Context) {
	c.JSON(http.StatusOK, dragState())
}

// StartDrag begins dragging an item
func StartDrag(c middleware.Context) {
	var req curatorapi.StartDragRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: "item_id is required"})
		return
	}

	if err := dragCtrl.StartDrag(req.ItemID); err != nil {
		respondDragError(c, err)
		return
	}
	c.JSON(http.StatusOK, dragState())
}

// HoverDrag previews the conflict a drop at the target time would create
func HoverDrag(c middleware.Context) {
	var req curatorapi.DragTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: "target is required"})
		return
	}

	preview, err := dragCtrl.Hover(req.Target)
	if err != nil {
		respondDragError(c, err)
		return
	}
	c.JSON(http.StatusOK, curatorapi.ConflictPreviewResponse{
		HourKey:  preview.HourKey,
		Count:    preview.Count,
		Severity: string(preview.Severity),
	})
}

// DropDrag commits the drag at the target time
func DropDrag(c middleware.Context) {
	var req curatorapi.DragTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: "target is required"})
		return
	}

	result, err := dragCtrl.Drop(c.Request.Context(), req.Target)
	if err != nil {
		if metrics != nil && metrics.RescheduleOps != nil {
			metrics.RescheduleOps.WithLabelValues("failure").Inc()
		}
		respondDragError(c, err)
		return
	}

	if metrics != nil && metrics.RescheduleOps != nil {
		metrics.RescheduleOps.WithLabelValues("success").Inc()
	}
	c.JSON(http.StatusOK, curatorapi.DropResponse{
		ItemID:          result.ItemID,
		NewPublishTime:  result.NewPublishTime,
		Conflicts:       result.Conflicts,
		PreviewSeverity: string(result.PreviewSeverity),
	})
}

// CancelDrag abandons the drag without touching the schedule
func CancelDrag(c middleware.Context) {
	dragCtrl.Cancel()
	c.JSON(http.StatusOK, dragState())
}

// ClearDragError discards the retained error from the last failed commit
func ClearDragError(c middleware.Context) {
	dragCtrl.ClearError()
	c.JSON(http.StatusOK, dragState())
}

func dragState() curatorapi.DragStateResponse {
	resp := curatorapi.DragStateResponse{State: string(dragCtrl.State())}
	if itemID, active := dragCtrl.DraggedItem(); active {
		resp.ItemID = itemID
	}
	if err := dragCtrl.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	return resp
}

func respondDragError(c middleware.Context, err error) {
	switch {
	case errors.Is(err, drag.ErrItemLocked), errors.Is(err, drag.ErrDragInProgress):
		c.JSON(http.StatusConflict, common.ErrorResponse{Error: err.Error()})
	case errors.Is(err, drag.ErrDropTargetInvalid), errors.Is(err, drag.ErrNotDragging):
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusBadGateway, common.ErrorResponse{Error: err.Error()})
	}
}
