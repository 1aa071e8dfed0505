package handlers

import (
	"net/http"

	"curator/pkg/api/common"
	curatorapi "curator/pkg/api/curator"
	"curator/pkg/middleware"
	"curator/pkg/models"
)

// Selection endpoints. The selection only ever references items present in
// the current approval queue; pruning on queue changes is wired at startup.

// GetSelection returns the current selection state
func GetSelection(c middleware.Context) {
	c.JSON(http.StatusOK, selectionState())
}

// ToggleSelection flips one item in or out of the selection
func ToggleSelection(c middleware.Context) {
	var req curatorapi.ToggleSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: "item_id is required"})
		return
	}

	selected.Toggle(req.ItemID)
	observeSelection()
	c.JSON(http.StatusOK, selectionState())
}

// SelectAll selects every item in the queue
func SelectAll(c middleware.Context) {
	selected.SelectAll()
	observeSelection()
	c.JSON(http.StatusOK, selectionState())
}

// ClearSelection empties the selection
func ClearSelection(c middleware.Context) {
	selected.Clear()
	observeSelection()
	c.JSON(http.StatusOK, selectionState())
}

// ToggleSelectAll clears a full selection, selects everything otherwise
func ToggleSelectAll(c middleware.Context) {
	selected.ToggleSelectAll()
	observeSelection()
	c.JSON(http.StatusOK, selectionState())
}

// SelectByFilter replaces the selection with the items matching the filter.
// Items selected before the call that do not match are dropped.
func SelectByFilter(c middleware.Context) {
	var req curatorapi.FilterSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: "invalid filter"})
		return
	}

	selected.SelectByFilter(queueData.Items(), func(item models.ApprovalQueueItem) bool {
		if req.WouldAutoPublish != nil && item.WouldAutoPublish != *req.WouldAutoPublish {
			return false
		}
		return true
	})
	observeSelection()
	c.JSON(http.StatusOK, selectionState())
}

// GetQueue returns the current approval queue snapshot
func GetQueue(c middleware.Context) {
	c.JSON(http.StatusOK, curatorapi.QueueResponse{Items: queueData.Items()})
}

func selectionState() curatorapi.SelectionResponse {
	return curatorapi.SelectionResponse{
		SelectedIDs:    selected.SelectedIDs(),
		Count:          selected.Count(),
		IsAllSelected:  selected.IsAllSelected(),
		IsSomeSelected: selected.IsSomeSelected(),
	}
}

func observeSelection() {
	if metrics != nil && metrics.SelectionSize != nil {
		metrics.SelectionSize.Set(float64(selected.Count()))
	}
}
