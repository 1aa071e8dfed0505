package handlers

import (
	"net/http"
	"sort"
	"time"

	"curator/pkg/api/common"
	curatorapi "curator/pkg/api/curator"
	"curator/pkg/logging"
	"curator/pkg/middleware"
)

// Calendar endpoints. The local snapshot is served directly; a forced
// refresh pulls the canonical state from the publisher first.

// GetCalendar returns the schedule snapshot with derived conflict buckets
func GetCalendar(c middleware.Context) {
	items := scheduleData.Items()
	buckets := detector.ComputeConflicts(items)

	conflicts := make([]curatorapi.ConflictBucket, 0, len(buckets))
	for _, b := range buckets {
		conflicts = append(conflicts, curatorapi.ConflictBucket{
			HourKey:  b.HourKey,
			ItemIDs:  b.ItemIDs,
			Severity: string(b.Severity),
		})
	}
	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].HourKey.Before(conflicts[j].HourKey)
	})

	if metrics != nil && metrics.ConflictedBuckets != nil {
		contested := 0
		for _, b := range conflicts {
			if len(b.ItemIDs) > 1 {
				contested++
			}
		}
		metrics.ConflictedBuckets.Set(float64(contested))
	}

	c.JSON(http.StatusOK, curatorapi.CalendarResponse{Items: items, Conflicts: conflicts})
}

// RefreshCalendar forces a canonical refresh from the publisher. Concurrent
// requests share one upstream fetch.
func RefreshCalendar(c middleware.Context) {
	if err := refresher.RefreshNow(c.Request.Context()); err != nil {
		logger.WithFields(logging.Fields{
			"error": err.Error(),
		}).Error("Forced refresh failed")
		c.JSON(http.StatusBadGateway, common.ErrorResponse{Error: err.Error()})
		return
	}
	GetCalendar(c)
}

// PreviewConflict answers what conflict a placement at ?time= would create.
// ?exclude= names an item whose current slot should not count against it.
func PreviewConflict(c middleware.Context) {
	raw := c.Query("time")
	if raw == "" {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: "time query parameter is required"})
		return
	}
	candidate, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: "time must be RFC3339"})
		return
	}

	preview := detector.PreviewConflict(scheduleData.Items(), candidate, c.Query("exclude"))
	c.JSON(http.StatusOK, curatorapi.ConflictPreviewResponse{
		HourKey:  preview.HourKey,
		Count:    preview.Count,
		Severity: string(preview.Severity),
	})
}
