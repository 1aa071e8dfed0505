package handlers

import (
	"errors"
	"net/http"

	"curator/pkg/api/common"
	curatorapi "curator/pkg/api/curator"
	"curator/pkg/middleware"

	"curator/internal/publish"
)

// Publish-status endpoints

// GetPublishStatus returns the latest publish-readiness snapshot, sorted
// ascending by time-to-publish
func GetPublishStatus(c middleware.Context) {
	c.JSON(http.StatusOK, tracker.Latest())
}

// RetryPublish asks the publisher to retry a failed publish. The item's
// local status stays publish_failed until the next canonical refresh.
func RetryPublish(c middleware.Context) {
	itemID := c.Param("id")

	var req curatorapi.RetryPublishRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: "invalid request"})
		return
	}

	resp, err := tracker.RetryPublish(c.Request.Context(), itemID, req.Force)
	if err != nil {
		if metrics != nil && metrics.RetryPublishOps != nil {
			metrics.RetryPublishOps.WithLabelValues("failure").Inc()
		}
		switch {
		case errors.Is(err, publish.ErrNotRetryable):
			c.JSON(http.StatusConflict, common.ErrorResponse{Error: err.Error()})
		case errors.Is(err, publish.ErrUnknownItem):
			c.JSON(http.StatusNotFound, common.ErrorResponse{Error: err.Error()})
		default:
			c.JSON(http.StatusBadGateway, common.ErrorResponse{Error: err.Error()})
		}
		return
	}

	if metrics != nil && metrics.RetryPublishOps != nil {
		metrics.RetryPublishOps.WithLabelValues("success").Inc()
	}
	c.JSON(http.StatusAccepted, resp)
}

// ServeWS upgrades the connection and hands it to the event hub
func ServeWS(c middleware.Context) {
	hub.ServeWS(c.Writer, c.Request)
}
