package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	publisherapi "curator/pkg/api/publisher"
	"curator/pkg/logging"
	"curator/pkg/models"
)

func newTestClient(url string) *Client {
	return NewClient(Config{
		BaseURL:      url,
		ServiceToken: "test-token",
		Timeout:      2 * time.Second,
		Logger:       logging.NewLogger(),
	})
}

func TestBatchApprove(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/approval-queue/batch/approve", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("X-Service-Token"))

		var req publisherapi.BatchApproveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.ItemIDs)

		json.NewEncoder(w).Encode(publisherapi.BatchActionResponse{
			TotalRequested:  2,
			SuccessfulCount: 2,
			PerItemResults: []models.ItemActionResult{
				{ItemID: "a", Success: true},
				{ItemID: "b", Success: true},
			},
		})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).BatchApprove(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.SuccessfulCount)
	assert.Len(t, resp.PerItemResults, 2)
}

func TestBatchRejectSendsReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/approval-queue/batch/reject", r.URL.Path)

		var req publisherapi.BatchRejectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "off_brand", req.Reason)
		assert.Equal(t, "tone mismatch", req.ReasonText)

		json.NewEncoder(w).Encode(publisherapi.BatchActionResponse{TotalRequested: 1, SuccessfulCount: 1})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).BatchReject(context.Background(), []string{"a"}, "off_brand", "tone mismatch")
	require.NoError(t, err)
}

func TestMutationsAreNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).BatchApprove(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a failed mutation must not be re-issued")
}

func TestReadsRetryOnServerError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(publisherapi.CalendarResponse{})
	}))
	defer srv.Close()

	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err := newTestClient(srv.URL).GetCalendar(context.Background(), start, start.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestReschedule(t *testing.T) {
	target := time.Date(2026, 3, 12, 15, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PATCH", r.Method)
		assert.Equal(t, "/schedule/item-1/reschedule", r.URL.Path)

		var req publisherapi.RescheduleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.NewPublishTime.Equal(target))

		json.NewEncoder(w).Encode(publisherapi.RescheduleResponse{Success: true, NewPublishTime: req.NewPublishTime})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Reschedule(context.Background(), "item-1", target, false)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.NewPublishTime.Equal(target))
}

func TestRescheduleConflictError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(publisherapi.ErrorResponse{Error: "slot taken"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Reschedule(context.Background(), "item-1", time.Now().Add(time.Hour), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publisher error (409)")
}

func TestRetryPublishAcceptsAccepted(t *testing.T) {
	jobID := "job-42"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/schedule/item-1/retry-publish", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(publisherapi.RetryPublishResponse{Success: true, JobID: &jobID})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).RetryPublish(context.Background(), "item-1", false)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.JobID)
	assert.Equal(t, "job-42", *resp.JobID)
}

func TestGetCalendarQueryWindow(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, start.Format(time.RFC3339), r.URL.Query().Get("start"))
		assert.Equal(t, end.Format(time.RFC3339), r.URL.Query().Get("end"))
		json.NewEncoder(w).Encode(publisherapi.CalendarResponse{
			Items: []models.ScheduledItem{{ID: "a", ScheduledTime: start.Add(time.Hour)}},
		})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).GetCalendar(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "a", resp.Items[0].ID)
}

func TestGetApprovalQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/approval-queue", r.URL.Path)
		json.NewEncoder(w).Encode(publisherapi.QueueResponse{
			Items: []models.ApprovalQueueItem{{ID: "q1", WouldAutoPublish: true}},
		})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).GetApprovalQueue(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.True(t, resp.Items[0].WouldAutoPublish)
}
