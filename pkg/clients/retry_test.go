package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
		RetryFunc:  DefaultShouldRetry,
	}
}

func TestDefaultShouldRetry(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{http.StatusOK, false},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
		{http.StatusConflict, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
	}
	for _, tc := range cases {
		resp := &http.Response{StatusCode: tc.status}
		if got := DefaultShouldRetry(resp, nil); got != tc.want {
			t.Errorf("status %d: retry=%v, want %v", tc.status, got, tc.want)
		}
	}
	if !DefaultShouldRetry(nil, io.EOF) {
		t.Errorf("transport errors should retry")
	}
}

func TestDoWithRetryRebuildBody(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		if len(bodies) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	payload, _ := json.Marshal(map[string]string{"item_id": "a"})
	req, err := http.NewRequest("POST", srv.URL, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	resp, err := DoWithRetry(context.Background(), srv.Client(), req, fastRetryConfig(3))
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected eventual 200, got %d", resp.StatusCode)
	}
	if len(bodies) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(bodies))
	}
	for i, body := range bodies {
		if body != string(payload) {
			t.Errorf("attempt %d body not rebuilt: %q", i+1, body)
		}
	}
}

func TestNoRetryConfigIssuesOnce(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	req, _ := http.NewRequest("POST", srv.URL, nil)
	cfg := NoRetryConfig()

	resp, err := DoWithRetry(context.Background(), srv.Client(), req, cfg)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	if calls != 1 {
		t.Errorf("NoRetryConfig must issue exactly one request, got %d", calls)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := fastRetryConfig(5)
	cfg.BaseDelay = 50 * time.Millisecond

	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL, nil)
	_, err := DoWithRetry(ctx, srv.Client(), req, cfg)
	if err == nil {
		t.Fatalf("expected context error")
	}
}
