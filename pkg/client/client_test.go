package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"codequest/pkg/client"
)

type envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func TestPollUntilSettledStopsWhenNoPending(t *testing.T) {
	t.Parallel()

	var polls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&polls, 1)
		status := "PENDING"
		verdict := ""
		if n >= 3 {
			status = "COMPLETED"
			verdict = "PASSED"
		}
		writeJSON(w, http.StatusOK, envelope{
			Code:    10000,
			Message: "Success",
			Data: map[string]interface{}{
				"items": []map[string]interface{}{
					{
						"id":           "sub-1",
						"challenge_id": 42,
						"user_id":      "user-7",
						"status":       status,
						"verdict":      verdict,
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := client.New(srv.URL, client.WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	submissions, err := c.PollUntilSettled(ctx, 42, "user-7")
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(submissions) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(submissions))
	}
	if submissions[0].Status != "COMPLETED" || submissions[0].Verdict != "PASSED" {
		t.Fatalf("expected settled COMPLETED/PASSED, got %s/%s", submissions[0].Status, submissions[0].Verdict)
	}
	if n := atomic.LoadInt64(&polls); n != 3 {
		t.Fatalf("expected polling to stop at the third read, got %d", n)
	}
}

func TestPollUntilSettledHonorsContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, envelope{
			Code:    10000,
			Message: "Success",
			Data: map[string]interface{}{
				"items": []map[string]interface{}{
					{"id": "sub-1", "status": "PENDING"},
				},
			},
		})
	}))
	defer srv.Close()

	c := client.New(srv.URL, client.WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.PollUntilSettled(ctx, 42, "user-7"); err == nil {
		t.Fatalf("expected context error while submissions stay pending")
	}
}

func TestSubmitSendsIdempotencyKey(t *testing.T) {
	t.Parallel()

	var gotKey, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		gotUser = r.Header.Get("X-User-Id")

		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["code"] != "def solution(): return 1" {
			t.Errorf("unexpected code payload: %v", body["code"])
		}
		if _, ok := body["user_id"]; ok {
			t.Errorf("identity must travel in the header, not the payload")
		}

		writeJSON(w, http.StatusCreated, envelope{
			Code:    10000,
			Message: "Success",
			Data: map[string]interface{}{
				"id":           "sub-1",
				"challenge_id": 42,
				"user_id":      "user-7",
				"status":       "PENDING",
			},
		})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	submission, err := c.Submit(context.Background(), 42, "user-7", "def solution(): return 1", "req-abc")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if submission.ID != "sub-1" || submission.Status != "PENDING" {
		t.Fatalf("unexpected submission: %+v", submission)
	}
	if gotKey != "req-abc" {
		t.Fatalf("expected idempotency key header, got %q", gotKey)
	}
	if gotUser != "user-7" {
		t.Fatalf("expected caller identity header, got %q", gotUser)
	}
}

func TestAPIErrorSurface(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Code: 12000, Message: "submission not found"})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	_, err := c.GetSubmission(context.Background(), "nope")
	apiErr, ok := err.(*client.APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != 12000 {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}
