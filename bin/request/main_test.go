package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"post2image/internal/retry"

	"github.com/google/go-cmp/cmp"
)

func TestConvertRetriesBusyService(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		var body convertRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("attempt %d: %v", attempts, err)
		}
		w.Header().Set("Content-Type", "application/json")
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"Server is busy, try again later"}`))
			return
		}
		_, _ = w.Write([]byte(`{"imageUrl":"data:image/png;base64,iVBORw==","platform":"X"}`))
	}))
	defer server.Close()

	client := &http.Client{
		Transport: &retry.Transport{
			Strategy: retry.ExponentialBackOff{Base: time.Millisecond, Max: time.Millisecond, MaxRetries: 2, Jitter: retry.NoJitter},
			On:       retry.DefaultOn(),
		},
	}
	got, err := convert(context.Background(), client, server.URL, convertRequest{Link: "https://x.com/a/status/1", Platform: "X"})
	if err != nil {
		t.Fatal(err)
	}
	want := &convertResponse{ImageURL: "data:image/png;base64,iVBORw==", Platform: "X"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if attempts != 2 {
		t.Errorf("got %d attempts, want 2", attempts)
	}
}

func TestConvertReportsServiceErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Post element not found"}`))
	}))
	defer server.Close()

	_, err := convert(context.Background(), server.Client(), server.URL, convertRequest{Link: "https://x.com/a/status/1", Platform: "X"})
	if err == nil || err.Error() != "service answered 404: Post element not found" {
		t.Errorf("got %v", err)
	}
}
