package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"post2image/internal/capture"
	"post2image/internal/dataurl"

	"golang.org/x/sync/semaphore"
)

const (
	maxRequestBytes = 1 << 20
	busyRetryAfter  = "5"
)

type Capturer interface {
	Capture(ctx context.Context, req capture.Request) (*capture.Result, error)
}

type convertRequest struct {
	Link     string `json:"link"`
	Platform string `json:"platform"`
}

type convertResponse struct {
	ImageURL string `json:"imageUrl"`
	Platform string `json:"platform"`
}

// Deadlines split the request ceiling between waiting for a free session and
// running the capture, so queueing never eats into the capture's own timeouts.
type Deadlines struct {
	Queue   time.Duration
	Capture time.Duration
}

// Convert captures the requested post. sessions bounds how many captures run
// at once.
func Convert(capturer Capturer, sessions *semaphore.Weighted, deadlines Deadlines) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, messageResponse{"Method not allowed"})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		if err != nil {
			slog.ErrorContext(r.Context(), fmt.Sprintf("failed to read request body: %s", err))
			writeJSON(w, http.StatusBadRequest, errorResponse{"Missing link or platform."})
			return
		}
		var req convertRequest
		if err := json.Unmarshal(body, &req); err != nil || req.Link == "" || req.Platform == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{"Missing link or platform."})
			return
		}

		if err := acquire(r.Context(), sessions, deadlines.Queue); err != nil {
			if r.Context().Err() != nil {
				slog.DebugContext(r.Context(), "client left while waiting for a session")
				return
			}
			slog.WarnContext(r.Context(), "no capture session became free in time", "timeout", deadlines.Queue)
			w.Header().Set("Retry-After", busyRetryAfter)
			writeJSON(w, http.StatusServiceUnavailable, messageResponse{"Server is busy, try again later"})
			return
		}
		defer sessions.Release(1)

		ctx, cancel := context.WithTimeout(r.Context(), deadlines.Capture)
		defer cancel()

		result, err := capturer.Capture(ctx, capture.Request{
			Link:     req.Link,
			Platform: req.Platform,
		})
		if err != nil {
			status := StatusCode(err)
			if status >= http.StatusInternalServerError {
				slog.ErrorContext(r.Context(), fmt.Sprintf("failed to capture post: %s", err), "link", req.Link, "platform", req.Platform, "kind", capture.Kind(err))
			} else {
				slog.InfoContext(r.Context(), fmt.Sprintf("post not captured: %s", err), "link", req.Link, "platform", req.Platform, "kind", capture.Kind(err))
			}
			writeJSON(w, status, messageResponse{message(err)})
			return
		}

		writeJSON(w, http.StatusOK, convertResponse{
			ImageURL: dataurl.Encode(result.MimeType, result.Image),
			Platform: result.Platform.String(),
		})
	}
}

func acquire(ctx context.Context, sessions *semaphore.Weighted, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return sessions.Acquire(ctx, 1)
}
