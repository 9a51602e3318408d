package routes_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"post2image/internal/capture"
	"post2image/internal/platform"
	"post2image/internal/routes"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

type capturerMock struct {
	fakeCapture func(ctx context.Context, req capture.Request) (*capture.Result, error)
}

func (m *capturerMock) Capture(ctx context.Context, req capture.Request) (*capture.Result, error) {
	return m.fakeCapture(ctx, req)
}

func returning(result *capture.Result, err error) *capturerMock {
	return &capturerMock{
		fakeCapture: func(ctx context.Context, req capture.Request) (*capture.Result, error) {
			return result, err
		},
	}
}

var pngResult = &capture.Result{
	Image:    []byte{0x89, 'P', 'N', 'G'},
	MimeType: capture.MimeTypePNG,
	Platform: platform.X,
}

func TestConvert(t *testing.T) {
	type in struct {
		method string
		body   string
	}

	type want struct {
		status int
		body   map[string]string
	}

	tests := []struct {
		name     string
		capturer *capturerMock
		in       in
		want     want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			returning(pngResult, nil),
			in{http.MethodPost, `{"link":"https://x.com/someuser/status/1234567890","platform":"X"}`},
			want{http.StatusOK, map[string]string{"imageUrl": "data:image/png;base64,iVBORw==", "platform": "X"}},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			returning(pngResult, nil),
			in{http.MethodGet, ``},
			want{http.StatusMethodNotAllowed, map[string]string{"message": "Method not allowed"}},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			returning(pngResult, nil),
			in{http.MethodPost, `{"link":"https://x.com/someuser/status/1234567890"}`},
			want{http.StatusBadRequest, map[string]string{"error": "Missing link or platform."}},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			returning(pngResult, nil),
			in{http.MethodPost, `{"link":`},
			want{http.StatusBadRequest, map[string]string{"error": "Missing link or platform."}},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			returning(nil, xerrors.Errorf("wrapped: %w", platform.ErrInvalidLink)),
			in{http.MethodPost, `{"link":"not-a-url","platform":"X"}`},
			want{http.StatusBadRequest, map[string]string{"message": "Invalid link."}},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			returning(nil, xerrors.Errorf("wrapped: %w", platform.ErrUnsupportedPlatform)),
			in{http.MethodPost, `{"link":"https://x.com/someuser/status/1234567890","platform":"Unknown"}`},
			want{http.StatusBadRequest, map[string]string{"message": "Unsupported platform."}},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			returning(nil, xerrors.Errorf("Settle: %w", capture.ErrContentNotFound)),
			in{http.MethodPost, `{"link":"https://x.com/someuser/status/1234567890","platform":"X"}`},
			want{http.StatusNotFound, map[string]string{"message": "Post element not found"}},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			returning(nil, xerrors.Errorf("Navigate: %w", capture.ErrUnreachable)),
			in{http.MethodPost, `{"link":"https://x.com/someuser/status/1234567890","platform":"X"}`},
			want{http.StatusInternalServerError, map[string]string{"message": "Failed to convert post"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := routes.Convert(tt.capturer, semaphore.NewWeighted(1), routes.Deadlines{Queue: time.Second, Capture: time.Second})
			recorder := httptest.NewRecorder()
			handler(recorder, httptest.NewRequest(tt.in.method, "/", strings.NewReader(tt.in.body)))

			got := want{status: recorder.Code}
			if err := json.Unmarshal(recorder.Body.Bytes(), &got.body); err != nil {
				t.Fatalf("failed to decode %q: %s", recorder.Body.String(), err)
			}
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(want{})); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
			if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("got Content-Type %q", ct)
			}
		})
	}
}

func TestConvertPassesRequestThrough(t *testing.T) {
	var got capture.Request
	capturer := &capturerMock{
		fakeCapture: func(ctx context.Context, req capture.Request) (*capture.Result, error) {
			got = req
			if _, ok := ctx.Deadline(); !ok {
				t.Error("capture ran without a deadline")
			}
			return pngResult, nil
		},
	}
	handler := routes.Convert(capturer, semaphore.NewWeighted(1), routes.Deadlines{Queue: time.Second, Capture: time.Second})
	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"link":"https://www.threads.net/t/CuXFPIeLLod","platform":"Threads"}`)))

	want := capture.Request{Link: "https://www.threads.net/t/CuXFPIeLLod", Platform: "Threads"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestConvertBusy(t *testing.T) {
	sessions := semaphore.NewWeighted(1)
	if !sessions.TryAcquire(1) {
		t.Fatal("failed to take the only session")
	}
	defer sessions.Release(1)

	handler := routes.Convert(returning(pngResult, nil), sessions, routes.Deadlines{Queue: 10 * time.Millisecond, Capture: time.Second})
	recorder := httptest.NewRecorder()
	handler(recorder, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"link":"https://x.com/a/status/1","platform":"X"}`)))

	if recorder.Code != http.StatusServiceUnavailable {
		t.Errorf("got %d, want %d", recorder.Code, http.StatusServiceUnavailable)
	}
}

func TestConvertQueueingKeepsCaptureDeadline(t *testing.T) {
	sessions := semaphore.NewWeighted(1)
	if !sessions.TryAcquire(1) {
		t.Fatal("failed to take the only session")
	}
	held := time.AfterFunc(300*time.Millisecond, func() { sessions.Release(1) })
	defer held.Stop()

	const captureTimeout = 500 * time.Millisecond
	var left time.Duration
	capturer := &capturerMock{
		fakeCapture: func(ctx context.Context, req capture.Request) (*capture.Result, error) {
			deadline, ok := ctx.Deadline()
			if !ok {
				t.Error("capture ran without a deadline")
			}
			left = time.Until(deadline)
			return nil, xerrors.Errorf("Settle: %w", capture.ErrContentNotFound)
		},
	}

	handler := routes.Convert(capturer, sessions, routes.Deadlines{Queue: time.Second, Capture: captureTimeout})
	recorder := httptest.NewRecorder()
	handler(recorder, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"link":"https://x.com/a/status/1","platform":"X"}`)))

	if recorder.Code != http.StatusNotFound {
		t.Errorf("got %d, want %d", recorder.Code, http.StatusNotFound)
	}
	if left < captureTimeout-100*time.Millisecond {
		t.Errorf("capture started with %s left, want close to %s", left, captureTimeout)
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		in   error
		want int
	}{
		{platform.ErrInvalidLink, http.StatusBadRequest},
		{platform.ErrUnsupportedPlatform, http.StatusBadRequest},
		{capture.ErrContentNotFound, http.StatusNotFound},
		{capture.ErrNodeNotFound, http.StatusNotFound},
		{capture.ErrEmptyRegion, http.StatusNotFound},
		{capture.ErrNavigationTimeout, http.StatusInternalServerError},
		{capture.ErrUnreachable, http.StatusInternalServerError},
		{capture.ErrSessionFault, http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := routes.StatusCode(xerrors.Errorf("wrapped: %w", tt.in)); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := routes.StatusCode(nil); got != http.StatusOK {
		t.Errorf("StatusCode(nil) = %d", got)
	}
}

func TestPlatforms(t *testing.T) {
	registry, err := platform.NewDefaultRegistry(platform.DefaultTimings())
	if err != nil {
		t.Fatal(err)
	}
	recorder := httptest.NewRecorder()
	routes.Platforms(registry)(recorder, httptest.NewRequest(http.MethodGet, "/platforms", nil))

	var got struct {
		Platforms []string `json:"platforms"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"X", "Instagram", "Threads", "Facebook", "TikTok"}, got.Platforms); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
