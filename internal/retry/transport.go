package retry

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/xerrors"
)

// maxDrain bounds how much of a discarded response is read so the
// connection can be reused.
const maxDrain = 64 << 10

// Transport retries round trips according to On and Strategy. Requests with
// a body are only retried when GetBody is set.
type Transport struct {
	Base     http.RoundTripper
	Strategy Strategy
	On       *On
}

func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	replayable := request.Body == nil || request.Body == http.NoBody || request.GetBody != nil

	current := request
	for attempt := uint(0); ; attempt++ {
		response, err := t.base().RoundTrip(current)

		sleep, exhausted := t.strategy().Sleep(attempt)
		if exhausted || !replayable || !t.shouldRetry(response, err) {
			return response, err
		}
		if response != nil {
			sleep = max(sleep, retryAfter(response))
			_, _ = io.CopyN(io.Discard, response.Body, maxDrain)
			_ = response.Body.Close()
		}

		slog.Debug("retrying request", "url", request.URL.String(), "attempt", attempt+1, "sleep", sleep, "error", err)

		timer := time.NewTimer(sleep)
		select {
		case <-request.Context().Done():
			timer.Stop()
			return nil, request.Context().Err()
		case <-timer.C:
		}

		current, err = rewind(request)
		if err != nil {
			return nil, err
		}
	}
}

func (t *Transport) shouldRetry(response *http.Response, err error) bool {
	if t.On == nil {
		return false
	}
	if err != nil {
		return t.On.Error(err)
	}
	return t.On.Response(response)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) strategy() Strategy {
	if t.Strategy != nil {
		return t.Strategy
	}
	return Never{}
}

func rewind(request *http.Request) (*http.Request, error) {
	clone := request.Clone(request.Context())
	if request.GetBody == nil {
		return clone, nil
	}
	body, err := request.GetBody()
	if err != nil {
		return nil, xerrors.Errorf("failed to rewind request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

// retryAfter reads a delay-seconds Retry-After header.
func retryAfter(response *http.Response) time.Duration {
	seconds, err := strconv.Atoi(response.Header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
