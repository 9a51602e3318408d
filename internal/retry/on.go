package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/xerrors"
)

// On decides which outcomes of a round trip are worth another attempt.
type On struct {
	serverError    bool
	gatewayError   bool
	busy           bool
	connectFailure bool
	statusCodes    []int
}

// DefaultOn retries connection failures, gateway errors and an overloaded
// capture service.
func DefaultOn() *On {
	return &On{
		gatewayError:   true,
		busy:           true,
		connectFailure: true,
	}
}

// ParseOn reads a comma separated list of "5xx", "gateway-error", "busy",
// "connect-failure" and plain status codes.
func ParseOn(s string) (*On, error) {
	o := &On{}
	for _, token := range strings.Split(s, ",") {
		switch token = strings.TrimSpace(token); token {
		case "":
		case "5xx":
			o.serverError = true
		case "gateway-error":
			o.gatewayError = true
		case "busy":
			o.busy = true
		case "connect-failure":
			o.connectFailure = true
		default:
			code, err := strconv.Atoi(token)
			if err != nil || code < 100 || code > 599 {
				return nil, xerrors.Errorf("invalid retry condition %q", token)
			}
			o.statusCodes = append(o.statusCodes, code)
		}
	}
	return o, nil
}

// String renders o in the form ParseOn reads.
func (o *On) String() string {
	var tokens []string
	if o.serverError {
		tokens = append(tokens, "5xx")
	}
	if o.gatewayError {
		tokens = append(tokens, "gateway-error")
	}
	if o.busy {
		tokens = append(tokens, "busy")
	}
	if o.connectFailure {
		tokens = append(tokens, "connect-failure")
	}
	for _, c := range o.statusCodes {
		tokens = append(tokens, strconv.Itoa(c))
	}
	return strings.Join(tokens, ",")
}

func (o *On) Response(response *http.Response) bool {
	code := response.StatusCode
	switch {
	case o.serverError && code >= 500 && code < 600,
		o.gatewayError && (code == http.StatusBadGateway || code == http.StatusGatewayTimeout),
		o.busy && (code == http.StatusServiceUnavailable || code == http.StatusTooManyRequests):
		return true
	}
	for _, c := range o.statusCodes {
		if c == code {
			return true
		}
	}
	return false
}

func (o *On) Error(err error) bool {
	if !o.connectFailure && !o.serverError {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	type temporary interface{ Temporary() bool }
	var terr temporary
	var opErr *net.OpError
	return (errors.As(err, &terr) && terr.Temporary()) ||
		(errors.As(err, &opErr) && opErr.Op == "dial") ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
