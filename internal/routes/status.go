package routes

import (
	"errors"
	"net/http"

	"post2image/internal/capture"
	"post2image/internal/platform"
)

// StatusCode maps a capture error to the status returned to callers.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, platform.ErrInvalidLink),
		errors.Is(err, platform.ErrUnsupportedPlatform):
		return http.StatusBadRequest
	case errors.Is(err, capture.ErrContentNotFound),
		errors.Is(err, capture.ErrNodeNotFound),
		errors.Is(err, capture.ErrEmptyRegion):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func message(err error) string {
	switch {
	case errors.Is(err, platform.ErrInvalidLink):
		return "Invalid link."
	case errors.Is(err, platform.ErrUnsupportedPlatform):
		return "Unsupported platform."
	}
	switch StatusCode(err) {
	case http.StatusNotFound:
		return "Post element not found"
	default:
		return "Failed to convert post"
	}
}
