package routes

import (
	"net/http"

	"post2image/internal/platform"
)

type platformsResponse struct {
	Platforms []string `json:"platforms"`
}

func Platforms(registry *platform.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := registry.IDs()
		names := make([]string, 0, len(ids))
		for _, id := range ids {
			names = append(names, id.String())
		}
		writeJSON(w, http.StatusOK, platformsResponse{names})
	}
}
