package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path"
	"time"
)

// Storage keeps captured images for the capture CLI.
type Storage interface {
	// Put stores data under key and returns where it ended up.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get reads back an object by the location Put returned.
	Get(ctx context.Context, location string) ([]byte, error)
}

// Key lays captures out as <platform>/<link digest>/<UTC timestamp>.png so that
// repeated captures of the same post sort together.
func Key(platform string, link string, at time.Time) string {
	digest := sha256.Sum256([]byte(link))
	return path.Join(platform, hex.EncodeToString(digest[:8]), at.UTC().Format("20060102T150405.000Z")+".png")
}
