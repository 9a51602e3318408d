// Package dataurl converts between raw bytes and base64 data URLs
// (data:<mime>;base64,<payload>).
package dataurl

import (
	"encoding/base64"
	"strings"

	"golang.org/x/xerrors"
)

var ErrMalformed = xerrors.New("malformed data URL")

func Encode(mimeType string, data []byte) string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mimeType) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mimeType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// Decode returns the mime type and payload of a base64 data URL.
func Decode(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, xerrors.Errorf("missing data: scheme: %w", ErrMalformed)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, xerrors.Errorf("missing payload separator: %w", ErrMalformed)
	}
	mimeType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, xerrors.Errorf("only base64 payloads are supported: %w", ErrMalformed)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, xerrors.Errorf("failed to decode payload: %v: %w", err, ErrMalformed)
	}
	return mimeType, data, nil
}
