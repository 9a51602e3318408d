package platform

import (
	"strings"

	"golang.org/x/xerrors"
)

type ID int

const (
	X ID = iota + 1
	Instagram
	Threads
	Facebook
	TikTok
)

// IDs lists every supported platform in classification order.
var IDs = []ID{X, Instagram, Threads, Facebook, TikTok}

var ErrUnsupportedPlatform = xerrors.New("unsupported platform")

func (id ID) String() string {
	switch id {
	case X:
		return "X"
	case Instagram:
		return "Instagram"
	case Threads:
		return "Threads"
	case Facebook:
		return "Facebook"
	case TikTok:
		return "TikTok"
	default:
		return "Unknown"
	}
}

// ParseID resolves a caller supplied platform label. Matching is case-insensitive
// and "twitter" is accepted for X.
func ParseID(s string) (ID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x", "twitter":
		return X, nil
	case "instagram":
		return Instagram, nil
	case "threads":
		return Threads, nil
	case "facebook":
		return Facebook, nil
	case "tiktok":
		return TikTok, nil
	}
	return 0, xerrors.Errorf("%q: %w", s, ErrUnsupportedPlatform)
}
