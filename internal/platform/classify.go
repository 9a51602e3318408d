package platform

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/xerrors"
)

var ErrInvalidLink = xerrors.New("invalid link")

type linkShape struct {
	id    ID
	hosts []string
	path  *regexp.Regexp
	// query reports whether the raw query takes part in matching, for
	// platforms whose post identity lives in query parameters.
	query bool
}

// Shapes are mutually exclusive by host, so order only matters for readability.
var linkShapes = []linkShape{
	{
		id:    X,
		hosts: []string{"x.com", "twitter.com"},
		path:  regexp.MustCompile(`^/[A-Za-z0-9_]+/status/\d+/?$`),
	},
	{
		id:    Instagram,
		hosts: []string{"instagram.com"},
		path:  regexp.MustCompile(`^/(?:p|reel)/[A-Za-z0-9_-]+/?$`),
	},
	{
		id:    Threads,
		hosts: []string{"threads.net", "threads.com"},
		path:  regexp.MustCompile(`^/(?:t/[A-Za-z0-9_-]+|@[\w.]+/post/[A-Za-z0-9_-]+)/?$`),
	},
	{
		id:    TikTok,
		hosts: []string{"tiktok.com"},
		path:  regexp.MustCompile(`^/@[\w.-]+/video/\d+/?$`),
	},
	{
		id:    Facebook,
		hosts: []string{"facebook.com", "fb.com"},
		path:  regexp.MustCompile(`^/(?:photo\.php\?fbid=\d+(?:&.*)?|permalink\.php\?story_fbid=\d+&id=\d+(?:&.*)?|[\w.-]+/posts/[\w.-]+|groups/\d+/permalink/\d+)/?$`),
		query: true,
	},
}

// ParseLink parses link as an absolute http or https URL.
func ParseLink(link string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return nil, xerrors.Errorf("failed to parse %q: %w", link, ErrInvalidLink)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, xerrors.Errorf("%q is not an absolute http(s) URL: %w", link, ErrInvalidLink)
	}
	return u, nil
}

// NormalizeHost lower-cases a hostname without port, as url.URL.Hostname
// returns it, and strips one leading "www." or "m." label.
func NormalizeHost(hostname string) string {
	host := strings.TrimSuffix(strings.ToLower(hostname), ".")
	for _, prefix := range []string{"www.", "m."} {
		if strings.HasPrefix(host, prefix) {
			return strings.TrimPrefix(host, prefix)
		}
	}
	return host
}

// Classify infers the platform a post link belongs to. It never touches the
// network and holds no state.
func Classify(link string) (ID, error) {
	u, err := ParseLink(link)
	if err != nil {
		return 0, err
	}

	host := NormalizeHost(u.Hostname())
	for _, shape := range linkShapes {
		if !shape.matchHost(host) {
			continue
		}
		target := u.EscapedPath()
		if shape.query && u.RawQuery != "" {
			target += "?" + u.RawQuery
		}
		if shape.path.MatchString(target) || shape.path.MatchString(u.EscapedPath()) {
			return shape.id, nil
		}
	}
	return 0, xerrors.Errorf("%q does not look like a supported post: %w", link, ErrInvalidLink)
}

func (s linkShape) matchHost(host string) bool {
	for _, h := range s.hosts {
		if host == h {
			return true
		}
	}
	return false
}
