// Package admission implements the per-request admission-control core:
// endpoint classification, distributed sliding-window rate limiting, IP
// blocking and whitelisting, and the gin middleware tying them together.
package admission

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dropforge/dropforge/internal/storage"
)

// Category classifies an endpoint for rate-limiting purposes.
type Category string

const (
	CategoryAuth   Category = "auth"
	CategoryUpload Category = "upload"
	CategoryAdmin  Category = "admin"
	CategoryAPI    Category = "api"
)

// Categories lists all endpoint categories.
var Categories = []Category{CategoryAuth, CategoryUpload, CategoryAdmin, CategoryAPI}

// Window identifies one of the two trailing windows every request is checked
// against.
type Window string

const (
	WindowShort Window = "1m"
	WindowLong  Window = "1h"
)

// Windows lists both rate-limit windows.
var Windows = []Window{WindowShort, WindowLong}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	if w == WindowLong {
		return time.Hour
	}
	return time.Minute
}

// RateKey identifies one counter series: a category, a subject IP and a
// window. Its string form is the storage key, so derivation must stay
// deterministic.
type RateKey struct {
	Category Category
	Subject  string
	Window   Window
}

func (k RateKey) String() string {
	return storage.WindowKey(string(k.Category), k.Subject, string(k.Window))
}

// SubjectKeys returns every possible rate key for one IP. Used to reset a
// subject's counters without scanning the keyspace.
func SubjectKeys(ip string) []string {
	keys := make([]string, 0, len(Categories)*len(Windows))
	for _, c := range Categories {
		for _, w := range Windows {
			keys = append(keys, RateKey{Category: c, Subject: ip, Window: w}.String())
		}
	}
	return keys
}

// CategoryFromPath classifies a request path. Auth-ish paths are matched
// before upload and admin paths; anything unrecognized is general API
// traffic.
func CategoryFromPath(p string) Category {
	p = strings.ToLower(p)
	switch {
	case strings.Contains(p, "/login"), strings.Contains(p, "/register"), strings.Contains(p, "/auth"):
		return CategoryAuth
	case strings.Contains(p, "/upload"):
		return CategoryUpload
	case strings.Contains(p, "/admin"):
		return CategoryAdmin
	default:
		return CategoryAPI
	}
}

// ClientIP extracts the client address with proxy-header precedence: the
// first hop of X-Forwarded-For, then X-Real-IP, then the transport peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
