package resolver

import "errors"

// Reasons a tier can be skipped. Resolution.Reasons wraps these, so use
// errors.Is to tell them apart.
var (
	// ErrNetwork covers transport failures and non-2xx responses
	ErrNetwork = errors.New("network error")
	// ErrBadPayload covers undecodable bodies, success=false and missing data
	ErrBadPayload = errors.New("bad payload")
	// ErrCacheMiss means no cached snapshot covers the granularity
	ErrCacheMiss = errors.New("cache miss")
)

// reasonLabel maps a fallthrough error to a metrics label
func reasonLabel(err error) string {
	switch {
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrBadPayload):
		return "bad_payload"
	case errors.Is(err, ErrCacheMiss):
		return "cache_miss"
	default:
		return "other"
	}
}
