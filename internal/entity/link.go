// Package entity defines the entities and errors used in the application.
// It includes the Link struct, which represents a shortened URL along with its
// click counter and expiry, and the error taxonomy shared by every layer.
package entity

import (
	"errors"
	"time"
)

var (
	// ErrInvalidURL is returned when the original URL is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidCode is returned when a caller-supplied short code fails format validation.
	ErrInvalidCode = errors.New("invalid short code")
	// ErrInvalidTTL is returned when the requested time-to-live is out of range.
	ErrInvalidTTL = errors.New("invalid ttl")
	// ErrCodeTaken is returned when a caller-supplied short code is already in use.
	ErrCodeTaken = errors.New("short code taken")
	// ErrGenerationExhausted is returned when every generated short code collided.
	ErrGenerationExhausted = errors.New("short code generation exhausted")
	// ErrLinkNotFound is returned when no link exists for the short code.
	ErrLinkNotFound = errors.New("link not found")
	// ErrLinkExpired is returned when the link exists but its expiry has passed.
	ErrLinkExpired = errors.New("link expired")

	// ErrShortCodeExists is returned by a link store when a conditional write hits an existing short code.
	ErrShortCodeExists = errors.New("short code exists")
	// ErrUnavailable is returned by a link store when the backend could not be reached in time.
	ErrUnavailable = errors.New("store unavailable")
	// ErrThrottled is returned by a link store when the backend rejected the call for capacity reasons.
	ErrThrottled = errors.New("store throttled")
)

// IsTransient reports whether err is a store failure worth retrying after a backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrThrottled)
}

// Link represents a shortened URL.
type Link struct {
	ShortCode   string     // ShortCode is the primary identifier used as the path segment of the short URL.
	OriginalURL string     // OriginalURL is the full URL that the short code resolves to.
	CreatedAt   time.Time  // CreatedAt is the timestamp when the link was created.
	ExpiresAt   *time.Time // ExpiresAt is the moment the link stops resolving; nil means never.
	ClickCount  uint64     // ClickCount is the number of redirects served for the link.
	CustomCode  bool       // CustomCode is true when ShortCode was supplied by the caller.
}

// IsExpired reports whether the link is logically gone at the given moment.
// A link whose expiry equals now is already expired.
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}
