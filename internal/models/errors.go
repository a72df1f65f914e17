package models

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure by how the pipeline should react to it.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetworkTransient
	KindNetworkPermanent
	KindExtraction
	KindModelUnavailable
	KindRateLimited
	KindContentTooLarge
	KindCacheCorruption
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNetworkTransient:
		return "network_transient"
	case KindNetworkPermanent:
		return "network_permanent"
	case KindExtraction:
		return "extraction_failure"
	case KindModelUnavailable:
		return "model_unavailable"
	case KindRateLimited:
		return "rate_limited"
	case KindContentTooLarge:
		return "content_too_large"
	case KindCacheCorruption:
		return "cache_corruption"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrNetworkTransient = &Error{Kind: KindNetworkTransient}
	ErrNetworkPermanent = &Error{Kind: KindNetworkPermanent}
	ErrExtraction       = &Error{Kind: KindExtraction}
	ErrModelUnavailable = &Error{Kind: KindModelUnavailable}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrContentTooLarge  = &Error{Kind: KindContentTooLarge}
	ErrCacheCorruption  = &Error{Kind: KindCacheCorruption}
	ErrCancelled        = &Error{Kind: KindCancelled}

	ErrNoCandidates = errors.New("no candidate articles found")
)

type Error struct {
	Kind Kind
	Op   string
	URL  string
	Err  error

	// RetryAfter is a server-provided hint for RateLimited errors.
	RetryAfter time.Duration
}

func NewError(kind Kind, op, url string, err error) *Error {
	return &Error{Kind: kind, Op: op, URL: url, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same kind, so the package sentinels
// work with errors.Is regardless of Op, URL or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetworkTransient, KindModelUnavailable, KindRateLimited:
		return true
	default:
		return false
	}
}

// RetryAfterOf returns the server retry hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// Reason renders err for the UI boundary.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if KindOf(err) == KindUnknown {
		return fmt.Sprintf("%s: %v", KindUnknown, err)
	}
	return err.Error()
}
