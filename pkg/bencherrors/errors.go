// Package bencherrors defines the closed error taxonomy shared by every
// pipeline stage and by the evaluation harness. Library-layer code never
// aborts the process; it returns a *Classified wrapping one of the Kinds
// below, and only the top-level runner (cmd/prbench) decides whether a
// Kind warrants a non-zero process exit.
package bencherrors

import (
	"errors"
	"fmt"
)

// Kind is a closed taxonomy of error categories. Every stage maps its
// failures onto one of these.
type Kind string

const (
	// Transient covers network blips, 5xx responses, and rate-limit
	// signals that are expected to clear with a retry.
	Transient Kind = "transient"
	// Budget covers rate-limit or LLM budget exhaustion; work must be
	// suspended, never discarded.
	Budget Kind = "budget"
	// DataReject covers filter misses (bot author, disallowed language,
	// wrong org type, blocklist, quota already satisfied).
	DataReject Kind = "data_reject"
	// Unsound covers candidates that cannot produce a trustworthy task
	// instance: empty patch, no applicable tests, dual-commit failure.
	Unsound Kind = "unsound"
	// InfraFail covers container-create failures, disk full, and other
	// environment-level faults.
	InfraFail Kind = "infra_fail"
	// Fatal covers missing credentials or a corrupt cache; surfaced to
	// the caller, process exits non-zero.
	Fatal Kind = "fatal"
)

// Classified is the error type every component returns. Reason is a short,
// stable, machine-sortable tag (e.g. "bot_author", "test_only",
// "validation_failed") used for cache rejection reasons and counters.
type Classified struct {
	Kind   Kind
	Reason string
	Err    error
}

func (c *Classified) Error() string {
	if c.Err == nil {
		return fmt.Sprintf("%s: %s", c.Kind, c.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", c.Kind, c.Reason, c.Err)
}

func (c *Classified) Unwrap() error { return c.Err }

// New wraps err (which may be nil) as a Classified error with the given
// kind and reason.
func New(kind Kind, reason string, err error) *Classified {
	return &Classified{Kind: kind, Reason: reason, Err: err}
}

// Is reports whether err is a Classified error of the given kind.
func Is(err error, kind Kind) bool {
	var c *Classified
	if errors.As(err, &c) {
		return c.Kind == kind
	}
	return false
}

// ReasonOf extracts the Reason tag from a Classified error, or "" if err is
// not Classified.
func ReasonOf(err error) string {
	var c *Classified
	if errors.As(err, &c) {
		return c.Reason
	}
	return ""
}
