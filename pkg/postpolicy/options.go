package postpolicy

import (
	"log/slog"
	"time"
)

// DefaultPolicyTTL is how long a signed policy stays valid (five years).
// The policy is a ceiling for a reusable upload form, not a per-request token.
const DefaultPolicyTTL = 5 * 365 * 24 * time.Hour

// Option is a functional option for configuring a Signer
type Option func(*Signer)

// WithClock sets the time source used for the policy expiration
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// WithPolicyTTL sets how far in the future the policy expires
// Default is DefaultPolicyTTL if not specified
func WithPolicyTTL(ttl time.Duration) Option {
	return func(s *Signer) {
		s.ttl = ttl
	}
}

// WithLogger sets the logger used for debug output
func WithLogger(logger *slog.Logger) Option {
	return func(s *Signer) {
		s.logger = logger
	}
}
