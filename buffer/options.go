package buffer

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/validation"
)

// DropPolicy decides which value is lost when a full buffer receives a new
// one.
type DropPolicy int

const (
	// DropOldest evicts the oldest retained value to make room.
	DropOldest DropPolicy = iota
	// DropNewest rejects the incoming value.
	DropNewest
)

func (p DropPolicy) String() string {
	switch p {
	case DropOldest:
		return "oldest"
	case DropNewest:
		return "newest"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

func (p DropPolicy) valid() bool { return p == DropOldest || p == DropNewest }

// ParseDropPolicy parses "oldest" or "newest". The empty string is
// DropOldest.
func ParseDropPolicy(s string) (DropPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "oldest":
		return DropOldest, nil
	case "newest":
		return DropNewest, nil
	default:
		return DropOldest, errors.InvalidConfig("drop_policy", fmt.Sprintf("unknown drop policy %q", s))
	}
}

// DropReason says why values left a buffer without being consumed.
type DropReason string

const (
	ReasonEvicted  DropReason = "evicted"
	ReasonRejected DropReason = "rejected"
	ReasonExpired  DropReason = "expired"
)

// Options configures a Buffer, Cache or Queue.
type Options struct {
	// Capacity is the maximum number of retained values. Must be >= 1.
	Capacity int
	// DropPolicy applies when a value arrives at capacity.
	DropPolicy DropPolicy
	// TTL, when positive, expires values that have been retained for at
	// least TTL. Expiry is checked on access and push only.
	TTL time.Duration

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// OnDrop, if set, is called after values are dropped. It must not call
	// back into the buffer.
	OnDrop func(reason DropReason, n int)
}

// Validate reports misconfiguration as an INVALID_CONFIG error.
func (o Options) Validate() error {
	v := validation.New()
	v.Min("capacity", o.Capacity, 1)
	v.Custom(o.DropPolicy.valid(), "drop_policy", "must be oldest or newest")
	v.NonNegative("ttl", o.TTL)
	if appErr := v.ValidateConfig(); appErr != nil {
		return appErr
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.Clock == nil {
		o.Clock = time.Now
	}
}
