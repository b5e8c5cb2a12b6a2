package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/validation"
)

// Strategy selects how Map schedules its mapping function.
type Strategy int

const (
	// Sequential maps one value at a time in arrival order.
	Sequential Strategy = iota
	// ConcurrentUnordered starts every value as it arrives and emits results
	// as they complete.
	ConcurrentUnordered
	// ConcurrentOrdered starts every value as it arrives and emits results
	// in arrival order.
	ConcurrentOrdered
)

var strategyNames = map[Strategy]string{
	Sequential:          "sequential",
	ConcurrentUnordered: "concurrent",
	ConcurrentOrdered:   "ordered",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy parses the configuration spelling of a strategy. The empty
// string is Sequential.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential":
		return Sequential, nil
	case "concurrent", "unordered", "concurrent_unordered":
		return ConcurrentUnordered, nil
	case "ordered", "concurrent_ordered":
		return ConcurrentOrdered, nil
	default:
		return Sequential, errors.InvalidConfig("strategy", fmt.Sprintf("unknown strategy %q", s))
	}
}

// ErrorPolicy decides what Map does when the mapping function fails.
type ErrorPolicy int

const (
	// Continue fails the output at the failed value's position and keeps
	// mapping.
	Continue ErrorPolicy = iota
	// Abort fails and closes the output and cancels work in flight.
	Abort
)

func (p ErrorPolicy) String() string {
	switch p {
	case Continue:
		return "continue"
	case Abort:
		return "abort"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseErrorPolicy parses "continue" or "abort". The empty string is
// Continue.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continue":
		return Continue, nil
	case "abort":
		return Abort, nil
	default:
		return Continue, errors.InvalidConfig("error_policy", fmt.Sprintf("unknown error policy %q", s))
	}
}

// Observer receives one callback pair per mapped value. Implementations must
// be safe for concurrent use.
type Observer interface {
	MapStarted(name string)
	MapFinished(name string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) MapStarted(string)                        {}
func (nopObserver) MapFinished(string, time.Duration, error) {}

// Option configures Map.
type Option func(*options)

type options struct {
	name        string
	strategy    Strategy
	concurrency int
	policy      ErrorPolicy
	observer    Observer
}

// WithStrategy selects the scheduling strategy. Default Sequential.
func WithStrategy(s Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithConcurrency bounds the number of values mapped at once by the
// concurrent strategies. n <= 0 means unbounded.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithErrorPolicy selects what happens when the mapping function fails.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithObserver reports per-value timings to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithName names the output stream.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func applyOptions(opts []Option) options {
	o := options{observer: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	return o
}

// validate reports misconfiguration as an INVALID_CONFIG error.
func (o options) validate(hasFn bool) error {
	v := validation.New()
	v.Custom(hasFn, "fn", "is required")
	_, known := strategyNames[o.strategy]
	v.Custom(known, "strategy", "must be sequential, concurrent or ordered")
	v.Custom(o.policy == Continue || o.policy == Abort, "error_policy", "must be continue or abort")
	if err := v.ValidateConfig(); err != nil {
		return err
	}
	return nil
}
