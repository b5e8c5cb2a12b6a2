package expose

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kbukum/streamkit/buffer"
	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/stream"
	"github.com/kbukum/streamkit/transform"
)

// Request is an inbound call pushed onto a route's Requests stream. ID
// correlates it with its Reply.
type Request struct {
	ID      string          `json:"id"`
	Route   string          `json:"route"`
	Payload json.RawMessage `json:"payload"`
}

// Reply answers the Request with the same ID. A non-nil Err is sent to the
// caller instead of Payload.
type Reply struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Err     error           `json:"-"`
}

// Route connects one external endpoint to three streams. Requests receives
// inbound calls; every reply for every caller is pushed to the shared
// Replies stream and routed back by ID; Events is relayed to subscribers.
type Route struct {
	Name     string
	Requests *stream.Stream[Request]
	Replies  *stream.Stream[Reply]
	Events   *stream.Stream[json.RawMessage]

	cache *buffer.Cache[json.RawMessage]
}

// NewRoute creates a route with fresh streams named after it.
func NewRoute(name string) *Route {
	return &Route{
		Name:     name,
		Requests: stream.New[Request](stream.WithName(name + ".requests")),
		Replies:  stream.New[Reply](stream.WithName(name + ".replies")),
		Events:   stream.New[json.RawMessage](stream.WithName(name + ".events")),
	}
}

// CacheEvents retains recent events so that new subscribers first receive
// what the cache holds. Call it before the route is mounted.
func (r *Route) CacheEvents(opts buffer.Options) error {
	cache, err := buffer.NewCache(r.Events, opts)
	if err != nil {
		return err
	}
	r.cache = cache
	return nil
}

// Cache returns the event cache, or nil.
func (r *Route) Cache() *buffer.Cache[json.RawMessage] { return r.cache }

func (r *Route) validate() error {
	if r.Name == "" || strings.ContainsAny(r.Name, `/\:*?[]`) {
		return errors.InvalidConfig("route.name", "route names must be non-empty and free of / \\ : * ? [ ]")
	}
	if r.Requests == nil || r.Replies == nil || r.Events == nil {
		return errors.InvalidConfig("route."+r.Name, "route streams must not be nil")
	}
	return nil
}

// Call pushes a request with the given id and waits for its reply. The
// reply subscription is opened before the push, so synchronous handlers are
// observed too.
func (r *Route) Call(ctx context.Context, id string, payload json.RawMessage) (Reply, error) {
	it := r.Replies.Filter(func(rep Reply) bool { return rep.ID == id }).Iter()
	defer it.Close()

	if err := r.Requests.Push(Request{ID: id, Route: r.Name, Payload: payload}); err != nil {
		return Reply{}, err
	}
	rep, ok, err := it.Next(ctx)
	switch {
	case ctx.Err() != nil:
		return Reply{}, errors.FromContext(ctx.Err())
	case err != nil:
		return Reply{}, err
	case !ok:
		return Reply{}, errors.Closed("stream " + r.Replies.Name())
	}
	return rep, nil
}

// Close closes the route's streams and its event cache.
func (r *Route) Close() {
	if r.cache != nil {
		r.cache.Close()
	}
	r.Requests.Close()
	r.Replies.Close()
	r.Events.Close()
}

// Handle answers every request on r with fn, scheduled by transform.Map
// with opts, and pushes the results to r.Replies. An error from fn is
// returned to the caller in place of a payload. fn receives the mapper's
// context, not the caller's. The returned function stops handling.
// Returns an INVALID_CONFIG error if fn is nil or opts are invalid.
func Handle(r *Route, fn func(context.Context, Request) (json.RawMessage, error), opts ...transform.Option) (stop func(), err error) {
	if fn == nil {
		return nil, errors.InvalidConfig("handler", "is required")
	}
	opts = append([]transform.Option{transform.WithName(r.Name + ".handler")}, opts...)
	replies, err := transform.Map(r.Requests, func(ctx context.Context, req Request) (Reply, error) {
		payload, err := fn(ctx, req)
		return Reply{ID: req.ID, Payload: payload, Err: err}, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return replies.Listen(func(rep Reply) { _ = r.Replies.Push(rep) }), nil
}
