package expose

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/stream"
)

// Frame types written to subscribers.
const (
	EventTypeConnected = "connected"
	EventTypeEvent     = "event"
	EventTypeReply     = "reply"
	EventTypeError     = "error"
)

// Envelope is the JSON frame sent over SSE and WebSocket connections. Ref
// echoes the reference a WebSocket client attached to its request.
type Envelope struct {
	Type    string            `json:"type"`
	ID      string            `json:"id,omitempty"`
	Ref     string            `json:"ref,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
	Error   *errors.ErrorBody `json:"error,omitempty"`
}

func encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func replyEnvelope(rep Reply, ref string) Envelope {
	env := Envelope{Type: EventTypeReply, ID: rep.ID, Ref: ref, Payload: rep.Payload}
	if rep.Err != nil {
		env.Error = errorBody(rep.Err)
	}
	return env
}

func errorBody(err error) *errors.ErrorBody {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		appErr = errors.Internal(err)
	}
	body := appErr.ToResponse().Error
	return &body
}

// Registry holds the routes served by a running Adapter and the hub of their
// event subscribers. An Adapter creates one when it starts and closes it
// when it stops.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]*mount
	hub    *Hub
	wg     sync.WaitGroup
	closed bool
	log    *logger.Logger
}

type mount struct {
	route       *Route
	unsubscribe func()
}

func newRegistry() *Registry {
	g := &Registry{
		routes: make(map[string]*mount),
		hub:    NewHub(),
		log:    logger.Get("expose"),
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.hub.Run()
	}()
	return g
}

func (g *Registry) add(r *Route) error {
	if err := r.validate(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errors.Closed("route registry")
	}
	if _, exists := g.routes[r.Name]; exists {
		return errors.InvalidConfig("route.name", fmt.Sprintf("route %q is already mounted", r.Name))
	}

	m := &mount{route: r, unsubscribe: func() {}}
	if r.cache == nil {
		pattern := r.Name + ":*"
		m.unsubscribe = r.Events.Listen(func(v json.RawMessage) {
			data, err := encode(Envelope{Type: EventTypeEvent, Payload: v})
			if err != nil {
				g.log.Warn("event dropped", logger.ErrorFields(r.Events.Name(), err))
				return
			}
			g.hub.BroadcastToPattern(pattern, data)
		})
	}
	g.routes[r.Name] = m
	g.log.Debug("route mounted", logger.Fields(logger.FieldRoute, r.Name, "cached", r.cache != nil))
	return nil
}

// Route returns the mounted route called name.
func (g *Registry) Route(name string) (*Route, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.routes[name]
	if !ok {
		return nil, false
	}
	return m.route, true
}

// Names returns the sorted names of the mounted routes.
func (g *Registry) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.routes))
	for name := range g.routes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Hub returns the subscriber hub.
func (g *Registry) Hub() *Hub { return g.hub }

// attach registers c as a subscriber of r. Events of a cached route are fed
// to c from the cache, starting with what it retains. detach must be called
// once c is done.
func (g *Registry) attach(c *Client, r *Route) (detach func(), ok bool) {
	if !g.hub.Register(c) {
		return nil, false
	}
	if r.cache == nil {
		return func() { g.hub.Unregister(c) }, true
	}

	it := r.cache.Iter()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.feed(ctx, it, c)
	}()
	return func() {
		cancel()
		<-done
		_ = it.Close()
		g.hub.Unregister(c)
	}, true
}

func (g *Registry) feed(ctx context.Context, it stream.Iterator[json.RawMessage], c *Client) {
	for {
		v, ok, err := it.Next(ctx)
		switch {
		case ctx.Err() != nil, !ok && err == nil:
			return
		case err != nil:
			continue
		}
		data, err := encode(Envelope{Type: EventTypeEvent, Payload: v})
		if err != nil {
			g.log.Warn("event dropped", logger.Fields(logger.FieldClientID, c.ID(), logger.FieldError, err.Error()))
			continue
		}
		c.Send(data)
	}
}

// close unmounts every route and disconnects every subscriber.
func (g *Registry) close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	mounts := g.routes
	g.routes = make(map[string]*mount)
	g.mu.Unlock()

	for _, m := range mounts {
		m.unsubscribe()
	}
	g.hub.Stop()
	g.wg.Wait()
}
