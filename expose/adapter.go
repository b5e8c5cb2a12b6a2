package expose

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/streamkit/component"
	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
	"github.com/kbukum/streamkit/version"
)

// HeaderCorrelationID carries the id assigned to a request.
const HeaderCorrelationID = "X-Correlation-Id"

// Transports reported in metrics and client logs.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithMetrics records request and subscriber metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithService sets the service name and version reported by /health.
func WithService(name, version string) Option {
	return func(a *Adapter) {
		a.serviceName = name
		a.version = version
	}
}

// WithHealthCheck adds the results of fn to /health, typically
// component.Registry.HealthAll.
func WithHealthCheck(fn func(ctx context.Context) []component.Health) Option {
	return func(a *Adapter) { a.healthCheck = fn }
}

// Adapter serves mounted routes over HTTP:
//
//	POST /streams/:name         request/reply
//	GET  /streams/:name/events  server-sent events
//	GET  /streams/:name/ws      WebSocket requests, replies and events
//	GET  /streams               mounted routes
//	GET  /health                service health
//	GET  /version               build information
//
// It implements component.Component.
type Adapter struct {
	cfg         Config
	serviceName string
	version     string
	metrics     *observability.Metrics
	healthCheck func(ctx context.Context) []component.Health
	log         *logger.Logger

	engine   *gin.Engine
	handler  http.Handler
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	routes   []*Route
	registry *Registry
	server   *http.Server
	addr     string
}

var _ component.Component = (*Adapter)(nil)

// New creates an adapter. Defaults are applied to cfg before it is
// validated.
func New(cfg Config, opts ...Option) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Adapter{
		cfg:         cfg,
		serviceName: "streamkit",
		log:         logger.Get("expose"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(a)
	}

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	a.engine = gin.New()
	a.engine.Use(Recovery(a.log), RequestID(), RequestLogger(a.log))
	a.engine.GET("/health", a.serveHealth)
	a.engine.GET("/version", func(c *gin.Context) { c.JSON(http.StatusOK, version.Get()) })
	a.engine.GET("/streams", a.serveList)
	a.engine.POST("/streams/:name", a.serveRequest)
	a.engine.GET("/streams/:name/events", a.serveEvents)
	a.engine.GET("/streams/:name/ws", a.serveWebSocket)

	a.handler = h2c.NewHandler(a.engine, &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          cfg.IdleTimeout,
	})
	return a, nil
}

// Mount adds a route. Routes mounted while the adapter runs are served
// immediately. Returns INVALID_CONFIG for an invalid or duplicate route.
func (a *Adapter) Mount(r *Route) error {
	if err := r.validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, existing := range a.routes {
		if existing.Name == r.Name {
			return errors.InvalidConfig("route.name", fmt.Sprintf("route %q is already mounted", r.Name))
		}
	}
	if a.registry != nil {
		if err := a.registry.add(r); err != nil {
			return err
		}
	}
	a.routes = append(a.routes, r)
	return nil
}

// Registry returns the registry of the running adapter, or nil.
func (a *Adapter) Registry() *Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registry
}

// Handler returns the adapter's HTTP handler, for embedding or tests.
func (a *Adapter) Handler() http.Handler { return a.handler }

// Addr returns the bound address once started, else the configured one.
func (a *Adapter) Addr() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.addr != "" {
		return a.addr
	}
	return a.cfg.Addr()
}

// Name implements component.Component.
func (a *Adapter) Name() string { return "expose" }

// Start mounts the routes and begins serving. It returns once the port is
// bound; serving continues in a goroutine.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.registry != nil {
		return nil
	}

	reg := newRegistry()
	for _, r := range a.routes {
		if err := reg.add(r); err != nil {
			reg.close()
			return err
		}
	}

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		reg.close()
		return fmt.Errorf("expose failed to bind %s: %w", a.cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:      a.handler,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}
	go func() {
		if err := srv.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			a.log.Error("server error", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	a.registry = reg
	a.server = srv
	a.addr = listener.Addr().String()
	a.log.Info("serving streams", logger.Fields("addr", a.addr, "routes", len(a.routes)))
	return nil
}

// Stop disconnects every subscriber and shuts the server down within
// Config.ShutdownTimeout. Mounted routes are kept for a later Start.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	reg, srv := a.registry, a.server
	a.registry, a.server, a.addr = nil, nil, ""
	a.mu.Unlock()
	if reg == nil {
		return nil
	}

	reg.close()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("shutdown error", logger.Fields(logger.FieldError, err.Error()))
		return fmt.Errorf("expose shutdown error: %w", err)
	}
	a.log.Info("stopped serving streams")
	return nil
}

// Health implements component.Component.
func (a *Adapter) Health(ctx context.Context) component.Health {
	reg := a.Registry()
	if reg == nil {
		return component.Health{Name: a.Name(), Status: component.StatusUnhealthy, Message: "not running"}
	}
	return component.Health{
		Name:    a.Name(),
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("routes=%d clients=%d", len(reg.Names()), reg.Hub().ClientCount()),
	}
}

// Describe implements component.Describable.
func (a *Adapter) Describe() component.Description {
	a.mu.RLock()
	n := len(a.routes)
	a.mu.RUnlock()
	return component.Description{
		Name:    "Streams",
		Type:    "server",
		Details: fmt.Sprintf("%s routes=%d", a.Addr(), n),
		Port:    a.cfg.Port,
	}
}

// Routes implements component.RouteProvider.
func (a *Adapter) Routes() []component.Route {
	return []component.Route{
		{Method: http.MethodGet, Path: "/health", Handler: "health"},
		{Method: http.MethodGet, Path: "/version", Handler: "version"},
		{Method: http.MethodGet, Path: "/streams", Handler: "list"},
		{Method: http.MethodPost, Path: "/streams/:name", Handler: "request"},
		{Method: http.MethodGet, Path: "/streams/:name/events", Handler: "sse"},
		{Method: http.MethodGet, Path: "/streams/:name/ws", Handler: "websocket"},
	}
}

func (a *Adapter) lookup(name string) (*Route, *Registry, error) {
	reg := a.Registry()
	if reg == nil {
		return nil, nil, errors.Closed("adapter")
	}
	r, ok := reg.Route(name)
	if !ok {
		return nil, nil, errors.NotFound("route", name)
	}
	return r, reg, nil
}

func (a *Adapter) serveRequest(c *gin.Context) {
	name := c.Param("name")
	r, _, err := a.lookup(name)
	if err != nil {
		respondError(c, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, a.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			respondError(c, errors.InvalidInput("body", fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)))
			return
		}
		respondError(c, errors.InvalidInput("body", err.Error()))
		return
	}
	if !json.Valid(body) {
		respondError(c, errors.InvalidInput("body", "request body must be valid JSON"))
		return
	}

	id := uuid.NewString()
	c.Header(HeaderCorrelationID, id)

	op := observability.NewOperation(name, id, a.metrics)
	ctx, span := op.Start(logger.ContextWithCorrelationID(c.Request.Context(), id), observability.SpanRequest)
	span.SetAttributes(attribute.String(observability.AttrTransport, "http"))
	if a.cfg.ReplyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ReplyTimeout)
		defer cancel()
	}

	rep, err := r.Call(ctx, id, body)
	if err == nil {
		err = rep.Err
	}
	status := "ok"
	if err != nil {
		status = string(errors.CodeOf(err))
	}
	op.End(ctx, span, status, err)

	if err != nil {
		a.log.WithContext(ctx).Debug("request failed", logger.Fields(
			logger.FieldRoute, name,
			logger.FieldError, err.Error(),
		))
		respondError(c, err)
		return
	}
	respondOK(c, id, rep.Payload)
}

func (a *Adapter) serveList(c *gin.Context) {
	reg := a.Registry()
	if reg == nil {
		respondError(c, errors.Closed("adapter"))
		return
	}
	names := reg.Names()
	infos := make([]RouteInfo, 0, len(names))
	for _, name := range names {
		r, ok := reg.Route(name)
		if !ok {
			continue
		}
		info := RouteInfo{Name: name, Listeners: r.Requests.ListenerCount()}
		if cache := r.Cache(); cache != nil {
			info.Cached = true
			info.Retained = cache.Len()
		}
		infos = append(infos, info)
	}
	respondOK(c, "", infos)
}

func (a *Adapter) serveHealth(c *gin.Context) {
	ctx := c.Request.Context()
	sh := observability.NewServiceHealth(a.serviceName, a.version)
	sh.AddComponent(a.Health(ctx))
	if a.healthCheck != nil {
		for _, h := range a.healthCheck(ctx) {
			if h.Name == a.Name() {
				continue
			}
			sh.AddComponent(h)
		}
	}

	status := http.StatusOK
	if sh.Status == observability.HealthStatusDown {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, sh)
}

// subscribe attaches a new client of the given transport to the route
// called name and starts its subscription span.
func (a *Adapter) subscribe(c *gin.Context, transport string) (*subscription, error) {
	name := c.Param("name")
	r, reg, err := a.lookup(name)
	if err != nil {
		return nil, err
	}

	client := NewClient(name+":"+uuid.NewString(), name, transport, a.cfg.ClientBuffer)
	detach, ok := reg.attach(client, r)
	if !ok {
		return nil, errors.Closed("adapter")
	}

	ctx := context.WithoutCancel(c.Request.Context())
	ctx, span := observability.StartSpan(ctx, observability.SpanSubscribe)
	span.SetAttributes(
		attribute.String(observability.AttrRoute, name),
		attribute.String(observability.AttrClientID, client.ID()),
		attribute.String(observability.AttrTransport, transport),
	)
	if a.metrics != nil {
		a.metrics.ClientConnected(ctx, name, transport)
	}
	a.log.Debug("client connected", logger.Fields(
		logger.FieldClientID, client.ID(),
		logger.FieldRoute, name,
		"transport", transport,
		"remote_addr", c.Request.RemoteAddr,
	))

	return &subscription{
		route:  r,
		client: client,
		end: func() {
			detach()
			if a.metrics != nil {
				a.metrics.ClientDisconnected(ctx, name, transport)
			}
			span.End()
			a.log.Debug("client disconnected", logger.Fields(logger.FieldClientID, client.ID()))
		},
	}, nil
}

type subscription struct {
	route  *Route
	client *Client
	end    func()
}

func (a *Adapter) serveEvents(c *gin.Context) {
	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(c, errors.Internal(stderrors.New("streaming not supported")))
		return
	}

	sub, err := a.subscribe(c, TransportSSE)
	if err != nil {
		respondError(c, err)
		return
	}
	defer sub.end()

	// SSE connections outlive the server's WriteTimeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		a.log.Warn("could not disable write deadline", logger.Fields(
			logger.FieldClientID, sub.client.ID(),
			logger.FieldError, err.Error(),
		))
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	connected, _ := encode(Envelope{Type: EventTypeConnected, ID: sub.client.ID()})
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", EventTypeConnected, connected)
	flusher.Flush()

	keepAlive := time.NewTicker(a.cfg.KeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-sub.client.Events():
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()

		case <-keepAlive.C:
			_, _ = fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix())
			flusher.Flush()
		}
	}
}

// inbound is a request frame sent by a WebSocket client.
type inbound struct {
	Ref     string          `json:"ref"`
	Payload json.RawMessage `json:"payload"`
}

func (a *Adapter) serveWebSocket(c *gin.Context) {
	if _, _, err := a.lookup(c.Param("name")); err != nil {
		respondError(c, err)
		return
	}

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Warn("websocket upgrade failed", logger.Fields(logger.FieldError, err.Error()))
		return
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Time{})

	sub, err := a.subscribe(c, TransportWebSocket)
	if err != nil {
		a.writeClose(conn, websocket.CloseGoingAway)
		return
	}
	defer sub.end()

	r, client := sub.route, sub.client

	// Pending maps correlation ids of this connection to client refs.
	var pending sync.Map
	stopReplies := r.Replies.Listen(func(rep Reply) {
		ref, ok := pending.LoadAndDelete(rep.ID)
		if !ok {
			return
		}
		if data, err := encode(replyEnvelope(rep, ref.(string))); err == nil {
			client.Send(data)
		}
	})
	defer stopReplies()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			a.receive(r, client, &pending, data)
		}
	}()

	connected, _ := encode(Envelope{Type: EventTypeConnected, ID: client.ID()})
	if err := a.write(conn, connected); err != nil {
		return
	}

	ping := time.NewTicker(a.cfg.KeepAlive)
	defer ping.Stop()

	for {
		select {
		case <-readDone:
			return

		case frame, ok := <-client.Events():
			if !ok {
				a.writeClose(conn, websocket.CloseGoingAway)
				return
			}
			if err := a.write(conn, frame); err != nil {
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(a.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// receive pushes one inbound frame onto r.Requests. Malformed frames are
// answered with an error envelope.
func (a *Adapter) receive(r *Route, client *Client, pending *sync.Map, data []byte) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil || len(in.Payload) == 0 {
		a.sendError(client, in.Ref, errors.InvalidInput("payload", "frames must be JSON objects with a payload"))
		return
	}

	id := uuid.NewString()
	pending.Store(id, in.Ref)
	if err := r.Requests.Push(Request{ID: id, Route: r.Name, Payload: in.Payload}); err != nil {
		pending.Delete(id)
		a.sendError(client, in.Ref, err)
	}
}

func (a *Adapter) sendError(client *Client, ref string, err error) {
	data, encErr := encode(Envelope{Type: EventTypeError, Ref: ref, Error: errorBody(err)})
	if encErr != nil {
		return
	}
	client.Send(data)
}

func (a *Adapter) write(conn *websocket.Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (a *Adapter) writeClose(conn *websocket.Conn, code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
