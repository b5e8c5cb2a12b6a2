package expose

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/kbukum/streamkit/buffer"
	"github.com/kbukum/streamkit/component"
	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/transform"
	"github.com/kbukum/streamkit/version"
)

var client = &http.Client{Timeout: 5 * time.Second}

func startAdapter(t *testing.T, cfg Config, opts []Option, routes ...*Route) (*Adapter, string) {
	t.Helper()
	cfg.Host = "127.0.0.1"
	a, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, r := range routes {
		if err := a.Mount(r); err != nil {
			t.Fatalf("Mount(%s): %v", r.Name, err)
		}
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a, "http://" + a.Addr()
}

func echoRoute(t *testing.T, name string) *Route {
	t.Helper()
	r := NewRoute(name)
	stop, err := Handle(r, func(_ context.Context, req Request) (json.RawMessage, error) {
		if string(req.Payload) == `"fail"` {
			return nil, errors.InvalidInput("payload", "fail requested")
		}
		return req.Payload, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		stop()
		r.Close()
	})
	return r
}

type dataBody struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := client.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func errorCode(t *testing.T, body []byte) errors.ErrorCode {
	t.Helper()
	var resp errors.ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("error body %q: %v", body, err)
	}
	return resp.Error.Code
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestConfig_DefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:0" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}

	cfg.Port = 70000
	cfg.ClientBuffer = -1
	if err := cfg.Validate(); errors.CodeOf(err) != errors.ErrCodeInvalidConfig {
		t.Errorf("Validate() = %v, want INVALID_CONFIG", err)
	}
}

func TestAdapter_PostEcho(t *testing.T) {
	_, base := startAdapter(t, Config{}, nil, echoRoute(t, "echo"))

	resp, body := post(t, base+"/streams/echo", `{"n": 1}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var got dataBody
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if string(got.Data) != `{"n":1}` {
		t.Errorf("data = %s", got.Data)
	}
	if got.ID == "" || resp.Header.Get(HeaderCorrelationID) != got.ID {
		t.Errorf("id = %q, header = %q", got.ID, resp.Header.Get(HeaderCorrelationID))
	}
	if resp.Header.Get(HeaderRequestID) == "" {
		t.Error("missing request id header")
	}
}

func TestAdapter_PostErrors(t *testing.T) {
	silent := NewRoute("silent")
	t.Cleanup(silent.Close)
	_, base := startAdapter(t, Config{ReplyTimeout: 50 * time.Millisecond, MaxBodyBytes: 64}, nil,
		echoRoute(t, "echo"), silent)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   errors.ErrorCode
	}{
		{"unknown route", "/streams/missing", `{}`, http.StatusNotFound, errors.ErrCodeNotFound},
		{"invalid json", "/streams/echo", `{"n":`, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"too large", "/streams/echo", `"` + strings.Repeat("x", 100) + `"`, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"handler error", "/streams/echo", `"fail"`, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"no reply", "/streams/silent", `{}`, http.StatusGatewayTimeout, errors.ErrCodeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := post(t, base+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode, tt.status, body)
			}
			if code := errorCode(t, body); code != tt.code {
				t.Errorf("code = %s, want %s", code, tt.code)
			}
		})
	}
}

func TestAdapter_ClosedAfterStop(t *testing.T) {
	a, _ := startAdapter(t, Config{}, nil, echoRoute(t, "echo"))
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if a.Registry() != nil {
		t.Error("registry kept after Stop")
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/streams/echo", strings.NewReader(`{}`)))
	if rec.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", rec.Code)
	}
	if code := errorCode(t, rec.Body.Bytes()); code != errors.ErrCodeClosed {
		t.Errorf("code = %s", code)
	}
	if h := a.Health(context.Background()); h.Status != component.StatusUnhealthy {
		t.Errorf("health after Stop = %s", h.Status)
	}
}

func TestAdapter_MountValidation(t *testing.T) {
	a, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Mount(NewRoute("a/b")); errors.CodeOf(err) != errors.ErrCodeInvalidConfig {
		t.Errorf("Mount(a/b) = %v", err)
	}
	if err := a.Mount(NewRoute("")); errors.CodeOf(err) != errors.ErrCodeInvalidConfig {
		t.Errorf("Mount(empty) = %v", err)
	}
	if err := a.Mount(NewRoute("dup")); err != nil {
		t.Fatal(err)
	}
	if err := a.Mount(NewRoute("dup")); errors.CodeOf(err) != errors.ErrCodeInvalidConfig {
		t.Errorf("duplicate Mount = %v", err)
	}
}

func TestAdapter_MountWhileRunningAndList(t *testing.T) {
	cached := NewRoute("cached")
	if err := cached.CacheEvents(buffer.Options{Capacity: 4}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(cached.Close)
	a, base := startAdapter(t, Config{}, nil, cached)

	if err := a.Mount(echoRoute(t, "echo")); err != nil {
		t.Fatalf("Mount while running: %v", err)
	}
	_ = cached.Events.Push(json.RawMessage(`1`))

	resp, err := client.Get(base + "/streams")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got struct {
		Data []RouteInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	want := []RouteInfo{
		{Name: "cached", Cached: true, Retained: 1},
		{Name: "echo", Listeners: 1},
	}
	if diff := cmp.Diff(want, got.Data); diff != "" {
		t.Errorf("routes (-want +got):\n%s", diff)
	}
}

func TestAdapter_Health(t *testing.T) {
	check := func(context.Context) []component.Health {
		return []component.Health{{Name: "store", Status: component.StatusUnhealthy}}
	}
	_, base := startAdapter(t, Config{}, []Option{WithService("streamd", "1.2.3")})
	_, failing := startAdapter(t, Config{}, []Option{WithHealthCheck(check)})

	resp, err := client.Get(base + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var sh struct {
		Service string `json:"service"`
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&sh)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || sh.Status != "up" || sh.Service != "streamd" || sh.Version != "1.2.3" {
		t.Errorf("health = %d %+v", resp.StatusCode, sh)
	}

	resp, err = client.Get(failing + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestAdapter_Version(t *testing.T) {
	a, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", http.NoBody))
	var got version.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK || got.Version != version.Version {
		t.Errorf("GET /version = %d %+v", rec.Code, got)
	}
}

func TestAdapter_Describe(t *testing.T) {
	a, err := New(Config{Port: 8080})
	if err != nil {
		t.Fatal(err)
	}
	_ = a.Mount(NewRoute("one"))
	d := a.Describe()
	if d.Type != "server" || d.Port != 8080 || d.Details != "0.0.0.0:8080 routes=1" {
		t.Errorf("Describe() = %+v", d)
	}
	if len(a.Routes()) != 6 {
		t.Errorf("Routes() = %d", len(a.Routes()))
	}
}

func readSSE(t *testing.T, br *bufio.Reader) Envelope {
	t.Helper()
	var data string
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("reading event stream: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			var env Envelope
			if err := json.Unmarshal([]byte(data), &env); err != nil {
				t.Fatalf("frame %q: %v", data, err)
			}
			return env
		}
	}
}

func TestAdapter_ServerSentEvents(t *testing.T) {
	r := echoRoute(t, "feed")
	a, base := startAdapter(t, Config{}, nil, r)

	resp, err := client.Get(base + "/streams/feed/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	br := bufio.NewReader(resp.Body)

	if env := readSSE(t, br); env.Type != EventTypeConnected || !strings.HasPrefix(env.ID, "feed:") {
		t.Fatalf("first frame = %+v", env)
	}
	_ = r.Events.Push(json.RawMessage(`{"price": 10}`))
	env := readSSE(t, br)
	if env.Type != EventTypeEvent || string(env.Payload) != `{"price":10}` {
		t.Errorf("event frame = %+v", env)
	}

	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := io.ReadAll(br); err != nil {
		t.Errorf("event stream not ended cleanly: %v", err)
	}
}

func TestAdapter_CachedEventsReplay(t *testing.T) {
	r := NewRoute("ticks")
	if err := r.CacheEvents(buffer.Options{Capacity: 2}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Close)
	_, base := startAdapter(t, Config{}, nil, r)

	for _, v := range []string{`"a"`, `"b"`, `"c"`} {
		_ = r.Events.Push(json.RawMessage(v))
	}

	resp, err := client.Get(base + "/streams/ticks/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	br := bufio.NewReader(resp.Body)
	readSSE(t, br)

	var got []string
	for range 2 {
		got = append(got, string(readSSE(t, br).Payload))
	}
	_ = r.Events.Push(json.RawMessage(`"d"`))
	got = append(got, string(readSSE(t, br).Payload))

	if diff := cmp.Diff([]string{`"b"`, `"c"`, `"d"`}, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestAdapter_WebSocket(t *testing.T) {
	r := echoRoute(t, "chat")
	a, base := startAdapter(t, Config{}, nil, r)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(base, "http")+"/streams/chat/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	resp.Body.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func() Envelope {
		t.Helper()
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		return env
	}

	if env := read(); env.Type != EventTypeConnected {
		t.Fatalf("first frame = %+v", env)
	}
	waitFor(t, "client to join", func() bool { return a.Registry().Hub().ClientCount() == 1 })

	if err := conn.WriteJSON(map[string]any{"ref": "r1", "payload": map[string]int{"n": 2}}); err != nil {
		t.Fatal(err)
	}
	env := read()
	if env.Type != EventTypeReply || env.Ref != "r1" || env.ID == "" || string(env.Payload) != `{"n":2}` {
		t.Errorf("reply = %+v", env)
	}

	_ = conn.WriteJSON(map[string]any{"ref": "r2", "payload": "fail"})
	env = read()
	if env.Type != EventTypeReply || env.Ref != "r2" || env.Error == nil || env.Error.Code != errors.ErrCodeInvalidInput {
		t.Errorf("failed reply = %+v", env)
	}

	_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	env = read()
	if env.Type != EventTypeError || env.Error == nil || env.Error.Code != errors.ErrCodeInvalidInput {
		t.Errorf("error frame = %+v", env)
	}

	_ = r.Events.Push(json.RawMessage(`"hello"`))
	env = read()
	if env.Type != EventTypeEvent || string(env.Payload) != `"hello"` {
		t.Errorf("event = %+v", env)
	}

	conn.Close()
	waitFor(t, "client to leave", func() bool { return a.Registry().Hub().ClientCount() == 0 })
}

func TestAdapter_WebSocketUnknownRoute(t *testing.T) {
	_, base := startAdapter(t, Config{}, nil)
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(base, "http")+"/streams/none/ws", nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("resp = %v", resp)
	}
}

func TestRoute_CallAndHandle(t *testing.T) {
	r := NewRoute("calc")
	defer r.Close()
	stop, err := Handle(r, func(_ context.Context, req Request) (json.RawMessage, error) {
		return json.RawMessage(`"` + req.ID + `"`), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	if _, err := Handle(r, nil); errors.CodeOf(err) != errors.ErrCodeInvalidConfig {
		t.Errorf("Handle(nil) err = %v, want INVALID_CONFIG", err)
	}
	if _, err := Handle(r, func(context.Context, Request) (json.RawMessage, error) { return nil, nil },
		transform.WithStrategy(transform.Strategy(42))); errors.CodeOf(err) != errors.ErrCodeInvalidConfig {
		t.Errorf("Handle with unknown strategy err = %v, want INVALID_CONFIG", err)
	}

	rep, err := r.Call(context.Background(), "abc", json.RawMessage(`1`))
	if err != nil {
		t.Fatal(err)
	}
	if rep.ID != "abc" || string(rep.Payload) != `"abc"` {
		t.Errorf("reply = %+v", rep)
	}

	r.Close()
	if _, err := r.Call(context.Background(), "x", nil); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("Call after Close = %v", err)
	}
}

func TestHub(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	a := NewClient("orders:1", "orders", TransportSSE, 4)
	b := NewClient("orders:2", "orders", TransportSSE, 4)
	c := NewClient("users:1", "users", TransportSSE, 4)
	for _, cl := range []*Client{a, b, c} {
		if !hub.Register(cl) {
			t.Fatal("Register failed on running hub")
		}
	}
	waitFor(t, "registration", func() bool { return hub.ClientCount() == 3 })

	hub.BroadcastToPattern("orders:*", []byte("x"))
	for _, cl := range []*Client{a, b} {
		select {
		case got := <-cl.Events():
			if string(got) != "x" {
				t.Errorf("%s got %q", cl.ID(), got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s got nothing", cl.ID())
		}
	}
	select {
	case got := <-c.Events():
		t.Errorf("users:1 got %q", got)
	default:
	}

	hub.Unregister(a)
	waitFor(t, "unregister", func() bool { return hub.ClientCount() == 2 })
	if _, open := <-a.Events(); open {
		t.Error("unregistered client still open")
	}
	if diff := cmp.Diff([]string{"orders:2", "users:1"}, hub.ClientIDs()); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}

	hub.Stop()
	hub.Stop()
	if _, open := <-b.Events(); open {
		t.Error("client open after Stop")
	}
	if hub.Register(NewClient("late:1", "late", TransportSSE, 1)) {
		t.Error("Register succeeded on stopped hub")
	}
}

func TestClient_SendAfterCloseAndFull(t *testing.T) {
	cl := NewClient("r:1", "r", TransportWebSocket, 1)
	if !cl.Send([]byte("a")) {
		t.Error("first Send failed")
	}
	if cl.Send([]byte("b")) {
		t.Error("Send to full buffer succeeded")
	}
	cl.Close()
	cl.Close()
	if cl.Send([]byte("c")) {
		t.Error("Send after Close succeeded")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	engine := gin.New()
	engine.Use(Recovery(log), RequestID(), RequestLogger(log))
	engine.GET("/panic", func(*gin.Context) { panic("boom") })
	engine.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", http.NoBody))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec.Body.Bytes()); code != errors.ErrCodeInternal {
		t.Errorf("code = %s", code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", http.NoBody)
	req.Header.Set(HeaderRequestID, "given")
	engine.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != "given" {
		t.Errorf("request id = %q", got)
	}
}
