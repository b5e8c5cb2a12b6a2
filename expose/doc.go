// Package expose serves streams to external clients over HTTP.
//
// A Route pairs a Requests stream with a Replies stream and an Events
// stream. Mounted on an Adapter, a route answers POST /streams/:name by
// pushing the body as a Request and waiting for the Reply with the same
// correlation id, relays Events to server-sent event and WebSocket
// subscribers, and accepts requests over the WebSocket too.
//
// # Usage
//
//	r := expose.NewRoute("orders")
//	stop, err := expose.Handle(r, func(ctx context.Context, req expose.Request) (json.RawMessage, error) {
//	    return req.Payload, nil
//	})
//	if err != nil { ... }
//	defer stop()
//
//	a, err := expose.New(cfg, expose.WithMetrics(metrics))
//	if err != nil { ... }
//	_ = a.Mount(r)
//	_ = a.Start(ctx)
//
// Routes whose events are cached with CacheEvents replay what the cache
// retains to every new subscriber before following live events.
package expose
