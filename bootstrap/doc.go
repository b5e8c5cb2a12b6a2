// Package bootstrap runs the lifecycle of a streamkit process.
//
// An App validates the typed config, initializes the global logger, starts
// registered components in order, runs OnStart, OnConfigure and OnReady
// callbacks, prints a startup summary and, on SIGINT or SIGTERM, runs the
// OnStop hooks and stops the components in reverse order.
//
//	app, err := bootstrap.NewApp(&cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = app.RegisterComponent(adapter)
//	if err := app.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
package bootstrap
