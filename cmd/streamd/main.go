// Command streamd serves streams over HTTP, server-sent events and
// WebSocket.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kbukum/streamkit/bootstrap"
	"github.com/kbukum/streamkit/config"
	"github.com/kbukum/streamkit/expose"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
	"github.com/kbukum/streamkit/stream"
)

const serviceName = "streamd"

func main() {
	var cfg Config
	if err := config.LoadConfig(serviceName, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}

	app, err := bootstrap.NewApp(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
	if err := setup(app); err != nil {
		app.Logger.Error("setup failed", logger.Fields(logger.FieldError, err.Error()))
		os.Exit(1)
	}
	if err := app.Run(context.Background()); err != nil {
		app.Logger.Error("exited with error", logger.Fields(logger.FieldError, err.Error()))
		os.Exit(1)
	}
}

// setup registers telemetry, then builds the routes and the adapter once
// telemetry has started.
func setup(app *bootstrap.App[*Config]) error {
	cfg := app.Cfg
	telemetry := observability.NewTelemetry(cfg.Observability, observability.Resource{
		ServiceName:    cfg.Name,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
	})
	if err := app.RegisterComponent(telemetry); err != nil {
		return err
	}

	app.OnConfigure(func(_ context.Context, a *bootstrap.App[*Config]) error {
		metrics := telemetry.Metrics()
		stream.SetDefaultErrorSink(observability.NewSink(metrics))

		adapter, err := expose.New(cfg.Expose,
			expose.WithMetrics(metrics),
			expose.WithService(cfg.Name, cfg.Version),
			expose.WithHealthCheck(a.Components.HealthAll),
		)
		if err != nil {
			return err
		}

		routes, closeRoutes, err := buildRoutes(cfg, metrics)
		if err != nil {
			return err
		}
		for _, r := range routes {
			if err := adapter.Mount(r); err != nil {
				closeRoutes()
				return err
			}
		}
		a.OnStop(func(context.Context) error {
			closeRoutes()
			return nil
		})
		return a.RegisterComponent(adapter)
	})
	return nil
}
