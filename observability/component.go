package observability

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/streamkit/component"
	"github.com/kbukum/streamkit/logger"
)

// Telemetry is a component that installs the exporters described by Config
// on Start and flushes them on Stop. Metrics are created on Start from the
// global meter provider.
type Telemetry struct {
	cfg Config
	res Resource
	log *logger.Logger

	mu       sync.Mutex
	metrics  *Metrics
	shutdown func(context.Context) error
}

var _ component.Component = (*Telemetry)(nil)

// NewTelemetry creates the telemetry component.
func NewTelemetry(cfg Config, res Resource) *Telemetry {
	return &Telemetry{cfg: cfg, res: res, log: logger.Get("telemetry")}
}

// Name implements component.Component.
func (t *Telemetry) Name() string { return "telemetry" }

// Start installs the providers and creates the metric instruments.
func (t *Telemetry) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	shutdown, err := Setup(ctx, t.cfg, t.res)
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	metrics, err := NewMetrics(Meter("github.com/kbukum/streamkit"))
	if err != nil {
		_ = shutdown(ctx)
		return fmt.Errorf("telemetry metrics: %w", err)
	}
	t.shutdown = shutdown
	t.metrics = metrics
	t.log.Info("telemetry started", logger.Fields("enabled", t.cfg.Enabled, "endpoint", t.cfg.Endpoint))
	return nil
}

// Stop flushes and shuts down the providers.
func (t *Telemetry) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shutdown == nil {
		return nil
	}
	err := t.shutdown(ctx)
	t.shutdown = nil
	return err
}

// Health implements component.Component.
func (t *Telemetry) Health(context.Context) component.Health {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := component.Health{Name: t.Name(), Status: component.StatusHealthy}
	switch {
	case t.shutdown == nil:
		h.Status = component.StatusUnhealthy
		h.Message = "not started"
	case !t.cfg.Enabled:
		h.Message = "export disabled"
	}
	return h
}

// Describe implements component.Describable.
func (t *Telemetry) Describe() component.Description {
	details := "disabled"
	if t.cfg.Enabled {
		details = fmt.Sprintf("otlp %s sample=%.2f", t.cfg.Endpoint, t.cfg.SampleRate)
	}
	return component.Description{Name: "Telemetry", Type: "telemetry", Details: details}
}

// Metrics returns the instruments created on Start, or nil before.
func (t *Telemetry) Metrics() *Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}
