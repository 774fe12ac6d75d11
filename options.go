package coverwise

import (
	"log/slog"
	"time"

	"github.com/poiesic/coverwise/ai"
	"github.com/poiesic/coverwise/config"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Service.
type Option func(*serviceOptions) error

type serviceOptions struct {
	config     *config.Config
	provider   ai.AIProvider
	registerer prometheus.Registerer
	clock      func() time.Time
	logger     *slog.Logger
}

// WithConfig sets the application configuration.
// Default is config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(o *serviceOptions) error {
		if cfg != nil {
			o.config = cfg
		}
		return nil
	}
}

// WithProvider injects an AI provider instead of building one from the
// configuration. The caller keeps ownership; Close does not close it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *serviceOptions) error {
		o.provider = provider
		return nil
	}
}

// WithRegisterer registers the service metrics with reg.
// Default is a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *serviceOptions) error {
		o.registerer = reg
		return nil
	}
}

// WithClock overrides the time source for policy expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) error {
		o.clock = now
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}
