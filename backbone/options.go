package backbone

import (
	"fmt"
	"log/slog"

	"github.com/openfluke/e2fpn/nn"
)

// Option customizes New
type Option func(*options)

type options struct {
	logger  *slog.Logger
	backend nn.Backend
}

// WithLogger sets the logger; defaults to slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBackend overrides the backend chosen by Config.Backend
func WithBackend(b nn.Backend) Option {
	return func(o *options) { o.backend = b }
}

func resolveBackend(name string) (nn.Backend, error) {
	switch name {
	case "", "cpu":
		return nn.NewCPUBackend(), nil
	case "gpu":
		b, err := nn.NewGPUBackend()
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrConfiguration, name)
	}
}
