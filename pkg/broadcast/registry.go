package broadcast

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gn-clipper/news-clipper/internal/logger"
)

// Builder creates a Broadcaster from a config entry.
type Builder func(ctx context.Context, cfg Config, log Logger) (Broadcaster, error)

// Registry maps broadcaster types to builders.
type Registry interface {
	Register(typ string, builder Builder)
	BroadcasterFor(ctx context.Context, cfg Config, log Logger) (Broadcaster, error)
}

type registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry returns a registry with optional pre-registered builders.
func NewRegistry(builders map[string]Builder) Registry {
	r := &registry{
		builders: make(map[string]Builder),
	}
	for typ, b := range builders {
		r.Register(typ, b)
	}
	return r
}

// Register associates a builder with a broadcaster type.
func (r *registry) Register(typ string, builder Builder) {
	if typ = strings.TrimSpace(strings.ToLower(typ)); typ == "" || builder == nil {
		return
	}

	r.mu.Lock()
	r.builders[typ] = builder
	r.mu.Unlock()
}

// BroadcasterFor returns the broadcaster built for the provided config.
func (r *registry) BroadcasterFor(ctx context.Context, cfg Config, log Logger) (Broadcaster, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("broadcaster %q has no type configured", cfg.ID)
	}

	r.mu.RLock()
	builder := r.builders[strings.ToLower(cfg.Type)]
	r.mu.RUnlock()

	if builder == nil {
		return nil, fmt.Errorf("no broadcaster registered for type %q", cfg.Type)
	}
	return builder(ctx, cfg, log)
}

// DefaultRegistry wires up the known broadcaster types.
func DefaultRegistry() Registry {
	return NewRegistry(map[string]Builder{
		TypeHTTP:  newHTTPBroadcaster,
		TypeQueue: newQueueBroadcaster,
	})
}

// Build instantiates a Fanout for the enabled configs.
func Build(ctx context.Context, reg Registry, cfgs []Config, log Logger) (*Fanout, error) {
	log = logger.Ensure(log)
	if reg == nil {
		reg = DefaultRegistry()
	}

	var (
		built  []Broadcaster
		events = make(map[string][]string)
	)
	for _, cfg := range Enabled(cfgs) {
		b, err := reg.BroadcasterFor(ctx, cfg, log)
		if err != nil {
			_ = NewFanout(built, nil, log).Close()
			return nil, fmt.Errorf("build broadcaster %q: %w", cfg.ID, err)
		}
		built = append(built, b)
		events[cfg.ID] = cfg.Events
	}
	return NewFanout(built, events, log), nil
}
