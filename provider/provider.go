// Package provider owns the active backend: which mode is selected, the
// connected adapter for it, and switching between modes at runtime
package provider

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/preslavrachev/sitebase/core"
	"github.com/preslavrachev/sitebase/logging"
)

// Options configures a Provider
type Options struct {
	// Override wins over every other mode source when set
	Override string
	// Getenv looks up DATABASE_MODE; os.Getenv when nil
	Getenv func(string) string
	// Store persists the selected mode; a MemoryStore when nil
	Store   PreferenceStore
	Factory Factory
	Logger  *slog.Logger
}

// Provider hands out the adapter for the selected mode. It is safe for
// concurrent use.
type Provider struct {
	factory Factory
	store   PreferenceStore
	logger  *slog.Logger

	mu      sync.Mutex
	mode    core.Mode
	adapter core.Adapter
}

// Status is a snapshot of the provider state
type Status struct {
	Mode         core.Mode         `json:"mode"`
	Connected    bool              `json:"connected"`
	Healthy      bool              `json:"healthy"`
	Capabilities core.Capabilities `json:"capabilities"`
}

// New resolves the initial mode without connecting. Sources are consulted
// in order: Override, DATABASE_MODE, the stored preference, then the
// default. Unrecognised values fall through to the next source.
func New(opts Options) *Provider {
	p := &Provider{
		factory: opts.Factory,
		store:   opts.Store,
		logger:  logging.OrDiscard(opts.Logger).With("component", "provider"),
	}
	if p.store == nil {
		p.store = NewMemoryStore("")
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	p.mode = p.resolveMode(opts.Override, getenv("DATABASE_MODE"))
	p.logger.Info("database mode selected", "mode", p.mode)
	return p
}

func (p *Provider) resolveMode(override, env string) core.Mode {
	if override != "" {
		if mode, ok := core.ParseMode(override); ok {
			return mode
		}
		p.logger.Warn("ignoring unrecognised mode override", "value", override)
	}

	if env != "" {
		if mode, ok := core.ParseMode(env); ok {
			return mode
		}
		p.logger.Warn("ignoring unrecognised DATABASE_MODE", "value", env)
	}

	stored, ok, err := p.store.LoadMode()
	if err != nil {
		p.logger.Warn("failed to load stored mode", "error", err)
	} else if ok {
		if mode, valid := core.ParseMode(stored); valid {
			return mode
		}
		p.logger.Warn("ignoring unrecognised stored mode", "value", stored)
	}

	return core.DefaultMode
}

// Mode returns the selected mode
func (p *Provider) Mode() core.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// IsConnected reports whether a connected adapter is held
func (p *Provider) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adapter != nil && p.adapter.IsConnected()
}

// Adapter returns the connected adapter for the selected mode, connecting
// a fresh one when none is held
func (p *Provider) Adapter(ctx context.Context) (core.Adapter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.adapter != nil && p.adapter.IsConnected() {
		return p.adapter, nil
	}

	adapter, err := p.connect(ctx, p.mode)
	if err != nil {
		return nil, err
	}
	p.adapter = adapter
	return adapter, nil
}

// connect builds and connects an adapter. Callers hold p.mu.
func (p *Provider) connect(ctx context.Context, mode core.Mode) (core.Adapter, error) {
	if p.factory == nil {
		return nil, core.NewValidationError("provider has no adapter factory", nil)
	}

	adapter, err := p.factory(mode)
	if err != nil {
		return nil, core.AsError(err, core.ConnectionError, "failed to create adapter")
	}
	if err := adapter.Connect(ctx); err != nil {
		return nil, core.AsError(err, core.ConnectionError, "failed to connect")
	}

	p.logger.Info("adapter connected", "mode", mode)
	return adapter, nil
}

// release disconnects the held adapter, logging failures. Callers hold p.mu.
func (p *Provider) release(ctx context.Context) {
	if p.adapter == nil {
		return
	}
	if err := p.adapter.Disconnect(ctx); err != nil {
		p.logger.Warn("failed to disconnect adapter", "mode", p.mode, "error", err)
	}
	p.adapter = nil
}

// SwitchDatabase moves to mode. Switching to the current mode is a no-op.
// On success the new mode is persisted. On failure the provider is left
// disconnected with its mode unchanged.
func (p *Provider) SwitchDatabase(ctx context.Context, mode core.Mode) error {
	if _, ok := core.ParseMode(mode.String()); !ok {
		return core.NewValidationError("unknown database mode "+quote(mode.String()), nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if mode == p.mode && p.adapter != nil && p.adapter.IsConnected() {
		return nil
	}

	previous := p.mode
	p.release(ctx)

	adapter, err := p.connect(ctx, mode)
	if err != nil {
		p.logger.Error("database switch failed", "from", previous, "to", mode, "error", err)
		return err
	}

	p.adapter = adapter
	p.mode = mode
	if err := p.store.SaveMode(mode); err != nil {
		p.logger.Warn("failed to persist database mode", "mode", mode, "error", err)
	}
	p.logger.Info("database switched", "from", previous, "to", mode)
	return nil
}

// Reconnect disconnects and connects the current mode again
func (p *Provider) Reconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.release(ctx)

	adapter, err := p.connect(ctx, p.mode)
	if err != nil {
		return err
	}
	p.adapter = adapter
	return nil
}

// Close disconnects the held adapter
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.release(ctx)
	return nil
}

// Status reports mode, connection and health without connecting
func (p *Provider) Status(ctx context.Context) Status {
	p.mu.Lock()
	adapter, mode := p.adapter, p.mode
	p.mu.Unlock()

	status := Status{Mode: mode}
	if adapter == nil {
		return status
	}
	status.Connected = adapter.IsConnected()
	status.Capabilities = adapter.Capabilities()
	if status.Connected {
		status.Healthy = adapter.HealthCheck(ctx)
	}
	return status
}

func quote(s string) string {
	return `"` + s + `"`
}
