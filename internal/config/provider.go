package config

import (
	"sync"
	"sync/atomic"
)

// Provider publishes the current Config as an immutable snapshot. Readers
// call Current once per operation and never see a partially applied update.
type Provider struct {
	current    atomic.Pointer[Config]
	generation atomic.Uint64

	mu          sync.Mutex
	subscribers []func(*Config)
}

// NewProvider creates a Provider holding cfg, or Default when cfg is nil.
func NewProvider(cfg *Config) *Provider {
	if cfg == nil {
		cfg = Default()
	}
	p := &Provider{}
	p.current.Store(cfg.Normalize())
	return p
}

// Current returns the active snapshot. Callers must not mutate it.
func (p *Provider) Current() *Config {
	return p.current.Load()
}

// Generation counts successful updates.
func (p *Provider) Generation() uint64 {
	return p.generation.Load()
}

// Update validates cfg and publishes its normalized form. On error the
// previous snapshot stays active.
func (p *Provider) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	next := cfg.Normalize()

	p.mu.Lock()
	p.current.Store(next)
	p.generation.Add(1)
	subs := append([]func(*Config){}, p.subscribers...)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return nil
}

// Subscribe registers fn to run after every successful Update.
func (p *Provider) Subscribe(fn func(*Config)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}
