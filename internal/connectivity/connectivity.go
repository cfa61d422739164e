// Package connectivity tracks whether the canonical store is reachable.
//
// Reachability is observed, never assumed: a Monitor probes the canonical
// store on an interval and publishes Online/Offline transitions on a channel.
// The trigger subsystem consumes those transitions to kick reconciliation the
// moment the network comes back.
package connectivity

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// Prober checks canonical-store reachability. A nil error means reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context) error

// Ping calls f.
func (f ProberFunc) Ping(ctx context.Context) error { return f(ctx) }

// Status is a reachability transition.
type Status struct {
	Online bool
	At     time.Time
}

// Config holds monitor configuration.
type Config struct {
	// ProbeInterval is how often to re-check reachability.
	ProbeInterval time.Duration

	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration

	// Logger for monitor activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ProbeInterval: 15 * time.Second,
		ProbeTimeout:  5 * time.Second,
		Logger:        log.New(os.Stderr, "[connectivity] ", log.LstdFlags),
	}
}

// Monitor probes the canonical store and publishes transitions.
type Monitor struct {
	prober Prober
	config *Config

	mu     sync.Mutex
	online bool

	events chan Status

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor. The monitor starts pessimistic (offline)
// until the first probe succeeds.
func NewMonitor(prober Prober, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		prober: prober,
		config: config,
		events: make(chan Status, 16),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start probes once immediately, then keeps probing on the interval.
func (m *Monitor) Start() {
	m.CheckNow(m.ctx)
	m.wg.Add(1)
	go m.probeLoop()
}

// Stop shuts the monitor down and waits for the probe loop to exit.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Online reports the last observed reachability.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Events returns the transition channel. Only transitions are published, not
// every probe result. The channel is buffered; if nobody is draining it,
// transitions are dropped rather than blocking the probe loop.
func (m *Monitor) Events() <-chan Status {
	return m.events
}

// CheckNow runs a single probe immediately and returns the result. Used by
// the probe loop and by callers that want fresh truth before an operation.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	online := m.prober.Ping(pctx) == nil
	m.record(online)
	return online
}

// record stores the probe result, publishing a Status on transitions.
func (m *Monitor) record(online bool) {
	m.mu.Lock()
	changed := online != m.online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		m.config.Logger.Println("Canonical store reachable")
	} else {
		m.config.Logger.Println("Canonical store unreachable, entering offline mode")
	}

	select {
	case m.events <- Status{Online: online, At: time.Now()}:
	default:
		m.config.Logger.Println("Warning: event channel full, dropping transition")
	}
}

func (m *Monitor) probeLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(m.ctx)
		}
	}
}
