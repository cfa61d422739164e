// Package trigger decides when a reconciliation pass runs.
//
// Two sources fire a pass: a connectivity transition to online (drain the
// backlog the moment the network returns) and a periodic ticker (safety net
// for missed transitions and for backlog that failed on earlier passes).
// Both sources feed one goroutine, so triggers never run a pass concurrently
// with themselves; the engine additionally drops triggers for a clinic whose
// pass is still in flight.
package trigger

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dentops/chairside/internal/connectivity"
)

// Syncer runs one reconciliation pass for a clinic.
type Syncer interface {
	Sync(ctx context.Context, clinicID string) error
}

// Config holds trigger configuration.
type Config struct {
	// Interval is the periodic safety-net trigger. Failed records stay
	// pending forever, so this is also the retry cadence.
	Interval time.Duration

	// Logger for trigger activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 2 * time.Minute,
		Logger:   log.New(os.Stderr, "[trigger] ", log.LstdFlags),
	}
}

// Trigger wires connectivity transitions and the periodic ticker to the
// sync engine for one clinic.
type Trigger struct {
	engine   Syncer
	monitor  *connectivity.Monitor
	clinicID string
	config   *Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a trigger for the clinic.
func New(engine Syncer, monitor *connectivity.Monitor, clinicID string, config *Config) *Trigger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[trigger] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Trigger{
		engine:   engine,
		monitor:  monitor,
		clinicID: clinicID,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the trigger loop.
func (t *Trigger) Start() {
	t.config.Logger.Printf("Starting sync trigger for clinic %s (interval %s)", t.clinicID, t.config.Interval)
	t.wg.Add(1)
	go t.loop()
}

// Stop shuts the trigger down and waits for the loop to exit.
func (t *Trigger) Stop() {
	t.cancel()
	t.wg.Wait()
	t.config.Logger.Println("Sync trigger stopped")
}

// SyncNow fires a pass immediately if the canonical store is reachable.
// Used by the CLI's manual sync command.
func (t *Trigger) SyncNow(ctx context.Context) error {
	if !t.monitor.CheckNow(ctx) {
		t.config.Logger.Println("Manual sync requested while offline, skipping")
		return nil
	}
	return t.engine.Sync(ctx, t.clinicID)
}

// loop is the single goroutine that serializes all trigger sources.
func (t *Trigger) loop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return

		case status, ok := <-t.monitor.Events():
			if !ok {
				return
			}
			if !status.Online {
				continue
			}
			t.config.Logger.Println("Connectivity restored, draining pending queue")
			t.fire()

		case <-ticker.C:
			if !t.monitor.Online() {
				continue
			}
			t.fire()
		}
	}
}

func (t *Trigger) fire() {
	if err := t.engine.Sync(t.ctx, t.clinicID); err != nil {
		t.config.Logger.Printf("WARNING: sync pass failed: %v", err)
	}
}
