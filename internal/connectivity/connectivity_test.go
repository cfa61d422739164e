package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.ProbeInterval = 10 * time.Millisecond
	cfg.ProbeTimeout = 50 * time.Millisecond
	return cfg
}

func TestMonitorStartsPessimistic(t *testing.T) {
	m := NewMonitor(ProberFunc(func(context.Context) error { return nil }), testConfig())
	if m.Online() {
		t.Error("monitor should report offline before the first probe")
	}
}

func TestCheckNowRecordsResult(t *testing.T) {
	var up atomic.Bool
	m := NewMonitor(ProberFunc(func(context.Context) error {
		if up.Load() {
			return nil
		}
		return errors.New("unreachable")
	}), testConfig())

	if m.CheckNow(context.Background()) {
		t.Error("probe should fail while prober errors")
	}
	up.Store(true)
	if !m.CheckNow(context.Background()) {
		t.Error("probe should succeed once prober recovers")
	}
	if !m.Online() {
		t.Error("Online() should reflect the last probe")
	}
}

func TestMonitorPublishesTransitionsOnly(t *testing.T) {
	var up atomic.Bool
	up.Store(true)
	m := NewMonitor(ProberFunc(func(context.Context) error {
		if up.Load() {
			return nil
		}
		return errors.New("unreachable")
	}), testConfig())

	ctx := context.Background()
	m.CheckNow(ctx) // offline -> online: transition
	m.CheckNow(ctx) // still online: no event
	up.Store(false)
	m.CheckNow(ctx) // online -> offline: transition

	var got []Status
	for {
		select {
		case ev := <-m.Events():
			got = append(got, ev)
			continue
		default:
		}
		break
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 transitions, got %d: %+v", len(got), got)
	}
	if !got[0].Online || got[1].Online {
		t.Errorf("transition order wrong: %+v", got)
	}
}

func TestMonitorProbeLoop(t *testing.T) {
	var probes atomic.Int32
	m := NewMonitor(ProberFunc(func(context.Context) error {
		probes.Add(1)
		return nil
	}), testConfig())

	m.Start()
	defer m.Stop()

	deadline := time.After(time.Second)
	for probes.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("probe loop too slow: %d probes", probes.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if !m.Online() {
		t.Error("monitor should be online with a healthy prober")
	}
}
