package runner

import (
	"context"
	"testing"
	"time"
)

func TestLifecycleRunnerRunAndStop(t *testing.T) {
	started := false
	stopped := false
	drained := false
	lr := NewLifecycleRunner(
		DrainerFunc(func() error { drained = true; return nil }),
		Hooks{
			OnStart: func() { started = true },
			OnStop:  func() { stopped = true },
		},
		time.Second,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lr.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for lr.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if lr.State() != StateRunning {
		t.Fatalf("runner never reached running state")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run never returned after cancel")
	}

	if !started || !stopped || !drained {
		t.Fatalf("hooks not fired: started=%v stopped=%v drained=%v", started, stopped, drained)
	}
	if lr.State() != StateStopped {
		t.Fatalf("state = %v, want Stopped", lr.State())
	}
}

func TestLifecycleRunnerDoubleRunRejected(t *testing.T) {
	lr := NewLifecycleRunner(nil, Hooks{}, time.Second)
	go func() { _ = lr.Run(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for lr.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := lr.Run(context.Background()); err == nil {
		t.Fatalf("second run must be rejected")
	}
	_ = lr.Stop()
}

func TestLifecycleRunnerDrainTimeout(t *testing.T) {
	lr := NewLifecycleRunner(
		DrainerFunc(func() error {
			time.Sleep(time.Second)
			return nil
		}),
		Hooks{},
		10*time.Millisecond,
	)
	go func() { _ = lr.Run(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for lr.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := lr.Stop(); err == nil {
		t.Fatalf("expected drain timeout error")
	}
}
