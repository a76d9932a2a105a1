package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/resilience"
)

var errBackend = errors.New("backend exploded")

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	cb := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		RecoveryTimeout:  time.Hour,
	})

	fail := func() error { return errBackend }

	for i := range 3 {
		if err := cb.Execute(fail); !errors.Is(err, errBackend) {
			t.Fatalf("call %d: want backend error, got %v", i, err)
		}
	}
	if cb.State() != resilience.BreakerOpen {
		t.Fatalf("state after threshold = %v, want open", cb.State())
	}

	// Open breaker rejects without calling fn.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("want ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("open breaker still invoked fn")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	cb := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Hour,
	})

	// Two failures, one success, two failures: never reaches the threshold
	// because failures must be consecutive.
	_ = cb.Execute(func() error { return errBackend })
	_ = cb.Execute(func() error { return errBackend })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBackend })
	_ = cb.Execute(func() error { return errBackend })

	if cb.State() != resilience.BreakerClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	t.Parallel()
	cb := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		ProbeBudget:      2,
	})

	_ = cb.Execute(func() error { return errBackend })
	if cb.State() != resilience.BreakerOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)
	if cb.State() != resilience.BreakerHalfOpen {
		t.Fatalf("state after recovery timeout = %v, want half-open", cb.State())
	}

	// Exhaust the probe budget with successes: the breaker closes.
	for range 2 {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatal(err)
		}
	}
	if cb.State() != resilience.BreakerClosed {
		t.Errorf("state after successful probes = %v, want closed", cb.State())
	}
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	t.Parallel()
	cb := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
	})

	_ = cb.Execute(func() error { return errBackend })
	time.Sleep(20 * time.Millisecond)

	// The first probe fails: straight back to open.
	if err := cb.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatal(err)
	}
	if cb.State() != resilience.BreakerOpen {
		t.Errorf("state after failed probe = %v, want open", cb.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	cb := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	})

	_ = cb.Execute(func() error { return errBackend })
	cb.Reset()
	if cb.State() != resilience.BreakerClosed {
		t.Errorf("state after reset = %v, want closed", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("call after reset: %v", err)
	}
}

func TestFallbackGroup_FailsOverInOrder(t *testing.T) {
	t.Parallel()
	fg := resilience.NewFallbackGroup("primary", "primary", resilience.FallbackConfig{})
	fg.AddFallback("backup", "backup")

	result, err := resilience.ExecuteWithResult(fg, func(name string) (string, error) {
		if name == "primary" {
			return "", errBackend
		}
		return "from " + name, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if result != "from backup" {
		t.Errorf("result = %q, want from backup", result)
	}
}

func TestFallbackGroup_AllFailed(t *testing.T) {
	t.Parallel()
	fg := resilience.NewFallbackGroup("primary", "primary", resilience.FallbackConfig{})
	fg.AddFallback("backup", "backup")

	_, err := resilience.ExecuteWithResult(fg, func(string) (string, error) {
		return "", errBackend
	})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("want ErrAllFailed, got %v", err)
	}
}

func TestFallbackGroup_OpenBreakerSkipsPrimary(t *testing.T) {
	t.Parallel()
	fg := resilience.NewFallbackGroup("primary", "primary", resilience.FallbackConfig{
		CircuitBreaker: resilience.BreakerConfig{
			FailureThreshold: 1,
			RecoveryTimeout:  time.Hour,
		},
	})
	fg.AddFallback("backup", "backup")

	var primaryCalls int
	run := func() (string, error) {
		return resilience.ExecuteWithResult(fg, func(name string) (string, error) {
			if name == "primary" {
				primaryCalls++
				return "", errBackend
			}
			return "ok", nil
		})
	}

	// First call trips the primary's breaker and succeeds via the backup.
	if _, err := run(); err != nil {
		t.Fatal(err)
	}
	// Subsequent calls skip the primary entirely.
	if _, err := run(); err != nil {
		t.Fatal(err)
	}
	if primaryCalls != 1 {
		t.Errorf("primary calls = %d, want 1", primaryCalls)
	}

	states := fg.States()
	if states["primary"] != resilience.BreakerOpen {
		t.Errorf("primary state = %v, want open", states["primary"])
	}
	if states["backup"] != resilience.BreakerClosed {
		t.Errorf("backup state = %v, want closed", states["backup"])
	}
}
