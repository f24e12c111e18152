package utils

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	boom := errors.New("boom")
	fail := func() error { return boom }
	ok := func() error { return nil }

	_ = cb.Call(fail)
	if cb.GetState() != StateClosed {
		t.Fatal("one failure must not open the circuit")
	}
	_ = cb.Call(fail)
	if cb.GetState() != StateOpen {
		t.Fatal("expected open after max failures")
	}
	if err := cb.Call(ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Call(ok); err != nil {
		t.Fatalf("half-open probe should pass: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatal("successful probe must close the circuit")
	}
}

func TestBreakerSetIsolatesKeys(t *testing.T) {
	set := NewBreakerSet(1, time.Hour)
	_ = set.For("a.example").Call(func() error { return errors.New("down") })

	if set.For("a.example").GetState() != StateOpen {
		t.Fatal("a.example should be open")
	}
	if set.For("b.example").GetState() != StateClosed {
		t.Fatal("b.example must be unaffected")
	}
	if len(set.States()) != 2 {
		t.Fatalf("expected 2 tracked hosts, got %d", len(set.States()))
	}
}
