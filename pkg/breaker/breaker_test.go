package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing(ctx context.Context) error { return errBoom }
func succeeding(ctx context.Context) error { return nil }

func TestClosedToOpenAfterThreshold(t *testing.T) {
	b := New("planner", 3, time.Minute)

	for i := 0; i < 2; i++ {
		if err := b.Execute(context.Background(), failing); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: got %v, want errBoom", i, err)
		}
		if b.State() != Closed {
			t.Fatalf("attempt %d: state = %v, want CLOSED", i, b.State())
		}
	}

	if err := b.Execute(context.Background(), failing); !errors.Is(err, errBoom) {
		t.Fatalf("third failure: got %v", err)
	}
	if b.State() != Open {
		t.Fatalf("state after 3 failures = %v, want OPEN", b.State())
	}
	if b.Failures() != 3 {
		t.Fatalf("failures = %d, want 3", b.Failures())
	}
}

func TestOpenFailsFastWithoutInvoking(t *testing.T) {
	b := New("planner", 3, time.Minute)
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), failing)
	}

	invoked := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("got %v, want ErrOpen", err)
	}
	if invoked {
		t.Fatal("wrapped operation was invoked while breaker open")
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	b := New("planner", 3, 20*time.Millisecond)
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), failing)
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want OPEN", b.State())
	}

	time.Sleep(40 * time.Millisecond)

	// Timer should have flipped us to half-open; either way the next
	// attempt must pass through.
	if err := b.Execute(context.Background(), succeeding); err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("state after trial success = %v, want CLOSED", b.State())
	}
	if b.Failures() != 0 {
		t.Fatalf("failures = %d, want 0 after recovery", b.Failures())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New("generator", 3, 20*time.Millisecond)
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), failing)
	}

	time.Sleep(40 * time.Millisecond)

	if err := b.Execute(context.Background(), failing); !errors.Is(err, errBoom) {
		t.Fatalf("trial call: got %v", err)
	}
	if b.State() != Open {
		t.Fatalf("state after trial failure = %v, want OPEN", b.State())
	}
}

func TestHalfOpenAdmitsSingleTrial(t *testing.T) {
	b := New("planner", 3, 20*time.Millisecond)
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), failing)
	}

	time.Sleep(40 * time.Millisecond)

	// First caller holds the half-open trial slot open.
	trialStarted := make(chan struct{})
	releaseTrial := make(chan struct{})
	trialDone := make(chan error, 1)
	go func() {
		trialDone <- b.Execute(context.Background(), func(ctx context.Context) error {
			close(trialStarted)
			<-releaseTrial
			return nil
		})
	}()
	<-trialStarted

	// A second caller during the trial must fail fast, not pile on.
	invoked := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("concurrent half-open call: got %v, want ErrOpen", err)
	}
	if invoked {
		t.Fatal("second operation ran during the half-open trial")
	}

	close(releaseTrial)
	if err := <-trialDone; err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("state after trial success = %v, want CLOSED", b.State())
	}
}

func TestSuccessCounter(t *testing.T) {
	b := New("generator", 3, time.Minute)
	for i := 0; i < 5; i++ {
		if err := b.Execute(context.Background(), succeeding); err != nil {
			t.Fatal(err)
		}
	}
	if b.Successes() != 5 {
		t.Fatalf("successes = %d, want 5", b.Successes())
	}
	if got := b.Stats(); got.State != "CLOSED" || got.Successes != 5 {
		t.Fatalf("stats = %+v", got)
	}
}
