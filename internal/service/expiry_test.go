package service

import (
	"context"
	"testing"
	"time"

	"github.com/iliyamo/hotel-reservation/internal/model"
)

func TestSweeperExpiresStalePending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	stale := e.create(t, e.stay(10, 2))
	e.clock.Advance(time.Hour)
	fresh := e.create(t, e.stay(12, 2))
	kept := e.paid(t, e.stay(20, 2))

	s := NewSweeper(e.deps, 30*time.Minute, time.Minute)
	n, err := s.SweepOnce(ctx)
	if err != nil || n != 1 {
		t.Fatalf("SweepOnce = %d, %v; want 1", n, err)
	}
	got := e.reload(t, stale.ID)
	if got.Status != model.StatusCancelled || got.Cancellation.Reason != ExpiredReason {
		t.Fatalf("stale reservation = %s %+v", got.Status, got.Cancellation)
	}
	if e.reload(t, fresh.ID).Status != model.StatusPending {
		t.Fatalf("fresh reservation expired")
	}
	if e.reload(t, kept.ID).Status != model.StatusConfirmed {
		t.Fatalf("confirmed reservation expired")
	}
	if n, err := s.SweepOnce(ctx); err != nil || n != 0 {
		t.Fatalf("second SweepOnce = %d, %v; want 0", n, err)
	}
	if notes := e.notes.cancelledNotices(); len(notes) != 1 || notes[0].id != stale.ID {
		t.Fatalf("cancel notifications = %+v", notes)
	}
}

func TestSweeperDisabled(t *testing.T) {
	e := newEnv(t)
	done := make(chan struct{})
	go func() {
		NewSweeper(e.deps, 0, time.Millisecond).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run with no ttl should return immediately")
	}
}
