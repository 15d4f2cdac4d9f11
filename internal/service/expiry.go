package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/repository"
)

// ExpiredReason is recorded on pending reservations that were never paid.
const ExpiredReason = "payment window expired"

const sweepBatch = 100

// Sweeper cancels pending reservations whose payment window has passed.
// Pending reservations do not hold inventory, so this only keeps lists
// tidy and tells the guest; a payment arriving afterwards is refunded by
// the gateway.
type Sweeper struct {
	deps     Deps
	ttl      time.Duration
	interval time.Duration
}

// NewSweeper returns a sweeper for reservations older than ttl.
func NewSweeper(deps Deps, ttl, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{deps: deps.withDefaults(), ttl: ttl, interval: interval}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		if n, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.deps.Log.WithError(err).Error("sweeper: pass failed")
		} else if n > 0 {
			s.deps.Log.WithField("expired", n).Info("sweeper: expired pending reservations")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// SweepOnce expires one batch and returns how many reservations it
// cancelled.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.deps.Now().UTC()
	cutoff := now.Add(-s.ttl)
	ids, err := s.deps.Store.StalePending(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		var expired *model.Reservation
		err := s.deps.Store.WithTx(ctx, func(tx repository.Tx) error {
			res, err := tx.LockReservation(ctx, id)
			if err != nil {
				return err
			}
			// Paid or otherwise moved on while we were looking.
			if res.Status != model.StatusPending || !res.CreatedAt.Before(cutoff) {
				return nil
			}
			if err := applyCancellation(res, ExpiredReason, 0, "", now); err != nil {
				return err
			}
			if err := tx.UpdateReservation(ctx, res); err != nil {
				return err
			}
			expired = res
			return nil
		})
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if expired != nil {
			n++
			s.deps.Log.WithFields(logrus.Fields{"reservation_id": id, "code": expired.Code}).Info("sweeper: pending reservation expired")
			s.deps.Notifier.BookingCancelled(ctx, expired, 0)
		}
	}
	return n, nil
}
