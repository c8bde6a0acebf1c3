// Package worker runs background maintenance for reservations.
package worker

import (
	"context"
	"log"
	"time"

	"carrental/internal/service"
)

// ExpiryReleaser cancels reservations whose hold lapsed.
type ExpiryReleaser interface {
	ReleaseExpired(ctx context.Context) (int, error)
}

// ConsistencySweeper repairs rentals that disagree with their vehicle.
type ConsistencySweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

var (
	_ ExpiryReleaser     = (*service.ReservationService)(nil)
	_ ConsistencySweeper = (*service.ConsistencyService)(nil)
)

// PassResult summarises one sweeper pass.
type PassResult struct {
	Released    int
	Consistency service.SweepResult
}

// Sweeper periodically releases expired holds and repairs drift.
type Sweeper struct {
	releaser      ExpiryReleaser
	consistency   ConsistencySweeper
	interval      time.Duration
	releaseExpiry bool
}

// NewSweeper creates a sweeper. Expired holds are only released when
// releaseExpiry is set, which callers tie to a configured hold TTL.
func NewSweeper(releaser ExpiryReleaser, consistency ConsistencySweeper, interval time.Duration, releaseExpiry bool) *Sweeper {
	return &Sweeper{
		releaser:      releaser,
		consistency:   consistency,
		interval:      interval,
		releaseExpiry: releaseExpiry,
	}
}

// RunOnce performs a single pass.
func (w *Sweeper) RunOnce(ctx context.Context) (PassResult, error) {
	var result PassResult

	if w.releaseExpiry {
		released, err := w.releaser.ReleaseExpired(ctx)
		result.Released = released
		if err != nil {
			return result, err
		}
	}

	sweep, err := w.consistency.Sweep(ctx)
	result.Consistency = sweep
	return result, err
}

// Run repeats RunOnce every interval until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	if w.interval <= 0 {
		log.Println("sweeper: disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Printf("sweeper: running every %s", w.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("sweeper: stopped")
			return
		case <-ticker.C:
			result, err := w.RunOnce(ctx)
			if err != nil {
				log.Printf("sweeper: pass failed: %v", err)
				continue
			}
			if result.Released > 0 || result.Consistency.Repaired > 0 || result.Consistency.Failed > 0 {
				log.Printf("sweeper: released=%d repaired=%d unrepairable=%d",
					result.Released, result.Consistency.Repaired, result.Consistency.Failed)
			}
		}
	}
}
