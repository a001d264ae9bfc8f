package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/trogers1052/portfolio-tracker/internal/models"
	"github.com/trogers1052/portfolio-tracker/internal/positions"
)

// PositionLister enumerates every live position
type PositionLister interface {
	ListPositionRefs(ctx context.Context) ([]models.PositionRef, error)
}

// Reconciler checks one position against its ledger
type Reconciler interface {
	Reconcile(ctx context.Context, owner string, id int, repair bool) (*positions.Reconciliation, error)
}

// ReconcileJob replays the ledger of every live position and reports, or
// repairs, positions that drifted from it
type ReconcileJob struct {
	lister     PositionLister
	reconciler Reconciler
	repair     bool
	timeout    time.Duration
	log        zerolog.Logger
}

// NewReconcileJob creates the job. timeout bounds a whole pass.
func NewReconcileJob(lister PositionLister, reconciler Reconciler, repair bool, timeout time.Duration, log zerolog.Logger) *ReconcileJob {
	return &ReconcileJob{
		lister:     lister,
		reconciler: reconciler,
		repair:     repair,
		timeout:    timeout,
		log:        log.With().Str("job", "reconcile_ledgers").Logger(),
	}
}

// Name returns the job name
func (j *ReconcileJob) Name() string {
	return "reconcile_ledgers"
}

// Run executes one pass
func (j *ReconcileJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	_, err := j.RunOnce(ctx)
	return err
}

// ReconcileSummary counts the outcome of one pass
type ReconcileSummary struct {
	Checked  int
	Drifted  int
	Repaired int
	Failed   int
}

// RunOnce reconciles every live position. Failures on single positions are
// counted and logged; the pass continues.
func (j *ReconcileJob) RunOnce(ctx context.Context) (ReconcileSummary, error) {
	var sum ReconcileSummary

	refs, err := j.lister.ListPositionRefs(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to list positions: %w", err)
	}

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		rec, err := j.reconciler.Reconcile(ctx, ref.OwnerID, ref.ID, j.repair)
		if errors.Is(err, models.ErrNotFound) {
			// Deleted since the listing.
			continue
		}
		sum.Checked++
		if err != nil {
			sum.Failed++
			j.log.Error().Err(err).Int("position_id", ref.ID).Msg("failed to reconcile position")
			continue
		}
		if !rec.Drift.InSync {
			sum.Drifted++
		}
		if rec.Repaired {
			sum.Repaired++
		}
	}

	j.log.Info().
		Int("checked", sum.Checked).
		Int("drifted", sum.Drifted).
		Int("repaired", sum.Repaired).
		Int("failed", sum.Failed).
		Msg("reconciliation pass finished")

	if sum.Failed > 0 {
		return sum, fmt.Errorf("%d of %d positions failed to reconcile", sum.Failed, sum.Checked)
	}
	return sum, nil
}
