package plansync

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/plansync/internal/model"
)

// Mutator is the write surface the Applier needs from the catalog.
type Mutator interface {
	Deactivate(ctx context.Context, entryID int64) error
	PatchRate(ctx context.Context, entryID int64, tier model.Tier, rate float64, at time.Time) error
}

// ApplyResult summarizes one apply pass.
type ApplyResult struct {
	Deactivated   int
	Patched       int
	PendingReview int
	Warnings      []string
}

// Applier writes a change set to the catalog. Removed plans are soft-deleted,
// updated plans get the compared tier's rate patched, and new plans are left
// for an operator to add.
type Applier struct {
	store Mutator
	tier  model.Tier
	now   func() time.Time
}

// NewApplier creates an Applier that patches the given tier.
func NewApplier(store Mutator, tier model.Tier) *Applier {
	return &Applier{store: store, tier: tier, now: time.Now}
}

// Apply attempts every mutation independently. A failed write becomes a
// warning naming the plan and does not stop the remaining writes.
func (a *Applier) Apply(ctx context.Context, cs model.ChangeSet) ApplyResult {
	log := zap.L().With(zap.String("component", "plansync.applier"))
	var res ApplyResult

	for _, c := range cs.Removed {
		if err := a.store.Deactivate(ctx, c.EntryID); err != nil {
			log.Warn("deactivate failed", zap.Int64("entry_id", c.EntryID), zap.Error(err))
			res.Warnings = append(res.Warnings, applyWarning("deactivate", c, err))
			continue
		}
		res.Deactivated++
	}

	at := a.now().UTC()
	for _, c := range cs.Updated {
		if c.NewRate == nil {
			res.Warnings = append(res.Warnings, applyWarning("patch rate", c, eris.New("no new rate")))
			continue
		}
		if err := a.store.PatchRate(ctx, c.EntryID, a.tier, *c.NewRate, at); err != nil {
			log.Warn("patch rate failed", zap.Int64("entry_id", c.EntryID), zap.Error(err))
			res.Warnings = append(res.Warnings, applyWarning("patch rate", c, err))
			continue
		}
		res.Patched++
	}

	res.PendingReview = len(cs.New)

	log.Info("apply complete",
		zap.Int("deactivated", res.Deactivated),
		zap.Int("patched", res.Patched),
		zap.Int("pending_review", res.PendingReview),
		zap.Int("failed", len(res.Warnings)),
	)
	return res
}

func applyWarning(op string, c model.ChangeRecord, err error) string {
	return fmt.Sprintf("%s failed for %s / %s (entry %d): %v", op, c.ProviderName, c.PlanName, c.EntryID, err)
}
