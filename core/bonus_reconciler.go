package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BonusReconciler walks the subscriber directory list page by page and
// grants the one-time subscription bonus to confirmed members that have
// not received it yet. Each qualifying member is mirrored into the local
// subscriber store first, so members that never passed through the webhook
// path are still claimable. The granted flag is claimed locally before the
// disbursement call so concurrent passes cannot double-grant.
type BonusReconciler struct {
	config    Config
	directory DirectoryClient
	bonus     BonusClient
	subs      SubscriberStore
	logger    Logger
	ticker    func(d time.Duration) *time.Ticker
	stopped   chan struct{}
}

func NewBonusReconciler(cfg Config, directory DirectoryClient, bonus BonusClient, subs SubscriberStore, logger Logger) (*BonusReconciler, error) {
	if directory == nil {
		return nil, fmt.Errorf("core: directory client is required")
	}
	if bonus == nil {
		return nil, fmt.Errorf("core: bonus client is required")
	}
	if subs == nil {
		return nil, fmt.Errorf("core: subscriber store is required")
	}
	return &BonusReconciler{
		config:    cfg,
		directory: directory,
		bonus:     bonus,
		subs:      subs,
		logger:    logger,
		ticker:    time.NewTicker,
		stopped:   make(chan struct{}),
	}, nil
}

// Start runs an immediate pass, then repeats on the configured interval
// until the context is canceled. It blocks; callers run it in a goroutine.
func (r *BonusReconciler) Start(ctx context.Context) error {
	if r == nil {
		return NewPersistenceError("core: bonus reconciler is not configured")
	}
	defer close(r.stopped)
	r.runLogged(ctx)
	t := r.ticker(r.config.Bonus.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.runLogged(ctx)
		}
	}
}

// Stopped reports reconciler shutdown.
func (r *BonusReconciler) Stopped() <-chan struct{} {
	return r.stopped
}

func (r *BonusReconciler) runLogged(ctx context.Context) {
	stats, err := r.RunPass(ctx)
	if err != nil {
		logError(ctx, r.logger, "bonus pass failed", map[string]any{"error": err.Error()})
		return
	}
	logInfo(ctx, r.logger, "bonus pass complete", map[string]any{
		"listed":      stats.Listed,
		"skipped":     stats.Skipped,
		"granted":     stats.Granted,
		"already_set": stats.AlreadySet,
		"failed":      stats.Failed,
	})
}

// RunPass performs a single reconciliation sweep. A page-listing failure
// aborts the pass; a per-subscriber failure releases the claimed flag and
// moves on, so one bad disbursement never blocks the rest of the list.
func (r *BonusReconciler) RunPass(ctx context.Context) (BonusStats, error) {
	if r == nil {
		return BonusStats{}, NewPersistenceError("core: bonus reconciler is not configured")
	}
	stats := BonusStats{}
	listID := r.config.Directory.ListID
	for page := 1; ; page++ {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		entries, hasNext, err := r.directory.ListPage(ctx, listID, page)
		if err != nil {
			return stats, NewTransientUpstreamError(fmt.Sprintf("core: list directory page %d: %v", page, err))
		}
		for _, entry := range entries {
			stats.Listed++
			r.reconcile(ctx, entry, listID, &stats)
		}
		if !hasNext {
			return stats, nil
		}
	}
}

func (r *BonusReconciler) reconcile(ctx context.Context, entry DirectoryEntry, listID int, stats *BonusStats) {
	uuid := strings.TrimSpace(entry.UUID)
	phone := strings.TrimSpace(entry.Phone)
	if uuid == "" || phone == "" || !entry.ConfirmedFor(listID) {
		stats.Skipped++
		return
	}
	// Insert-if-absent: ClaimBonus is a conditional update and matches
	// nothing for a uuid that has no local row yet.
	if err := r.subs.UpsertIdentity(ctx, Subscriber{
		UUID:  uuid,
		Email: strings.TrimSpace(entry.Email),
		Phone: phone,
	}); err != nil {
		stats.Failed++
		logError(ctx, r.logger, "subscriber mirror failed", map[string]any{
			"uuid":  uuid,
			"error": err.Error(),
		})
		return
	}
	claimed, err := r.subs.ClaimBonus(ctx, uuid)
	if err != nil {
		stats.Failed++
		logError(ctx, r.logger, "bonus claim failed", map[string]any{
			"uuid":  uuid,
			"error": err.Error(),
		})
		return
	}
	if !claimed {
		stats.AlreadySet++
		return
	}
	if err := r.bonus.Disburse(ctx, phone, r.config.Bonus.Sum, r.config.Bonus.Comment); err != nil {
		stats.Failed++
		// The claim is rolled back so the next pass retries this member.
		if releaseErr := r.subs.ReleaseBonus(ctx, uuid); releaseErr != nil {
			logError(ctx, r.logger, "bonus release failed", map[string]any{
				"uuid":  uuid,
				"error": releaseErr.Error(),
			})
		}
		logError(ctx, r.logger, "bonus disbursement failed", map[string]any{
			"uuid":  uuid,
			"phone": phone,
			"error": err.Error(),
		})
		return
	}
	stats.Granted++
	logInfo(ctx, r.logger, "bonus granted", map[string]any{
		"uuid":  uuid,
		"phone": phone,
		"sum":   r.config.Bonus.Sum,
	})
}
