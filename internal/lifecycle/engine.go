// Package lifecycle implements the UIN state machine: claim, assign,
// release, retire, revoke and stale-preassignment cleanup, each combining
// its row update with its audit entry inside a single Pool Store
// transaction.
package lifecycle

import (
	"context"
	"time"

	internalerrors "github.com/osia-civil/uin-engine/internal/errors"
	"github.com/osia-civil/uin-engine/internal/logging"
	"github.com/osia-civil/uin-engine/internal/metrics"
	"github.com/osia-civil/uin-engine/internal/pool"
)

// maxClaimRetries bounds the lock-then-update retry loop, which retries a
// claim whose UpdateStatus reports an illegal transition for the locked row.
// PostgresStore's SKIP LOCKED row lock and MemStore's serialized WithTx both
// keep the locked row AVAILABLE until the update, so with either store the
// loop exits on its first iteration.
const maxClaimRetries = 64

// Engine orchestrates Pool Store operations under the UIN state transition
// table.
type Engine struct {
	store   pool.Store
	log     *logging.Logger
	metrics *metrics.Metrics
}

// New constructs an Engine. metrics may be nil to skip instrumentation.
func New(store pool.Store, log *logging.Logger, m *metrics.Metrics) *Engine {
	return &Engine{store: store, log: log, metrics: m}
}

func (e *Engine) recordTransition(ctx context.Context, uin, from, to, event string) {
	if e.log != nil {
		e.log.LogTransition(ctx, uin, from, to, event)
	}
	if e.metrics != nil {
		e.metrics.RecordTransition(from, to)
	}
}

// PreGenerate inserts a new AVAILABLE row for an already-materialized UIN
// (record.Status is expected to be pool.StatusAvailable unless the caller
// is performing a direct OSIA generate that persists a different initial
// status).
func (e *Engine) PreGenerate(ctx context.Context, record pool.Record) error {
	return e.store.WithTx(ctx, func(ctx context.Context, tx pool.Store) error {
		if err := tx.InsertPoolRow(ctx, record); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, pool.AuditEntry{
			UIN:       record.UIN,
			EventType: pool.EventGenerated,
			NewStatus: statusPtr(record.Status),
			Details:   map[string]interface{}{"mode": record.Mode},
		})
	})
}

// ClaimResult reports the outcome of Claim.
type ClaimResult struct {
	Record    pool.Record
	Available bool
}

// Claim reserves one AVAILABLE row in scope for clientID, moving it to
// PREASSIGNED. An empty pool is reported via ClaimResult.Available=false,
// not an error.
func (e *Engine) Claim(ctx context.Context, scope, clientID string) (ClaimResult, error) {
	start := time.Now()
	for attempt := 0; attempt < maxClaimRetries; attempt++ {
		var result ClaimResult
		err := e.store.WithTx(ctx, func(ctx context.Context, tx pool.Store) error {
			row, ok, err := tx.LockOneAvailable(ctx, scope)
			if err != nil {
				return err
			}
			if !ok {
				result = ClaimResult{Available: false}
				return nil
			}

			now := time.Now().UTC()
			updated, err := tx.UpdateStatus(ctx, row.UIN, pool.StatusAvailable, pool.StatusPreassigned, pool.UpdateFields{
				ClaimedBy: &clientID,
				ClaimedAt: &now,
			})
			if err != nil {
				return err
			}
			if err := tx.AppendAudit(ctx, pool.AuditEntry{
				UIN:         updated.UIN,
				EventType:   pool.EventPreassigned,
				OldStatus:   statusPtr(pool.StatusAvailable),
				NewStatus:   statusPtr(pool.StatusPreassigned),
				ActorSystem: clientID,
				Details:     map[string]interface{}{"scope": scope},
			}); err != nil {
				return err
			}
			result = ClaimResult{Record: updated, Available: true}
			return nil
		})
		if err != nil {
			if internalerrors.Is(err, internalerrors.KindIllegalState) {
				// The locked row left AVAILABLE before the update;
				// retry against the remaining pool.
				continue
			}
			return ClaimResult{}, err
		}
		if result.Available {
			e.recordTransition(ctx, result.Record.UIN, string(pool.StatusAvailable), string(pool.StatusPreassigned), string(pool.EventPreassigned))
			if e.metrics != nil {
				e.metrics.RecordClaimWait(time.Since(start))
			}
		}
		return result, nil
	}
	return ClaimResult{}, internalerrors.Storage("claim", errContended)
}

// Assign binds a PREASSIGNED row to an external reference, moving it to ASSIGNED.
func (e *Engine) Assign(ctx context.Context, uin, ref, actor string) (pool.Record, error) {
	var updated pool.Record
	err := e.store.WithTx(ctx, func(ctx context.Context, tx pool.Store) error {
		current, err := tx.FindByUin(ctx, uin)
		if err != nil {
			return err
		}
		if current.Status != pool.StatusPreassigned {
			return internalerrors.IllegalTransition(uin, string(current.Status), string(pool.StatusAssigned))
		}
		now := time.Now().UTC()
		rec, err := tx.UpdateStatus(ctx, uin, pool.StatusPreassigned, pool.StatusAssigned, pool.UpdateFields{
			AssignedToRef: &ref,
			AssignedAt:    &now,
		})
		if err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, pool.AuditEntry{
			UIN:         uin,
			EventType:   pool.EventAssigned,
			OldStatus:   statusPtr(pool.StatusPreassigned),
			NewStatus:   statusPtr(pool.StatusAssigned),
			ActorSystem: actor,
			Details:     map[string]interface{}{"assigned_to_ref": ref},
		}); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return pool.Record{}, err
	}
	e.recordTransition(ctx, uin, string(pool.StatusPreassigned), string(pool.StatusAssigned), string(pool.EventAssigned))
	return updated, nil
}

// Release returns a PREASSIGNED row to AVAILABLE, clearing its claim.
func (e *Engine) Release(ctx context.Context, uin, actor string) (pool.Record, error) {
	return e.releaseWithReason(ctx, uin, actor, "")
}

func (e *Engine) releaseWithReason(ctx context.Context, uin, actor, reason string) (pool.Record, error) {
	var updated pool.Record
	err := e.store.WithTx(ctx, func(ctx context.Context, tx pool.Store) error {
		current, err := tx.FindByUin(ctx, uin)
		if err != nil {
			return err
		}
		if current.Status != pool.StatusPreassigned {
			return internalerrors.IllegalTransition(uin, string(current.Status), string(pool.StatusAvailable))
		}
		rec, err := tx.UpdateStatus(ctx, uin, pool.StatusPreassigned, pool.StatusAvailable, pool.UpdateFields{
			ClearClaim: true,
		})
		if err != nil {
			return err
		}
		details := map[string]interface{}{}
		if reason != "" {
			details["reason"] = reason
		}
		if err := tx.AppendAudit(ctx, pool.AuditEntry{
			UIN:         uin,
			EventType:   pool.EventReleased,
			OldStatus:   statusPtr(pool.StatusPreassigned),
			NewStatus:   statusPtr(pool.StatusAvailable),
			ActorSystem: actor,
			Details:     details,
		}); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return pool.Record{}, err
	}
	e.recordTransition(ctx, uin, string(pool.StatusPreassigned), string(pool.StatusAvailable), string(pool.EventReleased))
	return updated, nil
}

// terminate drives uin to the given terminal status from any non-terminal
// state: administrative retire/revoke is allowed directly from
// AVAILABLE/PREASSIGNED, not only from ASSIGNED.
func (e *Engine) terminate(ctx context.Context, uin, reason, actor string, newStatus pool.Status, event pool.EventType) (pool.Record, error) {
	var updated pool.Record
	var from pool.Status
	err := e.store.WithTx(ctx, func(ctx context.Context, tx pool.Store) error {
		current, err := tx.FindByUin(ctx, uin)
		if err != nil {
			return err
		}
		from = current.Status
		if isTerminal(current.Status) {
			return internalerrors.IllegalTransition(uin, string(current.Status), string(newStatus))
		}

		rec, err := tx.UpdateStatus(ctx, uin, current.Status, newStatus, pool.UpdateFields{})
		if err != nil {
			return err
		}
		details := map[string]interface{}{}
		if reason != "" {
			details["reason"] = reason
		}
		if err := tx.AppendAudit(ctx, pool.AuditEntry{
			UIN:         uin,
			EventType:   event,
			OldStatus:   statusPtr(current.Status),
			NewStatus:   statusPtr(newStatus),
			ActorSystem: actor,
			Details:     details,
		}); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return pool.Record{}, err
	}
	e.recordTransition(ctx, uin, string(from), string(newStatus), string(event))
	return updated, nil
}

// Retire moves uin to the terminal RETIRED state.
func (e *Engine) Retire(ctx context.Context, uin, reason, actor string) (pool.Record, error) {
	return e.terminate(ctx, uin, reason, actor, pool.StatusRetired, pool.EventRetired)
}

// Revoke moves uin to the terminal REVOKED state.
func (e *Engine) Revoke(ctx context.Context, uin, reason, actor string) (pool.Record, error) {
	return e.terminate(ctx, uin, reason, actor, pool.StatusRevoked, pool.EventRevoked)
}

// CleanupStale releases every PREASSIGNED row whose claimed_at predates
// now()-threshold back to AVAILABLE, recording a RELEASED audit entry per
// row with details.reason="Stale preassignment cleanup".
func (e *Engine) CleanupStale(ctx context.Context, threshold time.Duration) ([]pool.Record, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	stale, err := e.store.ListStaleInStatus(ctx, pool.StatusPreassigned, cutoff)
	if err != nil {
		return nil, err
	}

	released := make([]pool.Record, 0, len(stale))
	for _, row := range stale {
		rec, err := e.releaseWithReason(ctx, row.UIN, "system:cleanup_stale", "Stale preassignment cleanup")
		if err != nil {
			if internalerrors.Is(err, internalerrors.KindIllegalState) {
				// Already moved on by a concurrent caller; skip.
				continue
			}
			return released, err
		}
		released = append(released, rec)
	}
	return released, nil
}

// Lookup returns the current row for uin.
func (e *Engine) Lookup(ctx context.Context, uin string) (pool.Record, error) {
	return e.store.FindByUin(ctx, uin)
}

// Audit returns the audit trail for uin in temporal order.
func (e *Engine) Audit(ctx context.Context, uin string) ([]pool.AuditEntry, error) {
	return e.store.AuditByUin(ctx, uin)
}

// PoolStats returns per-status row counts, optionally scoped, and refreshes
// the pool-size gauges.
func (e *Engine) PoolStats(ctx context.Context, scope string) ([]pool.StatusAggregate, error) {
	stats, err := e.store.AggregateByStatus(ctx, scope)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		for _, s := range stats {
			e.metrics.SetPoolSize(string(s.Status), int(s.Count))
		}
	}
	return stats, nil
}

func statusPtr(s pool.Status) *pool.Status { return &s }

func isTerminal(s pool.Status) bool {
	return s == pool.StatusRetired || s == pool.StatusRevoked
}

var errContended = internalerrors.New(internalerrors.KindStorage, "claim retries exhausted under contention", 503)
