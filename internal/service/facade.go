// Package service is the Service Façade: one method per user-visible
// operation, validating inputs, orchestrating the UIN
// Generator and Lifecycle Engine, and shaping results. It performs no I/O
// of its own beyond calling those two collaborators — the same surface
// backs both the CLI and any HTTP handler built on top of it.
package service

import (
	"context"
	"time"

	"github.com/osia-civil/uin-engine/internal/crypto"
	internalerrors "github.com/osia-civil/uin-engine/internal/errors"
	"github.com/osia-civil/uin-engine/internal/lifecycle"
	"github.com/osia-civil/uin-engine/internal/logging"
	"github.com/osia-civil/uin-engine/internal/metrics"
	"github.com/osia-civil/uin-engine/internal/pool"
	"github.com/osia-civil/uin-engine/internal/uin"
)

const (
	minPreGenerate = 1
	maxPreGenerate = 100_000

	minBatchGenerate = 1
	maxBatchGenerate = 1_000
)

// Facade wires the UIN Generator and Lifecycle Engine behind the operations
// collaborators invoke. rmd160Salt is applied to every row's integrity hash
// at generation time.
type Facade struct {
	gen        *uin.Generator
	engine     *lifecycle.Engine
	log        *logging.Logger
	metrics    *metrics.Metrics
	rmd160Salt []byte
}

// New constructs a Facade. log and m may be nil.
func New(gen *uin.Generator, engine *lifecycle.Engine, log *logging.Logger, m *metrics.Metrics, rmd160Salt []byte) *Facade {
	return &Facade{gen: gen, engine: engine, log: log, metrics: m, rmd160Salt: rmd160Salt}
}

func (f *Facade) recordGenerate(mode uin.Mode, outcome string, start time.Time) {
	if f.metrics != nil {
		f.metrics.RecordGenerate(string(mode), outcome, time.Since(start))
	}
}

// Generate produces one UIN per req with no persistence, for ad-hoc use
// (CLI previews, format validation tooling).
func (f *Facade) Generate(ctx context.Context, req uin.Request) (uin.Result, error) {
	start := time.Now()
	result, _, err := f.gen.Generate(ctx, req)
	if err != nil {
		f.recordGenerate(req.Mode, "error", start)
		return uin.Result{}, err
	}
	f.recordGenerate(req.Mode, "success", start)
	return result, nil
}

// OsiaGenerate always generates in foundational mode at length 19 with an
// ISO 7064 checksum and exclude_ambiguous=true (the OSIA civil-registration
// profile), persists the row as AVAILABLE with the caller's attributes and
// transaction id recorded, and returns only the UIN value.
func (f *Facade) OsiaGenerate(ctx context.Context, transactionID string, attributes map[string]interface{}) (string, error) {
	req := uin.Request{
		Mode: uin.ModeFoundational,
		Foundational: &uin.FoundationalOptions{
			Length:           19,
			Charset:          uin.CharsetSafe,
			ExcludeAmbiguous: true,
			Checksum: uin.ChecksumConfig{
				Enabled:   true,
				Algorithm: crypto.ChecksumISO7064,
			},
		},
	}

	start := time.Now()
	result, _, err := f.gen.Generate(ctx, req)
	if err != nil {
		f.recordGenerate(req.Mode, "error", start)
		return "", err
	}
	f.recordGenerate(req.Mode, "success", start)

	now := time.Now().UTC()
	record := pool.Record{
		UIN:              result.Value,
		Mode:             pool.ModeFoundational,
		Scope:            "foundational",
		IssuedAt:         now,
		Status:           pool.StatusAvailable,
		LastTransitionAt: now,
		HashRMD160:       crypto.IntegrityHash(result.Value, f.rmd160Salt),
		Attributes:       attributes,
	}
	if transactionID != "" {
		record.TransactionID = &transactionID
	}

	if err := f.engine.PreGenerate(ctx, record); err != nil {
		return "", err
	}
	return result.Value, nil
}

// RowError is one row's failure inside a PreGenerate or BatchGenerate call;
// the batch continues past it rather than aborting.
type RowError struct {
	Index int
	UIN   string
	Err   error
}

// PreGenerateSummary reports per-row outcomes for a PreGenerate call.
type PreGenerateSummary struct {
	Requested int
	Inserted  int
	Errors    []RowError
}

// PreGenerate materializes count rows of mode in scope using req as the
// per-row generation template, persisting each as AVAILABLE. A collision or
// any other per-row failure is recorded in Errors and does not abort the
// remaining rows. count must be between minPreGenerate and maxPreGenerate
// inclusive.
func (f *Facade) PreGenerate(ctx context.Context, count int, mode pool.Mode, scope string, req uin.Request) (PreGenerateSummary, error) {
	if count < minPreGenerate || count > maxPreGenerate {
		return PreGenerateSummary{}, internalerrors.OutOfRange("count", minPreGenerate, maxPreGenerate)
	}

	summary := PreGenerateSummary{Requested: count}
	for i := 0; i < count; i++ {
		start := time.Now()
		result, _, err := f.gen.Generate(ctx, req)
		if err != nil {
			f.recordGenerate(req.Mode, "error", start)
			summary.Errors = append(summary.Errors, RowError{Index: i, Err: err})
			continue
		}
		f.recordGenerate(req.Mode, "success", start)

		now := time.Now().UTC()
		record := pool.Record{
			UIN:              result.Value,
			Mode:             mode,
			Scope:            scope,
			IssuedAt:         now,
			Status:           pool.StatusAvailable,
			LastTransitionAt: now,
			HashRMD160:       crypto.IntegrityHash(result.Value, f.rmd160Salt),
		}
		if err := f.engine.PreGenerate(ctx, record); err != nil {
			summary.Errors = append(summary.Errors, RowError{Index: i, UIN: result.Value, Err: err})
			continue
		}
		summary.Inserted++
	}
	return summary, nil
}

// BatchGenerateSummary reports per-row outcomes for a BatchGenerate call.
type BatchGenerateSummary struct {
	Results []uin.Result
	Errors  []RowError
}

// BatchGenerate produces count UINs from req with no persistence, bounded
// between minBatchGenerate and maxBatchGenerate inclusive. A per-row
// generation failure is recorded and does not abort the remaining rows.
func (f *Facade) BatchGenerate(ctx context.Context, count int, req uin.Request) (BatchGenerateSummary, error) {
	if count < minBatchGenerate || count > maxBatchGenerate {
		return BatchGenerateSummary{}, internalerrors.OutOfRange("count", minBatchGenerate, maxBatchGenerate)
	}

	summary := BatchGenerateSummary{Results: make([]uin.Result, 0, count)}
	for i := 0; i < count; i++ {
		start := time.Now()
		result, _, err := f.gen.Generate(ctx, req)
		if err != nil {
			f.recordGenerate(req.Mode, "error", start)
			summary.Errors = append(summary.Errors, RowError{Index: i, Err: err})
			continue
		}
		f.recordGenerate(req.Mode, "success", start)
		summary.Results = append(summary.Results, result)
	}
	return summary, nil
}

// Claim delegates to the Lifecycle Engine.
func (f *Facade) Claim(ctx context.Context, scope, clientID string) (lifecycle.ClaimResult, error) {
	return f.engine.Claim(ctx, scope, clientID)
}

// Assign delegates to the Lifecycle Engine.
func (f *Facade) Assign(ctx context.Context, uinValue, ref, actor string) (pool.Record, error) {
	return f.engine.Assign(ctx, uinValue, ref, actor)
}

// Release delegates to the Lifecycle Engine.
func (f *Facade) Release(ctx context.Context, uinValue, actor string) (pool.Record, error) {
	return f.engine.Release(ctx, uinValue, actor)
}

// Retire delegates to the Lifecycle Engine.
func (f *Facade) Retire(ctx context.Context, uinValue, reason, actor string) (pool.Record, error) {
	return f.engine.Retire(ctx, uinValue, reason, actor)
}

// Revoke delegates to the Lifecycle Engine.
func (f *Facade) Revoke(ctx context.Context, uinValue, reason, actor string) (pool.Record, error) {
	return f.engine.Revoke(ctx, uinValue, reason, actor)
}

// CleanupStale delegates to the Lifecycle Engine.
func (f *Facade) CleanupStale(ctx context.Context, threshold time.Duration) ([]pool.Record, error) {
	return f.engine.CleanupStale(ctx, threshold)
}

// Lookup delegates to the Lifecycle Engine.
func (f *Facade) Lookup(ctx context.Context, uinValue string) (pool.Record, error) {
	return f.engine.Lookup(ctx, uinValue)
}

// Audit delegates to the Lifecycle Engine.
func (f *Facade) Audit(ctx context.Context, uinValue string) ([]pool.AuditEntry, error) {
	return f.engine.Audit(ctx, uinValue)
}

// PoolStats delegates to the Lifecycle Engine.
func (f *Facade) PoolStats(ctx context.Context, scope string) ([]pool.StatusAggregate, error) {
	return f.engine.PoolStats(ctx, scope)
}
