package pool

import (
	"context"
	"sort"
	"sync"
	"time"

	internalerrors "github.com/osia-civil/uin-engine/internal/errors"
)

// MemStore is an in-memory Store used by lifecycle/service tests and by
// cheap local experimentation; it is not used in production.
type MemStore struct {
	mu      sync.Mutex
	txMu    sync.Mutex // held for the whole of each WithTx call
	rows    map[string]Record
	audit   []AuditEntry
	nextID  int64
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]Record)}
}

var _ Store = (*MemStore)(nil)

func cloneRecord(r Record) Record {
	cp := r
	if r.ClaimedBy != nil {
		v := *r.ClaimedBy
		cp.ClaimedBy = &v
	}
	if r.ClaimedAt != nil {
		v := *r.ClaimedAt
		cp.ClaimedAt = &v
	}
	if r.AssignedToRef != nil {
		v := *r.AssignedToRef
		cp.AssignedToRef = &v
	}
	if r.AssignedAt != nil {
		v := *r.AssignedAt
		cp.AssignedAt = &v
	}
	if r.TransactionID != nil {
		v := *r.TransactionID
		cp.TransactionID = &v
	}
	return cp
}

func (m *MemStore) InsertPoolRow(ctx context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[record.UIN]; exists {
		return internalerrors.DuplicateUin(record.UIN)
	}
	if record.LastTransitionAt.IsZero() {
		record.LastTransitionAt = record.IssuedAt
	}
	m.rows[record.UIN] = cloneRecord(record)
	return nil
}

func (m *MemStore) LockOneAvailable(ctx context.Context, scope string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []Record
	for _, r := range m.rows {
		if r.Status == StatusAvailable && (scope == "" || r.Scope == scope) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return Record{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].IssuedAt.Before(candidates[j].IssuedAt) })
	return cloneRecord(candidates[0]), true, nil
}

func (m *MemStore) UpdateStatus(ctx context.Context, uin string, expectedStatus, newStatus Status, fields UpdateFields) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.rows[uin]
	if !ok {
		return Record{}, internalerrors.NotFound(uin)
	}
	if current.Status == newStatus {
		return cloneRecord(current), nil
	}
	if current.Status != expectedStatus {
		return Record{}, internalerrors.IllegalTransition(uin, string(current.Status), string(newStatus))
	}

	current.Status = newStatus
	current.LastTransitionAt = time.Now().UTC()
	if fields.ClaimedBy != nil {
		current.ClaimedBy = fields.ClaimedBy
	}
	if fields.ClaimedAt != nil {
		current.ClaimedAt = fields.ClaimedAt
	}
	if fields.AssignedToRef != nil {
		current.AssignedToRef = fields.AssignedToRef
	}
	if fields.AssignedAt != nil {
		current.AssignedAt = fields.AssignedAt
	}
	if fields.ClearClaim {
		current.ClaimedBy = nil
		current.ClaimedAt = nil
	}
	if fields.ClearAssign {
		current.AssignedToRef = nil
		current.AssignedAt = nil
	}
	m.rows[uin] = current
	return cloneRecord(current), nil
}

func (m *MemStore) AppendAudit(ctx context.Context, entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.audit = append(m.audit, entry)
	return nil
}

func (m *MemStore) FindByUin(ctx context.Context, uin string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[uin]
	if !ok {
		return Record{}, internalerrors.NotFound(uin)
	}
	return cloneRecord(rec), nil
}

func (m *MemStore) ListStaleInStatus(ctx context.Context, status Status, olderThan time.Time) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.rows {
		if r.Status == status && r.ClaimedAt != nil && r.ClaimedAt.Before(olderThan) {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimedAt.Before(*out[j].ClaimedAt) })
	return out, nil
}

func (m *MemStore) AggregateByStatus(ctx context.Context, scope string) ([]StatusAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[Status]int64)
	for _, r := range m.rows {
		if scope != "" && r.Scope != scope {
			continue
		}
		counts[r.Status]++
	}
	var out []StatusAggregate
	for status, count := range counts {
		out = append(out, StatusAggregate{Status: status, Count: count})
	}
	return out, nil
}

// AuditByUin returns every audit entry for uin, in insertion order.
func (m *MemStore) AuditByUin(ctx context.Context, uin string) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditEntry
	for _, e := range m.audit {
		if e.UIN == uin {
			out = append(out, e)
		}
	}
	return out, nil
}

// WithTx runs fn against the same MemStore while holding a store-wide
// transaction lock, so transactions run one at a time. Writes made by fn
// are applied as they happen; an error from fn does not roll them back.
func (m *MemStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, m)
}
