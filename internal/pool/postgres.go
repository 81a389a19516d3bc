package pool

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	internalerrors "github.com/osia-civil/uin-engine/internal/errors"
)

// uniqueViolation is the Postgres SQLSTATE for a unique-key conflict.
const uniqueViolation = "23505"

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store against uin_pool/uin_audit tables on
// PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-configured *sql.DB. Connection pool
// sizing (pool_min/pool_max/idle_timeout_ms) is applied by the caller via
// db.SetMaxOpenConns/SetMaxIdleConns/SetConnMaxIdleTime before this call.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) querier(ctx context.Context) Querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

// WithTx runs fn inside a single transaction and commits iff fn succeeds.
// This is the mechanism every lifecycle operation uses to combine its
// status update with its audit insert.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return internalerrors.Storage("begin_tx", err)
	}

	scoped := &PostgresStore{db: s.db}
	txCtx := contextWithTx(ctx, tx)

	if err := fn(txCtx, scoped); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return internalerrors.Storage("commit_tx", err)
	}
	return nil
}

func marshalMap(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func unmarshalMap(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// InsertPoolRow inserts a new uin_pool row with the record's status:
// AVAILABLE for pre-generation, or the state a direct generate call implies.
func (s *PostgresStore) InsertPoolRow(ctx context.Context, record Record) error {
	attrs, err := marshalMap(record.Attributes)
	if err != nil {
		return internalerrors.Storage("insert_pool_row.marshal_attributes", err)
	}
	meta, err := marshalMap(record.Meta)
	if err != nil {
		return internalerrors.Storage("insert_pool_row.marshal_meta", err)
	}
	if record.LastTransitionAt.IsZero() {
		record.LastTransitionAt = record.IssuedAt
	}

	_, err = s.querier(ctx).ExecContext(ctx, `
		INSERT INTO uin_pool
			(uin, mode, scope, issued_at, not_before, expires_at, status, last_transition_at,
			 hash_rmd160, claimed_by, claimed_at, assigned_to_ref, assigned_at, transaction_id,
			 attributes, meta)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, record.UIN, record.Mode, record.Scope, record.IssuedAt, record.NotBefore, record.ExpiresAt,
		record.Status, record.LastTransitionAt, record.HashRMD160, record.ClaimedBy, record.ClaimedAt,
		record.AssignedToRef, record.AssignedAt, record.TransactionID, attrs, meta)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return internalerrors.DuplicateUin(record.UIN)
		}
		return internalerrors.Storage("insert_pool_row", err)
	}
	return nil
}

func scanRecord(row interface {
	Scan(dest ...any) error
}) (Record, error) {
	var rec Record
	var attrs, meta []byte
	err := row.Scan(
		&rec.UIN, &rec.Mode, &rec.Scope, &rec.IssuedAt, &rec.NotBefore, &rec.ExpiresAt,
		&rec.Status, &rec.LastTransitionAt, &rec.HashRMD160, &rec.ClaimedBy, &rec.ClaimedAt,
		&rec.AssignedToRef, &rec.AssignedAt, &rec.TransactionID, &attrs, &meta,
	)
	if err != nil {
		return Record{}, err
	}
	rec.Attributes, err = unmarshalMap(attrs)
	if err != nil {
		return Record{}, err
	}
	rec.Meta, err = unmarshalMap(meta)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

const poolColumns = `uin, mode, scope, issued_at, not_before, expires_at, status, last_transition_at,
	hash_rmd160, claimed_by, claimed_at, assigned_to_ref, assigned_at, transaction_id, attributes, meta`

// LockOneAvailable returns and exclusively locks one AVAILABLE row, chosen
// by earliest issued_at, skipping rows locked by concurrent transactions.
// Must be called inside WithTx so the lock is held until the enclosing
// transaction commits or rolls back.
func (s *PostgresStore) LockOneAvailable(ctx context.Context, scope string) (Record, bool, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM uin_pool
		WHERE status = $1 AND ($2 = '' OR scope = $2)
		ORDER BY issued_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, poolColumns)

	row := s.querier(ctx).QueryRowContext(ctx, query, StatusAvailable, scope)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, internalerrors.Storage("lock_one_available", err)
	}
	return rec, true, nil
}

// UpdateStatus applies a status transition plus its associated fields,
// guarded by the expected current status: fails if the current status
// does not match the expected precondition.
func (s *PostgresStore) UpdateStatus(ctx context.Context, uin string, expectedStatus, newStatus Status, fields UpdateFields) (Record, error) {
	q := s.querier(ctx)

	current, err := findByUinWith(ctx, q, uin)
	if err != nil {
		return Record{}, err
	}
	if current.Status == newStatus {
		// Already applied; treat as idempotent so repeat calls don't drift
		// state further.
		return current, nil
	}
	if current.Status != expectedStatus {
		return Record{}, internalerrors.IllegalTransition(uin, string(current.Status), string(newStatus))
	}

	claimedBy := current.ClaimedBy
	claimedAt := current.ClaimedAt
	assignedRef := current.AssignedToRef
	assignedAt := current.AssignedAt

	if fields.ClaimedBy != nil {
		claimedBy = fields.ClaimedBy
	}
	if fields.ClaimedAt != nil {
		claimedAt = fields.ClaimedAt
	}
	if fields.AssignedToRef != nil {
		assignedRef = fields.AssignedToRef
	}
	if fields.AssignedAt != nil {
		assignedAt = fields.AssignedAt
	}
	if fields.ClearClaim {
		claimedBy = nil
		claimedAt = nil
	}
	if fields.ClearAssign {
		assignedRef = nil
		assignedAt = nil
	}

	now := time.Now().UTC()
	_, err = q.ExecContext(ctx, `
		UPDATE uin_pool
		SET status = $1, last_transition_at = $2, claimed_by = $3, claimed_at = $4,
		    assigned_to_ref = $5, assigned_at = $6
		WHERE uin = $7
	`, newStatus, now, claimedBy, claimedAt, assignedRef, assignedAt, uin)
	if err != nil {
		return Record{}, internalerrors.Storage("update_status", err)
	}

	return findByUinWith(ctx, q, uin)
}

// AppendAudit inserts an append-only uin_audit row.
func (s *PostgresStore) AppendAudit(ctx context.Context, entry AuditEntry) error {
	details, err := marshalMap(entry.Details)
	if err != nil {
		return internalerrors.Storage("append_audit.marshal_details", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err = s.querier(ctx).ExecContext(ctx, `
		INSERT INTO uin_audit
			(uin, event_type, old_status, new_status, actor_system, actor_ref, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.UIN, entry.EventType, entry.OldStatus, entry.NewStatus, entry.ActorSystem, entry.ActorRef, details, entry.CreatedAt)
	if err != nil {
		return internalerrors.Storage("append_audit", err)
	}
	return nil
}

// FindByUin returns a single uin_pool row.
func (s *PostgresStore) FindByUin(ctx context.Context, uin string) (Record, error) {
	return findByUinWith(ctx, s.querier(ctx), uin)
}

func findByUinWith(ctx context.Context, q Querier, uin string) (Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM uin_pool WHERE uin = $1`, poolColumns)
	row := q.QueryRowContext(ctx, query, uin)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, internalerrors.NotFound(uin)
		}
		return Record{}, internalerrors.Storage("find_by_uin", err)
	}
	return rec, nil
}

// ListStaleInStatus returns rows in status whose claimed_at predates olderThan.
func (s *PostgresStore) ListStaleInStatus(ctx context.Context, status Status, olderThan time.Time) ([]Record, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM uin_pool
		WHERE status = $1 AND claimed_at IS NOT NULL AND claimed_at < $2
		ORDER BY claimed_at
	`, poolColumns)
	rows, err := s.querier(ctx).QueryContext(ctx, query, status, olderThan)
	if err != nil {
		return nil, internalerrors.Storage("list_stale_in_status", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, internalerrors.Storage("list_stale_in_status.scan", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, internalerrors.Storage("list_stale_in_status.rows", err)
	}
	return out, nil
}

// AuditByUin returns every audit entry for uin in temporal order.
func (s *PostgresStore) AuditByUin(ctx context.Context, uin string) ([]AuditEntry, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT id, uin, event_type, old_status, new_status, actor_system, actor_ref, details, created_at
		FROM uin_audit
		WHERE uin = $1
		ORDER BY id
	`, uin)
	if err != nil {
		return nil, internalerrors.Storage("audit_by_uin", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var details []byte
		if err := rows.Scan(&entry.ID, &entry.UIN, &entry.EventType, &entry.OldStatus, &entry.NewStatus,
			&entry.ActorSystem, &entry.ActorRef, &details, &entry.CreatedAt); err != nil {
			return nil, internalerrors.Storage("audit_by_uin.scan", err)
		}
		entry.Details, err = unmarshalMap(details)
		if err != nil {
			return nil, internalerrors.Storage("audit_by_uin.unmarshal_details", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, internalerrors.Storage("audit_by_uin.rows", err)
	}
	return out, nil
}

// AggregateByStatus returns per-status row counts, optionally scoped.
func (s *PostgresStore) AggregateByStatus(ctx context.Context, scope string) ([]StatusAggregate, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT status, COUNT(*) FROM uin_pool
		WHERE $1 = '' OR scope = $1
		GROUP BY status
	`, scope)
	if err != nil {
		return nil, internalerrors.Storage("aggregate_by_status", err)
	}
	defer rows.Close()

	var out []StatusAggregate
	for rows.Next() {
		var agg StatusAggregate
		if err := rows.Scan(&agg.Status, &agg.Count); err != nil {
			return nil, internalerrors.Storage("aggregate_by_status.scan", err)
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, internalerrors.Storage("aggregate_by_status.rows", err)
	}
	return out, nil
}
