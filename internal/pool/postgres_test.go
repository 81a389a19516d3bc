package pool

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	internalerrors "github.com/osia-civil/uin-engine/internal/errors"
)

func TestPostgresStore_InsertPoolRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO uin_pool`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewPostgresStore(db)
	now := time.Now().UTC()
	err = s.InsertPoolRow(context.Background(), Record{
		UIN: "U1", Mode: ModeFoundational, Scope: "foundational", IssuedAt: now, Status: StatusAvailable,
		HashRMD160: "deadbeef",
	})
	if err != nil {
		t.Fatalf("InsertPoolRow: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_InsertPoolRow_DuplicateUin(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO uin_pool`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	s := NewPostgresStore(db)
	err = s.InsertPoolRow(context.Background(), Record{UIN: "U1", Status: StatusAvailable, IssuedAt: time.Now()})
	if !internalerrors.Is(err, internalerrors.KindDuplicate) {
		t.Fatalf("err = %v, want KindDuplicate", err)
	}
}

func poolRowColumns() []string {
	return []string{
		"uin", "mode", "scope", "issued_at", "not_before", "expires_at", "status", "last_transition_at",
		"hash_rmd160", "claimed_by", "claimed_at", "assigned_to_ref", "assigned_at", "transaction_id",
		"attributes", "meta",
	}
}

func TestPostgresStore_LockOneAvailable_Found(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(poolRowColumns()).AddRow(
		"U1", "foundational", "foundational", now, nil, nil, "AVAILABLE", now,
		"deadbeef", nil, nil, nil, nil, nil, []byte(`{}`), []byte(`{}`),
	)
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).WithArgs(StatusAvailable, "foundational").WillReturnRows(rows)

	s := NewPostgresStore(db)
	rec, ok, err := s.LockOneAvailable(context.Background(), "foundational")
	if err != nil {
		t.Fatalf("LockOneAvailable: %v", err)
	}
	if !ok || rec.UIN != "U1" {
		t.Fatalf("LockOneAvailable = %+v, %v", rec, ok)
	}
}

func TestPostgresStore_LockOneAvailable_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(StatusAvailable, "").
		WillReturnRows(sqlmock.NewRows(poolRowColumns()))

	s := NewPostgresStore(db)
	_, ok, err := s.LockOneAvailable(context.Background(), "")
	if err != nil {
		t.Fatalf("LockOneAvailable: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false on empty pool")
	}
}

func TestPostgresStore_UpdateStatus_PreconditionMismatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(poolRowColumns()).AddRow(
		"U1", "foundational", "foundational", now, nil, nil, "ASSIGNED", now,
		"deadbeef", nil, nil, "ref", &now, nil, []byte(`{}`), []byte(`{}`),
	)
	mock.ExpectQuery(`SELECT .* FROM uin_pool WHERE uin = \$1`).WithArgs("U1").WillReturnRows(rows)

	s := NewPostgresStore(db)
	_, err = s.UpdateStatus(context.Background(), "U1", StatusPreassigned, StatusRetired, UpdateFields{})
	if !internalerrors.Is(err, internalerrors.KindIllegalState) {
		t.Fatalf("err = %v, want KindIllegalState", err)
	}
}

func TestPostgresStore_AggregateByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM uin_pool`).
		WithArgs("foundational").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("AVAILABLE", int64(40)).
			AddRow("ASSIGNED", int64(12)))

	s := NewPostgresStore(db)
	aggs, err := s.AggregateByStatus(context.Background(), "foundational")
	if err != nil {
		t.Fatalf("AggregateByStatus: %v", err)
	}
	if len(aggs) != 2 {
		t.Fatalf("len(aggs) = %d, want 2", len(aggs))
	}
}
