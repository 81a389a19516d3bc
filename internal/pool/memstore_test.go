package pool

import (
	"context"
	"testing"
	"time"

	internalerrors "github.com/osia-civil/uin-engine/internal/errors"
)

func TestMemStore_InsertPoolRow_RejectsDuplicate(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	rec := Record{UIN: "U1", Status: StatusAvailable, IssuedAt: time.Now()}
	if err := s.InsertPoolRow(ctx, rec); err != nil {
		t.Fatalf("InsertPoolRow: %v", err)
	}
	if err := s.InsertPoolRow(ctx, rec); !internalerrors.Is(err, internalerrors.KindDuplicate) {
		t.Fatalf("err = %v, want KindDuplicate", err)
	}
}

func TestMemStore_LockOneAvailable_EarliestFirst(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	now := time.Now().UTC()
	_ = s.InsertPoolRow(ctx, Record{UIN: "later", Status: StatusAvailable, IssuedAt: now.Add(time.Minute)})
	_ = s.InsertPoolRow(ctx, Record{UIN: "earlier", Status: StatusAvailable, IssuedAt: now})

	rec, ok, err := s.LockOneAvailable(ctx, "")
	if err != nil || !ok {
		t.Fatalf("LockOneAvailable: %v %v", ok, err)
	}
	if rec.UIN != "earlier" {
		t.Errorf("UIN = %q, want earlier", rec.UIN)
	}
}

func TestMemStore_UpdateStatus_Idempotent(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_ = s.InsertPoolRow(ctx, Record{UIN: "U1", Status: StatusAvailable, IssuedAt: time.Now()})

	by := "CR"
	first, err := s.UpdateStatus(ctx, "U1", StatusAvailable, StatusPreassigned, UpdateFields{ClaimedBy: &by})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	second, err := s.UpdateStatus(ctx, "U1", StatusAvailable, StatusPreassigned, UpdateFields{ClaimedBy: &by})
	if err != nil {
		t.Fatalf("UpdateStatus (repeat): %v", err)
	}
	if first.Status != second.Status {
		t.Errorf("repeat UpdateStatus drifted: %v vs %v", first.Status, second.Status)
	}
}

func TestMemStore_UpdateStatus_NotFound(t *testing.T) {
	s := NewMemStore()
	if _, err := s.UpdateStatus(context.Background(), "missing", StatusAvailable, StatusPreassigned, UpdateFields{}); !internalerrors.Is(err, internalerrors.KindNotFound) {
		t.Fatalf("err = %v, want KindNotFound", err)
	}
}

func TestMemStore_ListStaleInStatus(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	now := time.Now().UTC()
	stale := now.Add(-2 * time.Hour)
	fresh := now.Add(-1 * time.Minute)

	_ = s.InsertPoolRow(ctx, Record{UIN: "a", Status: StatusAvailable, IssuedAt: now})
	by := "CR"
	_, _ = s.UpdateStatus(ctx, "a", StatusAvailable, StatusPreassigned, UpdateFields{ClaimedBy: &by, ClaimedAt: &stale})

	_ = s.InsertPoolRow(ctx, Record{UIN: "b", Status: StatusAvailable, IssuedAt: now})
	_, _ = s.UpdateStatus(ctx, "b", StatusAvailable, StatusPreassigned, UpdateFields{ClaimedBy: &by, ClaimedAt: &fresh})

	rows, err := s.ListStaleInStatus(ctx, StatusPreassigned, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListStaleInStatus: %v", err)
	}
	if len(rows) != 1 || rows[0].UIN != "a" {
		t.Fatalf("rows = %+v, want exactly [a]", rows)
	}
}

func TestMemStore_AggregateByStatus(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	now := time.Now().UTC()
	_ = s.InsertPoolRow(ctx, Record{UIN: "a", Status: StatusAvailable, IssuedAt: now, Scope: "health"})
	_ = s.InsertPoolRow(ctx, Record{UIN: "b", Status: StatusAvailable, IssuedAt: now, Scope: "health"})
	_ = s.InsertPoolRow(ctx, Record{UIN: "c", Status: StatusAvailable, IssuedAt: now, Scope: "tax"})

	aggs, err := s.AggregateByStatus(ctx, "health")
	if err != nil {
		t.Fatalf("AggregateByStatus: %v", err)
	}
	if len(aggs) != 1 || aggs[0].Count != 2 {
		t.Fatalf("aggs = %+v, want one entry with count 2", aggs)
	}
}

func TestMemStore_AuditByUin_PreservesOrder(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_ = s.AppendAudit(ctx, AuditEntry{UIN: "U1", EventType: EventGenerated})
	_ = s.AppendAudit(ctx, AuditEntry{UIN: "U1", EventType: EventPreassigned})
	_ = s.AppendAudit(ctx, AuditEntry{UIN: "other", EventType: EventGenerated})

	trail, err := s.AuditByUin(ctx, "U1")
	if err != nil {
		t.Fatalf("AuditByUin: %v", err)
	}
	if len(trail) != 2 || trail[0].EventType != EventGenerated || trail[1].EventType != EventPreassigned {
		t.Fatalf("trail = %+v", trail)
	}
}
