package secrets

import (
	"context"
	"testing"
)

func TestLocalBackend_FetchAll_ReturnsCopy(t *testing.T) {
	b := NewLocalBackend(map[string][]byte{"Health ": []byte("secret")})

	all, err := b.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if _, ok := all["health"]; !ok {
		t.Fatalf("FetchAll() did not normalize key casing/whitespace: %+v", all)
	}
	all["health"][0] = 'X'

	again, err := b.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if string(again["health"]) != "secret" {
		t.Errorf("mutating a FetchAll result leaked into the backend: %q", again["health"])
	}
}

func TestLocalBackend_Fetch_NotFound(t *testing.T) {
	b := NewLocalBackend(nil)
	if _, err := b.Fetch(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing sector")
	}
}

func TestLocalBackend_ConstructorCopiesInput(t *testing.T) {
	src := map[string][]byte{"health": []byte("secret")}
	b := NewLocalBackend(src)
	src["health"][0] = 'X'

	v, err := b.Fetch(context.Background(), "health")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(v) != "secret" {
		t.Errorf("mutating caller's map leaked into backend: %q", v)
	}
}
