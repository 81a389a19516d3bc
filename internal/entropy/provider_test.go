package entropy

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	name     string
	hasTRNG  bool
	initErr  error
	readErr  error
	reads    int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Initialize(ctx context.Context) (bool, bool, error) {
	if f.initErr != nil {
		return false, false, f.initErr
	}
	return true, f.hasTRNG, nil
}

func (f *fakeProvider) RandomBytes(ctx context.Context, n int) ([]byte, error) {
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)
	}
	return buf, nil
}

func (f *fakeProvider) Status(ctx context.Context) error { return nil }
func (f *fakeProvider) Close() error                     { return nil }

func TestNewSupplier_SelectsHighestPriorityHardware(t *testing.T) {
	utimaco := &fakeProvider{name: "utimaco", hasTRNG: true}
	thales := &fakeProvider{name: "thales", hasTRNG: true}
	soft := &fakeProvider{name: "software-csprng"}

	s, err := NewSupplier(context.Background(), []Provider{thales, utimaco, soft}, nil)
	if err != nil {
		t.Fatalf("NewSupplier: %v", err)
	}
	if s.Provenance().Provider != "utimaco" {
		t.Errorf("selected provider = %q, want utimaco (highest priority)", s.Provenance().Provider)
	}
}

func TestNewSupplier_FallsBackWhenNoHardwareQualifies(t *testing.T) {
	thales := &fakeProvider{name: "thales", hasTRNG: false}
	soft := &fakeProvider{name: "software-csprng"}

	s, err := NewSupplier(context.Background(), []Provider{thales, soft}, nil)
	if err != nil {
		t.Fatalf("NewSupplier: %v", err)
	}
	if s.Provenance().Hardware {
		t.Errorf("expected software fallback, got hardware=%v provider=%s", s.Provenance().Hardware, s.Provenance().Provider)
	}
	if s.Provenance().FIPSLevel != 0 {
		t.Errorf("FIPSLevel = %d, want 0", s.Provenance().FIPSLevel)
	}
}

func TestNewSupplier_RequiresSoftwareProvider(t *testing.T) {
	utimaco := &fakeProvider{name: "utimaco", hasTRNG: true}
	if _, err := NewSupplier(context.Background(), []Provider{utimaco}, nil); err == nil {
		t.Fatal("expected error when software-csprng candidate is missing")
	}
}

func TestRandomBytes_DemotesOnRuntimeFailure(t *testing.T) {
	utimaco := &fakeProvider{name: "utimaco", hasTRNG: true, readErr: errors.New("device unplugged")}
	soft := &fakeProvider{name: "software-csprng"}

	var warned error
	s, err := NewSupplier(context.Background(), []Provider{utimaco, soft}, func(reason error) { warned = reason })
	if err != nil {
		t.Fatalf("NewSupplier: %v", err)
	}

	bytes, provenance, err := s.RandomBytes(context.Background(), 16)
	if err != nil {
		t.Fatalf("RandomBytes should recover via fallback, got error: %v", err)
	}
	if len(bytes) != 16 {
		t.Errorf("len(bytes) = %d, want 16", len(bytes))
	}
	if provenance.Hardware {
		t.Errorf("expected fallback provenance to report software, got hardware=true")
	}
	if warned == nil {
		t.Errorf("expected onFallback to be invoked with a warning")
	}
}

func TestRandomBytes_SoftwareFailureIsFatal(t *testing.T) {
	soft := &fakeProvider{name: "software-csprng", readErr: errors.New("entropy pool drained")}

	s, err := NewSupplier(context.Background(), []Provider{soft}, nil)
	if err != nil {
		t.Fatalf("NewSupplier: %v", err)
	}
	if _, _, err := s.RandomBytes(context.Background(), 16); err == nil {
		t.Fatal("expected fatal error when the terminal software provider fails")
	}
}

func TestRandomBytes_RejectsOutOfRangeLength(t *testing.T) {
	soft := &fakeProvider{name: "software-csprng"}
	s, err := NewSupplier(context.Background(), []Provider{soft}, nil)
	if err != nil {
		t.Fatalf("NewSupplier: %v", err)
	}
	if _, _, err := s.RandomBytes(context.Background(), 0); err == nil {
		t.Fatal("expected error for n=0")
	}
	if _, _, err := s.RandomBytes(context.Background(), MaxRequestBytes+1); err == nil {
		t.Fatal("expected error for n > MaxRequestBytes")
	}
}

func TestSoftwareCSPRNG_ProducesDistinctBytes(t *testing.T) {
	p := SoftwareCSPRNG{}
	a, err := p.RandomBytes(context.Background(), 32)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	b, err := p.RandomBytes(context.Background(), 32)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	if string(a) == string(b) {
		t.Errorf("two consecutive reads produced identical output")
	}
}

func TestHSMStub_UnpinnedNeverQualifies(t *testing.T) {
	stub := NewHSMStub("utimaco", false, nil)
	ok, hasTRNG, err := stub.Initialize(context.Background())
	if err != nil || ok || hasTRNG {
		t.Errorf("Initialize() = (%v, %v, %v), want (false, false, nil)", ok, hasTRNG, err)
	}
}

func TestHSMStub_PinnedWithFailingResolverStaysSilent(t *testing.T) {
	stub := NewHSMStub("azure-hsm", true, func(ctx context.Context) error {
		return errors.New("unauthorized")
	})
	ok, hasTRNG, err := stub.Initialize(context.Background())
	if err != nil {
		t.Errorf("probe failures must be silent, got error: %v", err)
	}
	if ok || hasTRNG {
		t.Errorf("Initialize() = (%v, %v), want (false, false) when resolver fails", ok, hasTRNG)
	}
}

func TestHSMStub_PinnedWithSucceedingResolverQualifies(t *testing.T) {
	stub := NewHSMStub("azure-hsm", true, func(ctx context.Context) error { return nil })
	ok, hasTRNG, err := stub.Initialize(context.Background())
	if err != nil || !ok || !hasTRNG {
		t.Errorf("Initialize() = (%v, %v, %v), want (true, true, nil)", ok, hasTRNG, err)
	}
	if _, err := stub.RandomBytes(context.Background(), 16); err != nil {
		t.Errorf("RandomBytes after initialize: %v", err)
	}
}

func TestDefaultCandidates_PinsConfiguredProvider(t *testing.T) {
	candidates := DefaultCandidates("softhsm", nil)
	found := false
	for _, c := range candidates {
		stub, ok := c.(*HSMStub)
		if ok && stub.name == "softhsm" {
			found = true
			if !stub.pinned {
				t.Errorf("softhsm should be pinned when configuredName=softhsm")
			}
		}
	}
	if !found {
		t.Fatal("softhsm candidate not present")
	}
}
