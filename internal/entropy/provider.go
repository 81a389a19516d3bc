// Package entropy implements the prioritized hardware-TRNG-with-software-
// fallback entropy subsystem.
package entropy

import (
	"context"
	"fmt"
	"sync"
	"time"

	internalerrors "github.com/osia-civil/uin-engine/internal/errors"
)

// MaxRequestBytes bounds a single RandomBytes call.
const MaxRequestBytes = 4096

// Provenance records where a batch of randomness came from.
type Provenance struct {
	Source     string `json:"source"`
	Hardware   bool   `json:"hardware"`
	FIPSLevel  int    `json:"fips_level"`
	Provider   string `json:"provider"`
}

// Provider is the capability set an entropy backend exposes: initialize,
// randomBytes, status, close.
type Provider interface {
	// Name is the short identifier used in configuration and provenance.
	Name() string
	// Initialize probes whether the backend is reachable and reports
	// whether it exposes a true hardware RNG. A probe failure is silent
	// -- it returns ok=false, not an error, unless the probe itself
	// cannot complete (e.g. misconfiguration).
	Initialize(ctx context.Context) (ok bool, hasTRNG bool, err error)
	// RandomBytes returns exactly n uniformly random bytes.
	RandomBytes(ctx context.Context, n int) ([]byte, error)
	// Status reports whether the provider is currently usable.
	Status(ctx context.Context) error
	// Close releases any held resources (HSM sessions, network handles).
	Close() error
}

// defaultPriority is the built-in provider priority list, highest first.
var defaultPriority = []string{
	"utimaco", "thales", "safenet", "ncipher",
	"aws-cloudhsm", "azure-hsm", "yubihsm", "softhsm",
	"software-csprng",
}

// Supplier manages the prioritized provider list and the per-call fallback
// to software-csprng. It is created once and is safe for concurrent use.
type Supplier struct {
	mu        sync.Mutex // guards selected/provenance/fallback; provider calls run outside it
	selected  Provider
	fallback  Provider
	provenance Provenance
	onFallback func(reason error)
}

// NewSupplier probes candidates in priority order and selects the first one
// that initializes successfully and reports a true hardware RNG. If none
// qualify, the terminal software-csprng provider is selected.
func NewSupplier(ctx context.Context, candidates []Provider, onFallback func(reason error)) (*Supplier, error) {
	byName := make(map[string]Provider, len(candidates))
	for _, c := range candidates {
		byName[c.Name()] = c
	}

	fallback, ok := byName["software-csprng"]
	if !ok {
		return nil, internalerrors.Configuration("entropy: software-csprng provider is required", nil)
	}

	s := &Supplier{fallback: fallback, onFallback: onFallback}

	for _, name := range defaultPriority {
		candidate, ok := byName[name]
		if !ok {
			continue
		}
		ready, hasTRNG, err := candidate.Initialize(ctx)
		if err != nil || !ready || !hasTRNG {
			// Probe failures are silent per candidate; try the next one.
			continue
		}
		s.selected = candidate
		s.provenance = Provenance{
			Source:    candidate.Name(),
			Hardware:  true,
			FIPSLevel: fipsLevelFor(candidate.Name()),
			Provider:  candidate.Name(),
		}
		return s, nil
	}

	if _, _, err := fallback.Initialize(ctx); err != nil {
		return nil, internalerrors.Configuration("entropy: software-csprng failed to initialize", err)
	}
	s.selected = fallback
	s.provenance = Provenance{Source: "Software CSPRNG", Hardware: false, FIPSLevel: 0, Provider: "software-csprng"}
	return s, nil
}

// RandomBytes produces n random bytes and the provenance describing their
// source. On a selected hardware provider failure it demotes, one-shot, to
// software-csprng for this single call and invokes onFallback as a warning;
// it never aborts generation solely because hardware entropy failed. A
// software-provider failure is fatal (EntropyFailure).
func (s *Supplier) RandomBytes(ctx context.Context, n int) ([]byte, Provenance, error) {
	if n <= 0 || n > MaxRequestBytes {
		return nil, Provenance{}, internalerrors.OutOfRange("n", 1, MaxRequestBytes)
	}

	s.mu.Lock()
	selected := s.selected
	provenance := s.provenance
	fallback := s.fallback
	s.mu.Unlock()

	if selected != fallback {
		bytes, err := selected.RandomBytes(ctx, n)
		if err == nil {
			return bytes, provenance, nil
		}
		if s.onFallback != nil {
			s.onFallback(fmt.Errorf("entropy: %s failed, falling back to software-csprng: %w", selected.Name(), err))
		}
	}

	bytes, err := fallback.RandomBytes(ctx, n)
	if err != nil {
		return nil, Provenance{}, internalerrors.EntropyFailure(err)
	}
	return bytes, Provenance{Source: "Software CSPRNG", Hardware: false, FIPSLevel: 0, Provider: "software-csprng"}, nil
}

// Provenance returns the provenance recorded for the currently selected provider.
func (s *Supplier) Provenance() Provenance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provenance
}

// Close releases every candidate's resources.
func (s *Supplier) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	if s.selected != nil {
		if err := s.selected.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.fallback != nil && s.fallback != s.selected {
		if err := s.fallback.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func fipsLevelFor(provider string) int {
	switch provider {
	case "utimaco", "thales", "ncipher":
		return 3
	case "safenet", "aws-cloudhsm", "azure-hsm", "yubihsm":
		return 2
	default:
		return 0
	}
}

// probeTimeout is the documented default bound for a single
// Initialize/RandomBytes call. NewSupplier and RandomBytes do not apply it;
// they use the caller's context as given.
const probeTimeout = 2 * time.Second
