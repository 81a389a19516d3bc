package uin

import (
	"context"
	"fmt"
	"strings"

	"github.com/osia-civil/uin-engine/internal/crypto"
	"github.com/osia-civil/uin-engine/internal/entropy"
	internalerrors "github.com/osia-civil/uin-engine/internal/errors"
)

// RandomSource is the subset of entropy.Supplier the generator needs;
// accepting the interface rather than the concrete type keeps this package
// testable without wiring a real provider chain.
type RandomSource interface {
	RandomBytes(ctx context.Context, n int) ([]byte, entropy.Provenance, error)
}

// SecretResolver looks up a sector's HMAC secret, normalized by the caller's
// Secret Store Adapter. Returns internalerrors.SecretMissing when absent.
type SecretResolver func(ctx context.Context, sector string) ([]byte, error)

// Generator materializes UINs across the four generation modes.
type Generator struct {
	random  RandomSource
	secrets SecretResolver
}

// NewGenerator wires the entropy source and, for sector_token mode, the
// sector secret resolver (may be nil if that mode is never used).
func NewGenerator(random RandomSource, secrets SecretResolver) *Generator {
	return &Generator{random: random, secrets: secrets}
}

// Generate dispatches on req.Mode to the matching per-variant implementation.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, entropy.Provenance, error) {
	switch req.Mode {
	case ModeFoundational:
		return g.generateFoundational(ctx, req.Foundational, true)
	case ModeRandom:
		return g.generateFoundational(ctx, req.Foundational, false)
	case ModeStructured:
		return g.generateStructured(ctx, req.Structured)
	case ModeSectorToken:
		return g.generateSectorToken(ctx, req.SectorToken)
	default:
		return Result{}, entropy.Provenance{}, internalerrors.Validation("mode", fmt.Sprintf("unknown mode %q", req.Mode))
	}
}

func (g *Generator) generateFoundational(ctx context.Context, opts *FoundationalOptions, noPII bool) (Result, entropy.Provenance, error) {
	if opts == nil {
		return Result{}, entropy.Provenance{}, internalerrors.Validation("foundational", "options are required")
	}
	if opts.Length <= 0 {
		return Result{}, entropy.Provenance{}, internalerrors.OutOfRange("length", 1, nil)
	}

	alphabet, err := ResolveCharset(opts.Charset, opts.ExcludeAmbiguous)
	if err != nil {
		return Result{}, entropy.Provenance{}, internalerrors.Validation("charset", err.Error())
	}

	base, provenance, err := g.drawAlphabetString(ctx, alphabet, opts.Length)
	if err != nil {
		return Result{}, entropy.Provenance{}, err
	}

	value := base
	checksum := ""
	if opts.Checksum.Enabled {
		result, err := crypto.AppendChecksum(base, opts.Checksum.Algorithm, opts.Checksum.Modulus)
		if err != nil {
			return Result{}, entropy.Provenance{}, internalerrors.Validation("checksum", err.Error())
		}
		value = result.Value
		checksum = result.Checksum
	}

	mode := ModeRandom
	if noPII {
		mode = ModeFoundational
	}

	return Result{
		Value:    value,
		Mode:     mode,
		Checksum: checksum,
		Properties: Properties{
			HighEntropy: true,
			NoPII:       noPII,
		},
	}, provenance, nil
}

// drawAlphabetString draws length indices uniformly from alphabet using
// rejection sampling over entropy bytes, avoiding modulo bias.
func (g *Generator) drawAlphabetString(ctx context.Context, alphabet string, length int) (string, entropy.Provenance, error) {
	base := len(alphabet)
	// Largest multiple of base that fits in a byte; bytes at or above this
	// threshold are rejected and redrawn so every alphabet index has equal
	// probability regardless of 256 % base.
	limit := (256 / base) * base

	out := make([]byte, 0, length)
	var provenance entropy.Provenance
	var havProvenance bool

	for len(out) < length {
		need := length - len(out)
		// Draw extra bytes since rejection discards some; a generous
		// over-draw keeps the expected number of entropy round-trips low.
		batch := need * 2
		if batch < 16 {
			batch = 16
		}
		raw, p, err := g.random.RandomBytes(ctx, batch)
		if err != nil {
			return "", entropy.Provenance{}, err
		}
		if !havProvenance {
			provenance = p
			havProvenance = true
		}
		for _, b := range raw {
			if len(out) == length {
				break
			}
			if int(b) >= limit {
				continue // reject, redraw
			}
			out = append(out, alphabet[int(b)%base])
		}
	}
	return string(out), provenance, nil
}

// generateStructured expands a template over literal and random placeholder
// runs (mode=structured).
func (g *Generator) generateStructured(ctx context.Context, opts *StructuredOptions) (Result, entropy.Provenance, error) {
	if opts == nil || opts.Template == "" {
		return Result{}, entropy.Provenance{}, internalerrors.Validation("template", "template must not be empty")
	}

	runs := splitPlaceholderRuns(opts.Template)
	var b strings.Builder
	var provenance entropy.Provenance
	var haveProvenance bool

	for _, run := range runs {
		if !isPlaceholderRune(run.char) {
			b.WriteString(strings.Repeat(string(run.char), run.length))
			continue
		}

		key := string(run.char)
		if literal, ok := opts.Literals[key]; ok {
			if len(literal) != run.length {
				return Result{}, entropy.Provenance{}, internalerrors.Validation(key,
					fmt.Sprintf("literal length %d does not match template run length %d", len(literal), run.length))
			}
			b.WriteString(literal)
			continue
		}

		segment, ok := opts.Segments[key]
		if !ok {
			return Result{}, entropy.Provenance{}, internalerrors.Validation(key,
				"placeholder has neither a literal value nor a random segment configuration")
		}
		if segment.Length != run.length {
			return Result{}, entropy.Provenance{}, internalerrors.Validation(key,
				fmt.Sprintf("segment length %d does not match template run length %d", segment.Length, run.length))
		}

		alphabet, err := ResolveCharset(segment.Charset, false)
		if err != nil {
			return Result{}, entropy.Provenance{}, internalerrors.Validation(key, err.Error())
		}
		value, p, err := g.drawAlphabetString(ctx, alphabet, segment.Length)
		if err != nil {
			return Result{}, entropy.Provenance{}, err
		}
		if !haveProvenance {
			provenance = p
			haveProvenance = true
		}
		b.WriteString(value)
	}

	return Result{Value: b.String(), Mode: ModeStructured}, provenance, nil
}

type placeholderRun struct {
	char   rune
	length int
}

// splitPlaceholderRuns groups the template into maximal runs of one
// repeated rune, so "RR-YYYY-FFF-NNNNN" yields runs for R(2), -(1), Y(4),
// -(1), F(3), -(1), N(5).
func splitPlaceholderRuns(template string) []placeholderRun {
	runes := []rune(template)
	var runs []placeholderRun
	for i := 0; i < len(runes); {
		j := i + 1
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		runs = append(runs, placeholderRun{char: runes[i], length: j - i})
		i = j
	}
	return runs
}

// isPlaceholderRune reports whether r should be treated as a template
// placeholder rather than literal punctuation (dashes, dots, etc. copy through).
func isPlaceholderRune(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func (g *Generator) generateSectorToken(ctx context.Context, opts *SectorTokenOptions) (Result, entropy.Provenance, error) {
	if opts == nil || opts.FoundationalUIN == "" {
		return Result{}, entropy.Provenance{}, internalerrors.Validation("foundational_uin", "sector_token mode requires a foundational UIN")
	}
	if opts.Sector == "" {
		return Result{}, entropy.Provenance{}, internalerrors.Validation("sector", "sector is required")
	}
	if opts.TokenLength <= 0 {
		return Result{}, entropy.Provenance{}, internalerrors.OutOfRange("token_length", 1, nil)
	}
	if g.secrets == nil {
		return Result{}, entropy.Provenance{}, internalerrors.Configuration("uin: no sector secret resolver configured", nil)
	}

	algorithm := opts.Algorithm
	if algorithm == "" {
		algorithm = crypto.HMACSHA256
	}
	version := opts.Version
	if version == 0 {
		version = 1
	}

	salt := opts.Salt
	if opts.Deterministic {
		salt = crypto.DeterministicSalt(opts.FoundationalUIN, opts.Sector, 16)
	}

	secret, err := g.secrets(ctx, opts.Sector)
	if err != nil {
		return Result{}, entropy.Provenance{}, err
	}

	input := crypto.SectorDerivationInput(version, opts.FoundationalUIN, opts.Sector, salt)
	alphabet, err := ResolveCharset(CharsetSafe, false)
	if err != nil {
		return Result{}, entropy.Provenance{}, err
	}
	token, err := crypto.DeriveSectorToken(secret, input, algorithm, alphabet, opts.TokenLength)
	if err != nil {
		return Result{}, entropy.Provenance{}, internalerrors.Validation("sector_token", err.Error())
	}

	return Result{Value: token, Mode: ModeSectorToken}, entropy.Provenance{}, nil
}
