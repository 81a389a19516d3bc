package uin

import (
	"github.com/osia-civil/uin-engine/internal/crypto"
)

// Mode is the tagged-variant discriminator for generation requests: a
// tagged variant keyed on mode, with per-variant validation, in place of
// runtime option sniffing.
type Mode string

const (
	ModeFoundational Mode = "foundational"
	ModeRandom       Mode = "random"
	ModeStructured   Mode = "structured"
	ModeSectorToken  Mode = "sector_token"
)

// ChecksumConfig controls whether and how a checksum is appended.
type ChecksumConfig struct {
	Enabled   bool
	Algorithm crypto.ChecksumAlgorithm
	Modulus   int // only meaningful for ChecksumModN
}

// FoundationalOptions configures mode=foundational and mode=random alike;
// random uses looser defaults upstream but shares this shape.
type FoundationalOptions struct {
	Length           int
	Charset          string
	ExcludeAmbiguous bool
	Checksum         ChecksumConfig
}

// SegmentSpec configures one random placeholder run inside a structured template.
type SegmentSpec struct {
	Length  int
	Charset string
}

// StructuredOptions configures mode=structured.
type StructuredOptions struct {
	Template string
	Literals map[string]string
	Segments map[string]SegmentSpec
}

// SectorTokenOptions configures mode=sector_token.
type SectorTokenOptions struct {
	FoundationalUIN string
	Sector          string
	TokenLength     int
	Salt            []byte
	Version         int
	Algorithm       crypto.HMACAlgorithm
	// Deterministic selects the weaker, reproducible salt derivation
	// instead of requiring the caller to supply Salt.
	Deterministic bool
}

// Request is the tagged union of per-mode options; exactly the field
// matching Mode should be populated.
type Request struct {
	Mode        Mode
	Foundational *FoundationalOptions
	Structured   *StructuredOptions
	SectorToken  *SectorTokenOptions
}

// Properties flags a generated UIN's declared characteristics: foundational
// sets high_entropy=true, no_pii=true; random makes no such promise.
type Properties struct {
	HighEntropy bool
	NoPII       bool
}

// Result is the materialized UIN plus its derived fields.
type Result struct {
	Value      string
	Mode       Mode
	Checksum   string
	Properties Properties
}
