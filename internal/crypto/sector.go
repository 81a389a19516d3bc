package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"hash"
	"strings"
)

// HMACAlgorithm names a hash function usable for sector token derivation.
type HMACAlgorithm string

const (
	HMACSHA256 HMACAlgorithm = "sha256"
	HMACSHA512 HMACAlgorithm = "sha512"
)

func newHash(algorithm HMACAlgorithm) (func() hash.Hash, error) {
	switch algorithm {
	case "", HMACSHA256:
		return sha256.New, nil
	case HMACSHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("crypto: unsupported hmac algorithm %q", algorithm)
	}
}

// SectorDerivationInput builds the derivation input string:
// "v" || version || "|" || foundational_uin || "|" || lower(trim(sector)) || "|" || salt.
func SectorDerivationInput(version int, foundationalUin, sector string, salt []byte) string {
	normalized := strings.ToLower(strings.TrimSpace(sector))
	return fmt.Sprintf("v%d|%s|%s|%s", version, foundationalUin, normalized, string(salt))
}

// DeriveSectorToken runs the HMAC derivation and encodes the result onto
// charset, extending the byte pool with successive SHA-256 re-hashes when
// the requested length exceeds what the first HMAC output can encode.
func DeriveSectorToken(secret []byte, input string, algorithm HMACAlgorithm, charset string, length int) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("crypto: sector secret must not be empty")
	}
	if length <= 0 {
		return "", fmt.Errorf("crypto: token length must be positive")
	}
	if len(charset) == 0 {
		return "", fmt.Errorf("crypto: charset must not be empty")
	}

	hashFn, err := newHash(algorithm)
	if err != nil {
		return "", err
	}

	mac := hmac.New(hashFn, secret)
	_, _ = mac.Write([]byte(input))
	derived := mac.Sum(nil)

	pool := make([]byte, 0, length)
	seed := derived
	for len(pool) < length {
		pool = append(pool, seed...)
		next := sha256.Sum256(seed)
		seed = next[:]
	}

	out := make([]byte, length)
	base := len(charset)
	for i := 0; i < length; i++ {
		out[i] = charset[int(pool[i])%base]
	}
	return string(out), nil
}

// VerifySectorToken recomputes the derivation with the supplied metadata and
// compares it to candidate using a timing-safe, length-checked comparison.
// Any internal failure (bad metadata, missing secret) surfaces as false —
// verification never leaks structured errors to callers.
func VerifySectorToken(secret []byte, input string, algorithm HMACAlgorithm, charset string, candidate string) bool {
	recomputed, err := DeriveSectorToken(secret, input, algorithm, charset, len(candidate))
	if err != nil {
		return false
	}
	return ConstantTimeEqual(recomputed, candidate)
}

// DeterministicSalt derives the weaker, reproducible salt variant:
// SHA-256(uin || ":" || sector), truncated to saltLength bytes.
func DeterministicSalt(uin, sector string, saltLength int) []byte {
	sum := sha256.Sum256([]byte(uin + ":" + sector))
	if saltLength <= 0 || saltLength > len(sum) {
		saltLength = len(sum)
	}
	out := make([]byte, saltLength)
	copy(out, sum[:saltLength])
	return out
}

// ConstantTimeEqual reports whether a and b are equal without leaking timing
// information proportional to where they first differ. Differing lengths are
// rejected immediately -- by construction that cannot depend on buffer content.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
