package crypto

import (
	"encoding/hex"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // deprecated hash required by the hash_rmd160 field definition
	"golang.org/x/crypto/sha3"
)

// IntegrityHash computes hash_rmd160 = RIPEMD160(SHA3_256(uin || salt)),
// returned as a 40-character lowercase hex string. salt is empty unless
// the deployment opts into a non-default salt configuration.
func IntegrityHash(uin string, salt []byte) string {
	sum := sha3.Sum256(append([]byte(uin), salt...))

	h := ripemd160.New()
	_, _ = h.Write(sum[:])
	digest := h.Sum(nil)

	return hex.EncodeToString(digest)
}
