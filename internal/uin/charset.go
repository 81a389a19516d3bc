// Package uin implements UIN materialization: four generation modes, with
// optional checksum append through internal/crypto.
package uin

import (
	"fmt"
	"strings"
)

const (
	CharsetNumeric      = "numeric"
	CharsetAlphanumeric = "alphanumeric"
	CharsetHex          = "hex"
	CharsetSafe         = "safe"
)

const ambiguousChars = "0OI1l"

var symbolicAlphabets = map[string]string{
	CharsetNumeric:      "0123456789",
	CharsetAlphanumeric: "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
	CharsetHex:          "0123456789ABCDEF",
	CharsetSafe:         "23456789ABCDEFGHJKLMNPQRSTUVWXYZ",
}

// ResolveCharset expands a symbolic charset name into its literal alphabet,
// passes an explicit alphabet through unchanged, and optionally strips the
// ambiguous characters {0,O,I,1,l} from the result.
func ResolveCharset(spec string, excludeAmbiguous bool) (string, error) {
	if spec == "" {
		return "", fmt.Errorf("uin: charset must not be empty")
	}

	alphabet, ok := symbolicAlphabets[spec]
	if !ok {
		alphabet = spec // explicit literal alphabet
	}

	if excludeAmbiguous {
		var b strings.Builder
		for _, r := range alphabet {
			if strings.ContainsRune(ambiguousChars, r) {
				continue
			}
			b.WriteRune(r)
		}
		alphabet = b.String()
	}

	if alphabet == "" {
		return "", fmt.Errorf("uin: charset resolved to an empty alphabet")
	}
	// Deduplicate while preserving order, in case an explicit alphabet repeats.
	seen := make(map[rune]struct{}, len(alphabet))
	var b strings.Builder
	for _, r := range alphabet {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		b.WriteRune(r)
	}
	return b.String(), nil
}
