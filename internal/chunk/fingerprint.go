package chunk

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/xxh3"
)

// Fingerprint computes a stable hash over normalized unit source text.
// Normalization drops blank lines and per-line trailing whitespace so that
// identical code under different formatting-neutral edits (and identical
// copies in other files) collapses to one fingerprint.
func Fingerprint(source string) string {
	var b strings.Builder
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimRight(line, " \t\r")
		if trimmed == "" {
			continue
		}
		b.WriteString(trimmed)
		b.WriteByte('\n')
	}
	sum := xxh3.Hash128([]byte(b.String())).Bytes()
	return hex.EncodeToString(sum[:])
}
