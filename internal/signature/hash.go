// Package signature supports spec §4.3.7's signature-completeness
// check: if any .asc file is staged, every non-.asc artifact must have
// one. Adapted from the teacher's internal/signature/hash.go streaming
// hash helper and internal/signature/pgp.go's PGP inspection, trimmed
// down: the deploy pipeline never verifies a signature
// cryptographically, only that sidecars are complete and structurally
// plausible (see pgp.go).
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Digest computes a SHA-256 digest of r, used for diagnostics (audit
// log entries) rather than any spec-mandated artifact checksum (those
// are md5/sha1, computed by internal/fileutil per the algorithms spec
// §4.1 names).
func Digest(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("compute digest: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
