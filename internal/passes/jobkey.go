package passes

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainJob prefixes job identities. The version suffix leaves room for a
// different derivation later without colliding with persisted keys.
const DomainJob = "texstack/job/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + part0 + 0x00 + part1 ...)
// The null separators keep ("ab", "c") and ("a", "bc") distinct.
func hashWithDomain(domain string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write([]byte{0x00})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// JobKey derives the stable identity under which a job's pass state is
// persisted, typically from the absolute config path and the job name.
// The same parts always yield the same key.
func JobKey(parts ...string) string {
	return hashWithDomain(DomainJob, parts...)
}
