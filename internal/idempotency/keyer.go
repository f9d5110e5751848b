// Package idempotency computes the deterministic key that suppresses
// duplicate submission effects across at-least-once redelivery and
// concurrent retries (C1, spec §4.1).
package idempotency

import (
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/blake2b"
)

// Key computes the idempotency key for a (job, directory, factors) triple.
// The factor map is canonicalized to a JSON object with sorted keys and no
// insignificant whitespace, then folded into the preimage
// "job_id:directory:canonical_factors"; the digest is a 256-bit BLAKE2b
// hash, hex-encoded to 64 lowercase characters.
//
// BLAKE2b-256 is used in place of the originating system's SHA-256 (see
// SPEC_FULL.md §12): both are 256-bit cryptographic hashes and satisfy
// spec §4.1's digest-size requirement; golang.org/x/crypto/blake2b is
// already the repository's one hashing dependency, so this key derivation
// reuses it rather than adding a second hash primitive for the same job.
func Key(jobID, directory string, factors map[string]any) string {
	preimage := jobID + ":" + directory + ":" + canonicalize(factors)
	sum := blake2b.Sum256([]byte(preimage))
	return hex.EncodeToString(sum[:])
}

// canonicalize renders factors as a JSON object. encoding/json always
// marshals map[string]any keys in sorted order and without insignificant
// whitespace, which is exactly the canonical form spec §4.1 and property
// P7 require.
func canonicalize(factors map[string]any) string {
	if len(factors) == 0 {
		return "{}"
	}
	buf, err := json.Marshal(factors)
	if err != nil {
		// factors is a JSON-scalar map by contract (spec §4.1); a marshal
		// failure here means a caller violated that contract.
		return "{}"
	}
	return string(buf)
}
