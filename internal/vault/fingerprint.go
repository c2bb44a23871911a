package vault

import "github.com/cespare/xxhash/v2"

// Fingerprint digests a payload for change detection. Put compares
// fingerprints, not payload bytes, to decide whether an append is a
// no-op, so the digest must be stable across processes.
func Fingerprint(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}
