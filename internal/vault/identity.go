package vault

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// HashKey is the derived identity of a hub or link: a SHA-256 digest over
// the record's addressing fields. Keys are deterministic, so any two nodes
// resolve the same business identity to the same key without coordination.
type HashKey [32]byte

// Domain separation prefixes. Each record family hashes under its own
// prefix so a tenant key can never collide with an entity or link key
// built from the same bytes.
const (
	tenantKeyPrefix = "tv1:tenant"
	entityKeyPrefix = "tv1:entity"
	linkKeyPrefix   = "tv1:link"
)

// keySeparator joins hash input segments. Using a control byte keeps
// ("ab","c") and ("a","bc") from deriving the same key.
const keySeparator = 0x1f

func deriveKey(prefix string, segments ...[]byte) HashKey {
	h := sha256.New()
	h.Write([]byte(prefix))

	for _, segment := range segments {
		h.Write([]byte{keySeparator})
		h.Write(segment)
	}

	var key HashKey

	h.Sum(key[:0])

	return key
}

// ResolveTenant derives the hub key for a tenant slug.
func ResolveTenant(slug string) HashKey {
	return deriveKey(tenantKeyPrefix, []byte(slug))
}

// Resolve derives the hub key for a business entity inside a tenant.
// The same (tenant, kind, businessKey) triple always yields the same key.
func Resolve(tenant HashKey, kind string, businessKey string) HashKey {
	return deriveKey(entityKeyPrefix, tenant[:], []byte(kind), []byte(businessKey))
}

// ResolveLink derives the key of a link between hubs. Endpoint order does
// not matter: endpoints are sorted before hashing, so a link is one
// relationship regardless of which side names it.
func ResolveLink(tenant HashKey, kind string, endpoints ...HashKey) HashKey {
	sorted := slices.Clone(endpoints)
	slices.SortFunc(sorted, func(a, b HashKey) int {
		return bytes.Compare(a[:], b[:])
	})

	segments := make([][]byte, 0, len(sorted)+2)
	segments = append(segments, tenant[:], []byte(kind))

	for i := range sorted {
		segments = append(segments, sorted[i][:])
	}

	return deriveKey(linkKeyPrefix, segments...)
}

// TokenDigest returns the hex SHA-256 digest of an opaque session token.
// Only digests are stored; the token itself never touches the store.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))

	return hex.EncodeToString(sum[:])
}

// ParseHashKey parses the hex transport form of a key.
func ParseHashKey(s string) (HashKey, error) {
	var key HashKey

	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("%w: malformed hash key %q", ErrValidation, s)
	}

	if len(raw) != len(key) {
		return key, fmt.Errorf("%w: hash key must be %d hex bytes, got %d", ErrValidation, len(key), len(raw))
	}

	copy(key[:], raw)

	return key, nil
}

// String returns the hex transport form.
func (k HashKey) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether the key is the all-zero value, which no
// derivation produces.
func (k HashKey) IsZero() bool {
	return k == HashKey{}
}

// MarshalText implements encoding.TextMarshaler so keys render as hex
// strings in JSON and URL parameters.
func (k HashKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *HashKey) UnmarshalText(b []byte) error {
	parsed, err := ParseHashKey(string(b))
	if err != nil {
		return err
	}

	*k = parsed

	return nil
}
