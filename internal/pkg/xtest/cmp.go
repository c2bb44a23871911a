// Package xtest carries comparison helpers for tests over vault records.
package xtest

import (
	"encoding/json"

	"github.com/google/go-cmp/cmp"
)

// payloadComparer compares opaque payload bytes by JSON value when both
// sides parse, falling back to byte equality otherwise. Formatting and key
// order do not matter to the stored meaning; tests should not depend on
// them either.
func payloadComparer(x, y []byte) bool {
	if len(x) == 0 && len(y) == 0 {
		return true
	}

	var xVal, yVal any
	if json.Unmarshal(x, &xVal) != nil || json.Unmarshal(y, &yVal) != nil {
		return string(x) == string(y)
	}

	return cmp.Equal(xVal, yVal)
}

// Equal reports record equality with payload bytes compared as JSON values.
func Equal(a, b any, opts ...cmp.Option) bool {
	return cmp.Equal(a, b, append(opts, cmp.Comparer(payloadComparer))...)
}

// Diff renders the difference Equal saw, for assertion messages.
func Diff(a, b any, opts ...cmp.Option) string {
	return cmp.Diff(a, b, append(opts, cmp.Comparer(payloadComparer))...)
}
