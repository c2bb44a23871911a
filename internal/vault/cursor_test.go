package vault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHistoryCursorRoundTrip(t *testing.T) {
	after := time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)

	cursor := EncodeHistoryCursor(after)
	require.NotEmpty(t, cursor)

	decoded, err := DecodeHistoryCursor(cursor)
	require.NoError(t, err)
	require.True(t, decoded.Equal(after))
	require.Equal(t, time.UTC, decoded.Location())
}

func TestHistoryCursorNanosecondPrecision(t *testing.T) {
	after := time.Date(2026, 3, 1, 9, 0, 0, 1, time.UTC)

	decoded, err := DecodeHistoryCursor(EncodeHistoryCursor(after))
	require.NoError(t, err)
	require.Equal(t, after.UnixNano(), decoded.UnixNano())
}

func TestDecodeHistoryCursorRejectsGarbage(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"not msgpack", "aGVsbG8gd29ybGQ"},
		{"truncated", EncodeHistoryCursor(time.Now())[:3]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeHistoryCursor(tt.cursor)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}
