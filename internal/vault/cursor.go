package vault

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// historyCursor marks a resumption point in a version log. The cursor
// carries the effective-from instant of the last version already served;
// the next page starts strictly after it. Because effective-from values
// are strictly increasing within a log, a cursor stays valid even when
// new versions are appended between pages.
type historyCursor struct {
	After int64 `msgpack:"a"`
}

// EncodeHistoryCursor builds the opaque cursor for a page ending at the
// given effective-from instant.
func EncodeHistoryCursor(after time.Time) string {
	var sb strings.Builder

	enc := base64.NewEncoder(base64.RawStdEncoding, &sb)
	_ = msgpack.NewEncoder(enc).Encode(historyCursor{After: after.UnixNano()})
	_ = enc.Close()

	return sb.String()
}

// DecodeHistoryCursor parses an opaque cursor back into the instant the
// next page must start after. Garbage cursors fail validation rather
// than silently restarting the log.
func DecodeHistoryCursor(s string) (time.Time, error) {
	var c historyCursor

	err := msgpack.NewDecoder(
		base64.NewDecoder(
			base64.RawStdEncoding,
			strings.NewReader(s),
		),
	).Decode(&c)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed history cursor", ErrValidation)
	}

	return time.Unix(0, c.After).UTC(), nil
}
