package record

import (
	"bytes"
	"time"
)

// metaScanLimit bounds how much of a line ScanMeta inspects. Session records
// put type/uuid/timestamp near the front; tool outputs can be megabytes.
const metaScanLimit = 512

var (
	typeMarker = []byte(`"type":"`)
	tsMarker   = []byte(`"timestamp":"`)
)

// ScanMeta extracts the record kind and timestamp from a bounded prefix of a
// raw line without a full JSON decode. Best effort: a line that does not
// carry the fields (or is not JSON at all) yields zero values, never an
// error.
func ScanMeta(raw []byte) (kind string, ts time.Time) {
	prefix := raw
	if len(prefix) > metaScanLimit {
		prefix = prefix[:metaScanLimit]
	}

	kind = scanStringField(prefix, typeMarker)

	if v := scanStringField(prefix, tsMarker); v != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
			ts = parsed
		}
	}
	return kind, ts
}

// scanStringField finds `marker` and returns the bytes up to the closing
// quote. Values containing escaped quotes are skipped (not worth handling
// for type/timestamp fields).
func scanStringField(prefix, marker []byte) string {
	i := bytes.Index(prefix, marker)
	if i < 0 {
		return ""
	}
	rest := prefix[i+len(marker):]
	j := bytes.IndexByte(rest, '"')
	if j < 0 {
		return ""
	}
	val := rest[:j]
	if bytes.IndexByte(val, '\\') >= 0 {
		return ""
	}
	return string(val)
}
