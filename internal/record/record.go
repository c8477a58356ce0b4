package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Known record kinds in session JSONL files. The set is open: unknown kinds
// pass through untouched.
const (
	KindUser      = "user"
	KindAssistant = "assistant"
	KindSystem    = "system"
	KindSummary   = "summary"
)

// Record is the parsed form of one session log line. The payload is kept
// raw; callers that need message content decode it themselves.
type Record struct {
	// LineNumber is 1-based and matches the line's position in the file.
	LineNumber int64 `json:"line_number"`

	// ID is the record's stable identifier (the uuid field when present,
	// otherwise synthesized from the line number).
	ID string `json:"id"`

	// Kind discriminates record types: user, assistant, system, summary, ...
	Kind string `json:"kind"`

	Timestamp time.Time `json:"timestamp,omitzero"`

	// Payload is the full original line.
	Payload json.RawMessage `json:"payload"`
}

// envelope covers the fields every session JSONL line may carry.
type envelope struct {
	Type      string    `json:"type"`
	UUID      string    `json:"uuid"`
	Timestamp time.Time `json:"timestamp"`
}

// ParseLine decodes one log line into a Record. The line number is assigned
// by the caller (it is positional, not part of the payload).
func ParseLine(lineNumber int64, raw []byte) (Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Record{}, fmt.Errorf("line %d: empty", lineNumber)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Record{}, fmt.Errorf("line %d: %w", lineNumber, err)
	}

	id := env.UUID
	if id == "" {
		id = fmt.Sprintf("line-%d", lineNumber)
	}

	return Record{
		LineNumber: lineNumber,
		ID:         id,
		Kind:       env.Type,
		Timestamp:  env.Timestamp,
		Payload:    json.RawMessage(append([]byte(nil), trimmed...)),
	}, nil
}
