package sqlrun

import "encoding/json"

// Error kind prefixes used in Envelope.Error. The envelope's error field
// stays a single string for wire compatibility; the prefix makes the
// failure kind machine-distinguishable.
const (
	KindValidation = "validation"
	KindConnection = "connection"
	KindTimeout    = "timeout"
	KindSyntax     = "syntax"
	KindExecution  = "execution"
)

// Envelope is the canonical shape for query execution outcomes. Its JSON
// encoding is a wire contract and must not change:
//
//	{"success": bool, "data": [...], "columns": [...], "row_count": int, "error": string|null}
type Envelope struct {
	Success  bool             `json:"success"`
	Data     []map[string]any `json:"data"`
	Columns  []string         `json:"columns"`
	RowCount int              `json:"row_count"`
	Error    *string          `json:"error"`
}

// Successful builds a success envelope. data and columns may be empty but
// are never null in the JSON encoding.
func Successful(data []map[string]any, columns []string) *Envelope {
	if data == nil {
		data = []map[string]any{}
	}
	if columns == nil {
		columns = []string{}
	}
	return &Envelope{
		Success:  true,
		Data:     data,
		Columns:  columns,
		RowCount: len(data),
	}
}

// Failure builds a failure envelope with a kind-prefixed error message.
// A failure always carries a non-empty error and empty data/columns.
func Failure(kind, message string) *Envelope {
	msg := kind + ": " + message
	return &Envelope{
		Success:  false,
		Data:     []map[string]any{},
		Columns:  []string{},
		RowCount: 0,
		Error:    &msg,
	}
}

// ErrorString returns the envelope's error message, or "" on success.
func (e *Envelope) ErrorString() string {
	if e.Error == nil {
		return ""
	}
	return *e.Error
}

// ErrorKind returns the kind prefix of the envelope's error, or "".
func (e *Envelope) ErrorKind() string {
	msg := e.ErrorString()
	for i := 0; i < len(msg); i++ {
		if msg[i] == ':' {
			return msg[:i]
		}
	}
	return ""
}

// DecodeEnvelope parses a JSON-encoded envelope.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
