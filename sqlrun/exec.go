package sqlrun

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"
)

// DefaultMaxRows bounds the result set to protect memory when the caller
// does not configure a cap.
const DefaultMaxRows = 1000

// Executor runs validated read-only statements against one database.
type Executor struct {
	// DB is the configured data source.
	DB *sql.DB
	// MaxRows caps the number of rows read from a result set.
	// Zero means DefaultMaxRows.
	MaxRows int
	// Timeout bounds a single execution. Zero means no per-call timeout
	// beyond the caller's context.
	Timeout time.Duration
}

// Execute validates and runs a single SQL statement, returning the
// canonical result envelope. Rejected statements never touch the
// database. Execute never returns an error: every failure is reported
// through the envelope so callers always have a presentable outcome.
func (e *Executor) Execute(ctx context.Context, sqlText string) *Envelope {
	if err := Validate(sqlText); err != nil {
		return Failure(KindValidation, err.Error())
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	rows, err := e.DB.QueryContext(ctx, sqlText)
	if err != nil {
		return Failure(classify(err), err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Failure(KindExecution, err.Error())
	}

	maxRows := e.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	data := []map[string]any{}
	values := make([]any, len(columns))
	scanners := make([]any, len(columns))
	for i := range values {
		scanners[i] = &values[i]
	}

	for len(data) < maxRows && rows.Next() {
		if err := rows.Scan(scanners...); err != nil {
			return Failure(KindExecution, err.Error())
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = normalizeValue(values[i])
		}
		data = append(data, record)
	}
	if err := rows.Err(); err != nil {
		return Failure(classify(err), err.Error())
	}

	return Successful(data, columns)
}

// normalizeValue converts driver-specific scan results into plain values
// that serialize cleanly to JSON.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return v
	}
}

// classify maps an execution error onto one of the envelope's error
// kinds. Connection failures, timeouts and syntax errors must stay
// distinguishable even though the envelope's error field is one string.
func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return KindConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "syntax"):
		return KindSyntax
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"):
		return KindConnection
	default:
		return KindExecution
	}
}
