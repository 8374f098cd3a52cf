// Package export emits analytics output as JSONL record envelopes and
// ships them to file or S3 destinations.
//
// Output is structured as typed record envelopes containing aggregation
// results, period reports, errors, and run summaries. Each line is a
// self-contained JSON object that can be parsed independently, which
// keeps exports streamable into downstream dashboards.
package export

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: slurmsight.<type>.v<version>
const (
	// TypeResult identifies aggregation result records.
	TypeResult = "slurmsight.result.v1"

	// TypeReport identifies period report records.
	TypeReport = "slurmsight.report.v1"

	// TypeError identifies error records.
	TypeError = "slurmsight.error.v1"

	// TypeSummary identifies final export run summary records.
	TypeSummary = "slurmsight.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "slurmsight.result.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for this export run.
	RunID string `json:"run_id"`

	// Hostname identifies the cluster the payload belongs to.
	Hostname string `json:"hostname,omitempty"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the entire export,
// allowing partial results when some clusters or periods fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Period is the report period related to this error, if applicable.
	Period string `json:"period,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeIncompletePeriod indicates the period has not fully elapsed.
	ErrCodeIncompletePeriod = "INCOMPLETE_PERIOD"

	// ErrCodeFetch indicates the job store read failed.
	ErrCodeFetch = "FETCH_FAILED"

	// ErrCodeStore indicates the destination write failed.
	ErrCodeStore = "STORE_FAILED"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// SummaryRecord is the data payload for final export summaries.
type SummaryRecord struct {
	// Reports is the number of period reports produced.
	Reports int64 `json:"reports"`

	// Errors is the count of errors encountered.
	Errors int64 `json:"errors"`

	// Duration is the total export duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// Hostnames lists the clusters that were exported.
	Hostnames []string `json:"hostnames,omitempty"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "export: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
