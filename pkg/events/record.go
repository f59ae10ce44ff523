// Package events owns the centralized event store for the bridge. Every
// pooled connection's read loop feeds unsolicited protocol events into one
// Aggregator; queries see the same merged view no matter which connection
// happens to be idle or busy at query time.
package events

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Severity orders event levels for minimum-level filtering.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// ParseSeverity maps protocol level strings to a Severity. Unknown strings
// map to SeverityInfo.
func ParseSeverity(s string) Severity {
	switch s {
	case "debug", "verbose":
		return SeverityDebug
	case "warning", "warn":
		return SeverityWarn
	case "error", "assert":
		return SeverityError
	default:
		return SeverityInfo
	}
}

// Record is one unsolicited protocol event, immutable once stored. SourceConn
// identifies which pooled connection observed the event; it exists for
// diagnostics only and is never used for addressing or partitioning.
type Record struct {
	ID         string          `json:"id"`
	Domain     string          `json:"domain"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params,omitempty"`
	Level      Severity        `json:"level"`
	ReceivedAt time.Time       `json:"received_at"`
	SourceConn string          `json:"source_conn,omitempty"`
}

// newRecordID returns a lexically time-sortable record id.
func newRecordID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// severityOf extracts a severity from well-known event payloads (log entries
// and console calls carry a level field); everything else is info.
func severityOf(method string, params json.RawMessage) Severity {
	switch method {
	case "Log.entryAdded":
		var p struct {
			Entry struct {
				Level string `json:"level"`
			} `json:"entry"`
		}
		if err := json.Unmarshal(params, &p); err == nil {
			return ParseSeverity(p.Entry.Level)
		}
	case "Runtime.consoleAPICalled":
		var p struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(params, &p); err == nil {
			return ParseSeverity(p.Type)
		}
	case "Runtime.exceptionThrown":
		return SeverityError
	}
	return SeverityInfo
}
