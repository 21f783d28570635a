package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

// Parser turns one trimmed access-log line into a record
type Parser interface {
	// Parse returns a record, or an error describing why the line was rejected.
	// Use Category to map the error onto a malformed-entry category.
	Parse(line string) (*types.LogRecord, error)

	// Name returns the parser name
	Name() string
}

// ParseTimestamp attempts to parse a timestamp from a string using multiple formats
func ParseTimestamp(ts string, formats ...string) (time.Time, error) {
	if len(formats) == 0 {
		formats = DefaultTimeFormats()
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp: %s", ts)
}

// AccessLogTimeFormats are the layouts tried for a bracketed access-log
// timestamp after its date/time colon has been replaced with a space
func AccessLogTimeFormats() []string {
	return []string{
		"02/Jan/2006 15:04:05 -0700",
		"2/Jan/2006 15:04:05 -0700",
		"02/Jan/2006 15:04:05 MST",
		"02/Jan/2006 15:04:05",
	}
}

// DefaultTimeFormats returns common timestamp formats
func DefaultTimeFormats() []string {
	return []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006/01/02 15:04:05",
		"Jan 02, 2006 15:04:05",
		"02/Jan/2006:15:04:05 -0700",
	}
}

// normalizeAccessTimestamp replaces the first colon, the one between date and time
func normalizeAccessTimestamp(ts string) string {
	return strings.Replace(ts, ":", " ", 1)
}
