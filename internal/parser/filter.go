package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

// Filter narrows a record set. Zero-valued fields match everything.
type Filter struct {
	// IP is a comma-separated list of addresses
	IP string

	Method string

	// StatusCode is matched on its first digit, so "404" and "4xx" both select 4xx
	StatusCode string

	UserAgent string
	StartTime time.Time
	EndTime   time.Time
}

// IsZero reports whether the filter matches every record
func (f Filter) IsZero() bool {
	return f.IP == "" && f.Method == "" && f.StatusCode == "" && f.UserAgent == "" &&
		f.StartTime.IsZero() && f.EndTime.IsZero()
}

// Match reports whether a record passes the filter
func (f Filter) Match(r *types.LogRecord) bool {
	if f.IP != "" && !containsIP(f.IP, r.IP) {
		return false
	}
	if f.Method != "" && r.Method != f.Method {
		return false
	}
	if f.StatusCode != "" && !strings.HasPrefix(strconv.Itoa(r.StatusCode), f.StatusCode[:1]) {
		return false
	}
	if f.UserAgent != "" && !strings.Contains(r.UserAgent, f.UserAgent) {
		return false
	}
	if !f.StartTime.IsZero() && r.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && r.Timestamp.After(f.EndTime) {
		return false
	}
	return true
}

// Apply returns the records that match, preserving order
func (f Filter) Apply(records []*types.LogRecord) []*types.LogRecord {
	if f.IsZero() {
		return records
	}

	out := make([]*types.LogRecord, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func containsIP(list, ip string) bool {
	for _, candidate := range strings.Split(list, ",") {
		if candidate == ip {
			return true
		}
	}
	return false
}
