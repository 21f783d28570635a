package types

import "time"

// ErrorCategory classifies why a line was rejected
type ErrorCategory string

const (
	// FormatError means the line did not match the access-log grammar
	FormatError ErrorCategory = "FORMAT_ERROR"
	// ParsingError means the grammar matched but a field failed validation
	ParsingError ErrorCategory = "PARSING_ERROR"
)

// LogRecord is one parsed combined-format access-log entry
type LogRecord struct {
	IP         string    `json:"ip"`
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Protocol   string    `json:"protocol"`
	StatusCode int       `json:"statusCode"`
	Bytes      int64     `json:"bytes"`
	Referer    string    `json:"referer"`
	UserAgent  string    `json:"userAgent"`
}

// MalformedEntry is a line that could not be turned into a LogRecord
type MalformedEntry struct {
	LineNumber int           `json:"lineNumber"` // 1-based, absolute within the source
	Content    string        `json:"content"`
	Error      string        `json:"error"`
	Type       ErrorCategory `json:"type"`
}

// ParseResult holds the outcome of parsing a whole source
type ParseResult struct {
	Records   []*LogRecord      `json:"records"`
	Malformed []*MalformedEntry `json:"malformed"`
	Bytes     int64             `json:"bytes"`
	Lines     int               `json:"lines"`
}

// FormatErrors counts malformed entries in the FORMAT_ERROR category
func (r *ParseResult) FormatErrors() int {
	return r.countCategory(FormatError)
}

// ParsingErrors counts malformed entries in the PARSING_ERROR category
func (r *ParseResult) ParsingErrors() int {
	return r.countCategory(ParsingError)
}

func (r *ParseResult) countCategory(c ErrorCategory) int {
	n := 0
	for _, m := range r.Malformed {
		if m.Type == c {
			n++
		}
	}
	return n
}

// Continent is the continent part of a CountryRecord
type Continent struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// CountryRecord is one row returned by the geolocation batch service
type CountryRecord struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Continent Continent `json:"continent"`
	Count     int       `json:"count"`
	IPs       []string  `json:"ips,omitempty"`
}
