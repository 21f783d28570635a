// Package analytics derives traffic, client and security statistics from
// parsed access log records.
package analytics

import (
	"sort"

	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

// Status class labels, in display order
const (
	StatusSuccess     = "Success (2xx)"
	StatusRedirect    = "Redirect (3xx)"
	StatusClientError = "Client Error (4xx)"
	StatusServerError = "Server Error (5xx)"
)

// StatusClasses lists the class labels in display order
var StatusClasses = []string{StatusSuccess, StatusRedirect, StatusClientError, StatusServerError}

// TopIPLimit is how many addresses TopIPs keeps
const TopIPLimit = 10

// IPCount is a request count for one client address
type IPCount struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

// Summary is the full analytics view of a set of records
type Summary struct {
	TotalRequests int            `json:"totalRequests"`
	TotalBytes    int64          `json:"totalBytes"`
	UniqueIPs     int            `json:"uniqueIps"`
	Hourly        [24]int        `json:"hourly"`
	StatusClasses map[string]int `json:"statusClasses"`
	Methods       map[string]int `json:"methods"`
	TopIPs        []IPCount      `json:"topIps"`
	Browsers      map[string]int `json:"browsers"`
	OS            map[string]int `json:"os"`
	Security      Security       `json:"security"`
}

// Summarize computes every statistic in one pass plus the security scan
func Summarize(records []*types.LogRecord) *Summary {
	s := &Summary{
		TotalRequests: len(records),
		StatusClasses: make(map[string]int, len(StatusClasses)),
		Methods:       make(map[string]int),
		Browsers:      make(map[string]int),
		OS:            make(map[string]int),
	}
	for _, class := range StatusClasses {
		s.StatusClasses[class] = 0
	}

	ips := make(map[string]int)
	for _, r := range records {
		s.TotalBytes += r.Bytes
		s.Hourly[r.Timestamp.Hour()]++
		s.Methods[r.Method]++
		ips[r.IP]++

		if class, ok := StatusClass(r.StatusCode); ok {
			s.StatusClasses[class]++
		}

		ua := ParseUserAgent(r.UserAgent)
		s.Browsers[ua.Browser]++
		s.OS[ua.OS]++
	}

	s.UniqueIPs = len(ips)
	s.TopIPs = topIPs(ips, TopIPLimit)
	s.Security = AnalyzeSecurity(records)
	return s
}

// StatusClass buckets a status code. Codes below 200 have no class; every
// code from 500 up counts as a server error.
func StatusClass(code int) (string, bool) {
	switch {
	case code >= 200 && code < 300:
		return StatusSuccess, true
	case code >= 300 && code < 400:
		return StatusRedirect, true
	case code >= 400 && code < 500:
		return StatusClientError, true
	case code >= 500:
		return StatusServerError, true
	default:
		return "", false
	}
}

// topIPs sorts by count descending with ties broken by address so the
// result is stable
func topIPs(counts map[string]int, limit int) []IPCount {
	out := make([]IPCount, 0, len(counts))
	for ip, n := range counts {
		out = append(out, IPCount{IP: ip, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].IP < out[j].IP
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
