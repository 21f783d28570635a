package analytics

import (
	"regexp"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

// AttackType names a suspicious request pattern
type AttackType string

const (
	WebShell     AttackType = "WEB_SHELL"
	SQLInjection AttackType = "SQL_INJECTION"
	XSS          AttackType = "XSS"
	AdminAccess  AttackType = "ADMIN_ACCESS"
	BackupFile   AttackType = "BACKUP_FILE"
)

// AttackPattern matches a request path
type AttackPattern struct {
	Type    AttackType
	Pattern *regexp.Regexp
}

// AttackPatterns are checked in order against every request path
var AttackPatterns = []AttackPattern{
	{WebShell, regexp.MustCompile(`(?i)\.(php|asp|aspx|jsp|cgi)$`)},
	{SQLInjection, regexp.MustCompile(`(?i)(union|select|insert|drop|delete|update)\s+`)},
	{XSS, regexp.MustCompile(`(?i)(<script|javascript:|onload=|onerror=)`)},
	{AdminAccess, regexp.MustCompile(`(?i)(admin|administrator|login|wp-admin|phpMyAdmin)`)},
	{BackupFile, regexp.MustCompile(`(?i)\.(bak|backup|old|temp|tmp)$`)},
}

// Finding is one request that matched an attack pattern
type Finding struct {
	Type       AttackType `json:"type"`
	IP         string     `json:"ip"`
	Method     string     `json:"method"`
	Path       string     `json:"path"`
	StatusCode int        `json:"statusCode"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Security summarizes suspicious traffic
type Security struct {
	Findings     []Finding          `json:"findings"`
	ByType       map[AttackType]int `json:"byType"`
	Timeline     [24]int            `json:"timeline"`
	AuthFailures int                `json:"authFailures"`
	Scanners     int                `json:"scanners"`
}

// DetectAttacks returns every pattern the path matches
func DetectAttacks(path string) []AttackType {
	var matched []AttackType
	for _, p := range AttackPatterns {
		if p.Pattern.MatchString(path) {
			matched = append(matched, p.Type)
		}
	}
	return matched
}

// AnalyzeSecurity scans records for attack patterns, 401/403 responses and
// scanner user agents. A request matching several patterns yields one
// finding per pattern.
func AnalyzeSecurity(records []*types.LogRecord) Security {
	sec := Security{ByType: make(map[AttackType]int)}

	for _, r := range records {
		if r.StatusCode == 401 || r.StatusCode == 403 {
			sec.AuthFailures++
		}

		ua := strings.ToLower(r.UserAgent)
		if strings.Contains(ua, "scanner") || strings.Contains(ua, "vulnerability") {
			sec.Scanners++
		}

		for _, t := range DetectAttacks(r.Path) {
			sec.Findings = append(sec.Findings, Finding{
				Type:       t,
				IP:         r.IP,
				Method:     r.Method,
				Path:       r.Path,
				StatusCode: r.StatusCode,
				Timestamp:  r.Timestamp,
			})
			sec.ByType[t]++
			sec.Timeline[r.Timestamp.Hour()]++
		}
	}
	return sec
}
