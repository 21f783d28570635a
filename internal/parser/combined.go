package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

// CombinedPattern is the Apache/NCSA combined access-log grammar:
// IP - - [timestamp] "METHOD PATH PROTOCOL" STATUS BYTES "REFERER" "USER_AGENT"
const CombinedPattern = `^(\S+) - - \[(.*?)\] "(\S+) (.*?) (\S+)" (\d+) (\d+) "([^"]*)" "([^"]*)"`

var (
	combinedRegex = regexp.MustCompile(CombinedPattern)
	ipv4Regex     = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)
	statusProbe   = regexp.MustCompile(`\d{3}`)
)

// CombinedParser parses combined-format access-log lines
type CombinedParser struct {
	timeFormats []string
}

// NewCombinedParser creates a combined-format parser
func NewCombinedParser() *CombinedParser {
	return &CombinedParser{
		timeFormats: AccessLogTimeFormats(),
	}
}

// Parse parses a single trimmed line
func (p *CombinedParser) Parse(line string) (*types.LogRecord, error) {
	match := combinedRegex.FindStringSubmatch(line)
	if match == nil {
		return nil, diagnose(line)
	}

	ip, rawTime := match[1], match[2]

	if !ValidIP(ip) {
		return nil, ErrInvalidIP
	}

	ts, err := ParseTimestamp(normalizeAccessTimestamp(rawTime), p.timeFormats...)
	if err != nil {
		return nil, ErrInvalidTimestamp
	}

	// \d+ guarantees digits; only overflow can fail here
	status, err := strconv.Atoi(match[6])
	if err != nil {
		return nil, ErrMissingStatus
	}
	// out-of-range sizes clamp to MaxInt64
	size, _ := strconv.ParseInt(match[7], 10, 64)

	return &types.LogRecord{
		IP:         ip,
		Timestamp:  ts,
		Method:     match[3],
		Path:       match[4],
		Protocol:   match[5],
		StatusCode: status,
		Bytes:      size,
		Referer:    match[8],
		UserAgent:  match[9],
	}, nil
}

// Name returns the parser name
func (p *CombinedParser) Name() string {
	return "combined"
}

// diagnose picks the most specific reason a line failed the grammar
func diagnose(line string) error {
	switch {
	case !strings.Contains(line, `"`):
		return ErrMissingQuotes
	case !strings.Contains(line, "["):
		return ErrMissingBracket
	case !statusProbe.MatchString(line):
		return ErrMissingStatus
	default:
		return ErrInvalidFormat
	}
}

// ValidIP reports whether ip is a dotted quad with every octet in 0-255
func ValidIP(ip string) bool {
	if !ipv4Regex.MatchString(ip) {
		return false
	}
	for _, octet := range strings.Split(ip, ".") {
		n, err := strconv.Atoi(octet)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}
