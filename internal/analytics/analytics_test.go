package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

var base = time.Date(2023, 10, 10, 13, 55, 36, 0, time.FixedZone("", -7*3600))

func record(ip, method, path string, status int, bytes int64, ua string, at time.Time) *types.LogRecord {
	return &types.LogRecord{
		IP:         ip,
		Timestamp:  at,
		Method:     method,
		Path:       path,
		Protocol:   "HTTP/1.1",
		StatusCode: status,
		Bytes:      bytes,
		Referer:    "-",
		UserAgent:  ua,
	}
}

const (
	chromeUA  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	edgeUA    = "Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 Chrome/120.0 Safari/537.36 Edg/120.0"
	safariUA  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_1) AppleWebKit/605.1.15 Version/17.1 Safari/605.1.15"
	firefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"
	iphoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Mobile/15E148 Safari/604.1"
	androidUA = "Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36"
	operaUA   = "Opera/9.80 (Windows NT 6.1) Presto/2.12.388 Version/12.16"
)

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		ua   string
		want UserAgent
	}{
		{chromeUA, UserAgent{BrowserChrome, OSWindows}},
		{edgeUA, UserAgent{BrowserEdge, OSWindows}},
		{safariUA, UserAgent{BrowserSafari, OSMac}},
		{firefoxUA, UserAgent{BrowserFirefox, OSLinux}},
		{iphoneUA, UserAgent{BrowserSafari, OSMac}},
		{androidUA, UserAgent{BrowserChrome, OSLinux}},
		{operaUA, UserAgent{BrowserOpera, OSWindows}},
		{"curl/8.0", UserAgent{Other, Other}},
		{"", UserAgent{Other, Other}},
		{"Mozilla/5.0 (iPad; CPU OS 17_0)", UserAgent{Other, OSIOS}},
	}

	for _, tt := range tests {
		if got := ParseUserAgent(tt.ua); got != tt.want {
			t.Errorf("ParseUserAgent(%q) = %+v, want %+v", tt.ua, got, tt.want)
		}
	}
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code   int
		want   string
		wantOK bool
	}{
		{100, "", false},
		{200, StatusSuccess, true},
		{299, StatusSuccess, true},
		{301, StatusRedirect, true},
		{404, StatusClientError, true},
		{500, StatusServerError, true},
		{599, StatusServerError, true},
		{999, StatusServerError, true},
	}

	for _, tt := range tests {
		got, ok := StatusClass(tt.code)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("StatusClass(%d) = %q, %v, want %q, %v", tt.code, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSummarize(t *testing.T) {
	records := []*types.LogRecord{
		record("10.0.0.1", "GET", "/", 200, 100, chromeUA, base),
		record("10.0.0.1", "GET", "/a", 304, 0, chromeUA, base.Add(time.Minute)),
		record("10.0.0.2", "POST", "/login", 401, 20, firefoxUA, base.Add(time.Hour)),
		record("10.0.0.3", "GET", "/x", 503, 5, "curl/8.0", base.Add(2*time.Hour)),
		record("10.0.0.3", "DELETE", "/y", 100, 5, "curl/8.0", base.Add(2*time.Hour)),
	}

	s := Summarize(records)

	if s.TotalRequests != 5 || s.TotalBytes != 130 || s.UniqueIPs != 3 {
		t.Errorf("totals = %d requests, %d bytes, %d ips", s.TotalRequests, s.TotalBytes, s.UniqueIPs)
	}

	wantClasses := map[string]int{StatusSuccess: 1, StatusRedirect: 1, StatusClientError: 1, StatusServerError: 1}
	for class, n := range wantClasses {
		if s.StatusClasses[class] != n {
			t.Errorf("StatusClasses[%s] = %d, want %d", class, s.StatusClasses[class], n)
		}
	}

	if s.Hourly[13] != 2 || s.Hourly[14] != 1 || s.Hourly[15] != 2 {
		t.Errorf("Hourly = %v", s.Hourly)
	}
	if s.Methods["GET"] != 3 || s.Methods["POST"] != 1 || s.Methods["DELETE"] != 1 {
		t.Errorf("Methods = %v", s.Methods)
	}
	if s.Browsers[BrowserChrome] != 2 || s.Browsers[Other] != 2 || s.OS[OSLinux] != 1 {
		t.Errorf("Browsers = %v, OS = %v", s.Browsers, s.OS)
	}
	if s.Security.AuthFailures != 1 {
		t.Errorf("AuthFailures = %d, want 1", s.Security.AuthFailures)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)

	if s.TotalRequests != 0 || len(s.TopIPs) != 0 {
		t.Errorf("empty summary = %+v", s)
	}
	if len(s.StatusClasses) != 4 {
		t.Errorf("StatusClasses should list every class, got %v", s.StatusClasses)
	}
}

func TestTopIPs(t *testing.T) {
	var records []*types.LogRecord
	for i := 0; i < 15; i++ {
		for j := 0; j <= i%5; j++ {
			records = append(records, record(fmt.Sprintf("10.0.0.%d", i), "GET", "/", 200, 0, "", base))
		}
	}

	top := Summarize(records).TopIPs

	if len(top) != TopIPLimit {
		t.Fatalf("len(TopIPs) = %d, want %d", len(top), TopIPLimit)
	}
	want := []IPCount{
		{"10.0.0.14", 5}, {"10.0.0.4", 5}, {"10.0.0.9", 5},
		{"10.0.0.13", 4}, {"10.0.0.3", 4}, {"10.0.0.8", 4},
		{"10.0.0.12", 3}, {"10.0.0.2", 3}, {"10.0.0.7", 3},
		{"10.0.0.1", 2},
	}
	for i := range want {
		if top[i] != want[i] {
			t.Errorf("TopIPs[%d] = %+v, want %+v", i, top[i], want[i])
		}
	}
}

func TestDetectAttacks(t *testing.T) {
	tests := []struct {
		path string
		want []AttackType
	}{
		{"/index.html", nil},
		{"/shell.PHP", []AttackType{WebShell}},
		{"/search?q=UNION SELECT password", []AttackType{SQLInjection}},
		{"/q?x=<script>alert(1)</script>", []AttackType{XSS}},
		{"/wp-admin/", []AttackType{AdminAccess}},
		{"/phpmyadmin/index.php", []AttackType{WebShell, AdminAccess}},
		{"/db.sql.bak", []AttackType{BackupFile}},
		{"/login.php.old", []AttackType{AdminAccess, BackupFile}},
	}

	for _, tt := range tests {
		got := DetectAttacks(tt.path)
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("DetectAttacks(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestAnalyzeSecurity(t *testing.T) {
	records := []*types.LogRecord{
		record("1.1.1.1", "GET", "/admin/config.bak", 403, 0, "Nikto vulnerability scanner", base),
		record("1.1.1.1", "GET", "/ok", 200, 0, chromeUA, base),
		record("2.2.2.2", "GET", "/cmd.jsp", 404, 0, chromeUA, base.Add(3*time.Hour)),
	}

	sec := AnalyzeSecurity(records)

	if len(sec.Findings) != 3 {
		t.Fatalf("Findings = %d, want 3", len(sec.Findings))
	}
	if sec.ByType[AdminAccess] != 1 || sec.ByType[BackupFile] != 1 || sec.ByType[WebShell] != 1 {
		t.Errorf("ByType = %v", sec.ByType)
	}
	if sec.Timeline[13] != 2 || sec.Timeline[16] != 1 {
		t.Errorf("Timeline = %v", sec.Timeline)
	}
	if sec.AuthFailures != 1 || sec.Scanners != 1 {
		t.Errorf("AuthFailures = %d, Scanners = %d", sec.AuthFailures, sec.Scanners)
	}
	if sec.Findings[2].IP != "2.2.2.2" || sec.Findings[2].StatusCode != 404 {
		t.Errorf("Findings[2] = %+v", sec.Findings[2])
	}
}

func TestDetectDDoS(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	var records []*types.LogRecord

	// 600 requests from one IP inside a single 5 minute window: 120 req/min
	for i := 0; i < 600; i++ {
		records = append(records, record("6.6.6.6", "GET", "/", 200, 0, "", start.Add(time.Duration(i)*400*time.Millisecond)))
	}
	// background traffic spread over an hour
	for i := 0; i < 60; i++ {
		records = append(records, record(fmt.Sprintf("10.0.0.%d", i%3), "GET", "/", 200, 0, "", start.Add(time.Duration(i)*time.Minute)))
	}

	report := DetectDDoS(records, DDoSConfig{})

	if !report.Detected {
		t.Fatal("Detected = false, want true")
	}
	if report.PeakRate != 121 {
		t.Errorf("PeakRate = %d, want 121", report.PeakRate)
	}
	if !report.AttackStart.Equal(start) || !report.AttackEnd.Equal(start.Add(5*time.Minute)) {
		t.Errorf("attack window = %v - %v", report.AttackStart, report.AttackEnd)
	}
	if report.Duration != 5 {
		t.Errorf("Duration = %d, want 5", report.Duration)
	}
	if report.TotalIPs != 4 {
		t.Errorf("TotalIPs = %d, want 4", report.TotalIPs)
	}
	if len(report.Traffic) != 12 {
		t.Errorf("Traffic windows = %d, want 12", len(report.Traffic))
	}

	top := report.TopAttackers[0]
	if top.IP != "6.6.6.6" || top.Pattern != PatternHighVolume || top.Requests != 600 {
		t.Errorf("TopAttackers[0] = %+v", top)
	}
	for _, a := range report.TopAttackers[1:] {
		if a.Pattern != PatternDistributed {
			t.Errorf("%s pattern = %s, want %s", a.IP, a.Pattern, PatternDistributed)
		}
	}
	if len(report.AffectedIPs) != 4 {
		t.Errorf("AffectedIPs = %v", report.AffectedIPs)
	}
}

func TestDetectDDoS_Normal(t *testing.T) {
	var records []*types.LogRecord
	for i := 0; i < 100; i++ {
		records = append(records, record("10.0.0.1", "GET", "/", 200, 0, "", base.Add(time.Duration(i)*time.Minute)))
	}

	report := DetectDDoS(records, DDoSConfig{Threshold: 100})

	if report.Detected || report.Duration != 0 {
		t.Errorf("report = %+v, want no attack", report)
	}
	if report.TopAttackers[0].Pattern != PatternDistributed {
		t.Errorf("pattern = %s", report.TopAttackers[0].Pattern)
	}
}

func TestDetectDDoS_TargetIP(t *testing.T) {
	records := []*types.LogRecord{
		record("1.1.1.1", "GET", "/", 200, 0, "", base),
		record("2.2.2.2", "GET", "/", 200, 0, "", base),
	}

	report := DetectDDoS(records, DDoSConfig{TargetIP: "2.2.2.2"})

	if report.TotalIPs != 1 || report.TopAttackers[0].IP != "2.2.2.2" {
		t.Errorf("report = %+v", report)
	}
}
