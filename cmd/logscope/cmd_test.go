package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/therealutkarshpriyadarshi/logscope/internal/apperr"
)

const testLog = `10.0.0.1 - - [10/Oct/2023:13:55:36 -0700] "GET /index.html HTTP/1.1" 200 2326 "-" "Mozilla/5.0 (Windows NT 10.0) Chrome/118.0"
10.0.0.2 - - [10/Oct/2023:13:56:01 -0700] "POST /wp-admin HTTP/1.1" 403 12 "-" "sqlmap scanner"
garbage
`

// execute runs the root command with args and returns stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		jsonOut = false
		cfgFile = ""
		logLevel = ""
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommandsRegistered(t *testing.T) {
	expected := map[string]bool{
		"analyze": false,
		"watch":   false,
		"history": false,
		"cache":   false,
		"serve":   false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := expected[cmd.Name()]; ok {
			expected[cmd.Name()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("expected command '%s' to be registered with root command", name)
		}
	}
}

func TestHistoryCommandHasSubcommands(t *testing.T) {
	want := map[string]bool{"list": false, "show": false, "delete": false}
	for _, sub := range historyCmd.Commands() {
		want[sub.Name()] = true
	}
	for name, found := range want {
		if !found {
			t.Errorf("history should have subcommand '%s'", name)
		}
	}
}

func TestAnalyzeCommand_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "access.log", testLog)

	out, err := execute(t, "analyze", path, "--json")
	if err != nil {
		t.Fatalf("analyze error = %v", err)
	}

	var report struct {
		Valid        int `json:"valid"`
		Malformed    int `json:"malformed"`
		FormatErrors int `json:"formatErrors"`
		Summary      struct {
			UniqueIPs int `json:"uniqueIps"`
		} `json:"summary"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if report.Valid != 2 || report.Malformed != 1 || report.FormatErrors != 1 {
		t.Errorf("report = %+v", report)
	}
	if report.Summary.UniqueIPs != 2 {
		t.Errorf("UniqueIPs = %d, want 2", report.Summary.UniqueIPs)
	}
}

func TestAnalyzeCommand_Text(t *testing.T) {
	path := writeFile(t, t.TempDir(), "access.log", testLog)

	out, err := execute(t, "analyze", path)
	if err != nil {
		t.Fatalf("analyze error = %v", err)
	}
	for _, want := range []string{
		"Lines:",
		"2 valid, 1 malformed",
		"Client Error (4xx)",
		"ADMIN_ACCESS",
		"line 3 [FORMAT_ERROR]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestAnalyzeCommand_BadTime(t *testing.T) {
	path := writeFile(t, t.TempDir(), "access.log", testLog)

	_, err := execute(t, "analyze", path, "--start", "yesterday")
	if apperr.KindOf(err) != apperr.Validation {
		t.Errorf("KindOf() = %s, want %s", apperr.KindOf(err), apperr.Validation)
	}
	analyzeCmd.Flags().Set("start", "")
}

func TestAnalyzeCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "analyze", filepath.Join(t.TempDir(), "nope.log"))
	if apperr.KindOf(err) != apperr.File {
		t.Errorf("KindOf() = %s, want %s", apperr.KindOf(err), apperr.File)
	}
}

func TestHistoryCommands(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "access.log", testLog)
	config := writeFile(t, dir, "logscope.yaml", "history:\n  enabled: true\n  path: "+filepath.Join(dir, "history.db")+"\n")

	if _, err := execute(t, "analyze", path, "--config", config); err != nil {
		t.Fatalf("analyze error = %v", err)
	}

	out, err := execute(t, "history", "list", "--config", config, "--json")
	if err != nil {
		t.Fatalf("history list error = %v", err)
	}
	var runs []struct {
		ID     string `json:"id"`
		Source string `json:"source"`
		Valid  int    `json:"valid"`
	}
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(runs) != 1 || runs[0].Valid != 2 {
		t.Fatalf("runs = %+v", runs)
	}

	if _, err := execute(t, "history", "delete", runs[0].ID, "--config", config); err != nil {
		t.Fatalf("history delete error = %v", err)
	}

	_, err = execute(t, "history", "show", runs[0].ID, "--config", config)
	if apperr.KindOf(err) != apperr.Validation {
		t.Errorf("show after delete: KindOf() = %s, want %s", apperr.KindOf(err), apperr.Validation)
	}
}

func TestCacheCommands(t *testing.T) {
	dir := t.TempDir()
	statsPath := filepath.Join(dir, "stats.json")
	writeFile(t, dir, "stats.json", `{"hits":3,"misses":1,"totalRequests":4,"lastCleanup":0}`)
	config := writeFile(t, dir, "logscope.yaml", "cache:\n  stats:\n    backend: file\n    path: "+statsPath+"\n")

	out, err := execute(t, "cache", "stats", "--config", config)
	if err != nil {
		t.Fatalf("cache stats error = %v", err)
	}
	if !strings.Contains(out, "75.00%") {
		t.Errorf("output missing hit rate\n%s", out)
	}

	if _, err := execute(t, "cache", "clear", "--config", config); err != nil {
		t.Fatalf("cache clear error = %v", err)
	}

	out, err = execute(t, "cache", "stats", "--config", config, "--json")
	if err != nil {
		t.Fatalf("cache stats error = %v", err)
	}
	var stats struct {
		TotalRequests int64  `json:"totalRequests"`
		HitRate       string `json:"hitRate"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if stats.TotalRequests != 0 || stats.HitRate != "0%" {
		t.Errorf("stats after clear = %+v", stats)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestWriteCounts_Order(t *testing.T) {
	var buf bytes.Buffer
	writeCounts(&buf, map[string]int{"GET": 5, "POST": 2, "DELETE": 2})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	for i, want := range []string{"GET", "DELETE", "POST"} {
		if !strings.HasPrefix(strings.TrimSpace(lines[i]), want) {
			t.Errorf("line %d = %q, want %s first", i, lines[i], want)
		}
	}
}
