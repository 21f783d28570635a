package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

func testPayload() *Payload {
	ts := time.Date(2023, 10, 10, 13, 55, 36, 0, time.UTC)
	return &Payload{
		RunID:     "run-1",
		Source:    "access.log",
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Records: []*types.LogRecord{
			{IP: "10.0.0.1", Timestamp: ts, Method: "GET", Path: "/index.html", Protocol: "HTTP/1.1", StatusCode: 200, Bytes: 2326, Referer: "-", UserAgent: "Mozilla/5.0"},
			{IP: "10.0.0.2", Timestamp: ts.Add(time.Second), Method: "POST", Path: "/login", Protocol: "HTTP/1.1", StatusCode: 401, Bytes: 0, Referer: "-", UserAgent: `quoted, "agent"`},
		},
		Malformed: []*types.MalformedEntry{
			{LineNumber: 3, Content: "garbage", Error: "Invalid log format", Type: types.FormatError},
		},
	}
}

func TestJSONEncoder(t *testing.T) {
	enc, err := GetEncoder(FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := EncodeBytes(enc, testPayload())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var got Payload
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got.RunID != "run-1" || len(got.Records) != 2 || len(got.Malformed) != 1 {
		t.Errorf("decoded payload = %+v", got)
	}
	if got.Malformed[0].Type != types.FormatError {
		t.Errorf("malformed type = %s, want %s", got.Malformed[0].Type, types.FormatError)
	}
}

func TestNDJSONEncoder(t *testing.T) {
	enc, _ := GetEncoder(FormatNDJSON)

	data, err := EncodeBytes(enc, testPayload())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var kinds []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var line ndjsonLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("line %q is not valid JSON: %v", scanner.Text(), err)
		}
		kinds = append(kinds, line.Kind)
	}

	want := []string{KindRecord, KindRecord, KindMalformed}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Errorf("kinds = %v, want %v", kinds, want)
	}
}

func TestCSVEncoder(t *testing.T) {
	enc, _ := GetEncoder(FormatCSV)

	data, err := EncodeBytes(enc, testPayload())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}

	// header, 2 records, malformed header, 1 malformed; the blank separator
	// row is skipped by the reader
	if len(rows) != 5 {
		t.Fatalf("got %d rows, want 5: %v", len(rows), rows)
	}
	if rows[0][0] != "ip" || rows[1][0] != "10.0.0.1" {
		t.Errorf("unexpected first rows: %v", rows[:2])
	}
	if rows[1][1] != "2023-10-10T13:55:36Z" {
		t.Errorf("timestamp = %s", rows[1][1])
	}
	if rows[2][8] != `quoted, "agent"` {
		t.Errorf("user agent = %q, want it unescaped", rows[2][8])
	}
	if rows[3][0] != "lineNumber" || rows[4][1] != "FORMAT_ERROR" {
		t.Errorf("unexpected malformed section: %v", rows[3:])
	}
}

func TestCSVEncoder_NoMalformed(t *testing.T) {
	enc, _ := GetEncoder(FormatCSV)
	p := testPayload()
	p.Malformed = nil

	data, err := EncodeBytes(enc, p)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if strings.Contains(string(data), "lineNumber") {
		t.Error("malformed section written without malformed entries")
	}
}

func TestGetEncoder(t *testing.T) {
	tests := []struct {
		format string
		ext    string
		ok     bool
	}{
		{"", ".json", true},
		{FormatJSON, ".json", true},
		{FormatNDJSON, ".ndjson", true},
		{FormatCSV, ".csv", true},
		{"xml", "", false},
	}

	for _, tt := range tests {
		enc, err := GetEncoder(tt.format)
		if (err == nil) != tt.ok {
			t.Errorf("GetEncoder(%q) error = %v, want ok %v", tt.format, err, tt.ok)
			continue
		}
		if tt.ok && enc.Extension() != tt.ext {
			t.Errorf("GetEncoder(%q).Extension() = %s, want %s", tt.format, enc.Extension(), tt.ext)
		}
	}
}

func TestEncodeBytes_OutputOutlivesBuffer(t *testing.T) {
	enc, _ := GetEncoder(FormatNDJSON)

	first, err := EncodeBytes(enc, testPayload())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := string(first)

	other := testPayload()
	other.RunID = "run-2"
	other.Records = other.Records[:1]
	for i := 0; i < 10; i++ {
		if _, err := EncodeBytes(enc, other); err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
	}

	if string(first) != want {
		t.Error("earlier output changed after the buffer was reused")
	}
}
