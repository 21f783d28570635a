package parser

import (
	"fmt"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

const validLine = `10.0.0.1 - - [10/Oct/2023:13:55:36 -0700] "GET /index.html HTTP/1.1" 200 2326 "-" "Mozilla/5.0"`

func TestBatchProcess(t *testing.T) {
	lines := []string{
		validLine,
		"",
		"   ",
		"garbage without quotes",
		`999.0.0.1 - - [10/Oct/2023:13:55:36 -0700] "GET / HTTP/1.1" 200 100 "-" "-"`,
		"  " + validLine + "  ",
	}

	result := BatchProcess(NewCombinedParser(), lines, nil)

	if len(result.Records) != 2 {
		t.Errorf("Records = %d, want 2", len(result.Records))
	}
	if len(result.Malformed) != 2 {
		t.Fatalf("Malformed = %d, want 2", len(result.Malformed))
	}

	first := result.Malformed[0]
	if first.LineNumber != 4 || first.Type != types.FormatError || first.Error != ErrMissingQuotes.Error() {
		t.Errorf("Malformed[0] = %+v", first)
	}

	second := result.Malformed[1]
	if second.LineNumber != 5 || second.Type != types.ParsingError || second.Error != ErrInvalidIP.Error() {
		t.Errorf("Malformed[1] = %+v", second)
	}

	if result.FormatErrors() != 1 || result.ParsingErrors() != 1 {
		t.Errorf("FormatErrors/ParsingErrors = %d/%d, want 1/1", result.FormatErrors(), result.ParsingErrors())
	}
}

func TestBatchProcess_BlankLinesProduceNothing(t *testing.T) {
	result := BatchProcess(NewCombinedParser(), []string{"", " ", "\t"}, nil)

	if len(result.Records) != 0 || len(result.Malformed) != 0 {
		t.Errorf("blank input produced %d records and %d malformed", len(result.Records), len(result.Malformed))
	}
}

func TestBatchProcess_Progress(t *testing.T) {
	lines := make([]string, 2500)
	for i := range lines {
		lines[i] = validLine
	}

	var reports []float64
	BatchProcess(NewCombinedParser(), lines, func(p float64) {
		reports = append(reports, p)
	})

	if len(reports) != 2 {
		t.Fatalf("progress reports = %d, want 2", len(reports))
	}
	if reports[0] != 40 || reports[1] != 80 {
		t.Errorf("progress = %v, want [40 80]", reports)
	}
}

func TestFilter_Apply(t *testing.T) {
	base := time.Date(2023, 10, 10, 12, 0, 0, 0, time.UTC)
	records := []*types.LogRecord{
		{IP: "10.0.0.1", Method: "GET", StatusCode: 200, UserAgent: "Mozilla/5.0 Chrome/120", Timestamp: base},
		{IP: "10.0.0.2", Method: "POST", StatusCode: 404, UserAgent: "curl/8.0", Timestamp: base.Add(time.Hour)},
		{IP: "10.0.0.3", Method: "GET", StatusCode: 503, UserAgent: "Mozilla/5.0 Firefox/119", Timestamp: base.Add(2 * time.Hour)},
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"zero filter", Filter{}, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}},
		{"ip list", Filter{IP: "10.0.0.1,10.0.0.3"}, []string{"10.0.0.1", "10.0.0.3"}},
		{"method", Filter{Method: "POST"}, []string{"10.0.0.2"}},
		{"status class", Filter{StatusCode: "4xx"}, []string{"10.0.0.2"}},
		{"status exact uses first digit", Filter{StatusCode: "500"}, []string{"10.0.0.3"}},
		{"user agent substring", Filter{UserAgent: "Mozilla"}, []string{"10.0.0.1", "10.0.0.3"}},
		{"start time inclusive", Filter{StartTime: base.Add(time.Hour)}, []string{"10.0.0.2", "10.0.0.3"}},
		{"end time inclusive", Filter{EndTime: base.Add(time.Hour)}, []string{"10.0.0.1", "10.0.0.2"}},
		{"combined", Filter{Method: "GET", StatusCode: "2"}, []string{"10.0.0.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.Apply(records)
			if len(got) != len(tt.want) {
				t.Fatalf("Apply() returned %d records, want %d", len(got), len(tt.want))
			}
			for i, r := range got {
				if r.IP != tt.want[i] {
					t.Errorf("Apply()[%d].IP = %s, want %s", i, r.IP, tt.want[i])
				}
			}
		})
	}
}

func ExampleBatchProcess() {
	result := BatchProcess(NewCombinedParser(), []string{validLine, "not a log line"}, nil)
	fmt.Println(len(result.Records), len(result.Malformed), result.Malformed[0].Error)
	// Output: 1 1 Missing quotation marks in log entry
}
