package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/internal/pool"
	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

// Encoding format names
const (
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
	FormatCSV    = "csv"
)

// Payload is the result of one analysis run
type Payload struct {
	RunID     string                  `json:"runId"`
	Source    string                  `json:"source"`
	CreatedAt time.Time               `json:"createdAt"`
	Records   []*types.LogRecord      `json:"records"`
	Malformed []*types.MalformedEntry `json:"malformed"`
}

// Encoder serializes a payload for file-like sinks
type Encoder interface {
	Encode(w io.Writer, p *Payload) error
	Extension() string
	ContentType() string
}

// GetEncoder returns the encoder for format. An empty format means json.
func GetEncoder(format string) (Encoder, error) {
	switch format {
	case "", FormatJSON:
		return jsonEncoder{}, nil
	case FormatNDJSON:
		return ndjsonEncoder{}, nil
	case FormatCSV:
		return csvEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// EncodeBytes runs enc into a pooled buffer and returns a copy of the output
func EncodeBytes(enc Encoder, p *Payload) ([]byte, error) {
	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)

	if err := enc.Encode(buf, p); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

type jsonEncoder struct{}

func (jsonEncoder) Encode(w io.Writer, p *Payload) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func (jsonEncoder) Extension() string   { return ".json" }
func (jsonEncoder) ContentType() string { return "application/json" }

// ndjsonLine wraps each element with its kind so valid and malformed lines
// can share one stream
type ndjsonLine struct {
	Kind      string                `json:"kind"`
	Record    *types.LogRecord      `json:"record,omitempty"`
	Malformed *types.MalformedEntry `json:"malformed,omitempty"`
}

type ndjsonEncoder struct{}

func (ndjsonEncoder) Encode(w io.Writer, p *Payload) error {
	enc := json.NewEncoder(w)
	for _, r := range p.Records {
		if err := enc.Encode(ndjsonLine{Kind: KindRecord, Record: r}); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	for _, m := range p.Malformed {
		if err := enc.Encode(ndjsonLine{Kind: KindMalformed, Malformed: m}); err != nil {
			return fmt.Errorf("failed to encode malformed entry: %w", err)
		}
	}
	return nil
}

func (ndjsonEncoder) Extension() string   { return ".ndjson" }
func (ndjsonEncoder) ContentType() string { return "application/x-ndjson" }

// CSVHeader is the column order of the csv format. Malformed entries go in
// a second section after a blank row.
var CSVHeader = []string{"ip", "timestamp", "method", "path", "protocol", "statusCode", "bytes", "referer", "userAgent"}

// CSVMalformedHeader heads the malformed section
var CSVMalformedHeader = []string{"lineNumber", "type", "error", "content"}

type csvEncoder struct{}

func (csvEncoder) Encode(w io.Writer, p *Payload) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range p.Records {
		row := []string{
			r.IP,
			r.Timestamp.Format(time.RFC3339),
			r.Method,
			r.Path,
			r.Protocol,
			strconv.Itoa(r.StatusCode),
			strconv.FormatInt(r.Bytes, 10),
			r.Referer,
			r.UserAgent,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	if len(p.Malformed) > 0 {
		if err := cw.Write(nil); err != nil {
			return err
		}
		if err := cw.Write(CSVMalformedHeader); err != nil {
			return err
		}
		for _, m := range p.Malformed {
			row := []string{strconv.Itoa(m.LineNumber), string(m.Type), m.Error, m.Content}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func (csvEncoder) Extension() string   { return ".csv" }
func (csvEncoder) ContentType() string { return "text/csv" }
