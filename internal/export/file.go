package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/therealutkarshpriyadarshi/logscope/internal/config"
)

// DefaultExportDir is used when the file sink has no path
const DefaultExportDir = "exports"

// codec pairs an encoder with a compressor for sinks that write whole objects
type codec struct {
	encoder    Encoder
	compressor Compressor
}

func newCodec(cfg config.ExportConfig) (codec, error) {
	enc, err := GetEncoder(cfg.Format)
	if err != nil {
		return codec{}, err
	}
	comp, err := GetCompressor(cfg.Compression)
	if err != nil {
		return codec{}, err
	}
	return codec{encoder: enc, compressor: comp}, nil
}

func (c codec) encode(p *Payload) ([]byte, error) {
	data, err := EncodeBytes(c.encoder, p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	data, err = c.compressor.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	return data, nil
}

// extension is the full suffix, e.g. ".ndjson.gz"
func (c codec) extension() string {
	return c.encoder.Extension() + c.compressor.Extension()
}

// FileSink writes one file per run into a directory
type FileSink struct {
	dir   string
	codec codec
}

// NewFileSink creates the output directory if needed
func NewFileSink(cfg config.ExportConfig) (*FileSink, error) {
	c, err := newCodec(cfg)
	if err != nil {
		return nil, err
	}

	dir := cfg.Path
	if dir == "" {
		dir = DefaultExportDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	return &FileSink{dir: dir, codec: c}, nil
}

// Path returns where the payload for runID is written
func (f *FileSink) Path(runID string) string {
	return filepath.Join(f.dir, runID+f.codec.extension())
}

// Write encodes p and writes it atomically via a temp file and rename
func (f *FileSink) Write(ctx context.Context, p *Payload) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	data, err := f.codec.encode(p)
	if err != nil {
		return 0, err
	}

	path := f.Path(p.RunID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return 0, fmt.Errorf("failed to write export file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to rename export file: %w", err)
	}

	return int64(len(data)), nil
}

// Name returns "file"
func (f *FileSink) Name() string { return SinkFile }

// Close is a no-op
func (f *FileSink) Close() error { return nil }
