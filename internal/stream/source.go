package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/therealutkarshpriyadarshi/logscope/internal/s3client"
)

// Source is random-access log content of a known size
type Source interface {
	io.ReaderAt
	io.Closer
	Size() int64
	Name() string
	Type() string
}

// FileSource reads a local file
type FileSource struct {
	f    *os.File
	size int64
}

// OpenFile opens a local log file as a Source
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return &FileSource{f: f, size: info.Size()}, nil
}

func (s *FileSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }
func (s *FileSource) Close() error                             { return s.f.Close() }
func (s *FileSource) Size() int64                              { return s.size }
func (s *FileSource) Name() string                             { return s.f.Name() }
func (s *FileSource) Type() string                             { return "file" }

// BytesSource serves in-memory content, used for uploads held in memory and tests
type BytesSource struct {
	*strings.Reader
	name string
}

// NewBytesSource wraps text as a Source
func NewBytesSource(name, text string) *BytesSource {
	return &BytesSource{Reader: strings.NewReader(text), name: name}
}

func (s *BytesSource) Close() error { return nil }
func (s *BytesSource) Name() string { return s.name }
func (s *BytesSource) Type() string { return "memory" }

// Opener resolves a location string into a Source
type Opener struct {
	HTTPClient *http.Client
	// BaseURL turns a bare upload name into <BaseURL>/uploads/<name>
	BaseURL string
	// S3 is created lazily on the first s3:// location when nil
	S3        s3client.API
	NewS3Func func(ctx context.Context) (s3client.API, error)
}

// Open returns a Source for a local path, an http(s) URL, an s3://bucket/key
// location, or an upload name when BaseURL is set
func (o *Opener) Open(ctx context.Context, location string) (Source, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		bucket, key, err := splitS3Location(location)
		if err != nil {
			return nil, err
		}
		if o.S3 == nil {
			if o.NewS3Func == nil {
				return nil, fmt.Errorf("no S3 client configured for %s", location)
			}
			client, err := o.NewS3Func(ctx)
			if err != nil {
				return nil, err
			}
			o.S3 = client
		}
		return NewS3Source(ctx, o.S3, bucket, key)

	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return NewHTTPSource(ctx, o.HTTPClient, location)

	case o.BaseURL != "" && !strings.ContainsAny(location, `/\`):
		return NewHTTPSource(ctx, o.HTTPClient, UploadURL(o.BaseURL, location))

	default:
		return OpenFile(location)
	}
}

// UploadURL is where the upload server serves a stored log file
func UploadURL(baseURL, name string) string {
	return strings.TrimRight(baseURL, "/") + "/uploads/" + name
}

func splitS3Location(location string) (string, string, error) {
	rest := strings.TrimPrefix(location, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 location %q, want s3://bucket/key", location)
	}
	return bucket, key, nil
}
