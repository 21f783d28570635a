package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSource reads a file served over HTTP using Range requests. Servers
// that ignore ranges are downloaded once and served from memory.
type HTTPSource struct {
	ctx    context.Context
	client *http.Client
	url    string
	size   int64
	body   *bytes.Reader // set when ranges are unsupported
}

// NewHTTPSource probes url with HEAD and prepares ranged reads
func NewHTTPSource(ctx context.Context, client *http.Client, url string) (*HTTPSource, error) {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	src := &HTTPSource{ctx: ctx, client: client, url: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", url, err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status fetching %s: %s", url, resp.Status)
	}

	if resp.Header.Get("Accept-Ranges") == "bytes" && resp.ContentLength >= 0 {
		src.size = resp.ContentLength
		return src, nil
	}

	if err := src.download(); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *HTTPSource) download() error {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status downloading %s: %s", s.url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.url, err)
	}
	s.body = bytes.NewReader(data)
	s.size = int64(len(data))
	return nil
}

// ReadAt fetches len(p) bytes starting at off
func (s *HTTPSource) ReadAt(p []byte, off int64) (int, error) {
	if s.body != nil {
		return s.body.ReadAt(p, off)
	}
	if off >= s.size {
		return 0, io.EOF
	}

	end := off + int64(len(p))
	if end > s.size {
		end = s.size
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, end-1))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("range request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("range request returned %s", resp.Status)
	}

	n, err := io.ReadFull(resp.Body, p[:end-off])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *HTTPSource) Close() error { return nil }
func (s *HTTPSource) Size() int64  { return s.size }
func (s *HTTPSource) Name() string { return s.url }
func (s *HTTPSource) Type() string { return "http" }
