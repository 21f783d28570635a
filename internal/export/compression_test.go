package export

import (
	"bytes"
	"testing"
)

func TestCompressorRoundTrip(t *testing.T) {
	data := []byte(`127.0.0.1 - - [10/Oct/2023:13:55:36 +0000] "GET /index.html HTTP/1.1" 200 2326 "-" "curl/8.0"` + "\n" +
		`127.0.0.1 - - [10/Oct/2023:13:55:37 +0000] "GET /index.html HTTP/1.1" 200 2326 "-" "curl/8.0"` + "\n" +
		`127.0.0.1 - - [10/Oct/2023:13:55:38 +0000] "GET /index.html HTTP/1.1" 200 2326 "-" "curl/8.0"`)

	tests := []struct {
		name      string
		extension string
		encoding  string
	}{
		{CompressionNone, "", ""},
		{CompressionGzip, ".gz", "gzip"},
		{CompressionSnappy, ".snappy", "snappy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressor, err := GetCompressor(tt.name)
			if err != nil {
				t.Fatalf("failed to get compressor: %v", err)
			}

			compressed, err := compressor.Compress(data)
			if err != nil {
				t.Fatalf("compression failed: %v", err)
			}
			if tt.name != CompressionNone && len(compressed) >= len(data) {
				t.Errorf("compressed size %d not smaller than %d", len(compressed), len(data))
			}

			decompressed, err := compressor.Decompress(compressed)
			if err != nil {
				t.Fatalf("decompression failed: %v", err)
			}
			if !bytes.Equal(decompressed, data) {
				t.Errorf("round trip failed: data mismatch")
			}

			if got := compressor.Extension(); got != tt.extension {
				t.Errorf("Extension() = %q, want %q", got, tt.extension)
			}
			if got := compressor.ContentEncoding(); got != tt.encoding {
				t.Errorf("ContentEncoding() = %q, want %q", got, tt.encoding)
			}
		})
	}
}

func TestGetCompressor_Default(t *testing.T) {
	c, err := GetCompressor("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Extension() != "" {
		t.Errorf("empty name should mean no compression")
	}
}

func TestGetCompressor_Unsupported(t *testing.T) {
	if _, err := GetCompressor("lz4"); err == nil {
		t.Error("expected error for unsupported compression")
	}
}

func TestGzipDecompress_Corrupt(t *testing.T) {
	c, _ := GetCompressor(CompressionGzip)
	if _, err := c.Decompress([]byte("not gzip")); err == nil {
		t.Error("expected error for corrupt gzip data")
	}
}
