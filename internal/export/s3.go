package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/therealutkarshpriyadarshi/logscope/internal/config"
	"github.com/therealutkarshpriyadarshi/logscope/internal/s3client"
)

// DefaultKeyFormat is the object key template. {ext} includes the leading
// dot and any compression suffix.
const DefaultKeyFormat = "{prefix}/{date}/{run}{ext}"

// S3Sink uploads one object per run
type S3Sink struct {
	client    s3client.API
	bucket    string
	prefix    string
	keyFormat string
	codec     codec
}

// NewS3Sink creates an S3 sink using client
func NewS3Sink(cfg config.ExportConfig, client s3client.API) (*S3Sink, error) {
	if cfg.S3 == nil || cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("no bucket specified")
	}

	c, err := newCodec(cfg)
	if err != nil {
		return nil, err
	}

	keyFormat := cfg.S3.KeyFormat
	if keyFormat == "" {
		keyFormat = DefaultKeyFormat
	}

	return &S3Sink{
		client:    client,
		bucket:    cfg.S3.Bucket,
		prefix:    strings.Trim(cfg.S3.Prefix, "/"),
		keyFormat: keyFormat,
		codec:     c,
	}, nil
}

// Key renders the object key for p
func (s *S3Sink) Key(p *Payload) string {
	key := strings.NewReplacer(
		"{prefix}", s.prefix,
		"{date}", p.CreatedAt.Format("2006-01-02"),
		"{run}", p.RunID,
		"{ext}", s.codec.extension(),
	).Replace(s.keyFormat)

	// an empty prefix leaves a leading or doubled slash
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	return strings.TrimPrefix(key, "/")
}

// Write encodes p and puts it as a single object
func (s *S3Sink) Write(ctx context.Context, p *Payload) (int64, error) {
	data, err := s.codec.encode(p)
	if err != nil {
		return 0, err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.Key(p)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(s.codec.encoder.ContentType()),
		Metadata: map[string]string{
			"run-id": p.RunID,
			"source": p.Source,
		},
	}
	if enc := s.codec.compressor.ContentEncoding(); enc != "" {
		input.ContentEncoding = aws.String(enc)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return 0, fmt.Errorf("failed to upload to S3: %w", err)
	}
	return int64(len(data)), nil
}

// Name returns "s3"
func (s *S3Sink) Name() string { return SinkS3 }

// Close is a no-op; the S3 client is shared
func (s *S3Sink) Close() error { return nil }
