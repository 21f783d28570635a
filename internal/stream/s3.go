package stream

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/therealutkarshpriyadarshi/logscope/internal/s3client"
)

// S3Source reads an S3 object with ranged GetObject calls
type S3Source struct {
	ctx    context.Context
	client s3client.API
	bucket string
	key    string
	size   int64
}

// NewS3Source looks up the object size and returns a Source over it
func NewS3Source(ctx context.Context, client s3client.API, bucket, key string) (*S3Source, error) {
	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to head s3://%s/%s: %w", bucket, key, err)
	}

	return &S3Source{
		ctx:    ctx,
		client: client,
		bucket: bucket,
		key:    key,
		size:   aws.ToInt64(head.ContentLength),
	}, nil
}

// ReadAt fetches len(p) bytes starting at off
func (s *S3Source) ReadAt(p []byte, off int64) (int, error) {
	if off >= s.size {
		return 0, io.EOF
	}

	end := off + int64(len(p))
	if end > s.size {
		end = s.size
	}

	out, err := s.client.GetObject(s.ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end-1)),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, p[:end-off])
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *S3Source) Close() error { return nil }
func (s *S3Source) Size() int64  { return s.size }
func (s *S3Source) Name() string { return "s3://" + s.bucket + "/" + s.key }
func (s *S3Source) Type() string { return "s3" }
