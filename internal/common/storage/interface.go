package storage

import (
	"context"
	"io"
)

// ObjectStorage defines minimal object storage operations required by the
// source offload flow. It is intentionally small so we can swap MinIO/AWS-S3
// implementations without touching business logic.
type ObjectStorage interface {
	// PutObject uploads an object and returns its ETag if available.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, size int64, contentType string) (string, error)

	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	// StatObject returns size and ETag for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}
