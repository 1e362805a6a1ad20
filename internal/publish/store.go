// Package publish mirrors finished session artifacts to a shared location:
// a filesystem root or an S3-compatible bucket.
package publish

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver names.
const (
	DriverFilesystem = "fs"
	DriverS3         = "s3"
)

// ErrNotFound is returned by Head for missing keys.
var ErrNotFound = errors.New("object not found")

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is the minimal object store surface publishing needs. Put replaces
// existing objects.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Head(ctx context.Context, key string) (Info, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() string
}

func cloneMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
