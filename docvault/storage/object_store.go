// Package storage provides the blob store abstraction backing per-user
// document namespaces, plus the quota estimator that admits uploads against
// the namespace capacity ceiling.
package storage

import (
	"context"
	"io"
	"time"
)

// Object is a single stored blob as reported by a listing.
type Object struct {
	Key  string
	Size int64
}

// ListPage is one page of a prefix listing. When IsTruncated is set the
// caller must pass NextToken to List to fetch the following page.
type ListPage struct {
	Objects     []Object
	IsTruncated bool
	NextToken   string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error

	Open(ctx context.Context, key string) (io.ReadCloser, error)

	Delete(ctx context.Context, key string) error

	// List returns one page of objects under prefix. continuationToken is
	// empty for the first page.
	List(ctx context.Context, prefix, continuationToken string) (ListPage, error)

	// SignedUrl returns a pre-authorized download URL for key, valid for ttl.
	SignedUrl(ctx context.Context, key string, ttl time.Duration) (string, error)
}
