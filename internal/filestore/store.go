// Package filestore abstracts the object store a fleet keeps its shared
// profile document in. Only the two reads the config layer needs are
// exposed: fetch a document, and ask for its current version so callers can
// poll for changes cheaply.
//
// Usage:
//
//	src, err := minio.New(ctx, &filestore.Config{Endpoint: "localhost:9000", ...})
//	if err != nil { ... }
//	defer src.Close()
//
//	cfg, err := config.LoadObject(ctx, src, "search", "sphinxql.yaml")
package filestore

import (
	"context"
	"time"
)

// MaxDocumentSize bounds how much of a document Fetch reads.
const MaxDocumentSize = 1 << 20

// Config holds the settings needed to reach an object store.
type Config struct {
	// Endpoint is the host:port of the storage server.
	Endpoint string

	AccessKey string
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends. Leave empty for MinIO.
	Region string
}

// Document is one fetched object.
type Document struct {
	Key      string
	Body     []byte
	Version  string // changes whenever Body does (the ETag for S3-style stores)
	Modified time.Time
}

// Source is a read-only store of documents.
type Source interface {
	// Fetch reads bucket/key in full. Documents larger than
	// MaxDocumentSize are rejected with ErrKindInvalidInput.
	Fetch(ctx context.Context, bucket, key string) (*Document, error)

	// Version returns the current version of bucket/key without reading it.
	Version(ctx context.Context, bucket, key string) (string, error)

	Close() error
}
