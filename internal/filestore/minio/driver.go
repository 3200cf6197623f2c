// Package minio reads shared documents from MinIO or any S3-compatible
// store.
package minio

import (
	"context"
	"io"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/koustreak/sphinxql/internal/errs"
	"github.com/koustreak/sphinxql/internal/filestore"
)

// Source implements filestore.Source. It is safe for concurrent use.
type Source struct {
	client *miniogo.Client
}

// New builds a client for cfg.Endpoint and checks the credentials by
// listing buckets.
func New(ctx context.Context, cfg *filestore.Config) (*Source, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, errs.New(errs.ErrKindConfig, "object store endpoint is required")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfig, "invalid object store settings", err)
	}

	if _, err := client.ListBuckets(ctx); err != nil {
		return nil, mapError(err, "object store unreachable")
	}
	return &Source{client: client}, nil
}

// Fetch implements filestore.Source.
func (s *Source) Fetch(ctx context.Context, bucket, key string) (*filestore.Document, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "fetch "+bucket+"/"+key)
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces a missing key and the size up front.
	stat, err := obj.Stat()
	if err != nil {
		return nil, mapError(err, "fetch "+bucket+"/"+key)
	}
	if stat.Size > filestore.MaxDocumentSize {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "%s/%s is %d bytes, limit is %d",
			bucket, key, stat.Size, filestore.MaxDocumentSize)
	}

	body, err := io.ReadAll(io.LimitReader(obj, filestore.MaxDocumentSize))
	if err != nil {
		return nil, mapError(err, "read "+bucket+"/"+key)
	}

	return &filestore.Document{
		Key:      key,
		Body:     body,
		Version:  stat.ETag,
		Modified: stat.LastModified,
	}, nil
}

// Version implements filestore.Source.
func (s *Source) Version(ctx context.Context, bucket, key string) (string, error) {
	stat, err := s.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return "", mapError(err, "stat "+bucket+"/"+key)
	}
	return stat.ETag, nil
}

// Close is a no-op; the SDK keeps no connection open between calls.
func (s *Source) Close() error {
	return nil
}
