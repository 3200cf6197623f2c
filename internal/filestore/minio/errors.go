package minio

import (
	"context"
	"errors"
	"net/http"

	miniogo "github.com/minio/minio-go/v7"

	"github.com/koustreak/sphinxql/internal/errs"
)

// codeKinds classifies S3 error codes. A missing or unreadable document is
// a deployment mistake, so it surfaces as a configuration error.
var codeKinds = map[string]errs.ErrKind{
	"NoSuchBucket":          errs.ErrKindConfig,
	"NoSuchKey":             errs.ErrKindConfig,
	"AccessDenied":          errs.ErrKindConfig,
	"InvalidAccessKeyId":    errs.ErrKindConfig,
	"SignatureDoesNotMatch": errs.ErrKindConfig,
	"InvalidBucketName":     errs.ErrKindInvalidInput,
	"InvalidObjectName":     errs.ErrKindInvalidInput,
	"KeyTooLongError":       errs.ErrKindInvalidInput,
	"RequestTimeout":        errs.ErrKindTimeout,
	"SlowDown":              errs.ErrKindTimeout,
}

func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	resp := miniogo.ToErrorResponse(err)
	if kind, ok := codeKinds[resp.Code]; ok {
		return errs.Wrap(kind, msg, err)
	}
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusForbidden, http.StatusUnauthorized:
		return errs.Wrap(errs.ErrKindConfig, msg, err)
	case http.StatusBadRequest:
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
