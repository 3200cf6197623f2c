package minio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/sphinxql/internal/errs"
	"github.com/koustreak/sphinxql/internal/filestore"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"wrapped cancel", fmt.Errorf("get: %w", context.Canceled), errs.ErrKindTimeout},
		{"missing key", miniogo.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, errs.ErrKindConfig},
		{"bad credentials", miniogo.ErrorResponse{Code: "InvalidAccessKeyId"}, errs.ErrKindConfig},
		{"bad object name", miniogo.ErrorResponse{Code: "InvalidObjectName"}, errs.ErrKindInvalidInput},
		{"throttled", miniogo.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusServiceUnavailable}, errs.ErrKindTimeout},
		{"bare 403", miniogo.ErrorResponse{StatusCode: http.StatusForbidden}, errs.ErrKindConfig},
		{"bare 400", miniogo.ErrorResponse{StatusCode: http.StatusBadRequest}, errs.ErrKindInvalidInput},
		{"server error", miniogo.ErrorResponse{Code: "InternalError", StatusCode: http.StatusInternalServerError}, errs.ErrKindConnectionFailed},
		{"network", errors.New("connection reset by peer"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "fetch search/sphinxql.yaml")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.err, got.Cause)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, mapError(nil, "op"))
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New(context.Background(), &filestore.Config{})
	assert.True(t, errs.IsConfig(err))

	_, err = New(context.Background(), nil)
	assert.True(t, errs.IsConfig(err))
}
