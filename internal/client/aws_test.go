package client

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossamaweb/auto-vid/internal/apperr"
)

func responseError(status int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      errors.New("upstream"),
		},
	}
}

func TestClassifyAWS(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"missing key", &smithy.GenericAPIError{Code: "NoSuchKey"}, apperr.KindNotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, apperr.KindPermissionDenied},
		{"throttled", &smithy.GenericAPIError{Code: "SlowDown"}, apperr.KindTransient},
		{"bad ssml", &smithy.GenericAPIError{Code: "InvalidSsmlException"}, apperr.KindValidation},
		{"status 503", responseError(503), apperr.KindTransient},
		{"status 403", responseError(403), apperr.KindPermissionDenied},
		{"status 400", responseError(400), apperr.KindUnknown},
		{"wrapped code", fmt.Errorf("operation error: %w", &smithy.GenericAPIError{Code: "NotFound"}), apperr.KindNotFound},
		{"opaque", errors.New("boom"), apperr.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyAWS("op", tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.want, apperr.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.NoError(t, classifyAWS("op", nil))
}

func TestParseS3URI(t *testing.T) {
	bucket, key, err := ParseS3URI("s3://media/out/2024/video.mp4")
	require.NoError(t, err)
	assert.Equal(t, "media", bucket)
	assert.Equal(t, "out/2024/video.mp4", key)

	for _, bad := range []string{"https://media/x", "s3:///x", "media/x"} {
		_, _, err := ParseS3URI(bad)
		assert.Error(t, err, bad)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	}
}
