package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/smithy-go"

	"github.com/ossamaweb/auto-vid/internal/apperr"
)

// loadAWSConfig builds an SDK config. Static keys are used when given,
// otherwise the default credential chain applies.
func loadAWSConfig(ctx context.Context, region, accessKeyID, secretAccessKey string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

var awsErrorKinds = map[string]apperr.Kind{
	"NoSuchKey":                                 apperr.KindNotFound,
	"NoSuchBucket":                              apperr.KindNotFound,
	"NotFound":                                  apperr.KindNotFound,
	"LexiconNotFoundException":                  apperr.KindNotFound,
	"AccessDenied":                              apperr.KindPermissionDenied,
	"AccessDeniedException":                     apperr.KindPermissionDenied,
	"Forbidden":                                 apperr.KindPermissionDenied,
	"InvalidAccessKeyId":                        apperr.KindPermissionDenied,
	"SignatureDoesNotMatch":                     apperr.KindPermissionDenied,
	"ExpiredToken":                              apperr.KindPermissionDenied,
	"UnrecognizedClientException":               apperr.KindPermissionDenied,
	"SlowDown":                                  apperr.KindTransient,
	"Throttling":                                apperr.KindTransient,
	"ThrottlingException":                       apperr.KindTransient,
	"RequestTimeout":                            apperr.KindTransient,
	"InternalError":                             apperr.KindTransient,
	"ServiceUnavailable":                        apperr.KindTransient,
	"ServiceFailureException":                   apperr.KindTransient,
	"TextLengthExceededException":               apperr.KindValidation,
	"InvalidSsmlException":                      apperr.KindValidation,
	"LanguageNotSupportedException":             apperr.KindValidation,
	"EngineNotSupportedException":               apperr.KindValidation,
	"SsmlMarksNotSupportedForTextTypeException": apperr.KindValidation,
}

// classifyAWS wraps an SDK error with its kind. API error codes win over the
// HTTP status, which wins over transport-level classification.
func classifyAWS(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := awsErrorKinds[apiErr.ErrorCode()]; ok {
			return apperr.E(kind, op, err)
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return apperr.E(apperr.ClassifyHTTPStatus(respErr.HTTPStatusCode()), op, err)
	}
	return apperr.E(apperr.ClassifyNet(err), op, err)
}
