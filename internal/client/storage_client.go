package client

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ossamaweb/auto-vid/internal/apperr"
	"github.com/ossamaweb/auto-vid/internal/config"
)

// ObjectStore defines the object storage operations used by the pipeline.
// Locations are s3://bucket/key URIs.
type ObjectStore interface {
	Get(ctx context.Context, uri string) (io.ReadCloser, error)
	PutFile(ctx context.Context, path, uri, contentType string) (string, error)
	Presign(ctx context.Context, uri string, ttl time.Duration) (string, error)
}

// S3Client implements ObjectStore for S3 and S3-compatible stores.
type S3Client struct {
	s3Client  *s3.Client
	presigner *s3.PresignClient
}

// NewS3Client creates a new S3 storage client
func NewS3Client(ctx context.Context, cfg *config.StorageConfig) (*S3Client, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{
		s3Client:  s3Client,
		presigner: s3.NewPresignClient(s3Client),
	}, nil
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", apperr.Errorf(apperr.KindValidation, "parse s3 uri", "invalid s3 uri %q", uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// Get opens the object for reading.
func (c *S3Client) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyAWS("s3 get "+uri, err)
	}
	return out.Body, nil
}

// PutFile uploads a local file and returns the object URI.
func (c *S3Client) PutFile(ctx context.Context, path, uri, contentType string) (string, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", classifyAWS("s3 put "+uri, err)
	}
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

// Presign generates a presigned GET URL for temporary access
func (c *S3Client) Presign(ctx context.Context, uri string, ttl time.Duration) (string, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return "", err
	}
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", classifyAWS("s3 presign "+uri, err)
	}
	return req.URL, nil
}
