package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ossamaweb/auto-vid/internal/apperr"
	"github.com/ossamaweb/auto-vid/internal/client"
	"github.com/ossamaweb/auto-vid/internal/config"
)

// Delivery describes where a rendered file ended up.
type Delivery struct {
	StorageURI string
	URL        string
	ExpiresAt  *time.Time
	Size       int64
}

// Uploader delivers a rendered file to its destination.
type Uploader interface {
	Deliver(ctx context.Context, localPath, destination, filename string) (*Delivery, error)
}

// UploadService delivers to s3://bucket/prefix/ destinations through the
// object store, or copies into a local directory.
type UploadService struct {
	store       client.ObjectStore
	defaultDest string
	presignTTL  time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

func NewUploadService(store client.ObjectStore, cfg *config.StorageConfig, log zerolog.Logger) *UploadService {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &UploadService{
		store:       store,
		defaultDest: cfg.OutputDestination,
		presignTTL:  ttl,
		now:         time.Now,
		log:         log.With().Str("component", "upload").Logger(),
	}
}

// OutputFilename appends .mp4 unless the name already ends with it.
func OutputFilename(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".mp4") {
		return name
	}
	return name + ".mp4"
}

// Deliver uploads localPath as filename under destination. An empty
// destination falls back to the configured default.
func (s *UploadService) Deliver(ctx context.Context, localPath, destination, filename string) (*Delivery, error) {
	if destination == "" {
		destination = s.defaultDest
	}
	if destination == "" {
		return nil, apperr.Errorf(apperr.KindValidation, "deliver", "no output destination configured")
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, classifyFS("deliver", err)
	}
	filename = OutputFilename(filename)

	var d *Delivery
	if strings.HasPrefix(destination, "s3://") {
		d, err = s.deliverObject(ctx, localPath, destination, filename)
	} else {
		d, err = s.deliverLocal(localPath, destination, filename)
	}
	if err != nil {
		return nil, err
	}
	d.Size = info.Size()
	s.log.Info().Str("uri", d.StorageURI).Int64("size", d.Size).Msg("output delivered")
	return d, nil
}

func (s *UploadService) deliverObject(ctx context.Context, localPath, destination, filename string) (*Delivery, error) {
	if s.store == nil {
		return nil, apperr.Errorf(apperr.KindValidation, "deliver", "no object store configured for %s", destination)
	}
	bucket, prefix, err := client.ParseS3URI(destination)
	if err != nil {
		return nil, err
	}
	target := fmt.Sprintf("s3://%s/%s", bucket, path.Join(prefix, filename))

	uri, err := s.store.PutFile(ctx, localPath, target, "video/mp4")
	if err != nil {
		return nil, err
	}
	url, err := s.store.Presign(ctx, uri, s.presignTTL)
	if err != nil {
		return nil, err
	}
	expires := s.now().UTC().Add(s.presignTTL)
	return &Delivery{StorageURI: uri, URL: url, ExpiresAt: &expires}, nil
}

func (s *UploadService) deliverLocal(localPath, destination, filename string) (*Delivery, error) {
	dir, err := filepath.Abs(strings.TrimPrefix(destination, "file://"))
	if err != nil {
		return nil, apperr.Validation("deliver", err)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return nil, classifyFS("deliver", err)
	}
	defer src.Close()

	target := filepath.Join(dir, filename)
	if err := writeFile(target, src); err != nil {
		return nil, classifyFS("deliver", err)
	}
	return &Delivery{StorageURI: target, URL: "file://" + target}, nil
}
