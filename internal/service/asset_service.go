package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ossamaweb/auto-vid/internal/apperr"
	"github.com/ossamaweb/auto-vid/internal/client"
	"github.com/ossamaweb/auto-vid/internal/config"
	"github.com/ossamaweb/auto-vid/internal/metrics"
)

const fallbackFilename = "downloaded_file"

// AssetFetcher resolves a source reference to a file inside workDir.
type AssetFetcher interface {
	Fetch(ctx context.Context, source, workDir string) (string, error)
}

// AssetService fetches s3:// objects, http(s) URLs and local paths. Remote
// sources are retried on transient failure; local copies are not.
type AssetService struct {
	store    client.ObjectStore
	http     *http.Client
	attempts int
	wait     backoff
	log      zerolog.Logger
}

// NewAssetService creates a fetcher. store may be nil when no s3:// sources
// are expected.
func NewAssetService(store client.ObjectStore, cfg config.RetryConfig, log zerolog.Logger) *AssetService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	base := cfg.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	return &AssetService{
		store:    store,
		http:     &http.Client{Timeout: timeout},
		attempts: attempts,
		wait:     exponential(base),
		log:      log.With().Str("component", "fetcher").Logger(),
	}
}

func sourceScheme(source string) string {
	u, err := url.Parse(source)
	if err != nil {
		return "file"
	}
	switch strings.ToLower(u.Scheme) {
	case "s3":
		return "s3"
	case "http", "https":
		return "http"
	default:
		return "file"
	}
}

func (s *AssetService) Fetch(ctx context.Context, source, workDir string) (string, error) {
	scheme := sourceScheme(source)
	if scheme == "file" {
		dest, err := s.copyLocal(source, workDir)
		metrics.FetchAttempt(scheme, result(err))
		return dest, err
	}

	dest := filepath.Join(workDir, remoteFilename(source))
	err := retry(ctx, s.attempts, s.wait, func(attempt int) error {
		var err error
		if scheme == "s3" {
			err = s.fetchObject(ctx, source, dest)
		} else {
			err = s.fetchHTTP(ctx, source, dest)
		}
		metrics.FetchAttempt(scheme, result(err))
		if err != nil {
			s.log.Warn().Err(err).Str("source", source).Int("attempt", attempt).
				Str("kind", apperr.KindOf(err).String()).Msg("fetch attempt failed")
		}
		return err
	})
	if err != nil {
		return "", err
	}
	s.log.Debug().Str("source", source).Str("path", dest).Msg("asset fetched")
	return dest, nil
}

func (s *AssetService) fetchObject(ctx context.Context, source, dest string) error {
	if s.store == nil {
		return apperr.Errorf(apperr.KindValidation, "fetch", "no object store configured for %s", source)
	}
	body, err := s.store.Get(ctx, source)
	if err != nil {
		return err
	}
	defer body.Close()
	return streamError("fetch", writeFile(dest, body))
}

func (s *AssetService) fetchHTTP(ctx context.Context, source, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return apperr.Validation("fetch", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return apperr.E(apperr.ClassifyNet(err), "fetch", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return apperr.Errorf(apperr.ClassifyHTTPStatus(resp.StatusCode), "fetch", "GET %s: status %d", source, resp.StatusCode)
	}
	return streamError("fetch", writeFile(dest, resp.Body))
}

func (s *AssetService) copyLocal(source, workDir string) (string, error) {
	src := strings.TrimPrefix(source, "file://")
	f, err := os.Open(src)
	if err != nil {
		return "", classifyFS("fetch", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", classifyFS("fetch", err)
	}
	if info.IsDir() {
		return "", apperr.Errorf(apperr.KindValidation, "fetch", "%s is a directory", src)
	}
	dest := filepath.Join(workDir, filepath.Base(src))
	if err := writeFile(dest, f); err != nil {
		return "", err
	}
	return dest, nil
}

// remoteFilename is the last path element of a URL or s3 key.
func remoteFilename(source string) string {
	u, err := url.Parse(source)
	if err != nil {
		return fallbackFilename
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return fallbackFilename
	}
	return name
}

func writeFile(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return f.Close()
}

// streamError marks a failure while copying a remote body as transient when
// the connection dropped mid-stream. Local write errors keep their kind.
func streamError(op string, err error) error {
	if err != nil && apperr.ClassifyNet(err) == apperr.KindTransient {
		return apperr.E(apperr.KindTransient, op, err)
	}
	return err
}

func classifyFS(op string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return apperr.NotFound(op, err)
	case errors.Is(err, fs.ErrPermission):
		return apperr.PermissionDenied(op, err)
	default:
		return apperr.E(apperr.KindUnknown, op, err)
	}
}

func result(err error) string {
	if err == nil {
		return "success"
	}
	return apperr.KindOf(err).String()
}
