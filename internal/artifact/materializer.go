// Package artifact turns a provider result reference into a durable one:
// download the binary, then either upload it to remote object storage or copy
// it into the local output directory.
package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"renderworker/internal/domain"
	"renderworker/internal/infra"
	"renderworker/internal/storage"
)

// Uploader pushes a local file to remote object storage and returns the
// public URL of the stored object.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string, public bool) (string, error)
}

// Options configures a Materializer.
type Options struct {
	HTTPClient *http.Client
	// Store receives artifacts that are not uploaded remotely.
	Store *storage.FileStore
	// Uploader may be nil when no object storage is configured.
	Uploader Uploader
	// CDNBaseURL overrides the uploader-reported URL when set.
	CDNBaseURL string
	Logger     infra.Logger
}

// Materializer implements fetch-then-persist with scoped temp files.
type Materializer struct {
	httpClient *http.Client
	store      *storage.FileStore
	uploader   Uploader
	cdnBaseURL string
	logger     infra.Logger
}

func NewMaterializer(opts Options) *Materializer {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Materializer{
		httpClient: httpClient,
		store:      opts.Store,
		uploader:   opts.Uploader,
		cdnBaseURL: strings.TrimRight(opts.CDNBaseURL, "/"),
		logger:     opts.Logger,
	}
}

// Fetch downloads the artifact behind rawURL into a temp file and returns
// its path. The caller owns the file and must remove it regardless of what
// happens afterwards.
func (m *Materializer) Fetch(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" {
		return "", fmt.Errorf("artifact: invalid url %q: %w", rawURL, domain.ErrArtifactDownload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", fmt.Errorf("artifact: build download request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("artifact: download: %v: %w", err, domain.ErrArtifactDownload)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("artifact: download status %d: %w", resp.StatusCode, domain.ErrArtifactDownload)
	}

	tmp, err := os.CreateTemp("", "artifact-"+uuid.NewString()+"-*")
	if err != nil {
		return "", fmt.Errorf("artifact: create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("artifact: write temp file: %v: %w", err, domain.ErrArtifactDownload)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("artifact: close temp file: %w", err)
	}
	m.logger.Debug().Str("url", rawURL).Str("path", tmp.Name()).Msg("artifact: downloaded")
	return tmp.Name(), nil
}

// Persist stores the downloaded file under key and returns the stable
// artifact reference: a CDN/object-store URL when remote is requested, an
// absolute local path otherwise.
func (m *Materializer) Persist(ctx context.Context, localPath, key string, remote bool) (string, error) {
	if remote {
		if m.uploader == nil {
			return "", fmt.Errorf("artifact: remote upload requested but no object storage configured: %w", domain.ErrArtifactUpload)
		}
		storedURL, err := m.uploader.Upload(ctx, localPath, key, true)
		if err != nil {
			return "", fmt.Errorf("artifact: upload %q: %v: %w", key, err, domain.ErrArtifactUpload)
		}
		if m.cdnBaseURL != "" {
			return m.cdnBaseURL + "/" + strings.TrimLeft(key, "/"), nil
		}
		return storedURL, nil
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("artifact: read downloaded file: %w", err)
	}
	finalPath, err := m.store.Write(ctx, key, data)
	if err != nil {
		return "", fmt.Errorf("artifact: store locally: %w", err)
	}
	return finalPath, nil
}
