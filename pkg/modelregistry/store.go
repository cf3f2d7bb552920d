package modelregistry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
)

const (
	// DefaultTimeout is the default artifact fetch timeout
	DefaultTimeout = 30 * time.Second

	// MaxArtifactSize is the maximum artifact body size (10MB)
	MaxArtifactSize = 10 * 1024 * 1024
)

// ArtifactStore fetches serialized model artifacts by name
type ArtifactStore interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// HTTPStore fetches artifacts from the model store service over HTTP
type HTTPStore struct {
	baseURL string
	client  *http.Client
	logger  ectologger.Logger
}

// NewHTTPStore creates an HTTPStore against the given base URL
func NewHTTPStore(baseURL string, timeout time.Duration, logger ectologger.Logger) *HTTPStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPStore{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		logger: logger,
	}
}

// Fetch downloads the latest artifact for the named model
func (s *HTTPStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	url := fmt.Sprintf("%s/v1/models/%s/artifact", s.baseURL, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, sageerrors.NewModelLoad(name, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("model store request failed for %s", name)
		return nil, sageerrors.NewTransientIO(err, "model store request failed for %q", name)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, sageerrors.NewModelNotFound(name)
	case resp.StatusCode >= 500:
		return nil, sageerrors.NewTransientIO(nil, "model store returned %d for %q", resp.StatusCode, name)
	case resp.StatusCode != http.StatusOK:
		return nil, sageerrors.NewModelLoad(name, fmt.Errorf("model store returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxArtifactSize+1))
	if err != nil {
		return nil, sageerrors.NewTransientIO(err, "failed to read artifact for %q", name)
	}
	if len(body) > MaxArtifactSize {
		return nil, sageerrors.NewModelLoad(name, fmt.Errorf("artifact too large: %d bytes (max %d)", len(body), MaxArtifactSize))
	}

	return body, nil
}
