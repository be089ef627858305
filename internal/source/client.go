package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oshokin/patchline-watcher/internal/config"
	domain "github.com/oshokin/patchline-watcher/internal/domain/patchline"
	"github.com/oshokin/patchline-watcher/internal/logger"
	"github.com/oshokin/patchline-watcher/internal/version"
)

// maxDocumentSize caps the configuration document read into memory.
const maxDocumentSize = 8 << 20

var (
	// ErrConfigFetch wraps every failure to obtain a usable region list.
	ErrConfigFetch = errors.New("config fetch failed")
	// errBadHTTPStatus is returned for non-200 responses.
	errBadHTTPStatus = errors.New("unexpected http status")
	// errMissingNamespace is returned when the document lacks the namespace key.
	errMissingNamespace = errors.New("namespace missing from document")
	// errMissingPlatform is returned when the namespace lacks the platform entry.
	errMissingPlatform = errors.New("platform missing from namespace")
)

// Client reads region configurations from the configuration endpoint.
type Client struct {
	// httpClient performs the request.
	httpClient *http.Client
	// url is the configuration endpoint.
	url string
	// namespace is the document key holding the patchline.
	namespace string
	// platform selects the platform entry of the patchline.
	platform string
	// timeout bounds the whole request including the body read.
	timeout time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient creates a client from the watcher configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		url:        cfg.SourceURL,
		namespace:  cfg.Namespace,
		platform:   cfg.Platform,
		timeout:    cfg.FetchTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// document mirrors the part of the configuration document the watcher reads.
type document map[string]struct {
	Platforms map[string]*struct {
		Configurations []regionEntry `json:"configurations"`
	} `json:"platforms"`
}

// regionEntry is one configuration as sent by the endpoint.
type regionEntry struct {
	PatchURL    string `json:"patch_url"`
	ValidShards struct {
		Live []json.RawMessage `json:"live"`
	} `json:"valid_shards"`
}

// Fetch returns the region configurations in document order. Entries that
// cannot be processed are dropped with a warning; everything else that goes
// wrong is reported as ErrConfigFetch.
func (c *Client) Fetch(ctx context.Context) ([]domain.RegionConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigFetch, err)
	}

	regions, err := c.decode(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigFetch, err)
	}

	return regions, nil
}

// get downloads the configuration document.
func (c *Client) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s, %s: %w", c.url, response.Status, errBadHTTPStatus)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

// decode extracts the platform configurations from the document.
func (c *Client) decode(ctx context.Context, body []byte) ([]domain.RegionConfig, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	patchline, ok := doc[c.namespace]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errMissingNamespace, c.namespace)
	}

	platform, ok := patchline.Platforms[c.platform]
	if !ok || platform == nil {
		return nil, fmt.Errorf("%w: %s", errMissingPlatform, c.platform)
	}

	regions := make([]domain.RegionConfig, 0, len(platform.Configurations))

	for i, entry := range platform.Configurations {
		region := domain.RegionConfig{
			PatchURL: entry.PatchURL,
			Shards:   make([]string, 0, len(entry.ValidShards.Live)),
		}

		for _, shard := range entry.ValidShards.Live {
			region.Shards = append(region.Shards, shardString(shard))
		}

		if err := region.Validate(); err != nil {
			logger.WarnKV(ctx, "Skipping region configuration", "index", i, "error", err)
			continue
		}

		regions = append(regions, region)
	}

	return regions, nil
}

// shardString coerces a shard identifier to a plain string. Strings are
// unquoted; numbers and other literals keep their JSON text.
func shardString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	return string(bytes.TrimSpace(raw))
}
