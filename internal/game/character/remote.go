package character

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RemoteCatalog fetches templates on demand from a static catalog host laid
// out as {base}/characters/index.json and {base}/characters/{slug}.json.
// Fetched templates are cached for the life of the catalog.
type RemoteCatalog struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]*Character
}

// NewRemoteCatalog creates a catalog rooted at baseURL.
//
// Precondition: baseURL must be an absolute http(s) URL; logger must be non-nil.
// A nil client uses http.DefaultClient; timeout <= 0 uses 10s.
func NewRemoteCatalog(baseURL string, client *http.Client, timeout time.Duration, logger *zap.Logger) (*RemoteCatalog, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing catalog url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("catalog url %q must be http or https", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteCatalog{
		base:    u,
		client:  client,
		timeout: timeout,
		logger:  logger,
		cache:   make(map[string]*Character),
	}, nil
}

// Character implements Catalog.
//
// Postcondition: slugs failing ValidateSlug are rejected without a request.
func (r *RemoteCatalog) Character(ctx context.Context, slug string) (*Character, error) {
	if err := ValidateSlug(slug); err != nil {
		r.logger.Warn("rejecting character slug", zap.String("slug", slug), zap.Error(err))
		return nil, err
	}
	r.mu.Lock()
	if c, ok := r.cache[slug]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	var c Character
	status, err := r.getJSON(ctx, []string{"characters", slug + ".json"}, &c)
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCharacter, slug)
	}
	if err != nil {
		return nil, err
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		r.logger.Error("remote character failed validation", zap.String("slug", slug), zap.Error(err))
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[slug]; ok {
		return cached, nil
	}
	r.cache[slug] = &c
	r.logger.Debug("fetched character", zap.String("slug", slug), zap.Int("moves", len(c.Moves)))
	return &c, nil
}

// Available implements Catalog.
func (r *RemoteCatalog) Available(ctx context.Context) ([]string, error) {
	var slugs []string
	if _, err := r.getJSON(ctx, []string{"characters", "index.json"}, &slugs); err != nil {
		return nil, err
	}
	sort.Strings(slugs)
	return slugs, nil
}

func (r *RemoteCatalog) getJSON(ctx context.Context, elems []string, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	target := r.base.JoinPath(elems...)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("building request for %s: %w", target, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("fetching %s: unexpected status %d", target, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding %s: %w", target, err)
	}
	return resp.StatusCode, nil
}
