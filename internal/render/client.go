// Package render talks to the external rendering service that turns
// diagram source into images. The service is treated as unreliable:
// callers decide how hard a failed fetch should fail.
package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"plantboard/api/internal/plantuml"
)

type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

type Client struct {
	baseURL string
	http    *http.Client
	cache   *Cache
}

// NewClient creates a render client. cache may be nil when Redis is not
// configured; fetches then always go to the upstream service.
func NewClient(baseURL string, timeout time.Duration, cache *Cache) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		cache:   cache,
	}
}

// ImageURL builds the public fetch URL for code in the given format.
func (c *Client) ImageURL(code string, format Format) (string, error) {
	encoded, err := plantuml.Encode(code)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return fmt.Sprintf("%s/%s/%s", c.baseURL, format, encoded), nil
}

// Fetch retrieves the rendered image bytes for code. The payload encoding
// is deterministic, so identical code hits the cache on repeat fetches.
func (c *Client) Fetch(ctx context.Context, code string, format Format) ([]byte, error) {
	imageURL, err := c.ImageURL(code, format)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if data, ok := c.cache.Get(ctx, format, imageURL); ok {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build render request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch render: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("render service returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read render response: %w", err)
	}

	if c.cache != nil {
		c.cache.Put(ctx, format, imageURL, data)
	}
	return data, nil
}
