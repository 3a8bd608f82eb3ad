// Package cms reads published content from the headless CMS and turns it
// into the custom search index.
package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrStatus is returned when the CMS answers with a non-2xx status.
var ErrStatus = errors.New("cms: unexpected status")

// maxResponseBytes bounds a single collection response.
const maxResponseBytes = 32 << 20

// Item is one CMS entry as decoded from JSON.
type Item map[string]any

// Fetcher lists the published items of a collection.
type Fetcher interface {
	Items(ctx context.Context, collection string, fields []string) ([]Item, error)
}

// Client talks to the CMS REST API: GET {base}/items/{collection}.
type Client struct {
	base   string
	token  string
	client *http.Client
}

// NewClient returns a client for base. timeout <= 0 leaves the HTTP client
// without a deadline; callers then bound requests with ctx.
func NewClient(base, token string, timeout time.Duration) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.client = hc
	}
	return c
}

type itemsEnvelope struct {
	Data []Item `json:"data"`
}

// Items fetches every published item of collection, restricted to fields
// when given.
func (c *Client) Items(ctx context.Context, collection string, fields []string) ([]Item, error) {
	ctx, span := otel.Tracer("cms").Start(ctx, "cms/Items")
	defer span.End()
	span.SetAttributes(attribute.String("cms.collection", collection))

	q := url.Values{}
	q.Set("limit", "-1")
	q.Set("filter[status][_eq]", "published")
	if len(fields) > 0 {
		q.Set("fields", strings.Join(fields, ","))
	}
	endpoint := c.base + "/items/" + url.PathEscape(collection) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("cms %s: build request: %w", collection, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("cms %s: %w", collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("%w: %s: %s", ErrStatus, collection, resp.Status)
		span.RecordError(err)
		return nil, err
	}

	var env itemsEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env); err != nil {
		return nil, fmt.Errorf("cms %s: decode: %w", collection, err)
	}
	span.SetAttributes(attribute.Int("cms.items", len(env.Data)))
	return env.Data, nil
}
