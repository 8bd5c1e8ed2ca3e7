// Package remoteapi implements the HTTP clients for the remote price,
// resource, and statistic endpoints, grounded on the teacher's plain
// net/http.Client + context.Context + encoding/json fetch idiom.
package remoteapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/guimove/autoscaler/internal/model"
)

// Sentinel errors wrapped (with %w) around any request failure so
// callers can distinguish network failure from a non-2xx response.
var (
	ErrUnreachable      = errors.New("remote api unreachable")
	ErrNonSuccessStatus = errors.New("remote api returned a non-success status")
)

// Client is the shared HTTP fetch/mutate helper for all three remote
// resources: price, resource, and statistic.
type Client struct {
	host       string
	token      string
	httpClient *http.Client
}

// New returns a Client bound to host, passing token as a query
// parameter on every /api/resource and /api/statistic call, bounding every call that doesn't already carry a deadline to
// timeout.
func New(host, token string, timeout time.Duration) *Client {
	return &Client{
		host:       host,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) withToken(path string) string {
	u, err := url.Parse(c.host + path)
	if err != nil {
		return c.host + path
	}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, fullURL string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, fullURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s returned %d", ErrNonSuccessStatus, method, fullURL, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PriceClient lists offered pod sizes.
type PriceClient struct{ c *Client }

func NewPriceClient(c *Client) PriceClient { return PriceClient{c: c} }

// List fetches the full price catalogue.
func (pc PriceClient) List(ctx context.Context) ([]model.Price, error) {
	var prices []model.Price
	err := pc.c.do(ctx, http.MethodGet, pc.c.host+"/api/price", nil, &prices)
	return prices, err
}

// Grouped fetches the price catalogue partitioned by resource type.
func (pc PriceClient) Grouped(ctx context.Context) (map[model.ResourceType][]model.Price, error) {
	prices, err := pc.List(ctx)
	if err != nil {
		return nil, err
	}
	grouped := make(map[model.ResourceType][]model.Price)
	for _, p := range prices {
		grouped[p.Type] = append(grouped[p.Type], p)
	}
	return grouped, nil
}

// ResourceClient lists, creates, resizes, and destroys fleet pods.
type ResourceClient struct{ c *Client }

func NewResourceClient(c *Client) ResourceClient { return ResourceClient{c: c} }

// List fetches the current fleet.
func (rc ResourceClient) List(ctx context.Context) ([]model.Resource, error) {
	var resources []model.Resource
	err := rc.c.do(ctx, http.MethodGet, rc.c.withToken("/api/resource"), nil, &resources)
	return resources, err
}

// Create provisions a new pod of the given shape.
func (rc ResourceClient) Create(ctx context.Context, desired model.PostResource) error {
	return rc.c.do(ctx, http.MethodPost, rc.c.withToken("/api/resource"), desired, nil)
}

// Update resizes an existing pod.
func (rc ResourceClient) Update(ctx context.Context, id int, desired model.PostResource) error {
	return rc.c.do(ctx, http.MethodPut, rc.c.withToken(fmt.Sprintf("/api/resource/%d", id)), desired, nil)
}

// Delete destroys a pod.
func (rc ResourceClient) Delete(ctx context.Context, id int) error {
	return rc.c.do(ctx, http.MethodDelete, rc.c.withToken(fmt.Sprintf("/api/resource/%d", id)), nil, nil)
}

// StatClient samples the aggregate usage statistic.
type StatClient struct{ c *Client }

func NewStatClient(c *Client) StatClient { return StatClient{c: c} }

// Get fetches the latest aggregate statistic. Unlike PriceClient and
// ResourceClient, a failed stat fetch is not fatal to the tick: the
// error is returned for the caller to log, but the scheduler treats it
// as "no stat this tick," never as a tick-level failure, matching the
// original's non-raising stats client (see DESIGN.md / SPEC_FULL.md
// "Supplemented features").
func (sc StatClient) Get(ctx context.Context) (*model.Stat, error) {
	var stat model.Stat
	if err := sc.c.do(ctx, http.MethodGet, sc.c.withToken("/api/statistic"), nil, &stat); err != nil {
		return nil, err
	}
	return &stat, nil
}
