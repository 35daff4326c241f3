package resthttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/TrackSync/internal/models"
	"github.com/BearBump/TrackSync/internal/services/deliveries"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
)

// Client talks to the deliveries REST backend:
//
//	GET {base}/deliveries?query=&status=<csv>&courier=&mine=&from=&to=
//	GET {base}/deliveries/{id}
type Client struct {
	baseURL string
	httpc   *http.Client
	clk     clockwork.Clock
}

func New(baseURL string, timeout time.Duration, clk clockwork.Clock) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpc: &http.Client{
			Timeout: timeout,
		},
		clk: clk,
	}
}

func (c *Client) endpoint(elem ...string) (*url.URL, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	return u.JoinPath(append([]string{"deliveries"}, elem...)...), nil
}

func (c *Client) ListDeliveries(ctx context.Context, spec models.FilterSpec) ([]*models.Delivery, error) {
	u, err := c.endpoint()
	if err != nil {
		return nil, err
	}
	u.RawQuery = spec.Values().Encode()

	var body any
	found, err := c.getJSON(ctx, u, &body)
	if err != nil {
		return nil, err
	}
	out := []*models.Delivery{}
	if !found {
		return out, nil
	}

	now := c.clk.Now().UTC()
	for _, item := range listItems(body) {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if d := deliveries.Normalize(raw, now); d != nil {
			out = append(out, d)
		}
	}
	return out, nil
}

// listItems accepts a bare array or an object wrapping it under "items" or "deliveries".
func listItems(body any) []any {
	switch v := body.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range []string{"items", "deliveries"} {
			if items, ok := v[key].([]any); ok {
				return items
			}
		}
	}
	return nil
}

func (c *Client) GetDelivery(ctx context.Context, id string) (*models.Delivery, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	u, err := c.endpoint(id)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	found, err := c.getJSON(ctx, u, &raw)
	if err != nil || !found || raw == nil {
		return nil, err
	}
	d := deliveries.Normalize(raw, c.clk.Now().UTC())
	if d.ID == "" {
		d.ID = id
	}
	return d, nil
}

// getJSON decodes a 2xx body into dst. A 404 reports found=false without an error.
func (c *Client) getJSON(ctx context.Context, u *url.URL, dst any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode/100 != 2 {
		return false, fmt.Errorf("backend http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return false, errors.Wrap(err, "decode")
	}
	return true, nil
}
