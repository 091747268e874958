package trendyol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BearBump/DelayBoard/internal/integrations/marketplace"
	"github.com/BearBump/DelayBoard/internal/normalizer"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Client struct {
	baseURL  string
	sellerID string
	username string
	password string
	httpc    *http.Client
}

func New(baseURL, sellerID, username, password string) *Client {
	if baseURL == "" {
		baseURL = "https://apigw.trendyol.com"
	}
	return &Client{
		baseURL:  baseURL,
		sellerID: sellerID,
		username: username,
		password: password,
		httpc: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type pageResp struct {
	Content []any `json:"content"`
}

func (c *Client) ListPage(ctx context.Context, q marketplace.PageQuery) ([]normalizer.RawRecord, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	u.Path = fmt.Sprintf("/integration/order/sellers/%s/orders", url.PathEscape(c.sellerID))

	params := u.Query()
	params.Set("status", string(q.Status))
	params.Set("startDate", strconv.FormatInt(q.Start.UnixMilli(), 10))
	params.Set("endDate", strconv.FormatInt(q.End.UnixMilli(), 10))
	params.Set("orderByField", "PackageLastModifiedDate")
	params.Set("orderByDirection", "DESC")
	params.Set("size", strconv.Itoa(q.Size))
	params.Set("page", strconv.Itoa(q.Page))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("User-Agent", c.sellerID+" - SelfIntegration")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("trendyol http %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var pr pageResp
	if err := dec.Decode(&pr); err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	out := make([]normalizer.RawRecord, 0, len(pr.Content))
	for _, rec := range pr.Content {
		out = append(out, rec)
	}
	return out, nil
}
