package hamurlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	searchPath    = "/api/order/v2/search/"
	timeLayout    = "2006-01-02 15:04:05"
	defaultWindow = 30 * 24 * time.Hour
)

type Client struct {
	baseURL   string
	username  string
	password  string
	companyID string
	window    time.Duration
	now       func() time.Time
	httpc     *http.Client
}

func New(baseURL, username, password, companyID string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9100"
	}
	if companyID == "" {
		companyID = "1"
	}
	return &Client{
		baseURL:   baseURL,
		username:  username,
		password:  password,
		companyID: companyID,
		window:    defaultWindow,
		now:       time.Now,
		httpc: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// WithWindow sets how far back the service searches by last update time.
func (c *Client) WithWindow(window time.Duration) *Client {
	if window > 0 {
		c.window = window
	}
	return c
}

func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpc.Timeout = timeout
	}
	return c
}

type searchRequest struct {
	CompanyID      string   `json:"company_id"`
	UpdatedAtStart string   `json:"updated_at__start"`
	UpdatedAtEnd   string   `json:"updated_at__end"`
	Size           int      `json:"size"`
	Start          int      `json:"start"`
	ShopID         string   `json:"shop_id"`
	TrackerCode    string   `json:"tracker_code"`
	OrderTypes     []string `json:"order_types"`
}

func (c *Client) WarehouseCode(ctx context.Context, trackerCode string) (string, error) {
	if trackerCode == "" {
		return "", nil
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parse base url")
	}
	u.Path = searchPath

	now := c.now()
	body, err := json.Marshal(searchRequest{
		CompanyID:      c.companyID,
		UpdatedAtStart: now.Add(-c.window).Format(timeLayout),
		UpdatedAtEnd:   now.Format(timeLayout),
		Size:           1,
		Start:          0,
		ShopID:         "",
		TrackerCode:    trackerCode,
		OrderTypes:     []string{"selling"},
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal search request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("hamurlabs http %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return "", errors.Wrap(err, "decode")
	}

	return extractCode(payload, trackerCode), nil
}

// codeExtractor reads the warehouse code from one known response shape. It
// reports false when the shape does not apply.
type codeExtractor func(payload any, trackerCode string) (string, bool)

var codeExtractors = []codeExtractor{
	topLevelCode,
	dataObjectCode,
	dataListCode,
	listCode,
}

func extractCode(payload any, trackerCode string) string {
	for _, ex := range codeExtractors {
		if code, ok := ex(payload, trackerCode); ok {
			return code
		}
	}
	return ""
}

func codeOf(m map[string]any) (string, bool) {
	v, ok := m["warehouse_code"]
	if !ok {
		return "", false
	}
	return scalar(v), true
}

func topLevelCode(payload any, _ string) (string, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}
	return codeOf(m)
}

func dataObjectCode(payload any, _ string) (string, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}
	data, ok := m["data"].(map[string]any)
	if !ok {
		return "", false
	}
	return codeOf(data)
}

func dataListCode(payload any, _ string) (string, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}
	list, ok := m["data"].([]any)
	if !ok {
		return "", false
	}
	if len(list) == 0 {
		// An empty result list is a definitive "not found".
		return "", true
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		return "", false
	}
	return codeOf(first)
}

func listCode(payload any, trackerCode string) (string, bool) {
	list, ok := payload.([]any)
	if !ok || len(list) == 0 {
		return "", false
	}
	for _, it := range list {
		m, ok := it.(map[string]any)
		if ok && scalar(m["tracker_code"]) == trackerCode {
			if code, ok := codeOf(m); ok {
				return code, true
			}
		}
	}
	if first, ok := list[0].(map[string]any); ok {
		return codeOf(first)
	}
	return "", false
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
