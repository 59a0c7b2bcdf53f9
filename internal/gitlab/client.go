package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/glsafe/glsafe/internal/models"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPerPage is the page size requested from listing endpoints.
	DefaultPerPage = 100

	// HeaderNextPage carries the next page number, empty on the last page.
	HeaderNextPage = "X-Next-Page"

	// HeaderPerPage carries the page size the server actually used.
	HeaderPerPage = "X-Per-Page"

	// HeaderRateRemaining is the remaining-quota header.
	HeaderRateRemaining = "RateLimit-Remaining"

	// HeaderRateReset is the quota reset timestamp header (Unix seconds).
	HeaderRateReset = "RateLimit-Reset"

	// HeaderRetryAfter is the retry-after header (seconds).
	HeaderRetryAfter = "Retry-After"
)

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues authenticated requests against a GitLab v4 REST API.
// It is stateless per call and safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient HTTPClient
	throttle   *Throttle
}

// NewClient creates a client for the given server, e.g. "https://gitlab.example.com".
// throttle may be nil to disable quota tracking.
func NewClient(server, token string, throttle *Throttle) *Client {
	return NewClientWithHTTP(server, token, throttle, &http.Client{Timeout: DefaultTimeout})
}

// NewClientWithHTTP creates a client with a custom HTTP client (for testing).
func NewClientWithHTTP(server, token string, throttle *Throttle, httpClient HTTPClient) *Client {
	return &Client{
		baseURL:    strings.TrimRight(server, "/") + "/api/v4",
		token:      token,
		httpClient: httpClient,
		throttle:   throttle,
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetJSON fetches a single resource and decodes the response body into v.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, v any) error {
	body, _, err := c.get(ctx, c.endpoint(path, query))
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// GetPage fetches one page of a listing endpoint. The returned Page carries
// the raw records plus the continuation state parsed from the pagination
// headers.
func (c *Client) GetPage(ctx context.Context, path string, query url.Values, page, perPage int) (models.Page, error) {
	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	body, header, err := c.get(ctx, c.endpoint(path, q))
	if err != nil {
		return models.Page{}, err
	}
	defer func() { _ = body.Close() }()

	var records []json.RawMessage
	if err := json.NewDecoder(body).Decode(&records); err != nil {
		return models.Page{}, fmt.Errorf("decoding %s page %d: %w", path, page, err)
	}

	p := models.Page{Records: records, PerPage: perPage}
	if next := header.Get(HeaderNextPage); next != "" {
		if n, err := strconv.Atoi(next); err == nil {
			p.NextPage = n
		}
	}
	if per := header.Get(HeaderPerPage); per != "" {
		if n, err := strconv.Atoi(per); err == nil {
			p.PerPage = n
		}
	}
	return p, nil
}

// Download streams a binary attachment. The caller owns the returned body.
// URLs may be absolute (attachment links resolved against a project web URL)
// or API-relative.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	target := rawURL
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(rawURL, "/")
	}
	body, _, err := c.get(ctx, target)
	return body, err
}

func (c *Client) endpoint(path string, query url.Values) string {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func (c *Client) get(ctx context.Context, target string) (io.ReadCloser, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("building request for %s: %w", target, err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	if c.throttle != nil {
		c.throttle.Update(resp.Header)
	}

	if err := checkResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, nil, err
	}
	return resp.Body, resp.Header, nil
}

// checkResponse maps non-success responses onto the error taxonomy. A 429
// becomes RateLimitError so callers can honor the server-indicated reset
// interval; quota headers on successful responses are the Throttle's concern.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{
			ResetAt: parseReset(resp.Header),
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := resp.Status
	var body struct {
		Message any `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil {
		if body.Message != nil {
			msg = fmt.Sprintf("%v", body.Message)
		} else if body.Error != "" {
			msg = body.Error
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    msg,
		URL:        resp.Request.URL.String(),
	}
}

func parseReset(header http.Header) time.Time {
	if retryAfter := header.Get(HeaderRetryAfter); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			return time.Now().Add(time.Duration(seconds) * time.Second)
		}
	}
	if reset := header.Get(HeaderRateReset); reset != "" {
		if unix, err := strconv.ParseInt(reset, 10, 64); err == nil {
			return time.Unix(unix, 0)
		}
	}
	return time.Now()
}
