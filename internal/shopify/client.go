package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"commerce-sync/internal/models"
	"commerce-sync/internal/util"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIVersion = "2023-10"
	DefaultPageSize   = 250
	// MaxPages bounds a single paginated fetch. Reaching it with a next cursor is a silent under-fetch.
	MaxPages = 10

	accessTokenHeader = "X-Shopify-Access-Token"
	userAgent         = "commerce-sync/1.0"
	maxErrorDetailLen = 256
)

// Config holds the client settings shared by every tenant
type Config struct {
	APIVersion     string
	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	MaxRetries     int
	RetryBaseDelay time.Duration
	// BaseURL overrides https://{domain}/admin/api/{version}. Used against local mocks.
	BaseURL    string
	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 1
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 1
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	return c
}

// APIError is returned for non-2xx responses from the storefront API
type APIError struct {
	Endpoint   string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("failed to fetch %s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Detail)
}

// Client talks to the storefront API on behalf of one tenant
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewClient creates a client for the tenant with its own rate limiter
func NewClient(tenant *models.Tenant, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return newClient(tenant, cfg, newLimiter(cfg))
}

func newClient(tenant *models.Tenant, cfg Config, limiter *rate.Limiter) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s/admin/api/%s", tenant.NormalizedDomain(), cfg.APIVersion)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      tenant.AccessToken,
		httpClient: httpClient,
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryBaseDelay,
		logger:     util.GetLogger().With(zap.String("tenant_id", tenant.ID)),
	}
}

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.RateLimitRPS <= 0 {
		return rate.NewLimiter(rate.Inf, cfg.RateLimitBurst)
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
}

// BaseURL returns the API root the client sends requests to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Factory hands out clients that share one rate limiter per tenant
type Factory struct {
	cfg Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFactory creates a client factory
func NewFactory(cfg Config) *Factory {
	return &Factory{
		cfg:      cfg.withDefaults(),
		limiters: make(map[string]*rate.Limiter),
	}
}

// ForTenant returns a client bound to the tenant's credentials
func (f *Factory) ForTenant(tenant *models.Tenant) *Client {
	f.mu.Lock()
	limiter, ok := f.limiters[tenant.ID]
	if !ok {
		limiter = newLimiter(f.cfg)
		f.limiters[tenant.ID] = limiter
	}
	f.mu.Unlock()

	return newClient(tenant, f.cfg, limiter)
}

// FetchCustomers fetches every customer of the store
func (c *Client) FetchCustomers(ctx context.Context) ([]json.RawMessage, error) {
	return c.FetchPaginated(ctx, "/customers.json", "customers", DefaultPageSize, nil)
}

// FetchOrders fetches every order regardless of status
func (c *Client) FetchOrders(ctx context.Context) ([]json.RawMessage, error) {
	return c.FetchPaginated(ctx, "/orders.json", "orders", DefaultPageSize, map[string]string{"status": "any"})
}

// FetchProducts fetches every product of the store
func (c *Client) FetchProducts(ctx context.Context) ([]json.RawMessage, error) {
	return c.FetchPaginated(ctx, "/products.json", "products", DefaultPageSize, nil)
}

// FetchShop fetches the store profile. It doubles as a credentials check.
func (c *Client) FetchShop(ctx context.Context) (*Shop, error) {
	ctx, span := util.StartSpan(ctx, "shopify.FetchShop")
	defer span.End()

	body, _, err := c.getPage(ctx, "/shop.json", nil)
	if err != nil {
		util.RecordSpanError(span, err)
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, errors.New("failed to fetch /shop.json: response body is not valid JSON")
	}
	raw := gjson.GetBytes(body, "shop")
	if !raw.IsObject() {
		return nil, errors.New("failed to fetch /shop.json: response has no shop")
	}

	var shop Shop
	if err := json.Unmarshal([]byte(raw.Raw), &shop); err != nil {
		return nil, fmt.Errorf("failed to decode shop: %w", err)
	}
	return &shop, nil
}

// FetchPaginated walks the cursor pagination of endpoint and returns the concatenated items
// nested under key. Filters are sent with the first page only; cursor pages carry page_info
// alone. Any failed page fails the whole fetch.
func (c *Client) FetchPaginated(ctx context.Context, endpoint, key string, limit int, filters map[string]string) ([]json.RawMessage, error) {
	ctx, span := util.StartSpan(ctx, "shopify.FetchPaginated")
	defer span.End()

	if limit <= 0 {
		limit = DefaultPageSize
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	for k, v := range filters {
		params.Set(k, v)
	}

	all := make([]json.RawMessage, 0)
	for page := 1; ; page++ {
		body, next, err := c.getPage(ctx, endpoint, params)
		if err != nil {
			util.RecordSpanError(span, err)
			c.logger.Error("Storefront fetch failed",
				zap.String("endpoint", endpoint),
				zap.Int("page", page),
				zap.Error(err))
			return nil, err
		}
		util.FetchPagesTotal.WithLabelValues(endpoint).Inc()

		items, err := extractItems(body, key)
		if err != nil {
			err = fmt.Errorf("failed to fetch %s: %w", endpoint, err)
			util.RecordSpanError(span, err)
			return nil, err
		}
		all = append(all, items...)

		if next == "" {
			break
		}
		if page >= MaxPages {
			util.FetchTruncatedTotal.WithLabelValues(endpoint).Inc()
			c.logger.Warn("Page ceiling reached, remaining pages not fetched",
				zap.String("endpoint", endpoint),
				zap.Int("max_pages", MaxPages),
				zap.Int("items", len(all)))
			break
		}

		params = url.Values{}
		params.Set("page_info", next)
	}

	return all, nil
}

type pageResponse struct {
	body []byte
	next string
}

// getPage issues one GET, retrying rate-limited and server-error responses
func (c *Client) getPage(ctx context.Context, endpoint string, params url.Values) ([]byte, string, error) {
	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay

	attempt := 0
	operation := func() (*pageResponse, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to fetch %s: %w", endpoint, err))
		}

		resp, err := c.do(ctx, reqURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(fmt.Errorf("failed to fetch %s: %w", endpoint, err))
			}
			util.FetchRetriesTotal.WithLabelValues(endpoint, "transport").Inc()
			return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return &pageResponse{body: body, next: nextPageInfo(resp.Header.Get("Link"))}, nil
		}

		apiErr := &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Detail: errorDetail(resp.StatusCode, body)}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			util.FetchRetriesTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
				c.logger.Warn("Rate limited by storefront API",
					zap.String("endpoint", endpoint),
					zap.Float64("retry_after_seconds", secs))
				return nil, backoff.RetryAfter(int(math.Ceil(secs)))
			}
			return nil, apiErr
		case resp.StatusCode >= 500:
			util.FetchRetriesTotal.WithLabelValues(endpoint, "server_error").Inc()
			return nil, apiErr
		default:
			return nil, backoff.Permanent(apiErr)
		}
	}

	page, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries)),
	)
	if err != nil {
		var retryAfter *backoff.RetryAfterError
		if errors.As(err, &retryAfter) {
			err = &APIError{Endpoint: endpoint, StatusCode: http.StatusTooManyRequests, Detail: "rate limit exceeded"}
		}
		if attempt > 1 {
			c.logger.Warn("Storefront request failed after retries",
				zap.String("endpoint", endpoint),
				zap.Int("attempts", attempt),
				zap.Error(err))
		}
		return nil, "", err
	}
	return page.body, page.next, nil
}

func (c *Client) do(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(accessTokenHeader, c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return c.httpClient.Do(req)
}

// extractItems returns the array stored under key as raw records
func extractItems(body []byte, key string) ([]json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("response body is not valid JSON")
	}

	result := gjson.GetBytes(body, key)
	if !result.IsArray() {
		return nil, nil
	}

	arr := result.Array()
	items := make([]json.RawMessage, 0, len(arr))
	for _, item := range arr {
		items = append(items, json.RawMessage(item.Raw))
	}
	return items, nil
}

// nextPageInfo extracts the page_info cursor of the rel="next" entry of a Link header
func nextPageInfo(link string) string {
	if link == "" {
		return ""
	}

	for _, part := range strings.Split(link, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}

		isNext := false
		for _, param := range segments[1:] {
			if strings.EqualFold(strings.TrimSpace(param), `rel="next"`) {
				isNext = true
				break
			}
		}
		if !isNext {
			continue
		}

		target := strings.TrimSpace(segments[0])
		target = strings.TrimSuffix(strings.TrimPrefix(target, "<"), ">")
		u, err := url.Parse(target)
		if err != nil {
			return ""
		}
		return u.Query().Get("page_info")
	}
	return ""
}

// errorDetail pulls the most useful message out of an error response body
func errorDetail(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		errs := gjson.GetBytes(body, "errors")
		if errs.IsArray() && len(errs.Array()) > 0 {
			return errs.Array()[0].String()
		}
		if errs.Exists() {
			return errs.String()
		}
	}

	detail := strings.TrimSpace(string(body))
	if len(detail) > maxErrorDetailLen {
		detail = detail[:maxErrorDetailLen]
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	return detail
}
