package bcapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/techspheredynamics/bcmcp", "bcapi")

// Custom API coordinates of the TechSphereDynamics delivery extension.
const (
	deliveryPublisher  = "techSphereDynamics"
	deliveryAppGroup   = "delivery"
	deliveryAPIVersion = "v1.0"
)

const (
	// DefaultRetries is the attempt budget of one logical call.
	DefaultRetries = 3
	// DefaultTimeout bounds each HTTP attempt.
	DefaultTimeout = 30 * time.Second

	excerptLimit = 200
)

// Client is the resilient Business Central API client. It owns the retry
// loop: each attempt resolves a fresh credential, issues the call, and
// classifies the response; 401 invalidates the credential and retries, 5xx
// backs off exponentially, any other 4xx fails terminally. Remote-service
// faults are returned as Outcome values, never as errors; only request
// construction mistakes propagate.
type Client struct {
	cfg       *Config
	tokens    TokenSource
	endpoints *EndpointBuilder

	httpClient *http.Client
	retries    int
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client with its own TokenManager for the configured
// identity.
func NewClient(cfg *Config) *Client {
	return &Client{
		cfg:        cfg,
		tokens:     NewTokenManager(cfg.AzureAD),
		endpoints:  NewEndpointBuilder(cfg.BC.BaseURL, cfg.BC.CompanyID),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retries:    DefaultRetries,
		sleep:      sleepContext,
	}
}

// WithTokenSource replaces the credential source, typically with a fake in
// tests.
func (c *Client) WithTokenSource(ts TokenSource) *Client {
	c.tokens = ts
	return c
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// WithRetries overrides the attempt budget.
func (c *Client) WithRetries(n int) *Client {
	if n > 0 {
		c.retries = n
	}
	return c
}

// Endpoints exposes the URL builder for callers that need raw access.
func (c *Client) Endpoints() *EndpointBuilder {
	return c.endpoints
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute issues one logical API call against an absolute URL, running the
// retry loop. The returned error covers request construction only; every
// remote-service condition is an Outcome.
func (c *Client) Execute(ctx context.Context, method, fullURL string, q *Query, body any) (*Outcome, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request body")
		}
	}

	requestURL := fullURL
	if q != nil && q.Len() > 0 {
		requestURL = fullURL + "?" + q.Encode()
	}

	// Correlates the attempts of one logical call in the logs.
	reqID := uuid.NewString()[:8]

	var lastStatus int
	var lastExcerpt string

	for attempt := 0; attempt < c.retries; attempt++ {
		token, ok := c.tokens.AccessToken(ctx)
		if !ok {
			logger.ContextKV(ctx, xlog.WARNING,
				"req_id", reqID,
				"status", "no_credential",
				"reason", "Azure AD identity not configured or token unavailable, serving offline mode",
			)
			return &Outcome{Kind: OutcomeNoCredential}, nil
		}

		req, err := http.NewRequestWithContext(ctx, method, requestURL, bytes.NewReader(payload))
		if err != nil {
			return nil, errors.Wrap(err, "failed to build request")
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		logger.ContextKV(ctx, xlog.DEBUG,
			"req_id", reqID,
			"attempt", attempt+1,
			"method", method,
			"url", requestURL,
		)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastStatus = 0
			lastExcerpt = err.Error()
			logger.ContextKV(ctx, xlog.DEBUG, "req_id", reqID, "attempt", attempt+1, "transport_err", err.Error())
			if serr := c.sleep(ctx, backoff(attempt)); serr != nil {
				return nil, serr
			}
			continue
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()

		lastStatus = resp.StatusCode
		lastExcerpt = truncate(string(respBody), excerptLimit)

		logger.ContextKV(ctx, xlog.DEBUG,
			"req_id", reqID,
			"attempt", attempt+1,
			"http_status", resp.StatusCode,
			"body", lastExcerpt,
		)

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			if !json.Valid(respBody) {
				// 2xx is a success even when the promised JSON is not there.
				return &Outcome{
					Kind:       OutcomeSuccess,
					HTTPStatus: resp.StatusCode,
					Body:       newRawFallbackBody(string(respBody)),
				}, nil
			}
			return &Outcome{
				Kind:       OutcomeSuccess,
				HTTPStatus: resp.StatusCode,
				Body:       respBody,
			}, nil

		case resp.StatusCode == http.StatusNoContent:
			return &Outcome{Kind: OutcomeNoContent, HTTPStatus: resp.StatusCode}, nil

		case resp.StatusCode == http.StatusUnauthorized:
			c.tokens.Invalidate()
			logger.ContextKV(ctx, xlog.WARNING, "req_id", reqID, "status", "token_rejected", "attempt", attempt+1)
			continue

		case resp.StatusCode >= 500:
			if serr := c.sleep(ctx, backoff(attempt)); serr != nil {
				return nil, serr
			}
			continue

		default:
			out := &Outcome{Kind: OutcomeTerminal, HTTPStatus: resp.StatusCode, Excerpt: lastExcerpt}
			logger.ContextKV(ctx, xlog.ERROR,
				"req_id", reqID,
				"method", method,
				"url", requestURL,
				"http_status", resp.StatusCode,
				"api_err", out.ErrorMessage(),
				"body", lastExcerpt,
			)
			return out, nil
		}
	}

	out := &Outcome{Kind: OutcomeTerminal, HTTPStatus: lastStatus, Excerpt: lastExcerpt}
	logger.ContextKV(ctx, xlog.ERROR,
		"req_id", reqID,
		"method", method,
		"url", requestURL,
		"reason", "retry_budget_exhausted",
		"http_status", lastStatus,
		"api_err", out.ErrorMessage(),
		"body", lastExcerpt,
	)
	return out, nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// get issues a GET against a standard company-scoped resource.
func (c *Client) get(ctx context.Context, resource string, q *Query) (*Outcome, error) {
	return c.Execute(ctx, http.MethodGet, c.endpoints.StandardURL(resource), q, nil)
}

// deliveryURL resolves an endpoint of the custom delivery API.
func (c *Client) deliveryURL(endpoint string) string {
	return c.endpoints.CustomURL(deliveryPublisher, deliveryAppGroup, deliveryAPIVersion, endpoint, true)
}

// fetchList unwraps a paginated envelope's value array. Any non-success
// outcome degrades to an empty slice; the diagnostic detail stays in the
// logs.
func fetchList[T any](c *Client, ctx context.Context, method, fullURL string, q *Query) ([]T, error) {
	out, err := c.Execute(ctx, method, fullURL, q, nil)
	if err != nil {
		return nil, err
	}
	var env listEnvelope[T]
	if !out.Decode(&env) {
		return nil, nil
	}
	return env.Value, nil
}

// fetchOne returns the single record at fullURL, or nil when it does not
// exist or the service misbehaves.
func fetchOne[T any](c *Client, ctx context.Context, fullURL string, q *Query) (*T, error) {
	out, err := c.Execute(ctx, http.MethodGet, fullURL, q, nil)
	if err != nil {
		return nil, err
	}
	var rec T
	if !out.Decode(&rec) {
		return nil, nil
	}
	return &rec, nil
}

// firstOf runs a filtered top-1 list query and returns its first element.
func firstOf[T any](c *Client, ctx context.Context, fullURL string, f *Filter) (*T, error) {
	q := NewQuery().WithFilter(f).Top(1)
	list, err := fetchList[T](c, ctx, http.MethodGet, fullURL, q)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

// GetCustomers lists customers, newest API ordering, up to top records
// (default 20).
func (c *Client) GetCustomers(ctx context.Context, top int) ([]Customer, error) {
	q := NewQuery().Top(values.NumbersCoalesce(top, 20))
	customers, err := fetchList[Customer](c, ctx, http.MethodGet, c.endpoints.StandardURL("customers"), q)
	if err != nil {
		return nil, err
	}
	logger.ContextKV(ctx, xlog.DEBUG, "op", "get_customers", "count", len(customers))
	return customers, nil
}

// GetCustomer returns one customer by its BC id (GUID, unquoted key), or nil
// when not found.
func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	return fetchOne[Customer](c, ctx, c.endpoints.StandardURL("customers("+id+")"), nil)
}

// CreateCustomer creates a customer card and returns the stored record.
func (c *Client) CreateCustomer(ctx context.Context, cust *Customer) (*Customer, error) {
	out, err := c.Execute(ctx, http.MethodPost, c.endpoints.StandardURL("customers"), nil, cust)
	if err != nil {
		return nil, err
	}
	var created Customer
	if !out.Decode(&created) {
		return nil, nil
	}
	return &created, nil
}

// GetItems lists items up to top records (default 20).
func (c *Client) GetItems(ctx context.Context, top int) ([]Item, error) {
	q := NewQuery().Top(values.NumbersCoalesce(top, 20))
	return fetchList[Item](c, ctx, http.MethodGet, c.endpoints.StandardURL("items"), q)
}

// GetItemByNumber returns one item by its item number. Direct keyed access
// is tried first; the items key format makes that path unreliable, so a
// filtered top-1 query serves as fallback.
func (c *Client) GetItemByNumber(ctx context.Context, itemNo string) (*Item, error) {
	item, err := fetchOne[Item](c, ctx, c.endpoints.StandardURL("items("+itemNo+")"), nil)
	if err != nil || item != nil {
		return item, err
	}
	return firstOf[Item](c, ctx, c.endpoints.StandardURL("items"), NewFilter().Eq("number", itemNo))
}

// GetOrders lists sales orders up to top records (default 10).
func (c *Client) GetOrders(ctx context.Context, top int) ([]SalesOrder, error) {
	q := NewQuery().Top(values.NumbersCoalesce(top, 10))
	return fetchList[SalesOrder](c, ctx, http.MethodGet, c.endpoints.StandardURL("salesOrders"), q)
}

// GetSalesOrders lists sales orders matching an optional raw OData filter,
// up to top records (default 20).
func (c *Client) GetSalesOrders(ctx context.Context, filterQuery string, top int) ([]SalesOrder, error) {
	q := NewQuery().Top(values.NumbersCoalesce(top, 20))
	if filterQuery != "" {
		q.Set("$filter", filterQuery)
	}
	return fetchList[SalesOrder](c, ctx, http.MethodGet, c.endpoints.StandardURL("salesOrders"), q)
}

// GetCurrencyExchangeRates lists exchange rates, optionally for one currency
// code, up to top records (default 20).
func (c *Client) GetCurrencyExchangeRates(ctx context.Context, currencyCode string, top int) ([]CurrencyExchangeRate, error) {
	q := NewQuery().Top(values.NumbersCoalesce(top, 20)).
		WithFilter(NewFilter().Eq("currencyCode", currencyCode))
	return fetchList[CurrencyExchangeRate](c, ctx, http.MethodGet, c.endpoints.StandardURL("currencyExchangeRates"), q)
}

// GetDeliveries lists deliveries of the custom delivery API. The filter is
// built incrementally: customer, then status, then the date range grouped in
// parentheses, each joined to what came before with "and".
func (c *Client) GetDeliveries(ctx context.Context, filter DeliveryFilter, top int) ([]Delivery, error) {
	f := NewFilter().
		Eq("customerId", filter.CustomerID).
		Eq("status", filter.Status).
		Group(NewFilter().
			Ge("deliveryDate", filter.DateFrom).
			Le("deliveryDate", filter.DateTo))

	q := NewQuery().Top(values.NumbersCoalesce(top, 20)).WithFilter(f)
	return fetchList[Delivery](c, ctx, http.MethodGet, c.deliveryURL("deliveries"), q)
}

// looksLikeGUID tells the two delivery identifier shapes apart. The custom
// API accepts GUID keys bare but rejects quoted human-readable numbers on
// the direct-access path, so short ids go through a filtered query instead.
func looksLikeGUID(id string) bool {
	return len(id) > 20 && strings.Contains(id, "-")
}

// GetDelivery returns one delivery by GUID id or by human-readable number,
// or nil when not found.
func (c *Client) GetDelivery(ctx context.Context, deliveryID string) (*Delivery, error) {
	if looksLikeGUID(deliveryID) {
		// GUID keys are interpolated without quotes.
		return fetchOne[Delivery](c, ctx, c.deliveryURL("deliveries("+deliveryID+")"), nil)
	}
	return firstOf[Delivery](c, ctx, c.deliveryURL("deliveries"), NewFilter().Eq("no", deliveryID))
}

// UpdateDeliveryStatus patches a delivery's status. lastUpdateDate is sent
// as an explicit null so the server assigns the timestamp.
func (c *Client) UpdateDeliveryStatus(ctx context.Context, deliveryID, status, notes string) (*Delivery, error) {
	body := map[string]any{
		"status":         status,
		"lastUpdateDate": nil,
	}
	if notes != "" {
		body["notes"] = notes
	}

	out, err := c.Execute(ctx, http.MethodPatch, c.deliveryURL("deliveries('"+deliveryID+"')"), nil, body)
	if err != nil {
		return nil, err
	}
	var updated Delivery
	if !out.Decode(&updated) {
		return nil, nil
	}
	return &updated, nil
}

// GetDeliveryRoutes lists routes in a date range, optionally for one driver.
func (c *Client) GetDeliveryRoutes(ctx context.Context, dateFrom, dateTo, driverID string) ([]DeliveryRoute, error) {
	f := NewFilter().
		Ge("routeDate", dateFrom).
		Le("routeDate", dateTo).
		Eq("driverId", driverID)

	q := NewQuery().WithFilter(f)
	return fetchList[DeliveryRoute](c, ctx, http.MethodGet, c.deliveryURL("routes"), q)
}

// OptimizeRoute submits a route for optimization. The computation is fully
// delegated to the remote service; the payload and result pass through
// unchanged.
func (c *Client) OptimizeRoute(ctx context.Context, routeData map[string]any) (map[string]any, error) {
	out, err := c.Execute(ctx, http.MethodPost, c.deliveryURL("routes/optimize"), nil, routeData)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if !out.Decode(&result) {
		return nil, nil
	}
	return result, nil
}

// GetInventoryStatus lists delivery inventory, optionally for one warehouse.
func (c *Client) GetInventoryStatus(ctx context.Context, warehouseID string) ([]InventoryStatus, error) {
	q := NewQuery().WithFilter(NewFilter().Eq("warehouseId", warehouseID))
	return fetchList[InventoryStatus](c, ctx, http.MethodGet, c.deliveryURL("inventory"), q)
}
