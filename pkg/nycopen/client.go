// Package nycopen provides a client for NYC Open Data (Socrata SODA API),
// covering the datasets the map tools query: parks properties, 2020 census
// blocks, and neighborhood tabulation areas.
package nycopen

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

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/mapchat/internal/resilience"
)

// Dataset identifiers on data.cityofnewyork.us.
const (
	datasetParks         = "enfh-gkve"
	datasetCensusBlocks  = "wmsu-5muw"
	datasetNeighborhoods = "9nt8-h7nd"
)

// DefaultPageLimit bounds a single dataset read.
const DefaultPageLimit = 1000

// Filter narrows a dataset query. All fields are optional; a zero Filter
// returns the first page of the dataset.
type Filter struct {
	// IntersectsGeoJSON restricts results to rows whose geometry intersects
	// the given GeoJSON geometry.
	IntersectsGeoJSON json.RawMessage

	// Name matches rows whose name contains the given text,
	// diacritic-insensitive and case-insensitive.
	Name string

	// Borough matches the dataset's borough column where one exists.
	Borough string

	// Limit caps the row count; 0 means the client's page limit.
	Limit int
}

// Client defines the NYC Open Data operations used by the agent tools.
type Client interface {
	Parks(ctx context.Context, f Filter) ([]Park, error)
	CensusBlocks(ctx context.Context, f Filter) ([]CensusBlock, error)
	Neighborhoods(ctx context.Context, f Filter) ([]Neighborhood, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default data.cityofnewyork.us endpoint.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithPageLimit overrides the default cap on rows per dataset read.
func WithPageLimit(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.pageLimit = n
		}
	}
}

// WithRateLimit overrides the default requests-per-second budget.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithRetryConfig overrides the default retry behavior.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithCircuit overrides the default circuit breaker.
func WithCircuit(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

type httpClient struct {
	baseURL   string
	appToken  string
	pageLimit int
	http      *http.Client
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
}

// NewClient creates an NYC Open Data client. appToken raises the anonymous
// throttling ceiling and may be empty.
func NewClient(appToken string, opts ...Option) Client {
	c := &httpClient{
		baseURL:   "https://data.cityofnewyork.us",
		appToken:  appToken,
		pageLimit: DefaultPageLimit,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
		retry:   resilience.DefaultRetryConfig(),
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitConfig()),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("nycopen", "query")
	}
	return c
}

// query runs one SODA request and decodes the JSON row array into out.
func (c *httpClient) query(ctx context.Context, dataset string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "nycopen: rate limit wait")
	}

	reqURL := fmt.Sprintf("%s/resource/%s.json?%s", c.baseURL, dataset, params.Encode())

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
			return c.doOnce(ctx, reqURL)
		})
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "nycopen: unmarshal rows")
	}
	return nil
}

func (c *httpClient) doOnce(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "nycopen: create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "nycopen: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("nycopen: status %d: %s", resp.StatusCode, truncate(string(body), 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	return body, nil
}

// buildParams assembles SODA query parameters from a Filter. pageLimit caps
// the row count when the filter leaves Limit unset or asks for more.
func (f Filter) buildParams(pageLimit int, geomColumn, nameColumn, boroughColumn string) (url.Values, error) {
	params := url.Values{}

	limit := f.Limit
	if limit <= 0 || limit > pageLimit {
		limit = pageLimit
	}
	params.Set("$limit", strconv.Itoa(limit))

	var where []string
	if len(f.IntersectsGeoJSON) > 0 {
		wkt, err := geoJSONToWKT(f.IntersectsGeoJSON)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("intersects(%s, '%s')", geomColumn, wkt))
	}
	if f.Name != "" && nameColumn != "" {
		where = append(where, fmt.Sprintf("upper(%s) like '%%%s%%'",
			nameColumn, escapeSoQL(strings.ToUpper(NormalizeName(f.Name)))))
	}
	if f.Borough != "" && boroughColumn != "" {
		where = append(where, fmt.Sprintf("%s = '%s'", boroughColumn, escapeSoQL(f.Borough)))
	}
	if len(where) > 0 {
		params.Set("$where", strings.Join(where, " AND "))
	}
	return params, nil
}

// escapeSoQL doubles single quotes for embedding in a SoQL string literal.
func escapeSoQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
