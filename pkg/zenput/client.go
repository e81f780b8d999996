// Package zenput reads supervision submissions from the Zenput v3 API.
package zenput

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/supervision-reconciler/internal/model"
	"github.com/sells-group/supervision-reconciler/internal/resilience"
)

const (
	defaultBaseURL  = "https://www.zenput.com/api/v3"
	defaultPageSize = 100
	// dateLayout is the format of the date_submitted filters.
	dateLayout = "2006-01-02"
)

// Client fetches the submissions of a form template.
type Client interface {
	// Submissions returns every submission of formID whose date_submitted falls
	// in [from, to]. A zero from or to leaves that side open.
	Submissions(ctx context.Context, formID int, typ model.InspectionType, from, to time.Time) ([]model.RawSubmission, error)
}

// APIError is returned when Zenput responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zenput: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithPageSize sets the page limit. Values <= 0 are ignored.
func WithPageSize(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRateLimit sets requests per second. A burst of max(int(rps), 1) is allowed.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithBackoff sets the retry policy for page requests.
func WithBackoff(b resilience.Backoff) Option {
	return func(c *httpClient) {
		c.backoff = b
	}
}

// WithBreaker sets the circuit breaker shared by all requests.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	token    string
	baseURL  string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
	backoff  resilience.Backoff
	breaker  *resilience.Breaker
	log      *zap.Logger
}

// NewClient creates a Zenput client authenticated with token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:    token,
		baseURL:  defaultBaseURL,
		pageSize: defaultPageSize,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(2, 1),
		backoff:  resilience.DefaultBackoff(),
		breaker:  resilience.NewBreaker("zenput", 5, 30*time.Second),
		log:      zap.L().With(zap.String("component", "zenput")),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.backoff.OnRetry = resilience.LogRetry("zenput", "submissions")
	return c
}

func (c *httpClient) Submissions(ctx context.Context, formID int, typ model.InspectionType, from, to time.Time) ([]model.RawSubmission, error) {
	var out []model.RawSubmission
	seen := make(map[string]bool)

	for start := 0; ; start += c.pageSize {
		p, err := resilience.DoVal(ctx, c.backoff, func(ctx context.Context) (*page, error) {
			return resilience.Call(ctx, c.breaker, func(ctx context.Context) (*page, error) {
				return c.fetchPage(ctx, formID, start, from, to)
			})
		})
		if err != nil {
			return out, eris.Wrapf(err, "zenput: form %d offset %d", formID, start)
		}

		for _, s := range p.Data {
			if s.ID != "" {
				if seen[string(s.ID)] {
					continue
				}
				seen[string(s.ID)] = true
			}
			out = append(out, s.Raw(typ))
		}

		c.log.Debug("zenput: page fetched",
			zap.Int("form_id", formID),
			zap.Int("start", start),
			zap.Int("count", len(p.Data)),
		)
		if len(p.Data) < c.pageSize {
			break
		}
	}

	c.log.Info("zenput: form fetched",
		zap.Int("form_id", formID),
		zap.String("type", string(typ)),
		zap.Int("submissions", len(out)),
	)
	return out, nil
}

func (c *httpClient) fetchPage(ctx context.Context, formID, start int, from, to time.Time) (*page, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limit")
		}
	}

	q := url.Values{}
	q.Set("form_template_id", strconv.Itoa(formID))
	q.Set("start", strconv.Itoa(start))
	q.Set("limit", strconv.Itoa(c.pageSize))
	if !from.IsZero() {
		q.Set("date_submitted_start", from.Format(dateLayout))
	}
	if !to.IsZero() {
		q.Set("date_submitted_end", to.Format(dateLayout))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/submissions?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("X-API-TOKEN", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "execute request")
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "execute request"), 0)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "read response body"), 0)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	var p page
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "decode response")
	}
	return &p, nil
}
