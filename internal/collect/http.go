package collect

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/plansync/internal/fetcher"
	"github.com/sells-group/plansync/internal/model"
	"github.com/sells-group/plansync/internal/resilience"
)

// regionParam is the query parameter carrying the region id.
const regionParam = "zip_code"

// BlockedError reports an anti-bot page served instead of a payload.
type BlockedError struct {
	Type BlockType
}

func (e *BlockedError) Error() string {
	return "blocked by " + string(e.Type)
}

// HTTPCollector queries the live plan source once per region through a
// retry policy and a circuit breaker shared across regions.
type HTTPCollector struct {
	fetcher fetcher.Fetcher
	baseURL string
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	log     *zap.Logger
}

// NewHTTPCollector creates a collector for the source at baseURL.
func NewHTTPCollector(f fetcher.Fetcher, baseURL string, retry resilience.RetryConfig, breaker *resilience.CircuitBreaker) *HTTPCollector {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("plan-source", "collect")
	}
	return &HTTPCollector{
		fetcher: f,
		baseURL: baseURL,
		retry:   retry,
		breaker: breaker,
		log:     zap.L().With(zap.String("component", "collect.http")),
	}
}

// Collect implements Collector.
func (c *HTTPCollector) Collect(ctx context.Context, region model.Region) Outcome {
	target, err := c.regionURL(region.ID)
	if err != nil {
		return Unavailable(err.Error())
	}

	resp, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*fetcher.Response, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*fetcher.Response, error) {
			return c.fetchOnce(ctx, target)
		})
	})
	if err != nil {
		c.log.Warn("plan source call failed",
			zap.String("region", region.ID),
			zap.Error(err),
		)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return Unavailable("circuit open")
		}
		return Unavailable(err.Error())
	}

	records, err := ParseOffers(ctx, resp.Body, region)
	if err != nil {
		c.log.Warn("plan source payload unreadable", zap.String("region", region.ID), zap.Error(err))
		return Unavailable("unreadable payload: " + err.Error())
	}
	if len(records) == 0 {
		return Unavailable("no offers for utility " + region.ExpectedUtilityLabel)
	}

	c.log.Info("collected live offers",
		zap.String("region", region.ID),
		zap.Int("records", len(records)),
	)
	return Live(records, model.ProvenanceLive)
}

func (c *HTTPCollector) fetchOnce(ctx context.Context, target string) (*fetcher.Response, error) {
	resp, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	if blocked, kind := DetectBlock(resp); blocked {
		return nil, &BlockedError{Type: kind}
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(eris.Errorf("http %d from plan source", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("unexpected status %d from plan source", resp.StatusCode)
	}
	return resp, nil
}

func (c *HTTPCollector) regionURL(regionID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", eris.Wrap(err, "collect: parse base url")
	}
	q := u.Query()
	q.Set(regionParam, regionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
