package fetchers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"macroind/internal/config"
	"macroind/internal/logger"
	"macroind/internal/models"
)

// Request selects the series and years one source should return
type Request struct {
	StartYear  int
	EndYear    int
	Indicators []config.IndicatorSpec
	Dataset    string // IMF CompactData dataset, ignored elsewhere
}

// Source fetches raw provider tables, one per requested indicator
type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]*models.RawTable, error)
}

// CountryResolver maps IMF WEO country codes to classification rows
type CountryResolver interface {
	LookupWEO(code string) (models.CountryClassification, bool)
}

// StatusError reports a non-200 provider response
type StatusError struct {
	Source string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status %d for %s", e.Source, e.Code, e.URL)
}

// DataFetcher owns the HTTP client and rate limiter shared by all sources
type DataFetcher struct {
	client  *resty.Client
	limiter *rate.Limiter

	WorldBank *WorldBankFetcher
	ILO       *ILOFetcher
}

// NewDataFetcher creates a new data fetcher instance
func NewDataFetcher(cfg *config.Config) *DataFetcher {
	client := NewClient(cfg.HTTPTimeout, cfg.HTTPRetries)
	limiter := NewLimiter(cfg.RequestsPerSecond)
	base := httpSource{client: client, limiter: limiter}

	return &DataFetcher{
		client:    client,
		limiter:   limiter,
		WorldBank: NewWorldBankFetcher(base, cfg.WorldBankURL, cfg.WorldBankPageSize),
		ILO:       NewILOFetcher(base, cfg.ILOURL),
	}
}

// IMF returns an IMF fetcher that resolves WEO codes through resolver
func (f *DataFetcher) IMF(baseURL string, resolver CountryResolver) *IMFFetcher {
	return NewIMFFetcher(httpSource{client: f.client, limiter: f.limiter}, baseURL, resolver)
}

// NewClient creates a resty client that retries transport errors, 429 and 5xx
func NewClient(timeout time.Duration, retries int) *resty.Client {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(retries)
	client.SetRetryWaitTime(2 * time.Second)
	client.SetRetryMaxWaitTime(20 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil || r == nil {
			return true
		}
		return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
	})
	return client
}

// NewLimiter paces provider requests to rps with a burst of at least one
func NewLimiter(rps float64) *rate.Limiter {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// httpSource is the request plumbing shared by the provider fetchers
type httpSource struct {
	client  *resty.Client
	limiter *rate.Limiter
}

func (h httpSource) get(ctx context.Context, source, url string, query map[string]string) ([]byte, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for %s rate limiter: %w", source, err)
		}
	}

	logger.Component("fetchers").Debug("provider request", logger.Fields{"source": source, "url": url, "query": query})

	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(query).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s data: %w", source, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, &StatusError{Source: source, URL: resp.Request.URL, Code: resp.StatusCode()}
	}
	return resp.Body(), nil
}
