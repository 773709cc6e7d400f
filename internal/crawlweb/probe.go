package crawlweb

import (
	"context"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Prober performs cheap HTTP HEAD/GET checks, used both to distinguish
// "unreachable" from "loaded but empty" after a failed navigation (spec.md
// Section 4.7 step 3) and as the entire fetch path in the existence-only
// fast mode. Grounded on the teacher's CollyFetcher
// (internal/crawler/fetcher_colly.go), trimmed to a status-only check.
type Prober struct {
	collector *colly.Collector
	timeout   time.Duration
}

// NewProber builds a Prober sharing colly's collector/limiter machinery
// with the teacher's fetcher.
func NewProber(userAgent string, requestTimeout time.Duration, concurrency int) *Prober {
	c := colly.NewCollector(colly.Async(true), colly.UserAgent(userAgent))
	c.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       concurrency * 2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: requestTimeout,
		ForceAttemptHTTP2:     true,
	})
	c.SetRequestTimeout(requestTimeout)
	_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: concurrency})
	return &Prober{collector: c, timeout: requestTimeout}
}

// Probe issues a HEAD request and reports existence based on a non-error,
// non-5xx response. No GET is sent: a server that rejects HEAD is reported
// with that error and Exists false.
func (p *Prober) Probe(ctx context.Context, rawURL string) ProbeResult {
	result := ProbeResult{URL: rawURL}
	collector := p.collector.Clone()
	done := make(chan struct{}, 1)

	collector.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.FinalURL = r.Request.URL.String()
		result.Exists = r.StatusCode > 0 && r.StatusCode < 500
		select {
		case done <- struct{}{}:
		default:
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		result.Err = err
		if r != nil {
			result.StatusCode = r.StatusCode
		}
		select {
		case done <- struct{}{}:
		default:
		}
	})

	if err := collector.Head(rawURL); err != nil {
		result.Err = err
		return result
	}
	collector.Wait()

	select {
	case <-done:
	default:
	}
	if err := ctx.Err(); err != nil {
		result.Err = err
	}
	return result
}
