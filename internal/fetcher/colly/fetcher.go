// Package collyfetcher implements single request/response HTTP exchanges on
// top of gocolly. Every outbound call of the service (award portal, REST
// store, company registry) goes through it.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/telemetry"
)

const defaultTimeout = 45 * time.Second

// Waiter delays a request until the destination may be contacted again.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Limiter   Waiter
}

// Request describes one outbound exchange.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a successful (2xx) exchange.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher performs exchanges with a shared transport and a fresh collector per call.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type exchange struct {
	response Response
	status   int
	body     []byte
	err      error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	// colly reports every status above 202 as an error; deliver them all to
	// OnResponse and classify by status class there.
	c.ParseHTTPErrorResponse = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	// The backend is shared by clones, so the timeout is set once here.
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Do executes req. Any 2xx answer, including 203 to 299, is a Response;
// callers that need a narrower set check StatusCode. Non-2xx answers, timeouts
// and connection failures are returned as *award.TransportError.
func (f *Fetcher) Do(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, &award.TransportError{URL: req.URL, Err: err}
	}
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, req.URL); err != nil {
			return Response{}, &award.TransportError{URL: req.URL, Err: err}
		}
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	result := &exchange{}
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, req, start, result)

	done := make(chan error, 1)
	go func() {
		var body io.Reader
		if req.Body != nil {
			body = bytes.NewReader(req.Body)
		}
		done <- collector.Request(method, req.URL, body, nil, req.Header.Clone())
	}()

	select {
	case <-ctx.Done():
		return Response{}, &award.TransportError{URL: req.URL, Err: fmt.Errorf("colly request canceled: %w", ctx.Err())}
	case err := <-done:
		if err == nil {
			err = result.err
		}
		telemetry.ObserveOutbound(req.URL, outcome(result.status, err))
		if err != nil {
			return Response{}, &award.TransportError{
				URL:    req.URL,
				Status: result.status,
				Body:   award.Excerpt(result.body),
				Err:    err,
			}
		}
		return result.response, nil
	}
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	req Request,
	start time.Time,
	result *exchange,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(req.Header, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		if !successful(r.StatusCode) {
			result.err = fmt.Errorf("unexpected status %d %s", r.StatusCode, http.StatusText(r.StatusCode))
			result.status = r.StatusCode
			result.body = append([]byte(nil), r.Body...)
			return
		}
		result.response = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		result.err = err
		if r != nil {
			result.status = r.StatusCode
			result.body = append([]byte(nil), r.Body...)
		}
	})
}

func successful(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

func outcome(status int, err error) string {
	switch {
	case err == nil:
		return "ok"
	case status != 0:
		return strconv.Itoa(status/100) + "xx"
	default:
		return "error"
	}
}

func copyHeaders(header http.Header, r *colly.Request) {
	if header == nil {
		return
	}
	for key, values := range header {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
