// Package sicap talks to the public-procurement award-notice reporting
// endpoint: a resilient single-page fetcher and a resolver that walks the
// known candidate addresses in order.
package sicap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/award"
	collyfetcher "github.com/JakeFAU/award-digest/internal/fetcher/colly"
)

// DefaultPageSize is the single bounded page requested per query.
const DefaultPageSize = 500

// DefaultEndpoints are the known public addresses of the award report.
var DefaultEndpoints = []string{
	"https://sicap-prod.e-licitatie.ro/pub/reports/awardNotices/filter",
	"https://sicap-prod.e-licitatie.ro:8881/ca/reports/awardNotices/filter",
}

const (
	defaultOrigin  = "https://sicap-prod.e-licitatie.ro"
	defaultReferer = "https://sicap-prod.e-licitatie.ro/pub/reports/awardNotices"
)

// Doer performs one HTTP exchange.
type Doer interface {
	Do(ctx context.Context, req collyfetcher.Request) (collyfetcher.Response, error)
}

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Config controls the query sent to the portal.
type Config struct {
	PageSize int
	Origin   string
	Referer  string
}

// Page is the decoded content of one successful query.
type Page struct {
	Items    []award.RawAwardItem
	Total    int
	Attempts int
}

// Fetcher issues the award query against a single address with retries.
type Fetcher struct {
	client Doer
	policy RetryPolicy
	sleep  Sleeper
	cfg    Config
	logger *zap.Logger
}

// NewFetcher builds a Fetcher. A nil policy uses the linear defaults and a nil
// sleeper waits on a real timer.
func NewFetcher(client Doer, policy RetryPolicy, sleep Sleeper, cfg Config, logger *zap.Logger) *Fetcher {
	if policy == nil {
		policy = NewLinearRetryPolicy(DefaultMaxAttempts, DefaultBackoffBase)
	}
	if sleep == nil {
		sleep = SleepContext
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Origin == "" {
		cfg.Origin = defaultOrigin
	}
	if cfg.Referer == "" {
		cfg.Referer = defaultReferer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, policy: policy, sleep: sleep, cfg: cfg, logger: logger}
}

type filterRequest struct {
	PageSize               int      `json:"pageSize"`
	PageNumber             int      `json:"pageNumber"`
	AwardDateStart         string   `json:"awardDateStart"`
	AwardDateEnd           string   `json:"awardDateEnd"`
	CPVCode                *string  `json:"cpvCode"`
	ValueFrom              float64  `json:"valueFrom"`
	ValueTo                *float64 `json:"valueTo"`
	SysProcedureTypeID     *int     `json:"sysProcedureTypeId"`
	SysAwardCriteriaID     *int     `json:"sysAwardCriteriaId"`
	ContractingAuthorityID *int     `json:"contractingAuthorityId"`
	SupplierID             *int     `json:"supplierId"`
}

// Fetch posts the filter for w to address. Transport failures are retried per
// the policy and end in *award.FetchError; a 2xx body that cannot be decoded
// returns *award.MalformedResponseError at once.
func (f *Fetcher) Fetch(ctx context.Context, address string, w award.Window) (Page, error) {
	body, err := json.Marshal(filterRequest{
		PageSize:       f.cfg.PageSize,
		PageNumber:     1,
		AwardDateStart: w.StartDate(),
		AwardDateEnd:   w.EndDate(),
		ValueFrom:      w.MinValue,
	})
	if err != nil {
		return Page{}, fmt.Errorf("encode award filter: %w", err)
	}
	req := collyfetcher.Request{
		Method: http.MethodPost,
		URL:    address,
		Header: f.headers(),
		Body:   body,
	}

	for attempt := 1; ; attempt++ {
		resp, err := f.client.Do(ctx, req)
		if err == nil {
			page, decodeErr := decodePage(resp.Body)
			if decodeErr != nil {
				return Page{}, &award.MalformedResponseError{URL: address, Status: resp.StatusCode, Err: decodeErr}
			}
			page.Attempts = attempt
			return page, nil
		}
		f.logger.Warn("award query attempt failed",
			zap.String("endpoint", address),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if ctx.Err() != nil || !f.policy.ShouldRetry(err, attempt) {
			return Page{}, &award.FetchError{Address: address, Attempts: attempt, Err: err}
		}
		if sleepErr := f.sleep(ctx, f.policy.Backoff(attempt)); sleepErr != nil {
			return Page{}, &award.FetchError{
				Address:  address,
				Attempts: attempt,
				Err:      fmt.Errorf("%w (retry aborted: %w)", err, sleepErr),
			}
		}
	}
}

func (f *Fetcher) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json;charset=UTF-8")
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Origin", f.cfg.Origin)
	h.Set("Referer", f.cfg.Referer)
	return h
}

func decodePage(body []byte) (Page, error) {
	var envelope map[string]json.RawMessage
	if err := decodeNumbers(body, &envelope); err != nil {
		return Page{}, fmt.Errorf("decode envelope: %w", err)
	}
	rawItems, ok := envelope["items"]
	if !ok {
		return Page{}, errors.New(`response has no "items" field`)
	}
	var items []award.RawAwardItem
	if err := decodeNumbers(rawItems, &items); err != nil {
		return Page{}, fmt.Errorf("decode items: %w", err)
	}
	page := Page{Items: items, Total: len(items)}
	if rawTotal, ok := envelope["total"]; ok {
		var total json.Number
		if err := decodeNumbers(rawTotal, &total); err == nil {
			if n, err := total.Int64(); err == nil {
				page.Total = int(n)
			}
		}
	}
	return page, nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// SleepContext waits d on a timer, returning early with ctx's error.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
