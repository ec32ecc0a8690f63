package sicap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/award"
)

// PageFetcher runs the award query against one address.
type PageFetcher interface {
	Fetch(ctx context.Context, address string, w award.Window) (Page, error)
}

// Attempt records the outcome of one candidate address.
type Attempt struct {
	Endpoint string
	Attempts int
	Duration time.Duration
	Err      error
}

// Resolution is the result of walking the candidate addresses. Endpoint is the
// address that answered; Err is set when no address answered or when the one
// that did returned an unreadable body.
type Resolution struct {
	Endpoint string
	Page     Page
	Tried    []Attempt
	Err      error
}

// Resolver tries candidate addresses strictly in order. The first address that
// completes an exchange wins, including one whose body cannot be decoded.
type Resolver struct {
	endpoints []string
	fetcher   PageFetcher
	logger    *zap.Logger
	now       func() time.Time
}

// NewResolver builds a Resolver over the ordered endpoints.
func NewResolver(endpoints []string, fetcher PageFetcher, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		endpoints: append([]string(nil), endpoints...),
		fetcher:   fetcher,
		logger:    logger,
		now:       time.Now,
	}
}

// Endpoints returns the candidate addresses in order.
func (r *Resolver) Endpoints() []string {
	return append([]string(nil), r.endpoints...)
}

// Resolve fetches w from the first address that answers. A malformed body stops
// the walk and is returned as is. When every address fails the Resolution's Err
// wraps award.ErrAllEndpointsExhausted and each cause.
func (r *Resolver) Resolve(ctx context.Context, w award.Window) Resolution {
	var (
		res    Resolution
		causes []error
	)
	for _, endpoint := range r.endpoints {
		if err := ctx.Err(); err != nil {
			causes = append(causes, fmt.Errorf("resolution stopped: %w", err))
			break
		}
		start := r.now()
		page, err := r.fetcher.Fetch(ctx, endpoint, w)
		attempt := Attempt{
			Endpoint: endpoint,
			Attempts: attemptsOf(page, err),
			Duration: r.now().Sub(start),
			Err:      err,
		}
		res.Tried = append(res.Tried, attempt)
		if err == nil {
			r.logger.Info("award endpoint resolved",
				zap.String("endpoint", endpoint),
				zap.Int("attempts", attempt.Attempts),
				zap.Int("items", len(page.Items)),
				zap.Int("total", page.Total),
				zap.Duration("duration", attempt.Duration),
			)
			res.Endpoint = endpoint
			res.Page = page
			return res
		}
		var malformed *award.MalformedResponseError
		if errors.As(err, &malformed) {
			r.logger.Error("award endpoint answered with an unreadable body",
				zap.String("endpoint", endpoint),
				zap.Int("status", malformed.Status),
				zap.Duration("duration", attempt.Duration),
				zap.Error(err),
			)
			res.Endpoint = endpoint
			res.Err = err
			return res
		}
		r.logger.Warn("award endpoint unusable",
			zap.String("endpoint", endpoint),
			zap.Int("attempts", attempt.Attempts),
			zap.Duration("duration", attempt.Duration),
			zap.Error(err),
		)
		causes = append(causes, err)
	}
	if len(r.endpoints) == 0 {
		causes = append(causes, errors.New("no endpoints configured"))
	}
	res.Err = fmt.Errorf("%w: %w", award.ErrAllEndpointsExhausted, errors.Join(causes...))
	return res
}

func attemptsOf(page Page, err error) int {
	if err == nil {
		return page.Attempts
	}
	var fetchErr *award.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Attempts
	}
	return 1
}
