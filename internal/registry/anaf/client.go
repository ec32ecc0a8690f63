// Package anaf looks companies up in the ANAF VAT-payer web service.
package anaf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/award"
	collyfetcher "github.com/JakeFAU/award-digest/internal/fetcher/colly"
	"github.com/JakeFAU/award-digest/internal/registry"
)

// DefaultURL is the public VAT-payer endpoint.
const DefaultURL = "https://webservicesp.anaf.ro/PlatitorTvaRest/api/v8/ws/tva"

// Doer performs one HTTP exchange.
type Doer interface {
	Do(ctx context.Context, req collyfetcher.Request) (collyfetcher.Response, error)
}

// Client implements registry.Lookup.
type Client struct {
	client Doer
	url    string
	now    func() time.Time
	logger *zap.Logger
}

// New builds a Client. An empty endpoint uses DefaultURL.
func New(client Doer, endpoint string, logger *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{client: client, url: endpoint, now: time.Now, logger: logger}
}

type lookupRequest struct {
	CUI  int64  `json:"cui"`
	Data string `json:"data"`
}

type lookupResponse struct {
	Found []struct {
		General struct {
			Name    string      `json:"denumire"`
			Address string      `json:"adresa"`
			Phone   string      `json:"telefon"`
			Email   string      `json:"email"`
			TaxID   json.Number `json:"cui"`
		} `json:"date_generale"`
	} `json:"found"`
}

// Company looks id up as of today. The "RO" VAT prefix and spaces are
// stripped to build the numeric request field.
func (c *Client) Company(ctx context.Context, id string) (registry.Company, error) {
	cui, err := numericID(id)
	if err != nil {
		return registry.Company{}, err
	}
	body, err := json.Marshal([]lookupRequest{{CUI: cui, Data: c.now().Format(award.DateLayout)}})
	if err != nil {
		return registry.Company{}, fmt.Errorf("encode registry request: %w", err)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")

	resp, err := c.client.Do(ctx, collyfetcher.Request{
		Method: http.MethodPost,
		URL:    c.url,
		Header: header,
		Body:   body,
	})
	if err != nil {
		c.logger.Warn("registry lookup failed", zap.String("company_id", id), zap.Error(err))
		return registry.Company{}, fmt.Errorf("registry lookup %s: %w", id, err)
	}

	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	dec.UseNumber()
	var decoded lookupResponse
	if err := dec.Decode(&decoded); err != nil {
		return registry.Company{}, &award.MalformedResponseError{URL: c.url, Status: resp.StatusCode, Err: err}
	}
	if len(decoded.Found) == 0 {
		return registry.Company{}, registry.ErrNotFound
	}
	g := decoded.Found[0].General
	taxID := g.TaxID.String()
	if taxID == "" {
		taxID = strconv.FormatInt(cui, 10)
	}
	return registry.Company{
		Name:    strings.TrimSpace(g.Name),
		Address: strings.TrimSpace(g.Address),
		Phone:   strings.TrimSpace(g.Phone),
		Email:   strings.TrimSpace(g.Email),
		TaxID:   taxID,
	}, nil
}

func numericID(id string) (int64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(id), " ", "")
	if len(s) >= 2 && strings.EqualFold(s[:2], "RO") {
		s = s[2:]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", registry.ErrInvalidID, id)
	}
	return n, nil
}

var _ registry.Lookup = (*Client)(nil)
