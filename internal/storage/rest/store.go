// Package rest stores award records in a PostgREST (Supabase-style) table.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/award-digest/internal/award"
	collyfetcher "github.com/JakeFAU/award-digest/internal/fetcher/colly"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const selectColumns = "company_name,company_id,value,title,authority_name," +
	"award_date,classification_code,category_label,notice_id"

// Doer performs one HTTP exchange.
type Doer interface {
	Do(ctx context.Context, req collyfetcher.Request) (collyfetcher.Response, error)
}

// Config locates the table.
type Config struct {
	// BaseURL is the project URL, e.g. https://xyz.supabase.co.
	BaseURL string
	APIKey  string
	Table   string
}

// Store implements award.Store and award.Lister over PostgREST.
type Store struct {
	client   Doer
	endpoint string
	apiKey   string
}

// New validates cfg and builds a Store.
func New(client Doer, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("rest store: client is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("rest store: base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("rest store: invalid base url %q: %w", cfg.BaseURL, err)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("rest store: api key is required")
	}
	table := cfg.Table
	if table == "" {
		table = "awards"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("rest store: invalid table name %q", table)
	}
	return &Store{
		client:   client,
		endpoint: base + "/rest/v1/" + table,
		apiKey:   cfg.APIKey,
	}, nil
}

type row struct {
	NaturalKey         string  `json:"natural_key,omitempty"`
	CompanyName        string  `json:"company_name"`
	CompanyID          string  `json:"company_id"`
	Value              float64 `json:"value"`
	Title              string  `json:"title"`
	AuthorityName      string  `json:"authority_name"`
	AwardDate          string  `json:"award_date"`
	ClassificationCode string  `json:"classification_code"`
	CategoryLabel      string  `json:"category_label"`
	NoticeID           string  `json:"notice_id"`
}

// Upsert posts one chunk with merge-on-conflict on natural_key. Only 200 and
// 201 count as accepted.
func (s *Store) Upsert(ctx context.Context, records []award.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]row, 0, len(records))
	for _, r := range records {
		rows = append(rows, row{
			NaturalKey:         r.NaturalKey(),
			CompanyName:        r.CompanyName,
			CompanyID:          r.CompanyID,
			Value:              r.Value,
			Title:              r.Title,
			AuthorityName:      r.AuthorityName,
			AwardDate:          r.AwardDate.Format(award.DateLayout),
			ClassificationCode: r.ClassificationCode,
			CategoryLabel:      r.CategoryLabel,
			NoticeID:           r.NoticeID,
		})
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode awards: %w", err)
	}
	header := s.headers()
	header.Set("Content-Type", "application/json")
	header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := s.client.Do(ctx, collyfetcher.Request{
		Method: http.MethodPost,
		URL:    s.endpoint + "?on_conflict=natural_key",
		Header: header,
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("upsert awards: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &award.TransportError{
			URL:    s.endpoint,
			Status: resp.StatusCode,
			Body:   award.Excerpt(resp.Body),
			Err:    errors.New("unexpected status"),
		}
	}
	return nil
}

// List pushes the date and value bounds to the server and applies the
// category selection locally, since labels match case-insensitively.
func (s *Store) List(ctx context.Context, q award.Query) ([]award.Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = award.DefaultListLimit
	}
	params := url.Values{}
	params.Set("select", selectColumns)
	if !q.From.IsZero() {
		params.Add("award_date", "gte."+q.From.Format(award.DateLayout))
	}
	if !q.To.IsZero() {
		params.Add("award_date", "lte."+q.To.Format(award.DateLayout))
	}
	if q.MinValue > 0 {
		params.Set("value", "gte."+strconv.FormatFloat(q.MinValue, 'f', -1, 64))
	}
	params.Set("order", "value.desc")
	params.Set("limit", strconv.Itoa(limit))

	resp, err := s.client.Do(ctx, collyfetcher.Request{
		Method: http.MethodGet,
		URL:    s.endpoint + "?" + params.Encode(),
		Header: s.headers(),
	})
	if err != nil {
		return nil, fmt.Errorf("list awards: %w", err)
	}
	var rows []row
	if err := json.Unmarshal(resp.Body, &rows); err != nil {
		return nil, &award.MalformedResponseError{URL: s.endpoint, Status: resp.StatusCode, Err: err}
	}
	out := make([]award.Record, 0, len(rows))
	for _, r := range rows {
		date, err := award.ParseDate(r.AwardDate)
		if err != nil {
			return nil, &award.MalformedResponseError{URL: s.endpoint, Status: resp.StatusCode, Err: err}
		}
		out = append(out, award.Record{
			CompanyName:        r.CompanyName,
			CompanyID:          r.CompanyID,
			Value:              r.Value,
			Title:              r.Title,
			AuthorityName:      r.AuthorityName,
			AwardDate:          date,
			ClassificationCode: r.ClassificationCode,
			CategoryLabel:      r.CategoryLabel,
			NoticeID:           r.NoticeID,
		})
	}
	return award.Filter(out, award.Query{Categories: q.Categories}), nil
}

func (s *Store) headers() http.Header {
	h := http.Header{}
	h.Set("apikey", s.apiKey)
	h.Set("Authorization", "Bearer "+s.apiKey)
	h.Set("Accept", "application/json")
	return h
}
