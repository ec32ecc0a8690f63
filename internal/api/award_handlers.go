package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/export"
)

const listTimeout = 30 * time.Second

type awardList struct {
	Query   queryDTO       `json:"query"`
	Summary award.Summary  `json:"summary"`
	Awards  []award.Record `json:"awards"`
}

type queryDTO struct {
	From       string   `json:"from"`
	To         string   `json:"to"`
	MinValue   float64  `json:"min_value"`
	Categories []string `json:"categories,omitempty"`
	Limit      int      `json:"limit"`
}

// listAwards handles GET /v1/awards?from=&to=&min_value=&category=&limit=.
// Records come back sorted by value, largest first.
func (s *Server) listAwards(w http.ResponseWriter, r *http.Request) {
	q, records, ok := s.queryAwards(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, awardList{
		Query: queryDTO{
			From:       q.From.Format(award.DateLayout),
			To:         q.To.Format(award.DateLayout),
			MinValue:   q.MinValue,
			Categories: q.Categories,
			Limit:      q.Limit,
		},
		Summary: award.Summarize(records),
		Awards:  records,
	})
}

// exportAwards handles GET /v1/awards/export?format=csv|xlsx plus the listing
// filters.
func (s *Server) exportAwards(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil || format == export.FormatTable {
		writeError(w, http.StatusBadRequest, "format must be csv or xlsx", "")
		return
	}
	q, records, ok := s.queryAwards(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, format, records, s.opts.Currency); err != nil {
		s.logger.Error("export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed", "")
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(format, q)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Warn("export write failed", zap.Error(err))
	}
}

func (s *Server) queryAwards(w http.ResponseWriter, r *http.Request) (award.Query, []award.Record, bool) {
	if s.deps.Awards == nil || s.deps.Clock == nil {
		writeError(w, http.StatusServiceUnavailable, "award store unavailable", "")
		return award.Query{}, nil, false
	}
	q, err := s.parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return award.Query{}, nil, false
	}
	ctx, cancel := contextWithTimeout(r, listTimeout)
	defer cancel()
	records, err := s.deps.Awards.List(ctx, q)
	if err != nil {
		s.logger.Error("list awards failed", zap.Error(err))
		writeUpstreamError(w, err)
		return award.Query{}, nil, false
	}
	if records == nil {
		records = []award.Record{}
	}
	return q, records, true
}

func (s *Server) parseQuery(r *http.Request) (award.Query, error) {
	values := r.URL.Query()
	today := award.DateOnly(s.deps.Clock.Now())
	q := award.Query{
		From:  today.AddDate(0, 0, -s.opts.ListLookbackDays),
		To:    today,
		Limit: award.DefaultListLimit,
	}
	if raw := values.Get("from"); raw != "" {
		t, err := award.ParseDate(raw)
		if err != nil {
			return award.Query{}, fmt.Errorf("from: %w", err)
		}
		q.From = t
	}
	if raw := values.Get("to"); raw != "" {
		t, err := award.ParseDate(raw)
		if err != nil {
			return award.Query{}, fmt.Errorf("to: %w", err)
		}
		q.To = t
	}
	if q.From.After(q.To) {
		return award.Query{}, errors.New("from must not be after to")
	}
	if raw := values.Get("min_value"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return award.Query{}, errors.New("min_value must be a number >= 0")
		}
		q.MinValue = v
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return award.Query{}, errors.New("invalid limit")
		}
		q.Limit = min(n, award.DefaultListLimit)
	}
	for _, raw := range values["category"] {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				q.Categories = append(q.Categories, c)
			}
		}
	}
	return q, nil
}

func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
