package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/registry"
)

const lookupTimeout = 15 * time.Second

type companyResponse struct {
	Company   registry.Company `json:"company"`
	SearchURL string           `json:"search_url"`
	Awards    *award.Summary   `json:"awards,omitempty"`
}

// getCompany handles GET /v1/companies/{company_id}. When the award store is
// available the response also summarizes the company's awards over the
// listing range (from/to behave as in /v1/awards).
func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) {
	if s.deps.Registry == nil {
		writeError(w, http.StatusServiceUnavailable, "company registry unavailable", "")
		return
	}
	id := chi.URLParam(r, "company_id")
	searchURL := registry.SearchURL(id)

	ctx, cancel := contextWithTimeout(r, lookupTimeout)
	defer cancel()
	company, err := s.deps.Registry.Company(ctx, id)
	switch {
	case errors.Is(err, registry.ErrInvalidID):
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, "company not found in registry", "Search the trade register: "+searchURL)
		return
	case err != nil:
		s.logger.Warn("registry lookup failed", zap.String("company_id", id), zap.Error(err))
		msg, _ := award.Explain(err)
		writeError(w, http.StatusBadGateway, "Company details could not be determined. "+msg,
			"Search the trade register: "+searchURL)
		return
	}

	resp := companyResponse{Company: company, SearchURL: searchURL}
	if s.deps.Awards != nil && s.deps.Clock != nil {
		q, err := s.parseQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		records, err := s.deps.Awards.List(ctx, q)
		if err != nil {
			s.logger.Warn("company award summary unavailable", zap.Error(err))
		} else {
			summary := award.Summarize(award.ByCompany(records, id))
			resp.Awards = &summary
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
