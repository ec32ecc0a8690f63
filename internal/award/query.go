package award

import (
	"slices"
	"strings"
)

// Filter applies the date range, minimum value and category selection of q
// to records. Zero bounds and an empty category list select everything.
func Filter(records []Record, q Query) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if !q.From.IsZero() && DateOnly(r.AwardDate).Before(DateOnly(q.From)) {
			continue
		}
		if !q.To.IsZero() && DateOnly(r.AwardDate).After(DateOnly(q.To)) {
			continue
		}
		if r.Value < q.MinValue {
			continue
		}
		if len(q.Categories) > 0 && !slices.ContainsFunc(q.Categories, func(c string) bool {
			return strings.EqualFold(strings.TrimSpace(c), r.CategoryLabel)
		}) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SortByValueDesc orders records by value, largest first; ties keep input order.
func SortByValueDesc(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		switch {
		case a.Value > b.Value:
			return -1
		case a.Value < b.Value:
			return 1
		default:
			return 0
		}
	})
}

// Summary aggregates a set of records.
type Summary struct {
	Count        int     `json:"count"`
	Total        float64 `json:"total"`
	CompanyCount int     `json:"company_count"`
}

// Summarize counts records, sums their values and counts distinct companies.
// Companies are identified by id when present, otherwise by name.
func Summarize(records []Record) Summary {
	companies := make(map[string]struct{}, len(records))
	var s Summary
	for _, r := range records {
		s.Count++
		s.Total += r.Value
		key := r.CompanyID
		if key == "" {
			key = "name:" + r.CompanyName
		}
		companies[key] = struct{}{}
	}
	s.CompanyCount = len(companies)
	return s
}

// ByCompany keeps the records awarded to the company with the given
// identifier. Identifiers compare without the RO prefix, spaces or case.
func ByCompany(records []Record, id string) []Record {
	want := companyKey(id)
	out := make([]Record, 0)
	if want == "" {
		return out
	}
	for _, r := range records {
		if companyKey(r.CompanyID) == want {
			out = append(out, r)
		}
	}
	return out
}

func companyKey(id string) string {
	id = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(id), " ", ""))
	return strings.TrimPrefix(id, "RO")
}
