package award

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	keyhash "github.com/JakeFAU/award-digest/internal/hash/sha256"
)

// Upstream field names read from a RawAwardItem.
const (
	fieldCode      = "cpvCode"
	fieldCompany   = "supplierName"
	fieldCompanyID = "supplierId"
	fieldValue     = "contractValue"
	fieldTitle     = "contractTitle"
	fieldAuthority = "contractingAuthorityName"
	fieldDate      = "awardDate"
	fieldNotice    = "noticeId"
)

// DefaultPrefixes are the construction and engineering classification roots.
var DefaultPrefixes = []string{"45", "71"}

// Normalize converts raw items into canonical records, keeping only items
// whose classification code starts with one of prefixes. Input order is kept.
// Records without an award date carry a zero AwardDate.
func Normalize(items []RawAwardItem, prefixes []string) []Record {
	out := make([]Record, 0, len(items))
	for _, item := range items {
		code := text(item[fieldCode])
		if !Accepts(code, prefixes) {
			continue
		}
		out = append(out, Record{
			CompanyName:        orPlaceholder(text(item[fieldCompany])),
			CompanyID:          text(item[fieldCompanyID]),
			Value:              ParseValue(item[fieldValue]),
			Title:              orPlaceholder(text(item[fieldTitle])),
			AuthorityName:      orPlaceholder(text(item[fieldAuthority])),
			AwardDate:          parseAwardDate(item[fieldDate]),
			ClassificationCode: code,
			CategoryLabel:      CategoryLabel(code),
			NoticeID:           text(item[fieldNotice]),
		})
	}
	return out
}

// Accepts reports whether code is non-empty and starts with an accepted prefix.
func Accepts(code string, prefixes []string) bool {
	if code == "" {
		return false
	}
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// NaturalKey identifies the real-world award a record describes. Notices are
// keyed by company and notice id; records without a notice id fall back to
// company, award date and title.
func (r Record) NaturalKey() string {
	if r.NoticeID != "" {
		return keyhash.Key(r.CompanyID, "notice", r.NoticeID)
	}
	return keyhash.Key(r.CompanyID, "date", r.AwardDate.Format(DateLayout), r.Title)
}

// Dedupe collapses records sharing a natural key, keeping the last occurrence
// at the position of the first. It returns the number of dropped records.
func Dedupe(records []Record) ([]Record, int) {
	index := make(map[string]int, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		key := r.NaturalKey()
		if i, ok := index[key]; ok {
			out[i] = r
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out, len(records) - len(out)
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func orPlaceholder(s string) string {
	if s == "" {
		return Placeholder
	}
	return s
}

func parseAwardDate(v any) time.Time {
	raw := text(v)
	if raw == "" {
		return time.Time{}
	}
	t, err := ParseDate(raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
