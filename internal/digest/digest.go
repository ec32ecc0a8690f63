// Package digest turns a set of canonical records into the daily notification
// payload. Building is pure; delivery is someone else's job.
package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/JakeFAU/award-digest/internal/award"
)

// Defaults used when Options leaves a field empty.
const (
	DefaultPreviewSize = 50
	DefaultCurrency    = "lei"
	titleLimit         = 80
	authorityLimit     = 50
)

// Options shape the rendered digest.
type Options struct {
	PreviewSize int
	Recipient   string
	Currency    string
	// Date labels the digest, usually the end of the query window.
	Date time.Time
}

// Payload is what gets handed to the mail relay.
type Payload struct {
	Subject      string         `json:"subject"`
	Recipient    string         `json:"recipient"`
	Body         string         `json:"body"`
	Count        int            `json:"count"`
	Total        float64        `json:"total"`
	CompanyCount int            `json:"company_count"`
	Preview      []award.Record `json:"-"`
	Omitted      int            `json:"omitted"`
	GeneratedFor string         `json:"generated_for"`
}

var printer = message.NewPrinter(language.Romanian)

var bodyTemplate = template.Must(template.New("digest").Funcs(template.FuncMap{
	"money":    func(v float64, currency string) string { return FormatMoney(v, currency) },
	"truncate": truncate,
	"date":     formatDate,
}).Parse(bodyHTML))

// Build aggregates records and renders the payload. The boolean is false when
// there is nothing to send; the payload is then the zero value.
func Build(records []award.Record, opts Options) (Payload, bool, error) {
	if len(records) == 0 {
		return Payload{}, false, nil
	}
	if opts.PreviewSize <= 0 {
		opts.PreviewSize = DefaultPreviewSize
	}
	if opts.Currency == "" {
		opts.Currency = DefaultCurrency
	}

	summary := award.Summarize(records)
	preview := records
	if len(preview) > opts.PreviewSize {
		preview = preview[:opts.PreviewSize]
	}
	preview = append([]award.Record(nil), preview...)
	label := formatDate(opts.Date)

	p := Payload{
		Subject:      fmt.Sprintf("%d new construction awards - %s", summary.Count, label),
		Recipient:    opts.Recipient,
		Count:        summary.Count,
		Total:        summary.Total,
		CompanyCount: summary.CompanyCount,
		Preview:      preview,
		Omitted:      summary.Count - len(preview),
		GeneratedFor: label,
	}

	body, err := render(bodyTemplate, struct {
		Payload
		Currency string
	}{p, opts.Currency})
	if err != nil {
		return Payload{}, false, err
	}
	p.Body = body
	return p, true, nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render digest body: %w", err)
	}
	return buf.String(), nil
}

// FormatMoney renders v with Romanian digit grouping and no decimals.
func FormatMoney(v float64, currency string) string {
	s := printer.Sprintf("%.0f", v)
	if currency == "" {
		return s
	}
	return s + " " + currency
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(award.DateLayout)
}

const bodyHTML = `<html><body style="font-family: Arial, sans-serif;">
<h2>{{.Count}} new construction and engineering awards</h2>
<p>Date: <b>{{.GeneratedFor}}</b> | Total value: <b>{{money .Total .Currency}}</b> | Companies: <b>{{.CompanyCount}}</b></p>
<table border="1" cellpadding="5" style="border-collapse: collapse; font-size: 13px;">
<tr style="background: #2c3e50; color: white;"><th>Company</th><th>Tax ID</th><th>Value</th><th>Category</th><th>Contract</th><th>Authority</th><th>Date</th></tr>
{{- range .Preview}}
<tr><td><b>{{.CompanyName}}</b></td><td>{{.CompanyID}}</td><td style="text-align: right;">{{money .Value $.Currency}}</td><td>{{.CategoryLabel}}</td><td>{{truncate .Title 80}}</td><td>{{truncate .AuthorityName 50}}</td><td>{{date .AwardDate}}</td></tr>
{{- end}}
</table>
{{- if gt .Omitted 0}}
<p>... and {{.Omitted}} more awards.</p>
{{- end}}
</body></html>
`
