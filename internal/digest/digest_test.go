package digest

import (
	"fmt"
	"html/template"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/award-digest/internal/award"
)

func TestBuild_EmptyIsSkipped(t *testing.T) {
	t.Parallel()

	p, ok, err := Build(nil, Options{})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, Payload{}, p)
}

func TestBuild_TruncatesPreview(t *testing.T) {
	t.Parallel()

	records := make([]award.Record, 0, 75)
	for i := 0; i < 75; i++ {
		records = append(records, award.Record{
			CompanyName: fmt.Sprintf("Company %02d", i),
			CompanyID:   fmt.Sprintf("%d", i%10),
			Value:       1000,
		})
	}

	p, ok, err := Build(records, Options{PreviewSize: 50, Recipient: "ops@example.com", Date: day()})

	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 75, p.Count)
	require.Len(t, p.Preview, 50)
	require.Equal(t, 25, p.Omitted)
	require.Equal(t, "Company 00", p.Preview[0].CompanyName)
	require.Equal(t, "Company 49", p.Preview[49].CompanyName)
	require.InDelta(t, 75000.0, p.Total, 0)
	require.Equal(t, 10, p.CompanyCount)
	require.Equal(t, "ops@example.com", p.Recipient)
	require.Equal(t, "75 new construction awards - 2026-10-19", p.Subject)
	require.Contains(t, p.Body, "... and 25 more awards.")
	require.NotContains(t, p.Body, "Company 50")
}

func TestBuild_SmallSetHasNoOverflowLine(t *testing.T) {
	t.Parallel()

	records := []award.Record{
		{CompanyName: "A", CompanyID: "1", Value: 1234567, Title: strings.Repeat("t", 120),
			AuthorityName: "Authority <b>", AwardDate: day(), CategoryLabel: "Road construction"},
		{CompanyName: "B", Value: 10},
	}

	p, ok, err := Build(records, Options{Date: day()})

	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, p.Omitted)
	require.NotContains(t, p.Body, "more awards")
	require.Contains(t, p.Body, strings.Repeat("t", 80)+"</td>")
	require.NotContains(t, p.Body, strings.Repeat("t", 81))
	require.Contains(t, p.Body, "Authority &lt;b&gt;")
	require.Contains(t, p.Body, "Road construction")
	require.Contains(t, p.Body, "2026-10-19")
	require.Equal(t, 2, p.CompanyCount)
}

func TestBuild_IsPure(t *testing.T) {
	t.Parallel()

	records := []award.Record{{CompanyName: "A", Value: 1}, {CompanyName: "B", Value: 2}}
	first, _, err := Build(records, Options{PreviewSize: 1, Date: day()})
	require.NoError(t, err)
	second, _, err := Build(records, Options{PreviewSize: 1, Date: day()})
	require.NoError(t, err)
	require.Equal(t, first, second)

	first.Preview[0].CompanyName = "mutated"
	require.Equal(t, "A", records[0].CompanyName)
}

func TestRenderReportsTemplateErrors(t *testing.T) {
	t.Parallel()

	tmpl := template.Must(template.New("broken").Parse(`{{.Missing}}`))

	body, err := render(tmpl, Payload{})

	require.ErrorContains(t, err, "render digest body")
	require.Empty(t, body)
}

func TestFormatMoney(t *testing.T) {
	t.Parallel()

	got := FormatMoney(1234567, "lei")
	require.True(t, strings.HasSuffix(got, " lei"))
	require.Contains(t, got, "234")
	require.Contains(t, got, "567")
	require.NotContains(t, FormatMoney(5, ""), " ")
}

func TestTruncateCountsRunes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Școală", truncate("Școală nouă", 6))
	require.Equal(t, "abc", truncate("abc", 10))
}

func day() time.Time {
	return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
}
