// Package export renders award listings as CSV, XLSX workbooks and terminal
// tables.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/digest"
)

// Format names an output encoding.
type Format string

// Supported formats.
const (
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
	FormatTable Format = "table"
)

// SheetName is the worksheet holding the listing in XLSX exports.
const SheetName = "Awards"

// utf8BOM lets spreadsheet applications detect the encoding of CSV files.
const utf8BOM = "\ufeff"

// Columns is the header row shared by every format.
var Columns = []string{
	"Company",
	"Company ID",
	"Value",
	"Title",
	"Authority",
	"Category",
	"Award date",
	"Classification",
	"Notice ID",
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatCSV, FormatXLSX, FormatTable:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want csv, xlsx or table)", raw)
	}
}

// ContentType is the HTTP media type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Filename suggests a download name covering the query range.
func Filename(f Format, q award.Query) string {
	ext := string(f)
	if f == FormatTable {
		ext = "txt"
	}
	from, to := "all", "all"
	if !q.From.IsZero() {
		from = q.From.Format(award.DateLayout)
	}
	if !q.To.IsZero() {
		to = q.To.Format(award.DateLayout)
	}
	return fmt.Sprintf("awards_%s_%s.%s", from, to, ext)
}

// Write encodes records to w in format f.
func Write(w io.Writer, f Format, records []award.Record, currency string) error {
	switch f {
	case FormatCSV:
		return CSV(w, records)
	case FormatXLSX:
		return XLSX(w, records)
	case FormatTable:
		return Table(w, records, currency)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

// CSV writes a BOM-prefixed CSV with raw numeric values.
func CSV(w io.Writer, records []award.Record) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := row(r)
		line := make([]string, len(row))
		for i, v := range row {
			switch val := v.(type) {
			case float64:
				line[i] = strconv.FormatFloat(val, 'f', -1, 64)
			default:
				line[i] = fmt.Sprint(val)
			}
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// XLSX writes a single-sheet workbook with a bold, filterable header and a
// grouped number format on the value column.
func XLSX(w io.Writer, records []award.Record) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		values := row(r)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	last, err := excelize.CoordinatesToCellName(len(Columns), 1)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	if len(records) > 0 {
		money, err := f.NewStyle(&excelize.Style{NumFmt: 3})
		if err != nil {
			return fmt.Errorf("value style: %w", err)
		}
		end := fmt.Sprintf("C%d", len(records)+1)
		if err := f.SetCellStyle(SheetName, "C2", end, money); err != nil {
			return fmt.Errorf("apply value style: %w", err)
		}
	}
	if err := f.AutoFilter(SheetName, "A1:"+last, nil); err != nil {
		return fmt.Errorf("autofilter: %w", err)
	}
	for col, width := range map[string]float64{"A": 40, "C": 16, "D": 60, "E": 40, "F": 28} {
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Table renders a human-readable listing with a totals footer.
func Table(w io.Writer, records []award.Record, currency string) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"#", "Company", "Value", "Title", "Authority", "Category", "Date"})
	for i, r := range records {
		t.AppendRow(table.Row{
			i + 1,
			r.CompanyName,
			digest.FormatMoney(r.Value, currency),
			r.Title,
			r.AuthorityName,
			r.CategoryLabel,
			dateOf(r),
		})
	}
	s := award.Summarize(records)
	t.AppendFooter(table.Row{
		"",
		fmt.Sprintf("%d companies", s.CompanyCount),
		digest.FormatMoney(s.Total, currency),
		fmt.Sprintf("%d contracts", s.Count),
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 4, WidthMax: 60},
		{Number: 5, WidthMax: 40},
	})
	t.Render()
	return nil
}

func row(r award.Record) []any {
	return []any{
		r.CompanyName,
		r.CompanyID,
		r.Value,
		r.Title,
		r.AuthorityName,
		r.CategoryLabel,
		dateOf(r),
		r.ClassificationCode,
		r.NoticeID,
	}
}

func dateOf(r award.Record) string {
	if r.AwardDate.IsZero() {
		return ""
	}
	return r.AwardDate.Format(award.DateLayout)
}
