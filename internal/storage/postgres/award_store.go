package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/award-digest/internal/award"
)

const awardColumns = 10

// AwardStore upserts canonical records into the awards table keyed by
// natural_key.
type AwardStore struct {
	pool  Pool
	table string
}

// NewAwardStore wraps pool. An empty table name means "awards".
func NewAwardStore(pool Pool, table string) (*AwardStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, "awards")
	if err != nil {
		return nil, err
	}
	return &AwardStore{pool: pool, table: name}, nil
}

// Upsert writes the chunk with one multi-row statement. Callers dedupe the
// chunk first; Postgres refuses to update the same row twice in one statement.
func (s *AwardStore) Upsert(ctx context.Context, records []award.Record) error {
	if len(records) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, `INSERT INTO %s (
	natural_key, company_name, company_id, value, title,
	authority_name, award_date, classification_code, category_label, notice_id
) VALUES `, s.table)
	args := make([]any, 0, len(records)*awardColumns)
	for i, r := range records {
		if i > 0 {
			b.WriteString(",")
		}
		base := i * awardColumns
		b.WriteString("(")
		for col := 1; col <= awardColumns; col++ {
			if col > 1 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", base+col)
		}
		b.WriteString(")")
		args = append(args,
			r.NaturalKey(),
			r.CompanyName,
			r.CompanyID,
			r.Value,
			r.Title,
			r.AuthorityName,
			r.AwardDate,
			r.ClassificationCode,
			r.CategoryLabel,
			r.NoticeID,
		)
	}
	b.WriteString(`
ON CONFLICT (natural_key) DO UPDATE SET
	company_name = EXCLUDED.company_name,
	company_id = EXCLUDED.company_id,
	value = EXCLUDED.value,
	title = EXCLUDED.title,
	authority_name = EXCLUDED.authority_name,
	award_date = EXCLUDED.award_date,
	classification_code = EXCLUDED.classification_code,
	category_label = EXCLUDED.category_label,
	notice_id = EXCLUDED.notice_id,
	updated_at = NOW()`)

	if _, err := s.pool.Exec(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("upsert awards: %w", err)
	}
	return nil
}

// List returns records in the query window, largest value first.
func (s *AwardStore) List(ctx context.Context, q award.Query) ([]award.Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = award.DefaultListLimit
	}
	categories := make([]string, 0, len(q.Categories))
	for _, c := range q.Categories {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, strings.ToLower(c))
		}
	}
	query := fmt.Sprintf(`
SELECT company_name, company_id, value, title, authority_name,
	award_date, classification_code, category_label, notice_id
FROM %s
WHERE ($1::date IS NULL OR award_date >= $1)
	AND ($2::date IS NULL OR award_date <= $2)
	AND value >= $3
	AND (cardinality($4::text[]) = 0 OR lower(category_label) = ANY($4))
ORDER BY value DESC, natural_key
LIMIT $5`, s.table)

	rows, err := s.pool.Query(ctx, query, optionalDate(q.From), optionalDate(q.To), q.MinValue, categories, limit)
	if err != nil {
		return nil, fmt.Errorf("list awards: %w", err)
	}
	defer rows.Close()

	var out []award.Record
	for rows.Next() {
		var r award.Record
		if err := rows.Scan(
			&r.CompanyName,
			&r.CompanyID,
			&r.Value,
			&r.Title,
			&r.AuthorityName,
			&r.AwardDate,
			&r.ClassificationCode,
			&r.CategoryLabel,
			&r.NoticeID,
		); err != nil {
			return nil, fmt.Errorf("scan award row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate award rows: %w", err)
	}
	return out, nil
}

func optionalDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	d := award.DateOnly(t)
	return &d
}
