package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/digest"
	"github.com/JakeFAU/award-digest/internal/export"
)

// listLookbackDays is the default listing range, matching the API.
const listLookbackDays = 30

type queryFlags struct {
	from       string
	to         string
	minValue   float64
	categories []string
	limit      int
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "first award date (YYYY-MM-DD, default 30 days ago)")
	cmd.Flags().StringVar(&f.to, "to", "", "last award date (YYYY-MM-DD, default today)")
	cmd.Flags().Float64Var(&f.minValue, "min-value", 0, "lower bound on the contract value")
	cmd.Flags().StringSliceVar(&f.categories, "category", nil, "category label to keep (repeatable)")
	cmd.Flags().IntVar(&f.limit, "limit", award.DefaultListLimit, "maximum number of awards")
}

func (f *queryFlags) query(rt Runtime) (award.Query, error) {
	today := award.DateOnly(rt.Clock().Now())
	q := award.Query{
		From:     today.AddDate(0, 0, -listLookbackDays),
		To:       today,
		MinValue: f.minValue,
		Limit:    f.limit,
	}
	if f.from != "" {
		t, err := award.ParseDate(f.from)
		if err != nil {
			return award.Query{}, fmt.Errorf("--from: %w", err)
		}
		q.From = t
	}
	if f.to != "" {
		t, err := award.ParseDate(f.to)
		if err != nil {
			return award.Query{}, fmt.Errorf("--to: %w", err)
		}
		q.To = t
	}
	if q.From.After(q.To) {
		return award.Query{}, errors.New("--from must not be after --to")
	}
	if q.MinValue < 0 {
		return award.Query{}, errors.New("--min-value must be >= 0")
	}
	if q.Limit <= 0 || q.Limit > award.DefaultListLimit {
		q.Limit = award.DefaultListLimit
	}
	for _, c := range f.categories {
		if c = strings.TrimSpace(c); c != "" {
			q.Categories = append(q.Categories, c)
		}
	}
	return q, nil
}

func newAwardsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "awards",
		Short: "Lists and exports stored awards",
	}
	cmd.AddCommand(newAwardsListCmd(opts), newAwardsExportCmd(opts))
	return cmd
}

func newAwardsListCmd(opts *rootOptions) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Prints stored awards as a table, largest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt Runtime) error {
				q, records, err := listAwards(ctx, rt, &flags)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					_, err := fmt.Fprintf(out, "No awards between %s and %s.\n",
						q.From.Format(award.DateLayout), q.To.Format(award.DateLayout))
					return err
				}
				s := award.Summarize(records)
				if _, err := fmt.Fprintf(out, "%d contracts, %s, %d companies\n",
					s.Count, digest.FormatMoney(s.Total, opts.cfg.Digest.Currency), s.CompanyCount); err != nil {
					return err
				}
				return export.Table(out, records, opts.cfg.Digest.Currency)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newAwardsExportCmd(opts *rootOptions) *cobra.Command {
	var (
		flags  queryFlags
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Writes stored awards to a CSV or XLSX file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil || f == export.FormatTable {
				return errors.New("--format must be csv or xlsx")
			}
			return opts.withRuntime(cmd, func(ctx context.Context, rt Runtime) error {
				q, records, err := listAwards(ctx, rt, &flags)
				if err != nil {
					return err
				}
				path := out
				if path == "" {
					path = export.Filename(f, q)
				}
				if err := writeExport(path, f, records, opts.cfg.Digest.Currency); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d awards to %s\n", len(records), path)
				return err
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", string(export.FormatCSV), "csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default awards_<from>_<to>.<format>)")
	return cmd
}

func listAwards(ctx context.Context, rt Runtime, flags *queryFlags) (award.Query, []award.Record, error) {
	q, err := flags.query(rt)
	if err != nil {
		return award.Query{}, nil, err
	}
	records, err := rt.Awards().List(ctx, q)
	if err != nil {
		msg, hint := award.Explain(err)
		return award.Query{}, nil, fmt.Errorf("%s %s: %w", msg, hint, err)
	}
	return q, records, nil
}

func writeExport(path string, f export.Format, records []award.Record, currency string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := export.Write(file, f, records, currency); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
