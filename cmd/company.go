package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/digest"
	"github.com/JakeFAU/award-digest/internal/registry"
)

func newCompanyCmd(opts *rootOptions) *cobra.Command {
	var flags queryFlags
	cmd := &cobra.Command{
		Use:   "company <id>",
		Short: "Looks up a company's contact details and recent awards",
		Long: `Queries the trade registry for the company's name, address, phone and
e-mail, and summarizes its stored awards over the listing range. When the
registry cannot answer, the trade-register search link is printed instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt Runtime) error {
				return runCompany(ctx, cmd, opts, rt, &flags, args[0])
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func runCompany(ctx context.Context, cmd *cobra.Command, opts *rootOptions, rt Runtime, flags *queryFlags, id string) error {
	out := cmd.OutOrStdout()
	searchURL := registry.SearchURL(id)

	company, err := rt.Registry().Company(ctx, id)
	switch {
	case errors.Is(err, registry.ErrInvalidID):
		return err
	case errors.Is(err, registry.ErrNotFound):
		fmt.Fprintf(cmd.ErrOrStderr(), "Search the trade register: %s\n", searchURL)
		return fmt.Errorf("company %s: %w", id, err)
	case err != nil:
		msg, _ := award.Explain(err)
		fmt.Fprintf(cmd.ErrOrStderr(), "Search the trade register: %s\n", searchURL)
		return fmt.Errorf("company details could not be determined. %s: %w", msg, err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendRows([]table.Row{
		{"Name", company.Name},
		{"Tax ID", company.TaxID},
		{"Address", company.Address},
		{"Phone", orDash(company.Phone)},
		{"E-mail", orDash(company.Email)},
		{"Register", searchURL},
	})

	q, records, err := listAwards(ctx, rt, flags)
	if err != nil {
		opts.logger.Warn("company award summary unavailable", zap.String("company_id", id), zap.Error(err))
	} else {
		s := award.Summarize(award.ByCompany(records, id))
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"Contracts", fmt.Sprintf("%d (%s to %s)", s.Count,
				q.From.Format(award.DateLayout), q.To.Format(award.DateLayout))},
			{"Total value", digest.FormatMoney(s.Total, opts.cfg.Digest.Currency)},
		})
	}
	t.Render()
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
