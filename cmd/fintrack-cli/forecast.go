package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/recurrence"
)

func newForecastCmd(opts *rootOptions) *cobra.Command {
	var (
		year int
		typ  string
	)
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Monthly totals for a year",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := core.ItemType(typ)
			if filter != "" && !filter.Valid() {
				return fmt.Errorf("%w: %q", core.ErrInvalidType, typ)
			}
			if year == 0 {
				year = opts.now().Year()
			}
			items, err := opts.loadItems()
			if err != nil {
				return err
			}

			totals := recurrence.MonthlyTotalsByType(items, year, filter)
			sum := decimal.Zero
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintf(w, "Month\tAmount\t\n")
			for i, amt := range totals {
				fmt.Fprintf(w, "%s %d\t%s\t\n", time.Month(i+1).String()[:3], year, core.FormatAmount(amt))
				sum = sum.Add(amt)
			}
			fmt.Fprintf(w, "Total\t%s\t\n", core.FormatAmount(sum))
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&year, "year", "y", 0, "Year to forecast (default current year)")
	cmd.Flags().StringVarP(&typ, "type", "t", "", "Only EMI, SIP or Fixed items")
	return cmd
}
