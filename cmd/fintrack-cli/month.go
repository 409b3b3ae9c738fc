package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/recurrence"
)

func newMonthCmd(opts *rootOptions) *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "month",
		Short: "Amount due per item in one month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := opts.now()
			if year == 0 {
				year = now.Year()
			}
			if month == 0 {
				month = int(now.Month())
			}
			if month < 1 || month > 12 {
				return core.ErrInvalidMonth
			}
			items, err := opts.loadItems()
			if err != nil {
				return err
			}

			m := time.Month(month)
			total := decimal.Zero
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintf(w, "Item\tType\tDate\tAmount\t\n")
			for _, it := range items {
				amt := recurrence.AmountForItemInMonth(it, year, m)
				if !amt.IsPositive() {
					continue
				}
				date := "-"
				if d, ok := recurrence.DueDateInMonth(it, year, m); ok {
					date = d.String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", label(it), it.Type, date, core.FormatAmount(amt))
				total = total.Add(amt)
			}
			fmt.Fprintf(w, "Total\t\t%s %d\t%s\t\n", m.String()[:3], year, core.FormatAmount(total))
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&year, "year", "y", 0, "Year (default current year)")
	cmd.Flags().IntVarP(&month, "month", "m", 0, "Month 1-12 (default current month)")
	return cmd
}
