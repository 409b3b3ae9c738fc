package main

import (
	"fmt"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/recurrence"
)

func newDueCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "due",
		Short: "Next due date of every item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			from := civil.DateOf(opts.now())
			if date != "" {
				d, err := core.ParseDate(date)
				if err != nil {
					return err
				}
				from = d
			}
			items, err := opts.loadItems()
			if err != nil {
				return err
			}

			type row struct {
				item core.RecurringItem
				due  civil.Date
				ok   bool
			}
			rows := make([]row, len(items))
			for i, it := range items {
				due, ok := recurrence.NextDueDate(it, from)
				rows[i] = row{item: it, due: due, ok: ok}
			}
			sort.SliceStable(rows, func(i, j int) bool {
				if !rows[i].ok || !rows[j].ok {
					return rows[i].ok
				}
				return rows[i].due.Before(rows[j].due)
			})

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintf(w, "Item\tType\tDue\tAmount\t\n")
			for _, r := range rows {
				if !r.ok {
					fmt.Fprintf(w, "%s\t%s\t-\t-\t\n", label(r.item), r.item.Type)
					continue
				}
				amt := recurrence.AmountForItemInMonth(r.item, r.due.Year, r.due.Month)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", label(r.item), r.item.Type, r.due, core.FormatAmount(amt))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "Reference date YYYY-MM-DD (default today)")
	return cmd
}
