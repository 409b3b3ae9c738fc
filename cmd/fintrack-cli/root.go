package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"fintrack/internal/core"
)

// itemsFile is the on-disk layout:
//
//	[[items]]
//	id = "home-loan"
//	type = "EMI"
//	amount = 20000
//	recurrence = "monthly"
//	start_date = "2025-01-31"
type itemsFile struct {
	Items []core.RecurringItem `toml:"items"`
}

type rootOptions struct {
	file string
	now  func() time.Time
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{now: time.Now}

	cmd := &cobra.Command{
		Use:           "fintrack-cli",
		Short:         "Recurring payment calculator",
		Long:          "Forecast EMIs, SIPs and fixed payments from a TOML file without a server.",
		SilenceUsage:  true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVarP(&opts.file, "file", "f", "recurring.toml", "TOML file of recurring items")

	cmd.AddCommand(
		newForecastCmd(opts),
		newDueCmd(opts),
		newMonthCmd(opts),
	)
	return cmd
}

// loadItems decodes and validates every item in the file.
func (o *rootOptions) loadItems() ([]core.RecurringItem, error) {
	var f itemsFile
	md, err := toml.DecodeFile(o.file, &f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", o.file, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("read %s: unknown key %q", o.file, undecoded[0].String())
	}

	items := make([]core.RecurringItem, 0, len(f.Items))
	for i, it := range f.Items {
		it = it.Normalize()
		if it.ID == "" {
			it.ID = fmt.Sprintf("item-%d", i+1)
		}
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("item %d (%s): %w", i+1, it.ID, err)
		}
		items = append(items, it)
	}
	return items, nil
}

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
}

func label(it core.RecurringItem) string {
	if it.Label != "" {
		return it.Label
	}
	return it.ID
}
