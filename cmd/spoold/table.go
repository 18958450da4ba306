package main

import (
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/granobox/spool/internal/db"
	"github.com/granobox/spool/internal/discovery"
)

// newTable returns a rounded writer with the given header. Columns listed in
// numeric (1-based) are right aligned.
func newTable(header table.Row, numeric ...int) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)

	configs := make([]table.ColumnConfig, 0, len(numeric))
	for _, col := range numeric {
		configs = append(configs, table.ColumnConfig{
			Number:      col,
			Align:       text.AlignRight,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

func statusTable(stats *db.QueueStats) string {
	if stats == nil {
		stats = &db.QueueStats{}
	}

	tw := newTable(table.Row{"Status", "Count"}, 2)
	tw.AppendRows([]table.Row{
		{db.JobStatusPending, stats.Pending},
		{db.JobStatusPrinted, stats.Printed},
		{db.JobStatusFailed, stats.Failed},
		{db.JobStatusError, stats.Error},
	})
	tw.AppendFooter(table.Row{"total", stats.Total})
	return tw.Render()
}

func itemsTable(items []*db.PrintJob) string {
	tw := newTable(table.Row{"ID", "Status", "Retries", "Created", "Error"}, 1, 3)
	for _, item := range items {
		created := ""
		if !item.CreatedAt.IsZero() {
			created = item.CreatedAt.Local().Format(time.DateTime)
		}
		tw.AppendRow(table.Row{
			strconv.FormatInt(item.ID, 10),
			item.Status,
			item.RetryCount,
			created,
			item.ErrorMessage,
		})
	}
	return tw.Render()
}

func devicesTable(devices []discovery.PrinterDevice) string {
	tw := newTable(table.Row{"Address", "Name", "Type"})
	for _, d := range devices {
		tw.AppendRow(table.Row{d.Address, d.Name, d.Type})
	}
	return tw.Render()
}
