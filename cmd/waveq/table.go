package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// renderRequestTable formats the list command output. Progress is
// right-aligned; status values are colorized when out is a terminal.
func renderRequestTable(out io.Writer, requests []statusResponse) string {
	tw := newTableWriter()
	tw.AppendHeader(table.Row{"REQUEST", "STATUS", "PROGRESS", "UPDATED"})
	for _, req := range requests {
		progress := ""
		if req.Progress != nil {
			progress = fmt.Sprintf("%.0f%%", *req.Progress*100)
		}
		tw.AppendRow(table.Row{req.RequestID, colorStatus(out, req.Status), progress, req.UpdatedAt})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

// renderOperationTable formats the operations command output, one row per
// catalog operation with its aliases and default parameters.
func renderOperationTable(ops []operationInfo) string {
	tw := newTableWriter()
	tw.AppendHeader(table.Row{"OPERATION", "DESCRIPTION", "ALIASES", "DEFAULTS"})
	for _, op := range ops {
		tw.AppendRow(table.Row{
			op.Name,
			op.Description,
			strings.Join(op.Aliases, ", "),
			formatDefaults(op.Defaults),
		})
	}
	return tw.Render()
}

func newTableWriter() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	return tw
}
