package data

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/phil-mansfield/impact/lib/impactio"
	"github.com/phil-mansfield/impact/lib/stats"
)

// Print writes a summary of the loaded run to w: one row per table, then one
// row per bunch with its particle counts, RMS emittances, and mean final
// energy.
func (d *Data) Print(w io.Writer) error {
	if err := d.checkLoaded(); err != nil {
		return err
	}

	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Run %s (%s, %d bunches)\n", d.layout.Dir, d.variant,
		d.bunchCount)
	fmt.Fprintf(sb, "  slices: %s [%d, %d]  particles: %s  cells: %d\n\n",
		humanize.Comma(int64(d.sliceCount)), d.firstSlice, d.lastSlice,
		humanize.Comma(int64(d.particleCount)), d.cellCount)

	tables := newSummaryTable()
	tables.AppendHeader(table.Row{"Table", "Rows", "Columns"})
	for _, t := range d.Tables() {
		tables.AppendRow(table.Row{
			t.Name(), humanize.Comma(int64(t.Len())),
			strings.Join(t.Columns(), " "),
		})
	}
	tables.AppendFooter(table.Row{fmt.Sprintf("%d tables", len(d.Tables()))})
	sb.WriteString(tables.Render())
	sb.WriteString("\n\n")

	bunches := newSummaryTable()
	bunches.AppendHeader(table.Row{
		"Bunch", "Name", "Start", "End", "Emit x (start)", "Emit y (start)",
		"Mean W (MeV)",
	})
	for bunch := 1; bunch <= d.bunchCount; bunch++ {
		bunches.AppendRow(d.bunchSummary(bunch))
	}
	sb.WriteString(bunches.Render())
	sb.WriteString("\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func (d *Data) bunchSummary(bunch int) table.Row {
	row := table.Row{bunch, d.names[bunch-1], "-", "-", "-", "-", "-"}

	if t, err := d.PhaseTable(impactio.StartLocation, bunch); err == nil {
		row[2] = humanize.Comma(int64(t.Len()))
		row[4] = fmt.Sprintf("%.4g", stats.RMSEmittance(
			MustColumn(t, "x"), MustColumn(t, "px")))
		row[5] = fmt.Sprintf("%.4g", stats.RMSEmittance(
			MustColumn(t, "y"), MustColumn(t, "py")))
	}
	if t, err := d.PhaseTable(impactio.EndLocation, bunch); err == nil {
		row[3] = humanize.Comma(int64(t.Len()))
	}
	if t, err := d.EndTable(bunch); err == nil && t.Len() > 0 {
		row[6] = fmt.Sprintf("%.4f", stats.Mean(MustColumn(t, "W")))
	}

	return row
}

func newSummaryTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	return tbl
}
