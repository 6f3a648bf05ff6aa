// Package export shapes the activity list into a report and renders it as a
// spreadsheet.
package export

import (
	"errors"
	"regexp"
	"time"

	"github.com/hyperengineering/goalboard/internal/types"
)

// ErrExportDependencyNotReady is returned when no renderer or publisher is available.
var ErrExportDependencyNotReady = errors.New("export dependency not ready")

// SheetName is the single worksheet of an exported report.
const SheetName = "Laporan Kinerja"

// UserNameLabel heads the user block at A1.
const UserNameLabel = "Nama Pengguna:"

// Columns are the report's column headers, in order.
var Columns = []string{
	"Nama Aktivitas",
	"Target Bulanan",
	"Pencapaian Aktual (Jumlah)",
	"Satuan",
	"Persentase Tercapai (%)",
	"Tanggal Pencapaian",
	"Deskripsi Pencapaian",
}

// ColumnWidths are the column widths in characters.
var ColumnWidths = []float64{45, 15, 25, 10, 25, 18, 50}

// HeaderRow is the 1-based row of the column header.
const HeaderRow = 3

// Row is one body row: one achievement record, or a placeholder for an
// activity with none.
type Row struct {
	ActivityName string
	Target       int
	ActualCount  int
	Unit         string
	// Ratio is actual/target, uncapped, 0 when target is 0.
	Ratio       float64
	Date        time.Time
	Description string
}

// Placeholder reports whether the row stands in for an activity with no records.
func (r Row) Placeholder() bool {
	return r.Date.IsZero() && r.Description == ""
}

// Report is the shaped export.
type Report struct {
	UserName string
	Rows     []Row
}

// BuildReport groups rows by activity in list order, with records sorted by
// date ascending.
func BuildReport(activities []types.Activity, userName string) Report {
	r := Report{UserName: userName}
	for _, a := range activities {
		base := Row{
			ActivityName: a.Name,
			Target:       a.Target,
			ActualCount:  a.ActualCount(),
			Unit:         a.Unit,
			Ratio:        a.RawPercent() / 100,
		}
		if len(a.Actual) == 0 {
			r.Rows = append(r.Rows, base)
			continue
		}
		for _, rec := range a.SortedActual(true) {
			row := base
			row.Date = parseDate(rec.Date)
			row.Description = rec.Description
			r.Rows = append(r.Rows, row)
		}
	}
	return r
}

func parseDate(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Table returns the report as a grid: the user block, a blank row, the column
// header and the body. Dates are time.Time values; empty cells are "".
func (r Report) Table() [][]any {
	out := make([][]any, 0, len(r.Rows)+HeaderRow)
	out = append(out, []any{UserNameLabel, r.UserName}, []any{})

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	out = append(out, header)

	for _, row := range r.Rows {
		var date any = ""
		if !row.Date.IsZero() {
			date = row.Date
		}
		out = append(out, []any{
			row.ActivityName,
			row.Target,
			row.ActualCount,
			row.Unit,
			row.Ratio,
			date,
			row.Description,
		})
	}
	return out
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// FileName returns the download name for a user's report.
func FileName(userName string) string {
	name := whitespaceRun.ReplaceAllString(userName, "_")
	name = pathUnsafe.Replace(name)
	if name == "" {
		name = "MT-ID"
	}
	return "Laporan_Kinerja_" + name + ".xlsx"
}
