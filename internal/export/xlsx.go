package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	headerFill   = "4F81BD"
	percentFmt   = "0.00%"
	dateFmt      = "dd-mmm-yyyy"
	percentCol   = 5
	dateCol      = 6
	textColFirst = 1
	textColLast  = 7
)

// XLSXRenderer writes a single-sheet workbook.
type XLSXRenderer struct{}

var _ Renderer = XLSXRenderer{}

type xlsxStyles struct {
	title, header, text, centered, percent, date int
}

// Render writes r as an .xlsx workbook to w.
func (XLSXRenderer) Render(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	table := r.Table()
	for i, row := range table {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	styles, err := newStyles(f)
	if err != nil {
		return err
	}
	if err := applyStyles(f, styles, len(table)); err != nil {
		return err
	}

	for i, width := range ColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("set width of %s: %w", col, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func thinBorders() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
}

func newStyles(f *excelize.File) (xlsxStyles, error) {
	var s xlsxStyles
	pct, date := percentFmt, dateFmt
	centered := &excelize.Alignment{Horizontal: "center", Vertical: "center"}

	defs := []struct {
		id    *int
		style *excelize.Style
	}{
		{&s.title, &excelize.Style{Font: &excelize.Font{Bold: true}}},
		{&s.header, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
			Border:    thinBorders(),
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		}},
		{&s.text, &excelize.Style{
			Border:    thinBorders(),
			Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		}},
		{&s.centered, &excelize.Style{Border: thinBorders(), Alignment: centered}},
		{&s.percent, &excelize.Style{Border: thinBorders(), Alignment: centered, CustomNumFmt: &pct}},
		{&s.date, &excelize.Style{Border: thinBorders(), Alignment: centered, CustomNumFmt: &date}},
	}
	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return s, fmt.Errorf("create style: %w", err)
		}
		*d.id = id
	}
	return s, nil
}

func applyStyles(f *excelize.File, s xlsxStyles, rows int) error {
	if err := f.SetCellStyle(SheetName, "A1", "A1", s.title); err != nil {
		return err
	}

	lastCol, _ := excelize.ColumnNumberToName(len(Columns))
	if err := f.SetCellStyle(SheetName, fmt.Sprintf("A%d", HeaderRow), fmt.Sprintf("%s%d", lastCol, HeaderRow), s.header); err != nil {
		return err
	}
	if rows <= HeaderRow {
		return nil
	}

	first, last := HeaderRow+1, rows
	for col := 1; col <= len(Columns); col++ {
		style := s.centered
		switch col {
		case textColFirst, textColLast:
			style = s.text
		case percentCol:
			style = s.percent
		case dateCol:
			style = s.date
		}
		name, _ := excelize.ColumnNumberToName(col)
		if err := f.SetCellStyle(SheetName, fmt.Sprintf("%s%d", name, first), fmt.Sprintf("%s%d", name, last), style); err != nil {
			return err
		}
	}
	return nil
}
