package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsPublisher writes reports into a Google Spreadsheet.
type SheetsPublisher struct {
	svc           *sheets.Service
	spreadsheetID string
	sheet         string
}

// NewSheetsPublisher authenticates with service-account credentials. Missing
// credentials or spreadsheet id yield ErrExportDependencyNotReady.
func NewSheetsPublisher(ctx context.Context, credentialsJSON []byte, spreadsheetID string) (*SheetsPublisher, error) {
	if len(credentialsJSON) == 0 || strings.TrimSpace(spreadsheetID) == "" {
		return nil, ErrExportDependencyNotReady
	}
	return NewSheetsPublisherWithOptions(ctx, spreadsheetID,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
}

// NewSheetsPublisherWithOptions builds a publisher from explicit client options.
func NewSheetsPublisherWithOptions(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*SheetsPublisher, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, ErrExportDependencyNotReady
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create sheets service: %w", ErrExportDependencyNotReady, err)
	}
	return &SheetsPublisher{svc: svc, spreadsheetID: spreadsheetID, sheet: SheetName}, nil
}

// Publish replaces the contents of the report worksheet, creating it if needed.
func (p *SheetsPublisher) Publish(ctx context.Context, r Report) error {
	if p == nil || p.svc == nil {
		return ErrExportDependencyNotReady
	}
	if err := p.ensureSheet(ctx); err != nil {
		return err
	}

	rng := fmt.Sprintf("'%s'!A1", p.sheet)
	if _, err := p.svc.Spreadsheets.Values.Clear(p.spreadsheetID, fmt.Sprintf("'%s'", p.sheet), &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}

	vr := &sheets.ValueRange{Values: sheetValues(r)}
	if _, err := p.svc.Spreadsheets.Values.Update(p.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}

	slog.Info("report published",
		"component", "export",
		"action", "publish",
		"spreadsheet", p.spreadsheetID,
		"rows", len(r.Rows),
	)
	return nil
}

func (p *SheetsPublisher) ensureSheet(ctx context.Context) error {
	ss, err := p.svc.Spreadsheets.Get(p.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == p.sheet {
			return nil
		}
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{Requests: []*sheets.Request{{
		AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: p.sheet}},
	}}}
	if _, err := p.svc.Spreadsheets.BatchUpdate(p.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	return nil
}

// sheetValues converts the report grid into Sheets cell values. Dates are
// written as ISO strings so USER_ENTERED parses them as dates.
func sheetValues(r Report) [][]any {
	table := r.Table()
	for _, row := range table {
		for i, v := range row {
			if t, ok := v.(time.Time); ok {
				row[i] = t.Format(time.DateOnly)
			}
		}
	}
	return table
}
