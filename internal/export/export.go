package export

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hyperengineering/goalboard/internal/types"
)

// pathUnsafe maps characters that are separators or reserved on common
// filesystems.
var pathUnsafe = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// Renderer serializes a report.
type Renderer interface {
	Render(w io.Writer, r Report) error
}

// File is a rendered report.
type File struct {
	Name string
	Data []byte
}

// Exporter renders reports with a configured Renderer.
type Exporter struct {
	renderer Renderer
}

// NewExporter returns an Exporter. A nil renderer makes Export fail with
// ErrExportDependencyNotReady.
func NewExporter(r Renderer) *Exporter {
	return &Exporter{renderer: r}
}

// Export builds and renders the report for activities.
func (e *Exporter) Export(activities []types.Activity, userName string) (File, error) {
	if e == nil || e.renderer == nil {
		return File{}, ErrExportDependencyNotReady
	}

	report := BuildReport(activities, userName)
	var buf bytes.Buffer
	if err := e.renderer.Render(&buf, report); err != nil {
		return File{}, fmt.Errorf("render report: %w", err)
	}

	f := File{Name: FileName(userName), Data: buf.Bytes()}
	slog.Info("report exported",
		"component", "export",
		"action", "export",
		"file", f.Name,
		"rows", len(report.Rows),
		"bytes", len(f.Data),
	)
	return f, nil
}
