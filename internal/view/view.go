// Package view renders the dashboard for the terminal.
package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hyperengineering/goalboard/internal/preferences"
	"github.com/hyperengineering/goalboard/internal/types"
)

const (
	cardWidth = 76
	barWidth  = 40
)

type palette struct {
	text, muted, border      lipgloss.Color
	complete, near, progress lipgloss.Color
	noticeFg, noticeBg       lipgloss.Color
}

var (
	lightPalette = palette{
		text:     lipgloss.Color("#111827"),
		muted:    lipgloss.Color("#6B7280"),
		border:   lipgloss.Color("#D1D5DB"),
		complete: lipgloss.Color("#22C55E"),
		near:     lipgloss.Color("#EAB308"),
		progress: lipgloss.Color("#3B82F6"),
		noticeFg: lipgloss.Color("#991B1B"),
		noticeBg: lipgloss.Color("#FEE2E2"),
	}
	darkPalette = palette{
		text:     lipgloss.Color("#F9FAFB"),
		muted:    lipgloss.Color("#9CA3AF"),
		border:   lipgloss.Color("#4B5563"),
		complete: lipgloss.Color("#22C55E"),
		near:     lipgloss.Color("#EAB308"),
		progress: lipgloss.Color("#60A5FA"),
		noticeFg: lipgloss.Color("#FECACA"),
		noticeBg: lipgloss.Color("#7F1D1D"),
	}
)

// Renderer holds theme-specific styles.
type Renderer struct {
	p palette

	title  lipgloss.Style
	card   lipgloss.Style
	name   lipgloss.Style
	muted  lipgloss.Style
	notice lipgloss.Style
}

// New returns a Renderer for theme.
func New(theme preferences.Theme) *Renderer {
	p := lightPalette
	if theme == preferences.ThemeDark {
		p = darkPalette
	}
	return &Renderer{
		p:     p,
		title: lipgloss.NewStyle().Bold(true).Foreground(p.text).MarginBottom(1),
		card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.border).
			Padding(0, 1).
			Width(cardWidth),
		name:  lipgloss.NewStyle().Bold(true).Foreground(p.text),
		muted: lipgloss.NewStyle().Foreground(p.muted),
		notice: lipgloss.NewStyle().
			Foreground(p.noticeFg).
			Background(p.noticeBg).
			Padding(0, 1),
	}
}

func (r *Renderer) tierColor(t types.ProgressTier) lipgloss.Color {
	switch t {
	case types.TierComplete:
		return r.p.complete
	case types.TierNear:
		return r.p.near
	default:
		return r.p.progress
	}
}

// ProgressBar renders the capped progress of a.
func (r *Renderer) ProgressBar(a types.Activity) string {
	pct := a.ProgressPercent()
	filled := int(pct * barWidth / 100)
	bar := lipgloss.NewStyle().Foreground(r.tierColor(a.ProgressTier())).Render(strings.Repeat("█", filled))
	rest := r.muted.Render(strings.Repeat("░", barWidth-filled))
	return bar + rest + " " + fmt.Sprintf("%.0f%% Tercapai", pct)
}

// Card renders one activity with its records, newest first.
func (r *Renderer) Card(a types.Activity) string {
	var b strings.Builder
	b.WriteString(r.name.Render(a.Name))
	b.WriteString("\n")
	b.WriteString(r.muted.Render(fmt.Sprintf("[%s] Target: %d %s | Aktual: %d %s", a.ID, a.Target, a.Unit, a.ActualCount(), a.Unit)))
	b.WriteString("\n")
	b.WriteString(r.ProgressBar(a))

	records := a.SortedActual(false)
	if len(records) == 0 {
		b.WriteString("\n")
		b.WriteString(r.muted.Render("Belum ada pencapaian."))
	}
	for _, rec := range records {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("• %s  %s  %s", rec.Date, rec.Description, r.muted.Render(rec.ID)))
	}
	return r.card.Render(b.String())
}

// Notice renders the banner, or "" when msg is empty.
func (r *Renderer) Notice(msg string) string {
	if msg == "" {
		return ""
	}
	return r.notice.Render(msg)
}

// Board renders the header, optional notice and every activity card.
func (r *Renderer) Board(userName string, activities []types.Activity, notice string) string {
	name := userName
	if name == "" {
		name = "(tanpa nama)"
	}

	parts := []string{r.title.Render("Dasbor Kinerja Bulanan · " + name)}
	if n := r.Notice(notice); n != "" {
		parts = append(parts, n)
	}
	for _, a := range activities {
		parts = append(parts, r.Card(a))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
