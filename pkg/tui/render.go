package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/panelflow/panelflow/pkg/engine"
)

// Catppuccin Mocha subset.
const (
	colorPink     lipgloss.Color = "#f5c2e7"
	colorMauve    lipgloss.Color = "#cba6f7"
	colorYellow   lipgloss.Color = "#f9e2af"
	colorGreen    lipgloss.Color = "#a6e3a1"
	colorTeal     lipgloss.Color = "#94e2d5"
	colorBlue     lipgloss.Color = "#89b4fa"
	colorLavender lipgloss.Color = "#b4befe"

	colorText     lipgloss.Color = "#cdd6f4"
	colorSubtext0 lipgloss.Color = "#a6adc8"
	colorOverlay0 lipgloss.Color = "#6c7086"
	colorSurface1 lipgloss.Color = "#45475a"
	colorSurface0 lipgloss.Color = "#313244"
	colorMantle   lipgloss.Color = "#181825"
)

var (
	headerBarStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorMantle).
			Padding(0, 2)

	headerAppStyle = lipgloss.NewStyle().
			Foreground(colorPink).
			Bold(true)

	schemeStyle = lipgloss.NewStyle().
			Foreground(colorTeal).
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorSubtext0).
			Background(colorMantle).
			Padding(0, 2)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorPink).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface1).
			Padding(0, 1)

	mainPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorBlue).
			Padding(0, 1)

	focusedBorder = colorLavender

	loadingStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorYellow).
			Padding(1, 3)

	dimStyle = lipgloss.NewStyle().Foreground(colorOverlay0)
)

const (
	panelWidth   = 34
	cascadeX     = 4
	cascadeY     = 2
	progressBars = 20
)

// RenderOptions carries the non-screen state shown around the panels.
type RenderOptions struct {
	Width    int
	Height   int
	Scheme   string
	Bindings []Binding
	Status   string
}

// Render draws a snapshot. Panels are composited bottom-most first so later
// panels cover earlier ones; the mask is drawn directly below its target.
func Render(snap Snapshot, opts RenderOptions) string {
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}

	header := renderHeader(opts.Scheme, width)
	footer := renderFooter(opts.Bindings, opts.Status, width)
	bodyHeight := height - lipgloss.Height(header) - lipgloss.Height(footer)
	if bodyHeight < 1 {
		bodyHeight = 1
	}

	body := blank(width, bodyHeight)
	visible := snap.Visible()
	top := uint64(0)
	if len(visible) > 0 {
		top = visible[len(visible)-1].ID
	}

	cascade := 0
	for _, p := range visible {
		if snap.Mask.Active && snap.Mask.BehindID == p.ID {
			body = renderMask(body, snap.Mask.Color, width, bodyHeight)
		}

		if p.Roles.Has(engine.RoleMainUI) {
			box := renderPanel(p, p.ID == top, mainPanelStyle.Width(width-2).Height(bodyHeight-2))
			body = overlayAt(body, box, 0, 0, width, bodyHeight)
			continue
		}

		cascade++
		x := 2 + cascade*cascadeX
		y := 1 + (cascade-1)*cascadeY
		if x+panelWidth > width {
			x = max(0, width-panelWidth)
		}
		box := renderPanel(p, p.ID == top, panelStyle.Width(panelWidth-2))
		body = overlayAt(body, box, x, y, width, bodyHeight)
	}

	if snap.Loading.Visible {
		box := renderLoading(snap.Loading)
		x := max(0, (width-lipgloss.Width(box))/2)
		y := max(0, (bodyHeight-lipgloss.Height(box))/2)
		body = overlayAt(body, box, x, y, width, bodyHeight)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func renderHeader(scheme string, width int) string {
	content := headerAppStyle.Render("panelflow") + "  input: " + schemeStyle.Render(scheme)
	return headerBarStyle.Width(width).Render(content)
}

func renderFooter(bindings []Binding, status string, width int) string {
	var parts []string
	for _, b := range bindings {
		if len(b.Keys) == 0 {
			continue
		}
		parts = append(parts, helpKeyStyle.Render(b.Keys[0])+" "+b.Help)
	}
	line := strings.Join(parts, "  ")
	if status != "" {
		line = status + "  " + dimStyle.Render("│") + "  " + line
	}
	return footerStyle.Width(width).Render(truncate(line, width-4))
}

func renderPanel(p PanelView, top bool, style lipgloss.Style) string {
	title := lipgloss.NewStyle().Foreground(colorMauve).Bold(true).Render(p.Path)
	lines := []string{
		title,
		dimStyle.Render(fmt.Sprintf("id %d  layer %d", p.ID, p.Layer)),
		dimStyle.Render("roles " + p.Roles.String()),
	}
	if tr := p.Transition; tr != nil {
		lines = append(lines, fmt.Sprintf("%s %s", tr.Phase, progressBar(tr.Progress)))
	}
	if top {
		style = style.BorderForeground(focusedBorder)
	}
	return style.Render(strings.Join(lines, "\n"))
}

func renderLoading(l LoadingView) string {
	title := l.Title
	if title == "" {
		title = "Loading"
	}
	lines := []string{
		lipgloss.NewStyle().Foreground(colorYellow).Bold(true).Render(title),
	}
	if l.Text != "" {
		lines = append(lines, l.Text)
	}
	lines = append(lines, progressBar(l.Progress))
	return loadingStyle.Render(strings.Join(lines, "\n"))
}

// renderMask shades the whole body. The alpha channel of a #RRGGBBAA color
// is dropped since terminals cannot blend.
func renderMask(body, color string, width, height int) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(opaque(color)))
	row := style.Render(strings.Repeat("░", width))
	rows := make([]string, height)
	for i := range rows {
		rows[i] = row
	}
	return overlayAt(body, strings.Join(rows, "\n"), 0, 0, width, height)
}

func opaque(color string) string {
	if len(color) == 9 && strings.HasPrefix(color, "#") {
		return color[:7]
	}
	return color
}

func progressBar(fraction float64) string {
	filled := int(fraction*progressBars + 0.5)
	if filled > progressBars {
		filled = progressBars
	} else if filled < 0 {
		filled = 0
	}
	return lipgloss.NewStyle().Foreground(colorGreen).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(colorSurface0).Render(strings.Repeat("░", progressBars-filled)) +
		fmt.Sprintf(" %3d%%", int(fraction*100+0.5))
}

func blank(width, height int) string {
	row := strings.Repeat(" ", width)
	rows := make([]string, height)
	for i := range rows {
		rows[i] = row
	}
	return strings.Join(rows, "\n")
}

// overlayAt composites overlay on top of base at cell position (x, y).
func overlayAt(base, overlay string, x, y, width, height int) string {
	baseLines := splitLines(base)
	overlayLines := splitLines(overlay)
	overlayWidth := maxLineWidth(overlayLines)
	for i, line := range overlayLines {
		row := y + i
		if row < 0 || row >= len(baseLines) || row >= height {
			continue
		}
		target := padRight(baseLines[row], width)
		left := ansi.Truncate(target, x, "")
		if w := ansi.StringWidth(left); w < x {
			left += strings.Repeat(" ", x-w)
		}

		overlayLine := padRight(line, overlayWidth)
		pos := x + ansi.StringWidth(overlayLine)
		right := ""
		if width > 0 {
			right = ansi.TruncateLeft(target, pos, "")
			if gap := width - pos - ansi.StringWidth(right); gap > 0 {
				right = strings.Repeat(" ", gap) + right
			}
		}

		baseLines[row] = ansi.Truncate(left+overlayLine+right, width, "")
	}
	return strings.Join(baseLines, "\n")
}

func splitLines(s string) []string {
	if s == "" {
		return []string{""}
	}
	return strings.Split(s, "\n")
}

func maxLineWidth(lines []string) int {
	m := 0
	for _, line := range lines {
		if w := ansi.StringWidth(line); w > m {
			m = w
		}
	}
	return m
}

func padRight(s string, width int) string {
	if width <= 0 {
		return s
	}
	if w := ansi.StringWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(s, width, "…")
}
