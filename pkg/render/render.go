// Package render draws ranked snapshots to a terminal, replacing the
// previous frame in place on every redraw.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jonhoo/stuck/pkg/rank"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	hotStyle    = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true)
)

const (
	ansiHome       = "\x1b[H"
	ansiEraseLine  = "\x1b[K"
	ansiEraseBelow = "\x1b[J"
	ansiHideCursor = "\x1b[?25l"
	ansiShowCursor = "\x1b[?25h"
	ansiAltScreen  = "\x1b[?1049h"
	ansiMainScreen = "\x1b[?1049l"
)

// Renderer draws snapshots. It never mutates the snapshot or any
// tracker state; its only side effect is terminal output.
type Renderer struct {
	w             io.Writer
	width, height int // 0 = detect from w on each draw
	minWeight     int
	hideRootOnly  bool
	color         bool
	refresh       bool
}

// New creates a renderer writing plain text to w. Live-terminal
// behavior (colors, in-place refresh, noise filters) is opt-in via the
// setters.
func New(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// SetSize pins the drawing area instead of probing the terminal.
func (r *Renderer) SetSize(width, height int) {
	r.width, r.height = width, height
}

// SetMinWeight hides groups below the given aggregate weight. The
// filter is display-only; the snapshot itself always carries every
// group.
func (r *Renderer) SetMinWeight(n int) {
	r.minWeight = n
}

// SetHideRootOnly hides groups whose shared stack is a single frame.
// Threads that only share the root say nothing interesting.
func (r *Renderer) SetHideRootOnly(on bool) {
	r.hideRootOnly = on
}

// SetColor enables lipgloss styling.
func (r *Renderer) SetColor(on bool) {
	r.color = on
}

// SetRefresh enables in-place redraw: each Render homes the cursor and
// erases stale output rather than appending.
func (r *Renderer) SetRefresh(on bool) {
	r.refresh = on
}

// Start prepares the terminal for live refreshing: switches to the
// alternate screen and hides the cursor. No-op unless refresh is on.
func (r *Renderer) Start() {
	if r.refresh {
		fmt.Fprint(r.w, ansiAltScreen+ansiHideCursor)
	}
}

// Stop restores the terminal. No-op unless refresh is on.
func (r *Renderer) Stop() {
	if r.refresh {
		fmt.Fprint(r.w, ansiShowCursor+ansiMainScreen)
	}
}

// Render draws one snapshot in ranked order: per group a header with
// member and weight figures, a magnitude bar scaled against the top
// group, and the shared stack root→hot frame. Idempotent: rendering the
// same snapshot twice produces identical output.
func (r *Renderer) Render(snap rank.Snapshot) {
	width, height := r.size()

	var lines []string
	lines = append(lines, r.styled(titleStyle, "Common thread fan-out points"))
	lines = append(lines, r.styled(dimStyle, strings.Repeat("═", min(width, 60))))

	if len(snap.Groups) == 0 {
		lines = append(lines, r.styled(dimStyle, "waiting for samples..."))
	}

	var top int
	if len(snap.Groups) > 0 {
		top = snap.Groups[0].Weight
	}

	for _, g := range snap.Groups {
		if r.hideRootOnly && len(g.Stack) < 2 {
			continue
		}
		if g.Weight < r.minWeight {
			continue
		}
		if len(lines) >= height-2 {
			break
		}

		lines = append(lines, "")
		lines = append(lines, r.groupHeader(g, top))
		lines = append(lines, r.styled(dimStyle, bar(g.Weight, top, 30)))
		for i, f := range g.Stack {
			text := truncate("  "+f.String(), width)
			if i == len(g.Stack)-1 {
				lines = append(lines, r.styled(hotStyle, text))
			} else {
				lines = append(lines, r.styled(dimStyle, text))
			}
		}
	}

	lines = append(lines, "")
	lines = append(lines, r.styled(dimStyle, fmt.Sprintf(
		"%d threads · %d samples · %d skipped records",
		snap.Threads, snap.Samples, snap.Skipped)))

	if len(lines) > height {
		lines = lines[:height]
	}

	var b strings.Builder
	if r.refresh {
		b.WriteString(ansiHome)
	}
	for _, line := range lines {
		b.WriteString(line)
		if r.refresh {
			b.WriteString(ansiEraseLine)
		}
		b.WriteString("\n")
	}
	if r.refresh {
		b.WriteString(ansiEraseBelow)
	}
	fmt.Fprint(r.w, b.String())
}

// groupHeader formats the member/weight line, tinted toward red as the
// group's weight approaches the top group's.
func (r *Renderer) groupHeader(g rank.Group, top int) string {
	var text string
	if len(g.Threads) == 1 {
		text = fmt.Sprintf("A thread fanned out from here %d times", g.Weight)
	} else {
		text = fmt.Sprintf("%d threads fanned out from here %d times", len(g.Threads), g.Weight)
	}
	if !r.color {
		return text
	}
	heat := 0
	if top > 0 {
		heat = 128 * g.Weight / top
	}
	c := fmt.Sprintf("#ff%02x%02x", 128-heat, 128-heat)
	return headerStyle.Foreground(lipgloss.Color(c)).Render(text)
}

func (r *Renderer) styled(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

// bar renders a magnitude indicator proportional to weight relative to
// the top group's weight.
func bar(weight, top, width int) string {
	if top <= 0 {
		top = 1
	}
	n := width * weight / top
	if n < 1 {
		n = 1
	}
	return strings.Repeat("█", n)
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width < 1 {
		return ""
	}
	return string(runes[:width-1]) + "…"
}
