package reporting

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
)

const maxFailingShown = 20

// TextReporter prints a styled summary for a terminal. Styles degrade to
// plain text when the writer is not a terminal.
type TextReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser

	title   lipgloss.Style
	label   lipgloss.Style
	good    lipgloss.Style
	bad     lipgloss.Style
	dim     lipgloss.Style
	section lipgloss.Style
}

// NewTextReporter takes ownership of w.
func NewTextReporter(w io.WriteCloser) *TextReporter {
	re := lipgloss.NewRenderer(w)
	return &TextReporter{
		writer: w,
		title: re.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1),
		label:   re.NewStyle().Bold(true),
		good:    re.NewStyle().Foreground(lipgloss.Color("2")),
		bad:     re.NewStyle().Foreground(lipgloss.Color("1")),
		dim:     re.NewStyle().Foreground(lipgloss.Color("240")).Faint(true),
		section: re.NewStyle().Bold(true).Foreground(lipgloss.Color("69")).Underline(true),
	}
}

// Write implements Reporter.
func (r *TextReporter) Write(batch schemas.RunBatch) error {
	var b strings.Builder
	s := batch.Summarize()

	b.WriteString(r.title.Render("uiprobe run "+batch.RunID) + "\n")
	fmt.Fprintf(&b, "%s %s\n", r.label.Render("Recorded:"), batch.Timestamp)
	fmt.Fprintf(&b, "%s %d  %s %d  %s %s\n\n",
		r.label.Render("Elements:"), s.Total,
		r.label.Render("Interacted:"), s.Successful,
		r.label.Render("Working:"), r.ratio(s.Working, s.Total))

	if s.Total > 0 {
		b.WriteString(r.section.Render("By role") + "\n")
		for _, role := range orderedRoles(s.ByType) {
			rs := s.ByType[role]
			fmt.Fprintf(&b, "  %-12s %4d tested  %4d interacted  %s working\n",
				role, rs.Total, rs.Successful, r.ratio(rs.Working, rs.Total))
		}
	}

	fails := failing(batch)
	if len(fails) > 0 {
		b.WriteString("\n" + r.section.Render("Not working") + "\n")
		for i, rec := range fails {
			if i == maxFailingShown {
				b.WriteString(r.dim.Render(fmt.Sprintf("  ... and %d more", len(fails)-maxFailingShown)) + "\n")
				break
			}
			fmt.Fprintf(&b, "  %s %s %s\n", r.bad.Render("✗"), rec.ElementType, rec.Selector)
			if msg := firstLine(rec.Error()); msg != "" {
				b.WriteString("    " + r.dim.Render(msg) + "\n")
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := io.WriteString(r.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}
	return nil
}

// Close implements Reporter.
func (r *TextReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Close()
}

func (r *TextReporter) ratio(n, total int) string {
	text := fmt.Sprintf("%d/%d", n, total)
	if total == 0 {
		return r.dim.Render(text)
	}
	if n == total {
		return r.good.Render(text)
	}
	if n*2 < total {
		return r.bad.Render(text)
	}
	return text
}

// orderedRoles lists the roles present in canonical order, then any others.
func orderedRoles(byType map[schemas.Role]schemas.RoleSummary) []schemas.Role {
	out := make([]schemas.Role, 0, len(byType))
	seen := make(map[schemas.Role]bool, len(byType))
	for _, role := range slices.Concat(schemas.CanonicalRoles, []schemas.Role{schemas.RolePage}) {
		if _, ok := byType[role]; ok {
			out = append(out, role)
			seen[role] = true
		}
	}
	var rest []schemas.Role
	for role := range byType {
		if !seen[role] {
			rest = append(rest, role)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
