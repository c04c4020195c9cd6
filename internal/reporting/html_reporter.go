package reporting

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"sync"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
)

//go:embed templates/report.html.tmpl
var htmlTemplateSource string

var htmlTemplate = template.Must(template.New("report").Parse(htmlTemplateSource))

type htmlRole struct {
	Role       schemas.Role
	Total      int
	Successful int
	Working    int
	Rate       string
}

type htmlIssue struct {
	Role        schemas.Role
	Description string
	Selector    string
	Error       string
}

type htmlPage struct {
	URL        string
	Total      int
	Successful int
	Working    int
	Rate       string
	Roles      []htmlRole
	NotWorking []htmlIssue
}

type htmlReport struct {
	RunID      string
	Timestamp  string
	Total      int
	Successful int
	Working    int
	Rate       string
	Roles      []htmlRole
	Pages      []htmlPage
}

// HTMLReporter renders a standalone HTML document per batch with a breakdown
// per page and the elements that are not working.
type HTMLReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
}

// NewHTMLReporter takes ownership of w.
func NewHTMLReporter(w io.WriteCloser) *HTMLReporter {
	return &HTMLReporter{writer: w}
}

// Write implements Reporter.
func (r *HTMLReporter) Write(batch schemas.RunBatch) error {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, buildHTMLReport(batch)); err != nil {
		return fmt.Errorf("failed to render html report: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.writer.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write html report: %w", err)
	}
	return nil
}

// Close implements Reporter.
func (r *HTMLReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Close()
}

// buildHTMLReport groups records by page in the order pages were first seen.
func buildHTMLReport(batch schemas.RunBatch) htmlReport {
	s := batch.Summarize()
	report := htmlReport{
		RunID:      batch.RunID,
		Timestamp:  batch.Timestamp,
		Total:      s.Total,
		Successful: s.Successful,
		Working:    s.Working,
		Rate:       percent(s.Working, s.Total),
		Roles:      htmlRoles(s),
	}

	var order []string
	byPage := make(map[string][]schemas.ElementOutcomeRecord)
	for _, rec := range batch.Elements {
		if _, ok := byPage[rec.PageURL]; !ok {
			order = append(order, rec.PageURL)
		}
		byPage[rec.PageURL] = append(byPage[rec.PageURL], rec)
	}

	for _, url := range order {
		sub := schemas.RunBatch{Elements: byPage[url]}
		ps := sub.Summarize()
		page := htmlPage{
			URL:        url,
			Total:      ps.Total,
			Successful: ps.Successful,
			Working:    ps.Working,
			Rate:       percent(ps.Working, ps.Total),
			Roles:      htmlRoles(ps),
		}
		for _, rec := range failing(sub) {
			page.NotWorking = append(page.NotWorking, htmlIssue{
				Role:        rec.ElementType,
				Description: rec.Description,
				Selector:    rec.Selector,
				Error:       firstLine(rec.Error()),
			})
		}
		report.Pages = append(report.Pages, page)
	}
	return report
}

func htmlRoles(s schemas.RunSummary) []htmlRole {
	roles := orderedRoles(s.ByType)
	out := make([]htmlRole, 0, len(roles))
	for _, role := range roles {
		rs := s.ByType[role]
		out = append(out, htmlRole{
			Role:       role,
			Total:      rs.Total,
			Successful: rs.Successful,
			Working:    rs.Working,
			Rate:       percent(rs.Working, rs.Total),
		})
	}
	return out
}

func percent(n, total int) string {
	if total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}
