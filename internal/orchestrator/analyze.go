package orchestrator

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/browser/dom"
	"github.com/xkilldash9x/uiprobe-cli/internal/classifier"
	"github.com/xkilldash9x/uiprobe-cli/internal/script"
	"github.com/xkilldash9x/uiprobe-cli/internal/selector"
)

// Analysis is the element discovery result for one page.
type Analysis struct {
	URL   string
	Roles classifier.RoleMap
	Plan  schemas.PagePlan
}

// AnalyzePage sanitizes a snapshot, classifies its elements and plans the
// interactions. Every call owns a fresh selector counter, so pages can be
// analyzed concurrently.
func AnalyzePage(pageURL, rawHTML string, fallbackThreshold int, logger *zap.Logger) Analysis {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("url", pageURL))

	doc := dom.Sanitize(rawHTML)
	synth := selector.New(&selector.Counter{}, logger)
	roles := classifier.New(synth, logger).Analyze(doc, fallbackThreshold)
	plan := script.Plan(pageURL, roles)

	logger.Debug("Page analyzed",
		zap.Int("elements", roles.Total()),
		zap.Int("steps", len(plan.Steps)))
	return Analysis{URL: pageURL, Roles: roles, Plan: plan}
}
