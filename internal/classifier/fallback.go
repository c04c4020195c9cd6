// internal/classifier/fallback.go
package classifier

import (
	"fmt"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/browser/dom"
)

// fallbackBucket is one relaxed heuristic of the fallback detector.
type fallbackBucket struct {
	role  schemas.Role
	xpath string
	limit int
	// skipKnownIDs drops nodes whose id is already in the role's list.
	skipKnownIDs bool
	// lastResort buckets only run when every other bucket came back empty.
	lastResort bool
}

var fallbackBuckets = []fallbackBucket{
	{
		role:  schemas.RoleClickable,
		xpath: "//*[@onclick or @onmousedown or @onmouseup or @onmouseover]",
		limit: 10,
	},
	{
		role: schemas.RoleClickable,
		xpath: "//*[contains(@class,'btn') or contains(@class,'button') or contains(@class,'link')" +
			" or contains(@class,'nav') or contains(@class,'menu') or contains(@class,'click') or contains(@class,'select')]",
		limit:        10,
		skipKnownIDs: true,
	},
	{
		role:  schemas.RoleFocusable,
		xpath: "//*[@tabindex and @tabindex != '-1']",
		limit: 5,
	},
	{
		role:       schemas.RoleHover,
		xpath:      "//*[contains(@class,'hover')]",
		limit:      5,
		lastResort: true,
	},
}

// DetectFallback salvages candidates from pages with little semantic markup.
// It is meant for the caller to invoke when Classify yields too little, and
// it never fails: any error yields an empty map.
func (c *Classifier) DetectFallback(doc *dom.Document) (roles RoleMap) {
	roles = make(RoleMap)
	if doc == nil || doc.Root == nil {
		return roles
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Fallback detection panicked", zap.Any("panic", r))
			roles = make(RoleMap)
		}
	}()

	for _, bucket := range fallbackBuckets {
		if bucket.lastResort && roles.Total() > 0 {
			continue
		}
		nodes, err := htmlquery.QueryAll(doc.Root, bucket.xpath)
		if err != nil {
			c.logger.Warn("Fallback detection failed", zap.Error(fmt.Errorf("evaluating %q: %w", bucket.xpath, err)))
			return make(RoleMap)
		}
		if len(nodes) > bucket.limit {
			nodes = nodes[:bucket.limit]
		}
		c.fillBucket(doc, bucket, nodes, roles)
	}

	c.logCounts("Fallback detection complete", roles)
	return roles
}

func (c *Classifier) fillBucket(doc *dom.Document, bucket fallbackBucket, nodes []*html.Node, roles RoleMap) {
	known := make(map[string]bool)
	if bucket.skipKnownIDs {
		for _, existing := range roles[bucket.role] {
			if id := existing.Attributes.ID; id != "" {
				known[id] = true
			}
		}
	}

	for _, n := range nodes {
		if isHiddenInput(n) {
			continue
		}
		if id := htmlquery.SelectAttr(n, "id"); id != "" && known[id] {
			continue
		}
		cand, ok := c.candidate(doc, hit{n, bucket.role}, schemas.ProvenanceFallback)
		if !ok {
			continue
		}
		sel, ok := c.synth.Synthesize(cand)
		if !ok {
			continue
		}
		cand.Selector = sel
		roles[bucket.role] = append(roles[bucket.role], cand)
	}
}
