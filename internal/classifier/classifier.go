// internal/classifier/classifier.go
package classifier

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/browser/dom"
	"github.com/xkilldash9x/uiprobe-cli/internal/browser/parser"
	"github.com/xkilldash9x/uiprobe-cli/internal/selector"
)

// hit is a node selected by a pass together with the role the pass gave it.
type hit struct {
	node *html.Node
	role schemas.Role
}

// pass selects nodes from the document. Passes are pure selection: dedup,
// selector synthesis and collection happen once, in Classify.
type pass struct {
	provenance schemas.Provenance
	run        func(doc *dom.Document) ([]hit, error)
}

// Classifier assigns roles to the nodes of a sanitized snapshot.
type Classifier struct {
	synth  *selector.Synthesizer
	logger *zap.Logger
	passes []pass
}

// New builds a classifier that names its candidates with synth. The
// synthesizer carries the page counter, so one classifier serves one page.
func New(synth *selector.Synthesizer, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if synth == nil {
		synth = selector.New(nil, logger)
	}
	return &Classifier{
		synth:  synth,
		logger: logger.Named("classifier"),
		passes: []pass{
			{schemas.ProvenanceDirectTag, directTagPass},
			{schemas.ProvenanceRoleTable, roleTablePass},
			{schemas.ProvenanceEventAria, eventAriaPass},
			{schemas.ProvenanceCatchAll, catchAllPass},
		},
	}
}

// Classify runs every pass over doc. A node is classified at most once: the
// first pass that reaches it wins, and later passes skip its dedup key.
func (c *Classifier) Classify(doc *dom.Document) RoleMap {
	roles := make(RoleMap)
	if doc == nil || doc.Root == nil {
		return roles
	}

	seen := make(map[string]bool)
	for _, p := range c.passes {
		hits, err := c.runPass(p, doc)
		if err != nil {
			c.logger.Warn("Discovery pass failed, skipping it",
				zap.String("pass", string(p.provenance)), zap.Error(err))
			continue
		}
		added := c.collect(doc, hits, p.provenance, seen, roles)
		c.logger.Debug("Discovery pass complete",
			zap.String("pass", string(p.provenance)),
			zap.Int("hits", len(hits)),
			zap.Int("added", added))
	}

	c.logCounts("Classification complete", roles)
	return roles
}

// Analyze classifies doc and tops the result up from the fallback detector
// when fewer than threshold candidates were found.
func (c *Classifier) Analyze(doc *dom.Document, threshold int) RoleMap {
	roles := c.Classify(doc)
	if roles.Total() >= threshold {
		return roles
	}
	added := roles.Merge(c.DetectFallback(doc))
	c.logger.Info("Low element yield, used fallback detection",
		zap.Int("threshold", threshold),
		zap.Int("added", added),
		zap.Int("total", roles.Total()))
	return roles
}

func (c *Classifier) runPass(p pass, doc *dom.Document) (hits []hit, err error) {
	defer func() {
		if r := recover(); r != nil {
			hits, err = nil, fmt.Errorf("panic in %s pass: %v", p.provenance, r)
		}
	}()
	return p.run(doc)
}

// collect turns hits into candidates. Nodes are marked seen before synthesis,
// so a node without a selector is not retried by a later pass.
func (c *Classifier) collect(doc *dom.Document, hits []hit, prov schemas.Provenance, seen map[string]bool, roles RoleMap) int {
	added := 0
	for _, h := range hits {
		if isHiddenInput(h.node) {
			continue
		}
		cand, ok := c.candidate(doc, h, prov)
		if !ok {
			continue
		}
		if seen[cand.DedupKey] {
			continue
		}
		seen[cand.DedupKey] = true

		sel, ok := c.synth.Synthesize(cand)
		if !ok {
			continue
		}
		cand.Selector = sel
		roles[h.role] = append(roles[h.role], cand)
		added++
	}
	return added
}

func (c *Classifier) candidate(doc *dom.Document, h hit, prov schemas.Provenance) (schemas.ElementCandidate, bool) {
	if h.node == nil || h.node.Type != html.ElementNode {
		return schemas.ElementCandidate{}, false
	}
	cand := doc.Candidate(h.node)
	cand.Role = h.role
	cand.Action = schemas.ActionFor(h.role)
	cand.Provenance = prov
	cand.DedupKey = dom.DedupKey(cand)
	return cand, true
}

func (c *Classifier) logCounts(msg string, roles RoleMap) {
	if ce := c.logger.Check(zap.DebugLevel, msg); ce != nil {
		fields := []zap.Field{zap.Int("total", roles.Total())}
		for _, r := range roles.Roles() {
			fields = append(fields, zap.Int(string(r), len(roles[r])))
		}
		ce.Write(fields...)
	}
}

// directTagPass takes every button and input regardless of attributes.
func directTagPass(doc *dom.Document) ([]hit, error) {
	var hits []hit
	for _, n := range htmlquery.Find(doc.Root, "//button") {
		hits = append(hits, hit{n, schemas.RoleButton})
	}
	for _, n := range htmlquery.Find(doc.Root, "//input") {
		hits = append(hits, hit{n, inputRole(n)})
	}
	return hits, nil
}

// roleTablePass evaluates the role table in order.
func roleTablePass(doc *dom.Document) ([]hit, error) {
	var hits []hit
	for _, row := range roleTable {
		group, err := parser.ParseSelector(row.selector)
		if err != nil {
			return nil, fmt.Errorf("role table selector for %s: %w", row.role, err)
		}
		for _, n := range dom.Select(doc.Root, group) {
			hits = append(hits, hit{n, row.role})
		}
	}
	return hits, nil
}

const eventHandlerXPath = "//*[@onclick or @onmousedown or @onmouseup or @onchange or @onfocus or @onblur" +
	" or @onkeydown or @onkeyup or @onkeypress or @ondblclick or @ontouchstart or @ontouchend or @ontouchmove]"

// eventAriaPass picks up nodes that only announce interactivity through
// handlers, focusability or ARIA.
func eventAriaPass(doc *dom.Document) ([]hit, error) {
	var nodes []*html.Node
	for _, expr := range []string{
		eventHandlerXPath,
		"//*[@tabindex and @tabindex != '-1']",
		"//*[@role]",
	} {
		found, err := htmlquery.QueryAll(doc.Root, expr)
		if err != nil {
			return nil, fmt.Errorf("evaluating %q: %w", expr, err)
		}
		nodes = append(nodes, found...)
	}
	for _, n := range doc.Elements() {
		if hasAriaAttr(n) {
			nodes = append(nodes, n)
		}
	}

	hits := make([]hit, 0, len(nodes))
	for _, n := range nodes {
		hits = append(hits, hit{n, inferRole(n, schemas.RoleClickable)})
	}
	return hits, nil
}

// catchAllPass classifies everything else that can be rendered.
func catchAllPass(doc *dom.Document) ([]hit, error) {
	var hits []hit
	for _, n := range doc.Elements() {
		if nonVisualTags[strings.ToLower(n.Data)] {
			continue
		}
		hits = append(hits, hit{n, inferRole(n, schemas.RoleInteractive)})
	}
	return hits, nil
}

func hasAriaAttr(n *html.Node) bool {
	for _, a := range n.Attr {
		if strings.HasPrefix(strings.ToLower(a.Key), "aria-") {
			return true
		}
	}
	return false
}
