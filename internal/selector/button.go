// internal/selector/button.go
package selector

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/browser/parser"
)

// buttonPart renders the button compound used by the structural steps of the
// chain. The svg qualifier refers to the live page, where the icon still exists.
func buttonPart(c schemas.ElementCandidate, withClass bool) string {
	var b strings.Builder
	b.WriteString("button")
	if withClass {
		if tok := classToken(c.Attributes.Classes); tok != "" {
			fmt.Fprintf(&b, "[class*='%s']", tok)
		}
	}
	if c.HasIcon {
		b.WriteString(":has(svg)")
	}
	return b.String()
}

func position(c schemas.ElementCandidate) int {
	if c.Context.Position < 1 {
		return 1
	}
	return c.Context.Position
}

// byButtonChain is the deep fallback for buttons, which are often icon-only
// and nested in anonymous wrappers. It always produces something.
func byButtonChain(c schemas.ElementCandidate, _ int) (string, bool) {
	if c.Tag != "button" {
		return "", false
	}
	ctx := c.Context
	attrs := c.Attributes
	pos := position(c)
	nthOfType := fmt.Sprintf(":nth-of-type(%d)", pos)
	self := buttonPart(c, true) + nthOfType
	svg := ""
	if c.HasIcon {
		svg = ":has(svg)"
	}

	if v := clean(attrs.AriaLabel); v != "" {
		return "button" + attrEquals("aria-label", v), true
	}
	if text := strings.TrimSpace(truncateRunes(clean(c.Text), maxTextLen)); text != "" {
		return fmt.Sprintf("button:has-text('%s')", text), true
	}
	if prefix := clean(c.IconPathPrefix); c.HasIcon && prefix != "" {
		return fmt.Sprintf("button:has(svg path[d^='%s'])", prefix), true
	}

	if ctx.GrandparentID != "" {
		gp := "#" + parser.EscapeIdent(ctx.GrandparentID)
		if ctx.ParentTag != "" {
			return fmt.Sprintf("%s > %s > %s", gp, ctx.ParentTag, self), true
		}
		return fmt.Sprintf("%s %s", gp, self), true
	}
	if ctx.ParentID != "" {
		return fmt.Sprintf("#%s > %s", parser.EscapeIdent(ctx.ParentID), self), true
	}

	parentTok := classToken(strings.Fields(ctx.ParentClass))
	grandTok := classToken(strings.Fields(ctx.GrandparentClass))
	if grandTok != "" && ctx.GrandparentTag != "" && parentTok != "" && ctx.ParentTag != "" {
		return fmt.Sprintf("%s[class*='%s'] > %s[class*='%s'] > %s",
			ctx.GrandparentTag, grandTok, ctx.ParentTag, parentTok, self), true
	}
	if parentTok != "" {
		return fmt.Sprintf("%s[class*='%s'] > %s", ctx.ParentTag, parentTok, self), true
	}

	if sel, ok := ancestorPath(ctx); ok {
		return sel, true
	}

	if tok := classToken(attrs.Classes); tok != "" {
		return self, true
	}

	bag := []struct{ name, value string }{
		{"type", attrs.Type},
		{"name", attrs.Name},
		{"title", attrs.Title},
		{"data-testid", attrs.TestID},
		{"data-cy", attrs.CypressID},
		{"data-qa", attrs.QAID},
		{"role", attrs.RoleAttr},
	}
	var sb strings.Builder
	for _, a := range bag {
		if v := clean(a.value); v != "" {
			sb.WriteString(attrEquals(a.name, v))
		}
	}
	if sb.Len() > 0 {
		return "button" + sb.String() + svg + nthOfType, true
	}

	for _, h := range []struct{ name, value string }{{"onclick", attrs.OnClick}, {"onmousedown", attrs.OnMouseDown}} {
		if v := strings.TrimSpace(clean(h.value)); v != "" {
			return fmt.Sprintf("button[%s*='%s']%s%s", h.name, v, svg, nthOfType), true
		}
	}

	return buttonPart(c, false) + nthOfType, true
}

// ancestorPath spells out the nth-child chain down to the node, starting at
// the nearest ancestor with an id when there is one. This is the brittle end
// of the chain: unrelated markup changes above the node invalidate it.
func ancestorPath(ctx schemas.StructuralContext) (string, bool) {
	path := ctx.AncestorPath
	if len(path) < 2 {
		return "", false
	}

	var parts []string
	start := 0
	if ctx.AnchorDepth >= 0 && ctx.AnchorDepth < len(path)-1 && ctx.AnchorID != "" {
		parts = append(parts, "#"+parser.EscapeIdent(ctx.AnchorID))
		start = ctx.AnchorDepth + 1
	}
	for _, step := range path[start:] {
		if step.Tag == "" || step.Position < 1 {
			return "", false
		}
		parts = append(parts, fmt.Sprintf("%s:nth-child(%d)", step.Tag, step.Position))
	}
	return strings.Join(parts, " > "), true
}
