// internal/browser/dom/facts.go
package dom

import (
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
)

// wellKnownData are the data-* attributes that have their own Attributes field.
var wellKnownData = map[string]bool{
	"data-testid": true,
	"data-cy":     true,
	"data-qa":     true,
}

// Candidate gathers everything the selector cascade and the dedup key need
// about n. Role, action, selector and key are left to the caller.
func (d *Document) Candidate(n *html.Node) schemas.ElementCandidate {
	tag := strings.ToLower(n.Data)
	c := schemas.ElementCandidate{
		Tag:        tag,
		Attributes: Attributes(n),
		Context:    d.Context(n),
		XPath:      XPath(n),
	}

	if tag == "input" {
		c.Text = CollapseWhitespace(c.Attributes.Placeholder)
		if c.Text == "" {
			c.Text = CollapseWhitespace(c.Attributes.Value)
		}
	} else {
		c.Text = Text(n)
	}

	if icon, ok := d.Icon(n); ok {
		c.HasIcon = true
		c.IconPathPrefix = icon.PathPrefix
	}
	c.HasHandler = c.Attributes.OnClick != "" || c.Attributes.OnMouseDown != ""
	return c
}

// Attributes copies the attributes of interest off n.
func Attributes(n *html.Node) schemas.Attributes {
	a := schemas.Attributes{
		ID:          attr(n, "id"),
		Classes:     strings.Fields(attr(n, "class")),
		Name:        attr(n, "name"),
		Type:        strings.ToLower(attr(n, "type")),
		Value:       attr(n, "value"),
		Placeholder: attr(n, "placeholder"),
		Href:        attr(n, "href"),
		Src:         attr(n, "src"),
		AriaLabel:   attr(n, "aria-label"),
		TestID:      attr(n, "data-testid"),
		CypressID:   attr(n, "data-cy"),
		QAID:        attr(n, "data-qa"),
		RoleAttr:    attr(n, "role"),
		Title:       attr(n, "title"),
		Alt:         attr(n, "alt"),
		OnClick:     attr(n, "onclick"),
		OnMouseDown: attr(n, "onmousedown"),
	}
	for _, at := range n.Attr {
		key := strings.ToLower(at.Key)
		if strings.HasPrefix(key, "data-") && !wellKnownData[key] {
			a.Data = append(a.Data, schemas.DataAttribute{Name: key, Value: at.Val})
		}
	}
	sort.SliceStable(a.Data, func(i, j int) bool { return a.Data[i].Name < a.Data[j].Name })
	return a
}

// Context is the package level Context with nth-child positions counted as
// the live page counts them, stripped siblings included.
func (d *Document) Context(n *html.Node) schemas.StructuralContext {
	ctx := Context(n)
	depth := len(ctx.AncestorPath) - 1
	for cur := n; cur != nil && cur.Type == html.ElementNode && depth >= 0; cur = cur.Parent {
		ctx.AncestorPath[depth].Position += d.removed[cur]
		depth--
	}
	return ctx
}

// Context describes the position of n relative to its ancestors and siblings
// in the tree as it is.
func Context(n *html.Node) schemas.StructuralContext {
	ctx := schemas.StructuralContext{
		Position:    elementIndex(n, true),
		AnchorDepth: -1,
	}

	if p := n.Parent; p != nil && p.Type == html.ElementNode {
		ctx.ParentTag = strings.ToLower(p.Data)
		ctx.ParentID = attr(p, "id")
		ctx.ParentClass = attr(p, "class")
		if g := p.Parent; g != nil && g.Type == html.ElementNode {
			ctx.GrandparentTag = strings.ToLower(g.Data)
			ctx.GrandparentID = attr(g, "id")
			ctx.GrandparentClass = attr(g, "class")
		}
	}

	var chain []*html.Node
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		chain = append(chain, cur)
	}
	ctx.AncestorPath = make([]schemas.PathStep, len(chain))
	for i, node := range chain {
		depth := len(chain) - 1 - i
		ctx.AncestorPath[depth] = schemas.PathStep{
			Tag:      strings.ToLower(node.Data),
			Position: elementIndex(node, false),
		}
		if i > 0 && ctx.AnchorDepth < 0 {
			if id := attr(node, "id"); id != "" {
				ctx.AnchorDepth = depth
				ctx.AnchorID = id
			}
		}
	}
	return ctx
}
