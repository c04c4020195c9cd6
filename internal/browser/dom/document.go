// internal/browser/dom/document.go
package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// iconPathPrefixLen bounds how much of an icon's path data is kept for selectors.
const iconPathPrefixLen = 20

// strippedTags are removed wholesale during sanitizing.
var strippedTags = map[string]bool{
	"script": true,
	"style":  true,
	"meta":   true,
	"link":   true,
	"svg":    true,
}

// Icon records an inline SVG that was stripped from inside an element.
type Icon struct {
	// PathPrefix is the leading part of the first <path d="..."> in the SVG, if any.
	PathPrefix string
}

// Document is a sanitized HTML snapshot. Inline SVGs are gone from the tree but
// every element that contained one remembers it, and every element remembers
// how many of its preceding siblings were stripped.
type Document struct {
	Root    *html.Node
	icons   map[*html.Node]Icon
	removed map[*html.Node]int
}

// Sanitize parses a raw snapshot and strips script, style, comment, meta, link
// and svg nodes. It never fails: unparseable input degrades to a fragment parse
// and, failing that, to an empty document.
func Sanitize(raw string) *Document {
	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		root = permissiveParse(raw)
	}
	doc := &Document{Root: root, icons: make(map[*html.Node]Icon), removed: make(map[*html.Node]int)}
	doc.strip()
	return doc
}

// permissiveParse parses raw as body content of a synthetic document.
func permissiveParse(raw string) *html.Node {
	root, _ := html.Parse(strings.NewReader(""))
	body := findFirst(root, "body")
	if body == nil {
		return root
	}
	context := &html.Node{Type: html.ElementNode, Data: "body"}
	nodes, err := html.ParseFragment(strings.NewReader(raw), context)
	if err != nil {
		return root
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	return root
}

func (d *Document) strip() {
	var doomed []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.CommentNode:
			doomed = append(doomed, n)
			return
		case n.Type == html.ElementNode && strippedTags[strings.ToLower(n.Data)]:
			if strings.EqualFold(n.Data, "svg") {
				d.rememberIcon(n)
			}
			doomed = append(doomed, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.Root)

	gone := make(map[*html.Node]bool, len(doomed))
	for _, n := range doomed {
		gone[n] = true
	}
	for _, n := range doomed {
		if n.Type != html.ElementNode {
			continue
		}
		for s := n.NextSibling; s != nil; s = s.NextSibling {
			if s.Type == html.ElementNode && !gone[s] {
				d.removed[s]++
			}
		}
	}

	for _, n := range doomed {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

// rememberIcon marks every element ancestor of svg as containing an icon.
// The first icon in document order wins.
func (d *Document) rememberIcon(svg *html.Node) {
	icon := Icon{}
	if path := findFirst(svg, "path"); path != nil {
		prefix := attr(path, "d")
		if len(prefix) > iconPathPrefixLen {
			prefix = prefix[:iconPathPrefixLen]
		}
		icon.PathPrefix = prefix
	}
	for p := svg.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if _, seen := d.icons[p]; !seen {
			d.icons[p] = icon
		}
	}
}

// Icon reports whether n contained an inline SVG before sanitizing.
func (d *Document) Icon(n *html.Node) (Icon, bool) {
	icon, ok := d.icons[n]
	return icon, ok
}

// Render serializes the sanitized tree.
func (d *Document) Render() string {
	var b strings.Builder
	if err := html.Render(&b, d.Root); err != nil {
		return ""
	}
	return b.String()
}

// Elements returns every element node in document order.
func (d *Document) Elements() []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.Root)
	return out
}

func findFirst(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && strings.EqualFold(c.Data, tag) {
			return c
		}
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}
