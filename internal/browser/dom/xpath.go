// internal/browser/dom/xpath.go
package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// XPath builds an absolute XPath for node, shortened to start at the nearest
// ancestor (or self) carrying an id. It is kept on candidates for diagnostics.
func XPath(node *html.Node) string {
	if node == nil || node.Type != html.ElementNode {
		return ""
	}

	var segments []string
	anchored := false
	for n := node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if id := attr(n, "id"); id != "" {
			segments = append(segments, fmt.Sprintf("//*[@id=%s]", xpathLiteral(id)))
			anchored = true
			break
		}
		segments = append(segments, fmt.Sprintf("%s[%d]", strings.ToLower(n.Data), elementIndex(n, true)))
	}

	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	path := strings.Join(segments, "/")
	if !anchored {
		path = "/" + path
	}
	return path
}

// xpathLiteral quotes s for XPath 1.0, which has no escape syntax.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
