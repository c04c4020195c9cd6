// internal/browser/dom/query.go
package dom

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/uiprobe-cli/internal/browser/parser"
)

// QueryAll parses selector and returns the matching elements under root in
// document order.
func QueryAll(root *html.Node, selector string) ([]*html.Node, error) {
	group, err := parser.ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	return Select(root, group), nil
}

// Select evaluates a parsed selector list under root. A trailing :nth-match(n)
// keeps only the n-th match of its own complex selector.
func Select(root *html.Node, group parser.SelectorGroup) []*html.Node {
	if root == nil {
		return nil
	}
	elements := descendants(root)
	picked := make(map[*html.Node]bool)
	for _, complexSelector := range group {
		nth := complexSelector.NthMatch()
		var hits []*html.Node
		for _, el := range elements {
			if (matcher{}).match(el, complexSelector, len(complexSelector.Selectors)-1) {
				hits = append(hits, el)
			}
		}
		if nth > 0 {
			if nth <= len(hits) {
				picked[hits[nth-1]] = true
			}
			continue
		}
		for _, h := range hits {
			picked[h] = true
		}
	}

	out := make([]*html.Node, 0, len(picked))
	for _, el := range elements {
		if picked[el] {
			out = append(out, el)
		}
	}
	return out
}

// Matches reports whether node matches any selector in the group. Ordinal
// filters (:nth-match) are ignored since they depend on the whole document.
func Matches(node *html.Node, group parser.SelectorGroup) bool {
	if node == nil || node.Type != html.ElementNode {
		return false
	}
	for _, complexSelector := range group {
		if (matcher{}).match(node, complexSelector, len(complexSelector.Selectors)-1) {
			return true
		}
	}
	return false
}

// matcher walks right to left through a complex selector. A non-nil scope
// confines the walk to the subtree below it, which is how :has arguments are
// evaluated relative to their subject.
type matcher struct {
	scope    *html.Node
	relation parser.Combinator
}

func (m matcher) match(node *html.Node, complexSelector parser.ComplexSelector, index int) bool {
	if node == nil || index < 0 || node.Type != html.ElementNode || node == m.scope {
		return false
	}
	current := complexSelector.Selectors[index]
	if !matchesSimple(node, current.SimpleSelector) {
		return false
	}
	if index == 0 {
		if m.scope != nil && m.relation == parser.CombinatorChild {
			return node.Parent == m.scope
		}
		return true
	}

	next := index - 1
	switch current.Combinator {
	case parser.CombinatorDescendant:
		for parent := node.Parent; parent != nil && parent != m.scope; parent = parent.Parent {
			if m.match(parent, complexSelector, next) {
				return true
			}
		}
		return false
	case parser.CombinatorChild:
		return m.match(node.Parent, complexSelector, next)
	case parser.CombinatorAdjacentSibling:
		return m.match(previousElementSibling(node), complexSelector, next)
	case parser.CombinatorGeneralSibling:
		for sibling := previousElementSibling(node); sibling != nil; sibling = previousElementSibling(sibling) {
			if m.match(sibling, complexSelector, next) {
				return true
			}
		}
		return false
	case parser.CombinatorNone:
		return true
	}
	return false
}

func matchesSimple(node *html.Node, selector parser.SimpleSelector) bool {
	if selector.TagName != "" && selector.TagName != "*" && strings.ToLower(node.Data) != selector.TagName {
		return false
	}
	if selector.ID != "" && attr(node, "id") != selector.ID {
		return false
	}
	if len(selector.Classes) > 0 {
		nodeClasses := strings.Fields(attr(node, "class"))
		for _, required := range selector.Classes {
			if !containsString(nodeClasses, required) {
				return false
			}
		}
	}
	for _, attrSel := range selector.Attributes {
		if !matchesAttribute(node, attrSel) {
			return false
		}
	}
	for _, pseudo := range selector.Pseudos {
		if !matchesPseudo(node, pseudo) {
			return false
		}
	}
	return true
}

func matchesAttribute(node *html.Node, sel parser.AttributeSelector) bool {
	if !hasAttr(node, sel.Name) {
		return false
	}
	actual := attr(node, sel.Name)

	switch sel.Operator {
	case "":
		return true
	case "=":
		return actual == sel.Value
	case "~=":
		return containsString(strings.Fields(actual), sel.Value)
	case "|=":
		return actual == sel.Value || strings.HasPrefix(actual, sel.Value+"-")
	case "^=":
		return sel.Value != "" && strings.HasPrefix(actual, sel.Value)
	case "$=":
		return sel.Value != "" && strings.HasSuffix(actual, sel.Value)
	case "*=":
		return sel.Value != "" && strings.Contains(actual, sel.Value)
	default:
		return false
	}
}

func matchesPseudo(node *html.Node, pseudo parser.PseudoClass) bool {
	switch pseudo.Kind {
	case parser.PseudoNot:
		return !Matches(node, pseudo.Selector)
	case parser.PseudoHas:
		m := matcher{scope: node, relation: pseudo.Relation}
		for _, d := range descendants(node) {
			for _, complexSelector := range pseudo.Selector {
				if m.match(d, complexSelector, len(complexSelector.Selectors)-1) {
					return true
				}
			}
		}
		return false
	case parser.PseudoHasText:
		want := strings.ToLower(CollapseWhitespace(pseudo.Text))
		return strings.Contains(strings.ToLower(Text(node)), want)
	case parser.PseudoNthChild:
		return elementIndex(node, false) == pseudo.N
	case parser.PseudoNthOfType:
		return elementIndex(node, true) == pseudo.N
	case parser.PseudoNthMatch:
		return true
	}
	return false
}

// elementIndex is the 1-based position of node among its element siblings,
// optionally counting only siblings with the same tag.
func elementIndex(node *html.Node, sameTag bool) int {
	index := 1
	for prev := previousElementSibling(node); prev != nil; prev = previousElementSibling(prev) {
		if !sameTag || strings.EqualFold(prev.Data, node.Data) {
			index++
		}
	}
	return index
}

func previousElementSibling(node *html.Node) *html.Node {
	for sibling := node.PrevSibling; sibling != nil; sibling = sibling.PrevSibling {
		if sibling.Type == html.ElementNode {
			return sibling
		}
	}
	return nil
}

// descendants returns the element descendants of root in document order,
// excluding root itself.
func descendants(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

// Text returns the visible text of n with whitespace collapsed.
func Text(n *html.Node) string {
	return CollapseWhitespace(htmlquery.InnerText(n))
}

// CollapseWhitespace trims s and folds every whitespace run into one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
