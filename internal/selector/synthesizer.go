// internal/selector/synthesizer.go
package selector

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/browser/parser"
)

// maxTextLen bounds the visible text interpolated into :has-text.
const maxTextLen = 50

// genericTexts repeat across most pages, so a bare text match on them is ambiguous.
var genericTexts = map[string]bool{
	"follow":   true,
	"about":    true,
	"blog":     true,
	"home":     true,
	"contact":  true,
	"services": true,
	"login":    true,
	"sign up":  true,
	"register": true,
}

// Counter is the disambiguation counter for one page. It only ever grows; a
// fresh Counter is created per page and never reset while the page is analyzed.
// It is not safe for concurrent use.
type Counter struct {
	n int
}

// Next advances the counter and returns the new value.
func (c *Counter) Next() int {
	c.n++
	return c.n
}

// Value returns the last value handed out.
func (c *Counter) Value() int {
	return c.n
}

// Synthesizer derives one selector string per candidate.
type Synthesizer struct {
	counter *Counter
	logger  *zap.Logger
}

// New creates a synthesizer that draws ordinals from counter. A nil counter
// gets a private one.
func New(counter *Counter, logger *zap.Logger) *Synthesizer {
	if counter == nil {
		counter = &Counter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{counter: counter, logger: logger.Named("selector")}
}

// Counter exposes the counter the synthesizer draws from.
func (s *Synthesizer) Counter() *Counter {
	return s.counter
}

// rule is one step of the cascade. n is the counter value of the current call.
type rule struct {
	name  string
	build func(c schemas.ElementCandidate, n int) (string, bool)
}

var cascade = []rule{
	{"id", byID},
	{"test-hook", byTestHook},
	{"aria-label", byAriaLabel},
	{"name", byName},
	{"placeholder", byPlaceholder},
	{"role", byRoleAttr},
	{"text", byText},
	{"href", byHref},
	{"input-type", byInputType},
	{"button-chain", byButtonChain},
	{"class", byClass},
	{"title-alt", byTitleOrAlt},
	{"data", byDataAttribute},
}

// Synthesize returns the selector for c, or false when c has no tag. The
// counter advances once per call whether or not the ordinal ends up in the
// selector. Synthesis never fails past that point: panics and selectors the
// engine cannot parse degrade to the bare tag.
func (s *Synthesizer) Synthesize(c schemas.ElementCandidate) (selector string, ok bool) {
	n := s.counter.Next()
	tag := strings.ToLower(strings.TrimSpace(c.Tag))
	if tag == "" {
		return "", false
	}
	c.Tag = tag

	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Selector synthesis panicked, using bare tag",
				zap.String("tag", tag), zap.Any("panic", r))
			selector, ok = tag, true
		}
	}()

	for _, step := range cascade {
		sel, found := step.build(c, n)
		if !found {
			continue
		}
		if _, err := parser.ParseSelector(sel); err != nil {
			s.logger.Debug("Discarding unparsable selector",
				zap.String("rule", step.name), zap.String("selector", sel), zap.Error(err))
			return tag, true
		}
		return sel, true
	}
	return tag, true
}

// clean drops characters that would terminate or escape a quoted selector value.
func clean(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\'', '"', '\\', '`':
			return -1
		case '\n', '\r', '\t':
			return ' '
		}
		return r
	}, s)
}

func attrEquals(name, value string) string {
	return fmt.Sprintf("[%s='%s']", name, value)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func byID(c schemas.ElementCandidate, _ int) (string, bool) {
	if c.Attributes.ID == "" {
		return "", false
	}
	return "#" + parser.EscapeIdent(c.Attributes.ID), true
}

func byTestHook(c schemas.ElementCandidate, _ int) (string, bool) {
	hooks := []struct{ name, value string }{
		{"data-testid", c.Attributes.TestID},
		{"data-cy", c.Attributes.CypressID},
		{"data-qa", c.Attributes.QAID},
	}
	for _, h := range hooks {
		if v := clean(h.value); v != "" {
			return attrEquals(h.name, v), true
		}
	}
	return "", false
}

func byAriaLabel(c schemas.ElementCandidate, _ int) (string, bool) {
	if v := clean(c.Attributes.AriaLabel); v != "" {
		return attrEquals("aria-label", v), true
	}
	return "", false
}

func byName(c schemas.ElementCandidate, _ int) (string, bool) {
	if v := clean(c.Attributes.Name); v != "" {
		return c.Tag + attrEquals("name", v), true
	}
	return "", false
}

func byPlaceholder(c schemas.ElementCandidate, _ int) (string, bool) {
	if v := clean(c.Attributes.Placeholder); v != "" {
		return attrEquals("placeholder", v), true
	}
	return "", false
}

func byRoleAttr(c schemas.ElementCandidate, _ int) (string, bool) {
	if v := clean(c.Attributes.RoleAttr); v != "" {
		return attrEquals("role", v), true
	}
	return "", false
}

func isTextTarget(c schemas.ElementCandidate) bool {
	if c.Tag == "a" || c.Tag == "button" {
		return true
	}
	switch c.Attributes.Type {
	case "submit", "button", "reset":
		return true
	}
	return false
}

func byText(c schemas.ElementCandidate, n int) (string, bool) {
	if !isTextTarget(c) {
		return "", false
	}
	text := strings.TrimSpace(truncateRunes(clean(c.Text), maxTextLen))
	if text == "" {
		return "", false
	}

	hasText := fmt.Sprintf("%s:has-text('%s'):nth-match(%d)", c.Tag, text, n)
	if title := clean(c.Attributes.Title); title != "" {
		return c.Tag + attrEquals("title", title), true
	}
	href := clean(c.Attributes.Href)

	if !genericTexts[strings.ToLower(text)] {
		if href != "" {
			return fmt.Sprintf("%s%s:has-text('%s')", c.Tag, attrEquals("href", href), text), true
		}
		return hasText, true
	}

	// generic wording: lean on attributes, then on the ordinal.
	if href != "" {
		return c.Tag + attrEquals("href", href), true
	}
	if len(c.Attributes.Classes) > 0 {
		return fmt.Sprintf("%s.%s:nth-match(%d)", c.Tag, parser.EscapeIdent(c.Attributes.Classes[0]), n), true
	}
	return hasText, true
}

func byHref(c schemas.ElementCandidate, _ int) (string, bool) {
	if c.Tag != "a" {
		return "", false
	}
	href := clean(c.Attributes.Href)
	if href == "" {
		return "", false
	}
	if strings.Contains(href, "/") {
		segments := strings.Split(href, "/")
		tail := segments[len(segments)-1]
		if tail == "" {
			return "", false
		}
		return "a[href*='" + tail + "']", true
	}
	return "a" + attrEquals("href", href), true
}

func byInputType(c schemas.ElementCandidate, _ int) (string, bool) {
	if c.Tag != "input" {
		return "", false
	}
	typ := clean(c.Attributes.Type)
	if typ == "" {
		return "", false
	}
	base := "input" + attrEquals("type", typ)
	if v := clean(c.Attributes.Placeholder); v != "" {
		return base + attrEquals("placeholder", v), true
	}
	if v := clean(c.Attributes.Name); v != "" {
		return base + attrEquals("name", v), true
	}
	return base, true
}

// classToken picks the most specific looking class: the longest token that
// is longer than 3 chars and not a sizing or spacing utility, else the longest.
func classToken(classes []string) string {
	var best, longest string
	for _, raw := range classes {
		tok := clean(raw)
		if tok == "" {
			continue
		}
		if len(tok) > len(longest) {
			longest = tok
		}
		if len(tok) > 3 && !isUtilityClass(tok) && len(tok) > len(best) {
			best = tok
		}
	}
	if best != "" {
		return best
	}
	return longest
}

func isUtilityClass(tok string) bool {
	for _, prefix := range []string{"w-", "h-", "p-", "m-"} {
		if strings.HasPrefix(tok, prefix) {
			return true
		}
	}
	return false
}

func byClass(c schemas.ElementCandidate, _ int) (string, bool) {
	tok := classToken(c.Attributes.Classes)
	if tok == "" {
		return "", false
	}
	return fmt.Sprintf("%s[class*='%s']", c.Tag, tok), true
}

func byTitleOrAlt(c schemas.ElementCandidate, _ int) (string, bool) {
	if v := clean(c.Attributes.Title); v != "" {
		return attrEquals("title", v), true
	}
	if v := clean(c.Attributes.Alt); v != "" {
		return attrEquals("alt", v), true
	}
	return "", false
}

func byDataAttribute(c schemas.ElementCandidate, _ int) (string, bool) {
	for _, d := range c.Attributes.Data {
		if !isPlainAttrName(d.Name) {
			continue
		}
		if v := clean(d.Value); v != "" {
			return attrEquals(d.Name, v), true
		}
	}
	return "", false
}

// isPlainAttrName rejects attribute names that would need escaping.
func isPlainAttrName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}
