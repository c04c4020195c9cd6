// internal/browser/parser/selector.go
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrEmptySelector is returned for blank input.
var ErrEmptySelector = errors.New("selector is empty")

// SelectorGroup represents a comma-separated list of selectors (e.g., "h1, h2 .title").
type SelectorGroup []ComplexSelector

// ComplexSelector represents a sequence of compound selectors joined by combinators (e.g., "div > p").
type ComplexSelector struct {
	Selectors []SimpleSelectorWithCombinator
}

// Subject returns the rightmost compound, the one the selector targets.
func (cs ComplexSelector) Subject() SimpleSelector {
	if len(cs.Selectors) == 0 {
		return SimpleSelector{}
	}
	return cs.Selectors[len(cs.Selectors)-1].SimpleSelector
}

// NthMatch returns the ordinal of a trailing :nth-match(n), or 0.
func (cs ComplexSelector) NthMatch() int {
	for _, p := range cs.Subject().Pseudos {
		if p.Kind == PseudoNthMatch {
			return p.N
		}
	}
	return 0
}

// SimpleSelectorWithCombinator pairs a compound selector with its preceding combinator.
type SimpleSelectorWithCombinator struct {
	Combinator     Combinator
	SimpleSelector SimpleSelector
}

// SimpleSelector is a compound selector: tag, id, classes, attributes and pseudo-classes.
type SimpleSelector struct {
	TagName    string
	ID         string
	Classes    []string
	Attributes []AttributeSelector
	Pseudos    []PseudoClass
}

// AttributeSelector represents a CSS attribute selector like `[href]` or `[target="_blank"]`.
type AttributeSelector struct {
	Name     string
	Operator string // "", "=", "~=", "|=", "^=", "$=", "*="
	Value    string
}

// PseudoKind enumerates the supported pseudo-classes.
type PseudoKind int

const (
	PseudoNot PseudoKind = iota
	PseudoHas
	PseudoHasText
	PseudoNthChild
	PseudoNthOfType
	PseudoNthMatch
)

var pseudoNames = map[string]PseudoKind{
	"not":         PseudoNot,
	"has":         PseudoHas,
	"has-text":    PseudoHasText,
	"nth-child":   PseudoNthChild,
	"nth-of-type": PseudoNthOfType,
	"nth-match":   PseudoNthMatch,
}

// PseudoClass is one parsed pseudo-class with its argument.
type PseudoClass struct {
	Kind PseudoKind
	// Text is the :has-text argument.
	Text string
	// N is the 1-based index of the nth-* family.
	N int
	// Selector is the :not / :has argument. For :has it is relative to the
	// subject; Relation says whether it must be a child or any descendant.
	Selector SelectorGroup
	Relation Combinator
}

// Combinator defines the relationship between compound selectors.
type Combinator int

const (
	CombinatorNone            Combinator = iota // No combinator (first selector)
	CombinatorDescendant                        // Space
	CombinatorChild                             // >
	CombinatorAdjacentSibling                   // +
	CombinatorGeneralSibling                    // ~
)

// IsValid checks if the selector has at least one component.
func (s SimpleSelector) IsValid() bool {
	return s.TagName != "" || s.ID != "" || len(s.Classes) > 0 || len(s.Attributes) > 0 || len(s.Pseudos) > 0
}

// Parser holds the state of the selector parser.
type Parser struct {
	input string
	pos   int
	depth int
}

func NewParser(input string) *Parser {
	return &Parser{input: input}
}

// ParseSelector parses a complete selector list. Unknown pseudo-classes,
// dangling combinators and trailing garbage are errors.
func ParseSelector(input string) (SelectorGroup, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptySelector
	}
	p := NewParser(input)
	group, err := p.parseSelectorGroup()
	if err != nil {
		return nil, err
	}
	p.consumeWhitespace()
	if !p.eof() {
		return nil, p.errorf("unexpected %q", p.currentChar())
	}
	return group, nil
}

// MustParseSelector is ParseSelector for package level tables known to be valid.
func MustParseSelector(input string) SelectorGroup {
	g, err := ParseSelector(input)
	if err != nil {
		panic(fmt.Sprintf("parser: invalid selector %q: %v", input, err))
	}
	return g
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("selector %q at offset %d: %s", p.input, p.pos, fmt.Sprintf(format, args...))
}

// parseSelectorGroup parses a comma-separated list of complex selectors. Inside
// a functional pseudo-class it stops before the closing parenthesis.
func (p *Parser) parseSelectorGroup() (SelectorGroup, error) {
	var group SelectorGroup
	for {
		complex, err := p.parseComplexSelector()
		if err != nil {
			return nil, err
		}
		group = append(group, complex)

		p.consumeWhitespace()
		if p.eof() || p.currentChar() != ',' {
			break
		}
		p.consumeChar()
	}
	return group, nil
}

func (p *Parser) atGroupEnd() bool {
	if p.eof() {
		return true
	}
	ch := p.currentChar()
	return ch == ',' || (ch == ')' && p.depth > 0)
}

// parseComplexSelector parses a sequence of compound selectors and combinators.
func (p *Parser) parseComplexSelector() (ComplexSelector, error) {
	var complexSelector ComplexSelector
	combinator := CombinatorNone

	p.consumeWhitespace()
	for {
		if p.atGroupEnd() {
			if combinator != CombinatorNone && combinator != CombinatorDescendant || len(complexSelector.Selectors) == 0 {
				return ComplexSelector{}, p.errorf("expected a selector")
			}
			break
		}

		simple, err := p.parseSimpleSelector()
		if err != nil {
			return ComplexSelector{}, err
		}
		complexSelector.Selectors = append(complexSelector.Selectors, SimpleSelectorWithCombinator{
			Combinator:     combinator,
			SimpleSelector: simple,
		})

		sawSpace := p.consumeWhitespace()
		if p.atGroupEnd() {
			break
		}
		switch p.currentChar() {
		case '>':
			combinator = CombinatorChild
			p.consumeChar()
			p.consumeWhitespace()
		case '+':
			combinator = CombinatorAdjacentSibling
			p.consumeChar()
			p.consumeWhitespace()
		case '~':
			combinator = CombinatorGeneralSibling
			p.consumeChar()
			p.consumeWhitespace()
		default:
			if !sawSpace {
				return ComplexSelector{}, p.errorf("unexpected %q", p.currentChar())
			}
			combinator = CombinatorDescendant
		}
	}

	for i, s := range complexSelector.Selectors {
		for _, ps := range s.SimpleSelector.Pseudos {
			if ps.Kind == PseudoNthMatch && i != len(complexSelector.Selectors)-1 {
				return ComplexSelector{}, p.errorf(":nth-match must be on the last compound")
			}
		}
	}
	return complexSelector, nil
}

// parseSimpleSelector parses a single compound (e.g., div#id.class1[type='x']:not(.y)).
func (p *Parser) parseSimpleSelector() (SimpleSelector, error) {
	selector := SimpleSelector{}

	if ch := p.currentChar(); ch == '*' {
		p.consumeChar()
		selector.TagName = "*"
	} else if p.atIdentifierStart() {
		name, err := p.parseIdentifier()
		if err != nil {
			return selector, err
		}
		selector.TagName = strings.ToLower(name)
	}

	for !p.eof() {
		switch p.currentChar() {
		case '#':
			p.consumeChar()
			id, err := p.parseIdentifier()
			if err != nil {
				return selector, err
			}
			selector.ID = id
		case '.':
			p.consumeChar()
			class, err := p.parseIdentifier()
			if err != nil {
				return selector, err
			}
			selector.Classes = append(selector.Classes, class)
		case '[':
			p.consumeChar()
			attr, err := p.parseAttributeSelector()
			if err != nil {
				return selector, err
			}
			selector.Attributes = append(selector.Attributes, attr)
		case ':':
			p.consumeChar()
			pseudo, err := p.parsePseudoClass()
			if err != nil {
				return selector, err
			}
			selector.Pseudos = append(selector.Pseudos, pseudo)
		default:
			goto done
		}
	}

done:
	if !selector.IsValid() {
		return selector, p.errorf("invalid simple selector")
	}
	return selector, nil
}

// parseAttributeSelector parses the contents of `[...]`; the opening bracket is already consumed.
func (p *Parser) parseAttributeSelector() (AttributeSelector, error) {
	p.consumeWhitespace()
	name, err := p.parseIdentifier()
	if err != nil {
		return AttributeSelector{}, err
	}
	p.consumeWhitespace()

	if p.eof() {
		return AttributeSelector{}, p.errorf("unexpected EOF in attribute selector")
	}
	if p.currentChar() == ']' {
		p.consumeChar()
		return AttributeSelector{Name: strings.ToLower(name)}, nil
	}

	var operator string
	switch ch := p.consumeChar(); ch {
	case '=':
		operator = "="
	case '~', '|', '^', '$', '*':
		if p.currentChar() != '=' {
			return AttributeSelector{}, p.errorf("invalid attribute operator")
		}
		p.consumeChar()
		operator = string(ch) + "="
	default:
		return AttributeSelector{}, p.errorf("invalid attribute operator %q", ch)
	}
	p.consumeWhitespace()

	var value string
	if ch := p.currentChar(); ch == '"' || ch == '\'' {
		value, err = p.parseQuotedString()
	} else {
		value, err = p.parseIdentifier()
	}
	if err != nil {
		return AttributeSelector{}, err
	}
	p.consumeWhitespace()

	if p.eof() || p.currentChar() != ']' {
		return AttributeSelector{}, p.errorf("expected ']' to close attribute selector")
	}
	p.consumeChar()

	return AttributeSelector{Name: strings.ToLower(name), Operator: operator, Value: value}, nil
}

// parsePseudoClass parses the part after ':'.
func (p *Parser) parsePseudoClass() (PseudoClass, error) {
	name, err := p.parseIdentifier()
	if err != nil {
		return PseudoClass{}, err
	}
	kind, ok := pseudoNames[strings.ToLower(name)]
	if !ok {
		return PseudoClass{}, p.errorf("unsupported pseudo-class :%s", name)
	}
	if p.currentChar() != '(' {
		return PseudoClass{}, p.errorf(":%s requires an argument", name)
	}
	p.consumeChar()
	p.consumeWhitespace()

	pseudo := PseudoClass{Kind: kind}
	switch kind {
	case PseudoNot, PseudoHas:
		if kind == PseudoHas {
			pseudo.Relation = CombinatorDescendant
			if p.currentChar() == '>' {
				pseudo.Relation = CombinatorChild
				p.consumeChar()
				p.consumeWhitespace()
			}
		}
		p.depth++
		group, err := p.parseSelectorGroup()
		p.depth--
		if err != nil {
			return PseudoClass{}, err
		}
		pseudo.Selector = group
	case PseudoHasText:
		var text string
		if ch := p.currentChar(); ch == '"' || ch == '\'' {
			text, err = p.parseQuotedString()
			if err != nil {
				return PseudoClass{}, err
			}
		} else {
			start := p.pos
			for !p.eof() && p.currentChar() != ')' {
				p.pos++
			}
			text = strings.TrimSpace(p.input[start:p.pos])
		}
		pseudo.Text = text
	default:
		start := p.pos
		for !p.eof() && p.currentChar() >= '0' && p.currentChar() <= '9' {
			p.pos++
		}
		n, err := strconv.Atoi(p.input[start:p.pos])
		if err != nil || n < 1 {
			return PseudoClass{}, p.errorf(":%s expects a positive integer", name)
		}
		pseudo.N = n
	}

	p.consumeWhitespace()
	if p.currentChar() != ')' {
		return PseudoClass{}, p.errorf("expected ')' to close :%s", name)
	}
	p.consumeChar()
	return pseudo, nil
}

// --- Lexer-like Helpers ---

func (p *Parser) eof() bool {
	return p.pos >= len(p.input)
}

func (p *Parser) currentChar() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) consumeChar() byte {
	ch := p.currentChar()
	if !p.eof() {
		p.pos++
	}
	return ch
}

// consumeWhitespace skips whitespace and reports whether any was present.
func (p *Parser) consumeWhitespace() bool {
	start := p.pos
	for !p.eof() && isWhitespace(p.currentChar()) {
		p.pos++
	}
	return p.pos > start
}

func (p *Parser) parseQuotedString() (string, error) {
	quote := p.consumeChar()
	var b strings.Builder
	for !p.eof() {
		ch := p.consumeChar()
		switch ch {
		case '\\':
			if p.eof() {
				return "", p.errorf("unterminated escape")
			}
			b.WriteByte(p.consumeChar())
		case quote:
			return b.String(), nil
		default:
			b.WriteByte(ch)
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *Parser) atIdentifierStart() bool {
	if p.eof() {
		return false
	}
	ch := p.currentChar()
	if ch == '-' && p.pos+1 < len(p.input) && p.input[p.pos+1] >= '0' && p.input[p.pos+1] <= '9' {
		return false
	}
	return isValidIdentifierStart(ch) || ch == '\\'
}

// parseIdentifier reads a CSS identifier, decoding backslash escapes.
func (p *Parser) parseIdentifier() (string, error) {
	if !p.atIdentifierStart() {
		return "", p.errorf("expected identifier")
	}
	var b strings.Builder
	for !p.eof() {
		ch := p.currentChar()
		switch {
		case ch == '\\':
			p.consumeChar()
			if p.eof() {
				return "", p.errorf("unterminated escape")
			}
			b.WriteRune(p.parseEscape())
		case isValidIdentifierChar(ch):
			b.WriteByte(p.consumeChar())
		default:
			return b.String(), nil
		}
	}
	return b.String(), nil
}

// parseEscape decodes the part after a backslash: up to six hex digits plus
// one optional whitespace, or a single literal character.
func (p *Parser) parseEscape() rune {
	start := p.pos
	for p.pos-start < 6 && !p.eof() && isHexDigit(p.currentChar()) {
		p.pos++
	}
	if p.pos > start {
		code, _ := strconv.ParseUint(p.input[start:p.pos], 16, 32)
		if !p.eof() && isWhitespace(p.currentChar()) {
			p.pos++
		}
		if code == 0 || code > utf8.MaxRune {
			return utf8.RuneError
		}
		return rune(code)
	}
	r, size := utf8.DecodeRuneInString(p.input[p.pos:])
	p.pos += size
	return r
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f'
}

func isHexDigit(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isValidIdentifierStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '-' || ch >= 0x80
}

func isValidIdentifierChar(ch byte) bool {
	return isValidIdentifierStart(ch) || (ch >= '0' && ch <= '9')
}

// EscapeIdent escapes s for use after '#' or '.', so that ids such as "1st"
// or utility classes such as "hover:bg-blue" stay valid.
func EscapeIdent(s string) string {
	if s == "-" {
		return `\-`
	}
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			if i == 0 || (i == 1 && s[0] == '-') {
				fmt.Fprintf(&b, `\%x `, r)
			} else {
				b.WriteRune(r)
			}
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || r == '-' || r >= 0x80:
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\%x `, r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SplitNthMatch separates a trailing :nth-match(n) from the rest of the
// selector. Drivers that have no such pseudo-class apply n as a 1-based index
// over the matches of base. n is 0 when there is no suffix.
func SplitNthMatch(selector string) (base string, n int) {
	trimmed := strings.TrimSpace(selector)
	const marker = ":nth-match("
	i := strings.LastIndex(trimmed, marker)
	if i <= 0 || !strings.HasSuffix(trimmed, ")") {
		return selector, 0
	}
	v, err := strconv.Atoi(strings.TrimSpace(trimmed[i+len(marker) : len(trimmed)-1]))
	if err != nil || v < 1 {
		return selector, 0
	}
	return trimmed[:i], v
}
