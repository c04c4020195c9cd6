// internal/script/render.go
package script

import (
	"bytes"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/browser/parser"
)

//go:embed templates/page_test.py.tmpl
var pageTemplateSource string

// DefaultVisualDiffThreshold is the mean channel difference above which two
// screenshots count as visually different.
const DefaultVisualDiffThreshold = 0.05

// Options tune the launch parameters baked into a rendered script.
type Options struct {
	Threshold      float64
	Headless       bool
	Args           []string
	ViewportWidth  int
	ViewportHeight int
	// ActionTimeout is the per-action timeout in milliseconds.
	ActionTimeout int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Threshold:      DefaultVisualDiffThreshold,
		Headless:       true,
		Args:           []string{"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage"},
		ViewportWidth:  1280,
		ViewportHeight: 720,
		ActionTimeout:  3000,
	}
}

var pageTemplate = template.Must(template.New("page_test").
	Funcs(template.FuncMap{"py": PyString}).
	Parse(pageTemplateSource))

type stepView struct {
	Index       int
	Role        schemas.Role
	Heading     bool
	Marker      bool
	Navigates   bool
	Comment     string
	Action      string
	Selector    string
	Description string
}

type pageView struct {
	URL            string
	RawURL         string
	StepCount      int
	Threshold      string
	Headless       bool
	Args           []string
	ViewportWidth  int
	ViewportHeight int
	Steps          []stepView
}

// Render produces a standalone Playwright script for the plan using the
// default options.
func Render(plan schemas.PagePlan) (string, error) {
	return RenderWith(plan, DefaultOptions())
}

// RenderWith produces a standalone Playwright script for the plan. The output
// depends only on its inputs, so rendering the same plan twice yields
// identical text.
func RenderWith(plan schemas.PagePlan, opts Options) (string, error) {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultOptions().ActionTimeout
	}
	view := pageView{
		URL:            plan.URL,
		RawURL:         commentSafe(plan.URL),
		StepCount:      len(plan.Steps),
		Threshold:      strconv.FormatFloat(opts.Threshold, 'f', -1, 64),
		Headless:       opts.Headless,
		Args:           opts.Args,
		ViewportWidth:  opts.ViewportWidth,
		ViewportHeight: opts.ViewportHeight,
	}
	if !strings.Contains(view.Threshold, ".") {
		view.Threshold += ".0"
	}

	var lastRole schemas.Role
	for i, step := range plan.Steps {
		sv := stepView{
			Index:       i + 1,
			Role:        schemas.Role(identifierSafe(string(step.Role))),
			Marker:      step.Kind == schemas.StepMarker,
			Navigates:   step.Navigates(),
			Comment:     commentSafe(step.Selector),
			Selector:    PyString(step.Selector),
			Description: PyString(step.Description),
		}
		if !sv.Marker {
			sv.Heading = step.Role != lastRole
			lastRole = step.Role
			sv.Action = actionLine(step, opts.ActionTimeout)
		}
		view.Steps = append(view.Steps, sv)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render script for %s: %w", plan.URL, err)
	}
	return buf.String(), nil
}

// Locator is the Playwright locator expression for a selector. A trailing
// :nth-match(n) becomes .nth(n-1) so the script never depends on the engine
// understanding the pseudo-class.
func Locator(selector string) string {
	base, n := parser.SplitNthMatch(selector)
	if n > 0 {
		return fmt.Sprintf("page.locator(%s).nth(%d)", PyString(base), n-1)
	}
	return fmt.Sprintf("page.locator(%s)", PyString(selector))
}

func actionLine(step schemas.InteractionStep, timeout int) string {
	loc := Locator(step.Selector)
	switch step.Kind {
	case schemas.StepFill, schemas.StepSlide:
		return fmt.Sprintf("%s.fill(%s, timeout=%d)", loc, PyString(step.Value), timeout)
	case schemas.StepCheck:
		return fmt.Sprintf("%s.check(timeout=%d)", loc, timeout)
	case schemas.StepSelectOption:
		return fmt.Sprintf("%s.select_option(index=%s, timeout=%d)", loc, selectIndex(step.Value), timeout)
	case schemas.StepDetect:
		return fmt.Sprintf("print(\"Visible: %%s\" %% %s.is_visible())", loc)
	case schemas.StepSubmit:
		return fmt.Sprintf("%s.evaluate(\"form => form.requestSubmit ? form.requestSubmit() : form.submit()\")", loc)
	default:
		return fmt.Sprintf("%s.click(timeout=%d)", loc, timeout)
	}
}

func selectIndex(v string) string {
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return strconv.Itoa(n)
	}
	return "1"
}

// PyString quotes s as a Python 3 string literal.
func PyString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f || !unicode.IsPrint(r) && r <= 0xffff {
				fmt.Fprintf(&b, `\u%04x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// commentSafe keeps text on one line so it can sit after a '#'.
func commentSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || !unicode.IsPrint(r) {
			return ' '
		}
		return r
	}, s)
}

// identifierSafe restricts role names to characters valid in a file name and
// a plain string literal.
func identifierSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, s)
}
