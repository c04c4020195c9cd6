package classifier_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/browser/dom"
	"github.com/xkilldash9x/uiprobe-cli/internal/browser/parser"
	"github.com/xkilldash9x/uiprobe-cli/internal/classifier"
	"github.com/xkilldash9x/uiprobe-cli/internal/selector"
)

const loginPage = `<html><head><title>Login</title></head><body>
<form id="login" action="/login">
	<input type="email" name="email" placeholder="Email">
	<input type="hidden" name="csrf" value="x">
	<input type="checkbox" name="remember">
	<button type="submit">Sign in</button>
</form>
<nav><a href="/docs">Docs</a></nav>
<div class="card" onclick="open()">Card</div>
<span aria-hidden="true">*</span>
<p>Plain</p>
</body></html>`

func newClassifier(t *testing.T) *classifier.Classifier {
	logger := zaptest.NewLogger(t)
	return classifier.New(selector.New(&selector.Counter{}, logger), logger)
}

func selectors(list []schemas.ElementCandidate) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.Selector)
	}
	return out
}

func TestClassify(t *testing.T) {
	roles := newClassifier(t).Classify(dom.Sanitize(loginPage))

	assert.Equal(t, []string{"button:has-text('Sign in'):nth-match(1)", "div[class*='card']"}, selectors(roles[schemas.RoleButton]))
	assert.Equal(t, []string{"input[name='email']"}, selectors(roles[schemas.RoleInput]))
	assert.Equal(t, []string{"input[name='remember']"}, selectors(roles[schemas.RoleCheckbox]))
	assert.Equal(t, []string{"a[href='/docs']:has-text('Docs')"}, selectors(roles[schemas.RoleLink]))
	assert.Equal(t, []string{"#login"}, selectors(roles[schemas.RoleForm]))
	assert.Equal(t, []string{"span"}, selectors(roles[schemas.RoleClickable]))
	assert.Equal(t, []string{"nav", "p"}, selectors(roles[schemas.RoleInteractive]))
	assert.Equal(t, 9, roles.Total())

	assert.Equal(t, []schemas.Role{
		schemas.RoleButton, schemas.RoleLink, schemas.RoleInput, schemas.RoleCheckbox,
		schemas.RoleForm, schemas.RoleInteractive, schemas.RoleClickable,
	}, roles.Roles())

	button := roles[schemas.RoleButton]
	assert.Equal(t, schemas.ProvenanceDirectTag, button[0].Provenance)
	assert.Equal(t, schemas.ProvenanceRoleTable, button[1].Provenance)
	assert.Equal(t, schemas.ActionClick, button[1].Action)
	assert.Equal(t, schemas.ProvenanceEventAria, roles[schemas.RoleClickable][0].Provenance)
	assert.Equal(t, schemas.ProvenanceCatchAll, roles[schemas.RoleInteractive][0].Provenance)
	assert.Equal(t, schemas.ActionFill, roles[schemas.RoleInput][0].Action)
	assert.Equal(t, schemas.ActionSubmit, roles[schemas.RoleForm][0].Action)
}

func TestClassifyExcludesHiddenInputs(t *testing.T) {
	roles := newClassifier(t).Classify(dom.Sanitize(loginPage))
	for _, r := range roles.Roles() {
		for _, c := range roles[r] {
			assert.NotEqual(t, "csrf", c.Attributes.Name, "hidden input leaked into %s", r)
		}
	}
}

func TestClassifyInputSubtypes(t *testing.T) {
	roles := newClassifier(t).Classify(dom.Sanitize(`
		<input type="radio" name="plan">
		<input type="image" src="/go.png">
		<input type="RESET">
		<input>
		<input type="range" min="0" max="10">
		<select name="size"><option>1</option></select>
		<textarea class="notes"></textarea>`))

	assert.Len(t, roles[schemas.RoleRadio], 1)
	assert.Len(t, roles[schemas.RoleButton], 2, "image and reset inputs are buttons")
	assert.Len(t, roles[schemas.RoleInput], 3, "untyped, range and textarea")
	assert.Equal(t, []string{"select[name='size']"}, selectors(roles[schemas.RoleSelect]))
}

func TestClassifyIsDeterministic(t *testing.T) {
	doc := dom.Sanitize(loginPage)
	first := newClassifier(t).Classify(doc)
	second := newClassifier(t).Classify(doc)
	assert.Equal(t, first.Groups(), second.Groups())
}

func TestClassifyNeverEmitsDuplicateNodes(t *testing.T) {
	pages := []string{
		loginPage,
		`<div class="btn-group"><button class="btn">A</button><button class="btn">A</button></div>
		 <a class="nav-link menu-item tab" href="#x" tabindex="0" aria-label="x" role="tab">x</a>`,
		strings.Repeat(`<div class="row"><span class="chip" onclick="f()">chip</span></div>`, 20),
	}
	for _, page := range pages {
		roles := newClassifier(t).Classify(dom.Sanitize(page))
		seen := map[string]bool{}
		for _, r := range roles.Roles() {
			for _, c := range roles[r] {
				require.NotEmpty(t, c.DedupKey)
				assert.False(t, seen[c.DedupKey], "duplicate node %s in %s", c.Selector, r)
				seen[c.DedupKey] = true
			}
		}
	}
}

func TestClassifiedSelectorsParse(t *testing.T) {
	page := loginPage + `<div><button><svg><path d="M1 1"></path></svg></button><a href="/a/b/">About</a>
		<span data-track="x y"></span><div role="dialog" aria-modal="true">Hi</div></div>`
	roles := newClassifier(t).Classify(dom.Sanitize(page))
	require.NotZero(t, roles.Total())
	for _, r := range roles.Roles() {
		for _, c := range roles[r] {
			_, err := parser.ParseSelector(c.Selector)
			assert.NoError(t, err, "role %s selector %q", r, c.Selector)
		}
	}
}

func TestClassifyEmptyDocument(t *testing.T) {
	c := newClassifier(t)
	assert.Zero(t, c.Classify(nil).Total())
	assert.Zero(t, c.Classify(dom.Sanitize("")).Total())
}
