package dom_test

import (
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
	"github.com/xkilldash9x/uiprobe-cli/internal/browser/dom"
)

const factsHTML = `<html><body>
<section id="checkout">
	<div class="actions row">
		<button class="btn">Back</button>
		<button class="btn  btn-primary" data-testid="pay" data-track="cta" data-a="1" aria-label="Pay now" onclick="pay()">
			Pay
			now
		</button>
	</div>
</section>
<input type="Email" placeholder="  you@example.com " value="ignored">
<input type="text" value="prefilled">
</body></html>`

func TestCandidateFacts(t *testing.T) {
	doc := dom.Sanitize(factsHTML)
	node := htmlquery.FindOne(doc.Root, "//button[@data-testid='pay']")
	require.NotNil(t, node)

	c := doc.Candidate(node)
	assert.Equal(t, "button", c.Tag)
	assert.Equal(t, "Pay now", c.Text, "whitespace is collapsed")
	assert.Equal(t, []string{"btn", "btn-primary"}, c.Attributes.Classes)
	assert.Equal(t, "pay", c.Attributes.TestID)
	assert.Equal(t, "Pay now", c.Attributes.AriaLabel)
	assert.Equal(t, []schemas.DataAttribute{{Name: "data-a", Value: "1"}, {Name: "data-track", Value: "cta"}}, c.Attributes.Data)
	assert.True(t, c.HasHandler)
	assert.False(t, c.HasIcon)

	ctx := c.Context
	assert.Equal(t, "div", ctx.ParentTag)
	assert.Equal(t, "actions row", ctx.ParentClass)
	assert.Equal(t, "section", ctx.GrandparentTag)
	assert.Equal(t, "checkout", ctx.GrandparentID)
	assert.Equal(t, 2, ctx.Position)
	assert.Equal(t, []schemas.PathStep{
		{Tag: "html", Position: 1},
		{Tag: "body", Position: 2},
		{Tag: "section", Position: 1},
		{Tag: "div", Position: 1},
		{Tag: "button", Position: 2},
	}, ctx.AncestorPath)
	assert.Equal(t, 2, ctx.AnchorDepth)
	assert.Equal(t, "checkout", ctx.AnchorID)
	assert.Equal(t, "//*[@id='checkout']/div[1]/button[2]", c.XPath)
}

func TestCandidateCountsStrippedSiblings(t *testing.T) {
	doc := dom.Sanitize(`<html><head><title>t</title></head><body>` +
		`<script>var x = 1;</script><style>p { color: red; }</style>` +
		`<div id="wrap"><svg><path d="M0 0"></path></svg><button>Save</button><span>hi</span><button>Go</button></div>` +
		`</body></html>`)
	node := htmlquery.FindOne(doc.Root, "//button[text()='Go']")
	require.NotNil(t, node)

	ctx := doc.Candidate(node).Context
	assert.Equal(t, 2, ctx.Position, "nth-of-type is unaffected by stripped tags")
	assert.Equal(t, []schemas.PathStep{
		{Tag: "html", Position: 1},
		{Tag: "body", Position: 2},
		{Tag: "div", Position: 3},
		{Tag: "button", Position: 4},
	}, ctx.AncestorPath)
	assert.Equal(t, "wrap", ctx.AnchorID)

	plain := dom.Context(node)
	assert.Equal(t, 1, plain.AncestorPath[2].Position, "the sanitized tree lost the script and style")
	assert.Equal(t, 3, plain.AncestorPath[3].Position)
}

func TestCandidateInputText(t *testing.T) {
	doc := dom.Sanitize(factsHTML)
	inputs := htmlquery.Find(doc.Root, "//input")
	require.Len(t, inputs, 2)

	first := doc.Candidate(inputs[0])
	assert.Equal(t, "you@example.com", first.Text, "placeholder wins over value")
	assert.Equal(t, "email", first.Attributes.Type, "type is lower-cased")

	second := doc.Candidate(inputs[1])
	assert.Equal(t, "prefilled", second.Text)
	assert.Equal(t, -1, second.Context.AnchorDepth)
}

func TestDedupKey(t *testing.T) {
	doc := dom.Sanitize(`<html><body>
		<div><button>Buy</button></div>
		<div><button>Buy</button></div>
		<a id="home" href="/">Home</a>
	</body></html>`)

	buttons := htmlquery.Find(doc.Root, "//button")
	require.Len(t, buttons, 2)
	k1 := dom.DedupKey(doc.Candidate(buttons[0]))
	k2 := dom.DedupKey(doc.Candidate(buttons[1]))
	assert.NotEqual(t, k1, k2, "identical markup at different positions are distinct nodes")
	assert.Equal(t, k1, dom.DedupKey(doc.Candidate(buttons[0])), "the key is stable")

	link := doc.Candidate(htmlquery.FindOne(doc.Root, "//a"))
	other := link
	other.Text = "Different"
	other.Context.AncestorPath = nil
	assert.Equal(t, dom.DedupKey(link), dom.DedupKey(other), "id alone identifies a node")
}
