package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
)

func withCascade(t *testing.T, rules []rule) {
	t.Helper()
	saved := cascade
	cascade = rules
	t.Cleanup(func() { cascade = saved })
}

func TestSynthesizeRecoversFromPanic(t *testing.T) {
	withCascade(t, []rule{{"boom", func(schemas.ElementCandidate, int) (string, bool) {
		panic("index out of range")
	}}})

	core, logs := observer.New(zapcore.WarnLevel)
	s := New(&Counter{}, zap.New(core))

	sel, ok := s.Synthesize(schemas.ElementCandidate{Tag: "Button"})
	assert.True(t, ok)
	assert.Equal(t, "button", sel)
	assert.Equal(t, 1, logs.FilterMessage("Selector synthesis panicked, using bare tag").Len())
}

func TestSynthesizeRejectsUnparsableSelector(t *testing.T) {
	withCascade(t, []rule{{"broken", func(schemas.ElementCandidate, int) (string, bool) {
		return "div[", true
	}}})

	sel, ok := New(nil, nil).Synthesize(schemas.ElementCandidate{Tag: "div"})
	assert.True(t, ok)
	assert.Equal(t, "div", sel)
}

func TestClassToken(t *testing.T) {
	assert.Equal(t, "card-body", classToken([]string{"w-full", "card-body", "x"}))
	assert.Equal(t, "p-10", classToken([]string{"p-10", "m-2"}))
	assert.Equal(t, "first", classToken([]string{"first", "other"}), "ties keep document order")
	assert.Empty(t, classToken(nil))
}

func TestClean(t *testing.T) {
	assert.Equal(t, "its a test", clean(`it's "a" test`))
	assert.Equal(t, "a b", clean("a\nb"))
	assert.Equal(t, `pathd`, clean(`path\d`))
}
