// internal/browser/dom/fingerprint.go
package dom

import (
	"hash"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"

	"github.com/xkilldash9x/uiprobe-cli/api/schemas"
)

// dedupTextLen bounds the text folded into a key.
const dedupTextLen = 30

var hasherPool = sync.Pool{
	New: func() interface{} { return fnv.New64a() },
}

// DedupKey computes the identity shared by all discovery passes. Elements with
// an id are keyed by it alone; everything else by tag, classes, a text prefix,
// key attributes and the ancestor path.
func DedupKey(c schemas.ElementCandidate) string {
	return fingerprint(dedupDescription(c))
}

func dedupDescription(c schemas.ElementCandidate) string {
	if c.Attributes.ID != "" {
		return "id:" + c.Attributes.ID
	}

	var sb strings.Builder
	sb.WriteString(c.Tag)
	sb.WriteByte(':')
	sb.WriteString(c.Attributes.ClassString())
	sb.WriteByte(':')
	text := c.Text
	if len(text) > dedupTextLen {
		text = text[:dedupTextLen]
	}
	sb.WriteString(text)
	sb.WriteByte(':')

	attrs := []struct{ k, v string }{
		{"name", c.Attributes.Name},
		{"type", c.Attributes.Type},
		{"href", c.Attributes.Href},
		{"src", c.Attributes.Src},
		{"aria-label", c.Attributes.AriaLabel},
	}
	for _, a := range attrs {
		if a.v == "" {
			continue
		}
		sb.WriteString(a.k)
		sb.WriteByte('=')
		sb.WriteString(a.v)
		sb.WriteByte(',')
	}
	sb.WriteByte(':')

	for _, step := range c.Context.AncestorPath {
		sb.WriteString(step.Tag)
		sb.WriteString(strconv.Itoa(step.Position))
		sb.WriteByte('/')
	}
	if c.HasIcon {
		sb.WriteString(":icon")
	}
	return sb.String()
}

func fingerprint(description string) string {
	hasher := hasherPool.Get().(hash.Hash64)
	defer func() {
		hasher.Reset()
		hasherPool.Put(hasher)
	}()

	_, _ = hasher.Write([]byte(description))
	return strconv.FormatUint(hasher.Sum64(), 16)
}
