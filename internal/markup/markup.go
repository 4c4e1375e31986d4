// Package markup converts the markdown dialect used by post bodies into the
// HTML markup the platform write APIs expect. The conversion is pure and
// deterministic: the same input always yields byte-identical output.
package markup

import (
	"bytes"
	"html"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"
)

var (
	engine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Strikethrough),
		goldmark.WithRendererOptions(ghtml.WithXHTML(), ghtml.WithUnsafe()),
	)
	sanitizer = buildSanitizer()
)

func buildSanitizer() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	// Links published on third-party platforms open in a new tab.
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	policy.AllowAttrs("target", "rel").OnElements("a")
	policy.AllowAttrs("class").OnElements("code", "pre")
	return policy
}

// ToHTML renders markdown to sanitized HTML. It is total: a render failure
// degrades to the escaped input wrapped in a paragraph instead of an error.
func ToHTML(markdown string) string {
	var buf bytes.Buffer
	if err := engine.Convert([]byte(markdown), &buf); err != nil {
		return "<p>" + html.EscapeString(markdown) + "</p>"
	}
	return sanitizer.Sanitize(buf.String())
}
