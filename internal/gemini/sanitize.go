package gemini

import (
	"bytes"
	"html"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	markdown    = goldmark.New()
	stripPolicy = bluemonday.StrictPolicy()
	blockTags   = regexp.MustCompile(`<br\s*/?>|</?p>|</?div>|</?pre>|</?li>|</?h[1-6]>`)
)

// plainText strips markdown and HTML from model output. Replies are sent without a parse mode,
// so any markup would reach the chat verbatim.
func plainText(text string) string {
	if text == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return text
	}

	stripped := stripPolicy.Sanitize(blockTags.ReplaceAllString(buf.String(), "\n"))
	return html.UnescapeString(stripped)
}
