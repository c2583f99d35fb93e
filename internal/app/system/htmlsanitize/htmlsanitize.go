// Package htmlsanitize cleans user-supplied text before it is stored or
// rendered. Prompt bodies may carry a small subset of formatting HTML;
// comments are plain text only.
package htmlsanitize

import (
	"html"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MaxCommentLength is the longest comment body accepted, in runes.
const MaxCommentLength = 2000

var (
	ugc    = newUGCPolicy()
	strict = bluemonday.StrictPolicy()
)

func newUGCPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Sanitize strips anything outside the formatting allow-list from s.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	return ugc.Sanitize(s)
}

// SanitizeToHTML sanitizes s and marks the result safe for templates.
func SanitizeToHTML(s string) template.HTML {
	return template.HTML(Sanitize(s))
}

// CommentText reduces s to plain text: tags and the contents of script and
// style elements are removed, entities are decoded, surrounding whitespace
// is trimmed and the result is cut to MaxCommentLength runes. The result is
// meant to be escaped again at render time.
func CommentText(s string) string {
	if s == "" {
		return ""
	}
	out := strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
	if r := []rune(out); len(r) > MaxCommentLength {
		out = string(r[:MaxCommentLength])
	}
	return out
}

// IsPlainText reports whether s contains no markup.
func IsPlainText(s string) bool {
	return !strings.Contains(s, "<")
}

// PlainTextToHTML escapes s and turns newlines into line breaks.
func PlainTextToHTML(s string) template.HTML {
	if s == "" {
		return ""
	}
	escaped := html.EscapeString(s)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
}

// PrepareForDisplay renders a stored prompt body: plain text keeps its line
// breaks, markup is sanitized.
func PrepareForDisplay(s string) template.HTML {
	if IsPlainText(s) {
		return PlainTextToHTML(s)
	}
	return SanitizeToHTML(s)
}
