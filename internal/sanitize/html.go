package sanitize

import (
	"strings"

	"golang.org/x/net/html"
)

// Tags whose text content never belongs in an evaluation context
var droppedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
	"iframe":   true,
	"head":     true,
	"title":    true,
}

// Passage reduces a retrieved passage to plain text. Retrieval pipelines that
// index web pages hand back HTML fragments; the scoring oracle should see the
// same prose the end user would, not markup. Input without any tags passes
// through untouched apart from whitespace normalization.
func Passage(raw string) string {
	if !strings.ContainsRune(raw, '<') {
		return collapse(raw)
	}

	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return collapse(raw)
	}

	var b strings.Builder
	extractText(doc, &b)
	return collapse(b.String())
}

// Passages sanitizes every passage, dropping any that reduce to nothing
func Passages(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if clean := Passage(p); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

func extractText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && droppedTags[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, b)
	}
}

// collapse folds runs of whitespace into single spaces, preserving newlines
// between paragraphs the caller already had.
func collapse(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
