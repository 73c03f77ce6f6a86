// Package format turns compose-window HTML into plain text suitable for greeting scanning.
package format

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var tagRe = regexp.MustCompile(`(?i)<\s*/?\s*[a-z!][^>]*>`)

// LooksLikeHTML reports whether s contains markup tags.
func LooksLikeHTML(s string) bool {
	return tagRe.MatchString(s)
}

// blockElements end the current line when they open or close.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true, "ol": true,
	"p": true, "pre": true, "section": true, "table": true, "tr": true, "ul": true,
}

// skippedElements never contribute text.
var skippedElements = map[string]bool{
	"head": true, "script": true, "style": true, "template": true, "title": true, "noscript": true,
}

// PlainText strips tags and decodes entities. Block elements become line breaks and
// table cells are separated by a space so adjacent words never merge.
// Input that does not parse is returned unchanged.
func PlainText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return htmlContent
	}

	for range 10 {
		if !simplifyNode(doc) {
			break
		}
	}

	var buf bytes.Buffer
	writeText(&buf, doc)

	return tidyLines(buf.String())
}

func writeText(buf *bytes.Buffer, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(n.Data)
		return
	case html.ElementNode:
		if skippedElements[n.Data] {
			return
		}
		if blockElements[n.Data] {
			newline(buf)
		}
		if n.Data == "td" || n.Data == "th" {
			buf.WriteByte(' ')
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(buf, c)
	}

	if n.Type == html.ElementNode && blockElements[n.Data] {
		newline(buf)
	}
}

func newline(buf *bytes.Buffer) {
	if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}
}

// tidyLines collapses horizontal whitespace runs, trims every line and squeezes blank-line runs.
func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
