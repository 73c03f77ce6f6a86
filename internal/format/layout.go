package format

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

const rowBreak = "\n"

// UnwrapTableLayout removes single-column layout tables that mail clients wrap around
// compose content, keeping data tables (headers, several columns, uniform rows) intact.
func UnwrapTableLayout(htmlContent []byte) []byte {
	doc, err := html.Parse(bytes.NewReader(htmlContent))
	if err != nil {
		return htmlContent
	}

	for range 10 {
		if !simplifyNode(doc) {
			break
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return htmlContent
	}

	return buf.Bytes()
}

// simplifyNode unwraps layout tables bottom-up and reports whether anything changed.
func simplifyNode(n *html.Node) bool {
	changed := false

	for child := n.FirstChild; child != nil; {
		next := child.NextSibling
		if simplifyNode(child) {
			changed = true
		}
		child = next
	}

	if isElement(n, "table") && isLayoutTable(n) {
		unwrapTable(n)
		changed = true
	}

	return changed
}

func isLayoutTable(table *html.Node) bool {
	if findFirst(table, func(n *html.Node) bool { return isElement(n, "th") || isElement(n, "thead") }) {
		return false
	}

	counts := rowCellCounts(table)
	if slicesMax(counts) > 1 {
		return false
	}

	for _, attr := range table.Attr {
		if attr.Key == "id" && (attr.Val == "main" || strings.Contains(attr.Val, "layout") || strings.Contains(attr.Val, "wrapper")) {
			return true
		}
	}

	contentRows := 0
	walk(table, func(n *html.Node) {
		if isElement(n, "tr") && hasTextContent(n) {
			contentRows++
		}
	})

	// many uniform rows look like a list of records rather than page chrome
	return !(contentRows > 5 && uniform(counts))
}

func rowCellCounts(table *html.Node) []int {
	var counts []int
	walk(table, func(n *html.Node) {
		if !isElement(n, "tr") {
			return
		}
		cells := 0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if isElement(c, "td") || isElement(c, "th") {
				cells++
			}
		}
		counts = append(counts, cells)
	})
	return counts
}

func uniform(counts []int) bool {
	if len(counts) < 2 {
		return false
	}
	for _, c := range counts[1:] {
		if c != counts[0] {
			return false
		}
	}
	return true
}

func slicesMax(xs []int) int {
	m := 0
	for _, x := range xs {
		m = max(m, x)
	}
	return m
}

func hasTextContent(n *html.Node) bool {
	return findFirst(n, func(c *html.Node) bool {
		if c.Type != html.TextNode {
			return false
		}
		text := strings.TrimSpace(c.Data)
		return text != "" && text != "&nbsp;"
	})
}

func unwrapTable(table *html.Node) {
	parent := table.Parent
	if parent == nil {
		return
	}

	var content []*html.Node
	collectCellContent(table, &content)

	for _, node := range content {
		parent.InsertBefore(node, table)
	}
	parent.RemoveChild(table)
}

func collectCellContent(n *html.Node, content *[]*html.Node) {
	switch {
	case n.Type == html.ElementNode && isTableElement(n.Data):
		before := len(*content)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collectCellContent(c, content)
		}
		if n.Data == "tr" && len(*content) > before {
			*content = append(*content, &html.Node{Type: html.TextNode, Data: rowBreak})
		}
	case n.Type == html.ElementNode:
		*content = append(*content, cloneNode(n))
	case n.Type == html.TextNode && (n.Data == rowBreak || strings.TrimSpace(n.Data) != ""):
		// row breaks from already unwrapped inner tables keep adjacent cells apart
		*content = append(*content, &html.Node{Type: html.TextNode, Data: n.Data})
	}
}

func isTableElement(tag string) bool {
	switch tag {
	case "table", "tbody", "thead", "tfoot", "tr", "td", "th":
		return true
	}
	return false
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findFirst(n *html.Node, pred func(*html.Node) bool) bool {
	if pred(n) {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if findFirst(c, pred) {
			return true
		}
	}
	return false
}

func cloneNode(n *html.Node) *html.Node {
	clone := &html.Node{
		Type: n.Type,
		Data: n.Data,
		Attr: append([]html.Attribute{}, n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clone.AppendChild(cloneNode(c))
	}
	return clone
}
