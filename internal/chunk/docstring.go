package chunk

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codemind/codegraph/internal/lang"
	"github.com/codemind/codegraph/internal/parser"
)

const maxDocstringLen = 1000

// extractDocstring pulls documentation for a declaration node. Python takes
// the leading string expression inside the body; every other language takes
// the comment block immediately above the declaration.
func extractDocstring(node *tree_sitter.Node, source []byte, language lang.Language, prefixes []string) string {
	var doc string
	if language == lang.Python {
		doc = pythonDocstring(node, source)
	} else {
		doc = leadingComment(node, source, prefixes)
	}
	doc = strings.TrimSpace(doc)
	if len(doc) > maxDocstringLen {
		doc = doc[:maxDocstringLen]
	}
	return doc
}

func pythonDocstring(node *tree_sitter.Node, source []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Kind() != "expression_statement" {
		return ""
	}
	expr := first.NamedChild(0)
	if expr == nil || expr.Kind() != "string" {
		return ""
	}
	return trimStringQuotes(parser.NodeText(expr, source))
}

// leadingComment collects contiguous comment siblings directly above the node.
func leadingComment(node *tree_sitter.Node, source []byte, prefixes []string) string {
	var lines []string
	for prev := node.PrevNamedSibling(); prev != nil; prev = prev.PrevNamedSibling() {
		kind := prev.Kind()
		if kind != "comment" && kind != "line_comment" && kind != "block_comment" {
			break
		}
		// A blank line between adjacent lines detaches the comment block.
		if int(node.StartPosition().Row)-int(prev.EndPosition().Row) > 1 {
			break
		}
		lines = append([]string{stripCommentMarkers(parser.NodeText(prev, source), prefixes)}, lines...)
		node = prev
	}
	return strings.Join(lines, "\n")
}

func stripCommentMarkers(text string, prefixes []string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/*") {
		text = strings.TrimPrefix(text, "/**")
		text = strings.TrimPrefix(text, "/*")
		text = strings.TrimSuffix(text, "*/")
		var cleaned []string
		for _, line := range strings.Split(text, "\n") {
			cleaned = append(cleaned, strings.TrimPrefix(strings.TrimSpace(line), "* "))
		}
		return strings.TrimSpace(strings.Join(cleaned, "\n"))
	}
	for _, p := range prefixes {
		if strings.HasPrefix(text, p) {
			return strings.TrimSpace(strings.TrimPrefix(text, p))
		}
	}
	return text
}

func trimStringQuotes(s string) string {
	for _, q := range []string{`"""`, "'''", `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return s
}
