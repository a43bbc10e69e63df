// ABOUTME: Converts assistant markdown into styled terminal text using the goldmark AST
// ABOUTME: Handles headings, emphasis, lists, code, links and quotes; drops raw HTML

package render

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// markdown renders one document. It is not safe for concurrent use.
type markdown struct {
	src   []byte
	theme *Theme
}

var mdParser = goldmark.New().Parser()

// Markdown renders src as terminal text styled with theme.
func Markdown(src string, theme *Theme) string {
	source := []byte(src)
	doc := mdParser.Parse(text.NewReader(source))

	m := &markdown{src: source, theme: theme}
	var b strings.Builder
	m.block(&b, doc)
	return strings.TrimRight(b.String(), " \n")
}

func (m *markdown) block(b *strings.Builder, n ast.Node) {
	switch n := n.(type) {
	case *ast.Document:
		m.children(b, n)

	case *ast.Heading:
		b.WriteString(m.theme.Heading.Sprint(m.inlineChildren(n)))
		b.WriteString("\n\n")

	case *ast.Paragraph:
		b.WriteString(m.inlineChildren(n))
		b.WriteString("\n\n")

	case *ast.TextBlock:
		b.WriteString(m.inlineChildren(n))
		b.WriteString("\n")

	case *ast.List:
		m.list(b, n)

	case *ast.Blockquote:
		var inner strings.Builder
		m.children(&inner, n)
		for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			b.WriteString(m.theme.Muted.Sprint("│ "))
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := n.Lines()
		for i := range lines.Len() {
			seg := lines.At(i)
			line := strings.TrimRight(string(seg.Value(m.src)), "\n")
			b.WriteString("    ")
			b.WriteString(m.theme.Code.Sprint(line))
			b.WriteString("\n")
		}
		b.WriteString("\n")

	case *ast.ThematicBreak:
		b.WriteString(m.theme.Muted.Sprint(strings.Repeat("─", 24)))
		b.WriteString("\n\n")

	case *ast.HTMLBlock:
		// dropped

	default:
		m.children(b, n)
	}
}

func (m *markdown) children(b *strings.Builder, n ast.Node) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		m.block(b, c)
	}
}

// list renders items with a bullet or number, indenting continuation lines.
func (m *markdown) list(b *strings.Builder, l *ast.List) {
	i := 0
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "• "
		if l.IsOrdered() {
			marker = fmt.Sprintf("%d. ", l.Start+i)
		}
		i++

		var inner strings.Builder
		m.children(&inner, item)
		body := strings.TrimRight(inner.String(), "\n")
		pad := strings.Repeat(" ", len([]rune(marker)))
		for j, line := range strings.Split(body, "\n") {
			switch {
			case j == 0:
				b.WriteString(m.theme.Bullet.Sprint(marker))
			case line == "":
			default:
				b.WriteString(pad)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
}

func (m *markdown) inlineChildren(n ast.Node) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		b.WriteString(m.inline(c))
	}
	return b.String()
}

func (m *markdown) inline(n ast.Node) string {
	switch n := n.(type) {
	case *ast.Text:
		s := string(n.Segment.Value(m.src))
		if n.HardLineBreak() || n.SoftLineBreak() {
			s += "\n"
		}
		return s

	case *ast.String:
		return string(n.Value)

	case *ast.Emphasis:
		inner := m.inlineChildren(n)
		if n.Level >= 2 {
			return m.theme.Bold.Sprint(inner)
		}
		return m.theme.Italic.Sprint(inner)

	case *ast.CodeSpan:
		return m.theme.Code.Sprint(m.inlineChildren(n))

	case *ast.Link:
		label := m.inlineChildren(n)
		dest := string(n.Destination)
		if label == "" || label == dest {
			return m.theme.Link.Sprint(dest)
		}
		return label + " (" + m.theme.Link.Sprint(dest) + ")"

	case *ast.AutoLink:
		return m.theme.Link.Sprint(string(n.URL(m.src)))

	case *ast.Image:
		return m.inlineChildren(n)

	case *ast.RawHTML:
		return ""

	default:
		return m.inlineChildren(n)
	}
}
