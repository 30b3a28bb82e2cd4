package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor parses markdown with goldmark and emits one ContentBlock
// per heading section. The heading hierarchy is recorded in the locator
// ("# H1 > ## H2") and tables are rendered as pipe-markup.
type MarkdownExtractor struct {
	parser goldmark.Markdown
}

func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

func (e *MarkdownExtractor) Extract(ctx context.Context, path string) ([]ContentBlock, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, nil
	}

	reader := text.NewReader(content)
	doc := e.parser.Parser().Parse(reader)

	return e.walkSections(doc, content), nil
}

type headingInfo struct {
	level int
	text  string
}

func (e *MarkdownExtractor) walkSections(doc ast.Node, content []byte) []ContentBlock {
	var blocks []ContentBlock
	var cur *ContentBlock
	var headingStack []headingInfo
	var tableLines []string

	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.TrimSpace(cur.Text)
		cur.TableMarkup = strings.Join(tableLines, "\n")
		tableLines = tableLines[:0]
		if cur.Text != "" || cur.TableMarkup != "" {
			blocks = append(blocks, *cur)
		}
		cur = nil
	}

	ensure := func() *ContentBlock {
		if cur == nil {
			cur = &ContentBlock{
				Locator:          Locator{Section: headingPath(headingStack)},
				NativeConfidence: 1.0,
			}
		}
		return cur
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			flush()
			level := node.Level
			for len(headingStack) > 0 && headingStack[len(headingStack)-1].level >= level {
				headingStack = headingStack[:len(headingStack)-1]
			}
			headingStack = append(headingStack, headingInfo{
				level: level,
				text:  nodeText(node, content),
			})
			ensure()
			return ast.WalkSkipChildren, nil

		case *ast.Text:
			b := ensure()
			b.Text += string(node.Segment.Value(content))
			return ast.WalkContinue, nil

		case *ast.String:
			b := ensure()
			b.Text += string(node.Value)
			return ast.WalkContinue, nil

		case *ast.CodeBlock, *ast.FencedCodeBlock:
			b := ensure()
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				b.Text += string(line.Value(content))
			}
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph, *ast.List, *ast.ListItem:
			if cur != nil && cur.Text != "" && !strings.HasSuffix(cur.Text, "\n") {
				cur.Text += "\n"
			}
			return ast.WalkContinue, nil

		default:
			kindName := n.Kind().String()
			if strings.Contains(kindName, "TableRow") || strings.Contains(kindName, "TableHeader") {
				ensure()
				tableLines = append(tableLines, tableRowText(n, content))
				return ast.WalkSkipChildren, nil
			}
			return ast.WalkContinue, nil
		}
	})

	flush()
	return blocks
}

// headingPath renders the heading stack as "# H1 > ## H2 > ### H3".
func headingPath(stack []headingInfo) string {
	if len(stack) == 0 {
		return ""
	}
	parts := make([]string, len(stack))
	for i, h := range stack {
		parts[i] = fmt.Sprintf("%s %s", strings.Repeat("#", h.level), h.text)
	}
	return strings.Join(parts, " > ")
}

func nodeText(n ast.Node, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func tableRowText(row ast.Node, content []byte) string {
	var b strings.Builder
	cells := 0
	_ = ast.Walk(row, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if strings.Contains(node.Kind().String(), "TableCell") {
			if cells > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(nodeText(node, content))
			cells++
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
