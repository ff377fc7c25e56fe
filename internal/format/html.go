package format

import (
	"fmt"
	"html"
	"strings"
)

// HTMLMarkup renders inline spans as HTML elements.
type HTMLMarkup struct{}

func (HTMLMarkup) Escape(text string) string { return html.EscapeString(text) }

func (HTMLMarkup) Link(text, url string) string {
	return fmt.Sprintf(`<a href="%s" rel="noopener noreferrer">%s</a>`, url, text)
}

func (HTMLMarkup) Code(text string) string       { return "<code>" + text + "</code>" }
func (HTMLMarkup) BoldItalic(text string) string { return "<strong><em>" + text + "</em></strong>" }
func (HTMLMarkup) Bold(text string) string       { return "<strong>" + text + "</strong>" }
func (HTMLMarkup) Underline(text string) string  { return "<u>" + text + "</u>" }
func (HTMLMarkup) Italic(text string) string     { return "<em>" + text + "</em>" }
func (HTMLMarkup) Strike(text string) string     { return "<s>" + text + "</s>" }
func (HTMLMarkup) Spoiler(text string) string    { return `<span class="spoiler">` + text + "</span>" }

// HTMLOptions controls HTML rendering.
type HTMLOptions struct {
	// Highlight enables chroma syntax highlighting for fences that name a
	// language.
	Highlight bool
}

// HTML parses text and renders it as safe HTML.
func HTML(text string) string {
	return RenderHTML(Parse(text), HTMLOptions{})
}

// RenderHTML renders a parsed document as HTML.
func RenderHTML(doc Document, opts HTMLOptions) string {
	var m HTMLMarkup
	parts := make([]string, 0, len(doc.Blocks))
	for _, block := range doc.Blocks {
		parts = append(parts, renderHTMLBlock(block, m, opts))
	}
	return strings.Join(parts, "\n")
}

func renderHTMLBlock(block Block, m HTMLMarkup, opts HTMLOptions) string {
	switch block.Kind {
	case BlockCode:
		code := strings.Join(block.Lines, "\n")
		if opts.Highlight && block.Lang != "" {
			if highlighted, ok := highlightHTML(code, block.Lang); ok {
				return highlighted
			}
		}
		class := ""
		if block.Lang != "" {
			class = fmt.Sprintf(` class="language-%s"`, html.EscapeString(block.Lang))
		}
		return fmt.Sprintf("<pre><code%s>%s</code></pre>", class, html.EscapeString(code))
	case BlockHeading:
		return fmt.Sprintf("<h%d>%s</h%d>", block.Level, Inline(block.Lines[0], m), block.Level)
	case BlockList:
		var b strings.Builder
		b.WriteString("<ul>")
		for _, item := range block.Lines {
			b.WriteString("<li>" + Inline(item, m) + "</li>")
		}
		b.WriteString("</ul>")
		return b.String()
	case BlockQuote:
		lines := make([]string, len(block.Lines))
		for i, line := range block.Lines {
			lines[i] = Inline(line, m)
		}
		return "<blockquote>" + strings.Join(lines, "<br>") + "</blockquote>"
	case BlockSubtext:
		return `<small class="subtext">` + Inline(block.Lines[0], m) + "</small>"
	case BlockEmpty:
		return "<br>"
	default:
		return "<p>" + Inline(block.Lines[0], m) + "</p>"
	}
}
