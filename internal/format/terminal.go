package format

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	codeColor    = lipgloss.Color("213")
	linkColor    = lipgloss.Color("75")
	quoteColor   = lipgloss.Color("245")
	subtextColor = lipgloss.Color("242")
)

// TerminalMarkup renders inline spans with lipgloss styles.
type TerminalMarkup struct{}

// Escape drops raw escape and control bytes so message content cannot
// drive the terminal.
func (TerminalMarkup) Escape(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r < 0xa0) {
			return -1
		}
		return r
	}, text)
}

func (TerminalMarkup) Link(text, url string) string {
	return lipgloss.NewStyle().Foreground(linkColor).Underline(true).Render(text) + " (" + url + ")"
}

func (TerminalMarkup) Code(text string) string {
	return lipgloss.NewStyle().Foreground(codeColor).Render(text)
}

func (TerminalMarkup) BoldItalic(text string) string {
	return lipgloss.NewStyle().Bold(true).Italic(true).Render(text)
}

func (TerminalMarkup) Bold(text string) string {
	return lipgloss.NewStyle().Bold(true).Render(text)
}

func (TerminalMarkup) Underline(text string) string {
	return lipgloss.NewStyle().Underline(true).Render(text)
}

func (TerminalMarkup) Italic(text string) string {
	return lipgloss.NewStyle().Italic(true).Render(text)
}

func (TerminalMarkup) Strike(text string) string {
	return lipgloss.NewStyle().Strikethrough(true).Render(text)
}

func (TerminalMarkup) Spoiler(text string) string {
	return lipgloss.NewStyle().Reverse(true).Render(text)
}

// Terminal parses text and renders it for a terminal.
func Terminal(text string) string {
	return RenderTerminal(Parse(text))
}

// RenderTerminal renders a parsed document with ANSI styling.
func RenderTerminal(doc Document) string {
	var m TerminalMarkup
	quoteStyle := lipgloss.NewStyle().
		BorderLeft(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(quoteColor).
		PaddingLeft(1)

	out := make([]string, 0, len(doc.Blocks))
	for _, block := range doc.Blocks {
		switch block.Kind {
		case BlockCode:
			code := m.Escape(strings.Join(block.Lines, "\n"))
			out = append(out, highlightTerminal(code, block.Lang))
		case BlockHeading:
			style := lipgloss.NewStyle().Bold(true)
			switch block.Level {
			case 1:
				style = style.Underline(true)
			case 3:
				style = style.Faint(true)
			}
			out = append(out, style.Render(Inline(block.Lines[0], m)))
		case BlockList:
			for _, item := range block.Lines {
				out = append(out, "• "+Inline(item, m))
			}
		case BlockQuote:
			lines := make([]string, len(block.Lines))
			for i, line := range block.Lines {
				lines[i] = Inline(line, m)
			}
			out = append(out, quoteStyle.Render(strings.Join(lines, "\n")))
		case BlockSubtext:
			out = append(out, lipgloss.NewStyle().Foreground(subtextColor).Faint(true).Render(Inline(block.Lines[0], m)))
		case BlockEmpty:
			out = append(out, "")
		default:
			out = append(out, Inline(block.Lines[0], m))
		}
	}
	return strings.Join(out, "\n")
}
