package format

import (
	"regexp"
	"strconv"
	"strings"
)

// Markup produces the output fragments for inline spans. Escape is applied
// to the whole line before any other method is called.
type Markup interface {
	Escape(text string) string
	Link(text, url string) string
	Code(text string) string
	BoldItalic(text string) string
	Bold(text string) string
	Underline(text string) string
	Italic(text string) string
	Strike(text string) string
	Spoiler(text string) string
}

const placeholderMark = "\x00"

var (
	linkRe        = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)
	codeSpanRe    = regexp.MustCompile("`([^`]+)`")
	boldItalicRe  = regexp.MustCompile(`\*\*\*(.+?)\*\*\*`)
	boldRe        = regexp.MustCompile(`\*\*(.+?)\*\*`)
	underlineRe   = regexp.MustCompile(`\b__(.+?)__\b`)
	italicStarRe  = regexp.MustCompile(`\*(.+?)\*`)
	italicUnderRe = regexp.MustCompile(`\b_(.+?)_\b`)
	strikeRe      = regexp.MustCompile(`~~(.+?)~~`)
	spoilerRe     = regexp.MustCompile(`\|\|(.+?)\|\|`)
	placeholderRe = regexp.MustCompile(placeholderMark + `(\d+)` + placeholderMark)
)

// Inline runs the inline pass over one line of text.
func Inline(line string, m Markup) string {
	// NUL is reserved for placeholders; input must not be able to forge one.
	line = strings.ReplaceAll(line, placeholderMark, "")
	out := m.Escape(line)

	var protected []string
	protect := func(value string) string {
		protected = append(protected, value)
		return placeholderMark + strconv.Itoa(len(protected)-1) + placeholderMark
	}

	out = replaceGroups(linkRe, out, func(groups []string) string {
		return m.Link(groups[1], protect(groups[2]))
	})
	out = replaceGroups(codeSpanRe, out, func(groups []string) string {
		return protect(m.Code(groups[1]))
	})
	out = replaceGroups(boldItalicRe, out, func(groups []string) string { return m.BoldItalic(groups[1]) })
	out = replaceGroups(boldRe, out, func(groups []string) string { return m.Bold(groups[1]) })
	out = replaceGroups(underlineRe, out, func(groups []string) string { return m.Underline(groups[1]) })
	out = replaceGroups(italicStarRe, out, func(groups []string) string { return m.Italic(groups[1]) })
	out = replaceGroups(italicUnderRe, out, func(groups []string) string { return m.Italic(groups[1]) })
	out = replaceGroups(strikeRe, out, func(groups []string) string { return m.Strike(groups[1]) })
	out = replaceGroups(spoilerRe, out, func(groups []string) string { return m.Spoiler(groups[1]) })

	// Later placeholders may wrap earlier ones (a link inside a code span),
	// so restore newest first until none remain.
	for i := len(protected) - 1; i >= 0; i-- {
		out = strings.ReplaceAll(out, placeholderMark+strconv.Itoa(i)+placeholderMark, protected[i])
	}
	return placeholderRe.ReplaceAllString(out, "")
}

func replaceGroups(re *regexp.Regexp, s string, fn func(groups []string) string) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	cursor := 0
	for _, match := range matches {
		b.WriteString(s[cursor:match[0]])
		groups := make([]string, len(match)/2)
		for g := range groups {
			if match[2*g] >= 0 {
				groups[g] = s[match[2*g]:match[2*g+1]]
			}
		}
		b.WriteString(fn(groups))
		cursor = match[1]
	}
	b.WriteString(s[cursor:])
	return b.String()
}
