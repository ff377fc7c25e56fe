// Package format renders the message markup dialect into structured blocks,
// safe HTML, and styled terminal text.
//
// Parsing is line oriented. A fence line (```) toggles a code block whose
// lines are kept verbatim. A line starting with ">>>" opens a blockquote that
// absorbs every remaining line. "> " quotes a single line, "-"/"*" bullets
// accumulate into one list, "#".."###" are headings, "-# " is subtext, and
// everything else is a paragraph. Empty lines are kept as empty blocks.
//
// Inline spans are resolved by fixed-order substitution, not a grammar, so
// overlapping markers such as "**a _b** c_" render by precedence only.
package format

import (
	"regexp"
	"strings"
)

// BlockKind identifies a block node.
type BlockKind string

const (
	BlockParagraph BlockKind = "paragraph"
	BlockHeading   BlockKind = "heading"
	BlockList      BlockKind = "list"
	BlockQuote     BlockKind = "blockquote"
	BlockCode      BlockKind = "code"
	BlockSubtext   BlockKind = "subtext"
	BlockEmpty     BlockKind = "empty"
)

// Block is one block node. Lines hold raw (unescaped) text; renderers apply
// the inline pass to every kind except code.
type Block struct {
	Kind BlockKind `json:"kind"`
	// Level is the heading level (1-3).
	Level int `json:"level,omitempty"`
	// Lang is the fence info string of a code block.
	Lang  string   `json:"lang,omitempty"`
	Lines []string `json:"lines"`
}

// Document is the parsed block tree for one message body.
type Document struct {
	Blocks []Block `json:"blocks"`
}

var (
	bulletRe  = regexp.MustCompile(`^\s*[-*]\s+(.*)$`)
	headingRe = regexp.MustCompile(`^(#{1,3}) (.*)$`)
)

// Parse splits text into blocks.
func Parse(text string) Document {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var doc Document
	var list *Block
	var code *Block

	flushList := func() {
		if list != nil {
			doc.Blocks = append(doc.Blocks, *list)
			list = nil
		}
	}

	for i, line := range lines {
		if code != nil {
			if isFence(line) {
				doc.Blocks = append(doc.Blocks, *code)
				code = nil
				continue
			}
			code.Lines = append(code.Lines, line)
			continue
		}

		if lang, ok := parseFence(line); ok {
			flushList()
			code = &Block{Kind: BlockCode, Lang: lang, Lines: []string{}}
			continue
		}

		if strings.HasPrefix(line, ">>>") {
			flushList()
			first := strings.TrimPrefix(strings.TrimPrefix(line, ">>>"), " ")
			quoted := append([]string{first}, lines[i+1:]...)
			doc.Blocks = append(doc.Blocks, Block{Kind: BlockQuote, Lines: quoted})
			return doc
		}

		if match := bulletRe.FindStringSubmatch(line); match != nil {
			if list == nil {
				list = &Block{Kind: BlockList}
			}
			list.Lines = append(list.Lines, match[1])
			continue
		}
		flushList()

		switch {
		case strings.HasPrefix(line, "> "):
			doc.Blocks = append(doc.Blocks, Block{Kind: BlockQuote, Lines: []string{line[2:]}})
		case strings.HasPrefix(line, "-# "):
			doc.Blocks = append(doc.Blocks, Block{Kind: BlockSubtext, Lines: []string{line[3:]}})
		case headingRe.MatchString(line):
			match := headingRe.FindStringSubmatch(line)
			doc.Blocks = append(doc.Blocks, Block{Kind: BlockHeading, Level: len(match[1]), Lines: []string{match[2]}})
		case strings.TrimSpace(line) == "":
			doc.Blocks = append(doc.Blocks, Block{Kind: BlockEmpty})
		default:
			doc.Blocks = append(doc.Blocks, Block{Kind: BlockParagraph, Lines: []string{line}})
		}
	}

	if code != nil {
		doc.Blocks = append(doc.Blocks, *code)
	}
	flushList()
	return doc
}

// parseFence reports whether line opens a code fence and returns its language.
func parseFence(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "```") {
		return "", false
	}
	rest := strings.TrimSpace(strings.TrimLeft(trimmed, "`"))
	if rest == "" {
		return "", true
	}
	return strings.Fields(rest)[0], true
}

func isFence(line string) bool {
	_, ok := parseFence(line)
	return ok
}
