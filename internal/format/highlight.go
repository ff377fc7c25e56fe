package format

import (
	"bytes"
	"os"
	"strings"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/formatters"
	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
)

const chromaStyleName = "dracula"

// highlightHTML renders code with CSS classes. Chroma escapes token text.
func highlightHTML(code, lang string) (string, bool) {
	lexer := resolveLexer(code, lang)
	if lexer == nil {
		return "", false
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", false
	}
	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.Format(&buf, chromaStyle(), iterator); err != nil {
		return "", false
	}
	return strings.TrimSuffix(buf.String(), "\n"), true
}

func highlightTerminal(code, lang string) string {
	if code == "" || os.Getenv("NO_COLOR") != "" {
		return code
	}
	lexer := resolveLexer(code, lang)
	if lexer == nil {
		lexer = chroma.Coalesce(lexers.Fallback)
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf bytes.Buffer
	if err := formatters.TTY256.Format(&buf, chromaStyle(), iterator); err != nil {
		return code
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func chromaStyle() *chroma.Style {
	style := styles.Get(chromaStyleName)
	if style == nil {
		style = styles.Fallback
	}
	return style
}

// resolveLexer returns nil when lang names no known lexer.
func resolveLexer(code, lang string) chroma.Lexer {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		if lexer := lexers.Analyse(code); lexer != nil {
			return chroma.Coalesce(lexer)
		}
		return nil
	}
	lexer := lexers.Get(lang)
	if lexer == nil {
		return nil
	}
	return chroma.Coalesce(lexer)
}
