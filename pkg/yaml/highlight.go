package yaml

import (
	"fmt"
	"io"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/muesli/termenv"
)

// DefaultStyle is the chroma style used when none is configured.
const DefaultStyle = "dracula"

// Highlighter writes syntax-highlighted YAML.
type Highlighter struct {
	lexer     chroma.Lexer
	formatter chroma.Formatter
	style     *chroma.Style
}

// HighlightOpt configures a [Highlighter].
type HighlightOpt func(h *Highlighter)

// WithStyle selects a chroma style by name. Unknown names fall back to
// chroma's default style.
func WithStyle(name string) HighlightOpt {
	return func(h *Highlighter) {
		h.style = styles.Get(name)
	}
}

// WithProfile overrides the detected terminal color profile.
func WithProfile(p termenv.Profile) HighlightOpt {
	return func(h *Highlighter) {
		h.formatter = formatterFor(p)
	}
}

// NewHighlighter creates a [Highlighter] for output written to w. The color
// profile is detected from w, so anything that is not a terminal (or has
// NO_COLOR set) gets plain text.
func NewHighlighter(w io.Writer, opts ...HighlightOpt) *Highlighter {
	h := &Highlighter{
		lexer:     chroma.Coalesce(lexers.Get("YAML")),
		formatter: formatterFor(termenv.NewOutput(w).EnvColorProfile()),
		style:     styles.Get(DefaultStyle),
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Highlight writes src to w.
func (h *Highlighter) Highlight(w io.Writer, src []byte) error {
	it, err := h.lexer.Tokenise(nil, string(src))
	if err != nil {
		return fmt.Errorf("lexer tokenize: %w", err)
	}

	err = h.formatter.Format(w, h.style, it)
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}

	return nil
}

func formatterFor(p termenv.Profile) chroma.Formatter {
	name := "noop"

	switch p {
	case termenv.TrueColor:
		name = "terminal16m"

	case termenv.ANSI256:
		name = "terminal256"

	case termenv.ANSI:
		name = "terminal8"

	case termenv.Ascii:
	}

	return formatters.Get(name)
}
