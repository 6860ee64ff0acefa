package yaml

import (
	"fmt"
	"log/slog"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/printer"
	"github.com/goccy/go-yaml/token"
)

// NewPathBuilder returns an empty [yaml.PathBuilder].
func NewPathBuilder() *yaml.PathBuilder {
	return &yaml.PathBuilder{}
}

// Error is a YAML decode or validation error. It carries either the
// [*token.Token] where decoding failed or the [*yaml.Path] of the invalid
// value, and optionally the source document used to annotate the message.
type Error struct {
	Err    error
	Path   *yaml.Path
	Token  *token.Token
	Source []byte
	Color  bool
}

// WithSource returns a copy of e that annotates its message with src.
func (e *Error) WithSource(src []byte) *Error {
	out := *e
	out.Source = src

	return &out
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	if e.Err == nil {
		return ""
	}

	switch {
	case e.Token != nil:
		var p printer.Printer

		pos := e.Token.Position

		return fmt.Sprintf("[%d:%d] %v:\n%s", pos.Line, pos.Column, e.Err,
			p.PrintErrorToken(e.Token, e.Color))

	case e.Path != nil && len(e.Source) > 0:
		annotated, err := e.Path.AnnotateSource(e.Source, e.Color)
		if err != nil {
			slog.Debug("annotate yaml source",
				slog.String("path", e.Path.String()),
				slog.Any("err", err),
			)

			break
		}

		return fmt.Sprintf("error at %s: %v:\n%s", e.Path.String(), e.Err, annotated)
	}

	if e.Path != nil {
		return fmt.Sprintf("error at %s: %v", e.Path.String(), e.Err)
	}

	return e.Err.Error()
}
