package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

func ParseFormat(v string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(v))) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatText:
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown output format %q (want json|text)", v)
}

// Texter is implemented by values with a human readable rendering. Values
// without one are printed as JSON in text mode too.
type Texter interface {
	WriteText(w io.Writer) error
}

func Write(w io.Writer, format Format, v any) error {
	if format == FormatText {
		if t, ok := v.(Texter); ok {
			return t.WriteText(w)
		}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
