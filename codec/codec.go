// Package codec encodes raycast reports and statistics snapshots.
//
// Reports record the codec name so that tooling reading them back can pick
// the matching decoder with ByName.
package codec

import (
	"fmt"
	"io"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Indented returns the named codec configured to pretty-print with indent.
func Indented(name, indent string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{Indent: indent}, true
	case "go-json":
		return GoJSON{Indent: indent}, true
	default:
		return nil, false
	}
}

// Names lists the built-in codec names.
func Names() []string { return []string{"json", "go-json"} }

// Write marshals v with c and writes it to w followed by a newline.
// A nil codec selects Default.
func Write(w io.Writer, c Codec, v any) error {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		return fmt.Errorf("codec %s: marshal: %w", c.Name(), err)
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("codec %s: write: %w", c.Name(), err)
	}
	return nil
}
