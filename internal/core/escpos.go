package core

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	esc = 0x1B
	gs  = 0x1D
	lf  = 0x0A
)

type dialect struct {
	boldOn  []byte
	boldOff []byte
	align   func(n byte) []byte
	cut     []byte
}

var dialects = map[string]dialect{
	PrinterTypeEpson: {
		boldOn:  []byte{esc, 'E', 1},
		boldOff: []byte{esc, 'E', 0},
		align:   func(n byte) []byte { return []byte{esc, 'a', n} },
		cut:     []byte{gs, 'V', 'A', 3},
	},
	PrinterTypeStar: {
		boldOn:  []byte{esc, 'E'},
		boldOff: []byte{esc, 'F'},
		align:   func(n byte) []byte { return []byte{esc, gs, 'a', n} },
		cut:     []byte{esc, 'd', 3},
	},
}

var alignments = map[string]byte{
	"left":   0,
	"center": 1,
	"right":  2,
}

type Encoder struct {
	d     dialect
	width int
}

func NewEncoder(cfg PrinterConfig) (*Encoder, error) {
	d, ok := dialects[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported printer type %q", ErrMalformedJob, cfg.Type)
	}
	width := cfg.Width
	if width <= 0 {
		width = DefaultWidth
	}
	return &Encoder{d: d, width: width}, nil
}

// Encode renders commands into a single byte stream, starting with a printer
// reset.
func (e *Encoder) Encode(commands []Command) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write([]byte{esc, '@'})

	for i, cmd := range commands {
		if err := e.encodeCommand(&buf, cmd); err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
	}

	return buf.Bytes(), nil
}

func (e *Encoder) encodeCommand(buf *bytes.Buffer, cmd Command) error {
	switch cmd.Type {
	case CommandText:
		for _, line := range wrapText(cmd.Content, e.width) {
			buf.WriteString(line)
			buf.WriteByte(lf)
		}
	case CommandBold:
		on, err := boolValue(cmd.Value)
		if err != nil {
			return err
		}
		if on {
			buf.Write(e.d.boldOn)
		} else {
			buf.Write(e.d.boldOff)
		}
	case CommandAlign:
		name, _ := cmd.Value.(string)
		n, ok := alignments[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("%w: unknown alignment %v", ErrMalformedJob, cmd.Value)
		}
		buf.Write(e.d.align(n))
	case CommandNewline:
		lines, err := countValue(cmd.Value)
		if err != nil {
			return err
		}
		buf.Write(bytes.Repeat([]byte{lf}, lines))
	case CommandCut:
		buf.Write(e.d.cut)
	default:
		return fmt.Errorf("%w: unknown command type %q", ErrMalformedJob, cmd.Type)
	}
	return nil
}

func boolValue(v any) (bool, error) {
	switch b := v.(type) {
	case nil:
		return true, nil
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(b) {
		case "on", "true":
			return true, nil
		case "off", "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: invalid bold value %v", ErrMalformedJob, v)
}

func countValue(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 1, nil
	case float64:
		if n >= 1 && n <= 255 && n == float64(int(n)) {
			return int(n), nil
		}
	case int:
		if n >= 1 && n <= 255 {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: invalid newline count %v", ErrMalformedJob, v)
}

// wrapText splits content on newlines and hard-wraps each line at width runes.
func wrapText(content string, width int) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		runes := []rune(line)
		if len(runes) == 0 {
			lines = append(lines, "")
			continue
		}
		for len(runes) > width {
			lines = append(lines, string(runes[:width]))
			runes = runes[width:]
		}
		lines = append(lines, string(runes))
	}
	return lines
}
