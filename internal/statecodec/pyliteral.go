package statecodec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// parsePyLiteral parses the literal subset that appears in legacy metadata:
// dicts, lists, tuples, quoted strings, numbers, True, False and None.
// Numbers decode as float64 to match what encoding/json produces; dict keys
// are stringified.
func parsePyLiteral(s string) (any, error) {
	p := &pyParser{src: s}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("trailing data at offset %d", p.pos)
	}
	return v, nil
}

var errUnexpectedEnd = errors.New("unexpected end of literal")

type pyParser struct {
	src string
	pos int
}

func (p *pyParser) skipSpace() {
	for p.pos < len(p.src) && strings.ContainsRune(" \t\r\n", rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *pyParser) peek() (byte, bool) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *pyParser) value() (any, error) {
	c, ok := p.peek()
	if !ok {
		return nil, errUnexpectedEnd
	}

	switch {
	case c == '{':
		return p.dict()
	case c == '[':
		return p.sequence('[', ']')
	case c == '(':
		return p.sequence('(', ')')
	case c == '\'' || c == '"':
		return p.str()
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return p.keyword()
	}
}

func (p *pyParser) dict() (map[string]any, error) {
	p.pos++ // {
	out := map[string]any{}

	for {
		c, ok := p.peek()
		if !ok {
			return nil, errUnexpectedEnd
		}
		if c == '}' {
			p.pos++
			return out, nil
		}

		key, err := p.value()
		if err != nil {
			return nil, err
		}
		if c, ok := p.peek(); !ok || c != ':' {
			return nil, fmt.Errorf("expected ':' at offset %d", p.pos)
		}
		p.pos++

		val, err := p.value()
		if err != nil {
			return nil, err
		}
		out[keyString(key)] = val

		c, ok = p.peek()
		if !ok {
			return nil, errUnexpectedEnd
		}
		switch c {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, fmt.Errorf("expected ',' or '}' at offset %d", p.pos)
		}
	}
}

func (p *pyParser) sequence(open, close byte) ([]any, error) {
	p.pos++ // open
	out := []any{}

	for {
		c, ok := p.peek()
		if !ok {
			return nil, errUnexpectedEnd
		}
		if c == close {
			p.pos++
			return out, nil
		}

		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)

		c, ok = p.peek()
		if !ok {
			return nil, errUnexpectedEnd
		}
		switch c {
		case ',':
			p.pos++
		case close:
		default:
			return nil, fmt.Errorf("expected ',' or '%c' at offset %d", close, p.pos)
		}
	}
}

func (p *pyParser) str() (string, error) {
	quote := p.src[p.pos]
	p.pos++

	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\\':
			if err := p.escape(&b); err != nil {
				return "", err
			}
		default:
			r, size := utf8.DecodeRuneInString(p.src[p.pos:])
			b.WriteRune(r)
			p.pos += size
		}
	}
	return "", errUnexpectedEnd
}

func (p *pyParser) escape(b *strings.Builder) error {
	p.pos++ // backslash
	if p.pos >= len(p.src) {
		return errUnexpectedEnd
	}
	c := p.src[p.pos]
	p.pos++

	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case '\\', '\'', '"':
		b.WriteByte(c)
	case 'x':
		return p.hexRune(b, 2)
	case 'u':
		return p.hexRune(b, 4)
	case 'U':
		return p.hexRune(b, 8)
	default:
		b.WriteByte('\\')
		b.WriteByte(c)
	}
	return nil
}

func (p *pyParser) hexRune(b *strings.Builder, digits int) error {
	if p.pos+digits > len(p.src) {
		return errUnexpectedEnd
	}
	n, err := strconv.ParseUint(p.src[p.pos:p.pos+digits], 16, 32)
	if err != nil {
		return fmt.Errorf("invalid escape at offset %d: %w", p.pos, err)
	}
	p.pos += digits
	b.WriteRune(rune(n))
	return nil
}

func (p *pyParser) number() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) && strings.IndexByte("+-.0123456789eE_", p.src[p.pos]) >= 0 {
		p.pos++
	}
	text := strings.ReplaceAll(p.src[start:p.pos], "_", "")
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", text)
	}
	return f, nil
}

func (p *pyParser) keyword() (any, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			break
		}
		p.pos++
	}

	switch word := p.src[start:p.pos]; word {
	case "True":
		return true, nil
	case "False":
		return false, nil
	case "None":
		return nil, nil
	case "":
		return nil, fmt.Errorf("unexpected %q at offset %d", p.src[start], start)
	default:
		// nan, inf and calls are not literals
		return nil, fmt.Errorf("unsupported name %q", word)
	}
}

func keyString(k any) string {
	switch v := k.(type) {
	case string:
		return v
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
