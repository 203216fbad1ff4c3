package patch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrNotObject is returned when a module does not export an object literal.
var ErrNotObject = errors.New("module does not export an object literal")

// SyntaxError reports where parsing stopped.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d col %d: %s", e.Line, e.Col, e.Msg)
}

// Parse reads a generated module or a JSON document and returns its top-level
// object. Leading `export default` or `module.exports =` and a trailing
// semicolon are accepted, as are comments, trailing commas and keys written
// bare, single-quoted or double-quoted.
func Parse(src []byte) (*Object, error) {
	p := &parser{src: string(src), line: 1, col: 1}
	p.skipSpace()
	p.skipExportPrefix()

	p.skipSpace()
	if p.peek() != '{' {
		if p.eof() {
			return nil, ErrNotObject
		}
		return nil, fmt.Errorf("%w: %v", ErrNotObject, p.errorf("unexpected %q", p.peek()))
	}
	v, err := p.parseValue(0)
	if err != nil {
		return nil, err
	}
	obj := v.(*Object)

	p.skipSpace()
	if p.peek() == ';' {
		p.next()
		p.skipSpace()
	}
	if !p.eof() {
		return nil, p.errorf("unexpected %q after top-level object", p.peek())
	}
	return obj, nil
}

const maxDepth = 64

type parser struct {
	src  string
	pos  int
	line int
	col  int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() rune {
	if p.eof() {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(p.src[p.pos:])
	return r
}

func (p *parser) next() rune {
	r, size := utf8.DecodeRuneInString(p.src[p.pos:])
	p.pos += size
	if r == '\n' {
		p.line++
		p.col = 1
	} else {
		p.col++
	}
	return r
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.line, Col: p.col, Msg: fmt.Sprintf(format, args...)}
}

// skipSpace skips whitespace and both comment forms.
func (p *parser) skipSpace() {
	for !p.eof() {
		r := p.peek()
		switch {
		case unicode.IsSpace(r) || r == '\uFEFF':
			p.next()
		case strings.HasPrefix(p.src[p.pos:], "//"):
			for !p.eof() && p.peek() != '\n' {
				p.next()
			}
		case strings.HasPrefix(p.src[p.pos:], "/*"):
			end := strings.Index(p.src[p.pos+2:], "*/")
			stop := len(p.src)
			if end >= 0 {
				stop = p.pos + 2 + end + 2
			}
			for p.pos < stop {
				p.next()
			}
		default:
			return
		}
	}
}

func (p *parser) skipExportPrefix() {
	rest := p.src[p.pos:]
	switch {
	case strings.HasPrefix(rest, "export"):
		save := *p
		p.consumeWord()
		p.skipSpace()
		if p.consumeWord() != "default" {
			*p = save
		}
	case strings.HasPrefix(rest, "module.exports"):
		for range "module.exports" {
			p.next()
		}
		p.skipSpace()
		if p.peek() == '=' {
			p.next()
		}
	}
}

func (p *parser) consumeWord() string {
	start := p.pos
	for !p.eof() && isIdentPart(p.peek()) {
		p.next()
	}
	return p.src[start:p.pos]
}

func (p *parser) parseValue(depth int) (Value, error) {
	if depth > maxDepth {
		return nil, p.errorf("nesting deeper than %d", maxDepth)
	}
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("unexpected end of input")
	}
	r := p.peek()
	switch {
	case r == '{':
		return p.parseObject(depth)
	case r == '[':
		return p.parseArray(depth)
	case r == '\'' || r == '"' || r == '`':
		s, err := p.parseString()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case r == '-' || r == '+' || r == '.' || (r >= '0' && r <= '9'):
		return p.parseNumber()
	case isIdentStart(r):
		return p.parseWord(), nil
	}
	return nil, p.errorf("unexpected %q", r)
}

func (p *parser) parseObject(depth int) (Value, error) {
	p.next() // {
	obj := NewObject()
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("unterminated object")
		}
		if p.peek() == '}' {
			p.next()
			return obj, nil
		}

		key, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ':' {
			return nil, p.errorf("expected ':' after key %q", key)
		}
		p.next()

		v, err := p.parseValue(depth + 1)
		if err != nil {
			return nil, err
		}
		obj.Set(key, v)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.next()
		case '}':
		default:
			if p.eof() {
				return nil, p.errorf("unterminated object")
			}
			return nil, p.errorf("expected ',' or '}' after value of %q", key)
		}
	}
}

func (p *parser) parseKey() (string, error) {
	r := p.peek()
	switch {
	case r == '\'' || r == '"':
		return p.parseString()
	case r >= '0' && r <= '9':
		start := p.pos
		for !p.eof() && (unicode.IsDigit(p.peek()) || p.peek() == '.') {
			p.next()
		}
		return p.src[start:p.pos], nil
	case isIdentStart(r):
		return p.consumeWord(), nil
	}
	return "", p.errorf("expected key, found %q", r)
}

func (p *parser) parseArray(depth int) (Value, error) {
	p.next() // [
	arr := Array{}
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("unterminated array")
		}
		if p.peek() == ']' {
			p.next()
			return arr, nil
		}
		v, err := p.parseValue(depth + 1)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.next()
		case ']':
		default:
			if p.eof() {
				return nil, p.errorf("unterminated array")
			}
			return nil, p.errorf("expected ',' or ']' in array")
		}
	}
}

func (p *parser) parseString() (string, error) {
	quote := p.next()
	var b strings.Builder
	for {
		if p.eof() {
			return "", p.errorf("unterminated string")
		}
		r := p.next()
		switch {
		case r == quote:
			return b.String(), nil
		case r == '\n' && quote != '`':
			return "", p.errorf("newline in string")
		case r == '\\':
			if p.eof() {
				return "", p.errorf("unterminated string")
			}
			if err := p.parseEscape(&b); err != nil {
				return "", err
			}
		default:
			b.WriteRune(r)
		}
	}
}

func (p *parser) parseEscape(b *strings.Builder) error {
	r := p.next()
	switch r {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'v':
		b.WriteByte('\v')
	case '0':
		b.WriteByte(0)
	case '\n':
		// line continuation
	case 'u':
		if p.pos+4 > len(p.src) {
			return p.errorf("short unicode escape")
		}
		n, err := strconv.ParseUint(p.src[p.pos:p.pos+4], 16, 32)
		if err != nil {
			return p.errorf("invalid unicode escape")
		}
		for i := 0; i < 4; i++ {
			p.next()
		}
		b.WriteRune(rune(n))
	case 'x':
		if p.pos+2 > len(p.src) {
			return p.errorf("short hex escape")
		}
		n, err := strconv.ParseUint(p.src[p.pos:p.pos+2], 16, 8)
		if err != nil {
			return p.errorf("invalid hex escape")
		}
		p.next()
		p.next()
		b.WriteRune(rune(n))
	default:
		b.WriteRune(r)
	}
	return nil
}

func (p *parser) parseNumber() (Value, error) {
	start := p.pos
	if r := p.peek(); r == '-' || r == '+' {
		p.next()
	}
	for !p.eof() {
		r := p.peek()
		if (r >= '0' && r <= '9') || r == '.' || r == 'e' || r == 'E' ||
			((r == '-' || r == '+') && (p.src[p.pos-1] == 'e' || p.src[p.pos-1] == 'E')) {
			p.next()
			continue
		}
		break
	}
	text := strings.TrimPrefix(p.src[start:p.pos], "+")
	if _, err := strconv.ParseFloat(text, 64); err != nil {
		return nil, p.errorf("invalid number %q", text)
	}
	return Number(text), nil
}

// parseWord reads a keyword or an identifier expression such as
// process.env.BASE_URL.
func (p *parser) parseWord() Value {
	start := p.pos
	for !p.eof() && (isIdentPart(p.peek()) || p.peek() == '.') {
		p.next()
	}
	word := p.src[start:p.pos]
	switch word {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	case "null":
		return Null{}
	}
	return Raw(word)
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
