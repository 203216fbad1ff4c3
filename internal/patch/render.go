package patch

import (
	"bytes"
	"strings"
)

// Style controls how a document is serialised.
type Style struct {
	// Prefix is written before the top-level object.
	Prefix string
	// Indent is repeated once per nesting level.
	Indent string
	// Quote is the string and quoted-key delimiter.
	Quote byte
	// QuoteKeys forces every key to be quoted. Otherwise only top-level keys
	// and keys that are not identifiers are quoted.
	QuoteKeys bool
}

var (
	// ModuleStyle renders a generated configuration module.
	ModuleStyle = Style{Prefix: "export default ", Indent: "  ", Quote: '\''}
	// JSONStyle renders plain JSON, used for the package manifest.
	JSONStyle = Style{Indent: "  ", Quote: '"', QuoteKeys: true}
)

// Render serialises obj canonically in the given style. The output ends with
// a newline.
func Render(obj *Object, st Style) []byte {
	var buf bytes.Buffer
	buf.WriteString(st.Prefix)
	r := renderer{buf: &buf, st: st}
	r.object(obj, 0)
	buf.WriteByte('\n')
	return buf.Bytes()
}

type renderer struct {
	buf *bytes.Buffer
	st  Style
}

func (r *renderer) value(v Value, depth int) {
	switch v := v.(type) {
	case *Object:
		r.object(v, depth)
	case Array:
		r.array(v, depth)
	case String:
		r.quoted(string(v))
	case Number:
		r.buf.WriteString(string(v))
	case Bool:
		if v {
			r.buf.WriteString("true")
		} else {
			r.buf.WriteString("false")
		}
	case Null, nil:
		r.buf.WriteString("null")
	case Raw:
		if r.st.Quote == '"' {
			r.quoted(string(v))
		} else {
			r.buf.WriteString(string(v))
		}
	}
}

func (r *renderer) object(o *Object, depth int) {
	if o == nil || o.Len() == 0 {
		r.buf.WriteString("{}")
		return
	}
	r.buf.WriteString("{\n")
	for i, k := range o.keys {
		r.indent(depth + 1)
		if r.st.QuoteKeys || depth == 0 || !isIdentifier(k) {
			r.quoted(k)
		} else {
			r.buf.WriteString(k)
		}
		r.buf.WriteString(": ")
		r.value(o.values[k], depth+1)
		if i < len(o.keys)-1 {
			r.buf.WriteByte(',')
		}
		r.buf.WriteByte('\n')
	}
	r.indent(depth)
	r.buf.WriteByte('}')
}

func (r *renderer) array(a Array, depth int) {
	if len(a) == 0 {
		r.buf.WriteString("[]")
		return
	}
	if scalarArray(a) {
		r.buf.WriteByte('[')
		for i, v := range a {
			if i > 0 {
				r.buf.WriteString(", ")
			}
			r.value(v, depth)
		}
		r.buf.WriteByte(']')
		return
	}
	r.buf.WriteString("[\n")
	for i, v := range a {
		r.indent(depth + 1)
		r.value(v, depth+1)
		if i < len(a)-1 {
			r.buf.WriteByte(',')
		}
		r.buf.WriteByte('\n')
	}
	r.indent(depth)
	r.buf.WriteByte(']')
}

func (r *renderer) indent(depth int) {
	for i := 0; i < depth; i++ {
		r.buf.WriteString(r.st.Indent)
	}
}

func (r *renderer) quoted(s string) {
	q := r.st.Quote
	r.buf.WriteByte(q)
	for _, c := range s {
		switch {
		case c == rune(q) || c == '\\':
			r.buf.WriteByte('\\')
			r.buf.WriteRune(c)
		case c == '\n':
			r.buf.WriteString(`\n`)
		case c == '\r':
			r.buf.WriteString(`\r`)
		case c == '\t':
			r.buf.WriteString(`\t`)
		case c < 0x20:
			r.buf.WriteString(`\u00`)
			r.buf.WriteByte(hexDigits[c>>4])
			r.buf.WriteByte(hexDigits[c&0xf])
		default:
			r.buf.WriteRune(c)
		}
	}
	r.buf.WriteByte(q)
}

const hexDigits = "0123456789abcdef"

func scalarArray(a Array) bool {
	for _, v := range a {
		switch v.(type) {
		case *Object, Array:
			return false
		}
	}
	return true
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if i == 0 && !isIdentStart(c) {
			return false
		}
		if !isIdentPart(c) {
			return false
		}
	}
	return !reserved[s]
}

var reserved = func() map[string]bool {
	m := make(map[string]bool)
	for _, w := range strings.Fields(`break case catch class const continue debugger default delete do
		else export extends false finally for function if import in instanceof new null return super
		switch this throw true try typeof var void while with yield`) {
		m[w] = true
	}
	return m
}()
