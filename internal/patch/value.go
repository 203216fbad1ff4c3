// Package patch parses, merges and re-renders the generated configuration
// modules of a mini-app workspace and maintains the shared dispatcher module.
//
// Generated modules are JavaScript object literals (`export default {...}`).
// The parser is tolerant of the stylistic artifacts those files pick up when
// edited by hand: bare or quoted keys, comments and trailing commas. Rendering
// is canonical, so a parse/render cycle normalises formatting but never values.
package patch

import (
	"strconv"
)

// Value is one node of a parsed document.
type Value interface {
	isValue()
}

// Object is an object literal that keeps its keys in insertion order.
type Object struct {
	keys   []string
	values map[string]Value
}

// Array is an array literal.
type Array []Value

// String is a string literal.
type String string

// Number is a numeric literal, kept as written so that rendering does not
// change its formatting.
type Number string

// Bool is true or false.
type Bool bool

// Null is the null literal.
type Null struct{}

// Raw is an expression the parser does not interpret, e.g. process.env.API.
// It is rendered back verbatim.
type Raw string

func (*Object) isValue() {}
func (Array) isValue()   {}
func (String) isValue()  {}
func (Number) isValue()  {}
func (Bool) isValue()    {}
func (Null) isValue()    {}
func (Raw) isValue()     {}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Set stores v under key. An existing key keeps its position.
func (o *Object) Set(key string, v Value) *Object {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
	return o
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Object returns the object stored under key, or nil if the key is missing or
// holds something else.
func (o *Object) Object(key string) *Object {
	v, _ := o.values[key].(*Object)
	return v
}

// Delete removes key.
func (o *Object) Delete(key string) {
	if _, ok := o.values[key]; !ok {
		return
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of keys.
func (o *Object) Len() int { return len(o.keys) }

// Int returns a Number for n.
func Int(n int) Number { return Number(strconv.Itoa(n)) }

// Strings returns an Array of String values.
func Strings(ss []string) Array {
	arr := make(Array, 0, len(ss))
	for _, s := range ss {
		arr = append(arr, String(s))
	}
	return arr
}

// Equal reports whether a and b hold the same structure and values. Key order
// is not significant; numbers compare by value.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case *Object:
		bv, ok := b.(*Object)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for _, k := range av.keys {
			other, ok := bv.values[k]
			if !ok || !Equal(av.values[k], other) {
				return false
			}
		}
		return true
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Number:
		bv, ok := b.(Number)
		if !ok {
			return false
		}
		if av == bv {
			return true
		}
		x, err1 := strconv.ParseFloat(string(av), 64)
		y, err2 := strconv.ParseFloat(string(bv), 64)
		return err1 == nil && err2 == nil && x == y
	case Null:
		_, ok := b.(Null)
		return ok
	default:
		return a == b
	}
}
