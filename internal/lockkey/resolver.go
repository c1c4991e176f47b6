// Package lockkey derives deterministic lock and flag names from a guarded
// call's declared key templates and its actual arguments.
//
// A template is either a literal ("order") or an argument reference that
// starts with '#': "#req" names a whole argument, "#req.UserID" walks into
// it. Templates are compiled once when an operation is registered, so a
// malformed template fails startup instead of an individual request.
package lockkey

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// Args are the named arguments of one invocation.
type Args map[string]any

type template struct {
	literal string
	path    []string // nil for literals
}

// Resolver turns compiled templates into key components.
type Resolver struct {
	templates []template
}

// Compile validates and compiles key templates. Empty templates are skipped.
func Compile(templates ...string) (*Resolver, error) {
	r := &Resolver{templates: make([]template, 0, len(templates))}
	for _, raw := range templates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.HasPrefix(raw, "#") {
			r.templates = append(r.templates, template{literal: raw})
			continue
		}
		segs := strings.Split(raw[1:], ".")
		for _, s := range segs {
			if !isIdent(s) {
				return nil, fmt.Errorf("lockkey: malformed key template %q", raw)
			}
		}
		r.templates = append(r.templates, template{path: segs})
	}
	return r, nil
}

// MustCompile is like Compile but panics on a malformed template. It is
// meant for registration code that runs at startup.
func MustCompile(templates ...string) *Resolver {
	r, err := Compile(templates...)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve evaluates every template against args in declaration order.
// References that cannot be resolved, or resolve to an empty value, are
// dropped rather than failing the call.
func (r *Resolver) Resolve(args Args) []string {
	out := make([]string, 0, len(r.templates))
	for _, t := range r.templates {
		if t.path == nil {
			out = append(out, t.literal)
			continue
		}
		root, ok := args[t.path[0]]
		if !ok {
			continue
		}
		v, ok := walk(reflect.ValueOf(root), t.path[1:])
		if !ok {
			continue
		}
		if s := format(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func walk(v reflect.Value, path []string) (reflect.Value, bool) {
	for _, seg := range path {
		v = indirect(v)
		if !v.IsValid() {
			return reflect.Value{}, false
		}
		switch v.Kind() {
		case reflect.Struct:
			f, ok := field(v, seg)
			if !ok {
				return reflect.Value{}, false
			}
			v = f
		case reflect.Map:
			if v.Type().Key().Kind() != reflect.String {
				return reflect.Value{}, false
			}
			e := v.MapIndex(reflect.ValueOf(seg).Convert(v.Type().Key()))
			if !e.IsValid() {
				return reflect.Value{}, false
			}
			v = e
		default:
			return reflect.Value{}, false
		}
	}
	return v, true
}

// field finds an exported struct field by exact name, then by
// case-insensitive name, then by json tag.
func field(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	if sf, ok := t.FieldByName(name); ok && sf.IsExported() {
		return v.FieldByIndex(sf.Index), true
	}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if strings.EqualFold(sf.Name, name) {
			return v.Field(i), true
		}
		if tag, _, _ := strings.Cut(sf.Tag.Get("json"), ","); tag != "" && tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func format(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	b, err := json.Marshal(v.Interface())
	if err != nil {
		return ""
	}
	return string(b)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
