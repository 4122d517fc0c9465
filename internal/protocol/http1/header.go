package http1

import "strings"

// HeaderField is one name/value pair as it appeared on the wire.
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered list of header fields. Names compare
// case-insensitively; duplicates are kept in arrival order.
type Header []HeaderField

// Add appends a field, keeping any existing fields with the same name.
func (h *Header) Add(name, value string) {
	*h = append(*h, HeaderField{Name: name, Value: value})
}

// Set replaces the first field named name and drops later duplicates. If no
// such field exists the new one is appended, preserving insertion order.
func (h *Header) Set(name, value string) {
	fields := *h
	out := fields[:0]
	replaced := false
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			if replaced {
				continue
			}
			f.Value = value
			replaced = true
		}
		out = append(out, f)
	}
	if !replaced {
		out = append(out, HeaderField{Name: name, Value: value})
	}
	*h = out
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	fields := *h
	out := fields[:0]
	for _, f := range fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	*h = out
}

// Get returns the value of the first field named name.
func (h Header) Get(name string) string {
	v, _ := h.Lookup(name)
	return v
}

// Lookup is like Get but also reports whether the field was present.
func (h Header) Lookup(name string) (string, bool) {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value for name in arrival order.
func (h Header) Values(name string) []string {
	var vals []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			vals = append(vals, f.Value)
		}
	}
	return vals
}

// Has reports whether a field named name is present.
func (h Header) Has(name string) bool {
	_, ok := h.Lookup(name)
	return ok
}
