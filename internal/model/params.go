package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Params carries action parameters decoded from query strings, JSON bodies
// or chat arguments.
type Params map[string]any

// String returns the trimmed textual value of key, or "" when absent.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// StringOr returns the value of key, or def when it is empty.
func (p Params) StringOr(key, def string) string {
	if s := p.String(key); s != "" {
		return s
	}
	return def
}

// Has reports whether key carries a non-empty value.
func (p Params) Has(key string) bool {
	return p.String(key) != ""
}

// Int parses key as an integer, falling back to def when absent or invalid.
func (p Params) Int(key string, def int) int {
	s := p.String(key)
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return def
}

// Decode re-marshals the raw value at key into out.
func (p Params) Decode(key string, out any) error {
	v, ok := p[key]
	if !ok {
		return fmt.Errorf("%s missing", key)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
