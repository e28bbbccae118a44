package storage

import (
	"fmt"
	"strconv"
)

// Row is one record of a collection keyed by column name.
//
// Drivers disagree on scalar types (SQLite returns INTEGER for booleans,
// Postgres may return []byte for text), so reads go through the typed
// accessors below instead of direct type assertions.
type Row map[string]any

// String returns the column as a string, or "" when absent or NULL.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the column as an int64, or 0 when absent, NULL or unparsable.
func (r Row) Int(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// Bool returns the column as a bool. Integer columns are true when non-zero.
func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case []byte:
		b, _ := strconv.ParseBool(string(v))
		return b
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return r.Int(col) != 0
	}
}

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Matches reports whether r satisfies every term of f.
func (f Filter) Matches(r Row) bool {
	for col, want := range f {
		got, ok := r[col]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case []string:
			if !containsValue(got, stringsToAny(w)) {
				return false
			}
		case []any:
			if !containsValue(got, w) {
				return false
			}
		default:
			if !sameValue(got, want) {
				return false
			}
		}
	}
	return true
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func containsValue(got any, set []any) bool {
	for _, w := range set {
		if sameValue(got, w) {
			return true
		}
	}
	return false
}

// sameValue compares a stored value with a filter value across the type
// differences between drivers.
func sameValue(got, want any) bool {
	r := Row{"v": got}
	switch w := want.(type) {
	case string:
		return r.String("v") == w
	case bool:
		return r.Bool("v") == w
	case int:
		return r.Int("v") == int64(w)
	case int64:
		return r.Int("v") == w
	default:
		return fmt.Sprint(got) == fmt.Sprint(want)
	}
}
