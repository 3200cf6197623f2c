package sphinxql

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Params binds placeholder tokens (e.g. ":id") to values.
type Params map[string]any

// Substitute replaces every occurrence of each placeholder in stmt with the
// SphinxQL literal for its value:
//
//   - nil (or a nil pointer) becomes NULL
//   - integers are written exactly
//   - floats and json.Number are written with 12 fractional digits, then
//     trailing zeros and a bare '.' are dropped (3.0 → 3, 3.25 → 3.25)
//   - anything else is formatted with fmt (so Stringers use String), escaped
//     with escape and wrapped in single quotes
//
// Replacement is one left-to-right pass; at each position the longest
// matching placeholder wins, so ":id" never eats the prefix of ":id2" and
// substituted text is never scanned again. Placeholders absent from stmt and
// tokens without a binding are left alone. An empty params returns stmt
// unchanged.
func Substitute(stmt string, params Params, escape func(string) string) string {
	if len(params) == 0 {
		return stmt
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "" {
			keys = append(keys, k)
		}
	}
	// strings.Replacer tries old strings in argument order at each position.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, Literal(params[k], escape))
	}
	return strings.NewReplacer(pairs...).Replace(stmt)
}

// Literal formats v as a SphinxQL literal, following the rules of
// Substitute.
func Literal(v any, escape func(string) string) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := x.Float64(); err == nil {
			return formatFloat(f)
		}
		return quote(x.String(), escape)
	case []byte:
		return quote(string(x), escape)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return formatFloat32(float32(rv.Float()))
	case reflect.Float64:
		return formatFloat(rv.Float())
	case reflect.Pointer:
		if rv.IsNil() {
			return "NULL"
		}
		if _, ok := v.(fmt.Stringer); ok {
			break
		}
		return Literal(rv.Elem().Interface(), escape)
	}

	return quote(fmt.Sprint(v), escape)
}

func quote(s string, escape func(string) string) string {
	return "'" + escape(s) + "'"
}

// formatFloat writes f with 12 fractional digits and strips the padding.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 12, 64)
	if strings.IndexByte(s, '.') < 0 {
		return s // NaN, ±Inf
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// formatFloat32 widens f through its shortest decimal form, so the digits
// float64 would add past float32 precision never appear.
func formatFloat32(f float32) string {
	d, err := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', -1, 32), 64)
	if err != nil {
		return formatFloat(float64(f))
	}
	return formatFloat(d)
}
