package main

import (
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/sphinxql/internal/errs"
	"github.com/koustreak/sphinxql/internal/sphinxql"
)

// parseParams turns ":name=value" flags into bindings. Values that parse as
// integers or floats bind as numbers, NULL binds as nil, anything else binds
// as text.
func parseParams(raw []string) (sphinxql.Params, error) {
	params := sphinxql.Params{}
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "param %q is not name=value", kv)
		}
		if !strings.HasPrefix(name, ":") {
			name = ":" + name
		}
		params[name] = paramValue(value)
	}
	return params, nil
}

func paramValue(s string) any {
	if strings.EqualFold(s, "null") {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}

func write(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
