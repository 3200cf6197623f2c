package sphinxql

import (
	"context"
	"fmt"
	"strings"

	"github.com/koustreak/sphinxql/internal/errs"
)

// IndexInfo is one row of SHOW TABLES.
type IndexInfo struct {
	Name string
	Type string // local, distributed, rt, percolate, template
}

// FieldInfo is one row of DESCRIBE.
type FieldInfo struct {
	Field string
	Type  string
}

// ListIndexes returns the indexes served by the node c is bound to, in server
// order. Anything already pending on c is dispatched in the same batch.
func ListIndexes(ctx context.Context, c Client) ([]IndexInfo, error) {
	set, err := c.Query(ctx, "SHOW TABLES", nil)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}

	out := make([]IndexInfo, 0, len(set))
	for _, row := range set {
		name := text(row, "Index", "Table", "index", "table")
		if name == "" {
			return nil, errs.New(errs.ErrKindQueryFailed, "list indexes: row has no index name")
		}
		out = append(out, IndexInfo{Name: name, Type: text(row, "Type", "type")})
	}
	return out, nil
}

// DescribeIndex returns the schema of one index.
func DescribeIndex(ctx context.Context, c Client, index string) ([]FieldInfo, error) {
	if strings.TrimSpace(index) == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "describe needs an index")
	}
	set, err := c.Query(ctx, "DESCRIBE "+quoteIdent(index), nil)
	if err != nil {
		return nil, fmt.Errorf("describe index %s: %w", index, err)
	}

	out := make([]FieldInfo, 0, len(set))
	for _, row := range set {
		out = append(out, FieldInfo{
			Field: text(row, "Field", "field"),
			Type:  text(row, "Type", "type"),
		})
	}
	return out, nil
}

// Meta runs SHOW META and returns its variables. It must be called right
// after the search it describes, on the same client.
func Meta(ctx context.Context, c Client) (map[string]string, error) {
	set, err := c.Query(ctx, "SHOW META", nil)
	if err != nil {
		return nil, fmt.Errorf("show meta: %w", err)
	}
	out := make(map[string]string, len(set))
	for _, row := range set {
		out[text(row, "Variable_name", "variable_name")] = text(row, "Value", "value")
	}
	return out, nil
}

// text returns the first present column among names, as a string.
func text(row Row, names ...string) string {
	for _, n := range names {
		v, ok := row[n]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}
