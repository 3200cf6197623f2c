package sphinxql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/koustreak/sphinxql/internal/errs"
)

// validOps is the allowlist of comparison operators for WHERE clauses.
// The operator position cannot be bound to a placeholder.
var validOps = map[string]bool{
	"=":      true,
	"!=":     true,
	"<>":     true,
	"<":      true,
	">":      true,
	"<=":     true,
	">=":     true,
	"IN":     true,
	"NOT IN": true,
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

// SelectBuilder assembles a SELECT statement over an index together with the
// Params it binds. Values never enter the statement text directly; they are
// bound to generated placeholders (:p1, :p2, …) and substituted by AddQuery.
//
// Usage:
//
//	stmt, params, err := sphinxql.Select("products").
//	    Columns("id", "title").
//	    Match("red shoes").
//	    Where("price", "<", 100).
//	    OrderBy("weight()", sphinxql.Desc).
//	    Limit(20).
//	    Build()
//	c.AddQuery(stmt, params)
type SelectBuilder struct {
	index   string
	columns []string
	match   *string
	where   []whereClause
	orderBy []orderClause
	limit   *int
	offset  *int
	options []optionClause
}

type whereClause struct {
	column string
	op     string
	value  any
}

type orderClause struct {
	column string
	dir    SortDirection
}

type optionClause struct {
	name  string
	value any
}

// Select starts a SelectBuilder over index. Several indexes may be given
// comma-separated.
func Select(index string) *SelectBuilder {
	return &SelectBuilder{index: index}
}

// Columns restricts the select list. Without it, * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Match adds a full-text MATCH condition.
func (b *SelectBuilder) Match(query string) *SelectBuilder {
	b.match = &query
	return b
}

// Where adds an attribute condition. Multiple calls are combined with AND.
// For IN and NOT IN, value must be a slice; each element gets its own
// placeholder.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{column, op, value})
	return b
}

// OrderBy appends an ORDER BY key. Expressions such as weight() are written
// as given.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip. It only takes effect with Limit.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Option appends an OPTION name=value pair (e.g. max_matches, ranker).
func (b *SelectBuilder) Option(name string, value any) *SelectBuilder {
	b.options = append(b.options, optionClause{name, value})
	return b
}

// Build produces the statement and its bindings. It fails with
// ErrKindInvalidInput on an unknown operator, an empty IN list, a negative
// limit or offset, or a malformed option name.
func (b *SelectBuilder) Build() (string, Params, error) {
	if strings.TrimSpace(b.index) == "" {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "select needs an index")
	}

	cols := "*"
	if len(b.columns) > 0 {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = quoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	indexes := strings.Split(b.index, ",")
	for i, idx := range indexes {
		indexes[i] = quoteIdent(strings.TrimSpace(idx))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(strings.Join(indexes, ", "))

	params := Params{}
	bind := func(v any) string {
		name := ":p" + strconv.Itoa(len(params)+1)
		params[name] = v
		return name
	}

	var conds []string
	if b.match != nil {
		conds = append(conds, "MATCH("+bind(*b.match)+")")
	}
	for _, w := range b.where {
		op := strings.ToUpper(strings.Join(strings.Fields(w.op), " "))
		if !validOps[op] {
			return "", nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported WHERE operator: %q", w.op)
		}
		if op == "IN" || op == "NOT IN" {
			list, err := bindList(w.value, bind)
			if err != nil {
				return "", nil, err
			}
			conds = append(conds, fmt.Sprintf("%s %s (%s)", quoteIdent(w.column), op, list))
			continue
		}
		conds = append(conds, fmt.Sprintf("%s %s %s", quoteIdent(w.column), op, bind(w.value)))
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", quoteIdent(o.column), dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	// SphinxQL only knows the LIMIT offset,count form.
	if b.limit != nil {
		if *b.limit < 0 {
			return "", nil, errs.Newf(errs.ErrKindInvalidInput, "negative limit %d", *b.limit)
		}
		off := 0
		if b.offset != nil {
			if *b.offset < 0 {
				return "", nil, errs.Newf(errs.ErrKindInvalidInput, "negative offset %d", *b.offset)
			}
			off = *b.offset
		}
		fmt.Fprintf(&sb, " LIMIT %d,%d", off, *b.limit)
	}

	if len(b.options) > 0 {
		parts := make([]string, len(b.options))
		for i, o := range b.options {
			if !isOptionName(o.name) {
				return "", nil, errs.Newf(errs.ErrKindInvalidInput, "invalid option name %q", o.name)
			}
			parts[i] = o.name + "=" + bind(o.value)
		}
		sb.WriteString(" OPTION ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	return sb.String(), params, nil
}

func bindList(v any, bind func(any) string) (string, error) {
	var items []any
	switch x := v.(type) {
	case []any:
		items = x
	case []int:
		for _, n := range x {
			items = append(items, n)
		}
	case []int64:
		for _, n := range x {
			items = append(items, n)
		}
	case []uint64:
		for _, n := range x {
			items = append(items, n)
		}
	case []string:
		for _, s := range x {
			items = append(items, s)
		}
	default:
		return "", errs.Newf(errs.ErrKindInvalidInput, "IN needs a slice, got %T", v)
	}
	if len(items) == 0 {
		return "", errs.New(errs.ErrKindInvalidInput, "IN needs at least one value")
	}

	names := make([]string, len(items))
	for i, it := range items {
		names[i] = bind(it)
	}
	return strings.Join(names, ", "), nil
}

// quoteIdent wraps a plain identifier in backticks. Expressions such as
// weight() or count(*) are left as written.
func quoteIdent(name string) string {
	if strings.ContainsAny(name, "()* ") {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func isOptionName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}
