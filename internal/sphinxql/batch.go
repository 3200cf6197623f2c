package sphinxql

import "strings"

// terminators are stripped from the end of each statement; the batch adds
// its own separator.
const terminators = "; \t\r\n"

// batch is the ordered list of substituted statements waiting for dispatch.
type batch struct {
	stmts []string
}

func (b *batch) add(stmt string, params Params, escape func(string) string) {
	stmt = strings.TrimRight(stmt, terminators)
	b.stmts = append(b.stmts, Substitute(stmt, params, escape)+";")
}

// take empties the batch and returns its statements.
func (b *batch) take() []string {
	stmts := b.stmts
	b.stmts = nil
	return stmts
}

func (b *batch) len() int {
	return len(b.stmts)
}
