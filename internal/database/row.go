package database

import "github.com/koustreak/sphinxql/internal/errs"

// Row maps column name to value.
type Row = map[string]any

// ResultSet is the materialized rows of one statement.
type ResultSet = []Row

// ScanResultSet reads every row of the current result group and returns
// them as a slice of maps keyed by column name. Text columns arrive from the
// driver as []byte and are surfaced as string.
//
// A group without columns comes from a statement that produced no result
// and yields a nil set; any other group yields a non-nil slice, empty on
// zero rows. ScanResultSet does not advance to the next group and does not
// close results.
func ScanResultSet(results Results) (ResultSet, error) {
	columns, err := results.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	if len(columns) == 0 {
		return nil, results.Err()
	}

	set := make(ResultSet, 0)

	for results.Next() {
		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := results.Scan(destPtrs...); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			if b, ok := dest[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = dest[i]
		}
		set = append(set, row)
	}

	if err := results.Err(); err != nil {
		return nil, err
	}

	return set, nil
}
