// Package result holds the fully materialized output of a query: the
// column set and every row, read off the wire once at construction so
// the caller can walk it without holding the underlying connection.
package result

import (
	"database/sql"
	"log"
	"strconv"

	"github.com/Mengxianke/MySQL-ConnectionPool/errs"
)

// QueryResult is a fully materialized, single-owner result set. Cell
// accessors operate on the "current row", which starts before the first
// row and advances one at a time via Advance.
type QueryResult struct {
	fields   []string
	fieldIdx map[string]int
	rows     [][]any // each cell is either nil (SQL NULL) or []byte
	cursor   int      // -1 means before first row
	affected int64
}

// FromRows drains rows completely into a QueryResult and closes nothing
// itself; the caller remains responsible for closing rows.
func FromRows(rows *sql.Rows) (*QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return FromExecResult(0), nil
	}

	idx := make(map[string]int, len(cols))
	for i, name := range cols {
		if _, exists := idx[name]; !exists {
			idx[name] = i
		}
	}

	qr := &QueryResult{
		fields:   cols,
		fieldIdx: idx,
		cursor:   -1,
	}

	scanDest := make([]any, len(cols))
	for rows.Next() {
		raw := make([]sql.RawBytes, len(cols))
		for i := range raw {
			scanDest[i] = &raw[i]
		}
		if err := rows.Scan(scanDest...); err != nil {
			return nil, err
		}
		row := make([]any, len(cols))
		for i, b := range raw {
			if b == nil {
				row[i] = nil
			} else {
				cp := make([]byte, len(b))
				copy(cp, b)
				row[i] = cp
			}
		}
		qr.rows = append(qr.rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return qr, nil
}

// FromExecResult builds a QueryResult that carries only an
// affected-row count, for statements with no result set.
func FromExecResult(affected int64) *QueryResult {
	return &QueryResult{cursor: -1, affected: affected}
}

// FieldCount returns the number of columns in the result set.
func (r *QueryResult) FieldCount() int { return len(r.fields) }

// RowCount returns the number of rows materialized.
func (r *QueryResult) RowCount() int { return len(r.rows) }

// AffectedRows returns the rows-affected count for an exec-shaped result.
func (r *QueryResult) AffectedRows() int64 { return r.affected }

// FieldNames returns the column names in positional order.
func (r *QueryResult) FieldNames() []string {
	return append([]string(nil), r.fields...)
}

// IsEmpty reports whether the result set has zero rows.
func (r *QueryResult) IsEmpty() bool { return len(r.rows) == 0 }

// HasResultSet reports whether this result carries a column set at all
// (as opposed to being a bare exec-affected-rows result).
func (r *QueryResult) HasResultSet() bool { return r.fields != nil }

// Advance moves the cursor to the next row, returning false once rows
// are exhausted.
func (r *QueryResult) Advance() bool {
	if r.cursor+1 >= len(r.rows) {
		r.cursor = len(r.rows)
		return false
	}
	r.cursor++
	return true
}

// Rewind resets the cursor to before the first row, reporting whether
// rewinding is supported: only a result with an actual row set can be
// walked again, not a bare exec-affected-rows result.
func (r *QueryResult) Rewind() bool {
	if !r.HasResultSet() {
		return false
	}
	r.cursor = -1
	return true
}

func (r *QueryResult) currentRow() ([]any, error) {
	if r.cursor < 0 || r.cursor >= len(r.rows) {
		return nil, &errs.NoCurrentRow{}
	}
	return r.rows[r.cursor], nil
}

func (r *QueryResult) cellByIndex(index int) ([]byte, bool, error) {
	row, err := r.currentRow()
	if err != nil {
		return nil, false, err
	}
	if index < 0 || index >= len(r.fields) {
		return nil, false, &errs.OutOfRange{Index: index, FieldCount: len(r.fields)}
	}
	cell := row[index]
	if cell == nil {
		return nil, true, nil
	}
	return cell.([]byte), false, nil
}

func (r *QueryResult) indexForName(name string) (int, error) {
	idx, ok := r.fieldIdx[name]
	if !ok {
		return 0, &errs.UnknownField{Name: name}
	}
	return idx, nil
}

// GetString returns the cell at index as a string, "" if NULL.
func (r *QueryResult) GetString(index int) (string, error) {
	b, isNull, err := r.cellByIndex(index)
	if err != nil {
		return "", err
	}
	if isNull {
		return "", nil
	}
	return string(b), nil
}

// GetStringByName returns the named cell as a string, "" if NULL.
func (r *QueryResult) GetStringByName(name string) (string, error) {
	idx, err := r.indexForName(name)
	if err != nil {
		return "", err
	}
	return r.GetString(idx)
}

// GetInt returns the cell at index as an int, 0 if NULL or unparseable.
// A parse failure is logged as a warning and never returned as an error.
func (r *QueryResult) GetInt(index int) (int, error) {
	b, isNull, err := r.cellByIndex(index)
	if err != nil {
		return 0, err
	}
	if isNull {
		return 0, nil
	}
	v, perr := strconv.Atoi(string(b))
	if perr != nil {
		log.Printf("result: field %d %q is not an int, returning 0", index, string(b))
		return 0, nil
	}
	return v, nil
}

// GetIntByName returns the named cell as an int, per GetInt's rules.
func (r *QueryResult) GetIntByName(name string) (int, error) {
	idx, err := r.indexForName(name)
	if err != nil {
		return 0, err
	}
	return r.GetInt(idx)
}

// GetLong returns the cell at index as an int64, 0 if NULL or unparseable.
func (r *QueryResult) GetLong(index int) (int64, error) {
	b, isNull, err := r.cellByIndex(index)
	if err != nil {
		return 0, err
	}
	if isNull {
		return 0, nil
	}
	v, perr := strconv.ParseInt(string(b), 10, 64)
	if perr != nil {
		log.Printf("result: field %d %q is not a long, returning 0", index, string(b))
		return 0, nil
	}
	return v, nil
}

// GetLongByName returns the named cell as an int64, per GetLong's rules.
func (r *QueryResult) GetLongByName(name string) (int64, error) {
	idx, err := r.indexForName(name)
	if err != nil {
		return 0, err
	}
	return r.GetLong(idx)
}

// GetDouble returns the cell at index as a float64, 0 if NULL or unparseable.
func (r *QueryResult) GetDouble(index int) (float64, error) {
	b, isNull, err := r.cellByIndex(index)
	if err != nil {
		return 0, err
	}
	if isNull {
		return 0, nil
	}
	v, perr := strconv.ParseFloat(string(b), 64)
	if perr != nil {
		log.Printf("result: field %d %q is not a double, returning 0", index, string(b))
		return 0, nil
	}
	return v, nil
}

// GetDoubleByName returns the named cell as a float64, per GetDouble's rules.
func (r *QueryResult) GetDoubleByName(name string) (float64, error) {
	idx, err := r.indexForName(name)
	if err != nil {
		return 0, err
	}
	return r.GetDouble(idx)
}

// IsNull reports whether the cell at index is SQL NULL in the current row.
func (r *QueryResult) IsNull(index int) (bool, error) {
	_, isNull, err := r.cellByIndex(index)
	return isNull, err
}

// IsNullByName reports whether the named cell is SQL NULL in the current row.
func (r *QueryResult) IsNullByName(name string) (bool, error) {
	idx, err := r.indexForName(name)
	if err != nil {
		return false, err
	}
	return r.IsNull(idx)
}
