// Package frame provides the in-memory columnar frame the censusflow
// pipelines transform: ordered, named, typed columns with per-cell null
// masks, plus CSV and parquet I/O. It implements only the operations the
// pipelines need - select, rename, filter, outer join on a key, row-wise
// stacking, and stable multi-column sorts. There is no expression engine
// and no schema enforcement beyond column-name matching.
package frame

import (
	"sort"
	"strconv"
	"strings"

	"github.com/censusflow/censusflow/pkg/errors"
)

// Type identifies the storage type of a column
type Type int

const (
	// TypeString stores cells as strings
	TypeString Type = iota
	// TypeFloat stores cells as float64
	TypeFloat
	// TypeInt stores cells as int64
	TypeInt
)

// Column is a single named column. Exactly one of Str, Num, or Ints is
// populated according to Type; Null marks missing cells in every case.
type Column struct {
	Name string
	Type Type
	Str  []string
	Num  []float64
	Ints []int64
	Null []bool
}

// NewColumn creates an empty column of the given type
func NewColumn(name string, typ Type) *Column {
	return &Column{Name: name, Type: typ}
}

// Len returns the number of cells
func (c *Column) Len() int {
	return len(c.Null)
}

// IsNull reports whether the cell at row is missing
func (c *Column) IsNull(row int) bool {
	return c.Null[row]
}

// AppendString appends a string cell; only valid on TypeString columns
func (c *Column) AppendString(v string) {
	c.Str = append(c.Str, v)
	c.Null = append(c.Null, false)
}

// AppendFloat appends a float cell; only valid on TypeFloat columns
func (c *Column) AppendFloat(v float64) {
	c.Num = append(c.Num, v)
	c.Null = append(c.Null, false)
}

// AppendInt appends an int cell; only valid on TypeInt columns
func (c *Column) AppendInt(v int64) {
	c.Ints = append(c.Ints, v)
	c.Null = append(c.Null, false)
}

// AppendNull appends a missing cell
func (c *Column) AppendNull() {
	switch c.Type {
	case TypeString:
		c.Str = append(c.Str, "")
	case TypeFloat:
		c.Num = append(c.Num, 0)
	case TypeInt:
		c.Ints = append(c.Ints, 0)
	}
	c.Null = append(c.Null, true)
}

// StringAt formats the cell at row as a string; missing cells are empty
func (c *Column) StringAt(row int) string {
	if c.Null[row] {
		return ""
	}
	switch c.Type {
	case TypeString:
		return c.Str[row]
	case TypeFloat:
		return strconv.FormatFloat(c.Num[row], 'f', -1, 64)
	case TypeInt:
		return strconv.FormatInt(c.Ints[row], 10)
	}
	return ""
}

// FloatAt returns the numeric value of the cell; ok is false for missing
// cells and for string columns that have not been coerced.
func (c *Column) FloatAt(row int) (float64, bool) {
	if c.Null[row] {
		return 0, false
	}
	switch c.Type {
	case TypeFloat:
		return c.Num[row], true
	case TypeInt:
		return float64(c.Ints[row]), true
	}
	return 0, false
}

// SetString overwrites the cell at row; only valid on TypeString columns
func (c *Column) SetString(row int, v string) {
	c.Str[row] = v
	c.Null[row] = false
}

// SetNull marks the cell at row missing
func (c *Column) SetNull(row int) {
	c.Null[row] = true
}

// appendFrom copies the cell at row from src, converting between storage
// types where a sensible conversion exists.
func (c *Column) appendFrom(src *Column, row int) {
	if src.Null[row] {
		c.AppendNull()
		return
	}
	switch c.Type {
	case TypeString:
		c.AppendString(src.StringAt(row))
	case TypeFloat:
		if v, ok := src.FloatAt(row); ok {
			c.AppendFloat(v)
			return
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(src.Str[row]), 64); err == nil {
			c.AppendFloat(v)
			return
		}
		c.AppendNull()
	case TypeInt:
		switch src.Type {
		case TypeInt:
			c.AppendInt(src.Ints[row])
		case TypeFloat:
			c.AppendInt(int64(src.Num[row]))
		default:
			if v, err := strconv.ParseInt(strings.TrimSpace(src.Str[row]), 10, 64); err == nil {
				c.AppendInt(v)
				return
			}
			c.AppendNull()
		}
	}
}

// Frame is an ordered collection of equal-length columns
type Frame struct {
	cols  []*Column
	index map[string]int
}

// New creates an empty frame
func New() *Frame {
	return &Frame{index: make(map[string]int)}
}

// NumRows returns the row count (zero for a frame with no columns)
func (f *Frame) NumRows() int {
	if len(f.cols) == 0 {
		return 0
	}
	return f.cols[0].Len()
}

// NumCols returns the column count
func (f *Frame) NumCols() int {
	return len(f.cols)
}

// Names returns the column names in frame order
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Has reports whether a column exists
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Col returns the named column, or nil when absent
func (f *Frame) Col(name string) *Column {
	if i, ok := f.index[name]; ok {
		return f.cols[i]
	}
	return nil
}

// AddColumn appends a column; its length must match the frame's rows
func (f *Frame) AddColumn(c *Column) error {
	if len(f.cols) > 0 && c.Len() != f.NumRows() {
		return errors.New(errors.ErrorTypeData, "column length does not match frame rows").
			WithDetail("column", c.Name).
			WithDetail("column_rows", c.Len()).
			WithDetail("frame_rows", f.NumRows())
	}
	if _, ok := f.index[c.Name]; ok {
		return errors.New(errors.ErrorTypeData, "duplicate column name").
			WithDetail("column", c.Name)
	}
	f.index[c.Name] = len(f.cols)
	f.cols = append(f.cols, c)
	return nil
}

// MustAddColumn is AddColumn for columns built in-process, where a
// mismatch is a programming error.
func (f *Frame) MustAddColumn(c *Column) {
	if err := f.AddColumn(c); err != nil {
		panic(err)
	}
}

// Select returns a new frame holding the named columns, in the given
// order. Names not present are skipped silently, matching the source
// data's year-to-year schema drift tolerance. The returned frame shares
// column storage with the receiver.
func (f *Frame) Select(names ...string) *Frame {
	out := New()
	for _, name := range names {
		if out.Has(name) {
			continue
		}
		if c := f.Col(name); c != nil {
			out.MustAddColumn(c)
		}
	}
	return out
}

// Rename renames a column in place. A missing old name is a no-op, as
// is a target name already taken by another column (the first claimant
// keeps the name).
func (f *Frame) Rename(old, to string) {
	i, ok := f.index[old]
	if !ok {
		return
	}
	if j, taken := f.index[to]; taken && j != i {
		return
	}
	delete(f.index, old)
	f.cols[i].Name = to
	f.index[to] = i
}

// Drop removes the named columns; missing names are ignored
func (f *Frame) Drop(names ...string) {
	for _, name := range names {
		i, ok := f.index[name]
		if !ok {
			continue
		}
		f.cols = append(f.cols[:i], f.cols[i+1:]...)
		delete(f.index, name)
		for j := i; j < len(f.cols); j++ {
			f.index[f.cols[j].Name] = j
		}
	}
}

// Filter returns a new frame with the rows for which keep returns true
func (f *Frame) Filter(keep func(row int) bool) *Frame {
	out := New()
	for _, c := range f.cols {
		nc := NewColumn(c.Name, c.Type)
		for row := 0; row < c.Len(); row++ {
			if keep(row) {
				nc.appendFrom(c, row)
			}
		}
		out.MustAddColumn(nc)
	}
	return out
}

// ToFloat coerces a column to TypeFloat in place. Cells that do not
// parse as numbers become null; a missing column is a no-op.
func (f *Frame) ToFloat(name string) {
	i, ok := f.index[name]
	if !ok {
		return
	}
	c := f.cols[i]
	if c.Type == TypeFloat {
		return
	}
	nc := NewColumn(name, TypeFloat)
	for row := 0; row < c.Len(); row++ {
		nc.appendFrom(c, row)
	}
	f.cols[i] = nc
}

// SortBy stably sorts rows by the named columns, ascending. String
// columns compare lexicographically, numeric columns numerically; nulls
// sort last.
func (f *Frame) SortBy(names ...string) {
	keys := make([]*Column, 0, len(names))
	for _, name := range names {
		if c := f.Col(name); c != nil {
			keys = append(keys, c)
		}
	}
	n := f.NumRows()
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		ra, rb := perm[a], perm[b]
		for _, c := range keys {
			switch {
			case c.Null[ra] && c.Null[rb]:
				continue
			case c.Null[ra]:
				return false
			case c.Null[rb]:
				return true
			}
			switch c.Type {
			case TypeString:
				if c.Str[ra] != c.Str[rb] {
					return c.Str[ra] < c.Str[rb]
				}
			case TypeFloat:
				if c.Num[ra] != c.Num[rb] {
					return c.Num[ra] < c.Num[rb]
				}
			case TypeInt:
				if c.Ints[ra] != c.Ints[rb] {
					return c.Ints[ra] < c.Ints[rb]
				}
			}
		}
		return false
	})
	f.applyPermutation(perm)
}

func (f *Frame) applyPermutation(perm []int) {
	for i, c := range f.cols {
		nc := NewColumn(c.Name, c.Type)
		for _, row := range perm {
			nc.appendFrom(c, row)
		}
		f.cols[i] = nc
	}
}

// joinKeySep separates key parts in composite join keys. It cannot
// appear in Census names or FIPS codes.
const joinKeySep = "\x1f"

func compositeKey(cols []*Column, row int) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.StringAt(row)
	}
	return strings.Join(parts, joinKeySep)
}

// OuterJoin unions the rows of left and right on the named key columns.
// The result keeps every left column, then appends right columns not
// already present. Rows only in right get nulls for left-only columns;
// rows only in left get nulls for right-only columns. Duplicate keys on
// the right coalesce: the last occurrence wins. Both frames must contain
// every key column.
func OuterJoin(left, right *Frame, keys []string) (*Frame, error) {
	leftKeys := make([]*Column, len(keys))
	rightKeys := make([]*Column, len(keys))
	for i, k := range keys {
		if leftKeys[i] = left.Col(k); leftKeys[i] == nil {
			return nil, errors.New(errors.ErrorTypeData, "join key missing from left frame").
				WithDetail("key", k)
		}
		if rightKeys[i] = right.Col(k); rightKeys[i] == nil {
			return nil, errors.New(errors.ErrorTypeData, "join key missing from right frame").
				WithDetail("key", k)
		}
	}

	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	var rightNew []*Column
	for _, c := range right.cols {
		if !keySet[c.Name] && !left.Has(c.Name) {
			rightNew = append(rightNew, c)
		}
	}

	out := New()
	for _, c := range left.cols {
		out.MustAddColumn(NewColumn(c.Name, c.Type))
	}
	for _, c := range rightNew {
		out.MustAddColumn(NewColumn(c.Name, c.Type))
	}

	// Copy left rows, remembering where each key landed
	rowOf := make(map[string]int, left.NumRows())
	for row := 0; row < left.NumRows(); row++ {
		for i, c := range left.cols {
			out.cols[i].appendFrom(c, row)
		}
		for i := range rightNew {
			out.cols[len(left.cols)+i].AppendNull()
		}
		rowOf[compositeKey(leftKeys, row)] = row
	}

	for row := 0; row < right.NumRows(); row++ {
		key := compositeKey(rightKeys, row)
		if at, ok := rowOf[key]; ok {
			for i, c := range rightNew {
				out.cols[len(left.cols)+i].setFrom(at, c, row)
			}
			continue
		}
		// Right-only row: key columns from right, everything else null
		for i, c := range left.cols {
			if keySet[c.Name] {
				out.cols[i].appendFrom(right.Col(c.Name), row)
			} else {
				out.cols[i].AppendNull()
			}
		}
		for i, c := range rightNew {
			out.cols[len(left.cols)+i].appendFrom(c, row)
		}
		rowOf[key] = out.NumRows() - 1
	}

	return out, nil
}

// setFrom overwrites the cell at row with src's cell at srcRow
func (c *Column) setFrom(row int, src *Column, srcRow int) {
	if src.Null[srcRow] {
		return
	}
	switch c.Type {
	case TypeString:
		c.Str[row] = src.StringAt(srcRow)
		c.Null[row] = false
	case TypeFloat:
		if v, ok := src.FloatAt(srcRow); ok {
			c.Num[row] = v
			c.Null[row] = false
		} else if v, err := strconv.ParseFloat(strings.TrimSpace(src.Str[srcRow]), 64); err == nil {
			c.Num[row] = v
			c.Null[row] = false
		}
	case TypeInt:
		if v, ok := src.FloatAt(srcRow); ok {
			c.Ints[row] = int64(v)
			c.Null[row] = false
		}
	}
}

// Append stacks other's rows below f's, returning a new frame. Columns
// are the union: f's columns in order, then other's new columns. Cells
// absent from either side are null.
func Append(f, other *Frame) *Frame {
	out := New()
	for _, c := range f.cols {
		out.MustAddColumn(NewColumn(c.Name, c.Type))
	}
	for _, c := range other.cols {
		if !f.Has(c.Name) {
			out.MustAddColumn(NewColumn(c.Name, c.Type))
		}
	}

	appendRows := func(src *Frame) {
		for row := 0; row < src.NumRows(); row++ {
			for _, oc := range out.cols {
				if sc := src.Col(oc.Name); sc != nil {
					oc.appendFrom(sc, row)
				} else {
					oc.AppendNull()
				}
			}
		}
	}
	appendRows(f)
	appendRows(other)
	return out
}
