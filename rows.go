package mapi

import (
	"fmt"
	"strings"

	"github.com/andreyvit/mapi/propval"
)

// Row holds one value per column, in column order. Columns the server could
// not produce hold PT_ERROR values.
type Row []propval.Value

// Get returns the value for the column with tag's identifier.
func (r Row) Get(tag propval.Tag) (propval.Value, bool) {
	return propval.FindID(r, tag.ID())
}

// RowSet is the result of one fetch. Every row has len(Columns) values.
type RowSet struct {
	Columns []propval.Tag
	Rows    []Row

	// Origin is the bookmark the server reports the cursor at after the
	// fetch.
	Origin Origin
}

func (rs *RowSet) Len() int {
	return len(rs.Rows)
}

// Dump renders the row set one value per line, for debugging.
func (rs *RowSet) Dump() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%d rows x %d columns, origin %v\n", len(rs.Rows), len(rs.Columns), rs.Origin)
	for i, row := range rs.Rows {
		fmt.Fprintln(&buf, dumpSep)
		for _, v := range row {
			fmt.Fprintf(&buf, "%d%s%v\n", i, indentStep, v)
		}
	}
	return buf.String()
}

const (
	dumpSep    = "------------------------------------------------------------"
	indentStep = "  "
)

const (
	rowStandard = 0x00
	rowFlagged  = 0x01

	valuePresent  = 0x00
	valueNotFound = 0x01
	valueError    = 0x0A
)

// decodeRows decodes count PropertyRows. Any failure discards the whole set.
func decodeRows(r *propval.Reader, cols []propval.Tag, count int, f propval.Format) ([]Row, error) {
	if count > r.Len() {
		return nil, fmt.Errorf("%w: %d rows in %d bytes", propval.ErrTruncated, count, r.Len())
	}
	rows := make([]Row, 0, count)
	for i := range count {
		row, err := decodeRow(r, cols, f)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// decodeRow decodes a StandardPropertyRow or FlaggedPropertyRow
// (MS-OXCDATA 2.8.1) against the given columns.
func decodeRow(r *propval.Reader, cols []propval.Tag, f propval.Format) (Row, error) {
	flag, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	if flag != rowStandard && flag != rowFlagged {
		return nil, fmt.Errorf("%w: row flag 0x%02X", propval.ErrCorrupt, flag)
	}
	row := make(Row, len(cols))
	for i, tag := range cols {
		vflag := uint8(valuePresent)
		if flag == rowFlagged {
			if vflag, err = r.Uint8(); err != nil {
				return nil, err
			}
		}
		switch vflag {
		case valuePresent:
			row[i], err = decodeColumn(r, tag, f)
		case valueNotFound:
			row[i] = propval.ErrorValue(tag.ID(), propval.CodeNotFound)
		case valueError:
			row[i], err = propval.Decode(r, tag.WithType(propval.TypeError), f)
		default:
			err = fmt.Errorf("%w: value flag 0x%02X", propval.ErrCorrupt, vflag)
		}
		if err != nil {
			return nil, fmt.Errorf("column %v: %w", tag, err)
		}
	}
	return row, nil
}

// decodeColumn reads one value. A PT_UNSPECIFIED column carries its actual
// type inline.
func decodeColumn(r *propval.Reader, tag propval.Tag, f propval.Format) (propval.Value, error) {
	if tag.Type() != propval.TypeUnspecified {
		return propval.Decode(r, tag, f)
	}
	start := r.Off()
	typ, err := r.Uint16()
	if err != nil {
		return propval.Value{}, err
	}
	v, err := propval.Decode(r, tag.WithType(propval.Type(typ)), f)
	if err != nil {
		r.Seek(start)
	}
	return v, err
}

// AppendRow encodes a PropertyRow the way a server does. A flagged row is
// written when any value is an error substituted for a non-error column.
func AppendRow(buf []byte, cols []propval.Tag, row Row, f propval.Format) ([]byte, error) {
	if len(row) != len(cols) {
		return buf, fmt.Errorf("%w: %d values for %d columns", ErrInvalidArgument, len(row), len(cols))
	}
	flagged := false
	for i, v := range row {
		if v.IsError() && cols[i].Type() != propval.TypeError {
			flagged = true
		}
	}
	if !flagged {
		buf = append(buf, rowStandard)
	} else {
		buf = append(buf, rowFlagged)
	}
	for i, v := range row {
		col := cols[i]
		if flagged {
			switch {
			case v.IsError() && col.Type() != propval.TypeError:
				if c, _ := v.ErrorCode(); c == propval.CodeNotFound {
					buf = append(buf, valueNotFound)
					continue
				}
				buf = append(buf, valueError)
			default:
				buf = append(buf, valuePresent)
			}
		}
		if col.Type() != propval.TypeUnspecified && !v.IsError() && v.Tag.Type() != col.Type() {
			return buf, fmt.Errorf("%w: %v in column %v", propval.ErrTypeMismatch, v.Tag, col)
		}
		if col.Type() == propval.TypeUnspecified && !(flagged && v.IsError()) {
			buf = append(buf, byte(v.Tag.Type()), byte(v.Tag.Type()>>8))
		}
		var err error
		buf, err = propval.Append(buf, v, f)
		if err != nil {
			return buf, fmt.Errorf("column %v: %w", col, err)
		}
	}
	return buf, nil
}
