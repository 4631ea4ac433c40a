package mapi

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/andreyvit/mapi/propval"
)

const debugTable = false

// Origin is a predefined cursor position.
type Origin uint8

const (
	OriginBeginning Origin = 0x00
	OriginCurrent   Origin = 0x01
	OriginEnd       Origin = 0x02
)

func (o Origin) String() string {
	switch o {
	case OriginBeginning:
		return "beginning"
	case OriginCurrent:
		return "current"
	case OriginEnd:
		return "end"
	default:
		return fmt.Sprintf("Origin(%d)", uint8(o))
	}
}

// TableStatus is the state of asynchronous table operations.
type TableStatus uint8

const (
	TableComplete      TableStatus = 0x00
	TableSorting       TableStatus = 0x09
	TableSortError     TableStatus = 0x0A
	TableSettingCols   TableStatus = 0x0B
	TableSetColError   TableStatus = 0x0D
	TableRestricting   TableStatus = 0x0E
	TableRestrictError TableStatus = 0x0F
)

const (
	queryRowsNoAdvance = 0x01
	findRowBackward    = 0x01
)

// Table is a client-side view of a server table handle: its cursor, its
// column selection and its bookmarks.
//
// A Table must not be used from several goroutines at once. Callers that
// share one must serialize access themselves.
type Table struct {
	sess     *Session
	handle   uint32
	columns  []propval.Tag
	released bool
}

// OpenTable wraps a table handle obtained from the transport (for example,
// from RopGetContentsTable).
func OpenTable(sess *Session, handle uint32) *Table {
	return &Table{sess: sess, handle: handle}
}

func (t *Table) Handle() uint32 {
	return t.handle
}

// Columns returns the column selection rows are decoded against, or nil if
// none is selected.
func (t *Table) Columns() []propval.Tag {
	return slices.Clone(t.columns)
}

func (t *Table) check(rop RopID) error {
	if t.released {
		return misusef(rop, t.handle, "table released")
	}
	return nil
}

func (t *Table) call(ctx context.Context, c *Call) error {
	if err := t.check(c.Rop); err != nil {
		return err
	}
	if debugTable {
		t.sess.logger.LogAttrs(ctx, slog.LevelDebug, "mapi: table call", slog.String("rop", c.Rop.String()), slog.Uint64("handle", uint64(t.handle)), hexAttr("req", c.Request))
	}
	return t.sess.call(ctx, t.handle, c)
}

func tableStatusResponse(st *TableStatus) func(r *propval.Reader) error {
	return func(r *propval.Reader) error {
		b, err := r.Uint8()
		*st = TableStatus(b)
		return err
	}
}

// SelectColumns sets the columns subsequent fetches return. The new list
// replaces the old one for interpreting every later reply.
//
// Columns the server cannot produce do not fail the call; such a partial
// success is logged, and those columns come back as PT_ERROR values.
func (t *Table) SelectColumns(ctx context.Context, tags ...propval.Tag) error {
	return t.selectColumns(ctx, tags, false)
}

// SelectColumnsStrict is like SelectColumns, but reports a partial success
// as an error matching ErrPartialSuccess. The columns are selected either
// way.
func (t *Table) SelectColumnsStrict(ctx context.Context, tags ...propval.Tag) error {
	return t.selectColumns(ctx, tags, true)
}

func (t *Table) selectColumns(ctx context.Context, tags []propval.Tag, strict bool) error {
	if len(tags) == 0 || len(tags) > 0xFFFF {
		return fmt.Errorf("%v: %w: %d columns", RopSetColumns, ErrInvalidArgument, len(tags))
	}
	for _, tag := range tags {
		if typ := tag.Type(); typ != propval.TypeUnspecified && !typ.Known() {
			return fmt.Errorf("%v: column %v: %w", RopSetColumns, tag, propval.ErrUnknownType)
		}
	}
	var st TableStatus
	c := &Call{
		Rop:      RopSetColumns,
		Request:  ropRequest(nil).u8(0).tags(tags),
		Response: tableStatusResponse(&st),
	}
	if err := t.call(ctx, c); err != nil {
		return err
	}
	t.columns = slices.Clone(tags)
	if c.Status == propval.CodeErrorsReturned {
		t.sess.logger.LogAttrs(ctx, slog.LevelWarn, "mapi: some columns could not be set", slog.Uint64("handle", uint64(t.handle)), slog.Int("columns", len(tags)))
		if strict {
			return &ProtocolError{RopSetColumns, c.Status}
		}
	}
	return nil
}

func queryPositionCall(pos, count *uint32) *Call {
	return &Call{
		Rop: RopQueryPosition,
		Response: func(r *propval.Reader) error {
			n, err := r.Uint32()
			if err != nil {
				return err
			}
			d, err := r.Uint32()
			if err != nil {
				return err
			}
			*pos, *count = n, d
			return nil
		},
	}
}

// Position returns the cursor's row index and the current row count.
func (t *Table) Position(ctx context.Context) (pos, count uint32, err error) {
	err = t.call(ctx, queryPositionCall(&pos, &count))
	return pos, count, err
}

// RowCount returns the number of rows currently visible through the
// restriction. It is a snapshot; rows may come and go before the next call.
func (t *Table) RowCount(ctx context.Context) (uint32, error) {
	_, count, err := t.Position(ctx)
	return count, err
}

// FetchRows returns up to maxRows rows from the cursor position, decoded
// against the selected columns. With advance false, the cursor stays put and
// repeating the call returns the same rows. An exhausted table yields an
// empty RowSet and no error.
//
// If any row fails to decode, the whole set is discarded.
func (t *Table) FetchRows(ctx context.Context, maxRows int, advance bool) (*RowSet, error) {
	if err := t.check(RopQueryRows); err != nil {
		return nil, err
	}
	if t.columns == nil {
		return nil, fmt.Errorf("%v: %w", RopQueryRows, ErrNoColumns)
	}
	if maxRows < 0 {
		return nil, fmt.Errorf("%v: %w: maxRows %d", RopQueryRows, ErrInvalidArgument, maxRows)
	}
	cols := t.columns
	rs := &RowSet{Columns: slices.Clone(cols)}
	if maxRows == 0 {
		return rs, nil
	}

	var flags uint8
	if !advance {
		flags |= queryRowsNoAdvance
	}
	c := &Call{
		Rop:     RopQueryRows,
		Request: ropRequest(nil).u8(flags).bool(true).u16(uint16(min(maxRows, 0xFFFF))),
		Response: func(r *propval.Reader) error {
			origin, err := r.Uint8()
			if err != nil {
				return err
			}
			n, err := r.Uint16()
			if err != nil {
				return err
			}
			rows, err := decodeRows(r, cols, int(n), propval.Row)
			if err != nil {
				return err
			}
			rs.Origin, rs.Rows = Origin(origin), rows
			return nil
		},
	}
	if err := t.call(ctx, c); err != nil {
		return nil, err
	}
	t.sess.metrics.rowsFetched(len(rs.Rows))
	return rs, nil
}

// Seek moves the cursor by offset rows from origin and returns the
// resulting absolute row index. Negative offsets move backwards.
func (t *Table) Seek(ctx context.Context, origin Origin, offset int64) (uint32, error) {
	if err := t.check(RopSeekRow); err != nil {
		return 0, err
	}
	if origin > OriginEnd {
		return 0, fmt.Errorf("%v: %w: origin %v", RopSeekRow, ErrInvalidArgument, origin)
	}
	if offset < math.MinInt32 || offset > math.MaxInt32 {
		return 0, fmt.Errorf("%v: %w: offset %d out of range", RopSeekRow, ErrInvalidArgument, offset)
	}
	var res SeekResult
	seek := &Call{
		Rop:      RopSeekRow,
		Request:  ropRequest(nil).u8(uint8(origin)).u32(uint32(int32(offset))).bool(true),
		Response: res.decodeSeekRow,
	}
	var pos, count uint32
	if _, err := t.sess.Execute(ctx, []uint32{t.handle}, seek, queryPositionCall(&pos, &count)); err != nil {
		return 0, err
	}
	return pos, nil
}

// SeekApprox moves the cursor to the fraction numerator/denominator of the
// table.
func (t *Table) SeekApprox(ctx context.Context, numerator, denominator uint32) error {
	if denominator == 0 {
		return fmt.Errorf("%v: %w: zero denominator", RopSeekRowFraction, ErrInvalidArgument)
	}
	return t.call(ctx, &Call{
		Rop:     RopSeekRowFraction,
		Request: ropRequest(nil).u32(numerator).u32(denominator),
	})
}

// QueryColumns returns the table's full natural column set.
func (t *Table) QueryColumns(ctx context.Context) ([]propval.Tag, error) {
	var tags []propval.Tag
	err := t.call(ctx, &Call{
		Rop: RopQueryColumnsAll,
		Response: func(r *propval.Reader) (err error) {
			tags, err = readTags(r)
			return err
		},
	})
	return tags, err
}

// Bookmark is a saved cursor position of one Table.
type Bookmark struct {
	table *Table
	data  []byte
	freed bool
}

// Bytes returns the server's opaque bookmark value.
func (b *Bookmark) Bytes() []byte {
	return slices.Clone(b.data)
}

// CreateBookmark saves the current cursor position.
func (t *Table) CreateBookmark(ctx context.Context) (*Bookmark, error) {
	bm := &Bookmark{table: t}
	err := t.call(ctx, &Call{
		Rop: RopCreateBookmark,
		Response: func(r *propval.Reader) (err error) {
			bm.data, err = readCounted(r)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return bm, nil
}

func (t *Table) checkBookmark(rop RopID, bm *Bookmark) error {
	if bm == nil {
		return fmt.Errorf("%v: %w: nil bookmark", rop, ErrInvalidArgument)
	}
	if bm.table != t {
		return misusef(rop, t.handle, "bookmark belongs to table 0x%08x", bm.table.handle)
	}
	if bm.freed {
		return misusef(rop, t.handle, "bookmark already freed")
	}
	return t.check(rop)
}

// SeekResult describes a completed cursor move.
type SeekResult struct {
	// RowGone means the bookmarked row no longer exists; the cursor was
	// placed on the row that followed it before the offset was applied.
	RowGone bool

	// SoughtLess means the cursor hit the start or end of the table before
	// moving the full offset.
	SoughtLess bool
	RowsSought int32
}

func (s *SeekResult) decodeSeekRow(r *propval.Reader) (err error) {
	if s.SoughtLess, err = readBool(r); err != nil {
		return err
	}
	s.RowsSought, err = r.Int32()
	return err
}

// SeekToBookmark moves the cursor offset rows from a bookmark created on
// this table. A bookmark of any other table fails with ErrHandleMisuse and
// the cursor does not move.
func (t *Table) SeekToBookmark(ctx context.Context, bm *Bookmark, offset int32) (SeekResult, error) {
	var res SeekResult
	if err := t.checkBookmark(RopSeekRowBookmark, bm); err != nil {
		return res, err
	}
	err := t.call(ctx, &Call{
		Rop:     RopSeekRowBookmark,
		Request: ropRequest(nil).counted(bm.data).u32(uint32(offset)).bool(true),
		Response: func(r *propval.Reader) (err error) {
			if res.RowGone, err = readBool(r); err != nil {
				return err
			}
			return res.decodeSeekRow(r)
		},
	})
	return res, err
}

// FreeBookmark releases a bookmark; it cannot be used afterwards.
func (t *Table) FreeBookmark(ctx context.Context, bm *Bookmark) error {
	if err := t.checkBookmark(RopFreeBookmark, bm); err != nil {
		return err
	}
	err := t.call(ctx, &Call{
		Rop:     RopFreeBookmark,
		Request: ropRequest(nil).counted(bm.data),
	})
	if err != nil {
		return err
	}
	bm.freed = true
	return nil
}

// Restrict limits the visible rows to those matching res, replacing any
// earlier restriction. A nil res clears the restriction.
func (t *Table) Restrict(ctx context.Context, res Restriction) error {
	var data []byte
	if res != nil {
		n, err := RestrictionSize(res, propval.Row)
		if err != nil {
			return fmt.Errorf("%v: %w", RopRestrict, err)
		}
		if n > 0xFFFF {
			return fmt.Errorf("%v: %w: restriction of %d bytes", RopRestrict, ErrInvalidArgument, n)
		}
		data, err = AppendRestriction(make([]byte, 0, n), res, propval.Row)
		if err != nil {
			return fmt.Errorf("%v: %w", RopRestrict, err)
		}
	}
	var st TableStatus
	return t.call(ctx, &Call{
		Rop:      RopRestrict,
		Request:  ropRequest(nil).u8(0).counted(data),
		Response: tableStatusResponse(&st),
	})
}

// ClearRestriction makes all rows visible again. It sends an empty
// restriction, which servers treat as removing the current one.
func (t *Table) ClearRestriction(ctx context.Context) error {
	return t.Restrict(ctx, nil)
}

// SortTable sets the table's sort order.
func (t *Table) SortTable(ctx context.Context, sort SortOrderSet) error {
	if err := sort.validate(); err != nil {
		return fmt.Errorf("%v: %w", RopSortTable, err)
	}
	var st TableStatus
	return t.call(ctx, &Call{
		Rop:      RopSortTable,
		Request:  sort.appendTo(ropRequest(nil).u8(0)),
		Response: tableStatusResponse(&st),
	})
}

// FindRow moves the cursor to the first row at or after origin (before, if
// backward) that matches res, and returns it. If no row matches, it returns
// false and no error.
func (t *Table) FindRow(ctx context.Context, res Restriction, origin Origin, backward bool) (Row, bool, error) {
	if err := t.check(RopFindRow); err != nil {
		return nil, false, err
	}
	if t.columns == nil {
		return nil, false, fmt.Errorf("%v: %w", RopFindRow, ErrNoColumns)
	}
	if origin > OriginEnd {
		return nil, false, fmt.Errorf("%v: %w: origin %v", RopFindRow, ErrInvalidArgument, origin)
	}
	data, err := AppendRestriction(nil, res, propval.Row)
	if err != nil {
		return nil, false, fmt.Errorf("%v: %w", RopFindRow, err)
	}
	if len(data) > 0xFFFF {
		return nil, false, fmt.Errorf("%v: %w: restriction of %d bytes", RopFindRow, ErrInvalidArgument, len(data))
	}
	var flags uint8
	if backward {
		flags |= findRowBackward
	}

	cols := t.columns
	var row Row
	c := &Call{
		Rop:     RopFindRow,
		Request: ropRequest(nil).u8(flags).counted(data).u8(uint8(origin)).counted(nil),
		Response: func(r *propval.Reader) error {
			if _, err := readBool(r); err != nil {
				return err
			}
			has, err := readBool(r)
			if err != nil || !has {
				return err
			}
			row, err = decodeRow(r, cols, propval.Row)
			return err
		},
	}
	err = t.call(ctx, c)
	if c.Status == propval.CodeNotFound {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return row, row != nil, nil
}

// Reset removes the column selection, restriction and sort order, and moves
// the cursor to the beginning.
func (t *Table) Reset(ctx context.Context) error {
	if err := t.call(ctx, &Call{Rop: RopResetTable}); err != nil {
		return err
	}
	t.columns = nil
	return nil
}

// Status returns the state of the table's asynchronous operations.
func (t *Table) Status(ctx context.Context) (TableStatus, error) {
	var st TableStatus
	err := t.call(ctx, &Call{Rop: RopGetStatus, Response: tableStatusResponse(&st)})
	return st, err
}

// Release frees the server handle. Every later call on the table, or with
// one of its bookmarks, fails with ErrHandleMisuse.
func (t *Table) Release(ctx context.Context) error {
	if err := t.call(ctx, &Call{Rop: RopRelease}); err != nil {
		return err
	}
	t.released = true
	t.columns = nil
	return nil
}
