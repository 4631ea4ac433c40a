package mapi

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/andreyvit/mapi/propval"
)

var errConnReset = errors.New("connection reset by peer")

// fakeServer answers ROP buffers from in-memory tables.
type fakeServer struct {
	tables map[uint32]*fakeTable

	// failures is the number of upcoming requests that fail in transport.
	failures int

	// fail forces a status for every ROP of the given kind.
	fail map[RopID]propval.ErrorCode

	// unsupported columns make RopSetColumns return MAPI_W_ERRORS_RETURNED.
	unsupported map[propval.Tag]bool

	requests int
	rops     []RopID
}

type fakeRow struct {
	id    int
	props []propval.Value
}

type fakeTable struct {
	rows      []fakeRow
	columns   []propval.Tag
	filter    Restriction
	pos       int
	bookmarks map[uint32]int // bookmark -> row id, or -1 for end of table
	nextBM    uint32
	released  bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		tables:      make(map[uint32]*fakeTable),
		fail:        make(map[RopID]propval.ErrorCode),
		unsupported: make(map[propval.Tag]bool),
	}
}

func (s *fakeServer) addTable(handle uint32, rows ...[]propval.Value) *fakeTable {
	ft := &fakeTable{bookmarks: make(map[uint32]int), nextBM: 1}
	for i, props := range rows {
		ft.rows = append(ft.rows, fakeRow{i + 1, props})
	}
	s.tables[handle] = ft
	return ft
}

func (ft *fakeTable) deleteRow(id int) {
	ft.rows = slices.DeleteFunc(ft.rows, func(r fakeRow) bool { return r.id == id })
}

func (ft *fakeTable) visible() []fakeRow {
	if ft.filter == nil {
		return ft.rows
	}
	var rows []fakeRow
	for _, r := range ft.rows {
		if Match(ft.filter, r.props) {
			rows = append(rows, r)
		}
	}
	return rows
}

func (ft *fakeTable) project(props []propval.Value) Row {
	row := make(Row, len(ft.columns))
	for i, col := range ft.columns {
		v, ok := lookup(props, col)
		if !ok {
			row[i] = propval.ErrorValue(col.ID(), propval.CodeNotFound)
		} else {
			row[i] = v
		}
	}
	return row
}

func (s *fakeServer) Execute(ctx context.Context, req []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.requests++
	if s.failures > 0 {
		s.failures--
		return nil, errConnReset
	}

	r := propval.NewReader(req)
	size := int(must(r.Uint16()))
	r.Seek(size)
	var handles []uint32
	for r.Len() > 0 {
		handles = append(handles, must(r.Uint32()))
	}

	resp := []byte{0, 0}
	ops := propval.NewReader(req[:size])
	ops.Seek(2)
	for ops.Len() > 0 {
		rop := RopID(must(ops.Uint8()))
		must(ops.Uint8())
		hidx := must(ops.Uint8())
		s.rops = append(s.rops, rop)
		ft := s.tables[handles[hidx]]
		if ft == nil || ft.released {
			return nil, fmt.Errorf("fake: %v on unknown handle 0x%08x", rop, handles[hidx])
		}
		status, payload, err := s.handle(ft, rop, ops)
		if err != nil {
			return nil, fmt.Errorf("fake: %v: %w", rop, err)
		}
		if !rop.hasResponse() {
			continue
		}
		if st, ok := s.fail[rop]; ok {
			status, payload = st, nil
		}
		resp = append(resp, byte(rop), hidx)
		resp = binary.LittleEndian.AppendUint32(resp, uint32(status))
		if !status.Failed() {
			resp = append(resp, payload...)
		}
	}
	binary.LittleEndian.PutUint16(resp, uint16(len(resp)))
	for _, h := range handles {
		resp = binary.LittleEndian.AppendUint32(resp, h)
	}
	return resp, nil
}

func (s *fakeServer) handle(ft *fakeTable, rop RopID, r *propval.Reader) (propval.ErrorCode, []byte, error) {
	var out ropRequest
	switch rop {
	case RopSetColumns:
		must(r.Uint8())
		tags, err := readTags(r)
		if err != nil {
			return 0, nil, err
		}
		ft.columns = tags
		for _, tag := range tags {
			if s.unsupported[tag] {
				return propval.CodeErrorsReturned, out.u8(0), nil
			}
		}
		return propval.CodeSuccess, out.u8(0), nil

	case RopQueryRows:
		flags := must(r.Uint8())
		must(r.Uint8())
		n := int(must(r.Uint16()))
		vis := ft.visible()
		end := min(ft.pos+n, len(vis))
		var data []byte
		for _, row := range vis[ft.pos:end] {
			var err error
			data, err = AppendRow(data, ft.columns, ft.project(row.props), propval.Row)
			if err != nil {
				return 0, nil, err
			}
		}
		count := end - ft.pos
		if flags&queryRowsNoAdvance == 0 {
			ft.pos = end
		}
		origin := OriginCurrent
		if ft.pos == len(vis) {
			origin = OriginEnd
		}
		out = out.u8(uint8(origin)).u16(uint16(count))
		return propval.CodeSuccess, append(out, data...), nil

	case RopQueryPosition:
		return propval.CodeSuccess, out.u32(uint32(ft.pos)).u32(uint32(len(ft.visible()))), nil

	case RopSeekRow:
		origin := Origin(must(r.Uint8()))
		offset := must(r.Int32())
		must(r.Uint8())
		base := ft.pos
		switch origin {
		case OriginBeginning:
			base = 0
		case OriginEnd:
			base = len(ft.visible())
		}
		sought, less := ft.move(base, int(offset))
		return propval.CodeSuccess, out.bool(less).u32(uint32(int32(sought))), nil

	case RopSeekRowFraction:
		num := must(r.Uint32())
		den := must(r.Uint32())
		ft.pos = min(len(ft.visible())*int(num)/int(den), len(ft.visible()))
		return propval.CodeSuccess, nil, nil

	case RopQueryColumnsAll:
		var tags []propval.Tag
		for _, row := range ft.rows {
			for _, v := range row.props {
				if !slices.Contains(tags, v.Tag) {
					tags = append(tags, v.Tag)
				}
			}
		}
		return propval.CodeSuccess, out.tags(tags), nil

	case RopCreateBookmark:
		id := ft.nextBM
		ft.nextBM++
		vis := ft.visible()
		if ft.pos < len(vis) {
			ft.bookmarks[id] = vis[ft.pos].id
		} else {
			ft.bookmarks[id] = -1
		}
		return propval.CodeSuccess, out.counted(binary.LittleEndian.AppendUint32(nil, id)), nil

	case RopSeekRowBookmark:
		bm, err := readCounted(r)
		if err != nil {
			return 0, nil, err
		}
		offset := must(r.Int32())
		must(r.Uint8())
		rowID, ok := ft.bookmarks[binary.LittleEndian.Uint32(bm)]
		if !ok {
			return propval.CodeInvalidBookmark, nil, nil
		}
		base, gone := ft.locate(rowID)
		ft.pos = base
		sought, less := ft.move(base, int(offset))
		return propval.CodeSuccess, out.bool(gone).bool(less).u32(uint32(int32(sought))), nil

	case RopFreeBookmark:
		bm, err := readCounted(r)
		if err != nil {
			return 0, nil, err
		}
		id := binary.LittleEndian.Uint32(bm)
		if _, ok := ft.bookmarks[id]; !ok {
			return propval.CodeInvalidBookmark, nil, nil
		}
		delete(ft.bookmarks, id)
		return propval.CodeSuccess, nil, nil

	case RopRestrict:
		must(r.Uint8())
		data, err := readCounted(r)
		if err != nil {
			return 0, nil, err
		}
		ft.filter = nil
		if len(data) > 0 {
			if ft.filter, err = DecodeRestriction(propval.NewReader(data), propval.Row); err != nil {
				return 0, nil, err
			}
		}
		ft.pos = 0
		return propval.CodeSuccess, out.u8(uint8(TableComplete)), nil

	case RopSortTable:
		must(r.Uint8())
		n := must(r.Uint16())
		must(r.Uint16())
		must(r.Uint16())
		var orders []SortOrder
		for range n {
			tag := must(r.Tag())
			dir := must(r.Uint8())
			orders = append(orders, SortOrder{tag, SortDirection(dir)})
		}
		slices.SortStableFunc(ft.rows, func(a, b fakeRow) int {
			for _, o := range orders {
				va, _ := lookup(a.props, o.Tag)
				vb, _ := lookup(b.props, o.Tag)
				c, _ := compareValues(va, vb)
				if o.Direction == Descending {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
		ft.pos = 0
		return propval.CodeSuccess, out.u8(uint8(TableComplete)), nil

	case RopFindRow:
		flags := must(r.Uint8())
		data, err := readCounted(r)
		if err != nil {
			return 0, nil, err
		}
		origin := Origin(must(r.Uint8()))
		if _, err := readCounted(r); err != nil {
			return 0, nil, err
		}
		res, err := DecodeRestriction(propval.NewReader(data), propval.Row)
		if err != nil {
			return 0, nil, err
		}
		vis := ft.visible()
		step, i := 1, ft.pos
		switch origin {
		case OriginBeginning:
			i = 0
		case OriginEnd:
			i = len(vis)
		}
		if flags&findRowBackward != 0 {
			step, i = -1, i-1
		}
		for ; i >= 0 && i < len(vis); i += step {
			if Match(res, vis[i].props) {
				ft.pos = i
				rowData, err := AppendRow(nil, ft.columns, ft.project(vis[i].props), propval.Row)
				if err != nil {
					return 0, nil, err
				}
				return propval.CodeSuccess, append(out.bool(false).bool(true), rowData...), nil
			}
		}
		return propval.CodeNotFound, nil, nil

	case RopResetTable:
		ft.columns, ft.filter, ft.pos = nil, nil, 0
		return propval.CodeSuccess, nil, nil

	case RopGetStatus:
		return propval.CodeSuccess, out.u8(uint8(TableComplete)), nil

	case RopRelease:
		ft.released = true
		return propval.CodeSuccess, nil, nil

	default:
		return 0, nil, fmt.Errorf("unsupported ROP")
	}
}

// move applies offset from base, clamping to the visible rows.
func (ft *fakeTable) move(base, offset int) (sought int, less bool) {
	n := len(ft.visible())
	target := base + offset
	if target < 0 {
		target, less = 0, true
	} else if target > n {
		target, less = n, true
	}
	sought = target - ft.pos
	ft.pos = target
	return sought, less
}

// locate returns the visible index of a bookmarked row, or of the row that
// now follows it if it is gone.
func (ft *fakeTable) locate(rowID int) (int, bool) {
	vis := ft.visible()
	if rowID < 0 {
		return len(vis), false
	}
	for i, r := range vis {
		if r.id == rowID {
			return i, false
		}
	}
	for i, r := range vis {
		if r.id > rowID {
			return i, true
		}
	}
	return len(vis), true
}
