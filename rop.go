package mapi

import (
	"encoding/binary"
	"fmt"

	"github.com/andreyvit/mapi/propval"
)

// RopID identifies a remote operation (MS-OXCROPS 2.2.1).
type RopID uint8

const (
	RopRelease         RopID = 0x01
	RopSetColumns      RopID = 0x12
	RopSortTable       RopID = 0x13
	RopRestrict        RopID = 0x14
	RopQueryRows       RopID = 0x15
	RopGetStatus       RopID = 0x16
	RopQueryPosition   RopID = 0x17
	RopSeekRow         RopID = 0x18
	RopSeekRowBookmark RopID = 0x19
	RopSeekRowFraction RopID = 0x1A
	RopCreateBookmark  RopID = 0x1B
	RopQueryColumnsAll RopID = 0x37
	RopAbort           RopID = 0x38
	RopFindRow         RopID = 0x4F
	RopResetTable      RopID = 0x81
	RopFreeBookmark    RopID = 0x89
)

var ropNames = map[RopID]string{
	RopRelease:         "RopRelease",
	RopSetColumns:      "RopSetColumns",
	RopSortTable:       "RopSortTable",
	RopRestrict:        "RopRestrict",
	RopQueryRows:       "RopQueryRows",
	RopGetStatus:       "RopGetStatus",
	RopQueryPosition:   "RopQueryPosition",
	RopSeekRow:         "RopSeekRow",
	RopSeekRowBookmark: "RopSeekRowBookmark",
	RopSeekRowFraction: "RopSeekRowFractional",
	RopCreateBookmark:  "RopCreateBookmark",
	RopQueryColumnsAll: "RopQueryColumnsAll",
	RopAbort:           "RopAbort",
	RopFindRow:         "RopFindRow",
	RopResetTable:      "RopResetTable",
	RopFreeBookmark:    "RopFreeBookmark",
}

func (id RopID) String() string {
	if s, ok := ropNames[id]; ok {
		return s
	}
	return fmt.Sprintf("Rop(0x%02X)", uint8(id))
}

// hasResponse is false for the few ROPs the server never answers.
func (id RopID) hasResponse() bool {
	return id != RopRelease
}

const (
	ropSizeLen   = 2
	maxRopBuffer = 0x8000
)

// Call is one ROP within a request buffer.
//
// Request holds the ROP-specific request fields that follow the common
// header. On success, Response is invoked to decode the ROP-specific response
// fields; it must consume exactly the bytes belonging to this ROP, since ROP
// responses are not length-prefixed. Status receives the ReturnValue.
type Call struct {
	Rop         RopID
	HandleIndex uint8
	Request     []byte
	Response    func(r *propval.Reader) error

	Status propval.ErrorCode
}

func (c *Call) String() string {
	return fmt.Sprintf("%v[%d]", c.Rop, c.HandleIndex)
}

// appendRopBuffer lays out RopSize, RopsList and ServerObjectHandleTable.
func appendRopBuffer(buf []byte, logonID uint8, handles []uint32, calls []*Call) ([]byte, error) {
	start := len(buf)
	buf = append(buf, 0, 0)
	for _, c := range calls {
		if int(c.HandleIndex) >= len(handles) {
			return buf[:start], fmt.Errorf("%v: %w: handle index %d out of %d handles", c.Rop, ErrInvalidArgument, c.HandleIndex, len(handles))
		}
		buf = append(buf, byte(c.Rop), logonID, c.HandleIndex)
		buf = append(buf, c.Request...)
	}
	size := len(buf) - start
	if size > maxRopBuffer {
		return buf[:start], fmt.Errorf("%w: ROP buffer of %d bytes exceeds %d", ErrInvalidArgument, size, maxRopBuffer)
	}
	binary.LittleEndian.PutUint16(buf[start:], uint16(size))
	for _, h := range handles {
		buf = binary.LittleEndian.AppendUint32(buf, h)
	}
	return buf, nil
}

// decodeRopBuffer splits a response buffer, filling each call's Status and
// running its decoder. It returns the first failure status as a
// *ProtocolError after every response has been consumed.
func decodeRopBuffer(data []byte, calls []*Call) (handles []uint32, err error) {
	r := propval.NewReader(data)
	size, err := r.Uint16()
	if err != nil {
		return nil, &ResponseError{firstRop(calls), err}
	}
	if int(size) < ropSizeLen || int(size) > len(data) {
		return nil, &ResponseError{firstRop(calls), fmt.Errorf("%w: RopSize %d in %d-byte buffer", propval.ErrCorrupt, size, len(data))}
	}
	ropsEnd := int(size)
	ops := propval.NewReader(data[:ropsEnd])
	ops.Seek(ropSizeLen)

	var failed *ProtocolError
	for _, c := range calls {
		if !c.Rop.hasResponse() {
			continue
		}
		if err := decodeRopResponse(ops, c); err != nil {
			return nil, &ResponseError{c.Rop, err}
		}
		if c.Status.Failed() && failed == nil {
			failed = &ProtocolError{c.Rop, c.Status}
		}
	}
	if ops.Len() != 0 {
		return nil, &ResponseError{lastRop(calls), fmt.Errorf("%w: %d trailing bytes in RopsList", propval.ErrCorrupt, ops.Len())}
	}

	r.Seek(ropsEnd)
	if r.Len()%4 != 0 {
		return nil, &ResponseError{lastRop(calls), fmt.Errorf("%w: handle table of %d bytes", propval.ErrCorrupt, r.Len())}
	}
	for r.Len() > 0 {
		handles = append(handles, must(r.Uint32()))
	}
	if failed != nil {
		return handles, failed
	}
	return handles, nil
}

func decodeRopResponse(r *propval.Reader, c *Call) error {
	id, err := r.Uint8()
	if err != nil {
		return err
	}
	if RopID(id) != c.Rop {
		return fmt.Errorf("%w: got response for %v", propval.ErrCorrupt, RopID(id))
	}
	if _, err := r.Uint8(); err != nil {
		return err
	}
	status, err := r.Uint32()
	if err != nil {
		return err
	}
	c.Status = propval.ErrorCode(status)
	if c.Status.Failed() || c.Response == nil {
		return nil
	}
	return c.Response(r)
}

func firstRop(calls []*Call) RopID {
	if len(calls) == 0 {
		return 0
	}
	return calls[0].Rop
}

func lastRop(calls []*Call) RopID {
	if len(calls) == 0 {
		return 0
	}
	return calls[len(calls)-1].Rop
}

// ropRequest accumulates the request fields of one ROP.
type ropRequest []byte

func (b ropRequest) u8(v uint8) ropRequest {
	return append(b, v)
}

func (b ropRequest) u16(v uint16) ropRequest {
	return binary.LittleEndian.AppendUint16(b, v)
}

func (b ropRequest) u32(v uint32) ropRequest {
	return binary.LittleEndian.AppendUint32(b, v)
}

func (b ropRequest) bool(v bool) ropRequest {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

func (b ropRequest) tags(tags []propval.Tag) ropRequest {
	b = b.u16(uint16(len(tags)))
	for _, t := range tags {
		b = b.u32(uint32(t))
	}
	return b
}

func (b ropRequest) counted(data []byte) ropRequest {
	b = b.u16(uint16(len(data)))
	return append(b, data...)
}

func readTags(r *propval.Reader) ([]propval.Tag, error) {
	n, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	if int(n)*4 > r.Len() {
		return nil, fmt.Errorf("%w: %d tags in %d bytes", propval.ErrTruncated, n, r.Len())
	}
	tags := make([]propval.Tag, n)
	for i := range tags {
		tags[i] = must(r.Tag())
	}
	return tags, nil
}

func readCounted(r *propval.Reader) ([]byte, error) {
	start := r.Off()
	n, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	b, err := r.Take(int(n))
	if err != nil {
		r.Seek(start)
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func readBool(r *propval.Reader) (bool, error) {
	b, err := r.Uint8()
	return b != 0, err
}
