package propval

import (
	"encoding/binary"
	"math"
)

// Reader is a read cursor over a byte slice. Every read is atomic: it either
// consumes the requested bytes or fails with ErrTruncated and leaves the
// cursor where it was.
type Reader struct {
	buf []byte
	off int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Reset(buf []byte) {
	r.buf = buf
	r.off = 0
}

// Off returns the number of bytes consumed so far.
func (r *Reader) Off() int {
	return r.off
}

// Seek moves the cursor to an offset previously returned by Off.
func (r *Reader) Seek(off int) {
	if off < 0 || off > len(r.buf) {
		panic("propval: seek out of range")
	}
	r.off = off
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.off
}

// Rest returns the unread bytes without consuming them.
func (r *Reader) Rest() []byte {
	return r.buf[r.off:]
}

func (r *Reader) truncated(n int) error {
	return dataErrf(r.buf, r.off, ErrTruncated, "not enough data: %d bytes remaining, %d wanted", r.Len(), n)
}

// Take consumes n bytes. The returned slice aliases the underlying buffer.
func (r *Reader) Take(n int) ([]byte, error) {
	if n < 0 {
		return nil, dataErrf(r.buf, r.off, ErrCorrupt, "negative length %d", n)
	}
	if r.Len() < n {
		return nil, r.truncated(n)
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v, nil
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.Take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.Take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.Take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Uint64() (uint64, error) {
	b, err := r.Take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *Reader) Tag() (Tag, error) {
	v, err := r.Uint32()
	return Tag(v), err
}

// UntilNUL consumes bytes up to and including the first NUL code unit of the
// given width (1 or 2 bytes), returning the bytes before it.
func (r *Reader) UntilNUL(width int) ([]byte, error) {
	rest := r.Rest()
	for i := 0; i+width <= len(rest); i += width {
		if rest[i] == 0 && (width == 1 || rest[i+1] == 0) {
			r.off += i + width
			return rest[:i], nil
		}
	}
	return nil, dataErrf(r.buf, r.off, ErrTruncated, "missing NUL terminator in %d bytes", len(rest))
}

// GUID reads a 16-byte GUID in its 4/2/2/1/1/6 field layout.
func (r *Reader) GUID() (GUID, error) {
	b, err := r.Take(16)
	if err != nil {
		return GUID{}, err
	}
	return guidFromBytes(b), nil
}

func (r *Reader) count(width int) (int, error) {
	var v uint64
	var err error
	start := r.off
	if width == 2 {
		var u uint16
		u, err = r.Uint16()
		v = uint64(u)
	} else {
		var u uint32
		u, err = r.Uint32()
		v = uint64(u)
	}
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 {
		r.off = start
		return 0, dataErrf(r.buf, start, ErrCorrupt, "length %d is out of range", v)
	}
	return int(v), nil
}
