package propval

import (
	"bytes"
	"math"

	"golang.org/x/text/encoding/unicode"
)

// Format selects one of the two wire layouts property values come in.
type Format uint8

const (
	// Stream is the inline-tagged layout of Fast Transfer streams: 2-byte
	// booleans, 4-byte length prefixes on strings and binaries.
	Stream Format = iota

	// Row is the layout of ROP row buffers and restriction literals: 1-byte
	// booleans, NUL-terminated strings, 2-byte binary counts.
	Row
)

func (f Format) String() string {
	switch f {
	case Stream:
		return "stream"
	case Row:
		return "row"
	default:
		return "invalid"
	}
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Decode reads the value of the given tag. It either consumes the complete
// value or leaves r untouched.
func Decode(r *Reader, tag Tag, f Format) (Value, error) {
	start := r.off
	data, err := decodeData(r, tag.Type(), f)
	if err != nil {
		r.off = start
		return Value{}, err
	}
	return Value{tag, data}, nil
}

// DecodeTagged reads a tag followed by its value.
func DecodeTagged(r *Reader, f Format) (Value, error) {
	start := r.off
	tag, err := r.Tag()
	if err != nil {
		return Value{}, err
	}
	v, err := Decode(r, tag, f)
	if err != nil {
		r.off = start
		return Value{}, err
	}
	return v, nil
}

// DecodeBytes decodes a single value occupying all of data.
func DecodeBytes(data []byte, tag Tag, f Format) (Value, error) {
	r := NewReader(data)
	v, err := Decode(r, tag, f)
	if err != nil {
		return Value{}, err
	}
	if r.Len() != 0 {
		return Value{}, dataErrf(data, r.off, ErrCorrupt, "%d trailing bytes after %v", r.Len(), tag)
	}
	return v, nil
}

func decodeData(r *Reader, typ Type, f Format) (any, error) {
	if typ.IsMulti() {
		return decodeMulti(r, typ, f)
	}
	switch typ {
	case TypeNull:
		_, err := r.Take(4)
		return nil, err
	case TypeInt16:
		v, err := r.Uint16()
		return int16(v), err
	case TypeInt32:
		v, err := r.Uint32()
		return int32(v), err
	case TypeFloat32:
		v, err := r.Uint32()
		return math.Float32frombits(v), err
	case TypeFloat64, TypeFloatingTime:
		v, err := r.Uint64()
		return math.Float64frombits(v), err
	case TypeCurrency, TypeInt64:
		v, err := r.Uint64()
		return int64(v), err
	case TypeError:
		v, err := r.Uint32()
		return ErrorCode(v), err
	case TypeBoolean:
		return readBool(r, f)
	case TypeObject:
		return r.Uint32()
	case TypeString8:
		return readString8(r, f)
	case TypeUnicode:
		return readUnicode(r, f)
	case TypeTime:
		return readFiletime(r)
	case TypeGUID:
		return r.GUID()
	case TypeBinary, TypeServerID:
		return readBinary(r, f)
	default:
		return nil, dataErrf(r.buf, r.off, ErrUnknownType, "unknown property type 0x%04X", uint16(typ))
	}
}

func decodeMulti(r *Reader, typ Type, f Format) (any, error) {
	switch typ {
	case TypeMVInt16:
		return readMulti(r, 2, func(r *Reader) (int16, error) {
			v, err := r.Uint16()
			return int16(v), err
		})
	case TypeMVInt32:
		return readMulti(r, 4, func(r *Reader) (int32, error) {
			return r.Int32()
		})
	case TypeMVFloat32:
		return readMulti(r, 4, func(r *Reader) (float32, error) {
			v, err := r.Uint32()
			return math.Float32frombits(v), err
		})
	case TypeMVFloat64, TypeMVFloatingTime:
		return readMulti(r, 8, func(r *Reader) (float64, error) {
			v, err := r.Uint64()
			return math.Float64frombits(v), err
		})
	case TypeMVCurrency, TypeMVInt64:
		return readMulti(r, 8, func(r *Reader) (int64, error) {
			v, err := r.Uint64()
			return int64(v), err
		})
	case TypeMVString8:
		return readMulti(r, minStringSize(f, 1), func(r *Reader) (string, error) {
			return readString8(r, f)
		})
	case TypeMVUnicode:
		return readMulti(r, minStringSize(f, 2), func(r *Reader) (string, error) {
			return readUnicode(r, f)
		})
	case TypeMVTime:
		return readMulti(r, 8, readFiletime)
	case TypeMVGUID:
		return readMulti(r, 16, (*Reader).GUID)
	case TypeMVBinary:
		return readMulti(r, binaryCountWidth(f), func(r *Reader) ([]byte, error) {
			return readBinary(r, f)
		})
	default:
		return nil, dataErrf(r.buf, r.off, ErrUnknownType, "unknown property type 0x%04X", uint16(typ))
	}
}

// readMulti reads a 32-bit element count followed by the elements. minSize
// is the smallest possible element size; it bounds the allocation.
func readMulti[T any](r *Reader, minSize int, read func(r *Reader) (T, error)) ([]T, error) {
	n, err := r.count(4)
	if err != nil {
		return nil, err
	}
	if n*minSize > r.Len() {
		return nil, r.truncated(n * minSize)
	}
	vals := make([]T, n)
	for i := range vals {
		vals[i], err = read(r)
		if err != nil {
			return nil, err
		}
	}
	return vals, nil
}

func minStringSize(f Format, width int) int {
	if f == Row {
		return width
	}
	return 4
}

func binaryCountWidth(f Format) int {
	if f == Row {
		return 2
	}
	return 4
}

func readBool(r *Reader, f Format) (bool, error) {
	if f == Row {
		v, err := r.Uint8()
		return v != 0, err
	}
	b, err := r.Take(2)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func readFiletime(r *Reader) (Filetime, error) {
	v, err := r.Uint64()
	if err != nil {
		return Filetime{}, err
	}
	return FiletimeFromTicks(v), nil
}

func readString8(r *Reader, f Format) (string, error) {
	if f == Row {
		b, err := r.UntilNUL(1)
		return string(b), err
	}
	b, err := readCounted(r, 4)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(b, []byte{0})), nil
}

func readUnicode(r *Reader, f Format) (string, error) {
	start := r.off
	var b []byte
	var err error
	if f == Row {
		b, err = r.UntilNUL(2)
	} else {
		b, err = readCounted(r, 4)
		if err == nil && len(b)%2 != 0 {
			r.off = start
			return "", dataErrf(r.buf, start, ErrCorrupt, "odd UTF-16 byte count %d", len(b))
		}
		if n := len(b); n >= 2 && b[n-2] == 0 && b[n-1] == 0 {
			b = b[:n-2]
		}
	}
	if err != nil {
		return "", err
	}
	s, err := DecodeUTF16(b)
	if err != nil {
		r.off = start
		return "", dataErrf(r.buf, start, ErrCorrupt, "invalid UTF-16")
	}
	return s, nil
}

func readBinary(r *Reader, f Format) ([]byte, error) {
	b, err := readCounted(r, binaryCountWidth(f))
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}

func readCounted(r *Reader, width int) ([]byte, error) {
	start := r.off
	n, err := r.count(width)
	if err != nil {
		return nil, err
	}
	b, err := r.Take(n)
	if err != nil {
		r.off = start
		return nil, err
	}
	return b, nil
}

// DecodeUTF16 converts UTF-16LE bytes to a UTF-8 string.
func DecodeUTF16(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// EncodeUTF16 converts a UTF-8 string to UTF-16LE bytes.
func EncodeUTF16(s string) []byte {
	if s == "" {
		return nil
	}
	out, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		panic(err)
	}
	return out
}

// utf16Len returns the number of bytes EncodeUTF16 produces for s.
func utf16Len(s string) int {
	n := 0
	for _, c := range s {
		if c >= 0x10000 {
			n += 4
		} else {
			n += 2
		}
	}
	return n
}
