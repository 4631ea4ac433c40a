package propval

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Append appends the wire form of v's data (without the tag).
func Append(buf []byte, v Value, f Format) ([]byte, error) {
	if err := v.Check(); err != nil {
		return buf, err
	}
	orig := len(buf)
	buf, err := appendData(buf, v.Tag, v.Data, f)
	if err != nil {
		return buf[:orig], err
	}
	return buf, nil
}

// AppendTagged appends v's tag followed by its data.
func AppendTagged(buf []byte, v Value, f Format) ([]byte, error) {
	if err := v.Check(); err != nil {
		return buf, err
	}
	orig := len(buf)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(v.Tag))
	buf, err := appendData(buf, v.Tag, v.Data, f)
	if err != nil {
		return buf[:orig], err
	}
	return buf, nil
}

// Size returns the number of bytes Append would produce, without encoding.
func Size(v Value, f Format) (int, error) {
	if err := v.Check(); err != nil {
		return 0, err
	}
	return dataSize(v.Tag, v.Data, f)
}

// SizeTagged returns the number of bytes AppendTagged would produce.
func SizeTagged(v Value, f Format) (int, error) {
	n, err := Size(v, f)
	return 4 + n, err
}

func appendData(buf []byte, tag Tag, data any, f Format) ([]byte, error) {
	le := binary.LittleEndian
	switch d := data.(type) {
	case nil:
		return le.AppendUint32(buf, 0), nil
	case int16:
		return le.AppendUint16(buf, uint16(d)), nil
	case int32:
		return le.AppendUint32(buf, uint32(d)), nil
	case uint32:
		return le.AppendUint32(buf, d), nil
	case float32:
		return le.AppendUint32(buf, math.Float32bits(d)), nil
	case float64:
		return le.AppendUint64(buf, math.Float64bits(d)), nil
	case int64:
		return le.AppendUint64(buf, uint64(d)), nil
	case ErrorCode:
		return le.AppendUint32(buf, uint32(d)), nil
	case bool:
		var b byte
		if d {
			b = 1
		}
		if f == Row {
			return append(buf, b), nil
		}
		return append(buf, b, 0), nil
	case Filetime:
		buf = le.AppendUint32(buf, d.Low)
		return le.AppendUint32(buf, d.High), nil
	case GUID:
		return AppendGUID(buf, d), nil
	case string:
		return appendString(buf, tag, d, f)
	case []byte:
		return appendBinary(buf, tag, d, f)
	case []int16:
		return appendMulti(buf, tag, d, f)
	case []int32:
		return appendMulti(buf, tag, d, f)
	case []float32:
		return appendMulti(buf, tag, d, f)
	case []float64:
		return appendMulti(buf, tag, d, f)
	case []int64:
		return appendMulti(buf, tag, d, f)
	case []string:
		return appendMulti(buf, tag, d, f)
	case []Filetime:
		return appendMulti(buf, tag, d, f)
	case []GUID:
		return appendMulti(buf, tag, d, f)
	case [][]byte:
		return appendMulti(buf, tag, d, f)
	default:
		return buf, fmt.Errorf("%w: %v holds %T", ErrTypeMismatch, tag, data)
	}
}

func appendMulti[T any](buf []byte, tag Tag, vals []T, f Format) ([]byte, error) {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(vals)))
	var err error
	for _, v := range vals {
		buf, err = appendData(buf, tag, v, f)
		if err != nil {
			return buf, err
		}
	}
	return buf, nil
}

func appendString(buf []byte, tag Tag, s string, f Format) ([]byte, error) {
	unicode := tag.Type().Scalar() == TypeUnicode
	if f == Row {
		if strings.IndexByte(s, 0) >= 0 {
			return buf, fmt.Errorf("%v: string with embedded NUL cannot be encoded in row format", tag)
		}
		if unicode {
			buf = append(buf, EncodeUTF16(s)...)
			return append(buf, 0, 0), nil
		}
		buf = append(buf, s...)
		return append(buf, 0), nil
	}
	if unicode {
		b := EncodeUTF16(s)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b)))
		return append(buf, b...), nil
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...), nil
}

func appendBinary(buf []byte, tag Tag, b []byte, f Format) ([]byte, error) {
	if f == Row {
		if len(b) > math.MaxUint16 {
			return buf, fmt.Errorf("%v: %d-byte binary value exceeds row format limit", tag, len(b))
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(b)))
	} else {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b)))
	}
	return append(buf, b...), nil
}

func dataSize(tag Tag, data any, f Format) (int, error) {
	switch d := data.(type) {
	case nil, int32, uint32, float32, ErrorCode:
		return 4, nil
	case int16:
		return 2, nil
	case float64, int64, Filetime:
		return 8, nil
	case GUID:
		return 16, nil
	case bool:
		if f == Row {
			return 1, nil
		}
		return 2, nil
	case string:
		return stringSize(tag, d, f), nil
	case []byte:
		if f == Row {
			if len(d) > math.MaxUint16 {
				return 0, fmt.Errorf("%v: %d-byte binary value exceeds row format limit", tag, len(d))
			}
			return 2 + len(d), nil
		}
		return 4 + len(d), nil
	case []int16:
		return 4 + 2*len(d), nil
	case []int32:
		return 4 + 4*len(d), nil
	case []float32:
		return 4 + 4*len(d), nil
	case []float64:
		return 4 + 8*len(d), nil
	case []int64:
		return 4 + 8*len(d), nil
	case []Filetime:
		return 4 + 8*len(d), nil
	case []GUID:
		return 4 + 16*len(d), nil
	case []string:
		n := 4
		for _, s := range d {
			n += stringSize(tag, s, f)
		}
		return n, nil
	case [][]byte:
		n := 4
		for _, b := range d {
			m, err := dataSize(tag, b, f)
			if err != nil {
				return 0, err
			}
			n += m
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %v holds %T", ErrTypeMismatch, tag, data)
	}
}

func stringSize(tag Tag, s string, f Format) int {
	var n int
	if tag.Type().Scalar() == TypeUnicode {
		n = utf16Len(s)
		if f == Row {
			return n + 2
		}
	} else {
		n = len(s)
		if f == Row {
			return n + 1
		}
	}
	return 4 + n
}
