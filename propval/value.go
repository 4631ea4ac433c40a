package propval

import (
	"fmt"
	"strings"
)

// Value is a tagged property value. Data holds the Go representation that
// corresponds to Tag.Type():
//
//	PT_NULL                      nil
//	PT_I2                        int16
//	PT_LONG                      int32
//	PT_FLOAT                     float32
//	PT_DOUBLE, PT_APPTIME        float64
//	PT_CURRENCY, PT_I8           int64
//	PT_ERROR                     ErrorCode
//	PT_BOOLEAN                   bool
//	PT_OBJECT                    uint32
//	PT_STRING8, PT_UNICODE       string
//	PT_SYSTIME                   Filetime
//	PT_CLSID                     GUID
//	PT_BINARY, PT_SVREID         []byte
//
// Multi-valued types hold slices of the scalar representation.
//
// Values produced by Decode own their payload; they never alias the input.
type Value struct {
	Tag  Tag
	Data any
}

// New builds a value and checks that data matches the tag's type.
func New(tag Tag, data any) (Value, error) {
	v := Value{tag, data}
	if err := v.Check(); err != nil {
		return Value{}, err
	}
	return v, nil
}

// Must is like New but panics on mismatch. Intended for literals.
func Must(tag Tag, data any) Value {
	v, err := New(tag, data)
	if err != nil {
		panic(err)
	}
	return v
}

// ErrorValue returns a PT_ERROR value for the given identifier.
func ErrorValue(id uint16, code ErrorCode) Value {
	return Value{MakeTag(id, TypeError), code}
}

// Check verifies that Data has the Go type expected for Tag.Type().
func (v Value) Check() error {
	typ := v.Tag.Type()
	if !typ.Known() {
		return fmt.Errorf("%w 0x%04X in %v", ErrUnknownType, uint16(typ), v.Tag)
	}
	var ok bool
	switch typ {
	case TypeNull:
		ok = v.Data == nil
	case TypeInt16:
		_, ok = v.Data.(int16)
	case TypeInt32:
		_, ok = v.Data.(int32)
	case TypeFloat32:
		_, ok = v.Data.(float32)
	case TypeFloat64, TypeFloatingTime:
		_, ok = v.Data.(float64)
	case TypeCurrency, TypeInt64:
		_, ok = v.Data.(int64)
	case TypeError:
		_, ok = v.Data.(ErrorCode)
	case TypeBoolean:
		_, ok = v.Data.(bool)
	case TypeObject:
		_, ok = v.Data.(uint32)
	case TypeString8, TypeUnicode:
		_, ok = v.Data.(string)
	case TypeTime:
		_, ok = v.Data.(Filetime)
	case TypeGUID:
		_, ok = v.Data.(GUID)
	case TypeBinary, TypeServerID:
		_, ok = v.Data.([]byte)
	case TypeMVInt16:
		_, ok = v.Data.([]int16)
	case TypeMVInt32:
		_, ok = v.Data.([]int32)
	case TypeMVFloat32:
		_, ok = v.Data.([]float32)
	case TypeMVFloat64, TypeMVFloatingTime:
		_, ok = v.Data.([]float64)
	case TypeMVCurrency, TypeMVInt64:
		_, ok = v.Data.([]int64)
	case TypeMVString8, TypeMVUnicode:
		_, ok = v.Data.([]string)
	case TypeMVTime:
		_, ok = v.Data.([]Filetime)
	case TypeMVGUID:
		_, ok = v.Data.([]GUID)
	case TypeMVBinary:
		_, ok = v.Data.([][]byte)
	}
	if !ok {
		return fmt.Errorf("%w: %v holds %T", ErrTypeMismatch, v.Tag, v.Data)
	}
	return nil
}

// IsError reports whether v is a PT_ERROR placeholder, as returned for
// columns the server could not produce.
func (v Value) IsError() bool {
	return v.Tag.Type() == TypeError
}

// ErrorCode returns the code of a PT_ERROR value.
func (v Value) ErrorCode() (ErrorCode, bool) {
	c, ok := v.Data.(ErrorCode)
	return c, ok
}

// AsString returns the value of a string-typed property.
func (v Value) AsString() (string, bool) {
	s, ok := v.Data.(string)
	return s, ok
}

// AsInt64 returns the value of any integer-typed property.
func (v Value) AsInt64() (int64, bool) {
	switch d := v.Data.(type) {
	case int16:
		return int64(d), true
	case int32:
		return int64(d), true
	case int64:
		return d, true
	case uint32:
		return int64(d), true
	default:
		return 0, false
	}
}

func (v Value) AsBool() (bool, bool) {
	b, ok := v.Data.(bool)
	return b, ok
}

func (v Value) AsBytes() ([]byte, bool) {
	b, ok := v.Data.([]byte)
	return b, ok
}

func (v Value) AsFiletime() (Filetime, bool) {
	ft, ok := v.Data.(Filetime)
	return ft, ok
}

func (v Value) String() string {
	var buf strings.Builder
	buf.WriteString(v.Tag.String())
	buf.WriteByte('=')
	switch d := v.Data.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		fmt.Fprintf(&buf, "%q", d)
	case []byte:
		fmt.Fprintf(&buf, "<%d>%x", len(d), d)
	default:
		fmt.Fprintf(&buf, "%v", d)
	}
	return buf.String()
}

// Find returns the first value with the given tag.
func Find(vals []Value, tag Tag) (Value, bool) {
	for _, v := range vals {
		if v.Tag == tag {
			return v, true
		}
	}
	return Value{}, false
}

// FindID returns the first value with the given identifier, regardless of type.
func FindID(vals []Value, id uint16) (Value, bool) {
	for _, v := range vals {
		if v.Tag.ID() == id {
			return v, true
		}
	}
	return Value{}, false
}
