package propval

import "fmt"

// Type is a property type code, the low 16 bits of a Tag.
type Type uint16

const (
	TypeUnspecified  Type = 0x0000
	TypeNull         Type = 0x0001
	TypeInt16        Type = 0x0002
	TypeInt32        Type = 0x0003
	TypeFloat32      Type = 0x0004
	TypeFloat64      Type = 0x0005
	TypeCurrency     Type = 0x0006
	TypeFloatingTime Type = 0x0007
	TypeError        Type = 0x000A
	TypeBoolean      Type = 0x000B
	TypeObject       Type = 0x000D
	TypeInt64        Type = 0x0014
	TypeString8      Type = 0x001E
	TypeUnicode      Type = 0x001F
	TypeTime         Type = 0x0040
	TypeGUID         Type = 0x0048
	TypeServerID     Type = 0x00FB
	TypeRestriction  Type = 0x00FD
	TypeRuleAction   Type = 0x00FE
	TypeBinary       Type = 0x0102

	MultiValued Type = 0x1000

	TypeMVInt16        = MultiValued | TypeInt16
	TypeMVInt32        = MultiValued | TypeInt32
	TypeMVFloat32      = MultiValued | TypeFloat32
	TypeMVFloat64      = MultiValued | TypeFloat64
	TypeMVCurrency     = MultiValued | TypeCurrency
	TypeMVFloatingTime = MultiValued | TypeFloatingTime
	TypeMVInt64        = MultiValued | TypeInt64
	TypeMVString8      = MultiValued | TypeString8
	TypeMVUnicode      = MultiValued | TypeUnicode
	TypeMVTime         = MultiValued | TypeTime
	TypeMVGUID         = MultiValued | TypeGUID
	TypeMVBinary       = MultiValued | TypeBinary
)

var typeNames = map[Type]string{
	TypeUnspecified:  "PT_UNSPECIFIED",
	TypeNull:         "PT_NULL",
	TypeInt16:        "PT_I2",
	TypeInt32:        "PT_LONG",
	TypeFloat32:      "PT_FLOAT",
	TypeFloat64:      "PT_DOUBLE",
	TypeCurrency:     "PT_CURRENCY",
	TypeFloatingTime: "PT_APPTIME",
	TypeError:        "PT_ERROR",
	TypeBoolean:      "PT_BOOLEAN",
	TypeObject:       "PT_OBJECT",
	TypeInt64:        "PT_I8",
	TypeString8:      "PT_STRING8",
	TypeUnicode:      "PT_UNICODE",
	TypeTime:         "PT_SYSTIME",
	TypeGUID:         "PT_CLSID",
	TypeServerID:     "PT_SVREID",
	TypeRestriction:  "PT_SRESTRICT",
	TypeRuleAction:   "PT_ACTIONS",
	TypeBinary:       "PT_BINARY",
}

// IsMulti reports whether t is a multi-valued type.
func (t Type) IsMulti() bool {
	return t&MultiValued != 0
}

// Scalar strips the multi-valued flag.
func (t Type) Scalar() Type {
	return t &^ MultiValued
}

// Known reports whether the codec can decode and encode values of this type.
func (t Type) Known() bool {
	switch t {
	case TypeNull, TypeInt16, TypeInt32, TypeFloat32, TypeFloat64, TypeCurrency,
		TypeFloatingTime, TypeError, TypeBoolean, TypeObject, TypeInt64,
		TypeString8, TypeUnicode, TypeTime, TypeGUID, TypeServerID, TypeBinary:
		return true
	case TypeMVInt16, TypeMVInt32, TypeMVFloat32, TypeMVFloat64, TypeMVCurrency,
		TypeMVFloatingTime, TypeMVInt64, TypeMVString8, TypeMVUnicode, TypeMVTime,
		TypeMVGUID, TypeMVBinary:
		return true
	default:
		return false
	}
}

// fixedSize returns the wire size of fixed-width scalar types, or 0.
func (t Type) fixedSize() int {
	switch t {
	case TypeInt16:
		return 2
	case TypeNull, TypeInt32, TypeFloat32, TypeError, TypeObject:
		return 4
	case TypeFloat64, TypeCurrency, TypeFloatingTime, TypeInt64, TypeTime:
		return 8
	case TypeGUID:
		return 16
	default:
		return 0
	}
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	if t.IsMulti() {
		if s, ok := typeNames[t.Scalar()]; ok {
			return "PT_MV_" + s[3:]
		}
	}
	return fmt.Sprintf("PT_0x%04X", uint16(t))
}
