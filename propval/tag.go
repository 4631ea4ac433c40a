package propval

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag is a property tag: identifier in the high 16 bits, Type in the low 16 bits.
type Tag uint32

// NamedIDBase is the first identifier that refers to a named property.
const NamedIDBase uint16 = 0x8000

func MakeTag(id uint16, typ Type) Tag {
	return Tag(uint32(id)<<16 | uint32(typ))
}

func (t Tag) Type() Type {
	return Type(t & 0xFFFF)
}

func (t Tag) ID() uint16 {
	return uint16(t >> 16)
}

// IsNamed reports whether the identifier refers to the session's named property map.
func (t Tag) IsNamed() bool {
	return t.ID() >= NamedIDBase
}

func (t Tag) WithType(typ Type) Tag {
	return MakeTag(t.ID(), typ)
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("0x%08X", uint32(t))
}

// ParseTag accepts a well-known tag name (PidTagSubject) or a hex value (0x0037001F).
func ParseTag(s string) (Tag, error) {
	if t, ok := tagsByName[s]; ok {
		return t, nil
	}
	hex := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid property tag %q", s)
	}
	return Tag(v), nil
}
