package propval

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// GUID is a globally unique identifier in its Windows field layout.
type GUID struct {
	TimeLow               uint32
	TimeMid               uint16
	TimeHiAndVersion      uint16
	ClockSeqHiAndReserved uint8
	ClockSeqLow           uint8
	Node                  [6]byte
}

func guidFromBytes(b []byte) GUID {
	var g GUID
	g.TimeLow = binary.LittleEndian.Uint32(b[0:])
	g.TimeMid = binary.LittleEndian.Uint16(b[4:])
	g.TimeHiAndVersion = binary.LittleEndian.Uint16(b[6:])
	g.ClockSeqHiAndReserved = b[8]
	g.ClockSeqLow = b[9]
	copy(g.Node[:], b[10:16])
	return g
}

// AppendGUID appends the 16-byte wire form of g.
func AppendGUID(buf []byte, g GUID) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, g.TimeLow)
	buf = binary.LittleEndian.AppendUint16(buf, g.TimeMid)
	buf = binary.LittleEndian.AppendUint16(buf, g.TimeHiAndVersion)
	buf = append(buf, g.ClockSeqHiAndReserved, g.ClockSeqLow)
	return append(buf, g.Node[:]...)
}

func (g GUID) IsZero() bool {
	return g == GUID{}
}

func (g GUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%x", g.TimeLow, g.TimeMid, g.TimeHiAndVersion, g.ClockSeqHiAndReserved, g.ClockSeqLow, g.Node[:])
}

// ParseGUID parses the canonical form, with or without braces.
func ParseGUID(s string) (GUID, error) {
	orig := s
	s = strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
	if len(s) != 36 || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return GUID{}, fmt.Errorf("invalid GUID %q", orig)
	}
	raw, err := hex.DecodeString(s[0:8] + s[9:13] + s[14:18] + s[19:23] + s[24:])
	if err != nil {
		return GUID{}, fmt.Errorf("invalid GUID %q", orig)
	}
	var g GUID
	g.TimeLow = binary.BigEndian.Uint32(raw[0:])
	g.TimeMid = binary.BigEndian.Uint16(raw[4:])
	g.TimeHiAndVersion = binary.BigEndian.Uint16(raw[6:])
	g.ClockSeqHiAndReserved = raw[8]
	g.ClockSeqLow = raw[9]
	copy(g.Node[:], raw[10:])
	return g, nil
}

func MustParseGUID(s string) GUID {
	g, err := ParseGUID(s)
	if err != nil {
		panic(err)
	}
	return g
}
