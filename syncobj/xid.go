package syncobj

import (
	"encoding/binary"
	"fmt"

	"github.com/andreyvit/mapi/propval"
)

// XID is a replica-namespaced identifier (MS-OXCFXICS 2.2.2.2), the form
// of PidTagSourceKey and PidTagChangeKey.
type XID struct {
	Namespace propval.GUID
	LocalID   []byte
}

// ParseXID decodes a 17 to 24 byte XID.
func ParseXID(b []byte) (XID, error) {
	if len(b) < 17 || len(b) > 24 {
		return XID{}, fmt.Errorf("%w: XID of %d bytes", propval.ErrCorrupt, len(b))
	}
	r := propval.NewReader(b)
	g, err := r.GUID()
	if err != nil {
		return XID{}, err
	}
	return XID{g, append([]byte(nil), r.Rest()...)}, nil
}

// GlobalCounter returns the LocalID of a 22-byte XID as a number. Such a
// LocalID is a GLOBCNT, stored big-endian.
func (x XID) GlobalCounter() (uint64, bool) {
	if len(x.LocalID) != 6 {
		return 0, false
	}
	var buf [8]byte
	copy(buf[2:], x.LocalID)
	return binary.BigEndian.Uint64(buf[:]), true
}

func (x XID) Bytes() []byte {
	return append(propval.AppendGUID(nil, x.Namespace), x.LocalID...)
}

func (x XID) String() string {
	return fmt.Sprintf("%v:%x", x.Namespace, x.LocalID)
}

// ParsePredecessorChangeList decodes a PidTagPredecessorChangeList value:
// a sequence of XIDs, each preceded by its 1-byte size.
func ParsePredecessorChangeList(b []byte) ([]XID, error) {
	r := propval.NewReader(b)
	var result []XID
	for r.Len() > 0 {
		size, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		raw, err := r.Take(int(size))
		if err != nil {
			return nil, fmt.Errorf("XID %d: %w", len(result), err)
		}
		x, err := ParseXID(raw)
		if err != nil {
			return nil, fmt.Errorf("XID %d: %w", len(result), err)
		}
		result = append(result, x)
	}
	return result, nil
}

// AppendPredecessorChangeList encodes xids the way ParsePredecessorChangeList
// reads them.
func AppendPredecessorChangeList(buf []byte, xids []XID) []byte {
	for _, x := range xids {
		buf = append(buf, byte(16+len(x.LocalID)))
		buf = append(buf, x.Bytes()...)
	}
	return buf
}
