// Package namedprop maps named properties (a property set GUID plus a
// numeric LID or a string name) to the per-session identifiers in the
// 0x8000-0xFFFE range that appear in property tags.
package namedprop

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/andreyvit/mapi/propval"
)

type Kind uint8

const (
	KindID     Kind = 0 // MNID_ID
	KindString Kind = 1 // MNID_STRING
)

// Property sets from MS-OXPROPS.
var (
	PSMAPI            = propval.MustParseGUID("00020328-0000-0000-C000-000000000046")
	PSPublicStrings   = propval.MustParseGUID("00020329-0000-0000-C000-000000000046")
	PSInternetHeaders = propval.MustParseGUID("00020386-0000-0000-C000-000000000046")
	PSETIDAppointment = propval.MustParseGUID("00062002-0000-0000-C000-000000000046")
	PSETIDTask        = propval.MustParseGUID("00062003-0000-0000-C000-000000000046")
	PSETIDAddress     = propval.MustParseGUID("00062004-0000-0000-C000-000000000046")
	PSETIDCommon      = propval.MustParseGUID("00062008-0000-0000-C000-000000000046")
	PSETIDLog         = propval.MustParseGUID("0006200A-0000-0000-C000-000000000046")
	PSETIDNote        = propval.MustParseGUID("0006200E-0000-0000-C000-000000000046")
)

var ErrConflict = errors.New("conflicting named property mapping")

// Name identifies a named property.
type Name struct {
	GUID propval.GUID
	Kind Kind
	LID  uint32
	Name string
}

func ByLID(guid propval.GUID, lid uint32) Name {
	return Name{GUID: guid, Kind: KindID, LID: lid}
}

func ByName(guid propval.GUID, name string) Name {
	return Name{GUID: guid, Kind: KindString, Name: name}
}

func (n Name) String() string {
	if n.Kind == KindString {
		return fmt.Sprintf("{%v}:%q", n.GUID, n.Name)
	}
	return fmt.Sprintf("{%v}:0x%04X", n.GUID, n.LID)
}

// Decode reads a named property descriptor: GUID, kind byte, then a 32-bit
// LID or a NUL-terminated UTF-16LE name. It either consumes the complete
// descriptor or leaves r untouched.
func Decode(r *propval.Reader) (Name, error) {
	start := r.Off()
	n, err := decode(r)
	if err != nil {
		r.Seek(start)
		return Name{}, err
	}
	return n, nil
}

func decode(r *propval.Reader) (Name, error) {
	var n Name
	var err error
	n.GUID, err = r.GUID()
	if err != nil {
		return n, err
	}
	kind, err := r.Uint8()
	if err != nil {
		return n, err
	}
	n.Kind = Kind(kind)
	switch n.Kind {
	case KindID:
		n.LID, err = r.Uint32()
		return n, err
	case KindString:
		raw, err := r.UntilNUL(2)
		if err != nil {
			return n, err
		}
		n.Name, err = propval.DecodeUTF16(raw)
		if err != nil {
			return n, fmt.Errorf("%w: named property name: %v", propval.ErrCorrupt, err)
		}
		return n, nil
	default:
		return n, fmt.Errorf("%w: named property kind %d", propval.ErrCorrupt, kind)
	}
}

// Append writes the descriptor in the form Decode reads.
func Append(buf []byte, n Name) []byte {
	buf = propval.AppendGUID(buf, n.GUID)
	buf = append(buf, byte(n.Kind))
	if n.Kind == KindString {
		buf = append(buf, propval.EncodeUTF16(n.Name)...)
		return append(buf, 0, 0)
	}
	return binary.LittleEndian.AppendUint32(buf, n.LID)
}

// Entry is one mapping in a Map.
type Entry struct {
	ID   uint16
	Name Name
}

// Map is a session's bidirectional identifier <-> name mapping. It is safe
// for concurrent use.
type Map struct {
	mu     sync.RWMutex
	byID   map[uint16]Name
	byName map[Name]uint16
}

func NewMap() *Map {
	return &Map{
		byID:   make(map[uint16]Name),
		byName: make(map[Name]uint16),
	}
}

// Add records that id refers to name. Re-adding an identical mapping is a
// no-op; remapping an id or a name is ErrConflict.
func (m *Map) Add(id uint16, name Name) error {
	if id < propval.NamedIDBase {
		return fmt.Errorf("named property id 0x%04X is below 0x%04X", id, propval.NamedIDBase)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byID[id]; ok {
		if old == name {
			return nil
		}
		return fmt.Errorf("%w: 0x%04X is %v, not %v", ErrConflict, id, old, name)
	}
	if old, ok := m.byName[name]; ok {
		return fmt.Errorf("%w: %v is 0x%04X, not 0x%04X", ErrConflict, name, old, id)
	}
	m.byID[id] = name
	m.byName[name] = id
	return nil
}

func (m *Map) Name(id uint16) (Name, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.byID[id]
	return n, ok
}

func (m *Map) ID(name Name) (uint16, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[name]
	return id, ok
}

// Resolve returns the name behind a named property tag.
func (m *Map) Resolve(tag propval.Tag) (Name, bool) {
	if !tag.IsNamed() {
		return Name{}, false
	}
	return m.Name(tag.ID())
}

func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Entries returns all mappings ordered by id.
func (m *Map) Entries() []Entry {
	m.mu.RLock()
	result := make([]Entry, 0, len(m.byID))
	for id, n := range m.byID {
		result = append(result, Entry{id, n})
	}
	m.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
