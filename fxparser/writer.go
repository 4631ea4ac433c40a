package fxparser

import (
	"encoding/binary"
	"fmt"

	"github.com/andreyvit/mapi/namedprop"
	"github.com/andreyvit/mapi/propval"
)

// Writer serializes elements into the form Parser reads.
type Writer struct {
	Buf []byte
}

func (w *Writer) Marker(tag propval.Tag) {
	if !IsMarker(tag) {
		panic(fmt.Errorf("fxparser: %v is not a marker", tag))
	}
	w.Buf = binary.LittleEndian.AppendUint32(w.Buf, uint32(tag))
}

func (w *Writer) DeleteProp(tag propval.Tag) {
	w.Buf = binary.LittleEndian.AppendUint32(w.Buf, uint32(MetaTagFXDelProp))
	w.Buf = binary.LittleEndian.AppendUint32(w.Buf, uint32(tag))
}

// Property writes an ordinary (non-named) property.
func (w *Writer) Property(v propval.Value) error {
	if v.Tag.IsNamed() {
		return fmt.Errorf("fxparser: %v is a named property", v.Tag)
	}
	buf, err := propval.AppendTagged(w.Buf, v, propval.Stream)
	if err != nil {
		return err
	}
	w.Buf = buf
	return nil
}

// NamedProperty writes a named property: tag, descriptor, value.
func (w *Writer) NamedProperty(v propval.Value, name namedprop.Name) error {
	if !v.Tag.IsNamed() {
		return fmt.Errorf("fxparser: %v is not a named property", v.Tag)
	}
	if err := v.Check(); err != nil {
		return err
	}
	buf := binary.LittleEndian.AppendUint32(w.Buf, uint32(v.Tag))
	buf = namedprop.Append(buf, name)
	buf, err := propval.Append(buf, v, propval.Stream)
	if err != nil {
		return err
	}
	w.Buf = buf
	return nil
}
