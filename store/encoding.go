package store

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/mapi/namedprop"
	"github.com/andreyvit/mapi/propval"
	"github.com/andreyvit/mapi/syncobj"
)

// Records are msgpack-encoded. Property lists are kept in the Fast Transfer
// wire form (concatenated TaggedPropertyValues, propval.Stream) so that every
// property type round-trips exactly.

type messageRecord struct {
	SourceKey   []byte             `msgpack:"k"`
	Stored      int64              `msgpack:"t"`
	Props       []byte             `msgpack:"p"`
	Deleted     []uint32           `msgpack:"d,omitempty"`
	Associated  bool               `msgpack:"a,omitempty"`
	Recipients  [][]byte           `msgpack:"r,omitempty"`
	Attachments []attachmentRecord `msgpack:"x,omitempty"`
}

type attachmentRecord struct {
	Props    []byte         `msgpack:"p"`
	Embedded *messageRecord `msgpack:"e,omitempty"`
}

type nameRecord struct {
	GUID [16]byte `msgpack:"g"`
	Kind uint8    `msgpack:"k"`
	LID  uint32   `msgpack:"l,omitempty"`
	Name string   `msgpack:"n,omitempty"`
}

type stateRecord struct {
	Stored int64  `msgpack:"t"`
	Props  []byte `msgpack:"p"`
}

type bytesWriter struct {
	Buf []byte
}

func (w *bytesWriter) Write(p []byte) (int, error) {
	w.Buf = append(w.Buf, p...)
	return len(p), nil
}

func encodeRecord(buf []byte, rec any) []byte {
	bw := bytesWriter{buf}
	enc := msgpack.GetEncoder()
	enc.ResetDict(&bw, nil)
	enc.SetSortMapKeys(true)
	err := enc.Encode(rec)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("failed to encode %T using MsgPack: %w", rec, err))
	}
	return bw.Buf
}

func decodeRecord(buf []byte, rec any) error {
	var r bytes.Reader
	r.Reset(buf)
	dec := msgpack.GetDecoder()
	dec.ResetDict(&r, nil)
	err := dec.Decode(rec)
	msgpack.PutDecoder(dec)
	if err != nil {
		return fmt.Errorf("%w: failed to decode msgpack into %T: %v", propval.ErrCorrupt, rec, err)
	}
	return nil
}

func encodeProps(props []propval.Value) ([]byte, error) {
	var buf []byte
	for _, v := range props {
		var err error
		buf, err = propval.AppendTagged(buf, v, propval.Stream)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func decodeProps(data []byte) ([]propval.Value, error) {
	r := propval.NewReader(data)
	var props []propval.Value
	for r.Len() > 0 {
		v, err := propval.DecodeTagged(r, propval.Stream)
		if err != nil {
			return nil, err
		}
		props = append(props, v)
	}
	return props, nil
}

func messageToRecord(m *syncobj.Message) (*messageRecord, error) {
	rec := &messageRecord{Associated: m.Associated}
	var err error
	if rec.Props, err = encodeProps(m.Props); err != nil {
		return nil, err
	}
	for _, tag := range m.Deleted {
		rec.Deleted = append(rec.Deleted, uint32(tag))
	}
	for i, r := range m.Recipients {
		data, err := encodeProps(r.Props)
		if err != nil {
			return nil, fmt.Errorf("recipient %d: %w", i, err)
		}
		rec.Recipients = append(rec.Recipients, data)
	}
	for i, a := range m.Attachments {
		ar := attachmentRecord{}
		if ar.Props, err = encodeProps(a.Props); err != nil {
			return nil, fmt.Errorf("attachment %d: %w", i, err)
		}
		if a.Embedded != nil {
			if ar.Embedded, err = messageToRecord(a.Embedded); err != nil {
				return nil, fmt.Errorf("attachment %d: %w", i, err)
			}
		}
		rec.Attachments = append(rec.Attachments, ar)
	}
	return rec, nil
}

func recordToMessage(rec *messageRecord) (*syncobj.Message, error) {
	m := &syncobj.Message{Associated: rec.Associated}
	var err error
	if m.Props, err = decodeProps(rec.Props); err != nil {
		return nil, err
	}
	for _, tag := range rec.Deleted {
		m.Deleted = append(m.Deleted, propval.Tag(tag))
	}
	for i, data := range rec.Recipients {
		props, err := decodeProps(data)
		if err != nil {
			return nil, fmt.Errorf("recipient %d: %w", i, err)
		}
		m.Recipients = append(m.Recipients, &syncobj.Recipient{Props: props})
	}
	for i, ar := range rec.Attachments {
		a := &syncobj.Attachment{}
		if a.Props, err = decodeProps(ar.Props); err != nil {
			return nil, fmt.Errorf("attachment %d: %w", i, err)
		}
		if ar.Embedded != nil {
			if a.Embedded, err = recordToMessage(ar.Embedded); err != nil {
				return nil, fmt.Errorf("attachment %d: %w", i, err)
			}
		}
		m.Attachments = append(m.Attachments, a)
	}
	return m, nil
}

func nameToRecord(n namedprop.Name) nameRecord {
	rec := nameRecord{Kind: uint8(n.Kind), LID: n.LID, Name: n.Name}
	copy(rec.GUID[:], propval.AppendGUID(nil, n.GUID))
	return rec
}

func recordToName(rec nameRecord) (namedprop.Name, error) {
	g, err := propval.NewReader(rec.GUID[:]).GUID()
	if err != nil {
		return namedprop.Name{}, err
	}
	switch k := namedprop.Kind(rec.Kind); k {
	case namedprop.KindID:
		return namedprop.ByLID(g, rec.LID), nil
	case namedprop.KindString:
		return namedprop.ByName(g, rec.Name), nil
	default:
		return namedprop.Name{}, fmt.Errorf("%w: named property kind %d", propval.ErrCorrupt, rec.Kind)
	}
}
