package propval

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDecode_scenarios(t *testing.T) {
	tests := []struct {
		tag  Tag
		in   string
		want any
	}{
		{MakeTag(0x1234, TypeInt32), "01 00 00 00", int32(1)},
		{MakeTag(0x1234, TypeString8), "05 00 00 00 68 65 6C 6C 6F", "hello"},
		{MakeTag(0x1234, TypeMVInt32), "02 00 00 00 01 00 00 00 02 00 00 00", []int32{1, 2}},
		{MakeTag(0x1234, TypeInt16), "FE FF", int16(-2)},
		{MakeTag(0x1234, TypeError), "0F 01 04 80", CodeNotFound},
		{MakeTag(0x1234, TypeUnicode), "06 00 00 00 68 00 69 00 00 00", "hi"},
		{MakeTag(0x1234, TypeString8), "06 00 00 00 68 65 6C 6C 6F 00", "hello"},
		{MakeTag(0x1234, TypeBinary), "03 00 00 00 0A 0B 0C", []byte{0xA, 0xB, 0xC}},
		{MakeTag(0x1234, TypeMVUnicode), "02 00 00 00 02 00 00 00 61 00 02 00 00 00 62 00", []string{"a", "b"}},
		{MakeTag(0x1234, TypeTime), "01 00 00 00 02 00 00 00", Filetime{Low: 1, High: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.tag.Type().String(), func(t *testing.T) {
			r := NewReader(unhex(tt.in))
			v, err := Decode(r, tt.tag, Stream)
			if err != nil {
				t.Fatalf("Decode(%s) failed: %v", tt.in, err)
			}
			if !reflect.DeepEqual(v.Data, tt.want) {
				t.Fatalf("Decode(%s) = %#v, wanted %#v", tt.in, v.Data, tt.want)
			}
			if r.Len() != 0 {
				t.Fatalf("Decode(%s) left %d bytes", tt.in, r.Len())
			}
		})
	}
}

func TestDecode_boolConsumesTwoBytes(t *testing.T) {
	tag := MakeTag(0x0E1F, TypeBoolean)
	for b := 0; b < 256; b++ {
		r := NewReader([]byte{byte(b), 0xFF, 0x77})
		v, err := Decode(r, tag, Stream)
		if err != nil {
			t.Fatalf("Decode(%02x) failed: %v", b, err)
		}
		if r.Off() != 2 {
			t.Fatalf("Decode(%02x) consumed %d bytes, wanted 2", b, r.Off())
		}
		if v.Data != (b != 0) {
			t.Fatalf("Decode(%02x) = %v, wanted %v", b, v.Data, b != 0)
		}
	}
}

var roundTripCases = []Value{
	Must(MakeTag(1, TypeNull), nil),
	Must(MakeTag(1, TypeInt16), int16(-300)),
	Must(MakeTag(1, TypeInt32), int32(math.MinInt32)),
	Must(MakeTag(1, TypeFloat32), float32(1.5)),
	Must(MakeTag(1, TypeFloat64), math.Pi),
	Must(MakeTag(1, TypeCurrency), int64(123456789)),
	Must(MakeTag(1, TypeFloatingTime), 45000.25),
	Must(MakeTag(1, TypeError), CodeNoAccess),
	Must(MakeTag(1, TypeBoolean), true),
	Must(MakeTag(1, TypeBoolean), false),
	Must(MakeTag(1, TypeObject), uint32(7)),
	Must(MakeTag(1, TypeInt64), int64(-1)),
	Must(MakeTag(1, TypeString8), "narrow"),
	Must(MakeTag(1, TypeUnicode), "wide é中\U0001F600"),
	Must(MakeTag(1, TypeTime), Filetime{Low: 0xDEADBEEF, High: 0x01D00000}),
	Must(MakeTag(1, TypeGUID), MustParseGUID("{00020329-0000-0000-C000-000000000046}")),
	Must(MakeTag(1, TypeServerID), []byte{1, 2, 3}),
	Must(MakeTag(1, TypeBinary), []byte{}),
	Must(MakeTag(1, TypeBinary), []byte("payload")),
	Must(MakeTag(1, TypeMVInt16), []int16{1, -1}),
	Must(MakeTag(1, TypeMVInt32), []int32{}),
	Must(MakeTag(1, TypeMVFloat32), []float32{0.5}),
	Must(MakeTag(1, TypeMVFloat64), []float64{1, 2, 3}),
	Must(MakeTag(1, TypeMVCurrency), []int64{10}),
	Must(MakeTag(1, TypeMVFloatingTime), []float64{2.5}),
	Must(MakeTag(1, TypeMVInt64), []int64{1 << 40}),
	Must(MakeTag(1, TypeMVString8), []string{"a", "", "bc"}),
	Must(MakeTag(1, TypeMVUnicode), []string{"x", "ü"}),
	Must(MakeTag(1, TypeMVTime), []Filetime{{1, 2}, {3, 4}}),
	Must(MakeTag(1, TypeMVGUID), []GUID{{TimeLow: 1}, {Node: [6]byte{1, 2, 3, 4, 5, 6}}}),
	Must(MakeTag(1, TypeMVBinary), [][]byte{{1}, {}, {2, 3}}),
}

func TestRoundTrip(t *testing.T) {
	for _, f := range []Format{Stream, Row} {
		for _, v := range roundTripCases {
			t.Run(f.String()+"/"+v.Tag.Type().String(), func(t *testing.T) {
				enc, err := AppendTagged(nil, v, f)
				if err != nil {
					t.Fatalf("AppendTagged(%v) failed: %v", v, err)
				}
				size, err := SizeTagged(v, f)
				if err != nil {
					t.Fatalf("SizeTagged(%v) failed: %v", v, err)
				}
				if size != len(enc) {
					t.Fatalf("SizeTagged(%v) = %d, wanted %d", v, size, len(enc))
				}

				r := NewReader(enc)
				dec, err := DecodeTagged(r, f)
				if err != nil {
					t.Fatalf("DecodeTagged(%x) failed: %v", enc, err)
				}
				if !reflect.DeepEqual(dec, v) {
					t.Fatalf("DecodeTagged(%x) = %v, wanted %v", enc, dec, v)
				}

				reenc, err := AppendTagged(nil, dec, f)
				if err != nil {
					t.Fatalf("re-encode failed: %v", err)
				}
				if !bytes.Equal(reenc, enc) {
					t.Fatalf("re-encode = %x, wanted %x", reenc, enc)
				}
			})
		}
	}
}

func TestDecode_truncatedIsAtomic(t *testing.T) {
	for _, f := range []Format{Stream, Row} {
		for _, v := range roundTripCases {
			enc, err := Append(nil, v, f)
			if err != nil {
				t.Fatalf("Append(%v) failed: %v", v, err)
			}
			for n := 0; n < len(enc); n++ {
				r := NewReader(enc[:n])
				_, err := Decode(r, v.Tag, f)
				if err == nil {
					// Some prefixes are themselves valid, e.g. empty MV arrays.
					continue
				}
				if !errors.Is(err, ErrTruncated) {
					t.Fatalf("%v/%v: Decode(%x) = %v, wanted ErrTruncated", f, v.Tag.Type(), enc[:n], err)
				}
				if r.Off() != 0 {
					t.Fatalf("%v/%v: Decode(%x) moved cursor to %d", f, v.Tag.Type(), enc[:n], r.Off())
				}
			}
		}
	}
}

func TestDecode_unknownType(t *testing.T) {
	for _, typ := range []Type{0x0009, 0x0042, mv(TypeBoolean), mv(TypeNull), TypeRestriction} {
		r := NewReader(make([]byte, 32))
		_, err := Decode(r, MakeTag(0x1000, typ), Stream)
		if !errors.Is(err, ErrUnknownType) {
			t.Fatalf("Decode(%v) = %v, wanted ErrUnknownType", typ, err)
		}
		if errors.Is(err, ErrTruncated) {
			t.Fatalf("Decode(%v) reported truncation", typ)
		}
		if r.Off() != 0 {
			t.Fatalf("Decode(%v) moved cursor", typ)
		}
	}
}

func TestDecode_hugeCountIsTruncated(t *testing.T) {
	r := NewReader(unhex("FF FF FF 00 01 00"))
	_, err := Decode(r, MakeTag(1, TypeMVInt64), Stream)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, wanted ErrTruncated", err)
	}
}

func TestDecode_oddUnicodeIsCorrupt(t *testing.T) {
	r := NewReader(unhex("03 00 00 00 61 00 62"))
	_, err := Decode(r, MakeTag(1, TypeUnicode), Stream)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, wanted ErrCorrupt", err)
	}
}

func TestDecode_ownsPayload(t *testing.T) {
	data := unhex("02 00 00 00 AA BB")
	v, err := DecodeBytes(data, MakeTag(1, TypeBinary), Stream)
	if err != nil {
		t.Fatal(err)
	}
	data[4] = 0
	if b, _ := v.AsBytes(); b[0] != 0xAA {
		t.Fatalf("decoded value aliases input buffer")
	}
}

func TestDecodeBytes_trailing(t *testing.T) {
	_, err := DecodeBytes(unhex("01 00 00 00 FF"), MakeTag(1, TypeInt32), Stream)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, wanted ErrCorrupt", err)
	}
}

func TestRowFormat_layout(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Must(MakeTag(1, TypeBoolean), true), "01"},
		{Must(MakeTag(1, TypeString8), "ab"), "61 62 00"},
		{Must(MakeTag(1, TypeUnicode), "ab"), "61 00 62 00 00 00"},
		{Must(MakeTag(1, TypeBinary), []byte{9}), "01 00 09"},
	}
	for _, tt := range tests {
		got, err := Append(nil, tt.v, Row)
		if err != nil {
			t.Fatal(err)
		}
		if want := unhex(tt.want); !bytes.Equal(got, want) {
			t.Errorf("Append(%v, Row) = %x, wanted %x", tt.v, got, want)
		}
	}
}

func TestValue_check(t *testing.T) {
	_, err := New(MakeTag(1, TypeInt32), int64(1))
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("New(int64 for PT_LONG) = %v, wanted ErrTypeMismatch", err)
	}
	_, err = Append(nil, Value{MakeTag(1, 0x0009), nil}, Stream)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("Append(unknown) = %v, wanted ErrUnknownType", err)
	}
}

func TestTag(t *testing.T) {
	tag := PidTagSubject
	if tag.ID() != 0x0037 || tag.Type() != TypeUnicode {
		t.Fatalf("PidTagSubject = %04x/%v", tag.ID(), tag.Type())
	}
	if tag.String() != "PidTagSubject" {
		t.Fatalf("String() = %q", tag.String())
	}
	if MakeTag(0x8001, TypeInt32).IsNamed() != true || tag.IsNamed() {
		t.Fatalf("IsNamed is wrong")
	}
	if got := tag.WithType(TypeString8); got != 0x0037001E {
		t.Fatalf("WithType = %08x", uint32(got))
	}
	for _, s := range []string{"PidTagSubject", "0x0037001F", "0037001f"} {
		got, err := ParseTag(s)
		if err != nil || got != PidTagSubject {
			t.Fatalf("ParseTag(%q) = %v, %v", s, got, err)
		}
	}
	if got := TypeMVUnicode.String(); got != "PT_MV_UNICODE" {
		t.Fatalf("TypeMVUnicode.String() = %q", got)
	}
}

func TestGUID(t *testing.T) {
	g := MustParseGUID("{00062008-0000-0000-C000-000000000046}")
	if got := g.String(); got != "00062008-0000-0000-c000-000000000046" {
		t.Fatalf("String() = %q", got)
	}
	wire := AppendGUID(nil, g)
	if want := unhex("08 20 06 00 00 00 00 00 C0 00 00 00 00 00 00 46"); !bytes.Equal(wire, want) {
		t.Fatalf("AppendGUID = %x, wanted %x", wire, want)
	}
	back, err := NewReader(wire).GUID()
	if err != nil || back != g {
		t.Fatalf("GUID() = %v, %v", back, err)
	}
	if _, err := ParseGUID("nope"); err == nil {
		t.Fatalf("ParseGUID accepted garbage")
	}
}

func TestFiletime(t *testing.T) {
	tm := time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)
	ft := FiletimeFromTime(tm)
	if got := ft.Time(); !got.Equal(tm) {
		t.Fatalf("Time() = %v, wanted %v", got, tm)
	}
	if got := FiletimeFromTime(time.Unix(0, 0)).Ticks(); got != unixEpochTicks {
		t.Fatalf("epoch ticks = %d", got)
	}
	if !(Filetime{}).Time().IsZero() {
		t.Fatalf("zero Filetime is not zero time")
	}
}

func TestDecodeString8(t *testing.T) {
	got, err := DecodeString8("\xcf\xf0\xe8\xe2\xe5\xf2", 1251)
	if err != nil || got != "Привет" {
		t.Fatalf("DecodeString8(1251) = %q, %v", got, err)
	}
	got, err = DecodeString8("caf\xe9", 0)
	if err != nil || got != "café" {
		t.Fatalf("DecodeString8(0) = %q, %v", got, err)
	}
	enc, err := EncodeString8("café", 1252)
	if err != nil || enc != "caf\xe9" {
		t.Fatalf("EncodeString8 = %q, %v", enc, err)
	}
	if _, err := DecodeString8("x", 12345); err == nil {
		t.Fatalf("unknown codepage accepted")
	}
}

func mv(t Type) Type {
	return t | MultiValued
}

func unhex(s string) []byte {
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		panic(err)
	}
	return b
}
