package lzfu

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"runtime"
	"strings"
	"testing"
)

const sampleCompressed = "d60000000b0100004c5a467556c587aa03000a0072637067313235163200f80b606e0e103033334f01f702a403e3020063680ac073b065743020071302807d0a809d00002a09b009f00490617405b11a520de068098001d020352e4035302e39392e01d031923402805c760890776b0b807464340c606300500b030bb520284a757305407303706520d7129014d003702005a06d07800230390ac0792e0aa20a840a80416eac6f74132005c06c0b806517dbc24f05c074776f2e0ae31a13fa6119132003f018d0086005401b405b026000706b191a11e1001da0"

const sampleRTF = "{\\rtf1\\ansi\\ansicpg1252\\deff0\\deflang1033{\\fonttbl{\\f0\\fswiss\\fcharset0 Arial;}}\r\n{\\*\\generator Riched20 5.50.99.2014;}\\viewkind4\\uc1\\pard\\f0\\fs20 Just some random commentary.\\par\r\n\\par\r\nAnother line.\\par\r\n\\par\r\nOr two. \\par\r\nOr a line without a blank line.\\par\r\n}"

func TestDecompress_sample(t *testing.T) {
	data := must(hex.DecodeString(sampleCompressed))
	out, err := Decompress(data)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if len(out) != 267 {
		t.Fatalf("len(out) = %d, wanted 267", len(out))
	}
	if !bytes.HasPrefix(out, []byte(sampleRTF)) {
		t.Fatalf("out = %q, wanted prefix %q", out, sampleRTF)
	}
}

func TestDecompress_corrupt(t *testing.T) {
	good := must(hex.DecodeString(sampleCompressed))

	tests := []struct {
		name   string
		mutate func(b []byte) []byte
	}{
		{"short", func(b []byte) []byte { return b[:10] }},
		{"size", func(b []byte) []byte { return b[:len(b)-1] }},
		{"magic", func(b []byte) []byte { b[8] ^= 1; return b }},
		{"crc", func(b []byte) []byte { b[40] ^= 0x55; return b }},
		{"raw size", func(b []byte) []byte { b[4]++; return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(bytes.Clone(good))
			_, err := Decompress(data)
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("Decompress = %v, wanted ErrCorrupt", err)
			}
		})
	}
}

func TestDecompress_hugeRawSize(t *testing.T) {
	payload := []byte{0x00, 'a', 'b', 'c'}
	data := binary.LittleEndian.AppendUint32(nil, uint32(HeaderSize-4+len(payload)))
	data = binary.LittleEndian.AppendUint32(data, 0x7FFFFFF0)
	data = binary.LittleEndian.AppendUint32(data, MagicCompressed)
	data = binary.LittleEndian.AppendUint32(data, Checksum(payload))
	data = append(data, payload...)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := Decompress(data)
	runtime.ReadMemStats(&after)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Decompress = %v, wanted ErrCorrupt", err)
	}
	if n := after.TotalAlloc - before.TotalAlloc; n > 1<<20 {
		t.Fatalf("Decompress allocated %d bytes for a %d-byte input", n, len(data))
	}
}

func TestCompress_roundTrip(t *testing.T) {
	tests := []string{
		"",
		"{\\rtf1 hello}",
		sampleRTF,
		strings.Repeat("a", 100),
		strings.Repeat("{\\rtf1\\ansi\\deff0 The quick brown fox. }", 200),
	}
	for _, rtf := range tests {
		comp := Compress([]byte(rtf))
		h, err := ParseHeader(comp)
		if err != nil {
			t.Fatalf("ParseHeader failed: %v", err)
		}
		if !h.Compressed() || h.RawSize != uint32(len(rtf)) {
			t.Fatalf("header = %+v", h)
		}
		out, err := Decompress(comp)
		if err != nil {
			t.Fatalf("Decompress(Compress(%.20q)) failed: %v", rtf, err)
		}
		if string(out) != rtf {
			t.Fatalf("Decompress(Compress(%.20q)) = %.20q", rtf, out)
		}
	}
}

func TestCompress_sampleSize(t *testing.T) {
	data := must(hex.DecodeString(sampleCompressed))
	out := must(Decompress(data))
	if comp := Compress(out); len(comp) > len(data) {
		t.Fatalf("len(Compress) = %d, wanted <= %d", len(comp), len(data))
	}
}

func TestWrap(t *testing.T) {
	out, err := Decompress(Wrap([]byte(sampleRTF)))
	if err != nil {
		t.Fatalf("Decompress(Wrap) failed: %v", err)
	}
	if string(out) != sampleRTF {
		t.Fatalf("Decompress(Wrap) = %q", out)
	}
}

func TestChecksum(t *testing.T) {
	data := must(hex.DecodeString(sampleCompressed))
	if got := Checksum(data[HeaderSize:]); got != 0xAA87C556 {
		t.Fatalf("Checksum = %08x, wanted aa87c556", got)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
