// Package lzfu implements the compressed RTF format of PidTagRtfCompressed
// (MS-OXRTFCP).
//
// A compressed stream is a 16-byte header followed by the payload:
//
//	compSize:32 rawSize:32 magic:32 crc:32
//
// compSize counts every byte after itself. The payload of a "LZFu" stream is
// a sequence of runs, each a control byte followed by eight tokens read LSB
// first: a clear bit is a literal byte, a set bit is a big-endian 16-bit
// dictionary reference (12-bit offset, 4-bit length minus two). A reference
// pointing at the current dictionary write position ends the stream. A "MELA"
// stream holds the RTF uncompressed.
package lzfu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	MagicCompressed   = 0x75465A4C // "LZFu"
	MagicUncompressed = 0x414C454D // "MELA"

	HeaderSize = 16

	dictSize    = 4096
	maxMatchLen = 17
	minMatchLen = 2
)

const initialDict = "{\\rtf1\\ansi\\mac\\deff0\\deftab720{\\fonttbl;}" +
	"{\\f0\\fnil \\froman \\fswiss \\fmodern \\fscrip" +
	"t \\fdecor MS Sans SerifSymbolArialTimes Ne" +
	"w RomanCourier{\\colortbl\\red0\\green0\\blue0" +
	"\r\n\\par \\pard\\plain\\f0\\fs20\\b\\i\\u\\tab" +
	"\\tx"

var ErrCorrupt = errors.New("corrupt compressed RTF")

type Header struct {
	CompSize uint32
	RawSize  uint32
	Magic    uint32
	CRC      uint32
}

func (h Header) Compressed() bool {
	return h.Magic == MagicCompressed
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

// ParseHeader validates the header against the total stream length.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, corruptf("%d bytes is shorter than the header", len(data))
	}
	le := binary.LittleEndian
	h := Header{
		CompSize: le.Uint32(data[0:]),
		RawSize:  le.Uint32(data[4:]),
		Magic:    le.Uint32(data[8:]),
		CRC:      le.Uint32(data[12:]),
	}
	if uint64(h.CompSize) != uint64(len(data))-4 {
		return h, corruptf("header says %d bytes, stream has %d", h.CompSize, len(data)-4)
	}
	if h.Magic != MagicCompressed && h.Magic != MagicUncompressed {
		return h, corruptf("bad magic 0x%08X", h.Magic)
	}
	return h, nil
}

// Decompress returns the RTF held in a PidTagRtfCompressed value.
func Decompress(data []byte) ([]byte, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	payload := data[HeaderSize:]

	if !h.Compressed() {
		if uint64(h.RawSize) > uint64(len(payload)) {
			return nil, corruptf("uncompressed size %d exceeds payload of %d bytes", h.RawSize, len(payload))
		}
		return append([]byte(nil), payload[:h.RawSize]...), nil
	}

	if crc := Checksum(payload); crc != h.CRC {
		return nil, corruptf("CRC 0x%08X, header says 0x%08X", crc, h.CRC)
	}

	var dict [dictSize]byte
	copy(dict[:], initialDict)
	w := len(initialDict)

	// RawSize is untrusted; no payload byte expands past maxMatchLen bytes.
	out := make([]byte, 0, min(int(h.RawSize), len(payload)*maxMatchLen))
	emit := func(c byte) error {
		if len(out) >= int(h.RawSize) {
			return corruptf("output exceeds declared size %d", h.RawSize)
		}
		out = append(out, c)
		dict[w] = c
		w = (w + 1) % dictSize
		return nil
	}

	p := 0
	for p < len(payload) {
		control := payload[p]
		p++
		for bit := 0; bit < 8 && p < len(payload); bit++ {
			if control&(1<<bit) == 0 {
				if err := emit(payload[p]); err != nil {
					return nil, err
				}
				p++
				continue
			}
			if p+2 > len(payload) {
				return nil, corruptf("truncated dictionary reference at %d", HeaderSize+p)
			}
			ref := binary.BigEndian.Uint16(payload[p:])
			p += 2
			off := int(ref >> 4)
			n := int(ref&0xF) + minMatchLen
			if off == w {
				return finish(out, h)
			}
			for i := 0; i < n; i++ {
				if err := emit(dict[(off+i)%dictSize]); err != nil {
					return nil, err
				}
			}
		}
	}
	return finish(out, h)
}

func finish(out []byte, h Header) ([]byte, error) {
	if len(out) != int(h.RawSize) {
		return nil, corruptf("produced %d bytes, header says %d", len(out), h.RawSize)
	}
	return out, nil
}

// Checksum computes the MS-OXRTFCP CRC: the IEEE polynomial with a zero
// initial value and no final inversion.
func Checksum(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc = crc32.IEEETable[byte(crc)^b] ^ (crc >> 8)
	}
	return crc
}

// Compress produces a "LZFu" stream that Decompress turns back into rtf.
func Compress(rtf []byte) []byte {
	var dict [dictSize]byte
	copy(dict[:], initialDict)
	w := len(initialDict)

	body := make([]byte, 0, len(rtf)/2+16)
	var control int
	var tokens int

	startRun := func() {
		control = len(body)
		body = append(body, 0)
		tokens = 0
	}
	startRun()

	put := func(c byte) {
		dict[w] = c
		w = (w + 1) % dictSize
	}

	for i := 0; i < len(rtf); {
		if tokens == 8 {
			startRun()
		}
		off, n := longestMatch(&dict, w, rtf[i:])
		if n >= minMatchLen {
			body[control] |= 1 << tokens
			body = binary.BigEndian.AppendUint16(body, uint16(off<<4|(n-minMatchLen)))
			for j := 0; j < n; j++ {
				put(rtf[i+j])
			}
			i += n
		} else {
			body = append(body, rtf[i])
			put(rtf[i])
			i++
		}
		tokens++
	}

	if tokens == 8 {
		startRun()
	}
	body[control] |= 1 << tokens
	body = binary.BigEndian.AppendUint16(body, uint16(w<<4))

	out := make([]byte, HeaderSize, HeaderSize+len(body))
	le := binary.LittleEndian
	le.PutUint32(out[0:], uint32(HeaderSize-4+len(body)))
	le.PutUint32(out[4:], uint32(len(rtf)))
	le.PutUint32(out[8:], MagicCompressed)
	le.PutUint32(out[12:], Checksum(body))
	return append(out, body...)
}

// Wrap produces an uncompressed "MELA" stream.
func Wrap(rtf []byte) []byte {
	out := make([]byte, HeaderSize, HeaderSize+len(rtf))
	le := binary.LittleEndian
	le.PutUint32(out[0:], uint32(HeaderSize-4+len(rtf)))
	le.PutUint32(out[4:], uint32(len(rtf)))
	le.PutUint32(out[8:], MagicUncompressed)
	return append(out, rtf...)
}

// longestMatch finds the dictionary offset that reproduces the longest
// prefix of src when copied the way Decompress copies references: byte by
// byte, with each copied byte immediately written at the write position.
func longestMatch(dict *[dictSize]byte, w int, src []byte) (bestOff, bestLen int) {
	limit := min(len(src), maxMatchLen)
	if limit < minMatchLen {
		return 0, 0
	}
	for off := 0; off < dictSize; off++ {
		if off == w {
			continue
		}
		n := 0
		for n < limit {
			pos := (off + n) % dictSize
			var c byte
			if d := (pos - w + dictSize) % dictSize; d < n {
				c = src[d]
			} else {
				c = dict[pos]
			}
			if c != src[n] {
				break
			}
			n++
		}
		if n > bestLen {
			bestOff, bestLen = off, n
			if n == limit {
				break
			}
		}
	}
	return bestOff, bestLen
}
