// Package capture records the raw chunks of a Fast Transfer download so
// that a transfer can be replayed through the parser later, chunk by chunk,
// exactly as it arrived.
//
// File format:
//
//   - file = header record*
//   - header = magic:64 version:8 format:8 flags:16 pad:32 started:64 checksum:64
//   - record = size:uvarint delta:uvarint bytes* checksum:64
//
// started is Unix milliseconds; delta is milliseconds since the previous
// record (or since started). Both checksums are xxhash64, the header's over
// its first 24 bytes and a record's over its size, delta and bytes.
package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/mapi/fxparser"
	"github.com/andreyvit/mapi/propval"
)

var (
	ErrNotCapture         = errors.New("not a capture file")
	ErrUnsupportedVersion = errors.New("unsupported capture version")
	ErrCorrupt            = errors.New("corrupted capture record")
	ErrIncompleteStream   = errors.New("capture ends inside a stream element")
)

const (
	magic          = 0x3150414358465842 // "BXFXCAP1" as little-endian uint64
	version0 uint8 = 0

	headerSize = 32

	// MaxChunkSize bounds a single record.
	MaxChunkSize = 64 * 1024 * 1024
)

type fileHeader struct {
	Magic    uint64
	Version  uint8
	Format   uint8
	Flags    uint16
	_        uint32
	Started  uint64
	Checksum uint64
}

type Options struct {
	Logger *slog.Logger
	Now    func() time.Time

	// Format of the captured stream, recorded in the header.
	Format propval.Format
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

func encodeHeader(h fileHeader) []byte {
	var buf [headerSize]byte
	h.Magic = magic
	n, err := binary.Encode(buf[:], binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != headerSize {
		panic("internal size mismatch")
	}
	binary.LittleEndian.PutUint64(buf[headerSize-8:], xxhash.Sum64(buf[:headerSize-8]))
	return buf[:]
}

func decodeHeader(buf []byte) (fileHeader, error) {
	var h fileHeader
	if _, err := binary.Decode(buf, binary.LittleEndian, &h); err != nil {
		return h, err
	}
	if h.Magic != magic {
		return h, ErrNotCapture
	}
	if xxhash.Sum64(buf[:headerSize-8]) != h.Checksum {
		return h, fmt.Errorf("%w: header checksum mismatch", ErrNotCapture)
	}
	if h.Version > version0 {
		return h, ErrUnsupportedVersion
	}
	return h, nil
}

// Writer appends chunks to a capture. It is not safe for concurrent use.
type Writer struct {
	w      io.Writer
	closer io.Closer
	now    func() time.Time
	last   int64 // Unix ms of the previous record
	hdr    []byte
}

// NewWriter writes a capture header to w.
func NewWriter(w io.Writer, o Options) (*Writer, error) {
	o.setDefaults()
	started := o.Now().UnixMilli()
	if _, err := w.Write(encodeHeader(fileHeader{Version: version0, Format: uint8(o.Format), Started: uint64(started)})); err != nil {
		return nil, err
	}
	return &Writer{w: w, now: o.Now, last: started}, nil
}

// Create creates or truncates a capture file.
func Create(path string, o Options) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, o)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Append opens a capture file for appending, creating it if it does not
// exist. A corrupted or truncated tail, left by a crash, is cut off.
func Append(path string, o Options) (*Writer, error) {
	o.setDefaults()
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, err
	}
	var ok bool
	defer func() {
		if !ok {
			f.Close()
		}
	}()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size() == 0 {
		w, err := NewWriter(f, o)
		if err != nil {
			return nil, err
		}
		w.closer, ok = f, true
		return w, nil
	}

	r, err := NewReader(f, o)
	if err != nil {
		return nil, err
	}
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		} else if errors.Is(err, ErrCorrupt) {
			o.Logger.LogAttrs(context.Background(), slog.LevelWarn, "capture: truncating corrupted tail", slog.String("file", path), slog.Int64("off", r.off), slog.Int64("size", stat.Size()), slog.Any("err", err))
			if err := f.Truncate(r.off); err != nil {
				return nil, fmt.Errorf("capture: failed to truncate corrupted tail: %w", err)
			}
			break
		} else if err != nil {
			return nil, err
		}
	}
	if _, err := f.Seek(r.off, io.SeekStart); err != nil {
		return nil, err
	}
	ok = true
	return &Writer{w: f, closer: f, now: o.Now, last: r.last}, nil
}

// WriteChunk appends one record.
func (w *Writer) WriteChunk(data []byte) error {
	if len(data) > MaxChunkSize {
		return fmt.Errorf("capture: chunk of %d bytes exceeds %d", len(data), MaxChunkSize)
	}
	now := w.now().UnixMilli()
	var delta uint64
	if now > w.last {
		delta = uint64(now - w.last)
		w.last = now
	}

	w.hdr = binary.AppendUvarint(w.hdr[:0], uint64(len(data)))
	w.hdr = binary.AppendUvarint(w.hdr, delta)

	var h xxhash.Digest
	h.Reset()
	h.Write(w.hdr)
	h.Write(data)
	w.hdr = binary.LittleEndian.AppendUint64(w.hdr, h.Sum64())

	if _, err := w.w.Write(w.hdr[:len(w.hdr)-8]); err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	_, err := w.w.Write(w.hdr[len(w.hdr)-8:])
	return err
}

// Sync flushes the file to disk, if the Writer owns one.
func (w *Writer) Sync() error {
	if f, ok := w.closer.(*os.File); ok {
		return f.Sync()
	}
	return nil
}

// Close closes the file, if the Writer owns one.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	err := w.closer.Close()
	w.closer = nil
	return err
}

type Chunk struct {
	Time time.Time
	Data []byte
}

// Reader reads chunks back. It is not safe for concurrent use.
type Reader struct {
	br      *bufio.Reader
	closer  io.Closer
	header  fileHeader
	off     int64 // end of the last good record
	last    int64
	scratch []byte
}

// NewReader reads and checks the capture header.
func NewReader(r io.Reader, o Options) (*Reader, error) {
	br := bufio.NewReader(r)
	var buf [headerSize]byte
	if _, err := io.ReadFull(br, buf[:]); err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, ErrNotCapture
	} else if err != nil {
		return nil, err
	}
	h, err := decodeHeader(buf[:])
	if err != nil {
		return nil, err
	}
	return &Reader{br: br, header: h, off: headerSize, last: int64(h.Started)}, nil
}

// Open opens a capture file for reading.
func Open(path string, o Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f, o)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: %s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// Format returns the format of the captured stream.
func (r *Reader) Format() propval.Format {
	return propval.Format(r.header.Format)
}

func (r *Reader) Started() time.Time {
	return time.UnixMilli(int64(r.header.Started))
}

// Next returns the next chunk, or io.EOF after the last one. A record cut
// short or failing its checksum is ErrCorrupt. The returned Data is valid
// until the next call.
func (r *Reader) Next() (Chunk, error) {
	hdr := r.scratch[:0]
	size, hdr, err := readUvarint(r.br, hdr)
	if err == io.EOF && len(hdr) == 0 {
		return Chunk{}, io.EOF
	} else if err != nil {
		return Chunk{}, r.corrupt("record header", err)
	}
	if size > MaxChunkSize {
		return Chunk{}, r.corrupt("record header", fmt.Errorf("size %d exceeds %d", size, MaxChunkSize))
	}
	delta, hdr, err := readUvarint(r.br, hdr)
	if err != nil {
		return Chunk{}, r.corrupt("record header", err)
	}

	n := len(hdr)
	buf := append(hdr, make([]byte, int(size)+8)...)
	if _, err := io.ReadFull(r.br, buf[n:]); err != nil {
		return Chunk{}, r.corrupt("record body", err)
	}
	body, sum := buf[n:n+int(size)], buf[n+int(size):]
	if xxhash.Sum64(buf[:n+int(size)]) != binary.LittleEndian.Uint64(sum) {
		return Chunk{}, r.corrupt("record", errors.New("checksum mismatch"))
	}
	r.scratch = buf
	r.off += int64(len(buf))
	r.last += int64(delta)
	return Chunk{Time: time.UnixMilli(r.last), Data: body}, nil
}

func (r *Reader) corrupt(what string, err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %s at offset %d: %v", ErrCorrupt, what, r.off, err)
}

func readUvarint(br *bufio.Reader, hdr []byte) (uint64, []byte, error) {
	var v uint64
	for i := range binary.MaxVarintLen64 {
		b, err := br.ReadByte()
		if err != nil {
			return 0, hdr, err
		}
		hdr = append(hdr, b)
		if b < 0x80 {
			if i == binary.MaxVarintLen64-1 && b > 1 {
				return 0, hdr, errors.New("uvarint overflows 64 bits")
			}
			return v | uint64(b)<<(7*i), hdr, nil
		}
		v |= uint64(b&0x7f) << (7 * i)
	}
	return 0, hdr, errors.New("uvarint overflows 64 bits")
}

// Replay feeds every chunk to p, dispatching events to h, and returns the
// number of chunks replayed. A capture that ends inside a stream element is
// ErrIncompleteStream.
func Replay(r *Reader, p *fxparser.Parser, h fxparser.Handler) (int, error) {
	var n int
	for {
		c, err := r.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return n, err
		}
		n++
		if err := p.Parse(c.Data, h); err != nil {
			return n, err
		}
	}
	if b := p.Buffered(); b > 0 {
		return n, fmt.Errorf("%w: %d bytes left at stream offset %d", ErrIncompleteStream, b, p.Offset())
	}
	return n, nil
}
