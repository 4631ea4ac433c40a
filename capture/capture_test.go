package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/mapi/fxparser"
	"github.com/andreyvit/mapi/propval"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testOptions(t testing.TB, c *clock) Options {
	return Options{
		Logger: slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Now:    c.Now,
		Format: propval.Row,
	}
}

func TestWriter_format(t *testing.T) {
	c := &clock{start}
	var buf bytes.Buffer
	w := must(NewWriter(&buf, testOptions(t, c)))
	c.Advance(1500 * time.Millisecond)
	ensure(t, w.WriteChunk([]byte("hi")))

	header := expand(
		"42_58_46_58_43_41_50_31 /magic",
		"00 01 0000 00000000 /version_format_flags_pad",
		"00_f4_51_c2_8c_01_00_00 /started",
	)
	record := expand("#2 #1500 'hi")

	b := buf.Bytes()
	if !bytes.Equal(b[:24], header) {
		t.Fatalf("header = %x, wanted %x", b[:24], header)
	}
	if a, e := binary.LittleEndian.Uint64(b[24:32]), xxhash.Sum64(header); a != e {
		t.Fatalf("header checksum = %x, wanted %x", a, e)
	}
	rec := b[headerSize:]
	if len(rec) != len(record)+8 || !bytes.Equal(rec[:len(record)], record) {
		t.Fatalf("record = %x, wanted %x + checksum", rec, record)
	}
	if a, e := binary.LittleEndian.Uint64(rec[len(record):]), xxhash.Sum64(record); a != e {
		t.Fatalf("record checksum = %x, wanted %x", a, e)
	}
}

func TestReader_roundTrip(t *testing.T) {
	c := &clock{start}
	var buf bytes.Buffer
	w := must(NewWriter(&buf, testOptions(t, c)))
	chunks := []string{"first", "", strings.Repeat("x", 300)}
	for _, s := range chunks {
		c.Advance(2 * time.Second)
		ensure(t, w.WriteChunk([]byte(s)))
	}
	c.now = start // clock going backwards is recorded as no delay
	ensure(t, w.WriteChunk([]byte("late")))
	chunks = append(chunks, "late")

	r := must(NewReader(&buf, testOptions(t, c)))
	if r.Format() != propval.Row {
		t.Fatalf("Format = %v, wanted Row", r.Format())
	}
	if !r.Started().Equal(start) {
		t.Fatalf("Started = %v, wanted %v", r.Started(), start)
	}
	for i, s := range chunks {
		c, err := r.Next()
		if err != nil {
			t.Fatalf("Next(%d) failed: %v", i, err)
		}
		if string(c.Data) != s {
			t.Fatalf("chunk %d = %q, wanted %q", i, c.Data, s)
		}
		wantTime := start.Add(time.Duration(min(i+1, 3)) * 2 * time.Second)
		if !c.Time.Equal(wantTime) {
			t.Fatalf("chunk %d time = %v, wanted %v", i, c.Time, wantTime)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next at end = %v, wanted io.EOF", err)
	}
}

func TestReader_corrupt(t *testing.T) {
	c := &clock{start}
	var buf bytes.Buffer
	w := must(NewWriter(&buf, testOptions(t, c)))
	ensure(t, w.WriteChunk([]byte("hello")))
	full := buf.Bytes()

	for n := headerSize + 1; n < len(full); n++ {
		r := must(NewReader(bytes.NewReader(full[:n]), Options{}))
		if _, err := r.Next(); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("Next(cut at %d) = %v, wanted ErrCorrupt", n, err)
		}
	}

	flipped := bytes.Clone(full)
	flipped[headerSize+3] ^= 0x20
	r := must(NewReader(bytes.NewReader(flipped), Options{}))
	if _, err := r.Next(); !errors.Is(err, ErrCorrupt) || !strings.Contains(err.Error(), "checksum") {
		t.Fatalf("Next(flipped) = %v, wanted checksum ErrCorrupt", err)
	}

	huge := append(bytes.Clone(full[:headerSize]), expand(fmt.Sprintf("#%d #0", MaxChunkSize+1))...)
	r = must(NewReader(bytes.NewReader(huge), Options{}))
	if _, err := r.Next(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Next(huge) = %v, wanted ErrCorrupt", err)
	}
}

func TestNewReader_rejects(t *testing.T) {
	good := encodeHeader(fileHeader{Started: 1})
	badSum := bytes.Clone(good)
	badSum[10] = 1
	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"empty", nil, ErrNotCapture},
		{"short", good[:20], ErrNotCapture},
		{"magic", expand("00...", "00...", "00...", "00..."), ErrNotCapture},
		{"checksum", badSum, ErrNotCapture},
		{"version", encodeHeader(fileHeader{Version: 1}), ErrUnsupportedVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReader(bytes.NewReader(tt.data), Options{}); !errors.Is(err, tt.err) {
				t.Fatalf("NewReader = %v, wanted %v", err, tt.err)
			}
		})
	}
}

func TestAppend_truncatesCorruptTail(t *testing.T) {
	c := &clock{start}
	path := filepath.Join(t.TempDir(), "fx.cap")

	w := must(Append(path, testOptions(t, c)))
	c.Advance(time.Second)
	ensure(t, w.WriteChunk([]byte("one")))
	c.Advance(time.Second)
	ensure(t, w.WriteChunk([]byte("two")))
	ensure(t, w.Close())
	good := must(os.ReadFile(path))

	f := must(os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0))
	must(f.Write(expand("#10 #0 'partial")))
	ensure(t, f.Close())

	c.Advance(time.Second)
	w = must(Append(path, testOptions(t, c)))
	ensure(t, w.WriteChunk([]byte("three")))
	ensure(t, w.Close())

	data := must(os.ReadFile(path))
	if !bytes.HasPrefix(data, good) {
		t.Fatalf("intact records were rewritten")
	}

	r := must(Open(path, testOptions(t, c)))
	defer r.Close()
	var got []string
	var last time.Time
	for {
		c, err := r.Next()
		if err == io.EOF {
			break
		}
		ensure(t, err)
		got = append(got, string(c.Data))
		last = c.Time
	}
	if a, e := strings.Join(got, ","), "one,two,three"; a != e {
		t.Fatalf("chunks = %q, wanted %q", a, e)
	}
	if e := start.Add(3 * time.Second); !last.Equal(e) {
		t.Fatalf("last time = %v, wanted %v", last, e)
	}
}

func TestReplay(t *testing.T) {
	var s fxparser.Writer
	s.Marker(fxparser.StartMessage)
	ensure(t, s.Property(propval.Must(propval.PidTagSubject, "replayed")))
	ensure(t, s.Property(propval.Must(propval.PidTagMessageSize, int32(42))))
	s.Marker(fxparser.EndMessage)

	c := &clock{start}
	var buf bytes.Buffer
	w := must(NewWriter(&buf, testOptions(t, c)))
	for data := s.Buf; len(data) > 0; {
		n := min(len(data), 5)
		ensure(t, w.WriteChunk(data[:n]))
		data = data[n:]
	}
	full := bytes.Clone(buf.Bytes())

	var markers, props int
	h := fxparser.Handler{
		Marker:   func(propval.Tag) error { markers++; return nil },
		Property: func(propval.Value) error { props++; return nil },
	}
	r := must(NewReader(bytes.NewReader(full), Options{}))
	n, err := Replay(r, fxparser.New(fxparser.Options{}), h)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if a, e := n, (len(s.Buf)+4)/5; a != e {
		t.Fatalf("chunks = %d, wanted %d", a, e)
	}
	if markers != 2 || props != 2 {
		t.Fatalf("markers = %d, props = %d, wanted 2 and 2", markers, props)
	}

	// capture of the stream without its final marker's last byte
	buf.Reset()
	w = must(NewWriter(&buf, testOptions(t, c)))
	ensure(t, w.WriteChunk(s.Buf[:len(s.Buf)-1]))
	r = must(NewReader(&buf, Options{}))
	if _, err := Replay(r, fxparser.New(fxparser.Options{}), fxparser.Handler{}); !errors.Is(err, ErrIncompleteStream) {
		t.Fatalf("Replay(truncated) = %v, wanted ErrIncompleteStream", err)
	}

	// capture that stops right after the subject's property tag
	buf.Reset()
	w = must(NewWriter(&buf, testOptions(t, c)))
	ensure(t, w.WriteChunk(s.Buf[:8]))
	r = must(NewReader(&buf, Options{}))
	if _, err := Replay(r, fxparser.New(fxparser.Options{}), fxparser.Handler{}); !errors.Is(err, ErrIncompleteStream) {
		t.Fatalf("Replay(cut after tag) = %v, wanted ErrIncompleteStream", err)
	}
}

// expand decodes whitespace-separated hex elements: "/" starts a comment,
// "_" separates bytes, "#N" is a uvarint, "'text" is literal text, and
// "X..." pads X to 8 bytes.
func expand(lines ...string) []byte {
	var b []byte
	for _, line := range lines {
		for _, elem := range strings.Fields(line) {
			base, _, _ := strings.Cut(elem, "/")
			if base == "" {
				continue
			}
			base, pad := strings.CutSuffix(base, "...")
			n := len(b)
			switch {
			case strings.HasPrefix(base, "#"):
				v, err := strconv.ParseUint(base[1:], 10, 64)
				if err != nil {
					panic(err)
				}
				b = binary.AppendUvarint(b, v)
			case strings.HasPrefix(base, "'"):
				b = append(b, base[1:]...)
			default:
				for _, h := range strings.Split(base, "_") {
					for i := 0; i < len(h); i += 2 {
						v, err := strconv.ParseUint(h[i:min(i+2, len(h))], 16, 8)
						if err != nil {
							panic(fmt.Errorf("%w in element %q", err, elem))
						}
						b = append(b, byte(v))
					}
				}
			}
			for pad && len(b)-n < 8 {
				b = append(b, 0)
			}
		}
	}
	return b
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	c.t.Log(strings.TrimSuffix(string(buf), "\n"))
	return len(buf), nil
}

func ensure(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("** %v", err)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
