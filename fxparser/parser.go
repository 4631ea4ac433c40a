// Package fxparser decodes Fast Transfer streams (MS-OXCFXICS): the
// continuous tagged byte stream that carries folders, messages, recipients,
// attachments and their properties during bulk copy and synchronization.
//
// The parser is incremental. Feed it chunks as they arrive and pull events
// with Next until it reports ErrNeedMore; or hand each chunk to Parse along
// with a Handler. Either way, splitting the stream at arbitrary byte
// boundaries yields exactly the same events as feeding it whole.
//
// A Parser is not safe for concurrent use.
package fxparser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/andreyvit/mapi/namedprop"
	"github.com/andreyvit/mapi/propval"
)

const debugParser = false

// ErrNeedMore is returned by Next when the buffered input ends in the middle
// of an element. Feed more data and call Next again.
var ErrNeedMore = errors.New("fxparser: need more data")

type EventKind uint8

const (
	EventMarker EventKind = iota + 1
	EventDeleteProp
	EventNamedProp
	EventProperty
)

func (k EventKind) String() string {
	switch k {
	case EventMarker:
		return "marker"
	case EventDeleteProp:
		return "delprop"
	case EventNamedProp:
		return "namedprop"
	case EventProperty:
		return "property"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is one decoded stream element.
//
// For EventMarker, Tag is the marker. For EventDeleteProp, Tag is the
// property to delete. For EventNamedProp, Tag is the named property tag and
// Name its descriptor; an EventProperty for the same tag always follows.
// For EventProperty, Tag equals Value.Tag.
type Event struct {
	Kind  EventKind
	Tag   propval.Tag
	Name  namedprop.Name
	Value propval.Value
}

func (e Event) String() string {
	switch e.Kind {
	case EventMarker:
		return "marker " + TagName(e.Tag)
	case EventDeleteProp:
		return "delprop " + TagName(e.Tag)
	case EventNamedProp:
		return fmt.Sprintf("namedprop %v %v", e.Tag, e.Name)
	case EventProperty:
		return "property " + e.Value.String()
	default:
		return e.Kind.String()
	}
}

type Options struct {
	Logger *slog.Logger

	// Format of property values. Fast Transfer streams use propval.Stream.
	Format propval.Format

	// NamedProps, when set, receives every named property descriptor seen.
	NamedProps *namedprop.Map
}

type state uint8

const (
	stateEntry state = iota
	stateHaveTag
	stateHavePropTag
)

type Parser struct {
	logger *slog.Logger
	format propval.Format
	names  *namedprop.Map

	buf       []byte
	r         propval.Reader
	discarded int64

	state state
	start int64
	tag   propval.Tag
	err   error
}

func New(o Options) *Parser {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Parser{
		logger: o.Logger,
		format: o.Format,
		names:  o.NamedProps,
	}
}

// Feed appends a chunk to the parser's buffer. Bytes consumed by earlier
// calls to Next are discarded first.
func (p *Parser) Feed(chunk []byte) {
	p.compact()
	p.buf = append(p.buf, chunk...)
	p.r.Reset(p.buf)
}

func (p *Parser) compact() {
	off := p.r.Off()
	if off == 0 {
		return
	}
	n := copy(p.buf, p.buf[off:])
	p.buf = p.buf[:n]
	p.discarded += int64(off)
	p.r.Reset(p.buf)
}

// Buffered returns the number of received bytes that do not yet form a
// complete element, including the already decoded tag of an element whose
// value is still missing. A transfer that ends with Buffered() > 0 was
// truncated.
func (p *Parser) Buffered() int {
	if p.state == stateEntry {
		return p.r.Len()
	}
	return int(p.Offset()-p.start) + p.r.Len()
}

// Offset returns the stream position of the next undecoded byte.
func (p *Parser) Offset() int64 {
	return p.discarded + int64(p.r.Off())
}

// Err returns the error that stopped the parser, if any.
func (p *Parser) Err() error {
	return p.err
}

// Next decodes the next element. It returns ErrNeedMore when the buffer runs
// out; any other error is permanent and is returned by every later call.
func (p *Parser) Next() (Event, error) {
	if p.err != nil {
		return Event{}, p.err
	}
	for {
		switch p.state {
		case stateEntry:
			p.start = p.Offset()
			tag, err := p.r.Tag()
			if err != nil {
				return Event{}, ErrNeedMore
			}
			p.tag = tag
			p.state = stateHaveTag

		case stateHaveTag:
			switch {
			case IsMarker(p.tag):
				p.state = stateEntry
				return p.emit(Event{Kind: EventMarker, Tag: p.tag}), nil

			case p.tag == MetaTagFXDelProp:
				deleted, err := p.r.Tag()
				if err != nil {
					return Event{}, ErrNeedMore
				}
				p.state = stateEntry
				return p.emit(Event{Kind: EventDeleteProp, Tag: deleted}), nil

			case p.tag.IsNamed():
				name, err := namedprop.Decode(&p.r)
				if errors.Is(err, propval.ErrTruncated) {
					return Event{}, ErrNeedMore
				} else if err != nil {
					return Event{}, p.fail(err)
				}
				if p.names != nil {
					if err := p.names.Add(p.tag.ID(), name); err != nil {
						p.logger.LogAttrs(context.Background(), slog.LevelWarn, "fxparser: named property mapping conflict", slog.Any("err", err))
					}
				}
				p.state = stateHavePropTag
				return p.emit(Event{Kind: EventNamedProp, Tag: p.tag, Name: name}), nil

			default:
				p.state = stateHavePropTag
			}

		case stateHavePropTag:
			v, err := propval.Decode(&p.r, valueTag(p.tag), p.format)
			if errors.Is(err, propval.ErrTruncated) {
				return Event{}, ErrNeedMore
			} else if err != nil {
				return Event{}, p.fail(err)
			}
			p.state = stateEntry
			return p.emit(Event{Kind: EventProperty, Tag: v.Tag, Value: v}), nil
		}
	}
}

// valueTag returns the tag to decode a property's value with.
// MetaTagIdsetGiven is declared PT_LONG but carries a length-prefixed IDSET.
func valueTag(tag propval.Tag) propval.Tag {
	if tag == MetaTagIdsetGiven {
		return tag.WithType(propval.TypeBinary)
	}
	return tag
}

func (p *Parser) emit(ev Event) Event {
	if debugParser {
		p.logger.LogAttrs(context.Background(), slog.LevelDebug, "fxparser: event", slog.String("ev", ev.String()), slog.Int64("off", p.Offset()))
	}
	return ev
}

func (p *Parser) fail(err error) error {
	p.err = &StreamError{Offset: p.start, Tag: p.tag, Err: err}
	return p.err
}

// StreamError reports an undecodable element. Offset is where the element's
// tag starts.
type StreamError struct {
	Offset int64
	Tag    propval.Tag
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("fxparser: %s at stream offset %d: %v", TagName(e.Tag), e.Offset, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Handler receives events from Parse. Nil fields ignore their events.
// Returning an error stops parsing; Parse returns that error.
type Handler struct {
	Marker     func(tag propval.Tag) error
	DeleteProp func(tag propval.Tag) error
	NamedProp  func(tag propval.Tag, name namedprop.Name) error
	Property   func(v propval.Value) error
}

// Parse feeds chunk and dispatches every complete element to h. It returns
// nil once the remaining input is incomplete.
func (p *Parser) Parse(chunk []byte, h Handler) error {
	p.Feed(chunk)
	defer p.compact()
	for {
		ev, err := p.Next()
		if err == ErrNeedMore {
			return nil
		} else if err != nil {
			return err
		}
		if err := h.dispatch(ev); err != nil {
			return err
		}
	}
}

func (h *Handler) dispatch(ev Event) error {
	switch ev.Kind {
	case EventMarker:
		if h.Marker != nil {
			return h.Marker(ev.Tag)
		}
	case EventDeleteProp:
		if h.DeleteProp != nil {
			return h.DeleteProp(ev.Tag)
		}
	case EventNamedProp:
		if h.NamedProp != nil {
			return h.NamedProp(ev.Tag, ev.Name)
		}
	case EventProperty:
		if h.Property != nil {
			return h.Property(ev.Value)
		}
	}
	return nil
}
