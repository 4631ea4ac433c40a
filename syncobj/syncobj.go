// Package syncobj assembles Fast Transfer events into folders, messages,
// recipients and attachments.
//
// A Builder understands every stream shape a Fast Transfer source produces:
// folder copies (StartTopFld ... EndFolder), message lists (StartMessage ...
// EndMessage, repeated), bare message content (properties, recipients and
// attachments with no enclosing marker) and incremental sync streams
// (IncrSyncChg ... IncrSyncEnd).
package syncobj

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/andreyvit/mapi/fxparser"
	"github.com/andreyvit/mapi/propval"
)

var (
	ErrUnexpectedMarker = errors.New("unexpected marker")
	ErrIncomplete       = errors.New("stream ended inside an object")
)

// MarkerError reports a marker that does not fit the object being built.
type MarkerError struct {
	Marker propval.Tag
	Open   string // innermost open object, or "nothing"
}

func (e *MarkerError) Error() string {
	return fmt.Sprintf("syncobj: %s inside %s", fxparser.TagName(e.Marker), e.Open)
}

func (e *MarkerError) Unwrap() error {
	return ErrUnexpectedMarker
}

type Folder struct {
	Props      []propval.Value
	Deleted    []propval.Tag
	Messages   []*Message
	Subfolders []*Folder
}

type Message struct {
	Props       []propval.Value
	Deleted     []propval.Tag
	Recipients  []*Recipient
	Attachments []*Attachment

	// Associated is set for folder-associated information (FAI) messages.
	Associated bool
}

type Recipient struct {
	Props []propval.Value
}

type Attachment struct {
	Props    []propval.Value
	Embedded *Message
}

// Change is one message change of an incremental sync stream.
type Change struct {
	Header   []propval.Value
	Progress []propval.Value
	Message  *Message
	Partial  bool
}

// Sync collects the parts of an incremental sync stream other than message
// changes.
type Sync struct {
	Progress  []propval.Value
	Deletions []propval.Value
	Reads     []propval.Value
	State     []propval.Value
	GroupInfo []propval.Value
	Done      bool
}

// Get returns the property with the given tag.
func (m *Message) Get(tag propval.Tag) (propval.Value, bool) {
	return propval.Find(m.Props, tag)
}

// Text returns a string property, or "" if it is absent.
func (m *Message) Text(tag propval.Tag) string {
	v, _ := m.Get(tag)
	s, _ := v.AsString()
	return s
}

// SourceKey returns the message's PidTagSourceKey, or nil.
func (m *Message) SourceKey() []byte {
	v, _ := m.Get(propval.PidTagSourceKey)
	b, _ := v.AsBytes()
	return b
}

func (f *Folder) Get(tag propval.Tag) (propval.Value, bool) {
	return propval.Find(f.Props, tag)
}

func (r *Recipient) Get(tag propval.Tag) (propval.Value, bool) {
	return propval.Find(r.Props, tag)
}

func (a *Attachment) Get(tag propval.Tag) (propval.Value, bool) {
	return propval.Find(a.Props, tag)
}

type Options struct {
	Logger *slog.Logger

	// Called as each top-level object completes. Returning an error stops
	// the build.
	OnFolder  func(f *Folder) error
	OnMessage func(m *Message) error
	OnChange  func(c *Change) error

	// Keep completed top-level objects, returned by Folders, Messages and
	// Changes.
	Keep bool
}

type frameKind uint8

const (
	frameFolder frameKind = iota
	frameMessage
	frameEmbedded
	frameRoot
	frameRecipient
	frameAttachment
	frameChangeHeader
	frameChangeMessage
	frameSection
	frameErrorInfo
)

var frameNames = [...]string{
	frameFolder:        "folder",
	frameMessage:       "message",
	frameEmbedded:      "embedded message",
	frameRoot:          "message content",
	frameRecipient:     "recipient",
	frameAttachment:    "attachment",
	frameChangeHeader:  "change header",
	frameChangeMessage: "changed message",
	frameSection:       "sync section",
	frameErrorInfo:     "error info",
}

func (k frameKind) String() string {
	return frameNames[k]
}

type frame struct {
	kind   frameKind
	marker propval.Tag
	props  *[]propval.Value

	folder  *Folder
	message *Message
	att     *Attachment
	change  *Change
}

// Builder turns a stream of events into objects. It is not safe for
// concurrent use.
type Builder struct {
	logger    *slog.Logger
	onFolder  func(f *Folder) error
	onMessage func(m *Message) error
	onChange  func(c *Change) error
	keep      bool

	stack    []*frame
	folders  []*Folder
	messages []*Message
	changes  []*Change
	sync     Sync
	errInfo  []propval.Value
	progress []propval.Value
}

func NewBuilder(o Options) *Builder {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Builder{
		logger:    o.Logger,
		onFolder:  o.OnFolder,
		onMessage: o.OnMessage,
		onChange:  o.OnChange,
		keep:      o.Keep,
	}
}

func (b *Builder) Folders() []*Folder   { return b.folders }
func (b *Builder) Messages() []*Message { return b.messages }
func (b *Builder) Changes() []*Change   { return b.changes }
func (b *Builder) Sync() *Sync          { return &b.sync }

// ErrorInfo returns the properties that followed FXErrorInfo markers.
func (b *Builder) ErrorInfo() []propval.Value { return b.errInfo }

// Handler adapts the builder to fxparser.Parser.Parse.
func (b *Builder) Handler() fxparser.Handler {
	return fxparser.Handler{
		Marker:     b.Marker,
		DeleteProp: b.DeleteProp,
		Property:   b.Property,
	}
}

// Handle consumes one parser event.
func (b *Builder) Handle(ev fxparser.Event) error {
	switch ev.Kind {
	case fxparser.EventMarker:
		return b.Marker(ev.Tag)
	case fxparser.EventDeleteProp:
		return b.DeleteProp(ev.Tag)
	case fxparser.EventProperty:
		return b.Property(ev.Value)
	default:
		return nil
	}
}

func (b *Builder) top() *frame {
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[len(b.stack)-1]
}

func (b *Builder) topKind() (frameKind, bool) {
	if f := b.top(); f != nil {
		return f.kind, true
	}
	return 0, false
}

func (b *Builder) push(f *frame) {
	b.stack = append(b.stack, f)
}

func (b *Builder) pop() *frame {
	f := b.top()
	b.stack = b.stack[:len(b.stack)-1]
	return f
}

func (b *Builder) unexpected(marker propval.Tag) error {
	open := "nothing"
	if f := b.top(); f != nil {
		open = f.kind.String()
	}
	return &MarkerError{Marker: marker, Open: open}
}

func (b *Builder) expect(marker propval.Tag, kinds ...frameKind) error {
	k, ok := b.topKind()
	if ok {
		for _, want := range kinds {
			if k == want {
				return nil
			}
		}
	}
	return b.unexpected(marker)
}

// Marker consumes a structural marker.
func (b *Builder) Marker(tag propval.Tag) error {
	if k, ok := b.topKind(); ok && k == frameErrorInfo {
		b.pop()
	}

	switch tag {
	case fxparser.StartTopFld:
		if len(b.stack) != 0 {
			return b.unexpected(tag)
		}
		b.pushFolder(&Folder{})

	case fxparser.StartSubFld:
		if err := b.expect(tag, frameFolder); err != nil {
			return err
		}
		parent := b.top().folder
		f := &Folder{}
		parent.Subfolders = append(parent.Subfolders, f)
		b.pushFolder(f)

	case fxparser.EndFolder:
		if err := b.expect(tag, frameFolder); err != nil {
			return err
		}
		f := b.pop().folder
		if len(b.stack) == 0 {
			return b.emitFolder(f)
		}

	case fxparser.StartMessage, fxparser.StartFAIMsg:
		if k, ok := b.topKind(); ok && k != frameFolder {
			return b.unexpected(tag)
		}
		m := &Message{Associated: tag == fxparser.StartFAIMsg}
		b.push(&frame{kind: frameMessage, marker: tag, props: &m.Props, message: m})

	case fxparser.EndMessage:
		if err := b.expect(tag, frameMessage); err != nil {
			return err
		}
		m := b.pop().message
		if parent := b.top(); parent != nil {
			parent.folder.Messages = append(parent.folder.Messages, m)
			return nil
		}
		return b.emitMessage(m)

	case fxparser.StartRecip:
		msg, err := b.openMessage(tag)
		if err != nil {
			return err
		}
		r := &Recipient{}
		msg.Recipients = append(msg.Recipients, r)
		b.push(&frame{kind: frameRecipient, marker: tag, props: &r.Props})

	case fxparser.EndToRecip:
		if err := b.expect(tag, frameRecipient); err != nil {
			return err
		}
		b.pop()

	case fxparser.NewAttach:
		msg, err := b.openMessage(tag)
		if err != nil {
			return err
		}
		a := &Attachment{}
		msg.Attachments = append(msg.Attachments, a)
		b.push(&frame{kind: frameAttachment, marker: tag, props: &a.Props, att: a})

	case fxparser.EndAttach:
		if err := b.expect(tag, frameAttachment); err != nil {
			return err
		}
		b.pop()

	case fxparser.StartEmbed:
		if err := b.expect(tag, frameAttachment); err != nil {
			return err
		}
		a := b.top().att
		if a.Embedded != nil {
			return b.unexpected(tag)
		}
		a.Embedded = &Message{}
		b.push(&frame{kind: frameEmbedded, marker: tag, props: &a.Embedded.Props, message: a.Embedded})

	case fxparser.EndEmbed:
		if err := b.expect(tag, frameEmbedded); err != nil {
			return err
		}
		b.pop()

	case fxparser.IncrSyncChg, fxparser.IncrSyncChgPartial:
		if err := b.closeSection(tag); err != nil {
			return err
		}
		c := &Change{Partial: tag == fxparser.IncrSyncChgPartial, Progress: b.progress}
		b.progress = nil
		b.push(&frame{kind: frameChangeHeader, marker: tag, props: &c.Header, change: c})

	case fxparser.IncrSyncMessage:
		if err := b.expect(tag, frameChangeHeader); err != nil {
			return err
		}
		f := b.top()
		f.change.Message = &Message{}
		f.kind, f.marker = frameChangeMessage, tag
		f.props, f.message = &f.change.Message.Props, f.change.Message

	case fxparser.IncrSyncDel:
		return b.startSection(tag, &b.sync.Deletions)
	case fxparser.IncrSyncRead:
		return b.startSection(tag, &b.sync.Reads)
	case fxparser.IncrSyncStateBegin:
		return b.startSection(tag, &b.sync.State)
	case fxparser.IncrSyncProgressMode:
		return b.startSection(tag, &b.sync.Progress)
	case fxparser.IncrSyncProgressPerMsg:
		if err := b.closeSection(tag); err != nil {
			return err
		}
		b.progress = nil
		b.push(&frame{kind: frameSection, marker: tag, props: &b.progress})
	case fxparser.IncrSyncGroupInfo:
		return b.startSection(tag, &b.sync.GroupInfo)

	case fxparser.IncrSyncStateEnd:
		if err := b.expect(tag, frameSection); err != nil || b.top().marker != fxparser.IncrSyncStateBegin {
			return b.unexpected(tag)
		}
		b.pop()

	case fxparser.IncrSyncEnd:
		if err := b.closeSection(tag); err != nil {
			return err
		}
		b.sync.Done = true

	case fxparser.FXErrorInfo:
		b.logger.LogAttrs(context.Background(), slog.LevelWarn, "syncobj: stream reports an error", slog.Int("depth", len(b.stack)))
		b.push(&frame{kind: frameErrorInfo, marker: tag, props: &b.errInfo})

	default:
		return b.unexpected(tag)
	}
	return nil
}

func (b *Builder) pushFolder(f *Folder) {
	b.push(&frame{kind: frameFolder, props: &f.Props, folder: f})
}

// openMessage returns the message that recipients and attachments attach
// to, starting bare message content if nothing is open.
func (b *Builder) openMessage(marker propval.Tag) (*Message, error) {
	f := b.top()
	if f == nil {
		f = b.startRoot()
	}
	switch f.kind {
	case frameMessage, frameEmbedded, frameRoot, frameChangeMessage:
		return f.message, nil
	default:
		return nil, b.unexpected(marker)
	}
}

func (b *Builder) startRoot() *frame {
	m := &Message{}
	f := &frame{kind: frameRoot, props: &m.Props, message: m}
	b.push(f)
	return f
}

func (b *Builder) startSection(marker propval.Tag, props *[]propval.Value) error {
	if err := b.closeSection(marker); err != nil {
		return err
	}
	b.push(&frame{kind: frameSection, marker: marker, props: props})
	return nil
}

// closeSection ends the open part of an incremental sync stream, if any.
func (b *Builder) closeSection(marker propval.Tag) error {
	f := b.top()
	if f == nil {
		return nil
	}
	switch f.kind {
	case frameSection:
		if f.marker == fxparser.IncrSyncStateBegin {
			return b.unexpected(marker)
		}
		b.pop()
		return nil
	case frameChangeHeader, frameChangeMessage:
		b.pop()
		return b.emitChange(f.change)
	default:
		return b.unexpected(marker)
	}
}

// DeleteProp records a property the receiver must delete from the open
// folder or message.
func (b *Builder) DeleteProp(tag propval.Tag) error {
	f := b.top()
	if f == nil {
		f = b.startRoot()
	}
	switch f.kind {
	case frameFolder:
		f.folder.Deleted = append(f.folder.Deleted, tag)
	case frameMessage, frameEmbedded, frameRoot, frameChangeMessage:
		f.message.Deleted = append(f.message.Deleted, tag)
	default:
		return fmt.Errorf("syncobj: property deletion %v inside %v", tag, f.kind)
	}
	return nil
}

// Property adds a property to the innermost open object.
func (b *Builder) Property(v propval.Value) error {
	f := b.top()
	if f == nil {
		f = b.startRoot()
	}
	*f.props = append(*f.props, v)
	return nil
}

// Finish ends the stream. Bare message content is completed and emitted;
// an open incremental sync part is closed. Any other open object is
// ErrIncomplete.
func (b *Builder) Finish() error {
	if k, ok := b.topKind(); ok && k == frameErrorInfo {
		b.pop()
	}
	if k, ok := b.topKind(); ok {
		switch k {
		case frameChangeHeader, frameChangeMessage:
			if err := b.closeSection(fxparser.IncrSyncEnd); err != nil {
				return err
			}
		case frameSection:
			if b.top().marker != fxparser.IncrSyncStateBegin {
				b.pop()
			}
		}
	}
	if len(b.stack) == 1 && b.stack[0].kind == frameRoot {
		return b.emitMessage(b.pop().message)
	}
	if f := b.top(); f != nil {
		return fmt.Errorf("%w: %d objects open, innermost %v", ErrIncomplete, len(b.stack), f.kind)
	}
	return nil
}

func (b *Builder) emitFolder(f *Folder) error {
	if b.keep {
		b.folders = append(b.folders, f)
	}
	if b.onFolder != nil {
		return b.onFolder(f)
	}
	return nil
}

func (b *Builder) emitMessage(m *Message) error {
	if b.keep {
		b.messages = append(b.messages, m)
	}
	if b.onMessage != nil {
		return b.onMessage(m)
	}
	return nil
}

func (b *Builder) emitChange(c *Change) error {
	if b.keep {
		b.changes = append(b.changes, c)
	}
	if b.onChange != nil {
		return b.onChange(c)
	}
	return nil
}
