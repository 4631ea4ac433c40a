// Package msgexport writes synchronized messages out as RFC 5322 mail.
package msgexport

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/andreyvit/mapi/lzfu"
	"github.com/andreyvit/mapi/propval"
	"github.com/andreyvit/mapi/syncobj"
)

var ErrNoContent = errors.New("message has no exportable properties")

// Recipient types (PidTagRecipientType).
const (
	RecipientTo  = 1
	RecipientCc  = 2
	RecipientBcc = 3
)

// Attachment methods (PidTagAttachMethod).
const (
	AttachByValue         = 1
	AttachEmbeddedMessage = 5
)

const maxEmbedDepth = 16

type Options struct {
	Logger *slog.Logger

	// Codepage for narrow strings when the message carries neither
	// PidTagInternetCodepage nor PidTagMessageCodepage. 0 means UTF-8 if
	// valid, Windows-1252 otherwise.
	Codepage uint32

	// Domain for Message-ID values derived from the source key of messages
	// lacking PidTagInternetMessageId.
	Domain string

	// IncludeRTF adds the decompressed RTF body as a text/rtf part even when
	// a plain or HTML body exists.
	IncludeRTF bool
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Domain == "" {
		o.Domain = "mapi.invalid"
	}
}

// Write writes msg to w as an RFC 5322 message. Embedded messages become
// message/rfc822 attachments.
func Write(w io.Writer, msg *syncobj.Message, o Options) error {
	o.setDefaults()
	if len(msg.Props) == 0 && len(msg.Attachments) == 0 {
		return ErrNoContent
	}
	return write(w, msg, &o, 0)
}

type exporter struct {
	msg      *syncobj.Message
	o        *Options
	codepage uint32
}

type bodyPart struct {
	contentType string
	data        []byte
}

func write(w io.Writer, msg *syncobj.Message, o *Options, depth int) error {
	e := &exporter{msg: msg, o: o, codepage: o.Codepage}
	if cp, ok := e.number(propval.PidTagInternetCodepage); ok {
		e.codepage = uint32(cp)
	} else if cp, ok := e.number(propval.PidTagMessageCodepage); ok {
		e.codepage = uint32(cp)
	}

	h := e.header()
	bodies, err := e.bodies()
	if err != nil {
		return err
	}

	if len(msg.Attachments) == 0 && len(bodies) <= 1 {
		var body bodyPart
		if len(bodies) == 1 {
			body = bodies[0]
		} else {
			body = bodyPart{contentType: "text/plain", data: nil}
		}
		h.SetContentType(body.contentType, map[string]string{"charset": "utf-8"})
		bw, err := mail.CreateSingleInlineWriter(w, h)
		if err != nil {
			return err
		}
		if _, err := bw.Write(body.data); err != nil {
			return err
		}
		return bw.Close()
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return err
	}
	if len(bodies) > 0 {
		iw, err := mw.CreateInline()
		if err != nil {
			return err
		}
		for _, b := range bodies {
			var ph mail.InlineHeader
			ph.SetContentType(b.contentType, map[string]string{"charset": "utf-8"})
			pw, err := iw.CreatePart(ph)
			if err != nil {
				return err
			}
			if _, err := pw.Write(b.data); err != nil {
				return err
			}
			if err := pw.Close(); err != nil {
				return err
			}
		}
		if err := iw.Close(); err != nil {
			return err
		}
	}
	for i, a := range msg.Attachments {
		if err := e.attachment(mw, i, a, depth); err != nil {
			return fmt.Errorf("attachment %d: %w", i, err)
		}
	}
	return mw.Close()
}

func (e *exporter) header() mail.Header {
	var h mail.Header

	if t, ok := e.timestamp(propval.PidTagMessageDeliveryTime); ok {
		h.SetDate(t)
	} else if t, ok := e.timestamp(propval.PidTagClientSubmitTime); ok {
		h.SetDate(t)
	}

	if from := e.address(propval.PidTagSentRepresentingName, propval.PidTagSentRepresentingSmtpAddress, propval.PidTagSentRepresentingEmailAddress); from != nil {
		e.setAddresses(&h, "From", []*mail.Address{from})
	} else if from := e.address(propval.PidTagSenderName, propval.PidTagSenderSmtpAddress, propval.PidTagSenderEmailAddress); from != nil {
		e.setAddresses(&h, "From", []*mail.Address{from})
	}

	if len(e.msg.Recipients) > 0 {
		lists := make(map[int64][]*mail.Address)
		for _, r := range e.msg.Recipients {
			typ, ok := propval.FindID(r.Props, propval.PidTagRecipientType.ID())
			kind, _ := typ.AsInt64()
			if !ok {
				kind = RecipientTo
			}
			if a := e.recipientAddress(r); a != nil {
				lists[kind&0xF] = append(lists[kind&0xF], a)
			}
		}
		e.setAddresses(&h, "To", lists[RecipientTo])
		e.setAddresses(&h, "Cc", lists[RecipientCc])
		e.setAddresses(&h, "Bcc", lists[RecipientBcc])
	} else {
		for _, f := range []struct {
			key string
			tag propval.Tag
		}{{"To", propval.PidTagDisplayTo}, {"Cc", propval.PidTagDisplayCc}, {"Bcc", propval.PidTagDisplayBcc}} {
			if s := e.text(f.tag); s != "" {
				h.SetText(f.key, s)
			}
		}
	}

	if s := e.text(propval.PidTagSubject); s != "" {
		h.SetSubject(s)
	} else if s := e.text(propval.PidTagConversationTopic); s != "" {
		h.SetSubject(s)
	}

	if id := trimMsgID(e.text(propval.PidTagInternetMessageId)); id != "" {
		h.SetMessageID(id)
	} else if key := e.msg.SourceKey(); len(key) > 0 {
		h.SetMessageID(hex.EncodeToString(key) + "@" + e.o.Domain)
	}
	if ids := msgIDList(e.text(propval.PidTagInReplyToId)); len(ids) > 0 {
		h.SetMsgIDList("In-Reply-To", ids)
	}
	if ids := msgIDList(e.text(propval.PidTagInternetReferences)); len(ids) > 0 {
		h.SetMsgIDList("References", ids)
	}

	if imp, ok := e.number(propval.PidTagImportance); ok {
		switch imp {
		case 0:
			h.Set("Importance", "low")
		case 2:
			h.Set("Importance", "high")
		}
	}
	return h
}

func (e *exporter) setAddresses(h *mail.Header, key string, list []*mail.Address) {
	if len(list) == 0 {
		return
	}
	var named []string
	var addrs []*mail.Address
	for _, a := range list {
		if a.Address == "" {
			named = append(named, a.Name)
		} else {
			addrs = append(addrs, a)
		}
	}
	if len(named) > 0 {
		// display names without an address cannot form an address-list
		var parts []string
		for _, a := range addrs {
			parts = append(parts, a.String())
		}
		for _, n := range named {
			parts = append(parts, mime.QEncoding.Encode("utf-8", n))
		}
		h.Set(key, strings.Join(parts, ", "))
		return
	}
	h.SetAddressList(key, addrs)
}

func (e *exporter) recipientAddress(r *syncobj.Recipient) *mail.Address {
	name := e.textIn(r.Props, propval.PidTagDisplayName)
	addr := e.textIn(r.Props, propval.PidTagSmtpAddress)
	if addr == "" && strings.EqualFold(e.textIn(r.Props, propval.PidTagAddressType), "SMTP") {
		addr = e.textIn(r.Props, propval.PidTagEmailAddress)
	}
	if name == "" && addr == "" {
		return nil
	}
	return &mail.Address{Name: name, Address: addr}
}

func (e *exporter) address(nameTag, smtpTag, emailTag propval.Tag) *mail.Address {
	name, addr := e.text(nameTag), e.text(smtpTag)
	if addr == "" {
		if s := e.text(emailTag); strings.Contains(s, "@") {
			addr = s
		}
	}
	if name == "" && addr == "" {
		return nil
	}
	return &mail.Address{Name: name, Address: addr}
}

func (e *exporter) bodies() ([]bodyPart, error) {
	var parts []bodyPart
	if s := e.text(propval.PidTagBody); s != "" {
		parts = append(parts, bodyPart{"text/plain", []byte(s)})
	}
	if v, ok := propval.FindID(e.msg.Props, propval.PidTagHtml.ID()); ok {
		var html string
		switch d := v.Data.(type) {
		case []byte:
			var err error
			html, err = propval.DecodeString8(string(d), e.codepage)
			if err != nil {
				return nil, fmt.Errorf("html body: %w", err)
			}
		case string:
			html = e.decode(v)
		}
		if html != "" {
			parts = append(parts, bodyPart{"text/html", []byte(html)})
		}
	}
	if len(parts) == 0 || e.o.IncludeRTF {
		v, ok := e.msg.Get(propval.PidTagRtfCompressed)
		if b, _ := v.AsBytes(); ok && len(b) > 0 {
			rtf, err := lzfu.Decompress(b)
			if err != nil {
				return nil, fmt.Errorf("rtf body: %w", err)
			}
			parts = append(parts, bodyPart{"text/rtf", rtf})
		}
	}
	return parts, nil
}

func (e *exporter) attachment(mw *mail.Writer, idx int, a *syncobj.Attachment, depth int) error {
	method, _ := e.intIn(a.Props, propval.PidTagAttachMethod)
	name := e.textIn(a.Props, propval.PidTagAttachLongFilename)
	if name == "" {
		name = e.textIn(a.Props, propval.PidTagAttachFilename)
	}

	var ah mail.AttachmentHeader
	if id := e.textIn(a.Props, propval.PidTagAttachContentId); id != "" {
		ah.Set("Content-Id", "<"+trimMsgID(id)+">")
	}

	switch {
	case a.Embedded != nil || method == AttachEmbeddedMessage:
		if a.Embedded == nil {
			return fmt.Errorf("embedded message attachment without a message")
		}
		if depth >= maxEmbedDepth {
			return fmt.Errorf("embedded messages nested deeper than %d", maxEmbedDepth)
		}
		if name == "" {
			name = fmt.Sprintf("message%d.eml", idx+1)
		}
		ah.SetContentType("message/rfc822", nil)
		ah.SetFilename(name)
		ah.Set("Content-Transfer-Encoding", "8bit")
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return err
		}
		if err := write(aw, a.Embedded, e.o, depth+1); err != nil {
			return err
		}
		return aw.Close()

	case method == AttachByValue || method == 0:
		v, _ := propval.Find(a.Props, propval.PidTagAttachDataBinary)
		data, _ := v.AsBytes()
		if name == "" {
			name = fmt.Sprintf("attachment%d.bin", idx+1)
		}
		ah.SetContentType(attachmentType(e.textIn(a.Props, propval.PidTagAttachMimeTag), name), nil)
		ah.SetFilename(name)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return err
		}
		if _, err := aw.Write(data); err != nil {
			return err
		}
		return aw.Close()

	default:
		e.o.Logger.LogAttrs(context.Background(), slog.LevelWarn, "msgexport: skipping attachment", slog.Int("idx", idx), slog.Int64("method", method), slog.String("name", name))
		return nil
	}
}

func attachmentType(mimeTag, name string) string {
	if mimeTag != "" {
		return mimeTag
	}
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	return "application/octet-stream"
}

func (e *exporter) text(tag propval.Tag) string {
	return e.textIn(e.msg.Props, tag)
}

// textIn finds a string property in either string type and converts
// narrow strings using the message codepage.
func (e *exporter) textIn(props []propval.Value, tag propval.Tag) string {
	v, ok := propval.FindID(props, tag.ID())
	if !ok {
		return ""
	}
	return e.decode(v)
}

func (e *exporter) decode(v propval.Value) string {
	s, ok := v.AsString()
	if !ok {
		return ""
	}
	if v.Tag.Type() == propval.TypeString8 {
		d, err := propval.DecodeString8(s, e.codepage)
		if err != nil {
			e.o.Logger.LogAttrs(context.Background(), slog.LevelWarn, "msgexport: undecodable string", slog.String("tag", v.Tag.String()), slog.Any("err", err))
			return s
		}
		return d
	}
	return s
}

func (e *exporter) number(tag propval.Tag) (int64, bool) {
	return e.intIn(e.msg.Props, tag)
}

func (e *exporter) intIn(props []propval.Value, tag propval.Tag) (int64, bool) {
	v, ok := propval.Find(props, tag)
	if !ok {
		return 0, false
	}
	return v.AsInt64()
}

func (e *exporter) timestamp(tag propval.Tag) (time.Time, bool) {
	v, ok := e.msg.Get(tag)
	if !ok {
		return time.Time{}, false
	}
	ft, ok := v.AsFiletime()
	if !ok || ft.IsZero() {
		return time.Time{}, false
	}
	return ft.Time(), true
}

func trimMsgID(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<")
	return strings.TrimSuffix(s, ">")
}

func msgIDList(s string) []string {
	var ids []string
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' || r == '\r' || r == '\n' }) {
		if id := trimMsgID(f); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// FileName returns a file name for msg derived from its source key, or
// from n when it has none.
func FileName(msg *syncobj.Message, n int) string {
	if key := msg.SourceKey(); len(key) > 0 {
		return hex.EncodeToString(key) + ".eml"
	}
	return fmt.Sprintf("message%06d.eml", n)
}
