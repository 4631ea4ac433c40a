package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andreyvit/mapi/fxparser"
	"github.com/andreyvit/mapi/namedprop"
	"github.com/andreyvit/mapi/propval"
)

var (
	openers = map[propval.Tag]bool{
		fxparser.StartTopFld:  true,
		fxparser.StartSubFld:  true,
		fxparser.StartMessage: true,
		fxparser.StartFAIMsg:  true,
		fxparser.StartRecip:   true,
		fxparser.NewAttach:    true,
		fxparser.StartEmbed:   true,
	}
	closers = map[propval.Tag]bool{
		fxparser.EndFolder:  true,
		fxparser.EndMessage: true,
		fxparser.EndToRecip: true,
		fxparser.EndAttach:  true,
		fxparser.EndEmbed:   true,
	}
)

const maxDumpValue = 64

func (a *app) dump(w io.Writer, path string) error {
	src, err := a.open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	names := namedprop.NewMap()
	p := fxparser.New(fxparser.Options{Logger: a.logger, Format: src.format, NamedProps: names})

	var depth, events int
	var start int64
	err = src.each(func(chunk []byte) error {
		p.Feed(chunk)
		for {
			ev, err := p.Next()
			if err == fxparser.ErrNeedMore {
				return nil
			} else if err != nil {
				return err
			}
			events++
			if ev.Kind == fxparser.EventMarker && closers[ev.Tag] && depth > 0 {
				depth--
			}
			fmt.Fprintf(w, "%08x  %s%s\n", start, strings.Repeat("  ", depth), describe(ev))
			if ev.Kind == fxparser.EventMarker && openers[ev.Tag] {
				depth++
			}
			start = p.Offset()
		}
	})
	if err != nil {
		var se *fxparser.StreamError
		if errors.As(err, &se) {
			fmt.Fprintf(w, "%08x  ERROR %v\n", se.Offset, se.Err)
		}
		return err
	}

	fmt.Fprintf(w, "%d events, %d bytes", events, p.Offset())
	if n := p.Buffered(); n > 0 {
		fmt.Fprintf(w, ", %d trailing bytes of an incomplete element", n)
	}
	fmt.Fprintln(w)
	if names.Len() > 0 {
		fmt.Fprintln(w, "named properties:")
		for _, e := range names.Entries() {
			fmt.Fprintf(w, "  %04x  %v\n", e.ID, e.Name)
		}
	}
	return nil
}

func describe(ev fxparser.Event) string {
	switch ev.Kind {
	case fxparser.EventMarker:
		return fxparser.TagName(ev.Tag)
	case fxparser.EventDeleteProp:
		return "DEL " + fxparser.TagName(ev.Tag)
	case fxparser.EventNamedProp:
		return fmt.Sprintf("NAME %v = %v", ev.Tag, ev.Name)
	case fxparser.EventProperty:
		return fxparser.TagName(ev.Tag) + " = " + formatValue(ev.Value)
	default:
		return ev.String()
	}
}

func formatValue(v propval.Value) string {
	switch d := v.Data.(type) {
	case []byte:
		if len(d) > maxDumpValue {
			return fmt.Sprintf("<%d bytes> %x...", len(d), d[:maxDumpValue])
		}
		return fmt.Sprintf("<%d bytes> %x", len(d), d)
	case string:
		if len(d) > maxDumpValue {
			return fmt.Sprintf("%q...", d[:maxDumpValue])
		}
		return fmt.Sprintf("%q", d)
	case nil:
		return "null"
	default:
		return fmt.Sprint(d)
	}
}
