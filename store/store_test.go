package store

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/andreyvit/mapi"
	"github.com/andreyvit/mapi/namedprop"
	"github.com/andreyvit/mapi/propval"
	"github.com/andreyvit/mapi/syncobj"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func backends(t *testing.T) map[string]*Store {
	opt := Options{Logger: quietLogger, IsTesting: true, Now: func() time.Time { return fixedNow }}
	bolt, err := Open(filepath.Join(t.TempDir(), "cache.db"), opt)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	mem := OpenMemory(opt)
	t.Cleanup(func() {
		bolt.Close()
		mem.Close()
	})
	return map[string]*Store{"bolt": bolt, "mem": mem}
}

func message(key byte, subject string, size int32) *syncobj.Message {
	return &syncobj.Message{
		Props: []propval.Value{
			propval.Must(propval.PidTagSourceKey, []byte{0xAA, key}),
			propval.Must(propval.PidTagSubject, subject),
			propval.Must(propval.PidTagMessageSize, size),
			propval.Must(propval.PidTagMessageDeliveryTime, propval.FiletimeFromTime(fixedNow)),
			propval.Must(propval.MakeTag(0x8001, propval.TypeMVUnicode), []string{"a", "b"}),
		},
		Recipients: []*syncobj.Recipient{{Props: []propval.Value{propval.Must(propval.PidTagSmtpAddress, "x@example.com")}}},
		Attachments: []*syncobj.Attachment{{
			Props:    []propval.Value{propval.Must(propval.PidTagAttachFilename, "fwd.msg")},
			Embedded: &syncobj.Message{Props: []propval.Value{propval.Must(propval.PidTagSubject, "inner")}},
		}},
	}
}

func TestStore_messages(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m := message(1, "Quarterly report", 2500)
			ensure(t, s.PutMessage("inbox", m))
			ensure(t, s.PutMessage("inbox", message(2, "Lunch?", 50)))
			ensure(t, s.PutMessage("sent", message(3, "Re: Lunch?", 70)))

			got, stored, err := s.GetMessage("inbox", []byte{0xAA, 1})
			if err != nil {
				t.Fatalf("GetMessage failed: %v", err)
			}
			if !stored.Equal(fixedNow) {
				t.Fatalf("stored = %v, wanted %v", stored, fixedNow)
			}
			deepEq(t, got, m)

			if n := must(s.Count("inbox")); n != 2 {
				t.Fatalf("Count = %d, wanted 2", n)
			}

			var subjects []string
			filter := mapi.Property{Op: mapi.RelopGT, Tag: propval.PidTagMessageSize, Value: propval.Must(propval.PidTagMessageSize, int32(100))}
			ensure(t, s.Messages("inbox", filter, func(m *syncobj.Message) error {
				subjects = append(subjects, m.Text(propval.PidTagSubject))
				return nil
			}))
			deepEq(t, subjects, []string{"Quarterly report"})

			if _, _, err := s.GetMessage("inbox", []byte{0xAA, 3}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetMessage(other folder) = %v, wanted ErrNotFound", err)
			}
			if found := must(s.DeleteMessage("inbox", []byte{0xAA, 2})); !found {
				t.Fatalf("DeleteMessage found = false")
			}
			if found := must(s.DeleteMessage("inbox", []byte{0xAA, 2})); found {
				t.Fatalf("second DeleteMessage found = true")
			}

			ensure(t, s.DropFolder("sent"))
			if n := must(s.Count("sent")); n != 0 {
				t.Fatalf("Count after DropFolder = %d, wanted 0", n)
			}
		})
	}
}

func TestStore_rejects(t *testing.T) {
	s := OpenMemory(Options{Logger: quietLogger})
	defer s.Close()
	if err := s.PutMessage("inbox", &syncobj.Message{}); !errors.Is(err, ErrNoSourceKey) {
		t.Fatalf("PutMessage(no key) = %v, wanted ErrNoSourceKey", err)
	}
	if err := s.PutMessage("", message(1, "x", 1)); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("PutMessage(no folder) = %v, wanted ErrEmptyName", err)
	}
	stop := errors.New("stop")
	ensure(t, s.PutMessage("inbox", message(1, "x", 1)))
	if err := s.Messages("inbox", nil, func(*syncobj.Message) error { return stop }); err != stop {
		t.Fatalf("Messages = %v, wanted %v", err, stop)
	}
}

func TestStore_names(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m := namedprop.NewMap()
			ensure(t, m.Add(0x8001, namedprop.ByName(namedprop.PSPublicStrings, "Keywords")))
			ensure(t, m.Add(0x8002, namedprop.ByLID(namedprop.PSETIDAppointment, 0x820D)))
			ensure(t, s.SaveNames("alice", m))

			loaded := namedprop.NewMap()
			if n := must(s.LoadNames("alice", loaded)); n != 2 {
				t.Fatalf("LoadNames = %d, wanted 2", n)
			}
			deepEq(t, loaded.Entries(), m.Entries())

			if n := must(s.LoadNames("bob", namedprop.NewMap())); n != 0 {
				t.Fatalf("LoadNames(bob) = %d, wanted 0", n)
			}

			conflicting := namedprop.NewMap()
			ensure(t, conflicting.Add(0x8001, namedprop.ByName(namedprop.PSPublicStrings, "Other")))
			if _, err := s.LoadNames("alice", conflicting); !errors.Is(err, namedprop.ErrConflict) {
				t.Fatalf("LoadNames(conflict) = %v, wanted ErrConflict", err)
			}
		})
	}
}

func TestStore_namesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	opt := Options{Logger: quietLogger, IsTesting: true}
	m := namedprop.NewMap()
	ensure(t, m.Add(0x8001, namedprop.ByName(namedprop.PSPublicStrings, "Keywords")))
	ensure(t, m.Add(0x8002, namedprop.ByLID(namedprop.PSETIDAppointment, 0x820D)))
	ensure(t, m.Add(0x8003, namedprop.ByName(namedprop.PSPublicStrings, "Categories")))

	s := must(Open(path, opt))
	ensure(t, s.SaveNames("alice", m))
	ensure(t, s.Close())

	s = must(Open(path, opt))
	defer s.Close()
	loaded := namedprop.NewMap()
	if n := must(s.LoadNames("alice", loaded)); n != 3 {
		t.Fatalf("LoadNames = %d, wanted 3", n)
	}
	deepEq(t, loaded.Entries(), m.Entries())
}

func TestStore_applyChanges(t *testing.T) {
	s := OpenMemory(Options{Logger: quietLogger})
	defer s.Close()
	ensure(t, s.PutMessage("inbox", message(1, "Original", 10)))

	partial := &syncobj.Change{
		Partial: true,
		Header:  []propval.Value{propval.Must(propval.PidTagSourceKey, []byte{0xAA, 1})},
		Message: &syncobj.Message{
			Props:   []propval.Value{propval.Must(propval.PidTagSubject, "Edited")},
			Deleted: []propval.Tag{propval.PidTagMessageSize},
		},
	}
	full := &syncobj.Change{
		Header:  []propval.Value{propval.Must(propval.PidTagSourceKey, []byte{0xAA, 9})},
		Message: &syncobj.Message{Props: []propval.Value{propval.Must(propval.PidTagSubject, "New")}},
	}
	ensure(t, s.ApplyChanges("inbox", []*syncobj.Change{partial, full}))

	m, _, err := s.GetMessage("inbox", []byte{0xAA, 1})
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if a, e := m.Text(propval.PidTagSubject), "Edited"; a != e {
		t.Fatalf("subject = %q, wanted %q", a, e)
	}
	if _, ok := m.Get(propval.PidTagMessageSize); ok {
		t.Fatalf("deleted property survived the merge")
	}
	if len(m.Recipients) != 1 || len(m.Attachments) != 1 {
		t.Fatalf("merge lost recipients or attachments: %+v", m)
	}
	if _, _, err := s.GetMessage("inbox", []byte{0xAA, 9}); err != nil {
		t.Fatalf("GetMessage(new) failed: %v", err)
	}
}

func TestStore_state(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.State("inbox"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("State = %v, wanted ErrNotFound", err)
			}
			state := []propval.Value{propval.Must(propval.MakeTag(0x6796, propval.TypeBinary), []byte{1, 2, 3})}
			ensure(t, s.PutState("inbox", state))
			deepEq(t, must(s.State("inbox")), state)
			ensure(t, s.DropFolder("inbox"))
			if _, err := s.State("inbox"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("State after DropFolder = %v, wanted ErrNotFound", err)
			}
		})
	}
}

func TestStore_readOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.db")
	s, err := Open(path, Options{Logger: quietLogger, IsTesting: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ensure(t, s.PutMessage("inbox", message(1, "x", 1)))
	ensure(t, s.Close())

	ro, err := Open(path, Options{Logger: quietLogger, ReadOnly: true})
	if err != nil {
		t.Fatalf("Open(read-only) failed: %v", err)
	}
	defer ro.Close()
	if n := must(ro.Count("inbox")); n != 1 {
		t.Fatalf("Count = %d, wanted 1", n)
	}
	if err := ro.PutMessage("inbox", message(2, "y", 1)); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("PutMessage = %v, wanted ErrReadOnly", err)
	}
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

func deepEq[T any](t testing.TB, a, e T) {
	t.Helper()
	if !reflect.DeepEqual(a, e) {
		t.Fatalf("got %v, wanted %v", a, e)
	}
}
