// Package store is a local cache of synchronized mailbox data: named
// property mappings per mailbox, message snapshots per folder and ICS state
// per folder. It is backed by bbolt, with records encoded in msgpack.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.etcd.io/bbolt"

	"github.com/andreyvit/mapi"
	"github.com/andreyvit/mapi/namedprop"
	"github.com/andreyvit/mapi/propval"
	"github.com/andreyvit/mapi/syncobj"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrReadOnly     = errors.New("store is read-only")
	ErrNoSourceKey  = errors.New("message has no PidTagSourceKey")
	ErrKeyCollision = errors.New("source key hash collision")
	ErrEmptyName    = errors.New("empty folder or mailbox name")
)

const (
	namesBucket    = "names"
	messagesBucket = "messages"
	stateBucket    = "state"
)

type Options struct {
	Logger *slog.Logger

	// Timeout for acquiring the file lock. Zero waits 10 seconds.
	Timeout time.Duration

	ReadOnly bool

	// Now returns the time recorded with snapshots. Defaults to time.Now.
	Now func() time.Time

	IsTesting bool
}

type Store struct {
	storage  storage
	logger   *slog.Logger
	readOnly bool
	now      func() time.Time
}

// Open opens or creates a store file.
func Open(path string, o Options) (*Store, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = o.Timeout
	if bopt.Timeout == 0 {
		bopt.Timeout = 10 * time.Second
	}
	bopt.ReadOnly = o.ReadOnly
	if o.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}
	bdb, err := bbolt.Open(path, 0o666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	s := newStore(newBoltStorage(bdb), o)
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "store: opened", slog.String("path", path), slog.Bool("readonly", o.ReadOnly))
	return s, nil
}

// OpenMemory returns a store that lives in memory until closed.
func OpenMemory(o Options) *Store {
	return newStore(newMemStorage(), o)
}

func newStore(st storage, o Options) *Store {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Store{storage: st, logger: o.Logger, readOnly: o.ReadOnly, now: o.Now}
}

func (s *Store) Close() error {
	return s.storage.Close()
}

func (s *Store) read(f func(tx storageTx) error) error {
	tx, err := s.storage.BeginTx(false)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer tx.Rollback()
	return f(tx)
}

func (s *Store) write(f func(tx storageTx) error) error {
	if s.readOnly {
		return ErrReadOnly
	}
	tx, err := s.storage.BeginTx(true)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer tx.Rollback()
	if err := f(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// objectKey hashes a source key into a fixed-size bucket key.
func objectKey(sourceKey []byte) []byte {
	return binary.BigEndian.AppendUint64(nil, xxhash.Sum64(sourceKey))
}

func idKey(id uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, id)
}

// SaveNames records every mapping of m under the given mailbox, replacing
// mappings with the same id.
func (s *Store) SaveNames(mailbox string, m *namedprop.Map) error {
	if mailbox == "" {
		return ErrEmptyName
	}
	entries := m.Entries()
	return s.write(func(tx storageTx) error {
		b, err := tx.CreateBucket(namesBucket, mailbox)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := b.Put(idKey(e.ID), encodeRecord(nil, nameToRecord(e.Name))); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadNames adds the mailbox's stored mappings to m and returns how many
// were stored. A stored mapping that conflicts with m is an error.
func (s *Store) LoadNames(mailbox string, m *namedprop.Map) (int, error) {
	var n int
	err := s.read(func(tx storageTx) error {
		b := tx.Bucket(namesBucket, mailbox)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(k) != 2 {
				return fmt.Errorf("%w: named property key %x", propval.ErrCorrupt, k)
			}
			var rec nameRecord
			if err := decodeRecord(v, &rec); err != nil {
				return err
			}
			name, err := recordToName(rec)
			if err != nil {
				return err
			}
			if err := m.Add(binary.BigEndian.Uint16(k), name); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// PutMessage stores a snapshot of m in the folder, keyed by its source key.
func (s *Store) PutMessage(folder string, m *syncobj.Message) error {
	if folder == "" {
		return ErrEmptyName
	}
	sk := m.SourceKey()
	if len(sk) == 0 {
		return ErrNoSourceKey
	}
	rec, err := messageToRecord(m)
	if err != nil {
		return fmt.Errorf("store: message %x: %w", sk, err)
	}
	rec.SourceKey = sk
	rec.Stored = s.now().UnixNano()
	data := encodeRecord(nil, rec)

	return s.write(func(tx storageTx) error {
		b, err := tx.CreateBucket(messagesBucket, folder)
		if err != nil {
			return err
		}
		key := objectKey(sk)
		if old := b.Get(key); old != nil {
			var prev messageRecord
			if err := decodeRecord(old, &prev); err == nil && !bytes.Equal(prev.SourceKey, sk) {
				return fmt.Errorf("%w: %x and %x", ErrKeyCollision, prev.SourceKey, sk)
			}
		}
		return b.Put(key, data)
	})
}

// GetMessage returns the stored snapshot and the time it was stored.
func (s *Store) GetMessage(folder string, sourceKey []byte) (*syncobj.Message, time.Time, error) {
	var m *syncobj.Message
	var stored time.Time
	err := s.read(func(tx storageTx) error {
		b := tx.Bucket(messagesBucket, folder)
		if b == nil {
			return ErrNotFound
		}
		data := b.Get(objectKey(sourceKey))
		if data == nil {
			return ErrNotFound
		}
		var rec messageRecord
		if err := decodeRecord(data, &rec); err != nil {
			return err
		}
		if !bytes.Equal(rec.SourceKey, sourceKey) {
			return ErrNotFound
		}
		var err error
		m, err = recordToMessage(&rec)
		stored = time.Unix(0, rec.Stored)
		return err
	})
	return m, stored, err
}

// DeleteMessage removes a snapshot and reports whether it existed.
func (s *Store) DeleteMessage(folder string, sourceKey []byte) (bool, error) {
	var found bool
	err := s.write(func(tx storageTx) error {
		b := tx.Bucket(messagesBucket, folder)
		if b == nil {
			return nil
		}
		key := objectKey(sourceKey)
		data := b.Get(key)
		if data == nil {
			return nil
		}
		var rec messageRecord
		if err := decodeRecord(data, &rec); err != nil {
			return err
		}
		if !bytes.Equal(rec.SourceKey, sourceKey) {
			return nil
		}
		found = true
		return b.Delete(key)
	})
	return found, err
}

// Messages calls f for every message in the folder that matches filter, in
// key order. A nil filter matches everything. Returning an error from f
// stops the scan.
func (s *Store) Messages(folder string, filter mapi.Restriction, f func(m *syncobj.Message) error) error {
	return s.read(func(tx storageTx) error {
		b := tx.Bucket(messagesBucket, folder)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec messageRecord
			if err := decodeRecord(v, &rec); err != nil {
				return fmt.Errorf("store: message %x: %w", k, err)
			}
			m, err := recordToMessage(&rec)
			if err != nil {
				return fmt.Errorf("store: message %x: %w", rec.SourceKey, err)
			}
			if filter != nil && !mapi.Match(filter, m.Props) {
				continue
			}
			if err := f(m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Count(folder string) (int, error) {
	var n int
	err := s.read(func(tx storageTx) error {
		if b := tx.Bucket(messagesBucket, folder); b != nil {
			n = b.KeyCount()
		}
		return nil
	})
	return n, err
}

// DropFolder deletes every snapshot and the sync state of a folder.
func (s *Store) DropFolder(folder string) error {
	return s.write(func(tx storageTx) error {
		if err := tx.DeleteBucket(messagesBucket, folder); err != nil && err != ErrBucketNotFound {
			return err
		}
		if b := tx.Bucket(stateBucket, ""); b != nil {
			return b.Delete([]byte(folder))
		}
		return nil
	})
}

// ApplyChanges stores the messages of incremental sync changes. Partial
// changes are merged into the stored snapshot: their properties replace
// stored ones with the same tag, and properties they list as deleted are
// dropped.
func (s *Store) ApplyChanges(folder string, changes []*syncobj.Change) error {
	for _, c := range changes {
		if c.Message == nil {
			continue
		}
		m := c.Message
		if sk, ok := propval.Find(c.Header, propval.PidTagSourceKey); ok && m.SourceKey() == nil {
			m.Props = append(m.Props, sk)
		}
		if c.Partial {
			prev, _, err := s.GetMessage(folder, m.SourceKey())
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if prev != nil {
				m = merge(prev, m)
			} else {
				s.logger.LogAttrs(context.Background(), slog.LevelWarn, "store: partial change for a message not in the store", slog.String("folder", folder), slog.String("source_key", fmt.Sprintf("%x", m.SourceKey())))
			}
		}
		if err := s.PutMessage(folder, m); err != nil {
			return err
		}
	}
	return nil
}

func merge(prev, upd *syncobj.Message) *syncobj.Message {
	out := *upd
	out.Props = nil
	for _, v := range prev.Props {
		if _, replaced := propval.Find(upd.Props, v.Tag); replaced {
			continue
		}
		if deleted(upd.Deleted, v.Tag) {
			continue
		}
		out.Props = append(out.Props, v)
	}
	out.Props = append(out.Props, upd.Props...)
	out.Deleted = nil
	if len(upd.Recipients) == 0 {
		out.Recipients = prev.Recipients
	}
	if len(upd.Attachments) == 0 {
		out.Attachments = prev.Attachments
	}
	return &out
}

func deleted(tags []propval.Tag, tag propval.Tag) bool {
	for _, t := range tags {
		if t.ID() == tag.ID() {
			return true
		}
	}
	return false
}

// PutState saves the ICS state properties of a folder (the properties
// between IncrSyncStateBegin and IncrSyncStateEnd).
func (s *Store) PutState(folder string, props []propval.Value) error {
	if folder == "" {
		return ErrEmptyName
	}
	data, err := encodeProps(props)
	if err != nil {
		return fmt.Errorf("store: state: %w", err)
	}
	rec := encodeRecord(nil, &stateRecord{Stored: s.now().UnixNano(), Props: data})
	return s.write(func(tx storageTx) error {
		b, err := tx.CreateBucket(stateBucket, "")
		if err != nil {
			return err
		}
		return b.Put([]byte(folder), rec)
	})
}

// State returns the folder's saved ICS state, or ErrNotFound.
func (s *Store) State(folder string) ([]propval.Value, error) {
	var props []propval.Value
	err := s.read(func(tx storageTx) error {
		b := tx.Bucket(stateBucket, "")
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(folder))
		if data == nil {
			return ErrNotFound
		}
		var rec stateRecord
		if err := decodeRecord(data, &rec); err != nil {
			return err
		}
		var err error
		props, err = decodeProps(rec.Props)
		return err
	})
	return props, err
}
