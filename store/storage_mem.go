package store

import (
	"errors"
	"maps"
	"slices"
	"sync"
)

var (
	errMemClosed      = errors.New("store: memory storage closed")
	errMemNotWritable = errors.New("store: read-only transaction")
)

type memKey struct{ name, sub string }

// memBucket maps keys to values. Stored values are never modified, so
// snapshots share them and a transaction copies a bucket's map only on its
// first write to it.
type memBucket map[string][]byte

// memStorage keeps the cache in memory. Each transaction works on a snapshot
// of the bucket table; writers are serialized and publish theirs on commit.
type memStorage struct {
	writer  sync.Mutex
	mu      sync.Mutex
	buckets map[memKey]memBucket
	closed  bool
}

func newMemStorage() storage {
	return &memStorage{buckets: make(map[memKey]memBucket)}
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	if writable {
		s.writer.Lock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		if writable {
			s.writer.Unlock()
		}
		return nil, errMemClosed
	}
	return &memTx{
		s:        s,
		writable: writable,
		buckets:  maps.Clone(s.buckets),
		owned:    make(map[memKey]bool),
	}, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buckets = nil
	return nil
}

type memTx struct {
	s        *memStorage
	writable bool
	done     bool
	buckets  map[memKey]memBucket
	owned    map[memKey]bool // copied or created by this tx
}

func (tx *memTx) end() {
	if !tx.done && tx.writable {
		tx.s.writer.Unlock()
	}
	tx.done = true
}

func (tx *memTx) Bucket(name, sub string) storageBucket {
	k := memKey{name, sub}
	if _, ok := tx.buckets[k]; !ok {
		return nil
	}
	return &memBucketRef{tx: tx, key: k}
}

func (tx *memTx) CreateBucket(name, sub string) (storageBucket, error) {
	if !tx.writable {
		return nil, errMemNotWritable
	}
	for _, k := range []memKey{{name, ""}, {name, sub}} {
		if _, ok := tx.buckets[k]; !ok {
			tx.buckets[k] = make(memBucket)
			tx.owned[k] = true
		}
	}
	return &memBucketRef{tx: tx, key: memKey{name, sub}}, nil
}

func (tx *memTx) DeleteBucket(name, sub string) error {
	if !tx.writable {
		return errMemNotWritable
	}
	k := memKey{name, sub}
	if _, ok := tx.buckets[k]; sub == "" || !ok {
		return ErrBucketNotFound
	}
	delete(tx.buckets, k)
	delete(tx.owned, k)
	return nil
}

func (tx *memTx) Commit() error {
	if tx.done {
		return nil
	}
	if !tx.writable {
		return errMemNotWritable
	}
	defer tx.end()
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	if tx.s.closed {
		return errMemClosed
	}
	tx.s.buckets = tx.buckets
	return nil
}

func (tx *memTx) Rollback() error {
	tx.end()
	return nil
}

// memBucketRef names a bucket by key, since a write replaces the
// transaction's map for it.
type memBucketRef struct {
	tx  *memTx
	key memKey
}

func (b *memBucketRef) items() memBucket {
	return b.tx.buckets[b.key]
}

func (b *memBucketRef) forWrite() (memBucket, error) {
	if !b.tx.writable {
		return nil, errMemNotWritable
	}
	m, ok := b.tx.buckets[b.key]
	if !ok {
		return nil, ErrBucketNotFound
	}
	if !b.tx.owned[b.key] {
		m = maps.Clone(m)
		b.tx.buckets[b.key] = m
		b.tx.owned[b.key] = true
	}
	return m, nil
}

func (b *memBucketRef) Get(key []byte) []byte {
	return b.items()[string(key)]
}

func (b *memBucketRef) Put(key, value []byte) error {
	m, err := b.forWrite()
	if err != nil {
		return err
	}
	m[string(key)] = slices.Clone(value)
	return nil
}

func (b *memBucketRef) Delete(key []byte) error {
	m, err := b.forWrite()
	if err != nil {
		return err
	}
	delete(m, string(key))
	return nil
}

func (b *memBucketRef) KeyCount() int {
	return len(b.items())
}

// Cursor iterates over the keys present when it was created.
func (b *memBucketRef) Cursor() storageCursor {
	m := b.items()
	return &memCursor{m: m, keys: slices.Sorted(maps.Keys(m)), pos: -1}
}

type memCursor struct {
	m    memBucket
	keys []string
	pos  int
}

func (c *memCursor) First() ([]byte, []byte) {
	c.pos = 0
	return c.at()
}

func (c *memCursor) Next() ([]byte, []byte) {
	c.pos++
	return c.at()
}

func (c *memCursor) at() ([]byte, []byte) {
	if c.pos >= len(c.keys) {
		return nil, nil
	}
	k := c.keys[c.pos]
	return []byte(k), c.m[k]
}
