package store

import (
	"errors"
	"testing"
)

func TestMemStorage_snapshots(t *testing.T) {
	s := newMemStorage()
	defer s.Close()

	w := must(s.BeginTx(true))
	b := must(w.CreateBucket("messages", "inbox"))
	ensure(t, b.Put([]byte("b"), []byte("2")))
	ensure(t, b.Put([]byte("a"), []byte("1")))
	ensure(t, w.Commit())
	ensure(t, w.Rollback())

	old := must(s.BeginTx(false))
	defer old.Rollback()

	w = must(s.BeginTx(true))
	b = w.Bucket("messages", "inbox")
	ensure(t, b.Put([]byte("a"), []byte("changed")))
	ensure(t, b.Delete([]byte("b")))
	ensure(t, b.Put([]byte("c"), []byte("3")))

	ob := old.Bucket("messages", "inbox")
	if a, e := string(ob.Get([]byte("a"))), "1"; a != e {
		t.Fatalf("snapshot a = %q, wanted %q", a, e)
	}
	var keys []string
	c := ob.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, string(k))
	}
	deepEq(t, keys, []string{"a", "b"})

	ensure(t, w.Commit())
	r := must(s.BeginTx(false))
	defer r.Rollback()
	rb := r.Bucket("messages", "inbox")
	if a, e := string(rb.Get([]byte("a"))), "changed"; a != e {
		t.Fatalf("committed a = %q, wanted %q", a, e)
	}
	if n := rb.KeyCount(); n != 2 {
		t.Fatalf("KeyCount = %d, wanted 2", n)
	}
	if r.Bucket("messages", "") == nil {
		t.Fatalf("root bucket missing")
	}
	if _, err := r.CreateBucket("state", ""); !errors.Is(err, errMemNotWritable) {
		t.Fatalf("CreateBucket in read tx = %v", err)
	}
	if err := rb.Put([]byte("x"), nil); !errors.Is(err, errMemNotWritable) {
		t.Fatalf("Put in read tx = %v", err)
	}
}

func TestMemStorage_deleteBucket(t *testing.T) {
	s := newMemStorage()
	w := must(s.BeginTx(true))
	must(w.CreateBucket("messages", "inbox"))
	if err := w.DeleteBucket("messages", ""); err != ErrBucketNotFound {
		t.Fatalf("DeleteBucket(root) = %v", err)
	}
	if err := w.DeleteBucket("messages", "sent"); err != ErrBucketNotFound {
		t.Fatalf("DeleteBucket(missing) = %v", err)
	}
	ensure(t, w.DeleteBucket("messages", "inbox"))
	if w.Bucket("messages", "inbox") != nil {
		t.Fatalf("deleted bucket still present")
	}
	ensure(t, w.Commit())

	ensure(t, s.Close())
	if _, err := s.BeginTx(true); err != errMemClosed {
		t.Fatalf("BeginTx after Close = %v", err)
	}
}
