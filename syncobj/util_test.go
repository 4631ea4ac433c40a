package syncobj

import (
	"reflect"
	"testing"
)

func ensure(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("** %v", err)
	}
}

func deepEq[T any](t testing.TB, a, e T) {
	t.Helper()
	if !reflect.DeepEqual(a, e) {
		t.Fatalf("got %v, wanted %v", a, e)
	}
}
