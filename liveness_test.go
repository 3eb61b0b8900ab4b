package weakc

import (
	"testing"
	"unsafe"
	"weak"
)

func TestHeaderPadding(t *testing.T) {
	size := unsafe.Sizeof(WeakBag[object]{})
	t.Log("WeakBag size:", size)
	if size%CacheLineSize != 0 {
		t.Fatalf("WeakBag doesn't meet CacheLineSize: %d", size)
	}

	size = unsafe.Sizeof(WeakStrongMap[object, int]{})
	t.Log("WeakStrongMap size:", size)
	if size%CacheLineSize != 0 {
		t.Fatalf("WeakStrongMap doesn't meet CacheLineSize: %d", size)
	}
}

func TestDefaultLiveness(t *testing.T) {
	if DefaultLiveness[plain]() != nil {
		t.Fatal("types without a destroyed state need no check")
	}

	alive := DefaultLiveness[object]()
	if alive == nil {
		t.Fatal("Destroyable type got no liveness check")
	}
	o := &object{ID: 1}
	if !alive(o) {
		t.Fatalf("%+v reported dead", o)
	}
	o.destroyed = true
	if alive(o) {
		t.Fatalf("%+v reported alive", o)
	}
}

func TestResolver(t *testing.T) {
	r := newResolver[object](newConfig(nil))
	o := &object{ID: 1}
	w := weak.Make(o)

	if got := r.resolve(w); got != o {
		t.Fatalf("resolve got %p want %p", got, o)
	}
	if got := r.resolve(weak.Pointer[object]{}); got != nil {
		t.Fatalf("empty slot resolved to %v", got)
	}

	o.destroyed = true
	if got := r.resolve(w); got != nil {
		t.Fatalf("destroyed object resolved to %v", got)
	}
}

func TestWithLivenessTypeMismatch(t *testing.T) {
	mustPanic := func(name string, f func()) {
		t.Helper()
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("%s should panic for a mismatched liveness type", name)
			}
		}()
		f()
	}
	mustPanic("NewWeakBag", func() {
		NewWeakBag[object](WithLiveness(func(*plain) bool { return true }))
	})
	mustPanic("NewWeakStrongMap", func() {
		NewWeakStrongMap[plain, int](WithLiveness(func(*object) bool { return true }))
	})
}
