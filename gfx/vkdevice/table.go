package vkdevice

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/forward/gfx"
)

// table maps opaque gfx handles onto native objects. Every table of a device
// shares one counter, so a handle is unique across resource kinds.
type table[T any] struct {
	kind    string
	counter *gfx.Handle
	entries map[gfx.Handle]T
}

func newTable[T any](kind string, counter *gfx.Handle) *table[T] {
	return &table[T]{
		kind:    kind,
		counter: counter,
		entries: make(map[gfx.Handle]T),
	}
}

func (t *table[T]) put(value T) gfx.Handle {
	*t.counter++
	h := *t.counter
	t.entries[h] = value
	return h
}

func (t *table[T]) get(h gfx.Handle) (T, error) {
	value, ok := t.entries[h]
	if !ok {
		return value, errors.Newf("unknown %s handle %d", t.kind, h)
	}
	return value, nil
}

// lookup is get for call sites that cannot report an error, such as command
// recording. Unknown handles resolve to the zero value.
func (t *table[T]) lookup(h gfx.Handle) T {
	return t.entries[h]
}

func (t *table[T]) take(h gfx.Handle) (T, bool) {
	value, ok := t.entries[h]
	if ok {
		delete(t.entries, h)
	}
	return value, ok
}

func (t *table[T]) len() int {
	return len(t.entries)
}
