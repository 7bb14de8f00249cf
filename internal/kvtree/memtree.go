package kvtree

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

// MemTree is an in-memory Tree: no persistence across restarts, safe for
// concurrent use, suitable for tests and for callers that want a
// throwaway store without a database file.
type MemTree struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemTree returns an empty in-memory Tree.
func NewMemTree() *MemTree {
	return &MemTree{data: make(map[string][]byte)}
}

func (m *MemTree) Get(_ context.Context, key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *MemTree) Scan(_ context.Context, lo, hi []byte, forward bool, fn func(k, v []byte) (bool, error)) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		b := []byte(k)
		if lo != nil && bytes.Compare(b, lo) < 0 {
			continue
		}
		if hi != nil && bytes.Compare(b, hi) >= 0 {
			continue
		}
		keys = append(keys, k)
	}
	if forward {
		sort.Strings(keys)
	} else {
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	}
	snapshot := make(map[string][]byte, len(keys))
	for _, k := range keys {
		snapshot[k] = append([]byte(nil), m.data[k]...)
	}
	m.mu.Unlock()

	for _, k := range keys {
		more, err := fn([]byte(k), snapshot[k])
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

func (m *MemTree) BeginTx(_ context.Context) (Transaction, error) {
	return &memTransaction{tree: m, writes: make(map[string]memWrite)}, nil
}

type memWrite struct {
	remove bool
	value  []byte
}

// memTransaction stages writes in memory and applies them to the parent
// MemTree's map atomically on Commit. It never observes or holds the
// parent's lock except during CompareSwap reads and the final Commit
// application, mirroring the "no suspension points while locked" rule
// the real adapter follows too.
type memTransaction struct {
	tree      *MemTree
	writes    map[string]memWrite
	committed bool
}

func (t *memTransaction) CompareSwap(key []byte, fn func(existing []byte) (Op, []byte)) error {
	k := string(key)

	var existing []byte
	if w, staged := t.writes[k]; staged {
		if !w.remove {
			existing = w.value
		}
	} else {
		var err error
		existing, err = t.tree.Get(context.Background(), key)
		if err != nil {
			return err
		}
	}

	switch op, newValue := fn(existing); op {
	case OpSet:
		t.writes[k] = memWrite{value: append([]byte(nil), newValue...)}
	case OpRemove:
		t.writes[k] = memWrite{remove: true}
	}
	return nil
}

func (t *memTransaction) SetLogPayload([]byte) {
	// MemTree keeps no transaction log; it exists purely for tests.
}

func (t *memTransaction) Commit() error {
	t.tree.mu.Lock()
	defer t.tree.mu.Unlock()

	for k, w := range t.writes {
		if w.remove {
			delete(t.tree.data, k)
		} else {
			t.tree.data[k] = w.value
		}
	}
	t.committed = true
	return nil
}

func (t *memTransaction) Rollback() error {
	t.writes = nil
	return nil
}
