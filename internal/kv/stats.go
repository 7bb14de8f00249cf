package kv

import "sync/atomic"

// OperationStats tracks lifetime operation counts for a Store using
// lock-free atomic counters, one per command kind.
type OperationStats struct {
	Sets       uint64
	Gets       uint64
	Deletes    uint64
	Increments uint64
	Decrements uint64
}

// StateSnapshot reports the current size of the store's in-memory
// bookkeeping structures, for monitoring and capacity planning.
type StateSnapshot struct {
	Ops OperationStats

	// DirtyKeys is the number of keys currently pending persistence.
	DirtyKeys int
	// PersistingKeys is the number of keys in the in-flight persistence
	// batch, or 0 if no worker is running.
	PersistingKeys int
	// ExpiringKeys is the number of keys with a registered expiration.
	ExpiringKeys int
}

func (s *Store) recordOp(kind Command) {
	switch kind.(type) {
	case SetCommand:
		atomic.AddUint64(&s.stats.Sets, 1)
	case GetCommand:
		atomic.AddUint64(&s.stats.Gets, 1)
	case DeleteCommand:
		atomic.AddUint64(&s.stats.Deletes, 1)
	case IncrementCommand:
		atomic.AddUint64(&s.stats.Increments, 1)
	case DecrementCommand:
		atomic.AddUint64(&s.stats.Decrements, 1)
	}
}

// Stats returns a point-in-time snapshot of operation counters and
// in-memory structure sizes.
func (s *Store) Stats() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StateSnapshot{
		Ops: OperationStats{
			Sets:       atomic.LoadUint64(&s.stats.Sets),
			Gets:       atomic.LoadUint64(&s.stats.Gets),
			Deletes:    atomic.LoadUint64(&s.stats.Deletes),
			Increments: atomic.LoadUint64(&s.stats.Increments),
			Decrements: atomic.LoadUint64(&s.stats.Decrements),
		},
		DirtyKeys:      len(s.dirtyKeys),
		PersistingKeys: len(s.keysBeingPersisted),
		ExpiringKeys:   len(s.expiringKeys),
	}
}
