// Package kv implements Torua's embedded key-value store core: namespaced
// set/get/delete/increment/decrement operations backed by a pluggable
// ordered tree store (see internal/kvtree), with deferred durability and
// per-key TTL expiration.
//
// # Architecture
//
// The package is built from four cooperating pieces: foreground state, a
// background persistence scheduler, operation execution, and the
// underlying tree store.
//
//	┌─────────────────────────────────────┐
//	│              Store                  │
//	│  (state: dirty map, in-flight       │
//	│   batch, expiration index, mutex)   │
//	└─────────────────────────────────────┘
//	       │                    │
//	       ▼                    ▼
//	┌─────────────┐     ┌───────────────────┐
//	│  Operation  │     │   background       │
//	│  execution  │     │   scheduler        │
//	│  (Execute)  │     │   goroutine        │
//	└─────────────┘     └───────────────────┘
//	       │                    │
//	       ▼                    ▼
//	┌─────────────────────────────────────┐
//	│         kvtree.Tree (bbolt, ...)    │
//	└─────────────────────────────────────┘
//
// A value written via Execute is visible to readers immediately (it lands
// in the in-memory dirty map). It is only pushed to the tree once the
// configured PersistencePolicy decides enough changes (or enough time) has
// accumulated; until then it survives entirely in memory and is lost on an
// unclean process exit, which is the documented trade-off of deferred
// durability.
//
// # Concurrency
//
// All foreground operations serialize on a single mutex (Store.mu). At most
// one persistence worker goroutine runs at a time (Store.keysBeingPersisted
// is non-nil for exactly its lifetime), and exactly one background scheduler
// goroutine runs per Store, started by New and stopped by Shutdown.
package kv
