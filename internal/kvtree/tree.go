// Package kvtree defines the contract internal/kv requires from an
// underlying ordered, transactional tree store, and ships a production
// adapter (bolt.go, over go.etcd.io/bbolt) plus an in-memory adapter
// (memtree.go) used by tests and by callers that want a throwaway store.
//
// internal/kv treats every Tree implementation as an external
// collaborator: it never reaches past this interface into bbolt or any
// other concrete engine.
package kvtree

import "context"

// Op is the action a CompareSwap callback requests for one key.
type Op int

const (
	// OpSkip leaves the key untouched.
	OpSkip Op = iota
	// OpSet writes the accompanying bytes as the key's new value.
	OpSet
	// OpRemove deletes the key.
	OpRemove
)

// Tree is an ordered, transactional byte-string store keyed by arbitrary
// []byte.
//
// Thread-safety:
//   - All implementations must be safe for concurrent use.
//
// Implementation notes:
//   - Keys and values are raw []byte; internal/kv owns encoding.
//   - Get and Scan must reflect only committed transactions.
//   - BeginTx transactions must be isolated: none of a transaction's
//     writes are visible to Get/Scan, or to any other transaction, until
//     Commit returns successfully.
type Tree interface {
	// Get returns the value stored at key, or nil if the key is absent.
	//
	// Parameters:
	//   - ctx: bounds the underlying read.
	//   - key: the full key to look up.
	//
	// Returns:
	//   - Value bytes if key exists, nil if absent.
	//   - error for I/O failures; never ErrKeyNotFound-style sentinels.
	//
	// Thread-safety:
	//   - Safe for concurrent calls, including while a transaction is open.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Scan iterates keys in [lo, hi) (nil bounds are open-ended) in
	// ascending order if forward is true, descending otherwise, calling
	// fn for each key/value pair. Scan stops early when fn returns
	// more=false or a non-nil error, and returns that error.
	//
	// Parameters:
	//   - ctx: bounds the overall scan.
	//   - lo, hi: half-open byte-range bounds; nil means unbounded on
	//     that side.
	//   - forward: iteration direction.
	//   - fn: called once per key/value pair; the byte slices are only
	//     valid for the duration of the call.
	//
	// Returns:
	//   - error from fn if it returned one, otherwise nil.
	//
	// Performance:
	//   - O(k) in the number of keys visited before fn returns more=false.
	Scan(ctx context.Context, lo, hi []byte, forward bool, fn func(k, v []byte) (more bool, err error)) error

	// BeginTx opens a new read-write transaction.
	//
	// Parameters:
	//   - ctx: bounds transaction setup; it does not bound the lifetime of
	//     the returned Transaction.
	//
	// Returns:
	//   - Transaction ready to accept CompareSwap calls.
	//   - error if a transaction could not be opened (e.g. the underlying
	//     database is closed).
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction is a single read-write pass over a Tree. CompareSwap may be
// called any number of times before Commit; none of its effects are
// visible to readers of the Tree until Commit returns successfully.
//
// Thread-safety:
//   - A Transaction is not safe for concurrent use from multiple
//     goroutines; exactly one goroutine should drive it from BeginTx
//     through Commit or Rollback.
type Transaction interface {
	// CompareSwap reads the current value at key (nil if absent) and
	// hands it to fn, which must return the Op to apply and, for OpSet,
	// the new value.
	//
	// Parameters:
	//   - key: the full key to read and conditionally write.
	//   - fn: receives the key's current value (nil if absent) within the
	//     transaction, including any earlier CompareSwap in the same
	//     transaction; returns OpSkip/OpSet/OpRemove and, for OpSet, the
	//     bytes to write.
	//
	// Returns:
	//   - error if the read or staged write fails.
	CompareSwap(key []byte, fn func(existing []byte) (Op, []byte)) error

	// SetLogPayload attaches an opaque payload to the transaction's
	// commit record, used by internal/kv to carry its changed-key
	// summary.
	//
	// Parameters:
	//   - b: the payload to store alongside this transaction's commit;
	//     retained until Commit, not copied defensively by all
	//     implementations, so callers should not mutate b afterward.
	SetLogPayload(b []byte)

	// Commit applies all staged writes atomically.
	//
	// Returns:
	//   - nil once every staged CompareSwap is durably applied.
	//   - error if the underlying commit fails; no partial writes are
	//     visible in that case.
	Commit() error

	// Rollback discards all staged writes. Calling Rollback after a
	// successful Commit, or calling it twice, is a no-op.
	//
	// Returns:
	//   - error only for unexpected failures releasing transaction
	//     resources; a no-op Rollback always returns nil.
	Rollback() error
}
