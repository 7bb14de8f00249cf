package kv

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/torua-kv/internal/kvtree"
)

// orderedKey is one entry of expirationOrder: a full key and the
// expiration timestamp it was inserted under.
type orderedKey struct {
	fullKey string
	at      time.Time
}

// Store is the in-process key-value store core: the State Store,
// Operation Engine, Persistence Worker, and Background Scheduler
// described in the package doc comment, all implemented as methods and
// goroutines closing over one *Store.
//
// Thread-safety:
//   - All exported methods are safe for concurrent use.
//   - Every foreground operation serializes on a single mutex (mu); there
//     is no per-key locking.
//   - At most one persistence worker goroutine runs at a time; exactly
//     one background scheduler goroutine runs per Store, from New until
//     Shutdown.
type Store struct {
	mu sync.Mutex

	tree   kvtree.Tree
	policy PersistencePolicy
	logger Logger

	// dirtyKeys maps full key to pending value; a nil value denotes a
	// pending deletion (tombstone). Presence in this map shadows both
	// keysBeingPersisted and the on-disk tree (invariant I1/I2).
	dirtyKeys map[string]*Entry

	// keysBeingPersisted is nil unless a persistence worker is currently
	// running, in which case it holds the immutable snapshot that worker
	// is writing to disk (invariant I4).
	keysBeingPersisted map[string]*Entry

	expiringKeys    map[string]time.Time
	expirationOrder []orderedKey

	lastCommit      time.Time
	lastPersistence *timeWatch

	backgroundTarget *targetWatch
	schedulerCancel  context.CancelFunc

	shuttingDown  bool
	shutdownFired bool
	shutdownCh    chan struct{}

	stats OperationStats

	wg sync.WaitGroup
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the Store's diagnostic logger.
//
// Parameters:
//   - l: logger that receives background-worker diagnostics (corrupt
//     entries, failed persistence transactions). The default writes to
//     the standard library's package-level logger.
//
// Returns:
//   - Option to pass to New.
func WithLogger(l Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New constructs a Store backed by tree, using policy to decide when to
// persist, and starts its background scheduler goroutine.
//
// Parameters:
//   - tree: the underlying ordered tree store (see kvtree.Tree); New does
//     not take ownership of closing it.
//   - policy: decides when the persistence worker commits dirty keys to
//     tree (see Immediate and Lazy).
//   - opts: optional configuration, see WithLogger.
//
// Returns:
//   - *Store: ready to accept Execute calls immediately. Callers must
//     call Shutdown before discarding the Store, to stop
//     the scheduler goroutine and drain pending writes.
//
// Thread-safety:
//   - The returned Store is safe for concurrent use from the moment New
//     returns.
//
// Example:
//
//	tree, _ := kvtree.OpenBolt("./data.db")
//	store := kv.New(tree, kv.Immediate())
//	defer store.Shutdown(context.Background())
func New(tree kvtree.Tree, policy PersistencePolicy, opts ...Option) *Store {
	s := &Store{
		tree:             tree,
		policy:           policy,
		logger:           defaultLogger{},
		dirtyKeys:        make(map[string]*Entry),
		expiringKeys:     make(map[string]time.Time),
		backgroundTarget: newTargetWatch(wakeTarget{kind: wakeNever}),
		lastPersistence:  newTimeWatch(time.Time{}),
		lastCommit:       time.Now().UTC(),
		shutdownCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.schedulerCancel = cancel
	s.wg.Add(1)
	go s.runScheduler(ctx)

	return s
}

// Execute is the Operation Engine's sole entry point: it applies op's
// Command to the full key (op.Namespace, op.Key) against the three-layer
// view and returns the result.
//
// Behavior:
//   - Expired keys are swept before op is applied, so a read of a key
//     whose expiration has just passed observes it as absent.
//   - A successful write lands in the in-memory dirty layer immediately;
//     it is visible to subsequent Execute calls before it reaches disk.
//
// Parameters:
//   - ctx: passed to any tree I/O the command performs (e.g. a CheckExists
//     read-through to disk); whether canceling it aborts that I/O depends
//     on the Tree implementation (MemTree and BoltTree ignore it).
//   - op: the namespace, key, and Command to apply.
//
// Returns:
//   - Output describing what happened (prior value, new value, or
//     nothing, depending on the command).
//   - ErrShuttingDown if Shutdown has been called.
//   - ErrTypeMismatch or ErrValueInvalid for commands applied to a value
//     of the wrong kind, or an invalid numeric value (e.g. NaN).
//
// Thread-safety:
//   - Safe for concurrent calls; all operations serialize on the Store's
//     single mutex.
//
// Performance:
//   - O(1) plus the cost of one expiration-index lookup for a key held
//     in the dirty layer; a command on any other key reads through to the
//     in-flight batch and then the tree.
func (s *Store) Execute(ctx context.Context, op Operation) (Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown {
		return Output{}, ErrShuttingDown
	}

	now := time.Now().UTC()
	s.removeExpiredKeysLocked(now)

	fk := fullKey(op.Namespace, op.Key)

	var (
		out Output
		err error
	)
	switch cmd := op.Command.(type) {
	case SetCommand:
		out, err = s.execSet(ctx, fk, cmd, now)
	case GetCommand:
		out, err = s.execGet(ctx, fk, cmd)
	case DeleteCommand:
		out, err = s.execDelete(ctx, fk, cmd)
	case IncrementCommand:
		out, err = s.execIncrDecr(ctx, fk, cmd.Amount, cmd.Saturating, true, now)
	case DecrementCommand:
		out, err = s.execIncrDecr(ctx, fk, cmd.Amount, cmd.Saturating, false, now)
	default:
		return Output{}, fmt.Errorf("kv: unknown command type %T", op.Command)
	}
	if err != nil {
		return Output{}, err
	}
	s.recordOp(op.Command)

	if s.policy.ShouldCommit(len(s.dirtyKeys), now.Sub(s.lastCommit)) {
		s.commitDirtyKeysLocked(now)
	}
	s.updateBackgroundTargetLocked(now)

	return out, nil
}

// --- command executors ---

func (s *Store) execSet(ctx context.Context, fk string, cmd SetCommand, now time.Time) (Output, error) {
	if err := validate(cmd.Value); err != nil {
		return Output{}, err
	}

	needPrior := cmd.Check != CheckNone || cmd.ReturnPrevious || cmd.KeepExistingExpiration
	var prior *Entry
	if needPrior {
		var err error
		prior, err = s.get(ctx, fk)
		if err != nil {
			return Output{}, err
		}
	}

	blocked := (cmd.Check == CheckExists && prior == nil) || (cmd.Check == CheckNotExists && prior != nil)
	if blocked {
		if cmd.ReturnPrevious {
			return Output{Kind: OutputValue, Value: valueOf(prior)}, nil
		}
		return Output{Kind: OutputNotChanged}, nil
	}

	newEntry := &Entry{Value: cmd.Value, LastUpdated: now}
	if cmd.KeepExistingExpiration {
		if prior != nil {
			newEntry.Expiration = prior.Expiration
		}
	} else {
		newEntry.Expiration = cmd.Expiration
	}

	s.updateKeyExpirationLocked(fk, newEntry.Expiration)

	var priorForStatus *Entry
	if needPrior {
		// Prior was already fetched above; place the new entry directly.
		s.dirtyKeys[fk] = newEntry
		priorForStatus = prior
	} else {
		p, err := s.replace(ctx, fk, newEntry)
		if err != nil {
			return Output{}, err
		}
		priorForStatus = p
	}

	if cmd.ReturnPrevious {
		return Output{Kind: OutputValue, Value: valueOf(priorForStatus)}, nil
	}
	if priorForStatus != nil {
		return Output{Kind: OutputUpdated, Value: newEntry.Value}, nil
	}
	return Output{Kind: OutputInserted, Value: newEntry.Value}, nil
}

func (s *Store) execGet(ctx context.Context, fk string, cmd GetCommand) (Output, error) {
	entry, err := s.get(ctx, fk)
	if err != nil {
		return Output{}, err
	}
	if cmd.Delete && entry != nil {
		s.dirtyKeys[fk] = nil
		s.updateKeyExpirationLocked(fk, nil)
	}
	return Output{Kind: OutputValue, Value: valueOf(entry)}, nil
}

func (s *Store) execDelete(ctx context.Context, fk string, cmd DeleteCommand) (Output, error) {
	prior, err := s.remove(ctx, fk)
	if err != nil {
		return Output{}, err
	}
	s.updateKeyExpirationLocked(fk, nil)

	if cmd.ReturnPrevious {
		return Output{Kind: OutputValue, Value: valueOf(prior)}, nil
	}
	if prior != nil {
		return Output{Kind: OutputDeleted, Value: prior.Value}, nil
	}
	return Output{Kind: OutputNotChanged}, nil
}

func (s *Store) execIncrDecr(ctx context.Context, fk string, amount Value, saturating, isIncrement bool, now time.Time) (Output, error) {
	prior, err := s.get(ctx, fk)
	if err != nil {
		return Output{}, err
	}

	var current Value = Uint64(0)
	if prior != nil {
		if _, ok := prior.Value.(Bytes); ok {
			return Output{}, ErrTypeMismatch
		}
		current = prior.Value
	}

	var result Value
	switch amt := amount.(type) {
	case Int64:
		a := asInt64Lossy(current)
		n := int64(amt)
		switch {
		case isIncrement && saturating:
			result = Int64(saturatingAddI64(a, n))
		case isIncrement:
			result = Int64(a + n)
		case saturating:
			result = Int64(saturatingSubI64(a, n))
		default:
			result = Int64(a - n)
		}
	case Uint64:
		a := asUint64Lossy(current)
		n := uint64(amt)
		switch {
		case isIncrement && saturating:
			result = Uint64(saturatingAddU64(a, n))
		case isIncrement:
			result = Uint64(a + n)
		case saturating:
			result = Uint64(saturatingSubU64(a, n))
		default:
			result = Uint64(a - n)
		}
	case Float64:
		a := asFloat64Lossy(current)
		n := float64(amt)
		if isIncrement {
			result = Float64(a + n)
		} else {
			result = Float64(a - n)
		}
	default:
		return Output{}, fmt.Errorf("%w: amount must be numeric, got %T", ErrTypeMismatch, amount)
	}

	if err := validate(result); err != nil {
		return Output{}, err
	}

	newEntry := &Entry{Value: result, LastUpdated: now}
	if prior != nil {
		newEntry.Expiration = prior.Expiration
	}
	if _, err := s.replace(ctx, fk, newEntry); err != nil {
		return Output{}, err
	}

	return Output{Kind: OutputValue, Value: result}, nil
}

// --- layered read (§4.3) ---

// get returns the visible entry for fk per I2: dirtyKeys shadows
// keysBeingPersisted shadows the on-disk tree. A nil *Entry with a nil
// error means the key is absent.
func (s *Store) get(ctx context.Context, fk string) (*Entry, error) {
	if e, ok := s.dirtyKeys[fk]; ok {
		return e, nil
	}
	return s.readThrough(ctx, fk)
}

// remove records a tombstone for fk and returns the prior visible entry.
func (s *Store) remove(ctx context.Context, fk string) (*Entry, error) {
	if e, ok := s.dirtyKeys[fk]; ok {
		s.dirtyKeys[fk] = nil
		return e, nil
	}
	if e, ok := s.keysBeingPersisted[fk]; ok {
		s.dirtyKeys[fk] = nil
		return e, nil
	}
	prior, err := s.readFromDisk(ctx, fk)
	if err != nil {
		return nil, err
	}
	s.dirtyKeys[fk] = nil
	return prior, nil
}

// replace stores newEntry at fk and returns the prior visible entry.
func (s *Store) replace(ctx context.Context, fk string, newEntry *Entry) (*Entry, error) {
	if prior, ok := s.dirtyKeys[fk]; ok {
		s.dirtyKeys[fk] = newEntry
		return prior, nil
	}
	prior, err := s.readThrough(ctx, fk)
	if err != nil {
		return nil, err
	}
	s.dirtyKeys[fk] = newEntry
	return prior, nil
}

// readThrough consults keysBeingPersisted then the on-disk tree. It does
// not consult dirtyKeys; callers needing the full layered view check that
// map themselves first.
func (s *Store) readThrough(ctx context.Context, fk string) (*Entry, error) {
	if e, ok := s.keysBeingPersisted[fk]; ok {
		return e, nil
	}
	return s.readFromDisk(ctx, fk)
}

// readFromDisk reads and deserializes fk from the tree. A deserialization
// failure is treated as "absent" rather than propagated (the documented
// SerializationFailure compromise): it preserves liveness against corrupt
// bytes at the cost of silently dropping them. The failure is logged.
func (s *Store) readFromDisk(ctx context.Context, fk string) (*Entry, error) {
	data, err := s.tree.Get(ctx, []byte(fk))
	if err != nil {
		return nil, storageErr("get", err)
	}
	if data == nil {
		return nil, nil
	}
	entry, err := decodeEntry(data)
	if err != nil {
		s.logger.Printf("kv: corrupt entry at %q ignored: %v", fk, err)
		return nil, nil
	}
	return entry, nil
}

// --- expiration engine (§4.2) ---

// updateKeyExpirationLocked reinserts fk into the expiration index under
// the new expiration (or removes it if expiration is nil), maintaining
// expirationOrder in ascending-timestamp order, and republishes the
// scheduler target if the head of the queue may have changed.
func (s *Store) updateKeyExpirationLocked(fk string, expiration *time.Time) {
	headChanged := false

	if _, wasExpiring := s.expiringKeys[fk]; wasExpiring {
		idx := slices.IndexFunc(s.expirationOrder, func(ok orderedKey) bool { return ok.fullKey == fk })
		if idx >= 0 {
			if idx == 0 {
				headChanged = true
			}
			s.expirationOrder = slices.Delete(s.expirationOrder, idx, idx+1)
		}
		delete(s.expiringKeys, fk)
	}

	if expiration != nil {
		t := *expiration
		pos, _ := slices.BinarySearchFunc(s.expirationOrder, t, func(ok orderedKey, target time.Time) int {
			if ok.at.After(target) {
				return 1
			}
			return -1
		})
		s.expirationOrder = slices.Insert(s.expirationOrder, pos, orderedKey{fullKey: fk, at: t})
		s.expiringKeys[fk] = t
		if pos == 0 {
			headChanged = true
		}
	}

	if headChanged {
		s.updateBackgroundTargetLocked(time.Now().UTC())
	}
}

// removeExpiredKeysLocked pops every expiration_order entry whose
// timestamp has passed, removing it from the index and writing a
// tombstone into dirtyKeys. The persistence worker later materializes
// these deletions on disk.
func (s *Store) removeExpiredKeysLocked(now time.Time) {
	i := 0
	for i < len(s.expirationOrder) && !s.expirationOrder[i].at.After(now) {
		i++
	}
	if i == 0 {
		return
	}

	expired := s.expirationOrder[:i]
	s.expirationOrder = slices.Delete(s.expirationOrder, 0, i)

	for _, ok := range expired {
		delete(s.expiringKeys, ok.fullKey)
		s.dirtyKeys[ok.fullKey] = nil
	}
}

// --- persistence scheduler & worker (§4.4) ---

// stageDirtyKeysLocked moves dirtyKeys into keysBeingPersisted if there
// is anything dirty and no worker is currently running.
func (s *Store) stageDirtyKeysLocked() (map[string]*Entry, bool) {
	if len(s.dirtyKeys) == 0 || s.keysBeingPersisted != nil {
		return nil, false
	}
	batch := s.dirtyKeys
	s.dirtyKeys = make(map[string]*Entry)
	s.keysBeingPersisted = batch
	return batch, true
}

// commitDirtyKeysLocked stages the current dirty set, if any, and spawns
// a persistence worker goroutine for it.
func (s *Store) commitDirtyKeysLocked(now time.Time) bool {
	batch, staged := s.stageDirtyKeysLocked()
	if !staged {
		return false
	}
	s.lastCommit = now
	s.wg.Add(1)
	go s.persistWorker(batch)
	return true
}

// persistWorker runs persistBatch to completion, then checks whether a
// shutdown drain needs another pass. It is written as a loop rather than
// true recursion so a single goroutine (and a single WaitGroup slot)
// handles arbitrarily many drain iterations.
func (s *Store) persistWorker(batch map[string]*Entry) {
	defer s.wg.Done()

	for {
		s.persistBatch(batch)

		s.mu.Lock()
		s.keysBeingPersisted = nil
		now := time.Now().UTC()
		s.lastPersistence.publish(now)

		if !s.shuttingDown {
			s.updateBackgroundTargetLocked(now)
			s.mu.Unlock()
			return
		}

		nextBatch, staged := s.stageDirtyKeysLocked()
		if !staged {
			s.updateBackgroundTargetLocked(now)
			s.markShutdownDoneLocked()
			s.mu.Unlock()
			return
		}
		s.lastCommit = now
		s.mu.Unlock()

		batch = nextBatch
	}
}

// persistBatch runs a single compare-swap transaction over the tree for
// batch, recording a ChangedKey for every write or tombstone materialized
// on disk, and attaches the resulting transaction log payload. It holds
// no Store lock: batch is an immutable snapshot.
func (s *Store) persistBatch(batch map[string]*Entry) {
	ctx := context.Background()

	tx, err := s.tree.BeginTx(ctx)
	if err != nil {
		s.logger.Printf("kv: persistence: begin transaction: %v", err)
		return
	}

	keys := make([]string, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var changed []ChangedKey
	for _, k := range keys {
		entry := batch[k]

		var hadPrior bool
		var encErr error
		csErr := tx.CompareSwap([]byte(k), func(existing []byte) (kvtree.Op, []byte) {
			hadPrior = existing != nil
			if entry != nil {
				data, err := encodeEntry(entry)
				if err != nil {
					encErr = err
					return kvtree.OpSkip, nil
				}
				return kvtree.OpSet, data
			}
			if existing != nil {
				return kvtree.OpRemove, nil
			}
			return kvtree.OpSkip, nil
		})
		if csErr != nil {
			s.logger.Printf("kv: persistence: compare-swap %q: %v", k, csErr)
			continue
		}
		if encErr != nil {
			s.logger.Printf("kv: persistence: encode %q: %v", k, encErr)
			continue
		}

		ns, key := splitFullKey(k)
		var nsPtr *string
		if ns != "" {
			nsPtr = &ns
		}

		switch {
		case entry != nil:
			changed = append(changed, ChangedKey{Namespace: nsPtr, Key: key, Deleted: false})
		case hadPrior:
			changed = append(changed, ChangedKey{Namespace: nsPtr, Key: key, Deleted: true})
		}
	}

	if len(changed) == 0 {
		if err := tx.Rollback(); err != nil {
			s.logger.Printf("kv: persistence: rollback: %v", err)
		}
		return
	}

	tx.SetLogPayload(encodeChangedKeys(changed))
	if err := tx.Commit(); err != nil {
		s.logger.Printf("kv: persistence: commit: %v", err)
	}
}

// updateBackgroundTargetLocked recomputes and publishes the scheduler's
// next wake target from the current expiration head and commit policy.
func (s *Store) updateBackgroundTargetLocked(now time.Time) {
	var keyExpirationTarget *time.Time
	if len(s.expirationOrder) > 0 {
		t := s.expirationOrder[0].at
		keyExpirationTarget = &t
	}

	var commitTarget *time.Time
	if s.keysBeingPersisted == nil {
		if d := s.policy.DurationUntilNextCommit(len(s.dirtyKeys), now.Sub(s.lastCommit)); d != nil {
			t := now.Add(*d)
			commitTarget = &t
		}
	}

	target := wakeTarget{kind: wakeNever}
	switch {
	case keyExpirationTarget != nil && !keyExpirationTarget.After(now):
		target = wakeTarget{kind: wakeNow}
	case commitTarget != nil && !commitTarget.After(now):
		target = wakeTarget{kind: wakeNow}
	case keyExpirationTarget != nil && commitTarget != nil:
		if keyExpirationTarget.Before(*commitTarget) {
			target = wakeTarget{kind: wakeAt, at: *keyExpirationTarget}
		} else {
			target = wakeTarget{kind: wakeAt, at: *commitTarget}
		}
	case keyExpirationTarget != nil:
		target = wakeTarget{kind: wakeAt, at: *keyExpirationTarget}
	case commitTarget != nil:
		target = wakeTarget{kind: wakeAt, at: *commitTarget}
	}

	s.backgroundTarget.publish(target)
}

// runScheduler is the single long-lived background thread: it wakes on
// whatever backgroundTarget currently demands, drains expired keys,
// commits if due, and recomputes the target, until ctx is canceled.
func (s *Store) runScheduler(ctx context.Context) {
	defer s.wg.Done()

	for {
		s.backgroundTarget.wait(ctx)
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		now := time.Now().UTC()
		s.removeExpiredKeysLocked(now)
		if s.policy.ShouldCommit(len(s.dirtyKeys), now.Sub(s.lastCommit)) {
			s.commitDirtyKeysLocked(now)
		}
		s.updateBackgroundTargetLocked(now)
		s.mu.Unlock()
	}
}

// --- shutdown (§4.5) ---

// Shutdown stops the background scheduler and blocks until every dirty
// key present at the time of the call (and any that arrive during drain)
// has been committed, or ctx is done first.
//
// Parameters:
//   - ctx: bounds how long Shutdown waits for the drain to finish; a
//     canceled or expired ctx returns ctx.Err() without stopping the
//     drain itself, which continues in the background.
//
// Returns:
//   - nil once every dirty key at call time has been committed.
//   - ctx.Err() if ctx is done before the drain completes.
//
// Thread-safety:
//   - Safe to call more than once, including concurrently; later calls
//     observe the same completion as the first.
func (s *Store) Shutdown(ctx context.Context) error {
	s.mu.Lock()

	if s.shutdownFired {
		s.mu.Unlock()
		return nil
	}

	if s.shuttingDown {
		ch := s.shutdownCh
		s.mu.Unlock()
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.shuttingDown = true
	s.schedulerCancel()

	now := time.Now().UTC()
	staged := s.commitDirtyKeysLocked(now)

	if !staged && s.keysBeingPersisted == nil {
		s.markShutdownDoneLocked()
		ch := s.shutdownCh
		s.mu.Unlock()
		<-ch
		return nil
	}

	ch := s.shutdownCh
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) markShutdownDoneLocked() {
	if !s.shutdownFired {
		s.shutdownFired = true
		close(s.shutdownCh)
	}
}

// --- snapshots ---

// AllEntries returns a consistent snapshot of every (namespace, key) →
// Entry pair visible across all three layers: an on-disk scan overlaid by
// keysBeingPersisted, overlaid by dirtyKeys. Tombstones at any layer
// remove the key from the result.
//
// Parameters:
//   - ctx: bounds the underlying tree scan.
//
// Returns:
//   - map[EntryKey]Entry: one entry per visible key, safe for the caller
//     to retain and mutate.
//   - error wrapping any tree scan failure as a StorageError.
//
// Thread-safety:
//   - Safe for concurrent calls; holds the Store mutex for the duration
//     of the scan, so it blocks other operations on a large tree.
//
// Performance:
//   - O(n) in the number of on-disk keys plus the size of the dirty and
//     in-flight layers.
func (s *Store) AllEntries(ctx context.Context) (map[EntryKey]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[EntryKey]Entry)

	err := s.tree.Scan(ctx, nil, nil, true, func(k, v []byte) (bool, error) {
		entry, err := decodeEntry(v)
		if err != nil {
			s.logger.Printf("kv: corrupt entry at %q ignored during scan: %v", k, err)
			return true, nil
		}
		result[entryKeyFromFullKey(string(k))] = *entry
		return true, nil
	})
	if err != nil {
		return nil, storageErr("scan", err)
	}

	overlay := func(layer map[string]*Entry) {
		for k, e := range layer {
			key := entryKeyFromFullKey(k)
			if e == nil {
				delete(result, key)
				continue
			}
			result[key] = *e.clone()
		}
	}
	overlay(s.keysBeingPersisted)
	overlay(s.dirtyKeys)

	return result, nil
}

// LoadExpirations rehydrates the in-memory expiration index from persisted
// state at startup: for every entry with a non-nil Expiration whose
// LastUpdated predates launchedAt, it re-registers that expiration.
//
// Parameters:
//   - ctx: bounds the AllEntries scan LoadExpirations performs.
//   - s: the freshly constructed Store to populate; should not yet be
//     serving traffic from other goroutines.
//   - launchedAt: the process start time; only entries last updated
//     before this instant are considered already-persisted state rather
//     than writes racing the load itself.
//
// Returns:
//   - error from the underlying AllEntries scan, if any.
//
// Thread-safety:
//   - Intended to run once, synchronously, before a Store is exposed to
//     callers; concurrent Execute calls during a load can race its
//     expiration registration.
//
// Example:
//
//	store := kv.New(tree, kv.Lazy(kv.Threshold{Changes: 100}))
//	kv.LoadExpirations(ctx, store, time.Now().UTC())
func LoadExpirations(ctx context.Context, s *Store, launchedAt time.Time) error {
	entries, err := s.AllEntries(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range entries {
		if entry.Expiration == nil || !entry.LastUpdated.Before(launchedAt) {
			continue
		}
		ns := ""
		if key.Namespace != nil {
			ns = *key.Namespace
		}
		s.updateKeyExpirationLocked(fullKey(ns, key.Key), entry.Expiration)
	}
	return nil
}
