package kv

import "time"

// PersistencePolicy decides when accumulated dirty writes should be staged
// into a background persistence transaction.
//
// Thread-safety:
//   - Implementations must be safe for concurrent use; the store calls
//     them while holding its mutex, so a policy must not call back into
//     the Store.
type PersistencePolicy interface {
	// ShouldCommit reports whether a commit should happen now.
	//
	// Parameters:
	//   - dirtyCount: number of keys currently dirty (staged in memory,
	//     not yet on disk).
	//   - elapsed: time since the last commit was staged (or since the
	//     Store was created, before the first one).
	//
	// Returns:
	//   - true if a commit should be staged immediately.
	ShouldCommit(dirtyCount int, elapsed time.Duration) bool

	// DurationUntilNextCommit returns how long until a commit should
	// happen if nothing else changes.
	//
	// Parameters:
	//   - dirtyCount: number of keys currently dirty.
	//   - elapsed: time since the last commit was staged (or since the
	//     Store was created, before the first one).
	//
	// Returns:
	//   - *time.Duration until the next commit is due, or nil if no
	//     deadline applies at the current dirty count.
	DurationUntilNextCommit(dirtyCount int, elapsed time.Duration) *time.Duration
}

// Threshold is one clause of a LazyPolicy: once at least Changes keys are
// dirty AND (Duration is nil OR at least Duration has elapsed since the
// last commit), a commit is due.
type Threshold struct {
	Changes  int
	Duration *time.Duration
}

func dur(d time.Duration) *time.Duration { return &d }

// immediatePolicy commits after every single operation.
type immediatePolicy struct{}

// Immediate returns a PersistencePolicy that stages and commits after
// every mutating operation, trading throughput for minimal durability
// lag.
//
// Returns:
//   - PersistencePolicy whose ShouldCommit is true whenever any key is
//     dirty.
//
// Performance:
//   - One persistence transaction per mutating operation; not
//     recommended for write-heavy workloads against a disk-backed Tree.
//
// Example:
//
//	store := kv.New(tree, kv.Immediate())
func Immediate() PersistencePolicy { return immediatePolicy{} }

func (immediatePolicy) ShouldCommit(dirtyCount int, _ time.Duration) bool {
	return dirtyCount > 0
}

func (immediatePolicy) DurationUntilNextCommit(dirtyCount int, _ time.Duration) *time.Duration {
	if dirtyCount > 0 {
		return dur(0)
	}
	return nil
}

// lazyPolicy commits once any of its thresholds is satisfied.
type lazyPolicy struct {
	thresholds []Threshold
}

// Lazy returns a PersistencePolicy that defers commits until one of the
// given thresholds is met. A Threshold with a nil Duration fires purely on
// change count; a Threshold combining Changes and Duration fires once both
// conditions hold.
//
// Parameters:
//   - thresholds: evaluated independently; a commit is due as soon as any
//     one of them is satisfied.
//
// Returns:
//   - PersistencePolicy that commits on the first satisfied threshold.
//
// Example:
//
//	fiveSeconds := 5 * time.Second
//	policy := kv.Lazy(
//	    kv.Threshold{Changes: 100},
//	    kv.Threshold{Changes: 1, Duration: &fiveSeconds},
//	)
func Lazy(thresholds ...Threshold) PersistencePolicy {
	return lazyPolicy{thresholds: thresholds}
}

func (p lazyPolicy) ShouldCommit(dirtyCount int, elapsed time.Duration) bool {
	for _, t := range p.thresholds {
		if dirtyCount >= t.Changes && (t.Duration == nil || elapsed >= *t.Duration) {
			return true
		}
	}
	return false
}

func (p lazyPolicy) DurationUntilNextCommit(dirtyCount int, elapsed time.Duration) *time.Duration {
	var best *time.Duration
	for _, t := range p.thresholds {
		if dirtyCount < t.Changes {
			continue
		}
		if t.Duration == nil {
			// This threshold is satisfied purely by change count and is
			// already due; no need to wait further.
			return dur(0)
		}
		remaining := *t.Duration - elapsed
		if remaining < 0 {
			remaining = 0
		}
		if best == nil || remaining < *best {
			best = dur(remaining)
		}
	}
	return best
}
