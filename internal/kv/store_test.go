package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/torua-kv/internal/kvtree"
)

func newTestStore(t *testing.T, policy PersistencePolicy) (*Store, kvtree.Tree) {
	t.Helper()
	tree := kvtree.NewMemTree()
	s := New(tree, policy)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, tree
}

func setBytes(t *testing.T, s *Store, ns, key, value string) Output {
	t.Helper()
	out, err := s.Execute(context.Background(), Operation{
		Namespace: ns,
		Key:       key,
		Command:   SetCommand{Value: Bytes(value)},
	})
	require.NoError(t, err)
	return out
}

func getValue(t *testing.T, s *Store, ns, key string) Output {
	t.Helper()
	out, err := s.Execute(context.Background(), Operation{
		Namespace: ns,
		Key:       key,
		Command:   GetCommand{},
	})
	require.NoError(t, err)
	return out
}

// P1: a Get immediately after a successful Set returns the set value.
func TestSetThenGetReturnsSetValue(t *testing.T) {
	s, _ := newTestStore(t, Immediate())

	out := setBytes(t, s, "ns", "akey", "v1")
	assert.Equal(t, OutputInserted, out.Kind)

	got := getValue(t, s, "ns", "akey")
	require.NotNil(t, got.Value)
	assert.Equal(t, Bytes("v1"), got.Value)
}

// P2: Get returns absent after Delete.
func TestDeleteThenGetReturnsAbsent(t *testing.T) {
	s, _ := newTestStore(t, Immediate())

	setBytes(t, s, "ns", "akey", "v1")

	out, err := s.Execute(context.Background(), Operation{
		Namespace: "ns", Key: "akey", Command: DeleteCommand{},
	})
	require.NoError(t, err)
	assert.Equal(t, OutputDeleted, out.Kind)

	got := getValue(t, s, "ns", "akey")
	assert.Nil(t, got.Value)
}

func TestSetCheckExistsBlocksOnAbsentKey(t *testing.T) {
	s, _ := newTestStore(t, Immediate())

	out, err := s.Execute(context.Background(), Operation{
		Namespace: "ns", Key: "akey",
		Command: SetCommand{Value: Bytes("v"), Check: CheckExists},
	})
	require.NoError(t, err)
	assert.Equal(t, OutputNotChanged, out.Kind)

	got := getValue(t, s, "ns", "akey")
	assert.Nil(t, got.Value)
}

func TestSetCheckNotExistsBlocksOnPresentKey(t *testing.T) {
	s, _ := newTestStore(t, Immediate())
	setBytes(t, s, "ns", "akey", "v1")

	out, err := s.Execute(context.Background(), Operation{
		Namespace: "ns", Key: "akey",
		Command: SetCommand{Value: Bytes("v2"), Check: CheckNotExists},
	})
	require.NoError(t, err)
	assert.Equal(t, OutputNotChanged, out.Kind)

	got := getValue(t, s, "ns", "akey")
	assert.Equal(t, Bytes("v1"), got.Value)
}

func TestSetReturnPreviousReportsPriorEvenWhenBlocked(t *testing.T) {
	s, _ := newTestStore(t, Immediate())
	setBytes(t, s, "ns", "akey", "v1")

	out, err := s.Execute(context.Background(), Operation{
		Namespace: "ns", Key: "akey",
		Command: SetCommand{Value: Bytes("v2"), Check: CheckNotExists, ReturnPrevious: true},
	})
	require.NoError(t, err)
	assert.Equal(t, OutputValue, out.Kind)
	assert.Equal(t, Bytes("v1"), out.Value)

	got := getValue(t, s, "ns", "akey")
	assert.Equal(t, Bytes("v1"), got.Value, "blocked write must not change the stored value")
}

func TestGetDeleteRemovesKey(t *testing.T) {
	s, _ := newTestStore(t, Immediate())
	setBytes(t, s, "ns", "akey", "v1")

	out, err := s.Execute(context.Background(), Operation{
		Namespace: "ns", Key: "akey", Command: GetCommand{Delete: true},
	})
	require.NoError(t, err)
	assert.Equal(t, Bytes("v1"), out.Value)

	got := getValue(t, s, "ns", "akey")
	assert.Nil(t, got.Value)
}

func TestIncrementOnAbsentKeyStartsFromZero(t *testing.T) {
	s, _ := newTestStore(t, Immediate())

	out, err := s.Execute(context.Background(), Operation{
		Namespace: "ns", Key: "counter",
		Command: IncrementCommand{Amount: Int64(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, Int64(5), out.Value)
}

func TestDecrementWrappingUnderflow(t *testing.T) {
	s, _ := newTestStore(t, Immediate())
	s.Execute(context.Background(), Operation{
		Namespace: "ns", Key: "counter",
		Command: SetCommand{Value: Uint64(0)},
	})

	out, err := s.Execute(context.Background(), Operation{
		Namespace: "ns", Key: "counter",
		Command: DecrementCommand{Amount: Uint64(1), Saturating: false},
	})
	require.NoError(t, err)
	assert.Equal(t, Uint64(^uint64(0)), out.Value)
}

func TestDecrementSaturatingUnderflowClampsToZero(t *testing.T) {
	s, _ := newTestStore(t, Immediate())
	s.Execute(context.Background(), Operation{
		Namespace: "ns", Key: "counter",
		Command: SetCommand{Value: Uint64(0)},
	})

	out, err := s.Execute(context.Background(), Operation{
		Namespace: "ns", Key: "counter",
		Command: DecrementCommand{Amount: Uint64(1), Saturating: true},
	})
	require.NoError(t, err)
	assert.Equal(t, Uint64(0), out.Value)
}

func TestIncrementOnBytesValueIsTypeMismatch(t *testing.T) {
	s, _ := newTestStore(t, Immediate())
	setBytes(t, s, "ns", "akey", "v1")

	_, err := s.Execute(context.Background(), Operation{
		Namespace: "ns", Key: "akey",
		Command: IncrementCommand{Amount: Int64(1)},
	})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestSetRejectsNaN(t *testing.T) {
	s, _ := newTestStore(t, Immediate())

	_, err := s.Execute(context.Background(), Operation{
		Namespace: "ns", Key: "akey",
		Command: SetCommand{Value: Float64(nan())},
	})
	assert.ErrorIs(t, err, ErrValueInvalid)
}

func nan() float64 {
	var zero float64
	return zero / zero
}

// --- seed scenario 1: basic expiration ---

func TestBasicExpiration(t *testing.T) {
	s, tree := newTestStore(t, Immediate())
	ctx := context.Background()

	require.NoError(t, writeRawEntry(ctx, tree, "atree", "akey", Bytes("v")))

	s.mu.Lock()
	s.updateKeyExpirationLocked(fullKey("atree", "akey"), timePtr(time.Now().Add(100*time.Millisecond)))
	s.mu.Unlock()

	waitForPersistenceAfter(t, s, time.Now())

	v, err := tree.Get(ctx, []byte(fullKey("atree", "akey")))
	require.NoError(t, err)
	assert.Nil(t, v)
}

// --- seed scenario 2: updating expiration ---

func TestUpdatingExpirationExtendsLifetime(t *testing.T) {
	s, tree := newTestStore(t, Immediate())
	ctx := context.Background()

	require.NoError(t, writeRawEntry(ctx, tree, "atree", "akey", Bytes("v")))

	s.mu.Lock()
	s.updateKeyExpirationLocked(fullKey("atree", "akey"), timePtr(time.Now().Add(100*time.Millisecond)))
	s.updateKeyExpirationLocked(fullKey("atree", "akey"), timePtr(time.Now().Add(time.Second)))
	s.mu.Unlock()

	// If the earlier 100ms expiration were still in effect the key would be
	// gone well before this point; the extension must have taken hold.
	time.Sleep(150 * time.Millisecond)
	v, err := tree.Get(ctx, []byte(fullKey("atree", "akey")))
	require.NoError(t, err)
	assert.NotNil(t, v, "expiration should have been extended past the original 100ms deadline")

	require.Eventually(t, func() bool {
		v, err := tree.Get(ctx, []byte(fullKey("atree", "akey")))
		return err == nil && v == nil
	}, 2*time.Second, 10*time.Millisecond)
}

// --- seed scenario 3: multi-key expiration ---

func TestMultiKeyExpiration(t *testing.T) {
	s, tree := newTestStore(t, Immediate())
	ctx := context.Background()

	require.NoError(t, writeRawEntry(ctx, tree, "atree", "short", Bytes("v")))
	require.NoError(t, writeRawEntry(ctx, tree, "atree", "long", Bytes("v")))

	s.mu.Lock()
	s.updateKeyExpirationLocked(fullKey("atree", "short"), timePtr(time.Now().Add(100*time.Millisecond)))
	s.updateKeyExpirationLocked(fullKey("atree", "long"), timePtr(time.Now().Add(time.Second)))
	s.mu.Unlock()

	require.Eventually(t, func() bool {
		v, err := tree.Get(ctx, []byte(fullKey("atree", "short")))
		return err == nil && v == nil
	}, time.Second, 10*time.Millisecond)

	v, err := tree.Get(ctx, []byte(fullKey("atree", "long")))
	require.NoError(t, err)
	assert.NotNil(t, v)

	require.Eventually(t, func() bool {
		v, err := tree.Get(ctx, []byte(fullKey("atree", "long")))
		return err == nil && v == nil
	}, 2*time.Second, 10*time.Millisecond)
}

// --- seed scenario 4: clearing expiration ---

func TestClearingExpirationPreventsRemoval(t *testing.T) {
	s, tree := newTestStore(t, Immediate())
	ctx := context.Background()

	require.NoError(t, writeRawEntry(ctx, tree, "atree", "akey", Bytes("v")))

	fk := fullKey("atree", "akey")
	s.mu.Lock()
	s.updateKeyExpirationLocked(fk, timePtr(time.Now().Add(100*time.Millisecond)))
	s.updateKeyExpirationLocked(fk, nil)
	s.mu.Unlock()

	time.Sleep(150 * time.Millisecond)

	v, err := tree.Get(ctx, []byte(fk))
	require.NoError(t, err)
	assert.NotNil(t, v, "key must survive: its expiration was cleared before it fired")
}

// --- seed scenario 5: threshold-based persistence ---

func TestThresholdBasedPersistence(t *testing.T) {
	twoSeconds := 2 * time.Second
	policy := Lazy(
		Threshold{Changes: 2},
		Threshold{Changes: 1, Duration: &twoSeconds},
	)
	s, tree := newTestStore(t, policy)
	ctx := context.Background()

	start := time.Now()
	setBytes(t, s, "ns", "key1", "v1")
	setBytes(t, s, "ns", "key2", "v2")
	setBytes(t, s, "ns", "key3", "v3")

	require.Eventually(t, func() bool {
		v1, _ := tree.Get(ctx, []byte(fullKey("ns", "key1")))
		v2, _ := tree.Get(ctx, []byte(fullKey("ns", "key2")))
		return v1 != nil && v2 != nil
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		v3, _ := tree.Get(ctx, []byte(fullKey("ns", "key3")))
		return v3 != nil
	}, 4*time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, time.Since(start), twoSeconds)
}

// --- seed scenario 6: saves on shutdown drain ---

func TestShutdownDrainsPendingWrites(t *testing.T) {
	policy := Lazy(Threshold{Changes: 2})
	tree := kvtree.NewMemTree()
	s := New(tree, policy)
	ctx := context.Background()

	setBytes(t, s, "ns", "key1", "v1")

	v, err := tree.Get(ctx, []byte(fullKey("ns", "key1")))
	require.NoError(t, err)
	assert.Nil(t, v, "a single set under a threshold of 2 must not yet be on disk")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(shutdownCtx))

	v, err = tree.Get(ctx, []byte(fullKey("ns", "key1")))
	require.NoError(t, err)
	assert.NotNil(t, v)
}

// Shutdown may be called again after it has completed.
func TestShutdownIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, Immediate())
	setBytes(t, s, "ns", "akey", "v1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx))
}

// P8: after shutdown, dirty_keys is empty and no batch is in flight.
func TestShutdownLeavesNoDirtyState(t *testing.T) {
	s, _ := newTestStore(t, Lazy(Threshold{Changes: 100}))
	setBytes(t, s, "ns", "akey", "v1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.dirtyKeys)
	assert.Nil(t, s.keysBeingPersisted)
}

func TestAllEntriesOverlaysAllLayers(t *testing.T) {
	s, _ := newTestStore(t, Lazy(Threshold{Changes: 100}))
	ctx := context.Background()

	setBytes(t, s, "ns", "a", "1")
	setBytes(t, s, "ns", "b", "2")

	s.Execute(ctx, Operation{Namespace: "ns", Key: "b", Command: DeleteCommand{}})

	entries, err := s.AllEntries(ctx)
	require.NoError(t, err)

	ns := "ns"
	require.Contains(t, entries, EntryKey{Namespace: &ns, Key: "a"})
	assert.NotContains(t, entries, EntryKey{Namespace: &ns, Key: "b"})
}

// --- helpers ---

func writeRawEntry(ctx context.Context, tree kvtree.Tree, ns, key string, value Value) error {
	entry := &Entry{Value: value, LastUpdated: time.Now().UTC()}
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	tx, err := tree.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := tx.CompareSwap([]byte(fullKey(ns, key)), func([]byte) (kvtree.Op, []byte) {
		return kvtree.OpSet, data
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func timePtr(t time.Time) *time.Time { return &t }

func waitForPersistenceAfter(t *testing.T, s *Store, after time.Time) time.Time {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		last := s.lastPersistence.snapshot()
		if last.After(after) {
			return last
		}
		last = s.lastPersistence.wait(ctx)
		if last.After(after) {
			return last
		}
		if ctx.Err() != nil {
			t.Fatalf("timed out waiting for persistence")
		}
	}
}
