package kvtree

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	dataBucket = []byte("kv")
	logBucket  = []byte("kv_log")
)

// BoltTree adapts a go.etcd.io/bbolt database file to the Tree contract.
// It is the default production Tree: bbolt is a single-writer, MVCC B+tree
// with the ordered-scan-plus-transaction shape the Tree contract needs.
type BoltTree struct {
	db *bolt.DB
}

// OpenBolt opens (creating if necessary) a bbolt database file at path.
func OpenBolt(path string) (*BoltTree, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("kvtree: open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(dataBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(logBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kvtree: create buckets: %w", err)
	}

	return &BoltTree{db: db}, nil
}

// Close releases the underlying database file.
func (t *BoltTree) Close() error { return t.db.Close() }

func (t *BoltTree) Get(_ context.Context, key []byte) ([]byte, error) {
	var value []byte
	err := t.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(dataBucket).Get(key); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kvtree: get: %w", err)
	}
	return value, nil
}

func (t *BoltTree) Scan(_ context.Context, lo, hi []byte, forward bool, fn func(k, v []byte) (bool, error)) error {
	err := t.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()

		emit := func(k, v []byte) (bool, error) { return fn(k, v) }

		if forward {
			var k, v []byte
			if lo != nil {
				k, v = c.Seek(lo)
			} else {
				k, v = c.First()
			}
			for k != nil && (hi == nil || bytes.Compare(k, hi) < 0) {
				more, err := emit(k, v)
				if err != nil || !more {
					return err
				}
				k, v = c.Next()
			}
			return nil
		}

		var k, v []byte
		if hi != nil {
			k, v = c.Seek(hi)
			if k == nil {
				k, v = c.Last()
			} else {
				k, v = c.Prev()
			}
		} else {
			k, v = c.Last()
		}
		for k != nil && (lo == nil || bytes.Compare(k, lo) >= 0) {
			more, err := emit(k, v)
			if err != nil || !more {
				return err
			}
			k, v = c.Prev()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kvtree: scan: %w", err)
	}
	return nil
}

func (t *BoltTree) BeginTx(_ context.Context) (Transaction, error) {
	tx, err := t.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("kvtree: begin transaction: %w", err)
	}
	return &boltTransaction{tx: tx}, nil
}

type boltTransaction struct {
	tx         *bolt.Tx
	logPayload []byte
}

func (t *boltTransaction) CompareSwap(key []byte, fn func(existing []byte) (Op, []byte)) error {
	bucket := t.tx.Bucket(dataBucket)

	var existing []byte
	if v := bucket.Get(key); v != nil {
		existing = append([]byte(nil), v...)
	}

	switch op, newValue := fn(existing); op {
	case OpSet:
		return bucket.Put(key, newValue)
	case OpRemove:
		return bucket.Delete(key)
	default:
		return nil
	}
}

func (t *boltTransaction) SetLogPayload(b []byte) {
	t.logPayload = append([]byte(nil), b...)
}

func (t *boltTransaction) Commit() error {
	if t.logPayload != nil {
		bucket := t.tx.Bucket(logBucket)
		var seq [8]byte
		binary.BigEndian.PutUint64(seq[:], uint64(time.Now().UnixNano()))
		if err := bucket.Put(seq[:], t.logPayload); err != nil {
			return fmt.Errorf("kvtree: write log payload: %w", err)
		}
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("kvtree: commit: %w", err)
	}
	return nil
}

func (t *boltTransaction) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != bolt.ErrTxClosed {
		return fmt.Errorf("kvtree: rollback: %w", err)
	}
	return nil
}
