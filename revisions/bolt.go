package revisions

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hupe1980/segstore/model"
)

var (
	bucketRevisions = []byte("revisions")
	bucketJournal   = []byte("journal")
	keyHead         = []byte("head")
)

// BoltOptions configures Bolt.
type BoltOptions struct {
	// NoSync skips fsync on commit. Only for tests.
	NoSync bool
	// Timeout bounds waiting for the file lock.
	Timeout time.Duration
}

// Bolt keeps the head in a bbolt database next to the store. Every accepted
// head is also appended to a journal, so earlier heads can be inspected.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens or creates the revisions database at path.
func OpenBolt(path string, opts BoltOptions) (*Bolt, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = opts.Timeout
	if bopt.Timeout == 0 {
		bopt.Timeout = 10 * time.Second
	}
	bopt.NoSync = opts.NoSync
	bopt.FreelistType = bbolt.FreelistMapType

	db, err := bbolt.Open(path, 0o644, bopt)
	if err != nil {
		return nil, fmt.Errorf("revisions: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRevisions); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketJournal)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("revisions: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Head implements Revisions.
func (b *Bolt) Head(ctx context.Context) (head model.RecordID, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return model.RecordID{}, false, err
	}
	err = b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRevisions).Get(keyHead)
		if v == nil {
			return nil
		}
		head, err = decodeRecordID(v)
		ok = err == nil
		return err
	})
	return head, ok, translateBoltError(err)
}

// SetHead implements Revisions.
func (b *Bolt) SetHead(ctx context.Context, expected, head model.RecordID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var swapped bool
	err := b.db.Update(func(tx *bbolt.Tx) error {
		revs := tx.Bucket(bucketRevisions)

		var current model.RecordID
		if v := revs.Get(keyHead); v != nil {
			var err error
			if current, err = decodeRecordID(v); err != nil {
				return err
			}
		}
		if current != expected {
			return nil
		}

		enc := encodeRecordID(head)
		if err := revs.Put(keyHead, enc); err != nil {
			return err
		}
		journal := tx.Bucket(bucketJournal)
		seq, err := journal.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		if err := journal.Put(key[:], enc); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	return swapped, translateBoltError(err)
}

// Journal returns every head accepted so far, oldest first.
func (b *Bolt) Journal(ctx context.Context) ([]model.RecordID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var heads []model.RecordID
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketJournal).ForEach(func(_, v []byte) error {
			r, err := decodeRecordID(v)
			if err != nil {
				return err
			}
			heads = append(heads, r)
			return nil
		})
	})
	return heads, translateBoltError(err)
}

// Close implements Revisions.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func translateBoltError(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}
