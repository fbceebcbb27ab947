package flatdb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"go.etcd.io/bbolt"
)

// BoltOptions configure a BoltAdapter.
type BoltOptions struct {
	// Encoding of record values; defaults to MsgPack.
	Encoding Encoding

	// IsTesting trades durability for speed.
	IsTesting bool
}

// BoltAdapter stores each collection in its own bucket of a Bolt database.
// Keys are 8-byte big-endian record positions, values are encoded records.
type BoltAdapter struct {
	bdb *bbolt.DB
	enc Encoding
}

func OpenBolt(path string, opt BoltOptions) (*BoltAdapter, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}
	return &BoltAdapter{bdb: bdb, enc: opt.Encoding}, nil
}

func (a *BoltAdapter) Bolt() *bbolt.DB {
	return a.bdb
}

func (a *BoltAdapter) Load(ctx context.Context, name string) (Collection, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	coll := Collection{}
	err := a.bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(unsafeBytesFromString(name))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			rec, err := a.enc.DecodeRecord(v)
			if err != nil {
				return fmt.Errorf("record %x: %w", k, detachDataError(err))
			}
			coll = append(coll, rec)
		}
		return nil
	})
	if err != nil {
		return nil, adapterErrf("bolt", name, err)
	}
	return coll, nil
}

// Persist replaces the bucket's contents in a single Bolt transaction.
func (a *BoltAdapter) Persist(ctx context.Context, name string, coll Collection) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.bdb.Update(func(btx *bbolt.Tx) error {
		bname := []byte(name)
		err := btx.DeleteBucket(bname)
		if err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		b, err := btx.CreateBucket(bname)
		if err != nil {
			return err
		}
		b.FillPercent = 1.0 // keys are appended in order

		// Bolt keeps references to keys and values until commit, so
		// neither buffer can be reused between records.
		for pos, rec := range coll {
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, uint64(pos))
			if err := b.Put(key, a.enc.EncodeValue(nil, ObjectValue(rec))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return adapterErrf("bolt", name, err)
	}
	return nil
}

func (a *BoltAdapter) List(ctx context.Context) ([]string, error) {
	var names []string
	err := a.bdb.View(func(btx *bbolt.Tx) error {
		return btx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

func (a *BoltAdapter) Close() error {
	return a.bdb.Close()
}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
