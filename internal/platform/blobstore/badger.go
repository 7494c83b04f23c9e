package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// Badger is an ObjectStore persisted in a local BadgerDB directory. Each
// object is two keys written in one transaction: meta/<bucket>/<path> and
// data/<bucket>/<path>.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the store at dir. An empty dir opens an
// in-memory database.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

func metaKey(bucket, p string) []byte { return []byte("meta/" + objectKey(bucket, p)) }
func dataKey(bucket, p string) []byte { return []byte("data/" + objectKey(bucket, p)) }

func (b *Badger) Upload(_ context.Context, in UploadInput) (*ObjectMeta, error) {
	p, err := validateUpload(in)
	if err != nil {
		return nil, err
	}
	data, hash, err := readBody(in.Body)
	if err != nil {
		return nil, err
	}

	meta := ObjectMeta{
		Bucket:      in.Bucket,
		Path:        p,
		ContentType: in.ContentType,
		Size:        int64(len(data)),
		Hash:        hash,
		UpdatedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		if !in.Upsert {
			_, err := txn.Get(metaKey(in.Bucket, p))
			if err == nil {
				return ErrObjectExists
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		if err := txn.Set(metaKey(in.Bucket, p), encoded); err != nil {
			return err
		}
		return txn.Set(dataKey(in.Bucket, p), data)
	})
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (b *Badger) Download(_ context.Context, bucket, objectPath string) (io.ReadCloser, *ObjectMeta, error) {
	p, err := CleanPath(objectPath)
	if err != nil {
		return nil, nil, err
	}

	var meta ObjectMeta
	var data []byte
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(bucket, p))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("decode metadata: %w", err)
		}

		item, err = txn.Get(dataKey(bucket, p))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), &meta, nil
}

func (b *Badger) Delete(_ context.Context, bucket, objectPath string) error {
	p, err := CleanPath(objectPath)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(metaKey(bucket, p)); err != nil {
			return err
		}
		if err := txn.Delete(metaKey(bucket, p)); err != nil {
			return err
		}
		return txn.Delete(dataKey(bucket, p))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrObjectNotFound
	}
	return err
}

func (b *Badger) Close() error {
	return b.db.Close()
}
