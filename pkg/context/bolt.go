package context

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// contextsBucket holds one key per context id.
const contextsBucket = "contexts"

// BoltBackend is a bbolt-backed implementation of Backend.
type BoltBackend struct {
	db *bolt.DB
}

// NewBoltBackend opens (or creates) a bbolt database at path.
func NewBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(contextsBucket)); err != nil {
			return fmt.Errorf("create bucket %s: %w", contextsBucket, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Load(id string) (Record, bool, error) {
	var (
		rec   Record
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(contextsBucket)).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return Record{}, false, fmt.Errorf("load context %s: %w", id, err)
	}
	return rec, found, nil
}

func (b *BoltBackend) Save(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal context %s: %w", rec.ContextID, err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(contextsBucket)).Put([]byte(rec.ContextID), data)
	})
	if err != nil {
		return fmt.Errorf("save context %s: %w", rec.ContextID, err)
	}
	return nil
}

func (b *BoltBackend) List() ([]Record, error) {
	var result []Record
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(contextsBucket)).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal context %s: %w", string(k), err)
			}
			result = append(result, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	return result, nil
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
