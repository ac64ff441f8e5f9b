package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/badger/v3"

	"voiceboost/pkg/models"
)

var ErrRecordNotFound = errors.New("job record not found")

const recordPrefix = "job/"

// HistoryStore keeps a summary of every finished job across restarts.
type HistoryStore interface {
	Put(rec *models.JobRecord) error
	Get(id string) (*models.JobRecord, error)
	List(limit int) ([]*models.JobRecord, error)
	Close() error
}

type diskStore struct {
	db *badger.DB
}

func NewDiskStore(path string) (HistoryStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(path, "badger"))
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &diskStore{db: db}, nil
}

func (s *diskStore) Put(rec *models.JobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal job record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(recordPrefix+rec.ID), data)
	})
}

func (s *diskStore) Get(id string) (*models.JobRecord, error) {
	var rec models.JobRecord

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordPrefix + id))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrRecordNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job record: %w", err)
	}

	return &rec, nil
}

// List returns up to limit records, most recently finished first. A limit
// of zero or less returns everything.
func (s *diskStore) List(limit int) ([]*models.JobRecord, error) {
	var recs []*models.JobRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec models.JobRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			recs = append(recs, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].FinishedAt.After(recs[j].FinishedAt)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *diskStore) Close() error {
	return s.db.Close()
}
