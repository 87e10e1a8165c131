package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/storage"
	bolt "go.etcd.io/bbolt"
)

var (
	_ storage.ConfigStore = (*Store)(nil)
	_ storage.Journal     = (*Store)(nil)
)

var (
	bucketConfig     = []byte("config")
	bucketActionLogs = []byte("action_logs")
)

// envelope wraps a config value with its version inside the config bucket.
type envelope struct {
	Version uint64          `json:"version"`
	Value   json.RawMessage `json:"value"`
}

// Store is a BoltDB-backed ConfigStore and Journal.
type Store struct {
	db *bolt.DB
}

// New initialises the Bolt store.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketConfig); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketActionLogs)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes underlying Bolt DB.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get fetches the config document stored under key.
func (s *Store) Get(ctx context.Context, key string) (storage.Document, error) {
	select {
	case <-ctx.Done():
		return storage.Document{}, ctx.Err()
	default:
	}
	var doc storage.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketConfig).Get([]byte(key))
		if raw == nil {
			return storage.ErrNotFound
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		doc = storage.Document{
			Value:   append([]byte(nil), env.Value...),
			Version: env.Version,
		}
		return nil
	})
	return doc, err
}

// Put stores value under key when expectedVersion matches the stored one.
func (s *Store) Put(ctx context.Context, key string, value []byte, expectedVersion uint64) (uint64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}
	if !json.Valid(value) {
		return 0, fmt.Errorf("%s: value is not valid JSON", key)
	}
	var next uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketConfig)
		var current envelope
		if raw := bkt.Get([]byte(key)); raw != nil {
			if err := json.Unmarshal(raw, &current); err != nil {
				return err
			}
		}
		if current.Version != expectedVersion {
			return fmt.Errorf("%s: have %d, want %d: %w", key, current.Version, expectedVersion, storage.ErrVersionConflict)
		}
		next = expectedVersion + 1
		payload, err := json.Marshal(envelope{Version: next, Value: value})
		if err != nil {
			return err
		}
		return bkt.Put([]byte(key), payload)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// AppendActionLog stores a journal entry.
func (s *Store) AppendActionLog(ctx context.Context, log *model.ActionLog) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketActionLogs)
		id, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		log.ID = id
		payload, err := json.Marshal(log)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, id)
		return bkt.Put(key, payload)
	})
}

// ListActionLogs returns all journal entries in insertion order.
func (s *Store) ListActionLogs(ctx context.Context) ([]*model.ActionLog, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	var logs []*model.ActionLog
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketActionLogs)
		return bkt.ForEach(func(_, v []byte) error {
			var log model.ActionLog
			if err := json.Unmarshal(v, &log); err != nil {
				return err
			}
			copied := log
			logs = append(logs, &copied)
			return nil
		})
	})
	return logs, err
}
