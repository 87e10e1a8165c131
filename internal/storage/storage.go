package storage

import (
	"context"

	"github.com/acs-lite/mikrotik-gateway/internal/model"
)

// Document is a versioned configuration blob.
type Document struct {
	Value   []byte
	Version uint64
}

// ConfigStore persists versioned configuration documents by key. A Put with
// expectedVersion 0 creates the document; any other value must match the
// stored version or ErrVersionConflict is returned.
type ConfigStore interface {
	Get(ctx context.Context, key string) (Document, error)
	Put(ctx context.Context, key string, value []byte, expectedVersion uint64) (uint64, error)
	Close() error
}

// Journal records mutating actions for later inspection.
type Journal interface {
	AppendActionLog(ctx context.Context, log *model.ActionLog) error
	ListActionLogs(ctx context.Context) ([]*model.ActionLog, error)
}
