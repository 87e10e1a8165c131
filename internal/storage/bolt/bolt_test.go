package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/acs-lite/mikrotik-gateway/internal/model"
	"github.com/acs-lite/mikrotik-gateway/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConfigVersioning(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Get(ctx, "mikrotik")
	require.ErrorIs(t, err, storage.ErrNotFound)

	v1, err := s.Put(ctx, "mikrotik", []byte(`{"routers":[{"id":"r1"}]}`), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v1)

	_, err = s.Put(ctx, "mikrotik", []byte(`{"routers":[]}`), 0)
	require.ErrorIs(t, err, storage.ErrVersionConflict)

	doc, err := s.Get(ctx, "mikrotik")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), doc.Version)
	assert.JSONEq(t, `{"routers":[{"id":"r1"}]}`, string(doc.Value))

	_, err = s.Put(ctx, "mikrotik", []byte(`not json`), 1)
	require.Error(t, err)
}

func TestActionLogSequence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, action := range []string{"isolir", "unisolir"} {
		require.NoError(t, s.AppendActionLog(ctx, &model.ActionLog{Action: action, RouterID: "r1", Success: true}))
	}

	logs, err := s.ListActionLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, uint64(1), logs[0].ID)
	assert.Equal(t, "isolir", logs[0].Action)
	assert.Equal(t, uint64(2), logs[1].ID)
	assert.False(t, logs[1].CreatedAt.IsZero())
}

func TestCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "mikrotik")
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, s.AppendActionLog(ctx, &model.ActionLog{}), context.Canceled)
}
