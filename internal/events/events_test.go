package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	subject string
	data    [][]byte
	err     error
	drained bool
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subject = subject
	c.data = append(c.data, data)
	return nil
}

func (c *recordingConn) Drain() error {
	c.drained = true
	return nil
}

func TestNewEventHasTimeOrderedID(t *testing.T) {
	ev := NewEvent("isolir", "r1", "alice", "http", true, "User alice isolated")
	id, err := uuid.Parse(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.False(t, ev.Timestamp.IsZero())
}

func TestNATSPublish(t *testing.T) {
	c := &recordingConn{}
	p := &NATS{nc: c, subject: "acs.router.actions"}

	require.NoError(t, p.Publish(context.Background(), NewEvent("disconnect", "r1", "bob", "telegram", true, "ok")))
	assert.Equal(t, "acs.router.actions", c.subject)
	require.Len(t, c.data, 1)

	var got map[string]any
	require.NoError(t, json.Unmarshal(c.data[0], &got))
	assert.Equal(t, "disconnect", got["action"])
	assert.Equal(t, "bob", got["target"])
	assert.NotContains(t, got, "password")

	require.NoError(t, p.Close())
	assert.True(t, c.drained)
}

func TestNATSPublishErrors(t *testing.T) {
	p := &NATS{nc: &recordingConn{err: errors.New("nats: connection closed")}, subject: "s"}
	assert.Error(t, p.Publish(context.Background(), Event{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, Event{}), context.Canceled)
}
