package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memHashes struct {
	hashes map[string]map[string]interface{}
	ttls   map[string]time.Duration
	err    error
}

func newMemHashes() *memHashes {
	return &memHashes{
		hashes: make(map[string]map[string]interface{}),
		ttls:   make(map[string]time.Duration),
	}
}

func (m *memHashes) TouchHash(ctx context.Context, key, field string, value interface{}, ttl time.Duration) error {
	if m.hashes[key] == nil {
		m.hashes[key] = make(map[string]interface{})
	}
	m.hashes[key][field] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memHashes) HDel(ctx context.Context, key string, fields ...string) error {
	for _, f := range fields {
		delete(m.hashes[key], f)
	}
	return nil
}

func (m *memHashes) HLens(ctx context.Context, keys []string) ([]int64, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]int64, len(keys))
	for i, k := range keys {
		out[i] = int64(len(m.hashes[k]))
	}
	return out, nil
}

func TestPresenceAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store := newMemHashes()
	a := NewManager(store, "inst-a", zerolog.Nop())
	b := NewManager(store, "inst-b", zerolog.Nop())

	require.NoError(t, a.SetOnline(ctx, "u1"))
	require.NoError(t, b.SetOnline(ctx, "u1"))
	require.NoError(t, b.SetOnline(ctx, "u2"))
	assert.Equal(t, presenceTTL, store.ttls["presence:user:u1"])

	online, err := a.GetOnlineUsers(ctx, []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, online)

	require.NoError(t, a.SetOffline(ctx, "u1"))
	require.NoError(t, b.SetOffline(ctx, "u2"))
	online, err = a.GetOnlineUsers(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, online)
}

func TestPresenceErrorsPropagate(t *testing.T) {
	store := newMemHashes()
	store.err = errors.New("connection refused")
	m := NewManager(store, "inst", zerolog.Nop())

	_, err := m.GetOnlineUsers(context.Background(), []string{"u1"})
	assert.Error(t, err)

	online, err := m.GetOnlineUsers(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, online)
}
