// Package presence tracks which users hold a live hub connection on any
// instance. Admin summaries use it to show who is still online.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	presenceKeyFmt = "presence:user:%s"
	presenceTTL    = 5 * time.Minute
)

// hashStore is the subset of the Redis client presence needs.
type hashStore interface {
	TouchHash(ctx context.Context, key, field string, value interface{}, ttl time.Duration) error
	HDel(ctx context.Context, key string, fields ...string) error
	HLens(ctx context.Context, keys []string) ([]int64, error)
}

// Manager keeps one hash per user with a field per instance holding a
// connection. The key TTL clears users whose instance died.
type Manager struct {
	store      hashStore
	instanceID string
	logger     zerolog.Logger
}

func NewManager(store hashStore, instanceID string, logger zerolog.Logger) *Manager {
	return &Manager{
		store:      store,
		instanceID: instanceID,
		logger:     logger.With().Str("component", "presence").Logger(),
	}
}

func key(userID string) string {
	return fmt.Sprintf(presenceKeyFmt, userID)
}

func (m *Manager) SetOnline(ctx context.Context, userID string) error {
	return m.store.TouchHash(ctx, key(userID), m.instanceID, time.Now().Unix(), presenceTTL)
}

func (m *Manager) SetOffline(ctx context.Context, userID string) error {
	return m.store.HDel(ctx, key(userID), m.instanceID)
}

func (m *Manager) GetOnlineUsers(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = key(id)
	}

	counts, err := m.store.HLens(ctx, keys)
	if err != nil {
		m.logger.Error().Err(err).Int("users", len(userIDs)).Msg("Failed to check presence")
		return nil, err
	}

	online := make([]string, 0, len(userIDs))
	for i, n := range counts {
		if n > 0 {
			online = append(online, userIDs[i])
		}
	}
	return online, nil
}

// Refresh keeps a long-lived connection from expiring.
func (m *Manager) Refresh(ctx context.Context, userID string) error {
	return m.SetOnline(ctx, userID)
}
