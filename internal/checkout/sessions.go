package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore keeps the checkout request behind an open payment session until the
// provider confirms payment.
type SessionStore struct {
	R   *redis.Client
	TTL time.Duration
}

// Snapshot is the stored form of a pending card checkout.
type Snapshot struct {
	Request   Request   `json:"request"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"createdAt"`
}

func sessionKey(id string) string {
	return "checkout:session:" + id
}

// Save stores snap under the provider session id.
func (s SessionStore) Save(ctx context.Context, sessionID string, snap Snapshot) error {
	if s.R == nil {
		return errors.New("checkout: session store not configured")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return s.R.Set(ctx, sessionKey(sessionID), data, ttl).Err()
}

// Load returns the snapshot stored for sessionID or ErrSessionNotFound.
func (s SessionStore) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	if s.R == nil {
		return Snapshot{}, errors.New("checkout: session store not configured")
	}
	data, err := s.R.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, ErrSessionNotFound
		}
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Delete drops the snapshot once the session is settled.
func (s SessionStore) Delete(ctx context.Context, sessionID string) error {
	if s.R == nil {
		return nil
	}
	return s.R.Del(ctx, sessionKey(sessionID)).Err()
}
