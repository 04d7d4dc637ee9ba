package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	redisclient "github.com/angelmondragon/packfinderz-storefront/pkg/redis"
	"github.com/angelmondragon/packfinderz-storefront/pkg/security"
)

type kvStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisStore persists the session as one sealed value per slot. A single SET
// or DEL moves all three credentials together.
type RedisStore struct {
	kv     kvStore
	key    string
	ttl    time.Duration
	sealer *security.Sealer
}

// NewRedisStore stores the session of slot in client. sealer may be nil.
func NewRedisStore(client *redisclient.Client, slot string, ttl time.Duration, sealer *security.Sealer) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisStore{
		kv:     client,
		key:    client.SessionKey(slot),
		ttl:    ttl,
		sealer: sealer,
	}, nil
}

func (r *RedisStore) Get(ctx context.Context) (Session, bool, error) {
	raw, err := r.kv.Get(ctx, r.key)
	if err != nil {
		if redisclient.IsNotFound(err) {
			return Session{}, false, nil
		}
		return Session{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read session")
	}
	s, err := decodeSession(r.sealer, raw)
	if err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (r *RedisStore) Set(ctx context.Context, s Session) error {
	payload, err := encodeSession(r.sealer, s)
	if err != nil {
		return err
	}
	if err := r.kv.Set(ctx, r.key, payload, r.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write session")
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.kv.Del(ctx, r.key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear session")
	}
	return nil
}

func encodeSession(sealer *security.Sealer, s Session) (string, error) {
	if !s.Valid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "access token is required")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode session")
	}
	sealed, err := sealer.Seal(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal session")
	}
	return sealed, nil
}

func decodeSession(sealer *security.Sealer, payload string) (Session, error) {
	raw, err := sealer.Open(payload)
	if err != nil {
		return Session{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open session")
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode session")
	}
	return s, nil
}
