package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

const (
	refreshTokenBytes = 32
	refreshKeyPrefix  = "sf:refresh:"
	customerKeyPrefix = "sf:refresh:customer:"
)

var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// Store is the key/value surface refresh tokens are persisted in. Missing
// keys report redis.Nil, matching pkg/redis.Client.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Manager issues opaque refresh tokens and rotates them on use. Each token
// maps to the customer it was issued for and is single-use. A customer holds
// at most one live token: issuing a new one retires the previous.
type Manager struct {
	mu    sync.Mutex
	store Store
	ttl   time.Duration
}

// NewManager constructs a refresh token manager over store.
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("refresh token store is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("refresh token ttl must be positive")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Generate creates a refresh token bound to customerID.
func (m *Manager) Generate(ctx context.Context, customerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.issue(ctx, customerID)
}

func (m *Manager) issue(ctx context.Context, customerID string) (string, error) {
	if strings.TrimSpace(customerID) == "" {
		return "", fmt.Errorf("customer id is required")
	}
	token, err := generateRefreshToken()
	if err != nil {
		return "", err
	}
	if err := m.dropCurrent(ctx, customerID); err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, refreshKey(token), customerID, m.ttl); err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, customerKey(customerID), token, m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Rotate consumes provided and issues a replacement for the same customer.
func (m *Manager) Rotate(ctx context.Context, provided string) (customerID, next string, err error) {
	if strings.TrimSpace(provided) == "" {
		return "", "", ErrInvalidRefreshToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := refreshKey(provided)
	customerID, err = m.store.Get(ctx, key)
	if err != nil {
		return "", "", wrapNotFound(err)
	}
	if err := m.store.Del(ctx, key); err != nil {
		return "", "", err
	}

	next, err = m.issue(ctx, customerID)
	if err != nil {
		return "", "", err
	}
	return customerID, next, nil
}

// Revoke deletes the refresh token; unknown tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Del(ctx, refreshKey(token))
}

// RevokeCustomer ends every refresh session held by customerID.
func (m *Manager) RevokeCustomer(ctx context.Context, customerID string) error {
	if strings.TrimSpace(customerID) == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropCurrent(ctx, customerID)
}

func (m *Manager) dropCurrent(ctx context.Context, customerID string) error {
	current, err := m.store.Get(ctx, customerKey(customerID))
	if errors.Is(err, redislib.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.store.Del(ctx, refreshKey(current), customerKey(customerID))
}

func refreshKey(token string) string {
	return refreshKeyPrefix + token
}

func customerKey(customerID string) string {
	return customerKeyPrefix + customerID
}

func generateRefreshToken() (string, error) {
	bytes := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, redislib.Nil) || errors.Is(err, ErrInvalidRefreshToken) {
		return ErrInvalidRefreshToken
	}
	return err
}
