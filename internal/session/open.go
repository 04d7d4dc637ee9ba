package session

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-storefront/pkg/config"
	"github.com/angelmondragon/packfinderz-storefront/pkg/db"
	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	redisclient "github.com/angelmondragon/packfinderz-storefront/pkg/redis"
	"github.com/angelmondragon/packfinderz-storefront/pkg/security"
)

// Open builds the Store selected by cfg.Session. The returned close function
// releases any backing connection and is never nil.
func Open(ctx context.Context, cfg config.Config, logg *logger.Logger) (Store, func() error, error) {
	noop := func() error { return nil }

	kind, err := cfg.Session.Kind()
	if err != nil {
		return nil, noop, err
	}

	var sealer *security.Sealer
	if cfg.Session.Passphrase != "" {
		sealer, err = security.NewSealer(cfg.Session.Passphrase, security.DefaultParams)
		if err != nil {
			return nil, noop, err
		}
	}

	switch kind {
	case enums.TokenStoreMemory:
		return NewMemoryStore(), noop, nil
	case enums.TokenStoreRedis:
		client, err := redisclient.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, noop, err
		}
		store, err := NewRedisStore(client, cfg.Session.Slot, cfg.Session.TTL, sealer)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return store, client.Close, nil
	case enums.TokenStoreSQLite:
		client, err := db.New(ctx, cfg.SQLite, logg, &Record{})
		if err != nil {
			return nil, noop, err
		}
		store, err := NewSQLStore(client.DB(), cfg.Session.Slot, sealer)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return store, client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported token store %q", kind)
	}
}
