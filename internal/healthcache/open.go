package healthcache

import (
	"context"

	"github.com/koustreak/sphinxql/internal/config"
	"github.com/koustreak/sphinxql/internal/errs"
)

// OpenStore builds the backend named by cfg.Backend. The returned close
// function releases backend connections and is never nil.
func OpenStore(ctx context.Context, cfg config.HealthCacheCfg) (Store, func() error, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), func() error { return nil }, nil
	case "redis":
		s, err := NewRedisStore(ctx, RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return nil, nil, errs.New(errs.ErrKindConfig, "postgres health cache needs a dsn")
		}
		s, err := NewPostgresStore(ctx, cfg.Postgres.DSN, cfg.Postgres.Table)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, errs.Newf(errs.ErrKindConfig, "unknown health cache backend %q", cfg.Backend)
	}
}
