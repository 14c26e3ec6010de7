package config

import (
	"fmt"

	"github.com/voxco/winboard"
	"github.com/voxco/winboard/tokenstore"
)

// BuildOptions converts parsed configuration into controller options.
//
// The returned cleanup releases resources opened for the token store (the
// Redis connection); it is never nil and is safe to call more than once.
// A redis token store is connected eagerly so that a bad address fails here
// rather than at the first login.
func BuildOptions(cfg *Config) ([]winboard.Option, func(), error) {
	noop := func() {}

	opts := []winboard.Option{
		winboard.WithPollingInterval(cfg.PollInterval.Duration()),
		winboard.WithRequestTimeout(cfg.RequestTimeout.Duration()),
	}
	if cfg.MaxReconnectAttempts != nil {
		opts = append(opts, winboard.WithMaxReconnectAttempts(*cfg.MaxReconnectAttempts))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, winboard.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Auth.Mode == AuthStatic {
		opts = append(opts, winboard.WithStaticCredentials(cfg.Auth.StaticUsers))
	}

	store, cleanup, err := buildTokenStore(cfg.TokenStore)
	if err != nil {
		return nil, noop, err
	}
	opts = append(opts, winboard.WithTokenStore(store))

	return opts, cleanup, nil
}

// buildTokenStore opens the configured token store.
func buildTokenStore(tc TokenStoreConfig) (winboard.TokenStore, func(), error) {
	noop := func() {}

	switch tc.Type {
	case "", StoreMemory:
		return tokenstore.NewMemory(), noop, nil

	case StoreFile:
		f, err := tokenstore.NewFile(tc.Path, tc.Key)
		if err != nil {
			return nil, noop, err
		}
		return f, noop, nil

	case StoreRedis:
		r, err := tokenstore.NewRedis(tokenstore.RedisConfig{
			Addr:     tc.Redis.Addr,
			Password: tc.Redis.Password,
			DB:       tc.Redis.DB,
			Prefix:   tc.Redis.Prefix,
			Key:      tc.Key,
			TTL:      tc.Redis.TTL.Duration(),
		})
		if err != nil {
			return nil, noop, fmt.Errorf("token store: %w", err)
		}
		var closed bool
		return r, func() {
			if !closed {
				closed = true
				_ = r.Close()
			}
		}, nil
	}

	return nil, noop, fmt.Errorf("unknown token store type %q", tc.Type)
}
