// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maachang/origin-sub000/internal/database"
	"github.com/maachang/origin-sub000/internal/dialect"
	"github.com/maachang/origin-sub000/internal/sequence"
)

// InitRegistry builds a registry from the [db] table and registers every
// pool whose use flag is set. base supplies the non-config options (clock,
// connector, monitor switch); its sizing fields are overwritten.
func InitRegistry(cfg DBConfig, seq *sequence.Generator, base database.Options) (*database.Registry, error) {
	dialects := base.Dialects
	if dialects == nil {
		dialects = dialect.Builtin()
	}

	kind := cfg.Kind
	if kind == "" {
		kind = dialect.SQLite.Name
	}
	defaultDialect, ok := dialects.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("db kind %q is not supported: %w", kind, database.ErrUnknownDialect)
	}

	opts := base
	opts.Dialects = dialects
	opts.DefaultDialect = defaultDialect
	opts.Sequence = seq
	opts.FetchSize = cfg.FetchSize
	opts.BatchSize = cfg.BatchSize
	opts.DefaultPool = cfg.Register

	registry := database.New(opts)

	for _, name := range cfg.PoolNames() {
		pc := cfg.Pools[name]
		if !pc.Use {
			log.Debug().Str("pool", name).Msg("skipping pool with use = false")
			continue
		}

		maxPool := pc.MaxPool
		if maxPool <= 0 {
			maxPool = cfg.MaxPool
		}
		timeout := pc.Timeout
		if timeout <= 0 {
			timeout = cfg.Timeout
		}

		err := registry.RegisterByName(pc.Kind, database.PoolConfig{
			Name:     name,
			URL:      os.ExpandEnv(pc.URL),
			User:     os.ExpandEnv(pc.User),
			Password: os.ExpandEnv(pc.Password),
			MaxSize:  maxPool,
			Timeout:  time.Duration(timeout) * time.Millisecond,
		})
		if err != nil {
			registry.Destroy()
			return nil, err
		}
	}

	if cfg.Register != "" && !registry.Contains(cfg.Register) {
		log.Warn().Str("pool", cfg.Register).Msg("default pool is not registered")
	}
	return registry, nil
}
