// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maachang/origin-sub000/internal/buildinfo"
	"github.com/maachang/origin-sub000/internal/config"
	"github.com/maachang/origin-sub000/internal/database"
	"github.com/maachang/origin-sub000/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func RunServeCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pools with eviction and metrics until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
	addConfigDirFlag(cmd, &configDir)
	return cmd
}

func serve(ctx context.Context, cfg *config.AppConfig) error {
	log.Info().
		Str("version", buildinfo.Version).
		Str("config", cfg.ConfigFile()).
		Msg("Starting origin")

	registry, err := openRegistry(cfg, true)
	if err != nil {
		return err
	}
	defer registry.Destroy()

	cfg.Watch()
	defer cfg.Close()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Config.MetricsEnabled {
		srv := newMetricsServer(cfg, registry)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("metrics server shutdown")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Strs("pools", registry.Names()).Msg("Shutting down")
		return nil
	})

	return g.Wait()
}

func newMetricsServer(cfg *config.AppConfig, registry *database.Registry) *metrics.Server {
	manager := metrics.NewMetricsManager(registry)
	srv := metrics.NewMetricsServer(
		manager,
		registry,
		cfg.Config.MetricsHost,
		cfg.Config.MetricsPort,
		cfg.Config.MetricsBasicAuthUsers,
	)
	srv.ServeRecentLogs(cfg.LogManager().Recent())
	return srv
}
