// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/maachang/origin-sub000/internal/database"
	"github.com/maachang/origin-sub000/pkg/redact"
)

const readHeaderTimeout = 10 * time.Second

// StatsSource supplies the pool snapshot served at /pools.
type StatsSource interface {
	Stats() []database.Stats
}

type Server struct {
	server         *http.Server
	router         chi.Router
	basicAuthUsers map[string]string
	manager        *MetricsManager
	pools          StatsSource
}

// parseBasicAuthUsers reads "user:pass,user2:pass2".
func parseBasicAuthUsers(config string) map[string]string {
	users := make(map[string]string)
	if config == "" {
		return users
	}
	for cred := range strings.SplitSeq(config, ",") {
		user, pass, ok := strings.Cut(strings.TrimSpace(cred), ":")
		if !ok || user == "" || strings.Contains(pass, ":") {
			log.Warn().Msgf("Invalid metrics basic auth credentials: %s", redact.BasicAuthUser(cred))
			continue
		}
		users[user] = pass
	}
	return users
}

func NewMetricsServer(manager *MetricsManager, pools StatsSource, host string, port int, basicAuthUsersConfig string) *Server {
	s := &Server{
		basicAuthUsers: parseBasicAuthUsers(basicAuthUsersConfig),
		manager:        manager,
		pools:          pools,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	if len(s.basicAuthUsers) > 0 {
		router.Use(BasicAuth("metrics", s.basicAuthUsers))
	}

	handler := promhttp.HandlerFor(
		manager.GetRegistry(),
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	)

	router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Msg("Serving Prometheus metrics")
		handler.ServeHTTP(w, r)
	})
	router.Get("/pools", s.handlePools)

	s.router = router
	s.server = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

type poolView struct {
	Name      string `json:"name"`
	Dialect   string `json:"dialect"`
	URL       string `json:"url"`
	MaxSize   int    `json:"maxSize"`
	TimeoutMs int64  `json:"timeoutMs"`
	Idle      int    `json:"idle"`
	Created   uint64 `json:"created"`
	Reused    uint64 `json:"reused"`
	Destroyed uint64 `json:"destroyed"`
	Evicted   uint64 `json:"evicted"`
	Checkouts uint64 `json:"checkouts"`
}

func (s *Server) handlePools(w http.ResponseWriter, _ *http.Request) {
	views := []poolView{}
	if s.pools != nil {
		for _, st := range s.pools.Stats() {
			views = append(views, poolView{
				Name:      st.Name,
				Dialect:   st.Dialect,
				URL:       st.URL,
				MaxSize:   st.MaxSize,
				TimeoutMs: st.Timeout.Milliseconds(),
				Idle:      st.Idle,
				Created:   st.Created,
				Reused:    st.Reused,
				Destroyed: st.Destroyed,
				Evicted:   st.Evicted,
				Checkouts: st.Checkouts,
			})
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		log.Debug().Err(err).Msg("failed to write pool stats")
	}
}

// LogSource supplies the recent log lines served at /logs.
type LogSource interface {
	Lines(n int) []string
}

// ServeRecentLogs adds GET /logs?n=N returning the last N log lines as
// plain text. It must be called before the server starts.
func (s *Server) ServeRecentLogs(src LogSource) {
	s.router.Get("/logs", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.URL.Query().Get("n"))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, line := range src.Lines(n) {
			if _, err := w.Write([]byte(line + "\n")); err != nil {
				log.Debug().Err(err).Msg("failed to write recent logs")
				return
			}
		}
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string { return s.server.Addr }

func (s *Server) ListenAndServe() error {
	log.Info().
		Str("address", s.server.Addr).
		Msg("Starting Prometheus metrics server")

	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	return s.server.Close()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// BasicAuth guards the metrics endpoints.
func BasicAuth(realm string, users map[string]string) func(http.Handler) http.Handler {
	return middleware.BasicAuth(realm, users)
}
