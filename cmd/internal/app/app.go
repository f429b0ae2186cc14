package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"ripple/cmd/identity"
	"ripple/cmd/internal/auth/session"
	"ripple/cmd/internal/relay"
)

// App owns the process-level wiring: config, logger, stores, the relay
// gateway, and the HTTP server that fronts them.
type App struct {
	cfg Config
	log Logger

	pool     *pgxpool.Pool
	registry *prometheus.Registry
	gateway  *relay.WSGateway
	bridge   relay.Broadcaster

	closers []io.Closer
}

// New assembles the application. With RIPPLE_DATABASE_URL unset it runs
// fully in memory, which is the dev and test posture; with it set, chat,
// message, and user state live in Postgres.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	var (
		chats    relay.ChatStore
		messages relay.MessageStore
		users    identity.Store
	)

	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		a.pool = pool

		relayStore, err := relay.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("relay store: %w", err)
		}
		userStore, err := identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("identity store: %w", err)
		}
		chats, messages, users = relayStore, relayStore, userStore
		a.closers = append(a.closers, relayStore)
	} else {
		mem := relay.NewInMemoryStore()
		chats, messages = mem, mem
		users = identity.NewInMemoryStore()
		log.Warn("store.memory_only", "hint", "set RIPPLE_DATABASE_URL for durable state")
	}

	sessCfg := session.LoadConfigFromEnv()
	if sessCfg.PasetoV4SecretKeyHex == "" {
		sessCfg.PasetoV4SecretKeyHex = session.NewEphemeralSecretKeyHex()
		log.Warn("auth.ephemeral_key",
			"hint", "set RIPPLE_TOKEN_SECRET_KEY; tokens will not survive a restart",
		)
	}
	tokens, err := session.NewPasetoV4PublicManager(sessCfg)
	if err != nil {
		a.closeStores()
		return nil, fmt.Errorf("token manager: %w", err)
	}
	auth := session.NewAuthenticator(log, tokens, users)

	var metrics *relay.Metrics
	if cfg.MetricsEnabled {
		a.registry = prometheus.NewRegistry()
		metrics = relay.NewMetrics(a.registry)
	}

	a.gateway = relay.NewWSGateway(log, auth, users, nil, nil, chats, messages, metrics)
	a.bridge = a.gateway.Broadcaster()

	return a, nil
}

// Broadcaster exposes the relay fan-out used by REST mutations (group
// renames, avatar changes) to push change events to connected clients.
func (a *App) Broadcaster() relay.Broadcaster {
	return a.bridge
}

// Run serves HTTP until ctx is canceled, then drains connections.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	a.registerHTTP(mux)

	var handler http.Handler = mux
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http.listen", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
	}

	a.log.Info("http.shutdown.begin")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-errCh
	a.close()
	a.log.Info("http.shutdown.done")
	return err
}

func (a *App) close() {
	a.closeStores()
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func (a *App) closeStores() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("store.close", "err", err)
		}
	}
	a.closers = nil
}
