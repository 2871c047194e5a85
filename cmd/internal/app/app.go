// Package app wires the PetLink server runtime: config, logging, storage,
// worker pools, fan-out and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"petlink/cmd/internal/api"
	"petlink/cmd/internal/blob"
	"petlink/cmd/internal/fileops"
	"petlink/cmd/internal/messaging"
	"petlink/cmd/internal/notify"
	"petlink/cmd/internal/presence"
	"petlink/cmd/internal/realtime"
	"petlink/cmd/internal/workpool"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
)

// App is the PetLink server runtime. It owns every long-lived resource.
type App struct {
	cfg Config
	log Logger

	data *dataStore

	messagePool *workpool.Pool
	generalPool *workpool.Pool
	filePool    *workpool.Pool
	batchPool   *workpool.Pool

	files    *fileops.Service
	presence *presence.Registry
	pipeline *notify.Pipeline
	messages *messaging.Service
	ws       *realtime.WSGateway

	nc  *nats.Conn
	sub *nats.Subscription

	metrics *prometheus.Registry
	handler http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	verifier, err := newVerifier(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	a.data, err = openDataStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a.messagePool = workpool.New(cfg.MessagePool, log)
	a.generalPool = workpool.New(cfg.GeneralPool, log)
	a.filePool = workpool.New(cfg.FilePool, log)
	a.batchPool = workpool.New(cfg.BatchPool, log)

	disk, err := blob.NewDiskStore(cfg.UploadDir, cfg.PublicBasePath)
	if err != nil {
		return nil, err
	}
	a.files = fileops.NewService(disk, a.filePool, a.batchPool, log)

	a.presence = presence.NewRegistry(log)
	hub := realtime.NewHub(log)

	var deliverer notify.Deliverer = hub
	if cfg.NATSURL != "" {
		a.nc, err = notify.ConnectNATS(cfg.NATSURL, "petlink")
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		deliverer = notify.Chain{hub, notify.NewNATSDeliverer(a.nc, cfg.NATSSubjectPrefix)}
		a.sub, err = notify.SubscribeDeliveries(a.nc, cfg.NATSSubjectPrefix, hub, log)
		if err != nil {
			return nil, fmt.Errorf("nats subscribe: %w", err)
		}
		log.Info("nats.enabled", "subject_prefix", cfg.NATSSubjectPrefix)
	}

	audience, err := notify.ParseAudience(cfg.PresenceAudience, messaging.StorePartners{Store: a.data.messages})
	if err != nil {
		return nil, err
	}
	a.pipeline = notify.NewPipeline(a.presence, deliverer, a.messagePool, log,
		notify.WithPresencePool(a.generalPool),
		notify.WithAudience(audience),
	)
	a.presence.OnTransition(func(t presence.Transition) {
		a.pipeline.PresenceChanged(t.UserID, t.Online)
	})

	a.messages = messaging.NewService(a.data.messages, a.pipeline, log)

	// A nil *token.Verifier must stay a nil interface: it selects dev mode.
	var (
		apiAuth api.Authenticator
		wsAuth  realtime.Authenticator
	)
	if verifier != nil {
		apiAuth, wsAuth = verifier, verifier
	}
	a.ws = realtime.NewWSGateway(log, hub, a.presence, a.messages, wsAuth)

	a.metrics, err = newMetricsRegistry(hub, a.data.pool)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	rest := api.NewHandler(api.Deps{
		Log:            log,
		Auth:           apiAuth,
		Files:          a.files,
		Blobs:          disk,
		Presence:       a.presence,
		Messages:       a.messages,
		PublicBasePath: cfg.PublicBasePath,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	mux := http.NewServeMux()
	registerHTTP(mux, a, rest)
	a.handler = WithRequestLogging(WithSecurityHeaders(WithCORS(mux, cfg, log)), log)

	return a, nil
}

// Handler is the root HTTP handler, with middleware applied.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and the janitor, and blocks until ctx is done
// or the server fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 30*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", base,
		"ws_url", wsBaseURL(base)+"/ws",
		"store", a.data.kind,
		"auth_required", a.cfg.AuthRequired,
		"nats", a.nc != nil,
	)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		a.runJanitor(janitorCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	stopJanitor()
	<-janitorDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}
	a.Close(shutdownCtx)

	a.log.Info("server.stopped")
	return runErr
}

// Close releases everything New acquired: the NATS intake first, then the
// presence hook, then the pools, then the transports and the store. Run
// calls it on the way out.
func (a *App) Close(ctx context.Context) {
	if a.sub != nil {
		if err := a.sub.Unsubscribe(); err != nil {
			a.log.Warn("nats.unsubscribe.fail", "err", err)
		}
	}

	if a.presence != nil {
		a.presence.Close()
	}

	for _, p := range a.poolsInShutdownOrder() {
		if p == nil {
			continue
		}
		if err := p.Shutdown(ctx); err != nil {
			a.log.Warn("workpool.shutdown.fail", "pool", p.Name(), "err", err)
		}
	}

	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.log.Warn("nats.drain.fail", "err", err)
		}
	}

	if a.data != nil {
		if err := a.data.Close(); err != nil {
			a.log.Error("store.close.fail", "err", err)
		}
	}
}

// poolsInShutdownOrder lists producers before consumers: presence fan-outs on
// the general pool submit deliveries to the message pool.
func (a *App) poolsInShutdownOrder() []*workpool.Pool {
	return []*workpool.Pool{a.generalPool, a.messagePool, a.filePool, a.batchPool}
}

func (a *App) runJanitor(ctx context.Context) {
	every := nonZeroDuration(a.cfg.SweepInterval, time.Minute)
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.sweep()
		}
	}
}

// sweep evicts unpolled finished operations and reclaims dead sessions.
func (a *App) sweep() {
	evicted := a.files.Sweep(a.cfg.OperationRetention)
	emptied := a.presence.CleanupInactiveSessions()
	reclaimed := a.presence.ReclaimIdle(a.cfg.SessionIdleTTL)

	if evicted+emptied+reclaimed > 0 {
		a.log.Info("janitor.sweep",
			"operations_evicted", evicted,
			"users_emptied", emptied,
			"sessions_reclaimed", reclaimed,
		)
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
