package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dhairyamittal28106-alt/nexus-relay/internal/relay"
	"github.com/dhairyamittal28106-alt/nexus-relay/internal/server/middleware"
	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/config"
	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/store"
	"github.com/dhairyamittal28106-alt/nexus-relay/pkg/transport"
)

// App wires the session gateway, the relay engine, and the REST history
// surface into one HTTP server.
type App struct {
	logger *slog.Logger
	engine *relay.Engine
	store  store.MessageStore
	wg     sync.WaitGroup
	http   *http.Server
	config *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, engine *relay.Engine, msgStore store.MessageStore, registry *prometheus.Registry) *App {
	app := &App{
		logger: logger,
		engine: engine,
		store:  msgStore,
		config: cfg,
		ctx:    rootCtx,
	}

	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	// Cycler closes the oldest connection from an address to make room.
	connCycler := func(ip string) {
		oldest, found := engine.OldestConnByIP(ip)
		if found {
			logger.Info("Cycling connection: closing oldest", "ip", ip, "connID", oldest.ID().String())
			oldest.Close(errors.New("connection cycled by new connection"))
		}
	}

	wsMiddlewares := []middleware.Middleware{
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(app.logger),
		middleware.NewConnectionLimiter(
			logger,
			engine.ConnectionCountByIP,
			connCycler,
			app.config.Server.ConnectionLimit,
		),
	}
	if cfg.Server.Auth.Enabled {
		wsMiddlewares = append(wsMiddlewares, middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret))
	}

	router := mux.NewRouter()
	router.Handle("/ws", middleware.Chain(upgradeHandler, wsMiddlewares...))
	NewHistoryAPI(logger, msgStore).Register(router)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	app.http = &http.Server{Addr: app.config.Server.Address, Handler: router, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(slog.String("remoteAddr", reqMeta.IP))

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		a.engine.HandleMessage,
		a.engine.HandleDisconnect,
		a.logger,
	)
	a.engine.Register(conn, reqMeta.IP)

	connLogger.Info("Gateway connection established", slog.String("connID", conn.ID().String()))
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	a.engine.CloseAll(errors.New("graceful shutdown"))

	// wait for all connection goroutines to finish their cleanup, then
	// release the store.
	a.wg.Wait()
	if err := a.store.Close(); err != nil {
		a.logger.Error("Failed to close message store", slog.Any("error", err))
	}
	a.logger.Info("Server shut down gracefully.")
	return nil
}
