package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/profai/voice-gateway/internal/chat"
	"github.com/profai/voice-gateway/internal/config"
	"github.com/profai/voice-gateway/internal/courses"
	"github.com/profai/voice-gateway/internal/eventstore"
	"github.com/profai/voice-gateway/internal/metrics"
	"github.com/profai/voice-gateway/internal/pipeline"
	"github.com/profai/voice-gateway/internal/session"
	"github.com/profai/voice-gateway/internal/stt"
	"github.com/profai/voice-gateway/internal/transport"
	"github.com/profai/voice-gateway/internal/tts"
)

// Runtime wires the gateway together and serves websocket sessions until
// the context is cancelled.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	deps     session.Deps
	store    *eventstore.Store
	upgrader websocket.Upgrader

	sessionCtx    context.Context
	cancelSession context.CancelFunc
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.sessionCtx, r.cancelSession = context.WithCancel(context.Background())

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.buildDependencies(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/ws", r.handleWebSocket)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.Server.Bind, r.cfg.Server.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("gateway started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("gateway stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.cancelSession()
	r.wg.Wait()

	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("event store close error", slog.String("error", err.Error()))
		}
	}
	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// buildDependencies constructs every collaborator a session needs. Disabled
// services end up nil in the dependency set, which sessions advertise to
// clients and reject per request.
func (r *Runtime) buildDependencies(ctx context.Context) error {
	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	r.store = store

	recorder, err := metrics.NewRecorder(r.logger)
	if err != nil {
		return fmt.Errorf("init metrics recorder: %w", err)
	}

	providers, err := tts.BuildProviders(r.cfg.TTS, r.logger)
	if err != nil {
		return fmt.Errorf("build tts providers: %w", err)
	}
	pipe := pipeline.New(providers, r.cfg.TTS.Chunker, recorder, r.logger)

	deps := session.Deps{
		Pipeline: pipe,
		Metrics:  recorder,
		Timeline: store,
		Catalog:  courses.Load(r.cfg.Courses.CatalogPath, r.logger),
	}
	if r.cfg.Chat.Enabled {
		if deps.Chat, err = chat.NewGenerator(r.cfg.Chat); err != nil {
			return fmt.Errorf("build chat generator: %w", err)
		}
	}
	if r.cfg.Teaching.Enabled {
		if deps.Teaching, err = chat.NewTeachingGenerator(r.cfg.Teaching); err != nil {
			return fmt.Errorf("build teaching generator: %w", err)
		}
	}
	if deps.Recognizer, err = stt.NewRecognizer(r.cfg.STT); err != nil {
		return fmt.Errorf("build stt recognizer: %w", err)
	}
	r.deps = deps
	return nil
}

// handleWebSocket upgrades the request and serves the session on this
// handler goroutine. One goroutine per connection; requests within a
// connection stay strictly sequential.
func (r *Runtime) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	if r.cfg.Server.MaxMessageSize > 0 {
		ws.SetReadLimit(r.cfg.Server.MaxMessageSize)
	}

	clientID := uuid.NewString()
	conn := transport.NewConn(ws, clientID, r.logger)

	connCtx, cancel := context.WithCancel(r.sessionCtx)
	defer cancel()
	conn.Keepalive(connCtx,
		time.Duration(r.cfg.Server.PingIntervalMS)*time.Millisecond,
		time.Duration(r.cfg.Server.PongTimeoutMS)*time.Millisecond)

	r.logger.Info("client connected", slog.String("client_id", clientID), slog.String("remote", req.RemoteAddr))
	session.New(conn, r.cfg.Session, r.deps, r.logger).Run(connCtx)
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
