package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pavlensk/telegram-alfaCRM/internal/bot"
	"github.com/pavlensk/telegram-alfaCRM/internal/chat"
	"github.com/pavlensk/telegram-alfaCRM/internal/crm"
	"github.com/pavlensk/telegram-alfaCRM/internal/platform/cache"
	"github.com/pavlensk/telegram-alfaCRM/internal/platform/config"
	"github.com/pavlensk/telegram-alfaCRM/internal/platform/database"
	"github.com/pavlensk/telegram-alfaCRM/internal/quiz"
	"github.com/pavlensk/telegram-alfaCRM/internal/resources"
)

func main() {
	// A local .env is optional; real deployments set the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	res, err := resources.Load(cfg.ResourcesDir)
	if err != nil {
		slog.Error("failed to load resources", "dir", cfg.ResourcesDir, "error", err)
		os.Exit(1)
	}
	bank, err := res.BuildBank()
	if err != nil {
		slog.Error("invalid question bank", "error", err)
		os.Exit(1)
	}
	class, err := res.BuildClassifier()
	if err != nil {
		slog.Error("invalid level table", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Quiz sessions live in Redis when a cache is configured, otherwise in
	// process memory.
	var (
		store quiz.SessionStore
		c     *cache.Cache
	)
	if cfg.Cache.URL != "" {
		c, err = cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Error("failed to connect to cache", "error", err)
			os.Exit(1)
		}
		defer c.Close()
		store = quiz.NewRedisStore(c.Client, res.TTL())
		slog.Info("quiz sessions stored in redis")
	} else {
		store = quiz.NewMemoryStore(res.TTL())
		slog.Info("quiz sessions stored in memory")
	}

	// Events go to Postgres when a database is configured.
	var (
		events bot.EventLogger = bot.NopEventLogger{}
		db     *database.DB
	)
	if cfg.Database.URL != "" {
		db, err = database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		events = bot.NewPostgresEventLogger(db.Pool)
		slog.Info("event persistence enabled")
	}

	quizEngine := quiz.NewEngine(bank, class, store)
	crmClient := crm.New(cfg.Alfa.BaseURL, cfg.Alfa.Email, cfg.Alfa.APIKey)

	gw := chat.NewGateway()

	tg, err := chat.NewTelegramChannel(cfg.Telegram.BotToken)
	if err != nil {
		slog.Error("failed to create telegram channel", "error", err)
		os.Exit(1)
	}
	gw.Register("telegram", tg)

	var ws *chat.WebSocketChannel
	if cfg.Server.WebSocket {
		ws = chat.NewWebSocketChannel()
		gw.Register("websocket", ws)
	}

	b := bot.New(bot.Config{
		Gateway:             gw,
		Resources:           res,
		Quiz:                quizEngine,
		CRM:                 crmClient,
		Events:              events,
		CoordinatorUsername: cfg.Club.CoordinatorUsername,
		SwimmingBaseURL:     cfg.Club.SwimmingBaseURL,
	})

	if err := gw.StartAll(ctx, func(msg chat.InboundMessage) {
		b.HandleMessage(ctx, msg)
	}); err != nil {
		slog.Error("failed to start channels", "error", err)
		os.Exit(1)
	}

	mux := newMux(db, c, ws)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	notifyStatus(ctx, gw, cfg.Telegram.StatusChatID, "бот запущен")

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	notifyStatus(shutdownCtx, gw, cfg.Telegram.StatusChatID, "бот остановлен")

	if err := tg.Stop(); err != nil {
		slog.Warn("telegram stop error", "error", err)
	}
	if ws != nil {
		if err := ws.Stop(); err != nil {
			slog.Warn("websocket stop error", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// notifyStatus reports lifecycle transitions to the club's status chat.
func notifyStatus(ctx context.Context, gw *chat.Gateway, chatID, text string) {
	if chatID == "" {
		return
	}
	_, err := gw.Send(ctx, chat.OutboundMessage{
		Channel: "telegram",
		UserID:  chatID,
		Text:    text,
	})
	if err != nil {
		slog.Warn("status notify failed", "error", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// newMux creates the HTTP router with health check endpoints and the
// optional WebSocket chat endpoint.
func newMux(db *database.DB, c *cache.Cache, ws *chat.WebSocketChannel) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(db, c))
	if ws != nil {
		mux.Handle("GET /ws", ws)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz reports ready only when the configured backing stores
// answer a ping. Unconfigured stores do not block readiness.
func handleReadyz(db *database.DB, c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		if db != nil {
			if err := db.HealthCheck(ctx); err != nil {
				slog.Warn("database not ready", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"database unavailable"}`))
				return
			}
		}
		if c != nil {
			if err := c.HealthCheck(ctx); err != nil {
				slog.Warn("cache not ready", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"cache unavailable"}`))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
