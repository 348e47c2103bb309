package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/dayplan/internal/application"
	"github.com/example/dayplan/internal/config"
	httptransport "github.com/example/dayplan/internal/http"
	"github.com/example/dayplan/internal/materializer"
	"github.com/example/dayplan/internal/persistence/sqlite"
	"github.com/example/dayplan/internal/recurrence"
)

func main() {
	cfgPath := os.Getenv("DAYPLAN_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := sqlite.NewConnectionPool(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close database", "error", cerr)
		}
	}()

	if err := sqlite.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	idGenerator := uuid.NewString
	tokenGenerator := func() string { return randomHex(32) }
	now := time.Now
	location := cfg.Location()

	userRepo := sqlite.NewUserRepository(pool)
	taskRepo := sqlite.NewTaskRepository(pool)
	templateRepo := sqlite.NewTemplateRepository(pool)
	sessionRepo := sqlite.NewSessionRepository(pool)

	alarms := newAlarmNotifier(logger, now)
	defer alarms.Close()
	engine := recurrence.NewEngine(location)

	taskService := application.NewTaskService(taskRepo, alarms, idGenerator, now, location, logger)
	templateService := application.NewTemplateService(templateRepo, taskService, engine, idGenerator, now, cfg.HorizonDays, logger)
	userService := application.NewUserService(userRepo, nil, idGenerator, now)
	authService := application.NewAuthService(userRepo, sessionRepo, nil, tokenGenerator, now, cfg.SessionTTL, logger)

	if cfg.Admin.Email != "" {
		if _, err := userService.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.DisplayName, cfg.Admin.Password); err != nil {
			logger.Error("failed to bootstrap administrator", "error", err)
			os.Exit(1)
		}
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:      httptransport.NewAuthHandler(authService, logger),
		Users:     httptransport.NewUserHandler(userService, logger),
		Tasks:     httptransport.NewTaskHandler(taskService, logger),
		Templates: httptransport.NewTemplateHandler(templateService, logger),
	})

	protected := httptransport.RequireSession(authService, logger)(router)
	handler := httptransport.RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicRoute(r) {
			router.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	}))

	runner := materializer.NewRunner(templateService, cfg.MaterializerSpec, logger)
	if err := runner.Start(); err != nil {
		logger.Error("failed to start materializer", "error", err)
		os.Exit(1)
	}
	defer runner.Stop()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("dayplan API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// isPublicRoute reports whether the request may bypass session validation.
// Only session creation is reachable without a token.
func isPublicRoute(r *http.Request) bool {
	return r.Method == http.MethodPost && strings.EqualFold(r.URL.Path, "/sessions")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
