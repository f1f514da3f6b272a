package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	httpapi "github.com/vimo-chat/vimo/internal/api/http"
	"github.com/vimo-chat/vimo/internal/auth"
	"github.com/vimo-chat/vimo/internal/config"
	"github.com/vimo-chat/vimo/internal/repository"
	"github.com/vimo-chat/vimo/internal/repository/model"
	"github.com/vimo-chat/vimo/internal/service"
	"github.com/vimo-chat/vimo/lib/logger/slogpretty"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	tokens, err := auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Error("failed to init token service", slog.Any("error", err))
		os.Exit(1)
	}

	var (
		userRepo     repository.UserRepository
		messageRepo  repository.MessageRepository
		presenceRepo repository.PresenceRepository
	)

	if cfg.Database.DSN != "" {
		db, err := connectDatabase(cfg.Database)
		if err != nil {
			log.Error("failed to connect database", slog.Any("error", err))
			os.Exit(1)
		}
		userRepo = repository.NewPostgresUserRepository(db)
		messageRepo = repository.NewPostgresMessageRepository(db)
		presenceRepo = repository.NewPostgresPresenceRepository(db)
	} else {
		log.Warn("no database dsn configured, using in-memory storage")
		userRepo = repository.NewInMemoryUserRepository()
		messageRepo = repository.NewInMemoryMessageRepository()
		presenceRepo = repository.NewInMemoryPresenceRepository()
	}

	userService := service.NewUserService(userRepo, tokens, log)
	presenceService := service.NewPresenceService(presenceRepo, log)
	chatService := service.NewChatService(messageRepo, cfg.Chat.MaxMessageLength, log)
	signalService := service.NewSignalService(userRepo, log)

	userController := httpapi.NewUserController(userService, presenceService)
	chatController := httpapi.NewChatController(chatService, cfg.Chat.HistoryLimit)
	realtimeController := httpapi.NewRealtimeController(
		userService, chatService, presenceService, signalService,
		tokens, cfg.Chat.HistoryLimit, cfg.WebRTC.STUNServers, log,
	)

	router := httpapi.SetupRouter(userController, chatController, realtimeController, tokens)

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	go func() {
		log.Info("starting application", slog.String("addr", cfg.HTTP.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", slog.Any("error", err))
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&model.User{}, &model.Message{}, &model.Presence{}); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
