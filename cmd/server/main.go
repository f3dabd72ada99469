package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go-liveclass/internal/api"
	"go-liveclass/internal/auth"
	"go-liveclass/internal/backplane"
	"go-liveclass/internal/config"
	"go-liveclass/internal/message"
	"go-liveclass/internal/storage"
	"go-liveclass/internal/websocket"
	"go-liveclass/pkg/chat"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults plus LIVECLASS_* env when empty)")
	issueFor := flag.String("issue-token", "", "print a signed token for this user id and exit")
	role := flag.String("role", chat.RoleStudent, "role claim for -issue-token")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	am := auth.NewAuthMiddleware(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	if *issueFor != "" {
		if cfg.Auth.Secret == "" {
			slog.Error("auth.secret is not set")
			os.Exit(1)
		}
		token, err := am.GenerateToken(*issueFor, *role)
		if err != nil {
			slog.Error("failed to sign token", "err", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg, am, logger); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, am *auth.AuthMiddleware, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := storage.Connect(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer storage.Close(db) //nolint:errcheck
	logger.Info("database ready", "path", cfg.Database.Path)

	hub := websocket.NewHub(message.NewMessageService(db), websocket.Options{
		SendBuffer:     cfg.WS.SendBuffer,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		WriteWait:      cfg.WS.WriteWait,
		PongWait:       cfg.WS.PongWait,
		PingPeriod:     cfg.WS.PingPeriod,
		AllowedOrigins: cfg.WS.AllowedOrigins,
	}, logger.With("component", "hub"))
	go hub.Run(ctx)

	if cfg.Redis.Enabled {
		rdb, err := backplane.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		bp, err := backplane.NewRedisBackplane(rdb, logger.With("component", "backplane"))
		if err != nil {
			return err
		}
		hub.SetPublisher(bp)
		go func() {
			if err := bp.Run(ctx, hub); err != nil {
				logger.Error("backplane stopped", "err", err)
			}
		}()
	}

	engine := api.NewEngine(cfg.Server.Mode, logger)
	router := api.NewRouter(db, hub, am, cfg.Auth.Required)
	router.RegisterRoutes(engine)
	defer router.Stop()

	logger.Info("liveclass server starting",
		"addr", cfg.Server.Addr(),
		"tls", cfg.Server.TLS(),
		"auth_required", cfg.Auth.Required,
		"redis", cfg.Redis.Enabled,
	)

	err = api.NewServer(cfg.Server, engine, logger).Run(ctx)
	logger.Info("liveclass server shutting down")
	hub.Shutdown()
	return err
}
