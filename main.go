package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"relayhub/internal/config"
	"relayhub/internal/http/http_server"
	"relayhub/internal/redis/eventtap"
	"relayhub/internal/redis/redis_client"
	"relayhub/internal/ws"

	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Optional Redis event tap
	var hubOpts []ws.HubOption
	if cfg.RedisTapAddr != "" {
		redisClient, err := redis_client.NewRedisClient(cfg.RedisTapAddr)
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()

		tap := eventtap.New(redisClient, cfg.RedisTapChannel, cfg.SendBufferSize)
		go tap.Run(ctx)
		hubOpts = append(hubOpts, ws.WithObserver(tap))
		Log.Info("Redis event tap enabled", zap.String("channel", cfg.RedisTapChannel))
	}

	// 4. Hub, one per process
	hub := ws.NewHub(hubOpts...)
	go hub.Run(ctx)

	// 5. WS server
	wsSrv := ws.NewWsServer(ctx, hub, ws.ServerConfig{
		Session: ws.SessionConfig{
			HeartbeatInterval: cfg.HeartbeatInterval,
			ClientTimeout:     cfg.ClientTimeout,
			InboxSize:         cfg.SendBufferSize,
		},
		MaxMessageSize: cfg.MaxMessageSize,
		WriteWait:      cfg.WriteWait,
	})

	// 6. HTTP + WS server, returns once ctx is cancelled
	httpServer := http_server.NewHttpServer(ctx, cfg.BindAddr, wsSrv)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
	Log.Info("Server stopped")
}
