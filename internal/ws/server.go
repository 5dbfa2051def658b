package ws

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultMaxMessageSize = 4096
)

type ServerConfig struct {
	Session        SessionConfig
	MaxMessageSize int64
	WriteWait      time.Duration
}

// WsServer turns upgrade requests into sessions that share one Hub.
type WsServer struct {
	ctx      context.Context
	hub      *Hub
	cfg      ServerConfig
	upgrader websocket.Upgrader
}

// NewWsServer binds every session it spawns to ctx.
func NewWsServer(ctx context.Context, h *Hub, cfg ServerConfig) *WsServer {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	return &WsServer{
		ctx: ctx,
		hub: h,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev‑only
		},
	}
}

// ---------------------------------------------------------------------------
//  Public: Gin entry‑points
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		// Upgrade has already answered the request.
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}

	conn := newClientConn(rawConn, s.cfg.MaxMessageSize, s.cfg.WriteWait)
	sess := NewSession(s.hub, conn, s.cfg.Session)
	go s.serve(sess, ginCtx.ClientIP())
}

// Health reports the live connection count.
func (s *WsServer) Health(ginCtx *gin.Context) {
	ctx, cancel := context.WithTimeout(ginCtx.Request.Context(), 2*time.Second)
	defer cancel()

	n, err := s.hub.Count(ctx)
	if err != nil {
		ginCtx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, gin.H{
		"connections": n,
		"goroutines":  runtime.NumGoroutine(),
	})
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) serve(sess *Session, remote string) {
	err := sess.Run(s.ctx)
	switch {
	case errors.Is(err, ErrHubUnavailable):
		zap.L().Warn("ws.join_failed", zap.String("remote", remote), zap.Error(err))
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrHeartbeatTimeout), errors.Is(err, context.Canceled):
	default:
		zap.L().Debug("ws.session_error",
			zap.Uint64("session", uint64(sess.ID())),
			zap.String("remote", remote),
			zap.Error(err),
		)
	}
}
