package http_server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"relayhub/internal/ws"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type httpServer struct {
	listenAddr string
	srv        http.Server
	ln         net.Listener
	wsSrv      *ws.WsServer
	ctx        context.Context
}

func NewHttpServer(ctx context.Context, listenAddr string, wsSrv *ws.WsServer) *httpServer {
	return &httpServer{
		listenAddr: listenAddr,
		wsSrv:      wsSrv,
		ctx:        ctx,
	}
}

// Handler builds the gin engine serving the websocket and health endpoints.
func (h *httpServer) Handler() http.Handler {
	routerEngine := gin.New()
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	// websocket endpoint, "/" kept for existing clients
	routerEngine.GET("/", h.wsSrv.Handle)
	routerEngine.GET("/ws", h.wsSrv.Handle)

	routerEngine.GET("/health", h.wsSrv.Health)
	return routerEngine
}

// Start blocks serving requests until Dispose is called.
func (h *httpServer) Start() error {
	var err error
	h.ln, err = net.Listen("tcp", h.listenAddr)
	if err != nil {
		return err
	}
	zap.L().Info("http_listen", zap.String("addr", h.ln.Addr().String()))

	h.srv = http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-h.ctx.Done()
		_ = h.Dispose()
	}()

	if err := h.srv.Serve(h.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Dispose gracefully shuts the HTTP server down.
// It waits up to 10 s for in‑flight requests to finish. Hijacked websocket
// connections are not tracked by http.Server and end with their sessions.
func (h *httpServer) Dispose() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		return err
	}
	return nil
}
