package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/config"
	"github.com/y001j/pizzeria-alerts/internal/web/api"
	"github.com/y001j/pizzeria-alerts/internal/web/middleware"
	"github.com/y001j/pizzeria-alerts/internal/web/utils"
)

// WebService serves the admin API.
type WebService struct {
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewWebService builds the router. observer receives request and login
// signals for the security collectors.
func NewWebService(cfg config.WebConfig, appName string, deps api.RouteDeps, observer middleware.RequestObserver) *WebService {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.Logger(observer), middleware.Recovery())

	deps.AppName = appName
	deps.Credentials = api.Credentials{Username: cfg.AdminUser, PasswordHash: cfg.AdminPasswordHash}
	deps.JWT = &utils.JWTConfig{SecretKey: cfg.JWTSecret, TokenDuration: cfg.TokenTTL, Issuer: appName}
	api.SetupRoutes(router, deps)

	return &WebService{
		server: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
	}
}

// Name implements Service.
func (ws *WebService) Name() string { return "web" }

// Handler exposes the router, mainly for tests.
func (ws *WebService) Handler() http.Handler { return ws.server.Handler }

// Start binds the listener synchronously so address errors surface here.
func (ws *WebService) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", ws.server.Addr, err)
	}
	ws.listener = ln
	ws.done = make(chan struct{})

	go func() {
		defer close(ws.done)
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", ws.server.Addr).Msg("Web server failed")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("Web服务已启动")
	return nil
}

// Addr returns the bound address once started.
func (ws *WebService) Addr() string {
	if ws.listener == nil {
		return ws.server.Addr
	}
	return ws.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (ws *WebService) Stop(ctx context.Context) error {
	if ws.listener == nil {
		return nil
	}
	if err := ws.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("web shutdown: %w", err)
	}
	<-ws.done
	log.Info().Msg("Web service stopped")
	return nil
}
