// Package api exposes the ledger to the weighing screens over HTTP.
//
// Routes keep the paths and JSON shapes the screens already use. Every
// handler answers with a structured object; panics are recovered by gin and
// never reach the client as a dropped connection.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/procesa/pesaje/internal/ledger/catalog"
	"github.com/procesa/pesaje/internal/ledger/dashboard"
	"github.com/procesa/pesaje/internal/ledger/db"
	"github.com/procesa/pesaje/internal/ledger/gateway"
	ledgersync "github.com/procesa/pesaje/internal/ledger/sync"
)

// ManualSyncer runs a sync pass on demand. *daemon.Orchestrator implements
// it.
type ManualSyncer interface {
	Trigger(ctx context.Context) ledgersync.Outcome
}

// Deps are the components the handlers call into.
type Deps struct {
	Ledger  *db.DB
	Sync    ManualSyncer
	Gateway *gateway.Gateway
	Catalog *catalog.Store
	Hub     *dashboard.Hub // optional; /ws answers 503 without it
}

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	Mode            string // gin mode: release, debug or test
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	Logger    *log.Logger
	AccessLog io.Writer // gin request log; nil disables it
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":5000",
		Mode:            gin.ReleaseMode,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Logger:          log.New(os.Stderr, "[api] ", log.LstdFlags),
	}
}

// Server is the HTTP entry point of a site.
type Server struct {
	config *Config
	deps   Deps
	router *gin.Engine
	logger *log.Logger
}

// New creates a server with default configuration.
func New(deps Deps) (*Server, error) {
	return NewWithConfig(deps, DefaultConfig())
}

// NewWithConfig creates a server with custom configuration.
func NewWithConfig(deps Deps, config *Config) (*Server, error) {
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if deps.Sync == nil {
		return nil, fmt.Errorf("manual syncer cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}
	if deps.Gateway == nil {
		deps.Gateway = gateway.New(deps.Ledger, nil, config.Logger)
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.New(deps.Ledger)
	}
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: config.Logger,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if s.config.AccessLog != nil {
		r.Use(gin.LoggerWithWriter(s.config.AccessLog))
	}

	r.GET("/health", s.health)
	r.GET("/ws", s.websocket)

	r.GET("/sincronizacion_manual", s.manualSync)
	r.POST("/sincronizacion_manual", s.manualSync)

	r.POST("/guardar_remision", s.saveWeighing)
	r.POST("/actualizar_campo_remision", s.updateRemisionField)
	r.POST("/eliminar_registro_remision", s.deleteRemisionRow)
	r.GET("/cargas_del_dia", s.loadsOfDay)
	r.GET("/obtener_retallados", s.regradeLines)
	r.GET("/remisiones_del_dia_por_carga", s.loadOfDay)
	r.GET("/todas_las_remisiones", s.loadsOfWeek)
	r.GET("/total_neto_entregado_por_id_remision_general", s.netDelivered)
	r.GET("/devolucion", s.splitQuery)
	r.POST("/devolucion", s.splitJSON)

	r.POST("/guardar_datos", s.saveReceiving)
	r.POST("/actualizar_campo", s.updateReceivingField)
	r.GET("/eliminar_registro/:id", s.deleteReceiving)
	r.POST("/eliminar_registro/:id", s.deleteReceiving)
	r.GET("/ultimos_registros", s.recentReceiving)
	r.GET("/buscar_peso_por_lote", s.lotTotal)

	r.GET("/buscar_barco", s.shipName)
	r.GET("/descripcion_talla", s.sizeDescription)
	r.GET("/peso_tara", s.tare)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Listening on %s", s.config.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Println("Server exited")
	return nil
}

func (s *Server) health(c *gin.Context) {
	clients := 0
	if s.deps.Hub != nil {
		clients = s.deps.Hub.ClientCount()
	}
	stats, err := s.deps.Ledger.QueueStats(c.Request.Context())
	if err != nil {
		s.logger.Printf("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"clients": clients,
		"cola":    stats,
	})
}

func (s *Server) websocket(c *gin.Context) {
	if s.deps.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed disabled"})
		return
	}
	s.deps.Hub.ServeWS(c.Writer, c.Request)
}

func (s *Server) manualSync(c *gin.Context) {
	out := s.deps.Sync.Trigger(c.Request.Context())
	c.JSON(http.StatusOK, out)
}
