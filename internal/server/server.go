// Package server exposes the quotation API over HTTP with gin.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/powerman/structlog"
	"gorm.io/gorm"

	"quotations/internal/auth"
	"quotations/internal/catalog"
	"quotations/internal/config"
	"quotations/internal/db"
	"quotations/internal/quotation"
	"quotations/internal/report"
	"quotations/pkg/imagestore"
)

type Server struct {
	cfg     *config.Config
	db      *gorm.DB
	gate    *auth.Gate
	catalog *catalog.Service
	quotes  *quotation.Service
	reports *report.Reporter
	log     *structlog.Logger
}

func New(cfg *config.Config, gdb *gorm.DB, images *imagestore.Resolver, log *structlog.Logger) (*Server, error) {
	reports, err := report.New(gdb)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		db:      gdb,
		gate:    auth.New(gdb, cfg.Auth, log.New(structlog.KeyUnit, "auth")),
		catalog: catalog.NewService(gdb, images, log.New(structlog.KeyUnit, "catalog")),
		quotes:  quotation.NewService(gdb, images, log.New(structlog.KeyUnit, "quotation")),
		reports: reports,
		log:     log,
	}, nil
}

// Gate is the auth gate the server checks tokens with.
func (s *Server) Gate() *auth.Gate { return s.gate }

// Router builds the gin engine with every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(recovery(s), requestLog(s.log))
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(corsMiddleware(s.cfg.CORSOrigins))
	}
	r.MaxMultipartMemory = s.cfg.Images.MaxUploadBytes * 4

	r.GET("/healthz", s.health)
	if s.cfg.Images.Backend == config.BackendLocal {
		r.Static(s.cfg.Images.PublicPath, s.cfg.Images.UploadDir)
	}

	a := r.Group("/auth")
	a.POST("/register", s.register)
	a.POST("/login", s.login)

	protected := r.Group("")
	protected.Use(s.requireUser(s.gate))
	protected.GET("/auth/me", s.me)
	protected.GET("/auth/users", s.listUsers)
	protected.DELETE("/auth/users/:id", s.deleteUser)

	protected.POST("/items", s.createItem)
	protected.GET("/items", s.listItems)
	protected.GET("/items/:id", s.getItem)
	protected.PATCH("/items/:id", s.updateItem)
	protected.DELETE("/items/:id", s.deleteItem)

	protected.POST("/quotations", s.createQuotation)
	protected.GET("/quotations", s.listQuotations)
	protected.GET("/quotations/summary", s.summary)
	protected.GET("/quotations/:id", s.getQuotation)
	protected.PATCH("/quotations/:id", s.updateQuotation)
	protected.DELETE("/quotations/:id", s.deleteQuotation)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "route not found", Kind: "not_found"})
	})
	return r
}

func (s *Server) health(c *gin.Context) {
	if err := db.Ping(c.Request.Context(), s.db); err != nil {
		s.log.Warn("health check failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
