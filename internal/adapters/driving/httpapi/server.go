// Package httpapi serves the knowledge base over a JSON HTTP API built on gin.
//
// Routes live under /api/v1. Request bodies are bound with gin's validator
// (go-playground/validator) which also understands the "permission" tag.
// Domain errors are mapped to HTTP statuses in one place, see errors.go.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
	"github.com/custodia-labs/kb/internal/logger"
)

// ErrMissingService is returned when a required port is not provided.
var ErrMissingService = errors.New("httpapi: ingestion, document, query and conversation services are required")

// maxMultipartMemory bounds the part of an upload kept in memory.
const maxMultipartMemory = 32 << 20

// Ports aggregates the driving ports served over HTTP.
type Ports struct {
	Ingestion    driving.IngestionService
	Document     driving.DocumentService
	Query        driving.QueryService
	Conversation driving.ConversationService
}

// Validate ensures all ports are set.
func (p *Ports) Validate() error {
	if p.Ingestion == nil || p.Document == nil || p.Query == nil || p.Conversation == nil {
		return ErrMissingService
	}
	return nil
}

// Server is the HTTP boundary.
type Server struct {
	ports  *Ports
	engine *gin.Engine
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
			return domain.PermissionLevel(fl.Field().String()).IsValid()
		})
	}
}

// NewServer builds the router for the given ports.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, err
	}

	if !logger.IsVerbose() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = maxMultipartMemory
	r.Use(requestID(), requestLogger(), gin.Recovery())

	s := &Server{ports: ports, engine: r}
	s.routes()
	return s, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening on %s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := s.engine.Group("/api/v1")
	{
		documents := v1.Group("/documents")
		{
			documents.GET("", s.listDocuments)
			documents.POST("", s.uploadDocument)
			documents.GET("/:id", s.getDocument)
			documents.DELETE("/:id", s.deleteDocument)
			documents.GET("/:id/content", s.getDocumentContent)
			documents.GET("/:id/chunks", s.getDocumentChunks)
			documents.POST("/:id/retry", s.retryDocument)
			documents.PUT("/:id/permission", s.changePermission)
		}

		v1.GET("/stats", s.stats)
		v1.POST("/chat", s.chat)
		v1.POST("/search", s.search)

		conversations := v1.Group("/conversations")
		{
			conversations.GET("", s.listConversations)
			conversations.GET("/:id", s.getConversation)
			conversations.DELETE("/:id", s.deleteConversation)
		}
	}
}
