package api

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/shapedtime/classfs/internal/mount"
	"github.com/shapedtime/classfs/internal/vfs"
)

// Server represents the REST API server
type Server struct {
	router *gin.Engine
	fs     *mount.FS
}

// NewServer creates a new API server over the mounted archives
func NewServer(mfs *mount.FS) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		fs:     mfs,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.router.Use(gin.Recovery())

	// Logging middleware
	s.router.Use(func(c *gin.Context) {
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("api request")
	})
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")

	// Archives
	api.GET("/archives", s.listArchives)
	api.POST("/refresh", s.refresh)
	api.POST("/invalidate", s.invalidate)

	// Tree
	api.GET("/list", s.list)
	api.GET("/source", s.source)

	// Status
	api.GET("/stats", s.stats)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Error response helper
func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// errorStatus maps filesystem errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, vfs.ErrMalformedPath):
		return http.StatusBadRequest
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, vfs.ErrSymbolNotFound):
		return http.StatusNotFound
	case errors.Is(err, vfs.ErrNotAFile), errors.Is(err, vfs.ErrNotADirectory):
		return http.StatusConflict
	case errors.Is(err, vfs.ErrArchiveParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vfs.ErrCancelled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.String()).Msg("api request failed")
	}
	errorResponse(c, status, err.Error())
}
