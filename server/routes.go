// Package server - Haupt-Router und Server-Setup der Sandbox
// Beinhaltet: Server-Struct, Router-Registrierung
package server

import (
	"net"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/neivs/llmsandbox/api"
	"github.com/neivs/llmsandbox/envconfig"
	"github.com/neivs/llmsandbox/store"
	"github.com/neivs/llmsandbox/version"
)

var mode string = gin.DebugMode

// Server verwaltet den HTTP-Server, die Sessions und die Run-Historie
type Server struct {
	addr     net.Addr
	sessions *Sessions

	// history ist nil, wenn SANDBOX_NOHISTORY gesetzt ist
	history *store.Store
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// NewServer erstellt einen Server mit Konfiguration aus der Umgebung
func NewServer(addr net.Addr) *Server {
	s := &Server{
		addr:     addr,
		sessions: NewSessions(envconfig.MaxSessions(), int(envconfig.WeightCache()), envconfig.KeepAlive()),
	}

	if !envconfig.NoHistory() {
		s.history = &store.Store{DBPath: envconfig.History()}
	}

	return s
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() (http.Handler, error) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "Sandbox is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "Sandbox is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, api.VersionResponse{Version: version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, api.VersionResponse{Version: version.Version}) })

	// Sessions
	r.POST("/api/sessions", s.CreateSessionHandler)
	r.DELETE("/api/sessions/:id", s.DeleteSessionHandler)
	r.POST("/api/sessions/:id/forward", s.ForwardHandler)

	// Forward-Pass und Sichten
	r.POST("/api/forward", s.ForwardHandler)
	r.POST("/api/view", s.ViewHandler)
	r.POST("/api/distribution", s.DistributionHandler)
	r.POST("/api/project", s.ProjectHandler)

	// Export und Historie
	r.POST("/api/export", s.ExportHandler)
	r.GET("/api/runs", s.ListRunsHandler)
	r.GET("/api/runs/:id", s.GetRunHandler)
	r.DELETE("/api/runs/:id", s.DeleteRunHandler)

	return r, nil
}
