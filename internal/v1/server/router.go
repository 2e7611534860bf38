// Package server assembles the HTTP edge: the lobby endpoints, the
// WebSocket upgrade route, and the operational surface.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/playroom/server/internal/v1/errs"
	"github.com/playroom/server/internal/v1/health"
	"github.com/playroom/server/internal/v1/lobby"
	"github.com/playroom/server/internal/v1/middleware"
	"github.com/playroom/server/internal/v1/transport"
	"github.com/playroom/server/internal/v1/types"
)

// maxBodyBytes caps lobby request bodies at 16 KiB.
const maxBodyBytes = 16 * 1024

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	TracingEnabled bool
	ServiceName    string
}

// CreateOrJoinRoomRequest is the body of both lobby endpoints.
type CreateOrJoinRoomRequest struct {
	Username types.Username `json:"username" binding:"required"`
}

// NewRouter builds the gin engine with all routes and middleware wired.
func NewRouter(l *lobby.Lobby, session *transport.Session, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	if opts.TracingEnabled {
		router.Use(otelgin.Middleware(opts.ServiceName))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = opts.AllowedOrigins
	router.Use(cors.New(corsConfig))

	rooms := router.Group("/rooms", bodyLimit(maxBodyBytes))
	{
		rooms.POST("", createRoom(l))
		rooms.POST("/:code", joinRoom(l))
	}

	router.GET("/ws", session.ServeWs)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := health.NewHandler()
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	return router
}

func createRoom(l *lobby.Lobby) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrJoinRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			renderBindError(c, err)
			return
		}

		joined, err := l.CreateRoom(req.Username)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, joined)
	}
}

func joinRoom(l *lobby.Lobby) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := types.RoomCode(c.Param("code"))

		var req CreateOrJoinRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			renderBindError(c, err)
			return
		}

		joined, err := l.JoinRoom(code, req.Username)
		if err != nil {
			renderError(c, err)
			return
		}
		c.JSON(http.StatusCreated, joined)
	}
}

// renderError writes the standard error body with its mapped status.
func renderError(c *gin.Context, err error) {
	resp := errs.ToResponse(err)
	c.JSON(resp.Code, resp)
}

// renderBindError covers malformed or oversized JSON bodies, which sit
// outside the domain taxonomy.
func renderBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errs.Response{
		Code:      http.StatusBadRequest,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Error:     "BodyDeserializeError",
		Message:   err.Error(),
	})
}

// bodyLimit rejects request bodies larger than n bytes.
func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
