package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/usersvc/usersvc/internal/health"
	"github.com/usersvc/usersvc/internal/users"
)

// RequestIDHeader carries the per-request correlation id
const RequestIDHeader = "X-Request-ID"

// AppState holds the services the handlers depend on
type AppState struct {
	UserService users.UserService
	Health      *health.Manager
	Logger      *zap.Logger
}

// Request bodies are strict: unknown fields are a client error
func init() {
	binding.EnableDecoderDisallowUnknownFields = true
}

// NewRouter builds the gin engine with all routes and middleware
func NewRouter(as *AppState) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Type", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))
	router.Use(RequestLoggingMiddleware(as.Logger))

	router.GET("/health", healthCheck(as))

	v1 := router.Group("/v1")
	{
		usersGroup := v1.Group("/users")
		{
			usersGroup.GET("", listUsers(as))
			usersGroup.POST("", createUser(as))
			usersGroup.GET("/:userId", getUser(as))
			usersGroup.PATCH("/:userId", updateUser(as))
			usersGroup.DELETE("/:userId", deleteUser(as))
		}
	}

	return router
}

// RequestLoggingMiddleware assigns a request id and logs each request once it completes
func RequestLoggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(startTime)),
			zap.String("remote_addr", c.ClientIP()),
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("Request failed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("Request rejected", fields...)
		default:
			logger.Info("Request handled", fields...)
		}
	}
}
