package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/powerman/structlog"

	"quotations/internal/apperr"
	"quotations/internal/auth"
	"quotations/models"
)

const userKey = "user"

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// fail writes err as {"error","kind"} with the status of its category. Internal
// errors are logged and their details withheld from the client.
func (s *Server) fail(c *gin.Context, err error) {
	status := apperr.Status(err)
	kind := apperr.Kind(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.log.PrintErr("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		if kind == "internal" {
			msg = "internal server error"
		}
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Kind: kind})
}

func requestLog(log *structlog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		kv := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).Round(time.Microsecond),
			"ip", c.ClientIP(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("request", kv...)
			return
		}
		log.Info("request", kv...)
	}
}

func recovery(s *Server) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.log.PrintErr("panic", "path", c.Request.URL.Path, "err", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal server error", Kind: "internal"})
	})
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// requireUser rejects requests without a valid bearer token and stores the
// resolved user in the context.
func (s *Server) requireUser(gate *auth.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			s.fail(c, apperr.Unauthorized("missing or invalid Authorization header"))
			return
		}
		user, err := gate.ResolveCurrentUser(c.Request.Context(), token)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	u, _ := c.MustGet(userKey).(*models.User)
	return u
}
