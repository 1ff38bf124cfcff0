package router

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/api/handler"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/shared/logger"
)

// Request headers read by the middleware
const (
	RequestIDHeader = "X-Request-Id"
	WalletHeader    = "X-Wallet-Address"
)

// RequestIDMiddleware tags each request with an id and a request-scoped logger
func RequestIDMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		scoped := log.With(slog.String("request_id", requestID))
		c.Request = c.Request.WithContext(logger.NewContext(c.Request.Context(), scoped))
		c.Next()
	}
}

// LoggerMiddleware logs HTTP requests with slog
func LoggerMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		reqLog := logger.FromContext(c.Request.Context(), log)
		reqLog.Info("HTTP Request",
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.String("ip", c.ClientIP()),
			slog.String("user_agent", c.Request.UserAgent()),
			slog.Duration("latency", time.Since(start)),
			slog.Int("body_size", c.Writer.Size()),
		)

		for _, e := range c.Errors {
			reqLog.Error("Request error",
				slog.String("error", e.Error()),
				slog.Uint64("type", uint64(e.Type)),
			)
		}
	}
}

// IdentityMiddleware resolves the caller's wallet address from the Authorization bearer
// token or the X-Wallet-Address header. Requests without one continue anonymously; a
// malformed address is rejected.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := walletFromRequest(c.Request)
		if raw == "" {
			c.Next()
			return
		}

		identity, err := domain.NormalizeIdentity(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid wallet address"})
			return
		}

		c.Set(handler.IdentityKey, identity)
		c.Next()
	}
}

// RequireIdentity rejects anonymous requests
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler.Identity(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "wallet address is required"})
			return
		}
		c.Next()
	}
}

func walletFromRequest(r *http.Request) string {
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return auth
	}
	return strings.TrimSpace(r.Header.Get(WalletHeader))
}

// CORSMiddleware handles Cross-Origin Resource Sharing. An empty allow list allows any origin.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowed) == 0 || allowed["*"]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-Id, X-Wallet-Address, X-Session-Id")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
