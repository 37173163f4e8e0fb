package main

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tagvorto/internal/constants"
	"tagvorto/internal/util"
)

type rateLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

type limiterRegistry struct {
	mu      sync.RWMutex
	entries map[string]*rateLimiterEntry
	rps     int
	burst   int
}

func newLimiterRegistry(rps, burst int) *limiterRegistry {
	return &limiterRegistry{
		entries: make(map[string]*rateLimiterEntry),
		rps:     rps,
		burst:   burst,
	}
}

func (r *limiterRegistry) get(key string) *rate.Limiter {
	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		r.mu.Lock()
		entry.lastAccess = time.Now()
		r.mu.Unlock()
		return entry.limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok = r.entries[key]; ok {
		entry.lastAccess = time.Now()
		return entry.limiter
	}

	rps := r.rps
	if rps <= 0 {
		rps = 1
	}
	entry = &rateLimiterEntry{
		limiter:    rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), r.burst),
		lastAccess: time.Now(),
	}
	r.entries[key] = entry
	return entry.limiter
}

func (r *limiterRegistry) cleanup(ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for key, entry := range r.entries {
		if entry.lastAccess.Before(cutoff) {
			delete(r.entries, key)
			removed++
		}
	}
	if removed > 0 {
		util.LogInfo("Cleaned up %d stale rate limiters", removed)
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.Request.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(c.Request.Context(), constants.RequestIDKey, reqID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-Id", reqID)
		c.Next()
	}
}

func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
		}
		c.Next()
	}
}

// rateLimitMiddleware keys limiters on the authenticated user when present,
// falling back to the client IP for anonymous routes.
func (app *App) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(constants.UserIDKey)
		if key == "" {
			key = c.ClientIP()
		}
		if !app.Limiters.get(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please slow down."})
			return
		}
		c.Next()
	}
}

// authRequiredMiddleware validates the Bearer token and stores the caller's
// identity on the gin context for the downstream handlers.
func (app *App) authRequiredMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		userID, userName, err := app.Auth.VerifyToken(strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(constants.UserIDKey, userID)
		c.Set(constants.UserNameKey, userName)
		c.Next()
	}
}
