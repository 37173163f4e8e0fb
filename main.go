package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ginGzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"

	"tagvorto/internal/auth"
	"tagvorto/internal/constants"
	"tagvorto/internal/game"
	"tagvorto/internal/handlers"
	"tagvorto/internal/hub"
	"tagvorto/internal/leaderboard"
	"tagvorto/internal/scheduler"
	"tagvorto/internal/social"
	"tagvorto/internal/store"
	"tagvorto/internal/util"
	"tagvorto/internal/words"
)

// App carries the pieces the root middleware needs: token verification and
// the per-caller rate limiters.
type App struct {
	Auth           *auth.Service
	Limiters       *limiterRegistry
	RateLimiterTTL time.Duration
}

func main() {
	_ = godotenv.Load()
	defer util.Sync()

	isProduction := os.Getenv("GIN_MODE") == "release" || os.Getenv("ENV") == "production"
	util.LogInfo("Starting Tagvorto in %s mode", map[bool]string{true: "production", false: "development"}[isProduction])

	corpus, err := words.Load(
		util.GetEnvStr("WORDS_PATH", "data/words.json"),
		util.GetEnvStr("ACCEPTED_WORDS_PATH", "data/accepted_words.txt"),
	)
	if err != nil {
		util.LogFatal("Failed to load word corpus: %v", err)
	}
	util.LogInfo("Loaded %d answers and %d accepted words", corpus.AnswerCount(), corpus.AcceptedCount())

	db, err := store.Open(os.Getenv("DATABASE_DSN"), util.GetEnvStr("SQLITE_PATH", "tagvorto.db"))
	if err != nil {
		util.LogFatal("Failed to open database: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		util.LogFatal("Failed to migrate database: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     util.GetEnvStr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		util.LogFatal("Failed to connect to redis: %v", err)
	}
	cancelPing()
	util.LogInfo("Connected to redis at %s", rdb.Options().Addr)

	secret := util.GetEnvStr("JWT_SECRET", "")
	if secret == "" {
		if isProduction {
			util.LogFatal("JWT_SECRET is required in production")
		}
		util.LogWarn("JWT_SECRET not set, using development secret")
		secret = "tagvorto-dev-secret"
	}

	authSvc := auth.NewService(db, []byte(secret),
		util.GetEnvDuration("TOKEN_TTL", 15*time.Minute),
		util.GetEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
	)
	gameSvc := game.NewService(db, corpus)
	boards := leaderboard.NewEngine(db)
	socialSvc := social.NewService(db)
	eventHub := hub.New(rdb)
	sched := scheduler.New(db, gameSvc, boards, eventHub,
		util.GetEnvDuration("RECALC_INTERVAL", time.Minute))

	app := &App{
		Auth: authSvc,
		Limiters: newLimiterRegistry(
			util.GetEnvInt("RATE_LIMIT_RPS", 5),
			util.GetEnvInt("RATE_LIMIT_BURST", 10),
		),
		RateLimiterTTL: util.GetEnvDuration("RATE_LIMITER_TTL", 1*time.Hour),
	}

	server := &handlers.Server{
		Auth:      authSvc,
		Games:     gameSvc,
		Boards:    boards,
		Social:    socialSvc,
		Hub:       eventHub,
		Corpus:    corpus,
		StartTime: time.Now(),
	}

	router := gin.Default()

	router.Use(requestIDMiddleware())
	router.Use(securityHeadersMiddleware())
	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression,
		ginGzip.WithExcludedPaths([]string{"/ws"})))
	router.Use(apiCacheHeaders())

	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		util.LogWarn("Failed to set trusted proxies: %v", err)
	}

	authGroup := router.Group("/api/auth")
	authGroup.Use(app.rateLimitMiddleware())
	{
		authGroup.POST("/anonymous", server.AnonymousHandler)
		authGroup.POST("/register", server.RegisterHandler)
		authGroup.POST("/login", server.LoginHandler)
		authGroup.POST("/refresh", server.RefreshHandler)
	}

	api := router.Group("/api")
	api.Use(app.authRequiredMiddleware(), app.rateLimitMiddleware())
	{
		api.GET("/dailies/:date", server.GetDailyGameHandler)
		api.GET("/dailies/:date/leaderboard", server.GetLeaderboardHandler)

		api.POST("/games/:id/join", server.JoinHandler)
		api.POST("/games/:id/guesses", server.GuessHandler)
		api.GET("/games/:id/status", server.StatusHandler)
		api.POST("/games/:id/applaud", server.ApplaudHandler)

		api.GET("/users/:id/profile", server.ProfileHandler)
		api.POST("/users/:id/follow", server.FollowHandler)
		api.GET("/users/:id/followers", server.FollowersHandler)
		api.GET("/users/:id/following", server.FollowingHandler)
	}

	router.GET(constants.RouteWS, server.WSHandler)
	router.GET(constants.RouteHealthz, server.HealthzHandler)
	router.GET(constants.RouteMetrics, gin.WrapH(promhttp.Handler()))

	bgCtx, cancelBg := context.WithCancel(context.Background())
	go eventHub.Run(bgCtx)
	go sched.Run(bgCtx)
	app.startCleanupRoutine(bgCtx)

	app.startServer(router, cancelBg)
}

func (app *App) startServer(router *gin.Engine, cancelBg context.CancelFunc) {
	port := util.GetEnvStr("PORT", "8080")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		util.LogInfo("Shutdown signal received, shutting down server gracefully...")
		cancelBg()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			util.LogWarn("HTTP server Shutdown: %v", err)
		}
		close(idleConnsClosed)
	}()

	util.LogInfo("Server starting on http://localhost:%s", port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		util.LogFatal("Server failed to start: %v", err)
	}
	<-idleConnsClosed
	util.LogInfo("Server shutdown complete")
}

// apiCacheHeaders marks every API response as uncacheable. Game state and
// leaderboards change mid-flight, so intermediaries must not hold them.
func apiCacheHeaders() gin.HandlerFunc {
	noStore := cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	})
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			noStore(c)
		}
		c.Next()
	}
}

func (app *App) startCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				app.Limiters.cleanup(app.RateLimiterTTL)
			}
		}
	}()

	util.LogInfo("Started cleanup routine for rate limiters")
}
