package handlers

import (
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tagvorto/internal/auth"
	"tagvorto/internal/constants"
	"tagvorto/internal/game"
	"tagvorto/internal/hub"
	"tagvorto/internal/leaderboard"
	"tagvorto/internal/social"
	"tagvorto/internal/util"
	"tagvorto/internal/words"
)

// Server bundles the core services behind the HTTP surface. It is a
// stateless coordinator: every piece of game state lives in the store.
type Server struct {
	Auth      *auth.Service
	Games     *game.Service
	Boards    *leaderboard.Engine
	Social    *social.Service
	Hub       *hub.Hub
	Corpus    *words.Corpus
	StartTime time.Time
}

type anonymousRequest struct {
	DisplayName string `json:"displayName"`
}

type credentialsRequest struct {
	UserName    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"displayName"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type guessRequest struct {
	GuessWord string `json:"guessWord" binding:"required"`
}

type applaudRequest struct {
	ToUserID string `json:"toUserId" binding:"required"`
}

func (s *Server) AnonymousHandler(c *gin.Context) {
	var req anonymousRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	result, err := s.Auth.CreateAnonymousSession(c.Request.Context(), req.DisplayName)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) RegisterHandler(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	result, err := s.Auth.Register(c.Request.Context(), req.UserName, req.Password, req.DisplayName)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) LoginHandler(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	result, err := s.Auth.Login(c.Request.Context(), req.UserName, req.Password)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) RefreshHandler(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refreshToken is required"})
		return
	}

	result, err := s.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) GetDailyGameHandler(c *gin.Context) {
	view, err := s.Games.GetDailyGameByDate(c.Request.Context(), c.Param("date"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) GetLeaderboardHandler(c *gin.Context) {
	limit := leaderboard.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	entries, err := s.Boards.GetLeaderboard(c.Request.Context(), c.Param("date"), limit)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) JoinHandler(c *gin.Context) {
	view, err := s.Games.Join(c.Request.Context(), c.GetString(constants.UserIDKey), c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (s *Server) GuessHandler(c *gin.Context) {
	var req guessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "guessWord is required"})
		return
	}

	outcome, err := s.Games.SubmitGuess(c.Request.Context(), c.GetString(constants.UserIDKey), c.Param("id"), req.GuessWord)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) StatusHandler(c *gin.Context) {
	view, err := s.Games.GetStatus(c.Request.Context(), c.GetString(constants.UserIDKey), c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) ApplaudHandler(c *gin.Context) {
	var req applaudRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "toUserId is required"})
		return
	}

	fromUserID := c.GetString(constants.UserIDKey)
	dailyGameID := c.Param("id")

	if err := s.Social.Applaud(c.Request.Context(), fromUserID, req.ToUserID, dailyGameID); err != nil {
		s.abortWithError(c, err)
		return
	}

	// Broadcast is best-effort; the applause row is already recorded.
	s.broadcastApplause(c, fromUserID, req.ToUserID, dailyGameID)
	c.Status(http.StatusNoContent)
}

func (s *Server) broadcastApplause(c *gin.Context, fromUserID, toUserID, dailyGameID string) {
	ctx := c.Request.Context()
	dg, err := s.Games.GetDailyGame(ctx, dailyGameID)
	if err != nil {
		util.LogWarn("Skipping applause broadcast, daily game lookup failed: %v", err)
		return
	}
	from, err := s.Social.GetProfile(ctx, fromUserID)
	if err != nil {
		util.LogWarn("Skipping applause broadcast, sender lookup failed: %v", err)
		return
	}
	to, err := s.Social.GetProfile(ctx, toUserID)
	if err != nil {
		util.LogWarn("Skipping applause broadcast, recipient lookup failed: %v", err)
		return
	}
	if err := s.Hub.PublishApplause(ctx, dg.Date, from.DisplayName, to.DisplayName); err != nil {
		util.LogWarn("Failed to publish applause event: %v", err)
	}
}

func (s *Server) ProfileHandler(c *gin.Context) {
	profile, err := s.Social.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) FollowHandler(c *gin.Context) {
	following, err := s.Social.ToggleFollow(c.Request.Context(), c.GetString(constants.UserIDKey), c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": following})
}

func (s *Server) FollowersHandler(c *gin.Context) {
	profiles, err := s.Social.GetFollowers(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profiles)
}

func (s *Server) FollowingHandler(c *gin.Context) {
	profiles, err := s.Social.GetFollowing(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, profiles)
}

func (s *Server) WSHandler(c *gin.Context) {
	date := c.Query("date")
	if _, err := time.Parse(constants.DateLayout, date); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "date must be yyyy-MM-dd"})
		return
	}
	if err := s.Hub.ServeWS(c.Writer, c.Request, date); err != nil {
		util.LogWarn("Websocket subscription failed: %v", err)
	}
}

func (s *Server) HealthzHandler(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"answer_words":    s.Corpus.AnswerCount(),
		"accepted_words":  s.Corpus.AcceptedCount(),
		"ws_subscribers":  s.Hub.SubscriberCount(),
		"memory_alloc_mb": m.Alloc / 1024 / 1024,
		"memory_sys_mb":   m.Sys / 1024 / 1024,
		"memory_gc_count": m.NumGC,
		"uptime":          util.FormatUptime(time.Since(s.StartTime)),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// abortWithError maps the core error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is an internal store failure: logged and surfaced as
// a 500, never retried at this layer.
func (s *Server) abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, game.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, game.ErrConflict), errors.Is(err, auth.ErrUserNameTaken):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, game.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, game.ErrPrecondition):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		util.LogError("Internal error handling %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
