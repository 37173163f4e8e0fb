package constants

const (
	MaxGuesses = 6
	WordLength = 5
)

const (
	DateLayout = "2006-01-02"
)

const (
	// Redis channels carrying cross-instance broadcast events.
	ChannelLeaderboard = "tagvorto:leaderboard"
	ChannelApplause    = "tagvorto:applause"
)

const (
	EventLeaderboardUpdated = "LeaderboardUpdated"
	EventApplauseReceived   = "ApplauseReceived"
)

const (
	ClaimUserID    = "sub"
	ClaimUserName  = "name"
	ClaimAnonymous = "anon"
)

const (
	RouteHealthz = "/healthz"
	RouteMetrics = "/metrics"
	RouteWS      = "/ws"
)

type ContextKey string

// RequestIDKey keys the request id on the request context.
const RequestIDKey ContextKey = "request_id"

// Gin context keys set by the auth middleware.
const (
	UserIDKey   = "user_id"
	UserNameKey = "user_name"
)
