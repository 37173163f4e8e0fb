package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"tagvorto/internal/constants"
	"tagvorto/internal/models"
	"tagvorto/internal/store"
	"tagvorto/internal/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNameTaken      = errors.New("username already taken")
)

// Service issues and verifies access tokens and owns the user rows. Password
// handling is deliberately thin: bcrypt hash on register, verify on login.
type Service struct {
	db         *gorm.DB
	secret     []byte
	tokenTTL   time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewService(db *gorm.DB, secret []byte, tokenTTL, refreshTTL time.Duration) *Service {
	return &Service{
		db:         db,
		secret:     secret,
		tokenTTL:   tokenTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// CreateAnonymousSession registers a throwaway player and logs them in.
func (s *Service) CreateAnonymousSession(ctx context.Context, displayName string) (*models.AuthResult, error) {
	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	if strings.TrimSpace(displayName) == "" {
		displayName = "Anonymous Player"
	}

	user := models.User{
		ID:          uuid.NewString(),
		UserName:    "anon_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		DisplayName: displayName,
		IsAnonymous: true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create anonymous user: %w", err)
	}

	util.LogInfo("Created anonymous session for user %s", user.ID)
	return s.issueAuthResult(ctx, &user)
}

// Register creates a named account.
func (s *Service) Register(ctx context.Context, username, password, displayName string) (*models.AuthResult, error) {
	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		UserName:     strings.TrimSpace(username),
		DisplayName:  displayName,
		PasswordHash: string(hash),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserNameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.issueAuthResult(ctx, &user)
}

// Login verifies credentials and issues fresh tokens.
func (s *Service) Login(ctx context.Context, username, password string) (*models.AuthResult, error) {
	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "user_name = ?", username).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issueAuthResult(ctx, &user)
}

// Refresh rotates the refresh token and issues a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.AuthResult, error) {
	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "refresh_token = ?", refreshToken).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("load user by refresh token: %w", err)
	}
	if s.now().After(user.RefreshTokenExpiry) {
		return nil, ErrInvalidToken
	}

	return s.issueAuthResult(ctx, &user)
}

// IssueToken signs a short-lived HS256 access token for the user.
func (s *Service) IssueToken(user *models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		constants.ClaimUserID:    user.ID,
		constants.ClaimUserName:  user.UserName,
		constants.ClaimAnonymous: user.IsAnonymous,
		"iat":                    now.Unix(),
		"exp":                    now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyToken validates an access token and returns the caller's identity.
func (s *Service) VerifyToken(tokenStr string) (userID, userName string, err error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrInvalidToken
	}
	userID, _ = claims[constants.ClaimUserID].(string)
	userName, _ = claims[constants.ClaimUserName].(string)
	if userID == "" {
		return "", "", ErrInvalidToken
	}
	return userID, userName, nil
}

func (s *Service) issueAuthResult(ctx context.Context, user *models.User) (*models.AuthResult, error) {
	accessToken, err := s.IssueToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	user.RefreshToken = refreshToken
	user.RefreshTokenExpiry = s.now().Add(s.refreshTTL)
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &models.AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User: models.UserView{
			ID:          user.ID,
			UserName:    user.UserName,
			DisplayName: user.DisplayName,
			IsAnonymous: user.IsAnonymous,
		},
	}, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
