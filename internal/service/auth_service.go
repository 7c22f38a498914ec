package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Claims identify the administrator
type Claims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// AuthService authenticates the single administrator
type AuthService struct {
	username     string
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	logger       *zap.Logger
}

func NewAuthService(username, passwordHash, secret string, ttl time.Duration) *AuthService {
	return &AuthService{
		username:     username,
		passwordHash: []byte(passwordHash),
		secret:       []byte(secret),
		ttl:          ttl,
		logger:       util.GetLogger(),
	}
}

// Login checks the credentials and issues a signed token
func (s *AuthService) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	_, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	if len(s.secret) == 0 || len(s.passwordHash) == 0 {
		s.logger.Warn("Admin login attempted but credentials are not configured")
		return "", time.Time{}, models.ErrUnauthorized
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		s.logger.Info("Admin login rejected", zap.String("username", username))
		return "", time.Time{}, models.ErrUnauthorized
	}

	now := time.Now()
	expires := now.Add(s.ttl)
	claims := Claims{
		Admin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    util.ServiceName,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expires, nil
}

// Verify parses a token and returns its claims when it grants admin access
func (s *AuthService) Verify(token string) (*Claims, error) {
	if len(s.secret) == 0 || token == "" {
		return nil, models.ErrUnauthorized
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || !claims.Admin {
		return nil, models.ErrUnauthorized
	}
	return claims, nil
}
