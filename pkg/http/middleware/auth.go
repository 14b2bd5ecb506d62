package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	applogger "BlockTrader/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// ClaimsKey is the echo context key holding *jwt.RegisteredClaims.
const ClaimsKey = "jwt_claims"

type JWTConfig struct {
	Secret []byte
	Issuer string
	Logger *applogger.Logger
}

// JWTAuth accepts HS256 bearer tokens signed with cfg.Secret. An empty
// secret rejects every request.
func JWTAuth(cfg JWTConfig) echo.MiddlewareFunc {
	l := cfg.Logger
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok || len(cfg.Secret) == 0 {
				return unauthorized(c, "missing bearer token")
			}
			claims, err := ParseToken(raw, cfg.Secret, cfg.Issuer)
			if err != nil {
				l.Warn("jwt rejected",
					applogger.String("path", c.Path()),
					applogger.String("remote", c.RealIP()),
					applogger.Error(err),
				)
				return unauthorized(c, "token is invalid")
			}
			c.Set(ClaimsKey, claims)
			return next(c)
		}
	}
}

func bearer(h string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, map[string]interface{}{
		"status":  http.StatusUnauthorized,
		"message": http.StatusText(http.StatusUnauthorized),
		"data":    msg,
	})
}

// ParseToken verifies signature, expiry and issuer.
func ParseToken(raw string, secret []byte, issuer string) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) { return secret, nil }, opts...)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("token not valid")
	}
	return claims, nil
}

// IssueToken signs an operator token for subject valid for ttl.
func IssueToken(secret []byte, issuer, subject string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}
