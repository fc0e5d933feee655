package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openlux/lumen-hub/internal/config"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

const (
	operatorIssuer   = "lumen-hub"
	operatorAudience = "lumen-hub-ops"
)

type operatorClaims struct {
	jwt.RegisteredClaims
}

// GenerateOperatorToken mints an HS256 token for the provisioning surface.
// Operator tokens exist so projects and clients can be created before any
// API key does.
func GenerateOperatorToken(cfg config.Config, subject string) (string, error) {
	now := time.Now()
	claims := operatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    operatorIssuer,
			Audience:  jwt.ClaimStrings{operatorAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.OperatorTokenExpirySec) * time.Second)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.OperatorTokenSecret))
}

// VerifyOperatorToken parses and validates an operator JWT, returning the
// subject.
func VerifyOperatorToken(cfg config.Config, token string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(operatorAudience),
		jwt.WithIssuer(operatorIssuer),
	)

	claims := &operatorClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return []byte(cfg.OperatorTokenSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}
	if parsed == nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}
