package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/course-optimizer/internal/models"
	appErrors "github.com/noah-isme/course-optimizer/pkg/errors"
)

// TokenValidatorConfig carries the shared secret and the expected token metadata.
type TokenValidatorConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

// TokenValidator verifies HS256 access tokens issued by the identity provider.
type TokenValidator struct {
	secret []byte
	opts   []jwt.ParserOption
}

// NewTokenValidator constructs a validator. Issuer and audience are only checked when set.
func NewTokenValidator(cfg TokenValidatorConfig) *TokenValidator {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	for _, aud := range cfg.Audience {
		if aud != "" {
			opts = append(opts, jwt.WithAudience(aud))
			break
		}
	}
	return &TokenValidator{secret: []byte(cfg.Secret), opts: opts}
}

// ValidateToken parses the token and returns its claims.
func (v *TokenValidator) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, v.opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.Role == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token carries no role")
	}
	return claims, nil
}

// IssueToken signs claims with the validator secret. The CLI uses it to mint tokens for scripted calls.
func (v *TokenValidator) IssueToken(claims *models.JWTClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
