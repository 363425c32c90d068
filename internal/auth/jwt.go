// Package auth verifies bearer tokens issued by the platform's identity service.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/khushnawaj/scriptSelf-sub001/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

type JWTValidator struct {
	method string
	key    any
}

func NewJWTValidatorRS256(publicKeyPath string) (*JWTValidator, error) {
	b, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, err
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}
	return &JWTValidator{method: jwt.SigningMethodRS256.Alg(), key: pub}, nil
}

func NewJWTValidatorHS256(secret string) (*JWTValidator, error) {
	if secret == "" {
		return nil, errors.New("empty hs256 secret")
	}
	return &JWTValidator{method: jwt.SigningMethodHS256.Alg(), key: []byte(secret)}, nil
}

// New picks the validator for alg ("RS256" or "HS256").
func New(alg, publicKeyPath, secret string) (*JWTValidator, error) {
	switch strings.ToUpper(alg) {
	case "RS256":
		return NewJWTValidatorRS256(publicKeyPath)
	case "HS256":
		return NewJWTValidatorHS256(secret)
	}
	return nil, fmt.Errorf("unsupported jwt alg %q", alg)
}

// Validate returns the actor named by the token's sub (or user_id) claim.
func (j *JWTValidator) Validate(tokenStr string) (domain.Actor, error) {
	tok, err := jwt.Parse(tokenStr, func(*jwt.Token) (interface{}, error) {
		return j.key, nil
	}, jwt.WithValidMethods([]string{j.method}), jwt.WithExpirationRequired())
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return domain.Actor{}, ErrInvalidToken
	}
	var id string
	for _, k := range []string{"sub", "user_id", "user_uuid"} {
		if v, ok := claims[k].(string); ok && v != "" {
			id = v
			break
		}
	}
	if id == "" {
		return domain.Actor{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	role := domain.RoleUser
	if r, ok := claims["role"].(string); ok {
		switch domain.Role(strings.ToLower(r)) {
		case domain.RoleAdmin:
			role = domain.RoleAdmin
		case domain.RoleModerator:
			role = domain.RoleModerator
		}
	}
	return domain.Actor{ID: id, Role: role}, nil
}
