package auth

import (
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quotations/internal/apperr"
	"quotations/models"
)

// TokenType is the scheme clients put in the Authorization header.
const TokenType = "bearer"

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Claims carry the user id in sub; username is informational.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for u valid for the configured TTL.
func (g *Gate) IssueToken(u *models.User) (Token, error) {
	now := g.now()
	exp := now.Add(g.cfg.TokenTTL)
	claims := Claims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(u.ID), 10),
			Issuer:    g.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.cfg.JWTSecret)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, TokenType: TokenType, ExpiresAt: exp.UTC()}, nil
}

// parseToken returns the user id of a valid token. Missing, malformed,
// expired, wrongly signed and non-HS256 tokens are all Unauthorized.
func (g *Gate) parseToken(raw string) (uint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, apperr.Unauthorized("missing bearer token")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	}
	if g.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(g.cfg.Issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return g.cfg.JWTSecret, nil
	}, opts...)
	if err != nil {
		return 0, apperr.Unauthorized("invalid token: " + err.Error())
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Unauthorized("invalid token subject")
	}
	return uint(id), nil
}
