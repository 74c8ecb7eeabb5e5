package utils // package utils provides helper functions for token creation and hashing

import (
	"errors" // sentinel errors for token validation
	"time"   // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens
)

// RoleAdmin is the only role the screening room issues tokens for.
const RoleAdmin = "ADMIN"

// ErrInvalidToken is returned for tokens that fail signature, expiry or
// claim validation.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp.  Access tokens travel in the Authorization header, the
// admin_token cookie or, for websocket upgrades, the token query parameter.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Claims is the decoded view of an access token.
type Claims struct {
	Subject string
	Role    string
}

// NewAccessToken builds and signs an HS256 JWT.  It takes the signing
// secret, the subject, the role and a TTL in minutes.  The JWT includes the
// standard claims sub, exp and iat plus a role claim.
func NewAccessToken(secret, subject, role string, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken validates raw against secret and returns its claims.
// Only HMAC signing methods are accepted; exp is checked by the jwt library.
func ParseAccessToken(secret, raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, ErrInvalidToken
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	sub, _ := mc["sub"].(string)
	role, _ := mc["role"].(string)
	return Claims{Subject: sub, Role: role}, nil
}
