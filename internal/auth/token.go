// Package auth issues and verifies the bearer tokens handed out at login.
package auth

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrUnauthenticated is returned when a request carries no usable token.
var ErrUnauthenticated = errors.New("not authorized, no valid token")

// Principal is the identity a request acts as.
type Principal struct {
	ID      primitive.ObjectID
	IsAdmin bool
}

// Authenticated reports whether p identifies a user.
func (p Principal) Authenticated() bool {
	return !p.ID.IsZero()
}

// Owns reports whether p may act on a resource belonging to owner.
// Administrators may act on anything.
func (p Principal) Owns(owner primitive.ObjectID) bool {
	if !p.Authenticated() {
		return false
	}
	return p.IsAdmin || p.ID == owner
}

// IssueToken signs an HS256 token carrying the user id.
func IssueToken(userID primitive.ObjectID, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"userId": userID.Hex(),
		"exp":    time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies raw and returns the user id it was issued for.
func ParseToken(raw, secret string) (primitive.ObjectID, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return primitive.NilObjectID, errors.Wrap(ErrUnauthenticated, "invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return primitive.NilObjectID, errors.Wrap(ErrUnauthenticated, "invalid token claims")
	}

	value, ok := claims["userId"].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return primitive.NilObjectID, errors.Wrap(ErrUnauthenticated, "userId claim missing")
	}

	userID, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return primitive.NilObjectID, errors.Wrap(ErrUnauthenticated, "invalid userId claim")
	}
	return userID, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	raw := strings.TrimSpace(header)
	if raw == "" {
		return "", errors.Wrap(ErrUnauthenticated, "missing token")
	}

	parts := strings.Fields(raw)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.Wrap(ErrUnauthenticated, "invalid token format")
	}
	return parts[1], nil
}
