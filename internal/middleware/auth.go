package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/auth"
)

const principalKey = "principal"

// PrincipalLoader resolves the user a verified token was issued for. It
// returns an error when the user no longer exists.
type PrincipalLoader func(ctx context.Context, userID primitive.ObjectID) (auth.Principal, error)

// Protect requires a valid bearer token and stores the caller's Principal
// in the gin context.
func Protect(secret string, load PrincipalLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := Logger(c)

		raw, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			log.Debug("Rejected request", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized, no token"})
			return
		}

		userID, err := auth.ParseToken(raw, secret)
		if err != nil {
			log.Debug("Rejected token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized, token failed"})
			return
		}

		principal, err := load(c.Request.Context(), userID)
		if err != nil {
			log.Info("Token user not loaded", zap.String("user_id", userID.Hex()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authorized, token failed"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// AdminOnly must run after Protect.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Principal(c).IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not authorized as an admin"})
			return
		}
		c.Next()
	}
}

// Principal returns the caller set by Protect, or the zero Principal on
// unprotected routes.
func Principal(c *gin.Context) auth.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(auth.Principal); ok {
			return p
		}
	}
	return auth.Principal{}
}
