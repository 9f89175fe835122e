package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/auth"
	"storefront/internal/middleware"
	"storefront/internal/models"
)

const usersCollection = "users"

type RegisterUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
	Token   string `json:"token"`
}

// RegisterUser creates a non-admin account and logs it in.
func RegisterUser(db *mongo.Database, jwtSecret string, accessTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/users"

		var req RegisterUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		name := strings.TrimSpace(req.Name)
		email := normalizeEmail(req.Email)
		if name == "" {
			respondWithError(c, http.StatusBadRequest, route, "name is required")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondInternalError(c, route, errors.Wrap(err, "hash password"))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		now := time.Now().UTC().Truncate(time.Millisecond)
		user := models.User{
			ID:           primitive.NewObjectID(),
			Name:         name,
			Email:        email,
			PasswordHash: string(hash),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if _, err := db.Collection(usersCollection).InsertOne(ctx, user); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				respondWithError(c, http.StatusBadRequest, route, "user already exists")
				return
			}
			respondInternalError(c, route, errors.Wrap(err, "insert user"))
			return
		}

		token, err := auth.IssueToken(user.ID, jwtSecret, accessTTL)
		if err != nil {
			respondInternalError(c, route, errors.Wrap(err, "issue token"))
			return
		}

		middleware.Logger(c).Info("User registered", zap.String("user_id", user.ID.Hex()))
		c.JSON(http.StatusCreated, newAuthResponse(user, token))
	}
}

// AuthUser exchanges email and password for a bearer token.
func AuthUser(db *mongo.Database, jwtSecret string, accessTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/users/login"

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var user models.User
		err := db.Collection(usersCollection).FindOne(ctx, bson.M{"email": normalizeEmail(req.Email)}).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusUnauthorized, route, "invalid email or password")
			return
		}
		if err != nil {
			respondInternalError(c, route, errors.Wrap(err, "find user"))
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			respondWithError(c, http.StatusUnauthorized, route, "invalid email or password")
			return
		}

		token, err := auth.IssueToken(user.ID, jwtSecret, accessTTL)
		if err != nil {
			respondInternalError(c, route, errors.Wrap(err, "issue token"))
			return
		}

		middleware.Logger(c).Info("User logged in", zap.String("user_id", user.ID.Hex()))
		c.JSON(http.StatusOK, newAuthResponse(user, token))
	}
}

// LoadPrincipal resolves token subjects against the users collection so a
// deleted user or a revoked admin flag takes effect immediately.
func LoadPrincipal(db *mongo.Database) middleware.PrincipalLoader {
	return func(ctx context.Context, userID primitive.ObjectID) (auth.Principal, error) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		var user models.User
		opts := options.FindOne().SetProjection(bson.M{"_id": 1, "isAdmin": 1})
		if err := db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&user); err != nil {
			return auth.Principal{}, errors.Wrap(err, "load user")
		}
		return auth.Principal{ID: user.ID, IsAdmin: user.IsAdmin}, nil
	}
}

func newAuthResponse(user models.User, token string) authResponse {
	return authResponse{
		ID:      user.ID.Hex(),
		Name:    user.Name,
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
		Token:   token,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
