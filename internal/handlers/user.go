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

type updateProfileRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Password *string `json:"password" binding:"omitempty,min=6"`
}

type adminUpdateUserRequest struct {
	Name    *string `json:"name"`
	Email   *string `json:"email" binding:"omitempty,email"`
	IsAdmin *bool   `json:"isAdmin"`
}

func GetUserProfile(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/users/profile"

		user, ok := findUser(c, db, route, middleware.Principal(c).ID)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// UpdateUserProfile changes the caller's own name, email or password and
// returns a fresh token.
func UpdateUserProfile(db *mongo.Database, jwtSecret string, accessTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/users/profile"

		var req updateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		set := bson.M{}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				respondWithError(c, http.StatusBadRequest, route, "name cannot be empty")
				return
			}
			set["name"] = name
		}
		if req.Email != nil {
			set["email"] = normalizeEmail(*req.Email)
		}
		if req.Password != nil && *req.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
			if err != nil {
				respondInternalError(c, route, errors.Wrap(err, "hash password"))
				return
			}
			set["passwordHash"] = string(hash)
		}

		user, ok := updateUser(c, db, route, middleware.Principal(c).ID, set)
		if !ok {
			return
		}

		token, err := auth.IssueToken(user.ID, jwtSecret, accessTTL)
		if err != nil {
			respondInternalError(c, route, errors.Wrap(err, "issue token"))
			return
		}
		c.JSON(http.StatusOK, newAuthResponse(*user, token))
	}
}

func GetUsers(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/users"

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
		cursor, err := db.Collection(usersCollection).Find(ctx, bson.M{}, opts)
		if err != nil {
			respondInternalError(c, route, errors.Wrap(err, "find users"))
			return
		}
		defer cursor.Close(ctx)

		users := make([]models.User, 0)
		if err := cursor.All(ctx, &users); err != nil {
			respondInternalError(c, route, errors.Wrap(err, "decode users"))
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

func GetUserByID(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/users/:id"

		id, ok := pathObjectID(c, route)
		if !ok {
			return
		}
		user, ok := findUser(c, db, route, id)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

func UpdateUser(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/users/:id"

		id, ok := pathObjectID(c, route)
		if !ok {
			return
		}

		var req adminUpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		set := bson.M{}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				respondWithError(c, http.StatusBadRequest, route, "name cannot be empty")
				return
			}
			set["name"] = name
		}
		if req.Email != nil {
			set["email"] = normalizeEmail(*req.Email)
		}
		if req.IsAdmin != nil {
			set["isAdmin"] = *req.IsAdmin
		}

		user, ok := updateUser(c, db, route, id, set)
		if !ok {
			return
		}
		middleware.Logger(c).Info("User updated by admin",
			zap.String("user_id", id.Hex()),
			zap.String("admin_id", middleware.Principal(c).ID.Hex()),
		)
		c.JSON(http.StatusOK, user)
	}
}

// DeleteUser removes a non-admin account. Orders placed by the user are
// kept.
func DeleteUser(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/users/:id"

		id, ok := pathObjectID(c, route)
		if !ok {
			return
		}
		user, ok := findUser(c, db, route, id)
		if !ok {
			return
		}
		if user.IsAdmin {
			respondWithError(c, http.StatusBadRequest, route, "cannot delete admin user")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if _, err := db.Collection(usersCollection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
			respondInternalError(c, route, errors.Wrap(err, "delete user"))
			return
		}
		middleware.Logger(c).Info("User deleted", zap.String("user_id", id.Hex()))
		c.JSON(http.StatusOK, gin.H{"message": "user removed"})
	}
}

func findUser(c *gin.Context, db *mongo.Database, route string, id primitive.ObjectID) (*models.User, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var user models.User
	err := db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		respondWithError(c, http.StatusNotFound, route, "user not found")
		return nil, false
	}
	if err != nil {
		respondInternalError(c, route, errors.Wrap(err, "find user"))
		return nil, false
	}
	return &user, true
}

func updateUser(c *gin.Context, db *mongo.Database, route string, id primitive.ObjectID, set bson.M) (*models.User, bool) {
	if len(set) == 0 {
		return findUser(c, db, route, id)
	}
	set["updatedAt"] = time.Now().UTC().Truncate(time.Millisecond)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var user models.User
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := db.Collection(usersCollection).FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&user)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		respondWithError(c, http.StatusNotFound, route, "user not found")
		return nil, false
	case mongo.IsDuplicateKeyError(err):
		respondWithError(c, http.StatusBadRequest, route, "email already in use")
		return nil, false
	case err != nil:
		respondInternalError(c, route, errors.Wrap(err, "update user"))
		return nil, false
	}
	return &user, true
}
