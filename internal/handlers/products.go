package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/catalog"
	"storefront/internal/middleware"
	"storefront/internal/models"
)

// ProductService is the catalog surface used by the product routes.
// *catalog.Service implements it.
type ProductService interface {
	List(ctx context.Context, params catalog.ListParams) (catalog.Page, error)
	Get(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	CreateSample(ctx context.Context, owner primitive.ObjectID) (*models.Product, error)
	Update(ctx context.Context, id primitive.ObjectID, upd catalog.ProductUpdate) (*models.Product, error)
	Delete(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
}

type updateProductRequest struct {
	Name         *string          `json:"name"`
	Price        *decimal.Decimal `json:"price"`
	Image        *string          `json:"image"`
	Brand        *string          `json:"brand"`
	Category     *string          `json:"category"`
	Description  *string          `json:"description"`
	CountInStock *int             `json:"countInStock"`
}

func GetProducts(svc ProductService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products"

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		result, err := svc.List(c.Request.Context(), catalog.ListParams{
			Keyword: c.Query("keyword"),
			Page:    page,
			Limit:   limit,
		})
		if err != nil {
			respondInternalError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func GetProductByID(svc ProductService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/:id"

		id, ok := pathObjectID(c, route)
		if !ok {
			return
		}
		product, err := svc.Get(c.Request.Context(), id)
		if err != nil {
			respondProductError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func CreateProduct(svc ProductService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/products"

		product, err := svc.CreateSample(c.Request.Context(), middleware.Principal(c).ID)
		if err != nil {
			respondInternalError(c, route, err)
			return
		}
		middleware.Logger(c).Info("Product created", zap.String("product_id", product.ID.Hex()))
		c.JSON(http.StatusCreated, product)
	}
}

// UpdateProduct applies the given fields. When the image changes, the
// previous uploaded file is removed.
func UpdateProduct(svc ProductService, uploadDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/products/:id"

		id, ok := pathObjectID(c, route)
		if !ok {
			return
		}

		var req updateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		before, err := svc.Get(c.Request.Context(), id)
		if err != nil {
			respondProductError(c, route, err)
			return
		}

		product, err := svc.Update(c.Request.Context(), id, catalog.ProductUpdate{
			Name:         req.Name,
			Price:        req.Price,
			Image:        req.Image,
			Brand:        req.Brand,
			Category:     req.Category,
			Description:  req.Description,
			CountInStock: req.CountInStock,
		})
		if err != nil {
			respondProductError(c, route, err)
			return
		}

		if before.Image != product.Image {
			if err := safeDeleteUpload(uploadDir, before.Image); err != nil {
				middleware.Logger(c).Warn("Old product image not removed",
					zap.String("product_id", id.Hex()),
					zap.String("image", before.Image),
					zap.Error(err),
				)
			}
		}
		c.JSON(http.StatusOK, product)
	}
}

func DeleteProduct(svc ProductService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/products/:id"

		id, ok := pathObjectID(c, route)
		if !ok {
			return
		}
		if _, err := svc.Delete(c.Request.Context(), id); err != nil {
			respondProductError(c, route, err)
			return
		}
		middleware.Logger(c).Info("Product removed", zap.String("product_id", id.Hex()))
		c.JSON(http.StatusOK, gin.H{"message": "product removed"})
	}
}

func respondProductError(c *gin.Context, route string, err error) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		respondWithError(c, http.StatusNotFound, route, "product not found")
	case errors.Is(err, catalog.ErrInvalidProduct):
		respondWithError(c, http.StatusBadRequest, route, err.Error())
	default:
		respondInternalError(c, route, err)
	}
}
