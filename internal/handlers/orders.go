package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/auth"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/orders"
)

// OrderService is the order workflow the HTTP layer drives. *orders.Service
// implements it.
type OrderService interface {
	CreateOrder(ctx context.Context, owner primitive.ObjectID, in orders.CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, id primitive.ObjectID, requester auth.Principal) (*models.Order, error)
	ListOrdersForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error)
	ListAllOrders(ctx context.Context, requester auth.Principal) ([]models.Order, error)
	MarkPaid(ctx context.Context, id primitive.ObjectID, result models.PaymentResult) (*models.Order, error)
	MarkDelivered(ctx context.Context, id primitive.ObjectID, requester auth.Principal) (*models.Order, error)
}

type orderItemRequest struct {
	Product string          `json:"product" binding:"required"`
	Name    string          `json:"name"`
	Image   string          `json:"image"`
	Price   decimal.Decimal `json:"price"`
	Qty     int             `json:"qty"`
}

type shippingAddressRequest struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Client supplied itemsPrice, taxPrice, shippingPrice and totalPrice are
// not read; totals are always computed server side.
type createOrderRequest struct {
	OrderItems      []orderItemRequest     `json:"orderItems" binding:"dive"`
	ShippingAddress shippingAddressRequest `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
}

// paymentResultRequest is the capture payload the PayPal checkout button
// posts back.
type paymentResultRequest struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	UpdateTime string `json:"update_time"`
	Payer      struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
}

func CreateOrder(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/orders"

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		in := orders.CreateOrderInput{
			Items: make([]orders.LineInput, 0, len(req.OrderItems)),
			ShippingAddress: models.ShippingAddress{
				Address:    req.ShippingAddress.Address,
				City:       req.ShippingAddress.City,
				PostalCode: req.ShippingAddress.PostalCode,
				Country:    req.ShippingAddress.Country,
			},
			PaymentMethod: req.PaymentMethod,
		}
		for _, item := range req.OrderItems {
			productID, err := primitive.ObjectIDFromHex(strings.TrimSpace(item.Product))
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid product id")
				return
			}
			in.Items = append(in.Items, orders.LineInput{
				Product: productID,
				Name:    item.Name,
				Image:   item.Image,
				Price:   item.Price,
				Qty:     item.Qty,
			})
		}

		order, err := svc.CreateOrder(c.Request.Context(), middleware.Principal(c).ID, in)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

func GetMyOrders(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/myorders"

		list, err := svc.ListOrdersForUser(c.Request.Context(), middleware.Principal(c).ID)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func GetOrders(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders"

		list, err := svc.ListAllOrders(c.Request.Context(), middleware.Principal(c))
		if err != nil {
			respondOrderError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func GetOrderByID(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/:id"

		id, ok := pathObjectID(c, route)
		if !ok {
			return
		}

		order, err := svc.GetOrder(c.Request.Context(), id, middleware.Principal(c))
		if err != nil {
			respondOrderError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func UpdateOrderToPaid(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/orders/:id/pay"

		id, ok := pathObjectID(c, route)
		if !ok {
			return
		}

		var req paymentResultRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		order, err := svc.MarkPaid(c.Request.Context(), id, models.PaymentResult{
			ID:           req.ID,
			Status:       req.Status,
			UpdateTime:   req.UpdateTime,
			EmailAddress: req.Payer.EmailAddress,
		})
		if err != nil {
			respondOrderError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func UpdateOrderToDelivered(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/orders/:id/deliver"

		id, ok := pathObjectID(c, route)
		if !ok {
			return
		}

		order, err := svc.MarkDelivered(c.Request.Context(), id, middleware.Principal(c))
		if err != nil {
			respondOrderError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func respondOrderError(c *gin.Context, route string, err error) {
	var notFound *orders.ProductNotFoundError
	switch {
	case errors.As(err, &notFound):
		respondWithError(c, http.StatusNotFound, route, notFound.Error())
	case errors.Is(err, orders.ErrNotFound):
		respondWithError(c, http.StatusNotFound, route, "order not found")
	case errors.Is(err, orders.ErrUnauthenticated):
		respondWithError(c, http.StatusUnauthorized, route, "not authorized")
	case errors.Is(err, orders.ErrForbidden):
		respondWithError(c, http.StatusForbidden, route, "not authorized to access this order")
	case errors.Is(err, orders.ErrAlreadyPaid):
		respondWithError(c, http.StatusConflict, route, "order already paid")
	case errors.Is(err, orders.ErrAlreadyDelivered):
		respondWithError(c, http.StatusConflict, route, "order already delivered")
	case errors.Is(err, orders.ErrEmptyOrder),
		errors.Is(err, orders.ErrInvalidAddress),
		errors.Is(err, orders.ErrInvalidPaymentMethod),
		errors.Is(err, orders.ErrInvalidPaymentResult),
		errors.Is(err, orders.ErrInvalidInput):
		respondWithError(c, http.StatusBadRequest, route, err.Error())
	default:
		respondInternalError(c, route, err)
	}
}
