package orders

import (
	"fmt"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/auth"
	"storefront/internal/pricing"
)

// Sentinel errors returned by Service. None of them is retryable.
var (
	ErrInvalidInput         = pricing.ErrInvalidInput
	ErrEmptyOrder           = errors.New("no order items")
	ErrInvalidAddress       = errors.New("shipping address is incomplete")
	ErrInvalidPaymentMethod = errors.New("payment method is required")
	ErrInvalidPaymentResult = errors.New("payment result is not a completed capture")
	ErrNotFound             = errors.New("order not found")
	ErrForbidden            = errors.New("not authorized to access this order")
	ErrUnauthenticated      = auth.ErrUnauthenticated
	ErrAlreadyPaid          = errors.New("order is already paid")
	ErrAlreadyDelivered     = errors.New("order is already delivered")
)

// ProductNotFoundError indicates an order line references a product the
// catalog does not know.
type ProductNotFoundError struct {
	ProductID primitive.ObjectID
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID.Hex())
}
