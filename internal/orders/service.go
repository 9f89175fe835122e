// Package orders places orders and moves them through the payment and
// delivery transitions.
package orders

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/auth"
	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/pricing"
)

// PaymentStatusCompleted is the only capture status accepted by MarkPaid.
const PaymentStatusCompleted = "COMPLETED"

// Catalog prices products at order time.
type Catalog interface {
	PriceOf(ctx context.Context, productID primitive.ObjectID) (decimal.Decimal, error)
}

// Filter selects orders for Store.Find. A nil Owner selects every order.
type Filter struct {
	Owner *primitive.ObjectID
}

// Store persists orders. MarkPaid and MarkDelivered must be conditional
// writes: they flip the flag only when it is still false and otherwise
// return ErrAlreadyPaid / ErrAlreadyDelivered, or ErrNotFound for an unknown id.
type Store interface {
	Insert(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	Find(ctx context.Context, filter Filter) ([]models.Order, error)
	MarkPaid(ctx context.Context, id primitive.ObjectID, paidAt time.Time, result models.PaymentResult) (*models.Order, error)
	MarkDelivered(ctx context.Context, id primitive.ObjectID, deliveredAt time.Time) (*models.Order, error)
}

// LineInput is one cart line as submitted at checkout.
type LineInput struct {
	Product primitive.ObjectID
	Name    string
	Image   string
	Price   decimal.Decimal
	Qty     int
}

// CreateOrderInput holds the checkout payload.
type CreateOrderInput struct {
	Items           []LineInput
	ShippingAddress models.ShippingAddress
	PaymentMethod   string
}

// Option configures a Service.
type Option func(*Service)

// WithCatalog makes CreateOrder price lines from the catalog instead of
// trusting the submitted unit prices.
func WithCatalog(c Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithLogger(lg *zap.Logger) Option {
	return func(s *Service) {
		s.lg = lg
	}
}

// Service encapsulates order placement and status transitions.
type Service struct {
	store   Store
	catalog Catalog
	now     func() time.Time
	lg      *zap.Logger
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
		lg:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder validates the checkout payload, snapshots the lines, prices
// them and persists a new unpaid, undelivered order owned by owner.
func (s *Service) CreateOrder(ctx context.Context, owner primitive.ObjectID, in CreateOrderInput) (*models.Order, error) {
	if owner.IsZero() {
		return nil, ErrUnauthenticated
	}
	if len(in.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	address := models.ShippingAddress{
		Address:    strings.TrimSpace(in.ShippingAddress.Address),
		City:       strings.TrimSpace(in.ShippingAddress.City),
		PostalCode: strings.TrimSpace(in.ShippingAddress.PostalCode),
		Country:    strings.TrimSpace(in.ShippingAddress.Country),
	}
	if address.Address == "" || address.City == "" || address.PostalCode == "" || address.Country == "" {
		return nil, ErrInvalidAddress
	}

	method := strings.TrimSpace(in.PaymentMethod)
	if method == "" {
		return nil, ErrInvalidPaymentMethod
	}

	items := make([]models.OrderItem, 0, len(in.Items))
	lines := make([]pricing.Line, 0, len(in.Items))
	for i, item := range in.Items {
		if item.Product.IsZero() {
			return nil, errors.Wrapf(ErrInvalidInput, "line %d: product is required", i)
		}

		price := item.Price
		if s.catalog != nil {
			p, err := s.catalog.PriceOf(ctx, item.Product)
			if errors.Is(err, catalog.ErrProductNotFound) {
				return nil, &ProductNotFoundError{ProductID: item.Product}
			}
			if err != nil {
				return nil, errors.Wrapf(err, "price product %s", item.Product.Hex())
			}
			price = p
		}

		items = append(items, models.OrderItem{
			Product: item.Product,
			Name:    strings.TrimSpace(item.Name),
			Image:   strings.TrimSpace(item.Image),
			Price:   models.NewAmount(price),
			Qty:     item.Qty,
		})
		lines = append(lines, pricing.Line{UnitPrice: price, Quantity: item.Qty})
	}

	totals, err := pricing.ComputeTotals(lines)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	order := &models.Order{
		User:            owner,
		OrderItems:      items,
		ShippingAddress: address,
		PaymentMethod:   method,
		ItemsPrice:      models.NewAmount(totals.ItemsPrice),
		ShippingPrice:   models.NewAmount(totals.ShippingPrice),
		TaxPrice:        models.NewAmount(totals.TaxPrice),
		TotalPrice:      models.NewAmount(totals.TotalPrice),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Insert(ctx, order); err != nil {
		return nil, errors.Wrap(err, "insert order")
	}

	s.lg.Info("Order created",
		zap.String("order_id", order.ID.Hex()),
		zap.String("user_id", owner.Hex()),
		zap.Int("items", len(items)),
		zap.Stringer("total", order.TotalPrice),
	)
	return order, nil
}

// GetOrder returns the order if requester owns it or is an administrator.
func (s *Service) GetOrder(ctx context.Context, id primitive.ObjectID, requester auth.Principal) (*models.Order, error) {
	if !requester.Authenticated() {
		return nil, ErrUnauthenticated
	}

	order, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !requester.Owns(order.User) {
		return nil, ErrForbidden
	}
	return order, nil
}

// ListOrdersForUser returns the user's orders, newest first.
func (s *Service) ListOrdersForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	if userID.IsZero() {
		return nil, ErrUnauthenticated
	}
	return s.find(ctx, Filter{Owner: &userID})
}

// ListAllOrders returns every order, newest first. Administrators only.
func (s *Service) ListAllOrders(ctx context.Context, requester auth.Principal) ([]models.Order, error) {
	if !requester.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if !requester.IsAdmin {
		return nil, ErrForbidden
	}
	return s.find(ctx, Filter{})
}

// MarkPaid records a completed capture and flips the order to paid. The
// transition happens at most once per order.
func (s *Service) MarkPaid(ctx context.Context, id primitive.ObjectID, result models.PaymentResult) (*models.Order, error) {
	result.ID = strings.TrimSpace(result.ID)
	result.Status = strings.TrimSpace(result.Status)
	if result.ID == "" {
		return nil, errors.Wrap(ErrInvalidPaymentResult, "missing transaction id")
	}
	if result.Status != PaymentStatusCompleted {
		return nil, errors.Wrapf(ErrInvalidPaymentResult, "status %q", result.Status)
	}

	order, err := s.store.MarkPaid(ctx, id, s.timestamp(), result)
	if err != nil {
		return nil, err
	}

	s.lg.Info("Order paid",
		zap.String("order_id", id.Hex()),
		zap.String("transaction_id", result.ID),
	)
	return order, nil
}

// MarkDelivered flips the order to delivered. Administrators only. Payment
// state is not consulted.
func (s *Service) MarkDelivered(ctx context.Context, id primitive.ObjectID, requester auth.Principal) (*models.Order, error) {
	if !requester.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if !requester.IsAdmin {
		return nil, ErrForbidden
	}

	order, err := s.store.MarkDelivered(ctx, id, s.timestamp())
	if err != nil {
		return nil, err
	}

	s.lg.Info("Order delivered", zap.String("order_id", id.Hex()))
	return order, nil
}

func (s *Service) find(ctx context.Context, filter Filter) ([]models.Order, error) {
	orders, err := s.store.Find(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "find orders")
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

// timestamp matches the millisecond precision of stored BSON dates so a
// returned record equals what a later read yields.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}
