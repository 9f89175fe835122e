// Package catalog manages products and prices them for checkout.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"storefront/internal/cache"
	"storefront/internal/models"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidProduct  = errors.New("invalid product")
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// priceLoadTimeout bounds a shared price load, which outlives the
	// caller that started it.
	priceLoadTimeout = 5 * time.Second
)

type ListParams struct {
	Keyword string
	Page    int64
	Limit   int64
}

// Page is one page of a product listing.
type Page struct {
	Products []models.Product `json:"products"`
	Page     int64            `json:"page"`
	Pages    int64            `json:"pages"`
	Total    int64            `json:"total"`
}

// ProductUpdate carries the fields an administrator may change. Nil fields
// are left untouched.
type ProductUpdate struct {
	Name         *string
	Price        *decimal.Decimal
	Image        *string
	Brand        *string
	Category     *string
	Description  *string
	CountInStock *int
}

type Store interface {
	List(ctx context.Context, params ListParams) ([]models.Product, int64, error)
	Get(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	Insert(ctx context.Context, p *models.Product) error
	Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.Product, error)
	SoftDelete(ctx context.Context, id primitive.ObjectID, at time.Time) (*models.Product, error)
}

// PriceCache is the cache consulted by PriceOf. *cache.RedisCache satisfies it.
type PriceCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Generation(ctx context.Context, key string) (int64, error)
	SetJSONIfGeneration(ctx context.Context, key string, gen int64, value interface{}, ttl time.Duration) (bool, error)
	Invalidate(ctx context.Context, key string) error
}

type Option func(*Service)

// WithPriceCache enables read-through caching of product prices for ttl.
func WithPriceCache(c PriceCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

func WithLogger(lg *zap.Logger) Option {
	return func(s *Service) {
		s.lg = lg
	}
}

type Service struct {
	store Store
	cache PriceCache
	ttl   time.Duration
	group singleflight.Group
	lg    *zap.Logger
	now   func() time.Time
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		lg:    zap.NewNop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) List(ctx context.Context, params ListParams) (Page, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = DefaultPageSize
	}
	if params.Limit > MaxPageSize {
		params.Limit = MaxPageSize
	}

	products, total, err := s.store.List(ctx, params)
	if err != nil {
		return Page{}, err
	}

	pages := (total + params.Limit - 1) / params.Limit
	return Page{
		Products: products,
		Page:     params.Page,
		Pages:    pages,
		Total:    total,
	}, nil
}

func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	return s.store.Get(ctx, id)
}

// CreateSample inserts a placeholder product for an administrator to edit.
func (s *Service) CreateSample(ctx context.Context, owner primitive.ObjectID) (*models.Product, error) {
	now := s.now().UTC()
	p := &models.Product{
		User:         owner,
		Name:         "Sample name",
		Image:        "/images/sample.jpg",
		Brand:        "Sample brand",
		Category:     "Sample category",
		Description:  "Sample description",
		Price:        models.NewAmount(decimal.Zero),
		CountInStock: 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Insert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, id primitive.ObjectID, upd ProductUpdate) (*models.Product, error) {
	set := bson.M{}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, errors.Wrap(ErrInvalidProduct, "name required")
		}
		set["name"] = name
	}
	if upd.Price != nil {
		if upd.Price.IsNegative() {
			return nil, errors.Wrap(ErrInvalidProduct, "price must be zero or greater")
		}
		set["price"] = models.NewAmount(upd.Price.Round(2))
	}
	if upd.CountInStock != nil {
		if *upd.CountInStock < 0 {
			return nil, errors.Wrap(ErrInvalidProduct, "countInStock must be zero or greater")
		}
		set["countInStock"] = *upd.CountInStock
	}
	for field, value := range map[string]*string{
		"image":       upd.Image,
		"brand":       upd.Brand,
		"category":    upd.Category,
		"description": upd.Description,
	} {
		if value != nil {
			set[field] = strings.TrimSpace(*value)
		}
	}

	if len(set) == 0 {
		return s.store.Get(ctx, id)
	}
	set["updatedAt"] = s.now().UTC()

	p, err := s.store.Update(ctx, id, set)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return p, nil
}

// Delete hides the product from the catalog and returns its last state.
func (s *Service) Delete(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	p, err := s.store.SoftDelete(ctx, id, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return p, nil
}

// PriceOf returns the current unit price of an active product. Cache
// failures fall back to the store.
func (s *Service) PriceOf(ctx context.Context, id primitive.ObjectID) (decimal.Decimal, error) {
	key := priceKey(id)

	if s.cache != nil {
		var cached string
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			if price, perr := decimal.NewFromString(cached); perr == nil {
				return price, nil
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.lg.Warn("Price cache read failed", zap.String("product_id", id.Hex()), zap.Error(err))
		}
	}

	// The load is shared by every concurrent caller, so it runs detached
	// from the context of whichever caller started it.
	ch := s.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), priceLoadTimeout)
		defer cancel()
		return s.loadPrice(loadCtx, id, key)
	})

	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return decimal.Zero, res.Err
		}
		return res.Val.(decimal.Decimal), nil
	}
}

// loadPrice reads the price from the store and caches it unless the product
// was invalidated while the read was in flight.
func (s *Service) loadPrice(ctx context.Context, id primitive.ObjectID, key string) (decimal.Decimal, error) {
	var (
		gen    int64
		genErr error
	)
	if s.cache != nil {
		gen, genErr = s.cache.Generation(ctx, key)
	}

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	price := p.Price.Decimal

	switch {
	case s.cache == nil:
	case genErr != nil:
		s.lg.Warn("Price cache generation read failed", zap.String("product_id", id.Hex()), zap.Error(genErr))
	default:
		written, err := s.cache.SetJSONIfGeneration(ctx, key, gen, price.StringFixed(2), s.ttl)
		if err != nil {
			s.lg.Warn("Price cache write failed", zap.String("product_id", id.Hex()), zap.Error(err))
		} else if !written {
			s.lg.Debug("Price changed during load, not cached", zap.String("product_id", id.Hex()))
		}
	}
	return price, nil
}

// invalidate runs after every store write that can change a price. Loads
// already in flight keep their result but can no longer cache it.
func (s *Service) invalidate(ctx context.Context, id primitive.ObjectID) {
	key := priceKey(id)
	s.group.Forget(key)
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.lg.Warn("Price cache invalidation failed", zap.String("product_id", id.Hex()), zap.Error(err))
	}
}

func priceKey(id primitive.ObjectID) string {
	return "price:" + id.Hex()
}
