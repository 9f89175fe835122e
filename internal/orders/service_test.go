package orders

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/auth"
	"storefront/internal/catalog"
	"storefront/internal/models"
)

// memStore mirrors the conditional writes of MongoStore.
type memStore struct {
	mu        sync.Mutex
	orders    map[primitive.ObjectID]models.Order
	insertErr error
	inserts   int
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[primitive.ObjectID]models.Order)}
}

func (m *memStore) Insert(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserts++
	o.ID = primitive.NewObjectID()
	m.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (m *memStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (m *memStore) Find(_ context.Context, filter Filter) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if filter.Owner != nil && o.User != *filter.Owner {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) MarkPaid(_ context.Context, id primitive.ObjectID, paidAt time.Time, result models.PaymentResult) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.IsPaid {
		return nil, ErrAlreadyPaid
	}
	o.IsPaid = true
	o.PaidAt = &paidAt
	o.PaymentResult = &result
	o.UpdatedAt = paidAt
	m.orders[id] = o
	cp := cloneOrder(o)
	return &cp, nil
}

func (m *memStore) MarkDelivered(_ context.Context, id primitive.ObjectID, deliveredAt time.Time) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	if o.IsDelivered {
		return nil, ErrAlreadyDelivered
	}
	o.IsDelivered = true
	o.DeliveredAt = &deliveredAt
	o.UpdatedAt = deliveredAt
	m.orders[id] = o
	cp := cloneOrder(o)
	return &cp, nil
}

func cloneOrder(o models.Order) models.Order {
	o.OrderItems = append([]models.OrderItem(nil), o.OrderItems...)
	return o
}

type mockCatalog struct {
	prices map[primitive.ObjectID]decimal.Decimal
	err    error
}

func (m *mockCatalog) PriceOf(_ context.Context, id primitive.ObjectID) (decimal.Decimal, error) {
	if m.err != nil {
		return decimal.Zero, m.err
	}
	p, ok := m.prices[id]
	if !ok {
		return decimal.Zero, catalog.ErrProductNotFound
	}
	return p, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func validAddress() models.ShippingAddress {
	return models.ShippingAddress{
		Address:    "1 Main St",
		City:       "Boston",
		PostalCode: "02101",
		Country:    "USA",
	}
}

func lineOf(price string, qty int) LineInput {
	return LineInput{
		Product: primitive.NewObjectID(),
		Name:    "Item",
		Image:   "/images/item.jpg",
		Price:   decimal.RequireFromString(price),
		Qty:     qty,
	}
}

func checkout(lines ...LineInput) CreateOrderInput {
	return CreateOrderInput{
		Items:           lines,
		ShippingAddress: validAddress(),
		PaymentMethod:   "PayPal",
	}
}

func completed() models.PaymentResult {
	return models.PaymentResult{
		ID:           "5O190127TN364715T",
		Status:       PaymentStatusCompleted,
		UpdateTime:   "2024-03-01T12:00:00Z",
		EmailAddress: "buyer@example.com",
	}
}

func newTestService(store Store, opts ...Option) *Service {
	return NewService(store, append([]Option{WithClock(newClock().Now)}, opts...)...)
}

func TestCreateOrder_ComputesTotals(t *testing.T) {
	tests := []struct {
		name                        string
		lines                       []LineInput
		items, shipping, tax, total string
	}{
		{name: "free shipping", lines: []LineInput{lineOf("50", 3)}, items: "150.00", shipping: "0.00", tax: "15.00", total: "165.00"},
		{name: "flat shipping", lines: []LineInput{lineOf("20", 2)}, items: "40.00", shipping: "10.00", tax: "4.00", total: "54.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			svc := newTestService(store)
			owner := primitive.NewObjectID()

			order, err := svc.CreateOrder(context.Background(), owner, checkout(tt.lines...))
			require.NoError(t, err)

			assert.False(t, order.ID.IsZero())
			assert.Equal(t, owner, order.User)
			assert.Equal(t, tt.items, order.ItemsPrice.String())
			assert.Equal(t, tt.shipping, order.ShippingPrice.String())
			assert.Equal(t, tt.tax, order.TaxPrice.String())
			assert.Equal(t, tt.total, order.TotalPrice.String())
			assert.False(t, order.IsPaid)
			assert.Nil(t, order.PaidAt)
			assert.False(t, order.IsDelivered)
			assert.Nil(t, order.DeliveredAt)
			assert.Equal(t, "PayPal", order.PaymentMethod)
			assert.Equal(t, 1, store.inserts)
		})
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	owner := primitive.NewObjectID()

	missingCity := checkout(lineOf("5", 1))
	missingCity.ShippingAddress.City = "   "

	missingCountry := checkout(lineOf("5", 1))
	missingCountry.ShippingAddress.Country = ""

	noMethod := checkout(lineOf("5", 1))
	noMethod.PaymentMethod = " "

	noProduct := checkout(lineOf("5", 1))
	noProduct.Items[0].Product = primitive.NilObjectID

	tests := []struct {
		name  string
		owner primitive.ObjectID
		in    CreateOrderInput
		want  error
	}{
		{name: "empty", owner: owner, in: checkout(), want: ErrEmptyOrder},
		{name: "missing city", owner: owner, in: missingCity, want: ErrInvalidAddress},
		{name: "missing country", owner: owner, in: missingCountry, want: ErrInvalidAddress},
		{name: "no payment method", owner: owner, in: noMethod, want: ErrInvalidPaymentMethod},
		{name: "negative price", owner: owner, in: checkout(lineOf("-1", 1)), want: ErrInvalidInput},
		{name: "zero quantity", owner: owner, in: checkout(lineOf("5", 0)), want: ErrInvalidInput},
		{name: "no product", owner: owner, in: noProduct, want: ErrInvalidInput},
		{name: "anonymous", owner: primitive.NilObjectID, in: checkout(lineOf("5", 1)), want: ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			svc := newTestService(store)

			_, err := svc.CreateOrder(context.Background(), tt.owner, tt.in)
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, store.orders, "nothing must be persisted")
		})
	}
}

func TestCreateOrder_SnapshotsLines(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	in := checkout(lineOf("20", 2))
	order, err := svc.CreateOrder(context.Background(), primitive.NewObjectID(), in)
	require.NoError(t, err)

	in.Items[0].Qty = 99
	in.Items[0].Name = "changed"
	in.Items[0].Price = decimal.NewFromInt(1)

	stored, err := store.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, stored.OrderItems, 1)
	assert.Equal(t, 2, stored.OrderItems[0].Qty)
	assert.Equal(t, "Item", stored.OrderItems[0].Name)
	assert.Equal(t, "20.00", stored.OrderItems[0].Price.String())
}

func TestCreateOrder_PricesFromCatalog(t *testing.T) {
	tampered := lineOf("0.01", 2)
	cat := &mockCatalog{prices: map[primitive.ObjectID]decimal.Decimal{
		tampered.Product: decimal.RequireFromString("60"),
	}}
	svc := newTestService(newMemStore(), WithCatalog(cat))

	order, err := svc.CreateOrder(context.Background(), primitive.NewObjectID(), checkout(tampered))
	require.NoError(t, err)
	assert.Equal(t, "60.00", order.OrderItems[0].Price.String())
	assert.Equal(t, "120.00", order.ItemsPrice.String())
	assert.Equal(t, "0.00", order.ShippingPrice.String())
	assert.Equal(t, "132.00", order.TotalPrice.String())
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, WithCatalog(&mockCatalog{}))
	line := lineOf("5", 1)

	_, err := svc.CreateOrder(context.Background(), primitive.NewObjectID(), checkout(line))

	var pnf *ProductNotFoundError
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, line.Product, pnf.ProductID)
	assert.Empty(t, store.orders)
}

func TestCreateOrder_PropagatesStorageErrors(t *testing.T) {
	storeErr := errors.New("connection reset")

	store := newMemStore()
	store.insertErr = storeErr
	_, err := newTestService(store).CreateOrder(context.Background(), primitive.NewObjectID(), checkout(lineOf("5", 1)))
	require.ErrorIs(t, err, storeErr)

	catErr := errors.New("catalog down")
	_, err = newTestService(newMemStore(), WithCatalog(&mockCatalog{err: catErr})).
		CreateOrder(context.Background(), primitive.NewObjectID(), checkout(lineOf("5", 1)))
	require.ErrorIs(t, err, catErr)
}

func TestGetOrder_Authorization(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()
	owner := primitive.NewObjectID()

	order, err := svc.CreateOrder(ctx, owner, checkout(lineOf("20", 2)))
	require.NoError(t, err)

	got, err := svc.GetOrder(ctx, order.ID, auth.Principal{ID: owner})
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = svc.GetOrder(ctx, order.ID, auth.Principal{ID: primitive.NewObjectID(), IsAdmin: true})
	require.NoError(t, err)

	_, err = svc.GetOrder(ctx, order.ID, auth.Principal{ID: primitive.NewObjectID()})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.GetOrder(ctx, order.ID, auth.Principal{})
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.GetOrder(ctx, primitive.NewObjectID(), auth.Principal{ID: owner})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrder_Idempotent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()
	owner := primitive.NewObjectID()

	order, err := svc.CreateOrder(ctx, owner, checkout(lineOf("33.335", 3)))
	require.NoError(t, err)

	first, err := svc.GetOrder(ctx, order.ID, auth.Principal{ID: owner})
	require.NoError(t, err)
	second, err := svc.GetOrder(ctx, order.ID, auth.Principal{ID: owner})
	require.NoError(t, err)

	for _, pair := range [][2]models.Amount{
		{first.ItemsPrice, second.ItemsPrice},
		{first.ShippingPrice, second.ShippingPrice},
		{first.TaxPrice, second.TaxPrice},
		{first.TotalPrice, second.TotalPrice},
	} {
		assert.Equal(t, pair[0].String(), pair[1].String())
	}
	assert.Equal(t, first.IsPaid, second.IsPaid)
	assert.Equal(t, first.IsDelivered, second.IsDelivered)
}

func TestListOrdersForUser(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()
	alice := primitive.NewObjectID()
	bob := primitive.NewObjectID()

	first, err := svc.CreateOrder(ctx, alice, checkout(lineOf("1", 1)))
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, bob, checkout(lineOf("2", 1)))
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, alice, checkout(lineOf("3", 1)))
	require.NoError(t, err)

	got, err := svc.ListOrdersForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
	for _, o := range got {
		assert.Equal(t, alice, o.User)
	}

	none, err := svc.ListOrdersForUser(ctx, primitive.NewObjectID())
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestListAllOrders(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateOrder(ctx, primitive.NewObjectID(), checkout(lineOf("1", 1)))
		require.NoError(t, err)
	}

	_, err := svc.ListAllOrders(ctx, auth.Principal{ID: primitive.NewObjectID()})
	require.ErrorIs(t, err, ErrForbidden)

	all, err := svc.ListAllOrders(ctx, auth.Principal{ID: primitive.NewObjectID(), IsAdmin: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt))
	assert.True(t, all[1].CreatedAt.After(all[2].CreatedAt))
}

func TestMarkPaid_OnlyOnce(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, primitive.NewObjectID(), checkout(lineOf("20", 2)))
	require.NoError(t, err)

	paid, err := svc.MarkPaid(ctx, order.ID, completed())
	require.NoError(t, err)
	require.True(t, paid.IsPaid)
	require.NotNil(t, paid.PaidAt)
	require.NotNil(t, paid.PaymentResult)
	assert.Equal(t, "5O190127TN364715T", paid.PaymentResult.ID)
	firstPaidAt := *paid.PaidAt

	_, err = svc.MarkPaid(ctx, order.ID, completed())
	require.ErrorIs(t, err, ErrAlreadyPaid)

	stored, err := store.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, firstPaidAt.Equal(*stored.PaidAt))
}

func TestMarkPaid_Concurrent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, primitive.NewObjectID(), checkout(lineOf("20", 2)))
	require.NoError(t, err)

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.MarkPaid(ctx, order.ID, completed())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrAlreadyPaid):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, conflicts)
}

func TestMarkPaid_Rejects(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, primitive.NewObjectID(), checkout(lineOf("20", 2)))
	require.NoError(t, err)

	noID := completed()
	noID.ID = " "
	pending := completed()
	pending.Status = "PENDING"

	_, err = svc.MarkPaid(ctx, order.ID, noID)
	require.ErrorIs(t, err, ErrInvalidPaymentResult)
	_, err = svc.MarkPaid(ctx, order.ID, pending)
	require.ErrorIs(t, err, ErrInvalidPaymentResult)

	stored, err := store.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPaid)
	assert.Nil(t, stored.PaidAt)

	_, err = svc.MarkPaid(ctx, primitive.NewObjectID(), completed())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMarkPaid_ValidatesPayloadBeforeLookup(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, primitive.NewObjectID(), checkout(lineOf("20", 2)))
	require.NoError(t, err)
	_, err = svc.MarkPaid(ctx, order.ID, completed())
	require.NoError(t, err)

	pending := completed()
	pending.Status = "PENDING"

	_, err = svc.MarkPaid(ctx, primitive.NewObjectID(), pending)
	assert.ErrorIs(t, err, ErrInvalidPaymentResult)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = svc.MarkPaid(ctx, order.ID, pending)
	assert.ErrorIs(t, err, ErrInvalidPaymentResult)
	assert.NotErrorIs(t, err, ErrAlreadyPaid)
}

func TestMarkDelivered(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()
	owner := primitive.NewObjectID()
	admin := auth.Principal{ID: primitive.NewObjectID(), IsAdmin: true}

	order, err := svc.CreateOrder(ctx, owner, checkout(lineOf("20", 2)))
	require.NoError(t, err)

	_, err = svc.MarkDelivered(ctx, order.ID, auth.Principal{ID: owner})
	require.ErrorIs(t, err, ErrForbidden)

	// Delivery does not depend on payment.
	delivered, err := svc.MarkDelivered(ctx, order.ID, admin)
	require.NoError(t, err)
	assert.True(t, delivered.IsDelivered)
	require.NotNil(t, delivered.DeliveredAt)
	assert.False(t, delivered.IsPaid)
	firstDeliveredAt := *delivered.DeliveredAt

	_, err = svc.MarkDelivered(ctx, order.ID, admin)
	require.ErrorIs(t, err, ErrAlreadyDelivered)

	stored, err := store.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, firstDeliveredAt.Equal(*stored.DeliveredAt))

	_, err = svc.MarkDelivered(ctx, primitive.NewObjectID(), admin)
	require.ErrorIs(t, err, ErrNotFound)
}
