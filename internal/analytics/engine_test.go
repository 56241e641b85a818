package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirbill/backend/internal/domain"
	"kasirbill/backend/internal/store"
	"kasirbill/backend/internal/store/memory"
)

type sale struct {
	customer string
	cashier  string
	at       time.Time
	lines    []domain.BillLine
}

type fixture struct {
	repo     *memory.Store
	widget   int64
	gadget   int64
	sprocket int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()

	f := &fixture{repo: repo}
	for _, p := range []struct {
		name string
		id   *int64
	}{
		{"Widget", &f.widget},
		{"Gadget", &f.gadget},
		{"Sprocket", &f.sprocket},
	} {
		created, err := repo.CreateProduct(ctx, domain.Product{Name: p.name, Price: decimal.RequireFromString("2.50"), StockQuantity: 100})
		require.NoError(t, err)
		*p.id = created.ID
	}
	return f
}

func (f *fixture) record(t *testing.T, sales ...sale) {
	t.Helper()
	err := f.repo.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, s := range sales {
			bill := domain.Bill{CreatedBy: s.cashier, CreatedAt: s.at}
			if s.customer != "" {
				customer, err := tx.FindCustomerByEmail(ctx, s.customer)
				if errors.Is(err, store.ErrNotFound) {
					customer, err = tx.CreateCustomer(ctx, domain.Customer{Email: s.customer})
				}
				if err != nil {
					return err
				}
				id := customer.ID
				bill.CustomerID = &id
				bill.CustomerEmail = customer.Email
			}
			saved, err := tx.CreateBill(ctx, bill)
			if err != nil {
				return err
			}
			for _, line := range s.lines {
				if _, err := tx.CreateBillItem(ctx, domain.BillItem{BillID: saved.ID, ProductID: line.ProductID, Quantity: line.Quantity}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func at(hour int) time.Time {
	return time.Date(2024, 3, 1, hour, 15, 0, 0, time.UTC)
}

func TestCustomerProductsOrderedByQuantityThenFrequency(t *testing.T) {
	f := newFixture(t)
	f.record(t,
		sale{customer: "alice@example.com", cashier: "kasir@example.com", at: at(9), lines: []domain.BillLine{{ProductID: f.widget, Quantity: 1}}},
		sale{customer: "alice@example.com", cashier: "kasir@example.com", at: at(10), lines: []domain.BillLine{
			{ProductID: f.widget, Quantity: 2},
			{ProductID: f.gadget, Quantity: 5},
		}},
	)

	engine := NewEngine(f.repo, Options{})
	result, err := engine.Run(context.Background(), domain.AnalyticsRequest{Type: "customer", Identifier: "alice@example.com"})
	require.NoError(t, err)
	require.NotNil(t, result.Customer)

	bought := result.Customer.ProductsBought
	require.Len(t, bought, 2)
	assert.Equal(t, "Gadget", bought[0].ProductName)
	assert.Equal(t, int64(5), bought[0].TotalQuantity)
	assert.Equal(t, int64(1), bought[0].Frequency)
	assert.Equal(t, "Widget", bought[1].ProductName)
	assert.Equal(t, int64(3), bought[1].TotalQuantity)
	assert.Equal(t, int64(2), bought[1].Frequency)
}

func TestCustomerProductTiesBreakOnFrequencyThenID(t *testing.T) {
	f := newFixture(t)
	f.record(t,
		sale{customer: "bob@example.com", cashier: "kasir@example.com", at: at(9), lines: []domain.BillLine{
			{ProductID: f.sprocket, Quantity: 2},
			{ProductID: f.gadget, Quantity: 4},
		}},
		sale{customer: "bob@example.com", cashier: "kasir@example.com", at: at(9), lines: []domain.BillLine{
			{ProductID: f.sprocket, Quantity: 2},
			{ProductID: f.widget, Quantity: 4},
		}},
	)

	result, err := NewEngine(f.repo, Options{}).Run(context.Background(), domain.AnalyticsRequest{Type: "customer", Identifier: "bob@example.com"})
	require.NoError(t, err)

	ids := make([]int64, 0, 3)
	for _, p := range result.Customer.ProductsBought {
		ids = append(ids, p.ProductID)
	}
	// All total 4: sprocket wins on frequency, then widget before gadget by id.
	assert.Equal(t, []int64{f.sprocket, f.widget, f.gadget}, ids)
}

func TestCustomerTimingsAndCashiers(t *testing.T) {
	f := newFixture(t)
	line := []domain.BillLine{{ProductID: f.widget, Quantity: 1}}
	f.record(t,
		sale{customer: "alice@example.com", cashier: "b@example.com", at: at(14), lines: line},
		sale{customer: "alice@example.com", cashier: "a@example.com", at: at(9), lines: line},
		sale{customer: "alice@example.com", cashier: "c@example.com", at: at(14), lines: line},
		sale{customer: "alice@example.com", cashier: "c@example.com", at: at(20), lines: line},
		sale{customer: "other@example.com", cashier: "c@example.com", at: at(20), lines: line},
	)

	result, err := NewEngine(f.repo, Options{}).Run(context.Background(), domain.AnalyticsRequest{Type: "customer", Identifier: "alice@example.com"})
	require.NoError(t, err)

	assert.Equal(t, []domain.HourFrequency{
		{Hour: 14, Frequency: 2},
		{Hour: 9, Frequency: 1},
		{Hour: 20, Frequency: 1},
	}, result.Customer.FrequentedTimings)
	assert.Equal(t, []domain.EmailInstances{
		{Email: "c@example.com", Instances: 2},
		{Email: "a@example.com", Instances: 1},
		{Email: "b@example.com", Instances: 1},
	}, result.Customer.Cashiers)
}

func TestTimingsUseConfiguredLocation(t *testing.T) {
	f := newFixture(t)
	f.record(t, sale{customer: "alice@example.com", cashier: "kasir@example.com", at: at(23), lines: []domain.BillLine{{ProductID: f.widget, Quantity: 1}}})

	jakarta := time.FixedZone("WIB", 7*60*60)
	result, err := NewEngine(f.repo, Options{Location: jakarta}).Run(context.Background(), domain.AnalyticsRequest{Type: "customer", Identifier: "alice@example.com"})
	require.NoError(t, err)
	require.Len(t, result.Customer.FrequentedTimings, 1)
	assert.Equal(t, 6, result.Customer.FrequentedTimings[0].Hour)
}

func TestCashierReport(t *testing.T) {
	f := newFixture(t)
	f.record(t,
		sale{customer: "alice@example.com", cashier: "kasir@example.com", at: at(9), lines: []domain.BillLine{{ProductID: f.widget, Quantity: 2}}},
		sale{customer: "alice@example.com", cashier: "kasir@example.com", at: at(9), lines: []domain.BillLine{{ProductID: f.gadget, Quantity: 7}}},
		sale{cashier: "kasir@example.com", at: at(9), lines: []domain.BillLine{{ProductID: f.widget, Quantity: 1}}},
		sale{customer: "bob@example.com", cashier: "other@example.com", at: at(9), lines: []domain.BillLine{{ProductID: f.sprocket, Quantity: 9}}},
	)

	result, err := NewEngine(f.repo, Options{}).Run(context.Background(), domain.AnalyticsRequest{Type: "cashier", Identifier: "kasir@example.com"})
	require.NoError(t, err)
	require.NotNil(t, result.Cashier)

	assert.Equal(t, []domain.ProductQuantity{
		{ProductID: f.gadget, ProductName: "Gadget", TotalQuantity: 7},
		{ProductID: f.widget, ProductName: "Widget", TotalQuantity: 3},
	}, result.Cashier.ProductsSold)
	assert.Equal(t, []domain.EmailInstances{
		{Email: "alice@example.com", Instances: 2},
		{Email: "", Instances: 1},
	}, result.Cashier.Customers)
}

func TestProductReportByNameAndID(t *testing.T) {
	f := newFixture(t)
	f.record(t,
		sale{customer: "alice@example.com", cashier: "kasir@example.com", at: at(9), lines: []domain.BillLine{{ProductID: f.widget, Quantity: 2}}},
		sale{customer: "bob@example.com", cashier: "kasir@example.com", at: at(9), lines: []domain.BillLine{{ProductID: f.widget, Quantity: 2}}},
		sale{customer: "bob@example.com", cashier: "other@example.com", at: at(9), lines: []domain.BillLine{{ProductID: f.widget, Quantity: 3}, {ProductID: f.gadget, Quantity: 50}}},
	)
	engine := NewEngine(f.repo, Options{})

	byName, err := engine.Run(context.Background(), domain.AnalyticsRequest{Type: "product", Identifier: "Widget"})
	require.NoError(t, err)
	assert.Equal(t, []domain.EmailQuantity{
		{Email: "bob@example.com", TotalQuantity: 5},
		{Email: "alice@example.com", TotalQuantity: 2},
	}, byName.Product.Customers)
	assert.Equal(t, []domain.EmailQuantity{
		{Email: "kasir@example.com", TotalQuantity: 4},
		{Email: "other@example.com", TotalQuantity: 3},
	}, byName.Product.Cashiers)

	byID, err := engine.Run(context.Background(), domain.AnalyticsRequest{Type: "product", Identifier: " 1 "})
	require.NoError(t, err)
	assert.Equal(t, byName.Product, byID.Product)
}

func TestAnalyticsFollowsCurrentCustomerEmail(t *testing.T) {
	f := newFixture(t)
	f.record(t, sale{customer: "old@example.com", cashier: "kasir@example.com", at: at(9), lines: []domain.BillLine{{ProductID: f.widget, Quantity: 1}}})

	err := f.repo.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		customer, err := tx.FindCustomerByEmail(ctx, "old@example.com")
		if err != nil {
			return err
		}
		customer.Email = "new@example.com"
		_, err = tx.UpdateCustomer(ctx, *customer)
		return err
	})
	require.NoError(t, err)

	result, err := NewEngine(f.repo, Options{}).Run(context.Background(), domain.AnalyticsRequest{Type: "customer", Identifier: "new@example.com"})
	require.NoError(t, err)
	require.Len(t, result.Customer.ProductsBought, 1)
}

func TestUserErrors(t *testing.T) {
	engine := NewEngine(memory.New(), Options{})

	cases := []struct {
		req  domain.AnalyticsRequest
		want string
	}{
		{domain.AnalyticsRequest{Type: "customer"}, "Customer email is required for customer analytics"},
		{domain.AnalyticsRequest{Type: "cashier", Identifier: "   "}, "Cashier email is required for cashier analytics"},
		{domain.AnalyticsRequest{Type: "product"}, "Product identifier is required for product analytics"},
		{domain.AnalyticsRequest{Type: "product", Identifier: "Mie Goreng"}, "Product identifier must be a product name or numeric id"},
		{domain.AnalyticsRequest{Type: "product", Identifier: "0"}, "Product identifier must be a product name or numeric id"},
		{domain.AnalyticsRequest{Type: "inventory", Identifier: "x"}, "Invalid analytics type"},
		{domain.AnalyticsRequest{}, "Invalid analytics type"},
		{domain.AnalyticsRequest{Type: "CUSTOMER", Identifier: "alice@example.com"}, "Invalid analytics type"},
		{domain.AnalyticsRequest{Type: " customer", Identifier: "alice@example.com"}, "Invalid analytics type"},
	}
	for _, tc := range cases {
		_, err := engine.Run(context.Background(), tc.req)
		var userErr *UserError
		require.ErrorAs(t, err, &userErr, "request %+v", tc.req)
		assert.Equal(t, tc.want, userErr.Message)
	}
}

type countingCache struct {
	values map[string]*domain.AnalyticsResult
	sets   int
	hits   int
}

func (c *countingCache) Get(_ context.Context, key string) (*domain.AnalyticsResult, bool, error) {
	v, ok := c.values[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *countingCache) Set(_ context.Context, key string, value *domain.AnalyticsResult, _ time.Duration) error {
	c.sets++
	c.values[key] = value
	return nil
}

func TestResultsAreCachedButUserErrorsAreNot(t *testing.T) {
	f := newFixture(t)
	f.record(t, sale{customer: "alice@example.com", cashier: "kasir@example.com", at: at(9), lines: []domain.BillLine{{ProductID: f.widget, Quantity: 1}}})

	c := &countingCache{values: map[string]*domain.AnalyticsResult{}}
	engine := NewEngine(f.repo, Options{Cache: c, CacheTTL: time.Minute})
	req := domain.AnalyticsRequest{Type: "cashier", Identifier: "kasir@example.com"}

	first, err := engine.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.sets)
	assert.Equal(t, 1, c.hits)

	_, err = engine.Run(context.Background(), domain.AnalyticsRequest{Type: "cashier"})
	require.Error(t, err)
	assert.Equal(t, 1, c.sets)
}

func TestZeroTTLSkipsCache(t *testing.T) {
	c := &countingCache{values: map[string]*domain.AnalyticsResult{}}
	engine := NewEngine(memory.New(), Options{Cache: c})

	_, err := engine.Run(context.Background(), domain.AnalyticsRequest{Type: "cashier", Identifier: "kasir@example.com"})
	require.NoError(t, err)
	assert.Zero(t, c.sets)
}

func TestIsAlpha(t *testing.T) {
	assert.True(t, isAlpha("Widget"))
	assert.True(t, isAlpha("Kopi"))
	assert.False(t, isAlpha(""))
	assert.False(t, isAlpha("42"))
	assert.False(t, isAlpha("Widget2"))
	assert.False(t, isAlpha("Air Mineral"))
}
