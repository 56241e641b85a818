// Package analytics answers read-only rollups over committed bills, grouped
// by customer, by cashier or by product.
//
// Ordering is deterministic: after the primary sort key, products tie-break
// on product id, hours on hour of day and emails lexically. Bills without a
// linked customer group under the empty email.
package analytics

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"kasirbill/backend/internal/cache"
	"kasirbill/backend/internal/domain"
	"kasirbill/backend/internal/metrics"
	"kasirbill/backend/internal/store"
)

// UserError is a rejected query: bad type or missing identifier. It is a
// caller mistake, never a system fault.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

func userError(msg string) error {
	return &UserError{Message: msg}
}

type Options struct {
	Cache    cache.AnalyticsCache
	CacheTTL time.Duration
	Location *time.Location
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

type Engine struct {
	reader   store.Reader
	cache    cache.AnalyticsCache
	cacheTTL time.Duration
	location *time.Location
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewEngine builds an engine over reader. A zero CacheTTL disables caching.
func NewEngine(reader store.Reader, opts Options) *Engine {
	if opts.Cache == nil {
		opts.Cache = cache.NoopAnalyticsCache{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Engine{
		reader:   reader,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		location: opts.Location,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

func (e *Engine) Run(ctx context.Context, req domain.AnalyticsRequest) (domain.AnalyticsResult, error) {
	// The type must match exactly; only the identifier is trimmed.
	req.Identifier = strings.TrimSpace(req.Identifier)

	filter, err := buildFilter(req)
	if err != nil {
		e.metrics.AnalyticsQuery(typeLabel(req.Type), "user_error")
		return domain.AnalyticsResult{}, err
	}

	key := cache.AnalyticsKey(req)
	if e.cacheTTL > 0 {
		cached, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			e.logger.Warn("analytics cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			e.metrics.AnalyticsQuery(req.Type, "cache_hit")
			return *cached, nil
		}
	}

	result := domain.AnalyticsResult{Type: req.Type}
	switch req.Type {
	case domain.AnalyticsCustomer:
		result.Customer, err = e.customerReport(ctx, filter)
	case domain.AnalyticsCashier:
		result.Cashier, err = e.cashierReport(ctx, filter)
	case domain.AnalyticsProduct:
		result.Product, err = e.productReport(ctx, filter)
	}
	if err != nil {
		e.metrics.AnalyticsQuery(req.Type, "error")
		return domain.AnalyticsResult{}, err
	}

	if e.cacheTTL > 0 {
		if err := e.cache.Set(ctx, key, &result, e.cacheTTL); err != nil {
			e.logger.Warn("analytics cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	e.metrics.AnalyticsQuery(req.Type, "ok")
	return result, nil
}

func buildFilter(req domain.AnalyticsRequest) (domain.SaleFilter, error) {
	switch req.Type {
	case domain.AnalyticsCustomer:
		if req.Identifier == "" {
			return domain.SaleFilter{}, userError("Customer email is required for customer analytics")
		}
		return domain.SaleFilter{CustomerEmail: req.Identifier}, nil
	case domain.AnalyticsCashier:
		if req.Identifier == "" {
			return domain.SaleFilter{}, userError("Cashier email is required for cashier analytics")
		}
		return domain.SaleFilter{CashierEmail: req.Identifier}, nil
	case domain.AnalyticsProduct:
		if req.Identifier == "" {
			return domain.SaleFilter{}, userError("Product identifier is required for product analytics")
		}
		if isAlpha(req.Identifier) {
			return domain.SaleFilter{ProductName: req.Identifier}, nil
		}
		id, err := strconv.ParseInt(req.Identifier, 10, 64)
		if err != nil || id < 1 {
			return domain.SaleFilter{}, userError("Product identifier must be a product name or numeric id")
		}
		return domain.SaleFilter{ProductID: id}, nil
	}
	return domain.SaleFilter{}, userError("Invalid analytics type")
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func typeLabel(t string) string {
	switch t {
	case domain.AnalyticsCustomer, domain.AnalyticsCashier, domain.AnalyticsProduct:
		return t
	}
	return "invalid"
}

func (e *Engine) customerReport(ctx context.Context, filter domain.SaleFilter) (*domain.CustomerAnalytics, error) {
	lines, err := e.reader.ListLineFacts(ctx, filter)
	if err != nil {
		return nil, err
	}
	bills, err := e.reader.ListBillFacts(ctx, filter)
	if err != nil {
		return nil, err
	}

	byProduct := make(map[int64]*domain.ProductPurchase)
	for _, line := range lines {
		entry, ok := byProduct[line.ProductID]
		if !ok {
			entry = &domain.ProductPurchase{ProductID: line.ProductID, ProductName: line.ProductName}
			byProduct[line.ProductID] = entry
		}
		entry.TotalQuantity += int64(line.Quantity)
		entry.Frequency++
	}
	products := make([]domain.ProductPurchase, 0, len(byProduct))
	for _, entry := range byProduct {
		products = append(products, *entry)
	}
	slices.SortFunc(products, func(a, b domain.ProductPurchase) int {
		return cmp.Or(
			cmp.Compare(b.TotalQuantity, a.TotalQuantity),
			cmp.Compare(b.Frequency, a.Frequency),
			cmp.Compare(a.ProductID, b.ProductID),
		)
	})

	byHour := make(map[int]int64)
	for _, bill := range bills {
		byHour[bill.CreatedAt.In(e.location).Hour()]++
	}
	timings := make([]domain.HourFrequency, 0, len(byHour))
	for hour, count := range byHour {
		timings = append(timings, domain.HourFrequency{Hour: hour, Frequency: count})
	}
	slices.SortFunc(timings, func(a, b domain.HourFrequency) int {
		return cmp.Or(
			cmp.Compare(b.Frequency, a.Frequency),
			cmp.Compare(a.Hour, b.Hour),
		)
	})

	return &domain.CustomerAnalytics{
		ProductsBought:    products,
		FrequentedTimings: timings,
		Cashiers:          countBills(bills, func(b domain.BillFact) string { return b.CashierEmail }),
	}, nil
}

func (e *Engine) cashierReport(ctx context.Context, filter domain.SaleFilter) (*domain.CashierAnalytics, error) {
	lines, err := e.reader.ListLineFacts(ctx, filter)
	if err != nil {
		return nil, err
	}
	bills, err := e.reader.ListBillFacts(ctx, filter)
	if err != nil {
		return nil, err
	}

	byProduct := make(map[int64]*domain.ProductQuantity)
	for _, line := range lines {
		entry, ok := byProduct[line.ProductID]
		if !ok {
			entry = &domain.ProductQuantity{ProductID: line.ProductID, ProductName: line.ProductName}
			byProduct[line.ProductID] = entry
		}
		entry.TotalQuantity += int64(line.Quantity)
	}
	products := make([]domain.ProductQuantity, 0, len(byProduct))
	for _, entry := range byProduct {
		products = append(products, *entry)
	}
	slices.SortFunc(products, func(a, b domain.ProductQuantity) int {
		return cmp.Or(
			cmp.Compare(b.TotalQuantity, a.TotalQuantity),
			cmp.Compare(a.ProductID, b.ProductID),
		)
	})

	return &domain.CashierAnalytics{
		ProductsSold: products,
		Customers:    countBills(bills, func(b domain.BillFact) string { return b.CustomerEmail }),
	}, nil
}

func (e *Engine) productReport(ctx context.Context, filter domain.SaleFilter) (*domain.ProductAnalytics, error) {
	lines, err := e.reader.ListLineFacts(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &domain.ProductAnalytics{
		Customers: sumQuantity(lines, func(l domain.LineFact) string { return l.CustomerEmail }),
		Cashiers:  sumQuantity(lines, func(l domain.LineFact) string { return l.CashierEmail }),
	}, nil
}

func countBills(bills []domain.BillFact, keyOf func(domain.BillFact) string) []domain.EmailInstances {
	counts := make(map[string]int64)
	for _, bill := range bills {
		counts[keyOf(bill)]++
	}
	out := make([]domain.EmailInstances, 0, len(counts))
	for email, n := range counts {
		out = append(out, domain.EmailInstances{Email: email, Instances: n})
	}
	slices.SortFunc(out, func(a, b domain.EmailInstances) int {
		return cmp.Or(
			cmp.Compare(b.Instances, a.Instances),
			strings.Compare(a.Email, b.Email),
		)
	})
	return out
}

func sumQuantity(lines []domain.LineFact, keyOf func(domain.LineFact) string) []domain.EmailQuantity {
	totals := make(map[string]int64)
	for _, line := range lines {
		totals[keyOf(line)] += int64(line.Quantity)
	}
	out := make([]domain.EmailQuantity, 0, len(totals))
	for email, qty := range totals {
		out = append(out, domain.EmailQuantity{Email: email, TotalQuantity: qty})
	}
	slices.SortFunc(out, func(a, b domain.EmailQuantity) int {
		return cmp.Or(
			cmp.Compare(b.TotalQuantity, a.TotalQuantity),
			strings.Compare(a.Email, b.Email),
		)
	})
	return out
}
