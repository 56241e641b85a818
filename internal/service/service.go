package service

import (
	"context"

	"go.uber.org/zap"

	"kasirbill/backend/internal/analytics"
	"kasirbill/backend/internal/domain"
	"kasirbill/backend/internal/metrics"
	"kasirbill/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	AllowOversell bool
	Policy        SnapshotPolicy
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Service is the entry point used by the HTTP layer and the CLI.
type Service struct {
	customers *CustomerDirectory
	bills     *BillCoordinator
	analytics *analytics.Engine
	logger    *zap.Logger
}

func New(repo store.Repository, engine *analytics.Engine, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("service")

	directory := NewCustomerDirectory(repo, NewIdentityPropagator(opts.Policy), logger.Named("customers"), opts.Metrics)
	ledger := NewInventoryLedger(opts.AllowOversell, logger.Named("inventory"))

	return &Service{
		customers: directory,
		bills:     NewBillCoordinator(repo, directory, ledger, logger.Named("billing"), opts.Metrics),
		analytics: engine,
		logger:    logger,
	}
}

// CreateBill records a sale on behalf of the actor carried by ctx.
func (s *Service) CreateBill(ctx context.Context, req domain.BillCreateRequest) (domain.Bill, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Bill{}, ErrActorRequired
	}
	return s.bills.CreateBill(ctx, actor, req)
}

func (s *Service) GetBill(ctx context.Context, id int64) (domain.Bill, error) {
	return s.bills.GetBill(ctx, id)
}

func (s *Service) UpdateLineItem(ctx context.Context, item domain.BillItem) (domain.BillItem, error) {
	return s.bills.UpdateLineItem(ctx, item)
}

func (s *Service) ResolveCustomer(ctx context.Context, req domain.CustomerResolveRequest) (domain.CustomerResolveResponse, error) {
	customer, created, err := s.customers.ResolveForSale(ctx, req.Customer, req.UpdateConsent)
	if err != nil {
		return domain.CustomerResolveResponse{}, err
	}
	return domain.CustomerResolveResponse{Customer: customer, Created: created}, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id int64, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	return s.customers.UpdateCustomer(ctx, id, req)
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	return s.customers.GetCustomer(ctx, id)
}

func (s *Service) RunAnalytics(ctx context.Context, req domain.AnalyticsRequest) (domain.AnalyticsResult, error) {
	return s.analytics.Run(ctx, req)
}
