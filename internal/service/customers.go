package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"kasirbill/backend/internal/domain"
	"kasirbill/backend/internal/metrics"
	"kasirbill/backend/internal/store"
)

// CustomerDirectory owns customer records keyed by email.
type CustomerDirectory struct {
	repo       store.Repository
	propagator *IdentityPropagator
	validate   *validator.Validate
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

func NewCustomerDirectory(repo store.Repository, propagator *IdentityPropagator, logger *zap.Logger, m *metrics.Metrics) *CustomerDirectory {
	if propagator == nil {
		propagator = NewIdentityPropagator(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomerDirectory{
		repo:       repo,
		propagator: propagator,
		validate:   validator.New(),
		logger:     logger,
		metrics:    m,
	}
}

// ResolveForSale finds or creates the customer behind a sale in its own unit
// of work. An empty email means an anonymous sale and yields a nil customer.
func (d *CustomerDirectory) ResolveForSale(ctx context.Context, details domain.CustomerDetails, updateConsent bool) (*domain.Customer, bool, error) {
	details = normalizeDetails(details)
	if details.Email == "" {
		return nil, false, nil
	}
	if err := d.validateEmail(details.Email); err != nil {
		return nil, false, err
	}

	var (
		customer *domain.Customer
		created  bool
	)
	err := d.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		customer, created, err = d.resolveForSale(ctx, tx, details, updateConsent)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return customer, created, nil
}

// resolveForSale expects details already normalised and validated.
func (d *CustomerDirectory) resolveForSale(ctx context.Context, tx store.Tx, details domain.CustomerDetails, updateConsent bool) (*domain.Customer, bool, error) {
	if details.Email == "" {
		return nil, false, nil
	}

	existing, created, err := tx.EnsureCustomer(ctx, domain.Customer{
		Name:    details.Name,
		Address: details.Address,
		Email:   details.Email,
		Phone:   details.Phone,
	})
	if err != nil {
		return nil, false, fmt.Errorf("resolve customer %q: %w", details.Email, err)
	}
	if created {
		d.logger.Debug("customer created for sale", zap.Int64("customer_id", existing.ID))
		return existing, true, nil
	}

	if !updateConsent {
		return existing, false, nil
	}

	merged := *existing
	if details.Name != "" {
		merged.Name = details.Name
	}
	if details.Address != "" {
		merged.Address = details.Address
	}
	if details.Phone != "" {
		merged.Phone = details.Phone
	}
	if merged == *existing {
		return existing, false, nil
	}

	updated, err := tx.UpdateCustomer(ctx, merged)
	if err != nil {
		return nil, false, fmt.Errorf("update customer %d: %w", existing.ID, err)
	}
	return updated, false, nil
}

// UpdateCustomer applies a direct edit. The persisted row is read before the
// write and any snapshot propagation happens in the same unit of work.
func (d *CustomerDirectory) UpdateCustomer(ctx context.Context, id int64, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	if id < 1 {
		return domain.Customer{}, fmt.Errorf("%w: customer id must be positive", store.ErrValidation)
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if err := d.validateEmail(email); err != nil {
			return domain.Customer{}, err
		}
		req.Email = &email
	}

	var (
		result     domain.Customer
		propagated int64
	)
	err := d.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		before, err := tx.GetCustomerForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("load customer %d: %w", id, err)
		}

		after := applyCustomerUpdate(*before, req)
		if after == *before {
			result = *before
			return nil
		}

		saved, err := tx.UpdateCustomer(ctx, after)
		if err != nil {
			return fmt.Errorf("update customer %d: %w", id, err)
		}

		propagated, err = d.propagator.Propagate(ctx, tx, *before, *saved)
		if err != nil {
			return err
		}
		result = *saved
		return nil
	})
	if err != nil {
		return domain.Customer{}, err
	}

	if propagated > 0 {
		d.metrics.SnapshotsPropagated(propagated)
		d.logger.Info("customer snapshot propagated",
			zap.Int64("customer_id", id),
			zap.Int64("bills", propagated),
		)
	}
	return result, nil
}

func (d *CustomerDirectory) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	customer, err := d.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (d *CustomerDirectory) validateEmail(email string) error {
	if err := d.validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: invalid customer email %q", store.ErrValidation, email)
	}
	return nil
}

func applyCustomerUpdate(customer domain.Customer, req domain.CustomerUpdateRequest) domain.Customer {
	if req.Name != nil {
		customer.Name = strings.TrimSpace(*req.Name)
	}
	if req.Address != nil {
		customer.Address = strings.TrimSpace(*req.Address)
	}
	if req.Email != nil {
		customer.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		customer.Phone = strings.TrimSpace(*req.Phone)
	}
	return customer
}

func normalizeDetails(details domain.CustomerDetails) domain.CustomerDetails {
	return domain.CustomerDetails{
		Name:    strings.TrimSpace(details.Name),
		Email:   strings.TrimSpace(details.Email),
		Address: strings.TrimSpace(details.Address),
		Phone:   strings.TrimSpace(details.Phone),
	}
}
