package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kasirbill/backend/internal/domain"
	"kasirbill/backend/internal/metrics"
	"kasirbill/backend/internal/store"
)

var ErrActorRequired = errors.New("authenticated actor required")

// BillCoordinator creates a bill, its customer link, its line items and the
// matching stock decrements as one unit of work.
type BillCoordinator struct {
	repo      store.Repository
	directory *CustomerDirectory
	ledger    *InventoryLedger
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewBillCoordinator(repo store.Repository, directory *CustomerDirectory, ledger *InventoryLedger, logger *zap.Logger, m *metrics.Metrics) *BillCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillCoordinator{
		repo:      repo,
		directory: directory,
		ledger:    ledger,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

func (c *BillCoordinator) CreateBill(ctx context.Context, actor domain.Actor, req domain.BillCreateRequest) (domain.Bill, error) {
	createdBy := strings.TrimSpace(actor.Email)
	if createdBy == "" {
		return domain.Bill{}, ErrActorRequired
	}
	if err := validateLines(req.Items); err != nil {
		c.metrics.BillFailed(failureReason(err))
		return domain.Bill{}, err
	}

	details := normalizeDetails(req.CustomerDetails())
	if details.Email != "" {
		if err := c.directory.validateEmail(details.Email); err != nil {
			c.metrics.BillFailed(failureReason(err))
			return domain.Bill{}, err
		}
	}

	var (
		bill     domain.Bill
		created  bool
		oversold int
	)
	err := c.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		customer, wasCreated, err := c.directory.resolveForSale(ctx, tx, details, req.UpdateCustomerConsent)
		if err != nil {
			return err
		}
		created = wasCreated

		header := domain.Bill{
			CustomerName:    details.Name,
			CustomerEmail:   details.Email,
			CustomerAddress: details.Address,
			CustomerPhone:   details.Phone,
			CreatedBy:       createdBy,
			CreatedAt:       c.now().UTC(),
			TotalAmount:     decimal.Zero,
		}
		if customer != nil {
			customerID := customer.ID
			header.CustomerID = &customerID
			header.CustomerName = customer.Name
			header.CustomerEmail = customer.Email
			header.CustomerAddress = customer.Address
			header.CustomerPhone = customer.Phone
		}

		saved, err := tx.CreateBill(ctx, header)
		if err != nil {
			return fmt.Errorf("create bill: %w", err)
		}

		items := make([]domain.BillItem, 0, len(req.Items))
		for _, line := range req.Items {
			item, remaining, err := c.createLineItem(ctx, tx, saved, line)
			if err != nil {
				return err
			}
			if remaining < 0 {
				oversold++
			}
			items = append(items, item)
		}
		saved.Items = items
		bill = *saved
		return nil
	})
	if err != nil {
		c.metrics.BillFailed(failureReason(err))
		c.logger.Warn("bill creation rolled back",
			zap.String("created_by", createdBy),
			zap.Int("lines", len(req.Items)),
			zap.Error(err),
		)
		return domain.Bill{}, err
	}

	c.metrics.BillCreated(len(bill.Items))
	for range oversold {
		c.metrics.StockOversold()
	}
	c.logger.Info("bill created",
		zap.Int64("bill_id", bill.ID),
		zap.String("created_by", createdBy),
		zap.Bool("customer_created", created),
		zap.Int("items", len(bill.Items)),
		zap.String("total", bill.TotalAmount.StringFixed(2)),
	)
	return bill, nil
}

// createLineItem is the only path that decrements stock or grows a bill
// total. bill.TotalAmount is advanced and persisted after each line.
func (c *BillCoordinator) createLineItem(ctx context.Context, tx store.Tx, bill *domain.Bill, line domain.BillLine) (domain.BillItem, int, error) {
	product, err := tx.GetProduct(ctx, line.ProductID)
	if err != nil {
		return domain.BillItem{}, 0, fmt.Errorf("product %d: %w", line.ProductID, err)
	}

	item, err := tx.CreateBillItem(ctx, domain.BillItem{
		BillID:    bill.ID,
		ProductID: product.ID,
		Quantity:  line.Quantity,
		Price:     product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))),
	})
	if err != nil {
		return domain.BillItem{}, 0, fmt.Errorf("create item for product %d: %w", product.ID, err)
	}

	remaining, err := c.ledger.Decrement(ctx, tx, product.ID, line.Quantity)
	if err != nil {
		return domain.BillItem{}, 0, err
	}

	bill.TotalAmount = bill.TotalAmount.Add(item.Price)
	if err := tx.SetBillTotal(ctx, bill.ID, bill.TotalAmount); err != nil {
		return domain.BillItem{}, 0, fmt.Errorf("update total for bill %d: %w", bill.ID, err)
	}
	return *item, remaining, nil
}

// UpdateLineItem re-saves an existing line item. Product, quantity and price
// are fixed once the item exists, so a re-save never touches stock or the
// bill total; attempts to change them fail with store.ErrValidation.
func (c *BillCoordinator) UpdateLineItem(ctx context.Context, item domain.BillItem) (domain.BillItem, error) {
	if item.ID < 1 {
		return domain.BillItem{}, fmt.Errorf("%w: item id must be positive", store.ErrValidation)
	}

	var saved domain.BillItem
	err := c.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.GetBillItem(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("bill item %d: %w", item.ID, err)
		}
		if item.BillID != 0 && item.BillID != existing.BillID {
			return fmt.Errorf("%w: bill item %d belongs to bill %d", store.ErrValidation, item.ID, existing.BillID)
		}
		if item.ProductID != 0 && item.ProductID != existing.ProductID {
			return fmt.Errorf("%w: product of bill item %d cannot change", store.ErrValidation, item.ID)
		}
		if item.Quantity != 0 && item.Quantity != existing.Quantity {
			return fmt.Errorf("%w: quantity of bill item %d cannot change", store.ErrValidation, item.ID)
		}

		updated, err := tx.UpdateBillItem(ctx, *existing)
		if err != nil {
			return fmt.Errorf("save bill item %d: %w", item.ID, err)
		}
		saved = *updated
		return nil
	})
	if err != nil {
		return domain.BillItem{}, err
	}
	return saved, nil
}

func (c *BillCoordinator) GetBill(ctx context.Context, id int64) (domain.Bill, error) {
	bill, err := c.repo.GetBill(ctx, id)
	if err != nil {
		return domain.Bill{}, err
	}
	return *bill, nil
}

func validateLines(lines []domain.BillLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: bill needs at least one item", store.ErrValidation)
	}
	for i, line := range lines {
		if line.ProductID < 1 {
			return fmt.Errorf("%w: item %d has no product", store.ErrValidation, i+1)
		}
		if line.Quantity < 1 {
			return fmt.Errorf("%w: item %d quantity must be at least 1", store.ErrValidation, i+1)
		}
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, store.ErrValidation):
		return "validation"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrDuplicateEmail):
		return "duplicate_email"
	case errors.Is(err, store.ErrConsistency):
		return "consistency"
	}
	return "internal"
}
