package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"kasirbill/backend/internal/store"
)

// InventoryLedger applies sale decrements to product stock. It is only ever
// called while a line item is being created.
type InventoryLedger struct {
	allowOversell bool
	logger        *zap.Logger
}

func NewInventoryLedger(allowOversell bool, logger *zap.Logger) *InventoryLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryLedger{allowOversell: allowOversell, logger: logger}
}

func (l *InventoryLedger) AllowOversell() bool {
	return l.allowOversell
}

// Decrement removes qty units of productID inside tx and returns the stock
// left. When oversell is disabled a sale that would go below zero fails with
// store.ErrInsufficientStock.
func (l *InventoryLedger) Decrement(ctx context.Context, tx store.Tx, productID int64, qty int) (int, error) {
	remaining, err := tx.DecrementStock(ctx, productID, qty, l.allowOversell)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			return remaining, fmt.Errorf("%w: product %d has %d left, requested %d", store.ErrInsufficientStock, productID, remaining, qty)
		}
		return 0, fmt.Errorf("decrement stock for product %d: %w", productID, err)
	}

	if remaining < 0 {
		l.logger.Warn("product oversold",
			zap.Int64("product_id", productID),
			zap.Int("quantity", qty),
			zap.Int("stock_remaining", remaining),
		)
	}
	return remaining, nil
}
