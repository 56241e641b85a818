package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"kasirbill/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateEmail    = errors.New("email already in use")
	// ErrConsistency marks a storage failure that forced the whole unit of
	// work to roll back. Callers may retry.
	ErrConsistency = errors.New("transaction aborted")
)

// Reader is the read-only view used by the analytics engine and read paths.
type Reader interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error)
	GetBill(ctx context.Context, id int64) (*domain.Bill, error)
	ListBillFacts(ctx context.Context, filter domain.SaleFilter) ([]domain.BillFact, error)
	ListLineFacts(ctx context.Context, filter domain.SaleFilter) ([]domain.LineFact, error)
}

// Tx is the set of writes available inside one atomic unit of work. Every
// method sees the writes made earlier in the same Tx.
type Tx interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	// DecrementStock subtracts qty from the product's stock and returns the
	// new level. With allowNegative false it fails with ErrInsufficientStock
	// instead of going below zero.
	DecrementStock(ctx context.Context, productID int64, qty int, allowNegative bool) (int, error)

	FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error)
	// GetCustomerForUpdate reads the persisted row and locks it until the
	// unit of work ends.
	GetCustomerForUpdate(ctx context.Context, id int64) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	// EnsureCustomer returns the customer holding customer.Email, inserting
	// it when absent, and locks the row until the unit of work ends.
	// Concurrent callers with the same email converge on one row.
	EnsureCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, bool, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)

	CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error)
	SetBillTotal(ctx context.Context, billID int64, total decimal.Decimal) error
	CreateBillItem(ctx context.Context, item domain.BillItem) (*domain.BillItem, error)
	UpdateBillItem(ctx context.Context, item domain.BillItem) (*domain.BillItem, error)
	GetBillItem(ctx context.Context, id int64) (*domain.BillItem, error)

	// SyncBillSnapshots overwrites the given snapshot columns on every bill
	// linked to customerID and reports how many bills changed.
	SyncBillSnapshots(ctx context.Context, customerID int64, values map[domain.SnapshotField]string) (int64, error)
}

type Repository interface {
	Reader

	// WithinTx runs fn as one atomic unit. If fn returns an error nothing it
	// wrote is kept.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, email string, password string) error
}
