package memory

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"kasirbill/backend/internal/domain"
	"kasirbill/backend/internal/store"
)

// memTx operates on the live state while the store's write lock is held.
type memTx struct {
	st *state
}

func (t *memTx) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	product, ok := t.st.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID int64, qty int, allowNegative bool) (int, error) {
	if qty < 1 {
		return 0, store.ErrValidation
	}
	product, ok := t.st.products[productID]
	if !ok {
		return 0, store.ErrNotFound
	}
	remaining := product.StockQuantity - qty
	if remaining < 0 && !allowNegative {
		return product.StockQuantity, store.ErrInsufficientStock
	}
	product.StockQuantity = remaining
	t.st.products[productID] = product
	return remaining, nil
}

func (t *memTx) FindCustomerByEmail(_ context.Context, email string) (*domain.Customer, error) {
	for _, customer := range t.st.customers {
		if customer.Email == email {
			c := customer
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) GetCustomerForUpdate(_ context.Context, id int64) (*domain.Customer, error) {
	customer, ok := t.st.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (t *memTx) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Email) == "" {
		return nil, store.ErrValidation
	}
	if t.emailTaken(customer.Email, 0) {
		return nil, store.ErrDuplicateEmail
	}
	t.st.nextCustomerID++
	customer.ID = t.st.nextCustomerID
	t.st.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (t *memTx) EnsureCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, bool, error) {
	if strings.TrimSpace(customer.Email) == "" {
		return nil, false, store.ErrValidation
	}
	if existing, err := t.FindCustomerByEmail(ctx, customer.Email); err == nil {
		return existing, false, nil
	}
	created, err := t.CreateCustomer(ctx, customer)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (t *memTx) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if _, ok := t.st.customers[customer.ID]; !ok {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(customer.Email) == "" {
		return nil, store.ErrValidation
	}
	if t.emailTaken(customer.Email, customer.ID) {
		return nil, store.ErrDuplicateEmail
	}
	t.st.customers[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (t *memTx) emailTaken(email string, exceptID int64) bool {
	for id, existing := range t.st.customers {
		if id != exceptID && existing.Email == email {
			return true
		}
	}
	return false
}

func (t *memTx) CreateBill(_ context.Context, bill domain.Bill) (*domain.Bill, error) {
	if bill.CustomerID != nil {
		if _, ok := t.st.customers[*bill.CustomerID]; !ok {
			return nil, store.ErrNotFound
		}
		id := *bill.CustomerID
		bill.CustomerID = &id
	}
	t.st.nextBillID++
	bill.ID = t.st.nextBillID
	bill.Items = nil
	t.st.bills[bill.ID] = bill
	created := bill
	return &created, nil
}

func (t *memTx) SetBillTotal(_ context.Context, billID int64, total decimal.Decimal) error {
	bill, ok := t.st.bills[billID]
	if !ok {
		return store.ErrNotFound
	}
	bill.TotalAmount = total
	t.st.bills[billID] = bill
	return nil
}

func (t *memTx) CreateBillItem(_ context.Context, item domain.BillItem) (*domain.BillItem, error) {
	if item.Quantity < 1 {
		return nil, store.ErrValidation
	}
	if _, ok := t.st.bills[item.BillID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := t.st.products[item.ProductID]; !ok {
		return nil, store.ErrNotFound
	}
	t.st.nextItemID++
	item.ID = t.st.nextItemID
	t.st.items[item.ID] = item
	created := item
	return &created, nil
}

func (t *memTx) UpdateBillItem(_ context.Context, item domain.BillItem) (*domain.BillItem, error) {
	existing, ok := t.st.items[item.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if item.Quantity < 1 || item.BillID != existing.BillID {
		return nil, store.ErrValidation
	}
	if _, ok := t.st.products[item.ProductID]; !ok {
		return nil, store.ErrNotFound
	}
	t.st.items[item.ID] = item
	updated := item
	return &updated, nil
}

func (t *memTx) GetBillItem(_ context.Context, id int64) (*domain.BillItem, error) {
	item, ok := t.st.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (t *memTx) SyncBillSnapshots(_ context.Context, customerID int64, values map[domain.SnapshotField]string) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	affected := int64(0)
	for id, bill := range t.st.bills {
		if bill.CustomerID == nil || *bill.CustomerID != customerID {
			continue
		}
		for field, value := range values {
			switch field {
			case domain.SnapshotName:
				bill.CustomerName = value
			case domain.SnapshotEmail:
				bill.CustomerEmail = value
			case domain.SnapshotAddress:
				bill.CustomerAddress = value
			case domain.SnapshotPhone:
				bill.CustomerPhone = value
			default:
				return 0, store.ErrValidation
			}
		}
		t.st.bills[id] = bill
		affected++
	}
	return affected, nil
}
