package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"kasirbill/backend/internal/domain"
	"kasirbill/backend/internal/store"
)

type pgTx struct {
	q querier
}

var snapshotColumns = map[domain.SnapshotField]string{
	domain.SnapshotName:    "customer_name",
	domain.SnapshotEmail:   "customer_email",
	domain.SnapshotAddress: "customer_address",
	domain.SnapshotPhone:   "customer_phone",
}

func (t *pgTx) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, t.q, id)
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, qty int, allowNegative bool) (int, error) {
	if qty < 1 {
		return 0, store.ErrValidation
	}

	var remaining int
	err := t.q.QueryRowContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $1
		WHERE id = $2 AND ($3::boolean OR stock_quantity >= $1)
		RETURNING stock_quantity
	`, qty, productID, allowNegative).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var current int
	err = t.q.QueryRowContext(ctx, `
		SELECT stock_quantity FROM products WHERE id = $1
	`, productID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return current, store.ErrInsufficientStock
}

func (t *pgTx) FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return findCustomerByEmail(ctx, t.q, email)
}

func (t *pgTx) GetCustomerForUpdate(ctx context.Context, id int64) (*domain.Customer, error) {
	return scanCustomer(t.q.QueryRowContext(ctx, `
		SELECT id, name, address, email, phone
		FROM customers
		WHERE id = $1
		FOR UPDATE
	`, id))
}

func (t *pgTx) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Email) == "" {
		return nil, store.ErrValidation
	}

	err := t.q.QueryRowContext(ctx, `
		INSERT INTO customers (name, address, email, phone)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, customer.Name, customer.Address, customer.Email, customer.Phone).Scan(&customer.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateEmail
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (t *pgTx) EnsureCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, bool, error) {
	if strings.TrimSpace(customer.Email) == "" {
		return nil, false, store.ErrValidation
	}

	err := t.q.QueryRowContext(ctx, `
		INSERT INTO customers (name, address, email, phone)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (email) DO NOTHING
		RETURNING id
	`, customer.Name, customer.Address, customer.Email, customer.Phone).Scan(&customer.ID)
	if err == nil {
		created := customer
		return &created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	existing, err := scanCustomer(t.q.QueryRowContext(ctx, `
		SELECT id, name, address, email, phone
		FROM customers
		WHERE email = $1
		FOR UPDATE
	`, customer.Email))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (t *pgTx) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Email) == "" {
		return nil, store.ErrValidation
	}

	res, err := t.q.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, address = $3, email = $4, phone = $5
		WHERE id = $1
	`, customer.ID, customer.Name, customer.Address, customer.Email, customer.Phone)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateEmail
		}
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}

	updated := customer
	return &updated, nil
}

func (t *pgTx) CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO bills (
			customer_id, customer_name, customer_email, customer_address, customer_phone,
			created_by, created_at, total_amount
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, nullInt64(bill.CustomerID), bill.CustomerName, bill.CustomerEmail, bill.CustomerAddress,
		bill.CustomerPhone, bill.CreatedBy, bill.CreatedAt, bill.TotalAmount).Scan(&bill.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	bill.Items = nil
	created := bill
	return &created, nil
}

func (t *pgTx) SetBillTotal(ctx context.Context, billID int64, total decimal.Decimal) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE bills SET total_amount = $2 WHERE id = $1
	`, billID, total)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (t *pgTx) CreateBillItem(ctx context.Context, item domain.BillItem) (*domain.BillItem, error) {
	if item.Quantity < 1 {
		return nil, store.ErrValidation
	}

	err := t.q.QueryRowContext(ctx, `
		INSERT INTO bill_items (bill_id, product_id, quantity, price)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, item.BillID, item.ProductID, item.Quantity, item.Price).Scan(&item.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func (t *pgTx) UpdateBillItem(ctx context.Context, item domain.BillItem) (*domain.BillItem, error) {
	if item.Quantity < 1 {
		return nil, store.ErrValidation
	}

	res, err := t.q.ExecContext(ctx, `
		UPDATE bill_items
		SET product_id = $3, quantity = $4, price = $5
		WHERE id = $1 AND bill_id = $2
	`, item.ID, item.BillID, item.ProductID, item.Quantity, item.Price)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}

	updated := item
	return &updated, nil
}

func (t *pgTx) GetBillItem(ctx context.Context, id int64) (*domain.BillItem, error) {
	var item domain.BillItem
	err := t.q.QueryRowContext(ctx, `
		SELECT id, bill_id, product_id, quantity, price
		FROM bill_items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.BillID, &item.ProductID, &item.Quantity, &item.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (t *pgTx) SyncBillSnapshots(ctx context.Context, customerID int64, values map[domain.SnapshotField]string) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}

	fields := make([]domain.SnapshotField, 0, len(values))
	for field := range values {
		if _, ok := snapshotColumns[field]; !ok {
			return 0, store.ErrValidation
		}
		fields = append(fields, field)
	}
	slices.Sort(fields)

	assignments := make([]string, 0, len(fields))
	args := []any{customerID}
	for _, field := range fields {
		args = append(args, values[field])
		assignments = append(assignments, fmt.Sprintf("%s = $%d", snapshotColumns[field], len(args)))
	}

	res, err := t.q.ExecContext(ctx,
		"UPDATE bills SET "+strings.Join(assignments, ", ")+" WHERE customer_id = $1",
		args...,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
