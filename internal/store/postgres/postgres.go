package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kasirbill/backend/internal/domain"
	"kasirbill/backend/internal/store"
)

//go:embed schema.sql
var Schema string

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ApplySchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: begin: %w", store.ErrConsistency, err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &pgTx{q: sqlTx}); err != nil {
		if isTransient(err) {
			return fmt.Errorf("%w: %w", store.ErrConsistency, err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", store.ErrConsistency, err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, s.db, id)
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() {
		return nil, store.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, price, stock_quantity, description)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, product.Name, product.Price, product.StockQuantity, nullString(product.Description)).Scan(&product.ID)
	if err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, stock_quantity = $4, description = $5
		WHERE id = $1
	`, product.ID, product.Name, product.Price, product.StockQuantity, nullString(product.Description))
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}

	updated := product
	return &updated, nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	return scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT id, name, address, email, phone
		FROM customers
		WHERE id = $1
	`, id))
}

func (s *Store) FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return findCustomerByEmail(ctx, s.db, email)
}

func (s *Store) GetBill(ctx context.Context, id int64) (*domain.Bill, error) {
	var bill domain.Bill
	var customerID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, customer_name, customer_email, customer_address, customer_phone,
			created_by, created_at, total_amount
		FROM bills
		WHERE id = $1
	`, id).Scan(&bill.ID, &customerID, &bill.CustomerName, &bill.CustomerEmail, &bill.CustomerAddress,
		&bill.CustomerPhone, &bill.CreatedBy, &bill.CreatedAt, &bill.TotalAmount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if customerID.Valid {
		cid := customerID.Int64
		bill.CustomerID = &cid
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bill_id, product_id, quantity, price
		FROM bill_items
		WHERE bill_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bill.Items = make([]domain.BillItem, 0, 8)
	for rows.Next() {
		var item domain.BillItem
		if err := rows.Scan(&item.ID, &item.BillID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		bill.Items = append(bill.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &bill, nil
}

func (s *Store) ListBillFacts(ctx context.Context, filter domain.SaleFilter) ([]domain.BillFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, COALESCE(c.email, ''), b.created_by, b.created_at
		FROM bills b
		LEFT JOIN customers c ON c.id = b.customer_id
		WHERE ($1::text = '' OR c.email = $1)
			AND ($2::text = '' OR b.created_by = $2)
		ORDER BY b.id
	`, filter.CustomerEmail, filter.CashierEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	facts := make([]domain.BillFact, 0, 64)
	for rows.Next() {
		var fact domain.BillFact
		if err := rows.Scan(&fact.BillID, &fact.CustomerEmail, &fact.CashierEmail, &fact.CreatedAt); err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return facts, nil
}

func (s *Store) ListLineFacts(ctx context.Context, filter domain.SaleFilter) ([]domain.LineFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bi.id, b.id, COALESCE(c.email, ''), b.created_by, b.created_at,
			bi.product_id, p.name, bi.quantity
		FROM bill_items bi
		JOIN bills b ON b.id = bi.bill_id
		JOIN products p ON p.id = bi.product_id
		LEFT JOIN customers c ON c.id = b.customer_id
		WHERE ($1::text = '' OR c.email = $1)
			AND ($2::text = '' OR b.created_by = $2)
			AND ($3::bigint = 0 OR bi.product_id = $3)
			AND ($4::text = '' OR p.name = $4)
		ORDER BY bi.id
	`, filter.CustomerEmail, filter.CashierEmail, filter.ProductID, filter.ProductName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	facts := make([]domain.LineFact, 0, 128)
	for rows.Next() {
		var fact domain.LineFact
		if err := rows.Scan(
			&fact.ItemID,
			&fact.BillID,
			&fact.CustomerEmail,
			&fact.CashierEmail,
			&fact.CreatedAt,
			&fact.ProductID,
			&fact.ProductName,
			&fact.Quantity,
		); err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return facts, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, email, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email, password_hash, role, active, created_at
		FROM users
		ORDER BY email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Email, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, email string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email)), password)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func getProduct(ctx context.Context, q querier, id int64) (*domain.Product, error) {
	var product domain.Product
	var description sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, name, price, stock_quantity, description
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Price, &product.StockQuantity, &description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if description.Valid {
		product.Description = &description.String
	}
	return &product, nil
}

func findCustomerByEmail(ctx context.Context, q querier, email string) (*domain.Customer, error) {
	return scanCustomer(q.QueryRowContext(ctx, `
		SELECT id, name, address, email, phone
		FROM customers
		WHERE email = $1
	`, email))
}

func scanCustomer(row *sql.Row) (*domain.Customer, error) {
	var customer domain.Customer
	err := row.Scan(&customer.ID, &customer.Name, &customer.Address, &customer.Email, &customer.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// isTransient reports failures after which the transaction cannot be kept:
// serialization/deadlock aborts (class 40) and lost connections (class 08).
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "40") || strings.HasPrefix(pgErr.Code, "08")
	}
	return false
}

func nullString(val *string) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}
