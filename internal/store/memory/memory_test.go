package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kasirbill/backend/internal/domain"
	"kasirbill/backend/internal/store"
)

func TestWithinTxRestoresStateOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, err := s.CreateProduct(ctx, domain.Product{Name: "Kopi", Price: decimal.NewFromInt(2600), StockQuantity: 10})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.DecrementStock(ctx, p.ID, 4, true); err != nil {
			return err
		}
		if _, err := tx.CreateCustomer(ctx, domain.Customer{Email: "a@example.com"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := s.GetProduct(ctx, p.ID)
	if got.StockQuantity != 10 {
		t.Fatalf("expected stock restored to 10, got %d", got.StockQuantity)
	}
	if _, err := s.FindCustomerByEmail(ctx, "a@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected customer rolled back, got %v", err)
	}

	// ids handed out inside the failed unit are reused.
	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.CreateCustomer(ctx, domain.Customer{Email: "b@example.com"})
		if err != nil {
			return err
		}
		if c.ID != 1 {
			t.Fatalf("expected id 1 after rollback, got %d", c.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("second tx: %v", err)
	}
}

func TestWithinTxRestoresStateOnPanic(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, _ := s.CreateProduct(ctx, domain.Product{Name: "Teh", Price: decimal.NewFromInt(9800), StockQuantity: 3})

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			_, _ = tx.DecrementStock(ctx, p.ID, 2, true)
			panic("unexpected")
		})
	}()

	got, _ := s.GetProduct(ctx, p.ID)
	if got.StockQuantity != 3 {
		t.Fatalf("expected stock restored to 3, got %d", got.StockQuantity)
	}
}

func TestDecrementStockGuard(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, _ := s.CreateProduct(ctx, domain.Product{Name: "Gula", Price: decimal.NewFromInt(17400), StockQuantity: 2})

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		remaining, err := tx.DecrementStock(ctx, p.ID, 3, false)
		if !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
		if remaining != 2 {
			t.Fatalf("expected current stock 2 reported, got %d", remaining)
		}
		if _, err := tx.DecrementStock(ctx, p.ID, 0, true); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("expected validation error for zero qty, got %v", err)
		}
		if _, err := tx.DecrementStock(ctx, 99, 1, true); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestSyncBillSnapshotsMatchesByCustomerID(t *testing.T) {
	s := New()
	ctx := context.Background()

	var linked, other int64
	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, _ := tx.CreateCustomer(ctx, domain.Customer{Email: "a@example.com", Name: "Ani"})
		b, _ := tx.CreateCustomer(ctx, domain.Customer{Email: "b@example.com"})
		bill, err := tx.CreateBill(ctx, domain.Bill{CustomerID: &a.ID, CustomerEmail: "typo@example.com", CustomerName: "Ani"})
		if err != nil {
			return err
		}
		linked = bill.ID
		// Same snapshot email but a different customer must not be touched.
		bill, err = tx.CreateBill(ctx, domain.Bill{CustomerID: &b.ID, CustomerEmail: "typo@example.com"})
		if err != nil {
			return err
		}
		other = bill.ID

		n, err := tx.SyncBillSnapshots(ctx, a.ID, map[domain.SnapshotField]string{domain.SnapshotEmail: "a2@example.com"})
		if err != nil {
			return err
		}
		if n != 1 {
			t.Fatalf("expected 1 bill synced, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	bill, _ := s.GetBill(ctx, linked)
	if bill.CustomerEmail != "a2@example.com" || bill.CustomerName != "Ani" {
		t.Fatalf("unexpected linked bill %+v", bill)
	}
	bill, _ = s.GetBill(ctx, other)
	if bill.CustomerEmail != "typo@example.com" {
		t.Fatalf("unrelated bill touched: %+v", bill)
	}
}

func TestCustomerEmailUniqueness(t *testing.T) {
	s := New()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		a, err := tx.CreateCustomer(ctx, domain.Customer{Email: "a@example.com"})
		if err != nil {
			return err
		}
		if _, err := tx.CreateCustomer(ctx, domain.Customer{Email: "a@example.com"}); !errors.Is(err, store.ErrDuplicateEmail) {
			t.Fatalf("expected duplicate on create, got %v", err)
		}
		b, _ := tx.CreateCustomer(ctx, domain.Customer{Email: "b@example.com"})
		b.Email = a.Email
		if _, err := tx.UpdateCustomer(ctx, *b); !errors.Is(err, store.ErrDuplicateEmail) {
			t.Fatalf("expected duplicate on update, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestEnsureCustomerReturnsExistingRow(t *testing.T) {
	s := New()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		first, created, err := tx.EnsureCustomer(ctx, domain.Customer{Email: "a@example.com", Name: "Ani"})
		if err != nil || !created {
			t.Fatalf("expected insert, got created=%v err=%v", created, err)
		}
		again, created, err := tx.EnsureCustomer(ctx, domain.Customer{Email: "a@example.com", Name: "Other"})
		if err != nil || created {
			t.Fatalf("expected existing row, got created=%v err=%v", created, err)
		}
		if again.ID != first.ID || again.Name != "Ani" {
			t.Fatalf("expected untouched row %d Ani, got %+v", first.ID, again)
		}
		if _, _, err := tx.EnsureCustomer(ctx, domain.Customer{Email: " "}); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestLineFactsFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	kopi, _ := s.CreateProduct(ctx, domain.Product{Name: "Kopi", Price: decimal.NewFromInt(1), StockQuantity: 10})
	teh, _ := s.CreateProduct(ctx, domain.Product{Name: "Teh", Price: decimal.NewFromInt(1), StockQuantity: 10})

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, _ := tx.CreateCustomer(ctx, domain.Customer{Email: "a@example.com"})
		bill, _ := tx.CreateBill(ctx, domain.Bill{CustomerID: &c.ID, CreatedBy: "k1@example.com", CreatedAt: time.Now()})
		_, _ = tx.CreateBillItem(ctx, domain.BillItem{BillID: bill.ID, ProductID: kopi.ID, Quantity: 2})
		_, _ = tx.CreateBillItem(ctx, domain.BillItem{BillID: bill.ID, ProductID: teh.ID, Quantity: 1})
		anon, _ := tx.CreateBill(ctx, domain.Bill{CreatedBy: "k2@example.com", CreatedAt: time.Now()})
		_, err := tx.CreateBillItem(ctx, domain.BillItem{BillID: anon.ID, ProductID: kopi.ID, Quantity: 4})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	all, _ := s.ListLineFacts(ctx, domain.SaleFilter{})
	if len(all) != 3 {
		t.Fatalf("expected 3 facts, got %d", len(all))
	}
	byName, _ := s.ListLineFacts(ctx, domain.SaleFilter{ProductName: "Kopi"})
	if len(byName) != 2 {
		t.Fatalf("expected 2 kopi facts, got %d", len(byName))
	}
	byCustomer, _ := s.ListLineFacts(ctx, domain.SaleFilter{CustomerEmail: "a@example.com", ProductID: kopi.ID})
	if len(byCustomer) != 1 || byCustomer[0].Quantity != 2 {
		t.Fatalf("unexpected customer facts %+v", byCustomer)
	}
	bills, _ := s.ListBillFacts(ctx, domain.SaleFilter{CashierEmail: "k2@example.com"})
	if len(bills) != 1 || bills[0].CustomerEmail != "" {
		t.Fatalf("unexpected cashier bills %+v", bills)
	}
}

func TestUsersAreKeyedByLowercaseEmail(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreateUser(ctx, domain.UserAccount{Email: " Kasir@Example.com ", Role: domain.RoleCashier, Active: true}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, domain.UserAccount{Email: "kasir@example.com"}); !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if err := s.UpdateUserPassword(ctx, "KASIR@example.com", "hash"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	users, _ := s.ListUsers(ctx)
	if len(users) != 1 || users[0].Email != "kasir@example.com" || users[0].Password != "hash" {
		t.Fatalf("unexpected users %+v", users)
	}
}
