package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kasirbill/backend/internal/domain"
	"kasirbill/backend/internal/store"
)

type state struct {
	products  map[int64]domain.Product
	customers map[int64]domain.Customer
	bills     map[int64]domain.Bill
	items     map[int64]domain.BillItem
	users     map[string]domain.UserAccount

	nextProductID  int64
	nextCustomerID int64
	nextBillID     int64
	nextItemID     int64
}

func newState() *state {
	return &state{
		products:  make(map[int64]domain.Product),
		customers: make(map[int64]domain.Customer),
		bills:     make(map[int64]domain.Bill),
		items:     make(map[int64]domain.BillItem),
		users:     make(map[string]domain.UserAccount),
	}
}

func (st *state) clone() *state {
	out := &state{
		products:       make(map[int64]domain.Product, len(st.products)),
		customers:      make(map[int64]domain.Customer, len(st.customers)),
		bills:          make(map[int64]domain.Bill, len(st.bills)),
		items:          make(map[int64]domain.BillItem, len(st.items)),
		users:          make(map[string]domain.UserAccount, len(st.users)),
		nextProductID:  st.nextProductID,
		nextCustomerID: st.nextCustomerID,
		nextBillID:     st.nextBillID,
		nextItemID:     st.nextItemID,
	}
	for k, v := range st.products {
		out.products[k] = v
	}
	for k, v := range st.customers {
		out.customers[k] = v
	}
	for k, v := range st.bills {
		out.bills[k] = v
	}
	for k, v := range st.items {
		out.items[k] = v
	}
	for k, v := range st.users {
		out.users[k] = v
	}
	return out
}

// Store keeps everything in process memory. Writers are serialised by mu and
// each unit of work runs against the live state with a copy kept for rollback.
type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD;
// if unset, dev defaults are used with a warning.
func seedUsers(logger *zap.Logger) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		email    string
		password string
		role     string
	}{
		{"admin@kasirbill.local", adminPwd, domain.RoleAdmin},
		{"cashier@kasirbill.local", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("failed to hash seed password", zap.String("email", u.email), zap.Error(err))
		}
		users[u.email] = domain.UserAccount{
			Email:     u.email,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with a small catalogue and the dev accounts.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()
	for _, p := range []struct {
		name  string
		price string
	}{
		{"Mie Goreng Instan", "3500.00"},
		{"Telur 10 Butir", "26500.00"},
		{"Susu UHT 1L", "18900.00"},
		{"Roti Tawar", "17800.00"},
		{"Kopi Sachet", "2600.00"},
		{"Gula 1kg", "17400.00"},
		{"Teh Celup", "9800.00"},
		{"Air Mineral 600ml", "3900.00"},
	} {
		s.st.nextProductID++
		s.st.products[s.st.nextProductID] = domain.Product{
			ID:            s.st.nextProductID,
			Name:          p.name,
			Price:         decimal.RequireFromString(p.price),
			StockQuantity: 120,
		}
	}
	s.st.users = seedUsers(logger)
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.st.clone()
	defer func() {
		if r := recover(); r != nil {
			s.st = backup
			panic(r)
		}
		if err != nil {
			s.st = backup
		}
	}()

	return fn(ctx, &memTx{st: s.st})
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{st: s.st}).GetProduct(ctx, id)
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() {
		return nil, store.ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.nextProductID++
	product.ID = s.st.nextProductID
	s.st.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() {
		return nil, store.ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.products[product.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.st.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.st.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{st: s.st}).FindCustomerByEmail(ctx, email)
}

func (s *Store) GetBill(_ context.Context, id int64) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bill, ok := s.st.bills[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	bill.Items = make([]domain.BillItem, 0, 4)
	for _, item := range s.st.items {
		if item.BillID == id {
			bill.Items = append(bill.Items, item)
		}
	}
	slices.SortFunc(bill.Items, func(a, b domain.BillItem) int {
		return compareID(a.ID, b.ID)
	})
	return &bill, nil
}

func (s *Store) ListBillFacts(_ context.Context, filter domain.SaleFilter) ([]domain.BillFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	facts := make([]domain.BillFact, 0, len(s.st.bills))
	for _, bill := range s.st.bills {
		fact := s.billFact(bill)
		if !matchesBill(fact, filter) {
			continue
		}
		facts = append(facts, fact)
	}
	slices.SortFunc(facts, func(a, b domain.BillFact) int {
		return compareID(a.BillID, b.BillID)
	})
	return facts, nil
}

func (s *Store) ListLineFacts(_ context.Context, filter domain.SaleFilter) ([]domain.LineFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	facts := make([]domain.LineFact, 0, len(s.st.items))
	for _, item := range s.st.items {
		bill, ok := s.st.bills[item.BillID]
		if !ok {
			continue
		}
		product, ok := s.st.products[item.ProductID]
		if !ok {
			continue
		}
		fact := domain.LineFact{
			BillFact:    s.billFact(bill),
			ItemID:      item.ID,
			ProductID:   item.ProductID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
		}
		if !matchesBill(fact.BillFact, filter) {
			continue
		}
		if filter.ProductID != 0 && fact.ProductID != filter.ProductID {
			continue
		}
		if filter.ProductName != "" && fact.ProductName != filter.ProductName {
			continue
		}
		facts = append(facts, fact)
	}
	slices.SortFunc(facts, func(a, b domain.LineFact) int {
		return compareID(a.ItemID, b.ItemID)
	})
	return facts, nil
}

func (s *Store) billFact(bill domain.Bill) domain.BillFact {
	fact := domain.BillFact{
		BillID:       bill.ID,
		CashierEmail: bill.CreatedBy,
		CreatedAt:    bill.CreatedAt,
	}
	if bill.CustomerID != nil {
		if customer, ok := s.st.customers[*bill.CustomerID]; ok {
			fact.CustomerEmail = customer.Email
		}
	}
	return fact
}

func matchesBill(fact domain.BillFact, filter domain.SaleFilter) bool {
	if filter.CustomerEmail != "" && fact.CustomerEmail != filter.CustomerEmail {
		return false
	}
	if filter.CashierEmail != "" && fact.CashierEmail != filter.CashierEmail {
		return false
	}
	return true
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" {
		return store.ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.st.users[email]; exists {
		return store.ErrDuplicateEmail
	}
	user.Email = email
	s.st.users[email] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.st.users))
	for _, user := range s.st.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Email, b.Email)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, email string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	user, ok := s.st.users[email]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.st.users[email] = user
	return nil
}

func compareID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
