package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"kasirbill/backend/internal/domain"
	"kasirbill/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Email] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, email string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[email]
	user.Password = password
	s.users[email] = user
	s.updates++
	return nil
}

func legacyAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin@kasirbill.local": {
				Email:     "admin@kasirbill.local",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := legacyAdminStore()
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, users)

	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Email:    "Admin@Kasirbill.local",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored, err := users.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 user, got %d", len(stored))
	}
	if !strings.HasPrefix(stored[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", stored[0].Password)
	}
}

func TestTokenCarriesEmailAndRole(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, legacyAdminStore())

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Email: "admin@kasirbill.local", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Email != "admin@kasirbill.local" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager(context.Background(), "another-secret", time.Hour, nil)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, legacyAdminStore())

	_, err := manager.Login(context.Background(), domain.LoginRequest{Email: "admin@kasirbill.local", Password: "wrong"})
	if !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	_, err = manager.Login(context.Background(), domain.LoginRequest{Email: "nobody@kasirbill.local", Password: "admin123"})
	if !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
}

func TestCreateCashierStoresPasswordHash(t *testing.T) {
	users := legacyAdminStore()
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, users)

	cashier, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{
		Email:    " Kasir.Baru@Kasirbill.local ",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if cashier.Email != "kasir.baru@kasirbill.local" {
		t.Fatalf("unexpected email %s", cashier.Email)
	}

	saved, ok := users.users["kasir.baru@kasirbill.local"]
	if !ok {
		t.Fatalf("expected cashier to be saved")
	}
	if !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", saved.Password)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Email: "kasir.baru@kasirbill.local", Password: "pass1234"}); err != nil {
		t.Fatalf("login with hashed cashier failed: %v", err)
	}

	listed := manager.ListCashiers(context.Background())
	if len(listed) != 1 || listed[0].Email != "kasir.baru@kasirbill.local" {
		t.Fatalf("unexpected cashier list %+v", listed)
	}
}

func TestCreateCashierValidation(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, legacyAdminStore())

	_, err := manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Email: "not-an-email", Password: "pass1234"})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for email, got %v", err)
	}
	_, err = manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Email: "k@kasirbill.local", Password: "123"})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for password, got %v", err)
	}
	_, err = manager.CreateCashier(context.Background(), domain.CashierCreateRequest{Email: "admin@kasirbill.local", Password: "pass1234"})
	if !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}
