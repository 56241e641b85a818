package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Description   *string         `json:"description,omitempty"`
}

type Customer struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

// CustomerDetails are the customer fields a cashier types in at the till.
// Email is the reconciliation key; the other fields are optional.
type CustomerDetails struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type CustomerResolveRequest struct {
	Customer      CustomerDetails `json:"customer"`
	UpdateConsent bool            `json:"update_consent"`
}

type CustomerResolveResponse struct {
	Customer *Customer `json:"customer,omitempty"`
	Created  bool      `json:"created"`
}

type CustomerUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Address *string `json:"address,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
}

type Bill struct {
	ID              int64           `json:"id"`
	CustomerID      *int64          `json:"customer_id,omitempty"`
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerAddress string          `json:"customer_address"`
	CustomerPhone   string          `json:"customer_phone"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Items           []BillItem      `json:"items"`
}

// BillItem.Price is the extended line price (unit price x quantity) fixed
// when the item was created.
type BillItem struct {
	ID        int64           `json:"id"`
	BillID    int64           `json:"bill_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type BillLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// BillCreateRequest carries the cart plus the customer fields entered at the
// till. When CustomerEmail is set the customer is resolved and the bill
// snapshot is taken from the stored record; otherwise the bill is anonymous
// and keeps whatever plain strings were supplied.
type BillCreateRequest struct {
	Items                 []BillLine `json:"items"`
	CustomerName          string     `json:"customer_name"`
	CustomerEmail         string     `json:"customer_email"`
	CustomerAddress       string     `json:"customer_address"`
	CustomerPhone         string     `json:"customer_phone"`
	UpdateCustomerConsent bool       `json:"update_customer_consent"`
}

func (r BillCreateRequest) CustomerDetails() CustomerDetails {
	return CustomerDetails{
		Name:    r.CustomerName,
		Email:   r.CustomerEmail,
		Address: r.CustomerAddress,
		Phone:   r.CustomerPhone,
	}
}

// SnapshotField names a denormalized customer column on bills.
type SnapshotField string

const (
	SnapshotName    SnapshotField = "customer_name"
	SnapshotEmail   SnapshotField = "customer_email"
	SnapshotAddress SnapshotField = "customer_address"
	SnapshotPhone   SnapshotField = "customer_phone"
)

func (c Customer) SnapshotValue(field SnapshotField) string {
	switch field {
	case SnapshotName:
		return c.Name
	case SnapshotEmail:
		return c.Email
	case SnapshotAddress:
		return c.Address
	case SnapshotPhone:
		return c.Phone
	}
	return ""
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated cashier or admin performing an operation.
type Actor struct {
	Email string
	Role  string
}

type CashierCreateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CashierUser struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Email     string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
