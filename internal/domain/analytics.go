package domain

import "time"

const (
	AnalyticsCustomer = "customer"
	AnalyticsCashier  = "cashier"
	AnalyticsProduct  = "product"
)

type AnalyticsRequest struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// AnalyticsResult holds exactly one of the per-type reports, selected by Type.
type AnalyticsResult struct {
	Type     string             `json:"type"`
	Customer *CustomerAnalytics `json:"customer,omitempty"`
	Cashier  *CashierAnalytics  `json:"cashier,omitempty"`
	Product  *ProductAnalytics  `json:"product,omitempty"`
}

// Report returns the populated per-type report.
func (r AnalyticsResult) Report() any {
	switch r.Type {
	case AnalyticsCustomer:
		return r.Customer
	case AnalyticsCashier:
		return r.Cashier
	case AnalyticsProduct:
		return r.Product
	}
	return nil
}

type CustomerAnalytics struct {
	ProductsBought    []ProductPurchase `json:"products_bought"`
	FrequentedTimings []HourFrequency   `json:"frequented_timings"`
	Cashiers          []EmailInstances  `json:"cashiers"`
}

type CashierAnalytics struct {
	ProductsSold []ProductQuantity `json:"products_sold"`
	Customers    []EmailInstances  `json:"customers"`
}

type ProductAnalytics struct {
	Customers []EmailQuantity `json:"customers"`
	Cashiers  []EmailQuantity `json:"cashiers"`
}

type ProductPurchase struct {
	ProductID     int64  `json:"product_id"`
	ProductName   string `json:"product_name"`
	TotalQuantity int64  `json:"total_quantity"`
	Frequency     int64  `json:"frequency"`
}

type ProductQuantity struct {
	ProductID     int64  `json:"product_id"`
	ProductName   string `json:"product_name"`
	TotalQuantity int64  `json:"total_quantity"`
}

type HourFrequency struct {
	Hour      int   `json:"hour"`
	Frequency int64 `json:"frequency"`
}

// EmailInstances counts bills per email. An empty email groups anonymous bills.
type EmailInstances struct {
	Email     string `json:"email"`
	Instances int64  `json:"instances"`
}

type EmailQuantity struct {
	Email         string `json:"email"`
	TotalQuantity int64  `json:"total_quantity"`
}

// SaleFilter narrows the fact streams read by the analytics engine. Zero
// values mean "no constraint".
type SaleFilter struct {
	CustomerEmail string
	CashierEmail  string
	ProductID     int64
	ProductName   string
}

// BillFact is one committed bill as seen by analytics. CustomerEmail is the
// linked customer's current email, not the bill snapshot.
type BillFact struct {
	BillID        int64
	CustomerEmail string
	CashierEmail  string
	CreatedAt     time.Time
}

type LineFact struct {
	BillFact
	ItemID      int64
	ProductID   int64
	ProductName string
	Quantity    int
}
