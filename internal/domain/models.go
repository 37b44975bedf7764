package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	UOMQty    = "qty"
	UOMWeight = "weight"
)

const (
	PaymentTypeCash   = "Cash"
	PaymentTypeCheque = "Cheque"
	PaymentTypeUPI    = "UPI"
)

// Actor is the console user bound to a request.
type Actor struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	SessionID string `json:"session_id"`
}

type User struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Mobile    string    `json:"mobile"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Session is a logged-in console user and the backend token issued to them.
type Session struct {
	ID            string    `json:"id"`
	UpstreamToken string    `json:"upstream_token"`
	User          User      `json:"user"`
	LoginAt       time.Time `json:"login_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type Customer struct {
	ID           string    `json:"id"`
	CustomerName string    `json:"customer_name"`
	Email        string    `json:"email"`
	Mobile       string    `json:"mobile"`
	Address      string    `json:"address"`
	GSTNumber    string    `json:"gst_number,omitempty"`
	PANNumber    string    `json:"pan_number,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type UOM struct {
	ID   string `json:"id"`
	Name string `json:"uom"`
}

type Item struct {
	ID          string `json:"id"`
	ItemName    string `json:"item_name"`
	ItemCode    string `json:"item_code"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

// StockItem is the total quantity of an item the business owns and has on hand.
type StockItem struct {
	ItemID   string          `json:"item_id"`
	ItemName string          `json:"item_name"`
	Qty      decimal.Decimal `json:"qty"`
}

type InwardItem struct {
	ItemID      string          `json:"item_id"`
	ItemName    string          `json:"item_name"`
	UOM         string          `json:"uom"`
	Qty         decimal.Decimal `json:"qty"`
	Weight      decimal.Decimal `json:"weight"`
	Rate        decimal.Decimal `json:"rate"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type Inward struct {
	ID          string          `json:"id"`
	InwardNo    string          `json:"inward_no"`
	InwardDate  time.Time       `json:"inward_date"`
	Attachment  string          `json:"attachment,omitempty"`
	Items       []InwardItem    `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// RentedItem is one line of an on-rent record. RemainingQty is owned by the backend.
type RentedItem struct {
	ItemID           string          `json:"item_id"`
	ItemName         string          `json:"item_name"`
	UOM              string          `json:"uom"`
	UOMID            string          `json:"uom_id,omitempty"`
	QtyOrWeight      decimal.Decimal `json:"qty_or_weight"`
	QtyReturn        decimal.Decimal `json:"qty_return"`
	RemainingQty     decimal.Decimal `json:"remaining_qty"`
	PerDayRate       decimal.Decimal `json:"per_day_rate"`
	UsedDays         int64           `json:"used_days"`
	Amount           decimal.Decimal `json:"amount"`
	OnRentReturnDate *time.Time      `json:"on_rent_return_date,omitempty"`
	IsCompleted      bool            `json:"is_completed"`
}

type OnRent struct {
	ID             string       `json:"id"`
	OnRentNo       string       `json:"on_rent_no"`
	OnRentDate     time.Time    `json:"on_rent_date"`
	CustomerID     string       `json:"customer_id"`
	CustomerName   string       `json:"customer_name"`
	VehicleDetails string       `json:"vehicle_details,omitempty"`
	Items          []RentedItem `json:"items"`
	IsActive       bool         `json:"is_active"`
}

type ReturnedItem struct {
	OnRentNo    string          `json:"on_rent_no"`
	ItemID      string          `json:"item_id"`
	ItemName    string          `json:"item_name"`
	UOM         string          `json:"uom"`
	QtyOrWeight decimal.Decimal `json:"qty_or_weight"`
	QtyReturn   decimal.Decimal `json:"qty_return"`
	PerDayRate  decimal.Decimal `json:"per_day_rate"`
	UsedDays    int64           `json:"used_days"`
	Amount      decimal.Decimal `json:"amount"`
}

func (r ReturnedItem) RowID() string {
	return RowID(r.ItemID, r.OnRentNo)
}

// RowID keys a returned line by the rented item and the rental it came from.
func RowID(itemID string, onRentNo string) string {
	return itemID + "_" + onRentNo
}

type OnRentReturn struct {
	ID               string          `json:"id"`
	OnRentReturnNo   string          `json:"on_rent_return_no"`
	OnRentReturnDate time.Time       `json:"on_rent_return_date"`
	CustomerID       string          `json:"customer_id"`
	CustomerName     string          `json:"customer_name"`
	VehicleDetails   string          `json:"vehicle_details,omitempty"`
	Items            []ReturnedItem  `json:"items"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
}

// ReturnBalance is an outstanding return as reported by the backend.
type ReturnBalance struct {
	ID                string          `json:"id"`
	ReturnNumber      string          `json:"return_number"`
	CustomerID        string          `json:"customer_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	BalanceAmount     decimal.Decimal `json:"balance_amount"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	IsReturnCompleted bool            `json:"is_return_completed"`
}

type AllocatedReturn struct {
	ReturnID          string          `json:"return_id"`
	ReturnNumber      string          `json:"return_number"`
	AllocatedAmount   decimal.Decimal `json:"allocated_amount"`
	IsReturnCompleted bool            `json:"is_return_completed"`
}

type Payment struct {
	ID               string            `json:"id"`
	CustomerID       string            `json:"customer_id"`
	CustomerName     string            `json:"customer_name"`
	CustomerEmail    string            `json:"customer_email"`
	PaidAmount       decimal.Decimal   `json:"paid_amount"`
	PaymentType      string            `json:"payment_type"`
	AllocatedReturns []AllocatedReturn `json:"allocated_returns"`
	CreatedAt        time.Time         `json:"created_at"`
}

type CustomerCredit struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	PaymentType string          `json:"payment_type"`
	PaymentDate time.Time       `json:"payment_date"`
	Amount      decimal.Decimal `json:"amount"`
}

// ReportDelivery is a rendered customer statement handed to the backend mailer.
type ReportDelivery struct {
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	PDFBase64    string `json:"pdf_base64"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}
