package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	User        User   `json:"user"`
}

type SessionStatus struct {
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	Warning          bool      `json:"warning"`
}

type CustomerRequest struct {
	CustomerName string `json:"customer_name" validate:"required,customername"`
	Email        string `json:"email" validate:"required,contactemail"`
	Mobile       string `json:"mobile" validate:"required,mobile10"`
	Address      string `json:"address" validate:"required,min=4,max=52"`
	GSTNumber    string `json:"gst_number" validate:"omitempty,gstin"`
	PANNumber    string `json:"pan_number" validate:"omitempty,pan"`
}

type AvailabilityResponse struct {
	Field     string `json:"field"`
	Value     string `json:"value"`
	Available bool   `json:"available"`
}

type ItemRequest struct {
	ItemName    string `json:"item_name" validate:"required,codename"`
	ItemCode    string `json:"item_code" validate:"required,codename"`
	Description string `json:"description" validate:"required"`
}

type UOMRequest struct {
	Name string `json:"uom" validate:"required,max=32"`
}

type UserRequest struct {
	FirstName       string `json:"first_name" validate:"required,min=3"`
	LastName        string `json:"last_name" validate:"required,min=3"`
	Email           string `json:"email" validate:"required,email"`
	Mobile          string `json:"mobile" validate:"required,mobile10"`
	Password        string `json:"password" validate:"omitempty,min=4"`
	ConfirmPassword string `json:"confirm_password" validate:"eqfield=Password"`
}

type CustomerCreditRequest struct {
	CustomerID  string          `json:"customer_id" validate:"required"`
	PaymentType string          `json:"payment_type" validate:"required,oneof=cash cheque upi"`
	PaymentDate string          `json:"payment_date" validate:"required,datetime=2006-01-02"`
	Amount      decimal.Decimal `json:"amount"`
}

type InwardItemRequest struct {
	ItemID   string          `json:"item_id" validate:"required"`
	ItemName string          `json:"item_name"`
	UOM      string          `json:"uom"`
	Qty      decimal.Decimal `json:"qty"`
	Weight   decimal.Decimal `json:"weight"`
	Rate     decimal.Decimal `json:"rate"`
}

type InwardRequest struct {
	InwardNo   string              `json:"inward_no"`
	InwardDate string              `json:"inward_date" validate:"required,datetime=2006-01-02"`
	Attachment string              `json:"attachment"`
	Items      []InwardItemRequest `json:"items" validate:"required,min=1,dive"`
}

type AttachmentCheckRequest struct {
	Attachment string `json:"attachment" validate:"required"`
}

type AttachmentCheckResponse struct {
	ContentType string `json:"content_type"`
	Accepted    bool   `json:"accepted"`
}

type OnRentItemRequest struct {
	ItemID      string          `json:"item_id" validate:"required"`
	ItemName    string          `json:"item_name"`
	UOM         string          `json:"uom"`
	QtyOrWeight decimal.Decimal `json:"qty_or_weight"`
	PerDayRate  decimal.Decimal `json:"per_day_rate"`
}

type OnRentRequest struct {
	OnRentDate     string              `json:"on_rent_date"`
	CustomerID     string              `json:"customer_id"`
	CustomerName   string              `json:"customer_name"`
	VehicleDetails string              `json:"vehicle_details"`
	Items          []OnRentItemRequest `json:"items"`
}

// QuantityCheckRequest asks whether a rental line may move from PreviousQty to Qty.
// InitialQty is the quantity the rental held for the item when editing started.
type QuantityCheckRequest struct {
	ItemID      string          `json:"item_id" validate:"required"`
	Qty         decimal.Decimal `json:"qty"`
	PreviousQty decimal.Decimal `json:"previous_qty"`
	InitialQty  decimal.Decimal `json:"initial_qty"`
}

type QuantityCheckResponse struct {
	ItemID    string          `json:"item_id"`
	Accepted  bool            `json:"accepted"`
	Qty       decimal.Decimal `json:"qty"`
	Available decimal.Decimal `json:"available"`
}

type ReturnItemRequest struct {
	OnRentNo  string          `json:"on_rent_no" validate:"required"`
	ItemID    string          `json:"item_id" validate:"required"`
	QtyReturn decimal.Decimal `json:"qty_return"`
}

type OnRentReturnRequest struct {
	OnRentReturnNo   string              `json:"on_rent_return_no"`
	OnRentReturnDate string              `json:"on_rent_return_date"`
	CustomerID       string              `json:"customer_id"`
	CustomerName     string              `json:"customer_name"`
	VehicleDetails   string              `json:"vehicle_details"`
	Items            []ReturnItemRequest `json:"items"`
}

// ReturnPreviewRequest recomputes a return form. EditingReturnNo is set when an
// existing return is being edited so its own quantities count toward the caps.
type ReturnPreviewRequest struct {
	OnRentReturnRequest
	EditingReturnNo string `json:"editing_return_no"`
}

type ReturnPreviewRow struct {
	RowID     string          `json:"row_id"`
	OnRentNo  string          `json:"on_rent_no"`
	ItemID    string          `json:"item_id"`
	MaxQty    decimal.Decimal `json:"max_qty"`
	QtyReturn decimal.Decimal `json:"qty_return"`
	UsedDays  int64           `json:"used_days"`
	Amount    decimal.Decimal `json:"amount"`
	Error     string          `json:"error,omitempty"`
}

type ReturnPreview struct {
	Rows        []ReturnPreviewRow `json:"rows"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Errors      map[string]string  `json:"errors,omitempty"`
}

// SelectableRental is an active rental that still has items to return.
type SelectableRental struct {
	OnRentNo   string       `json:"on_rent_no"`
	OnRentDate time.Time    `json:"on_rent_date"`
	Items      []RentedItem `json:"items"`
}

// AllocationLine is one outstanding return on a payment sheet. AllocatedAmount is
// the working proposal; BalanceAmount is the backend's outstanding figure.
type AllocationLine struct {
	ReturnID          string          `json:"return_id"`
	ReturnNumber      string          `json:"return_number"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	BalanceAmount     decimal.Decimal `json:"balance_amount"`
	AllocatedAmount   decimal.Decimal `json:"allocated_amount"`
	IsReturnCompleted bool            `json:"is_return_completed"`
	Selected          bool            `json:"selected"`
}

type PaymentSheet struct {
	PaidAmount decimal.Decimal  `json:"paid_amount"`
	Lines      []AllocationLine `json:"lines"`
}

type AllocationTotals struct {
	Allocated decimal.Decimal `json:"allocated"`
	Remaining decimal.Decimal `json:"remaining"`
}

const (
	AllocationManual            = "manual"
	AllocationPayFull           = "pay_full"
	AllocationDistributeEvenly  = "distribute_evenly"
	AllocationAutoAllocate      = "auto_allocate"
	AllocationReset             = "reset"
	AllocationPaidAmountChanged = "paid_amount_changed"
	AllocationSelect            = "select"
)

type AllocationRequest struct {
	Action     string          `json:"action" validate:"required,oneof=manual pay_full distribute_evenly auto_allocate reset paid_amount_changed select"`
	ReturnID   string          `json:"return_id"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Selected   []string        `json:"selected"`
	Sheet      PaymentSheet    `json:"sheet"`
}

type AllocationResponse struct {
	Sheet  PaymentSheet     `json:"sheet"`
	Totals AllocationTotals `json:"totals"`
}

type PaymentSubmitRequest struct {
	CustomerID    string       `json:"customer_id"`
	CustomerName  string       `json:"customer_name"`
	CustomerEmail string       `json:"customer_email"`
	PaymentType   string       `json:"payment_type"`
	Sheet         PaymentSheet `json:"sheet"`
}

// OnRentSummary is an on-rent record as listed: UsedDays counts from the rent
// date to today and is at least one.
type OnRentSummary struct {
	OnRent
	UsedDays int64 `json:"used_days"`
}
