package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rentaldesk/console/internal/domain"
)

// record is one JSON object from the backend. The backend is not consistent
// about key spelling (itemId, itemid, item_id, item.id) or number encoding
// ("12.50" vs 12.5), so every accessor takes a list of candidate keys and
// nothing past this file sees the raw shape.
type record map[string]any

func decodeRecord(body []byte) (record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rec record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode backend object: %w", err)
	}
	return rec, nil
}

// decodeRecords accepts a bare array or an object wrapping the array under one
// of keys (falling back to "data").
func decodeRecords(body []byte, keys ...string) ([]record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode backend list: %w", err)
	}
	switch v := raw.(type) {
	case []any:
		return toRecords(v), nil
	case map[string]any:
		for _, key := range append(keys, "data", "results", "items") {
			if list, ok := v[key].([]any); ok {
				return toRecords(list), nil
			}
		}
		return nil, fmt.Errorf("decode backend list: no array under %v", keys)
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("decode backend list: unexpected %T", raw)
	}
}

// unwrap returns the object nested under one of keys, or rec itself. Create and
// update endpoints answer either with the entity or with {"<entity>": {...}}.
func (r record) unwrap(keys ...string) record {
	for _, key := range keys {
		if nested, ok := r[key].(map[string]any); ok {
			return record(nested)
		}
	}
	return r
}

func toRecords(list []any) []record {
	out := make([]record, 0, len(list))
	for _, entry := range list {
		if obj, ok := entry.(map[string]any); ok {
			out = append(out, record(obj))
		}
	}
	return out
}

// lookup resolves a possibly dotted key such as "customer.id".
func (r record) lookup(key string) (any, bool) {
	if v, ok := r[key]; ok && v != nil {
		return v, true
	}
	head, tail, found := strings.Cut(key, ".")
	if !found {
		return nil, false
	}
	nested, ok := r[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return record(nested).lookup(tail)
}

func (r record) str(keys ...string) string {
	for _, key := range keys {
		v, ok := r.lookup(key)
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" && s != "null" {
				return s
			}
		case json.Number:
			return val.String()
		case bool:
			if val {
				return "true"
			}
			return "false"
		}
	}
	return ""
}

func (r record) num(keys ...string) decimal.Decimal {
	if d, ok := r.numOK(keys...); ok {
		return d
	}
	return decimal.Zero
}

func (r record) numOK(keys ...string) (decimal.Decimal, bool) {
	for _, key := range keys {
		v, ok := r.lookup(key)
		if !ok {
			continue
		}
		switch val := v.(type) {
		case json.Number:
			if d, err := decimal.NewFromString(val.String()); err == nil {
				return d, true
			}
		case string:
			if d, err := decimal.NewFromString(strings.TrimSpace(val)); err == nil {
				return d, true
			}
		case float64:
			return decimal.NewFromFloat(val), true
		}
	}
	return decimal.Zero, false
}

func (r record) integer(keys ...string) int64 {
	return r.num(keys...).Round(0).IntPart()
}

func (r record) flag(keys ...string) bool {
	return r.flagOr(false, keys...)
}

func (r record) flagOr(fallback bool, keys ...string) bool {
	for _, key := range keys {
		v, ok := r.lookup(key)
		if !ok {
			continue
		}
		switch val := v.(type) {
		case bool:
			return val
		case string:
			switch strings.ToLower(strings.TrimSpace(val)) {
			case "true", "1", "yes", "active":
				return true
			case "false", "0", "no", "inactive":
				return false
			}
		case json.Number:
			return val.String() != "0"
		}
	}
	return fallback
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (r record) time(keys ...string) time.Time {
	ts, _ := r.timeOK(keys...)
	return ts
}

func (r record) timeOK(keys ...string) (time.Time, bool) {
	for _, key := range keys {
		v, ok := r.lookup(key)
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if ts, ok := parseTime(val); ok {
				return ts, true
			}
		case json.Number:
			if ms, err := val.Int64(); err == nil {
				return time.UnixMilli(ms).UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" || value == "null" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func (r record) list(keys ...string) []record {
	for _, key := range keys {
		v, ok := r.lookup(key)
		if !ok {
			continue
		}
		if arr, ok := v.([]any); ok {
			return toRecords(arr)
		}
	}
	return nil
}

func (r record) id() string {
	return r.str("id", "_id")
}

func customerFrom(r record) domain.Customer {
	return domain.Customer{
		ID:           r.str("id", "_id", "customerId"),
		CustomerName: r.str("customerName", "customer_name", "name"),
		Email:        r.str("email", "customerEmail"),
		Mobile:       r.str("mobile", "mobileNo", "mobileNumber", "phone"),
		Address:      r.str("address"),
		GSTNumber:    r.str("gstNumber", "gstNo", "gst_number", "gst"),
		PANNumber:    r.str("panNumber", "panNo", "pan_number", "pan"),
		IsActive:     r.flagOr(true, "isActive", "is_active"),
		CreatedAt:    r.time("createdAt", "created_at"),
	}
}

func itemFrom(r record) domain.Item {
	return domain.Item{
		ID:          r.str("id", "_id", "itemId", "itemid", "item_id"),
		ItemName:    r.str("itemName", "item_name", "name"),
		ItemCode:    r.str("itemCode", "item_code", "code"),
		Description: r.str("description", "itemDescription"),
		IsActive:    r.flagOr(true, "isActive", "is_active", "status"),
	}
}

func uomFrom(r record) domain.UOM {
	return domain.UOM{ID: r.id(), Name: r.str("uom", "name")}
}

func stockFrom(r record) domain.StockItem {
	return domain.StockItem{
		ItemID:   r.str("item_id", "itemId", "itemid", "item.id", "item._id"),
		ItemName: r.str("itemName", "item_name", "item.itemName"),
		Qty:      r.num("qty", "quantity", "totalQty"),
	}
}

func userFrom(r record) domain.User {
	return domain.User{
		ID:        r.id(),
		FirstName: r.str("firstName", "first_name"),
		LastName:  r.str("lastName", "last_name"),
		Email:     r.str("email"),
		Mobile:    r.str("mobile", "mobileNo", "mobileNumber"),
		IsActive:  r.flagOr(true, "isActive", "is_active"),
		CreatedAt: r.time("createdAt", "created_at"),
	}
}

func rentedItemFrom(r record) domain.RentedItem {
	item := domain.RentedItem{
		ItemID:      r.str("itemId", "itemid", "item_id", "item.id", "item._id"),
		ItemName:    r.str("itemName", "item_name", "item.itemName"),
		UOM:         r.str("uom.uom", "uom.name", "uom"),
		UOMID:       r.str("uomId", "uom_id", "uom.id"),
		QtyOrWeight: r.num("qtyOrWeight", "qty_or_weight", "qty"),
		QtyReturn:   r.num("qtyReturn", "qty_return"),
		PerDayRate:  r.num("perDayRate", "per_day_rate", "rate"),
		UsedDays:    r.integer("usedDays", "used_days"),
		Amount:      r.num("amount"),
		IsCompleted: r.flag("isCompleted", "is_completed", "completed"),
	}
	if remaining, ok := r.numOK("remainingQty", "remaining_qty"); ok {
		item.RemainingQty = remaining
	} else {
		item.RemainingQty = item.QtyOrWeight.Sub(item.QtyReturn)
	}
	if ts, ok := r.timeOK("onRentReturnDate", "on_rent_return_date"); ok {
		item.OnRentReturnDate = &ts
	}
	return item
}

func onRentFrom(r record) domain.OnRent {
	rental := domain.OnRent{
		ID:             r.id(),
		OnRentNo:       r.str("onRentNo", "on_rent_no"),
		OnRentDate:     r.time("onRentDate", "on_rent_date"),
		CustomerID:     r.str("customerId", "customer_id", "customer.id", "customer._id"),
		CustomerName:   r.str("customerName", "customer_name", "customer.customerName"),
		VehicleDetails: r.str("vehicleDetails", "vehicle_details"),
	}
	for _, item := range r.list("items") {
		rental.Items = append(rental.Items, rentedItemFrom(item))
	}
	return rental
}

func returnedItemFrom(r record) domain.ReturnedItem {
	return domain.ReturnedItem{
		OnRentNo:    r.str("onRentNo", "onRentId", "on_rent_no"),
		ItemID:      r.str("itemId", "itemid", "item_id", "item.id", "item._id"),
		ItemName:    r.str("itemName", "item_name", "item.itemName"),
		UOM:         r.str("uom.uom", "uom.name", "uom"),
		QtyOrWeight: r.num("qtyOrWeight", "qty_or_weight"),
		QtyReturn:   r.num("qtyReturn", "qty_return"),
		PerDayRate:  r.num("perDayRate", "per_day_rate"),
		UsedDays:    r.integer("usedDays", "used_days"),
		Amount:      r.num("amount"),
	}
}

func onRentReturnFrom(r record) domain.OnRentReturn {
	ret := domain.OnRentReturn{
		ID:               r.id(),
		OnRentReturnNo:   r.str("onRentReturnNo", "on_rent_return_no", "returnNumber"),
		OnRentReturnDate: r.time("onRentReturnDate", "on_rent_return_date", "returnDate"),
		CustomerID:       r.str("customerId", "customer_id", "customer.id", "customer._id"),
		CustomerName:     r.str("customerName", "customer_name", "customer.customerName"),
		VehicleDetails:   r.str("vehicleDetails", "vehicle_details"),
		TotalAmount:      r.num("totalAmount", "total_amount"),
	}
	for _, item := range r.list("items") {
		ret.Items = append(ret.Items, returnedItemFrom(item))
	}
	return ret
}

func returnBalanceFrom(r record) domain.ReturnBalance {
	return domain.ReturnBalance{
		ID:                r.str("id", "_id", "returnId"),
		ReturnNumber:      r.str("returnNumber", "onRentReturnNo", "return_number"),
		CustomerID:        r.str("customerId", "customer_id", "customer.id"),
		TotalAmount:       r.num("totalAmount", "total_amount"),
		BalanceAmount:     r.num("balanceAmount", "balance_amount", "balance"),
		PaidAmount:        r.num("paidAmount", "paid_amount"),
		IsReturnCompleted: r.flag("isReturnCompleted", "is_return_completed"),
	}
}

func paymentFrom(r record) domain.Payment {
	payment := domain.Payment{
		ID:            r.id(),
		CustomerID:    r.str("customerId", "customer_id", "customer.id"),
		CustomerName:  r.str("customerName", "customer_name", "customer.customerName"),
		CustomerEmail: r.str("customerEmail", "customer_email", "customer.email"),
		PaidAmount:    r.num("paidAmount", "paid_amount"),
		PaymentType:   r.str("paymentType", "payment_type"),
		CreatedAt:     r.time("createdAt", "created_at", "paymentDate"),
	}
	for _, alloc := range r.list("allocatedReturns", "allocated_returns") {
		payment.AllocatedReturns = append(payment.AllocatedReturns, domain.AllocatedReturn{
			ReturnID:          alloc.str("returnId", "return_id"),
			ReturnNumber:      alloc.str("returnNumber", "return_number"),
			AllocatedAmount:   alloc.num("allocatedAmount", "allocated_amount"),
			IsReturnCompleted: alloc.flag("isReturnCompleted", "is_return_completed"),
		})
	}
	return payment
}

func inwardFrom(r record) domain.Inward {
	inward := domain.Inward{
		ID:          r.id(),
		InwardNo:    r.str("inwardNo", "inward_no"),
		InwardDate:  r.time("inwardDate", "inward_date"),
		Attachment:  r.str("attachment"),
		TotalAmount: r.num("totalAmount", "total_amount"),
	}
	for _, item := range r.list("items") {
		inward.Items = append(inward.Items, domain.InwardItem{
			ItemID:      item.str("itemId", "itemid", "item_id", "item.id"),
			ItemName:    item.str("itemName", "item_name", "item.itemName"),
			UOM:         item.str("uom.uom", "uom.name", "uom"),
			Qty:         item.num("qty"),
			Weight:      item.num("weight"),
			Rate:        item.num("rate"),
			TotalAmount: item.num("totalAmount", "amount"),
		})
	}
	return inward
}

func creditFrom(r record) domain.CustomerCredit {
	return domain.CustomerCredit{
		ID:          r.id(),
		CustomerID:  r.str("customerId", "customer_id"),
		PaymentType: r.str("paymentType", "payment_type"),
		PaymentDate: r.time("paymentDate", "payment_date"),
		Amount:      r.num("amount"),
	}
}

// number renders a decimal as a bare JSON number.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func date(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format("2006-01-02")
}

func customerPayload(c domain.Customer) map[string]any {
	return map[string]any{
		"customerName": c.CustomerName,
		"email":        c.Email,
		"mobile":       c.Mobile,
		"address":      c.Address,
		"gstNumber":    c.GSTNumber,
		"panNumber":    c.PANNumber,
	}
}

func itemPayload(item domain.Item) map[string]any {
	return map[string]any{
		"itemName":    item.ItemName,
		"itemCode":    item.ItemCode,
		"description": item.Description,
		"isActive":    item.IsActive,
	}
}

func userPayload(u domain.User, password string) map[string]any {
	payload := map[string]any{
		"firstName": u.FirstName,
		"lastName":  u.LastName,
		"email":     u.Email,
		"mobile":    u.Mobile,
	}
	if password != "" {
		payload["password"] = password
	}
	return payload
}

func inwardPayload(in domain.Inward) map[string]any {
	items := make([]map[string]any, 0, len(in.Items))
	for _, item := range in.Items {
		items = append(items, map[string]any{
			"itemId":      item.ItemID,
			"itemName":    item.ItemName,
			"qty":         number(item.Qty),
			"weight":      number(item.Weight),
			"rate":        number(item.Rate),
			"totalAmount": number(item.TotalAmount),
			"uom":         item.UOM,
		})
	}
	payload := map[string]any{
		"inwardNo":    in.InwardNo,
		"inwardDate":  date(in.InwardDate),
		"items":       items,
		"totalAmount": number(in.TotalAmount),
	}
	if in.Attachment != "" {
		payload["attachment"] = in.Attachment
	}
	if in.ID != "" {
		payload["_id"] = in.ID
	}
	return payload
}

func onRentPayload(rental domain.OnRent) map[string]any {
	items := make([]map[string]any, 0, len(rental.Items))
	for _, item := range rental.Items {
		items = append(items, map[string]any{
			"item_id":     item.ItemID,
			"uom":         item.UOM,
			"qtyOrWeight": number(item.QtyOrWeight),
			"perDayRate":  number(item.PerDayRate),
		})
	}
	return map[string]any{
		"onRentDate":     date(rental.OnRentDate),
		"customerName":   rental.CustomerName,
		"customerId":     rental.CustomerID,
		"items":          items,
		"vehicleDetails": rental.VehicleDetails,
	}
}

func onRentReturnPayload(ret domain.OnRentReturn) map[string]any {
	items := make([]map[string]any, 0, len(ret.Items))
	for _, item := range ret.Items {
		items = append(items, map[string]any{
			"onRentNo":    item.OnRentNo,
			"itemId":      item.ItemID,
			"itemName":    item.ItemName,
			"uom":         item.UOM,
			"qtyOrWeight": number(item.QtyOrWeight),
			"qtyReturn":   number(item.QtyReturn),
			"perDayRate":  number(item.PerDayRate),
			"usedDays":    item.UsedDays,
			"amount":      number(item.Amount),
		})
	}
	return map[string]any{
		"onRentReturnNo":   ret.OnRentReturnNo,
		"onRentReturnDate": date(ret.OnRentReturnDate),
		"customerId":       ret.CustomerID,
		"customerName":     ret.CustomerName,
		"items":            items,
		"vehicleDetails":   ret.VehicleDetails,
		"totalAmount":      number(ret.TotalAmount),
	}
}

func paymentPayload(p domain.Payment) map[string]any {
	allocated := make([]map[string]any, 0, len(p.AllocatedReturns))
	for _, a := range p.AllocatedReturns {
		allocated = append(allocated, map[string]any{
			"returnId":          a.ReturnID,
			"returnNumber":      a.ReturnNumber,
			"allocatedAmount":   number(a.AllocatedAmount),
			"isReturnCompleted": a.IsReturnCompleted,
		})
	}
	return map[string]any{
		"customerId":       p.CustomerID,
		"customerName":     p.CustomerName,
		"customerEmail":    p.CustomerEmail,
		"paidAmount":       number(p.PaidAmount),
		"paymentType":      p.PaymentType,
		"allocatedReturns": allocated,
	}
}

func creditPayload(c domain.CustomerCredit) map[string]any {
	return map[string]any{
		"customerId":  c.CustomerID,
		"paymentType": c.PaymentType,
		"paymentDate": date(c.PaymentDate),
		"amount":      number(c.Amount),
	}
}
