// Package models defines the receipt records the client caches and shows.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ResourceID identifies a receipt on the server.
type ResourceID int64

func (id ResourceID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseResourceID parses a decimal receipt id.
func ParseResourceID(s string) (ResourceID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid receipt id %q", s)
	}
	return ResourceID(n), nil
}

// Amount is a money value. The server emits decimals either as JSON numbers
// or as strings ("12.34"); both decode.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*a = 0
			return nil
		}
		b = []byte(s)
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", b, err)
	}
	*a = Amount(f)
	return nil
}

func (a Amount) String() string { return strconv.FormatFloat(float64(a), 'f', 2, 64) }

// LineItem is one purchased position.
type LineItem struct {
	Desc  string  `json:"desc"`
	Qty   float64 `json:"qty"`
	Price Amount  `json:"price"`
}

// ReceiptData is the decrypted receipt body.
type ReceiptData struct {
	Merchant string     `json:"merchant,omitempty"`
	Date     string     `json:"date,omitempty"`
	Currency string     `json:"currency,omitempty"`
	Total    Amount     `json:"total"`
	Items    []LineItem `json:"items,omitempty"`
}

// ReceiptSummary holds the plain fields the server derives at ingest time.
type ReceiptSummary struct {
	Merchant string `json:"merchant,omitempty"`
	Total    Amount `json:"total"`
	DateStr  string `json:"date_str,omitempty"`
	Currency string `json:"currency,omitempty"`
	Category string `json:"category,omitempty"`
}

// CachedReceipt is the offline copy of one receipt.
type CachedReceipt struct {
	ID        ResourceID      `json:"id"`
	Data      *ReceiptData    `json:"data,omitempty"`
	Derived   *ReceiptSummary `json:"derived,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Merchant prefers the derived value, then the decrypted one.
func (r CachedReceipt) Merchant() string {
	switch {
	case r.Derived != nil && r.Derived.Merchant != "":
		return r.Derived.Merchant
	case r.Data != nil && r.Data.Merchant != "":
		return r.Data.Merchant
	default:
		return "Receipt"
	}
}

// Total prefers the derived value, then the decrypted one.
func (r CachedReceipt) Total() Amount {
	switch {
	case r.Derived != nil && r.Derived.Total != 0:
		return r.Derived.Total
	case r.Data != nil:
		return r.Data.Total
	default:
		return 0
	}
}

// PurchasedAt returns the best known purchase date.
func (r CachedReceipt) PurchasedAt() string {
	switch {
	case r.Derived != nil && r.Derived.DateStr != "":
		return r.Derived.DateStr
	case r.Data != nil:
		return r.Data.Date
	default:
		return ""
	}
}

// ReceiptListItem is one row of the receipt list.
type ReceiptListItem struct {
	ID          ResourceID `json:"id"`
	Merchant    string     `json:"merchant"`
	Total       Amount     `json:"total"`
	PurchasedAt string     `json:"purchased_at"`
	Category    string     `json:"category,omitempty"`
	// Encrypted marks rows known only by their wrapped key.
	Encrypted bool `json:"-"`
	// Offline marks rows served from the local cache.
	Offline bool `json:"-"`
}
