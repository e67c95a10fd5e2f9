package orders

import "time"

type Order struct {
	ID                 string     `json:"id"`
	ClientID           string     `json:"client_id"`
	Status             Status     `json:"status"`
	Address            string     `json:"address"`
	TotalCents         int64      `json:"total_cents"`
	TotalItems         int        `json:"total_items"`
	OrderDate          time.Time  `json:"order_date"`
	Paid               bool       `json:"paid"`
	PaidAt             *time.Time `json:"paid_at,omitempty"`
	ExternalPaymentRef string     `json:"external_payment_ref,omitempty"`
	ReceiptRef         string     `json:"receipt_ref,omitempty"`
	Details            []Detail   `json:"details"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Detail is one order line. Price is captured from the catalog at order time
// and stays authoritative over later catalog price changes.
type Detail struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	ProductOfferID string `json:"product_offer_id"`
	Quantity       int    `json:"quantity"`
	PriceCents     int64  `json:"price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type LineInput struct {
	ProductOfferID string `json:"product_offer_id"`
	Quantity       int    `json:"quantity"`
}
