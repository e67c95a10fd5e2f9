package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TypeOrderPending      = "OrderPending"
	TypeOrderConfirmed    = "OrderConfirmed"
	TypeOrderCancelled    = "OrderCancelled"
	TypeInventoryLowStock = "InventoryLowStock"
	TypeOfferAvailability = "OfferAvailabilityChanged"
	TypeProducerOrderPaid = "ProducerOrderPaid"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the Type* consts
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // emitting service name
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

// New builds a v1 envelope around payload. Payload types in this package are
// all marshal-safe, so a marshal failure is a programming error.
func New(eventType, producer, traceID, correlationID string, payload any) Envelope {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Payload:       b,
	}
}

// ---- Payload types per event ----

type OrderPendingPayload struct {
	ProductOfferID string `json:"product_offer_id"`
	Quantity       int    `json:"quantity"`
}

type OrderConfirmedPayload struct {
	ProductOfferID string `json:"product_offer_id"`
	Quantity       int    `json:"quantity"`
}

type OrderCancelledPayload struct {
	OrderID        string `json:"order_id"`
	ProductOfferID string `json:"product_offer_id"`
	Quantity       int    `json:"quantity"`
}

type LowStockPayload struct {
	ProducerID        string          `json:"producer_id"`
	ProductOfferID    string          `json:"product_offer_id"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	MinimumThreshold  decimal.Decimal `json:"minimum_threshold"`
}

type OfferAvailabilityPayload struct {
	ProductOfferID string `json:"product_offer_id"`
	Available      bool   `json:"available"`
}

type ProducerOrderPaidPayload struct {
	OrderID    string `json:"order_id"`
	ProducerID string `json:"producer_id"`
	TotalCents int64  `json:"total_cents"`
}
