package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// Inventory is a producer's stock for one offer, kept in the producer's own
// stocking unit. At most one row exists per offer.
type Inventory struct {
	ID                string          `json:"id"`
	ProducerID        string          `json:"producer_id"`
	ProductOfferID    string          `json:"product_offer_id"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	Unit              string          `json:"unit"`
	MinimumThreshold  decimal.Decimal `json:"minimum_threshold"`
	MaximumCapacity   decimal.Decimal `json:"maximum_capacity"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type CreateInput struct {
	ProducerID        string          `json:"producer_id"`
	ProductOfferID    string          `json:"product_offer_id"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	Unit              string          `json:"unit"`
	MinimumThreshold  decimal.Decimal `json:"minimum_threshold"`
	MaximumCapacity   decimal.Decimal `json:"maximum_capacity"`
}

// QuantityPatch updates a subset of the numeric fields. Nil fields keep the
// current value; validation always runs against the merged final state.
type QuantityPatch struct {
	AvailableQuantity *decimal.Decimal `json:"available_quantity,omitempty"`
	MinimumThreshold  *decimal.Decimal `json:"minimum_threshold,omitempty"`
	MaximumCapacity   *decimal.Decimal `json:"maximum_capacity,omitempty"`
}
