package inventory

import (
	"context"
	"encoding/json"
	"errors"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/agrimart/fulfillment/internal/domain"
	"github.com/agrimart/fulfillment/internal/events"
	kafkax "github.com/agrimart/fulfillment/internal/kafka"
)

// Dedup filters duplicate deliveries ahead of the non-idempotent handlers.
type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}

// Handlers adapts the service's event operations to the consumer loop.
// Every failure inside them is logged and swallowed: a malformed or stale
// event must never drive redelivery of the surrounding batch. The returned
// error is always nil so the consumer commits and moves on.
type Handlers struct {
	svc   *Service
	dedup Dedup
	log   *zap.Logger
}

func NewHandlers(svc *Service, dedup Dedup, log *zap.Logger) *Handlers {
	return &Handlers{svc: svc, dedup: dedup, log: log}
}

// OrderPending is informational only. Stock is not reserved at pending time;
// the decrement happens on confirmation.
func (h *Handlers) OrderPending(ctx context.Context, m kafkago.Message) error {
	env, ok := h.decode(m, events.TypeOrderPending)
	if !ok {
		return nil
	}
	p, err := kafkax.UnwrapPayload[events.OrderPendingPayload](env.Payload)
	if err != nil {
		h.drop(env, m, err)
		return nil
	}
	h.log.Info("order pending",
		zap.String("event_id", env.EventID),
		zap.String("product_offer_id", p.ProductOfferID),
		zap.Int("quantity", p.Quantity))
	return nil
}

func (h *Handlers) OrderConfirmed(ctx context.Context, m kafkago.Message) error {
	env, ok := h.decode(m, events.TypeOrderConfirmed)
	if !ok {
		return nil
	}
	if h.duplicate(ctx, env) {
		return nil
	}
	p, err := kafkax.UnwrapPayload[events.OrderConfirmedPayload](env.Payload)
	if err != nil {
		h.drop(env, m, err)
		return nil
	}
	if err := h.svc.ApplyOrderConfirmed(ctx, p); err != nil {
		// InsufficientStock is the operational alert this protocol accepts
		// instead of rolling the order back; everything else is a lookup or
		// store failure left for manual reconciliation.
		lvl := h.log.Warn
		if errors.Is(err, domain.ErrInsufficientStock) {
			lvl = h.log.Error
		}
		lvl("order confirmation not applied",
			zap.String("event_id", env.EventID),
			zap.String("order_id", env.CorrelationID),
			zap.String("product_offer_id", p.ProductOfferID),
			zap.Int("quantity", p.Quantity),
			zap.Error(err))
	}
	return nil
}

func (h *Handlers) OrderCancelled(ctx context.Context, m kafkago.Message) error {
	env, ok := h.decode(m, events.TypeOrderCancelled)
	if !ok {
		return nil
	}
	if h.duplicate(ctx, env) {
		return nil
	}
	p, err := kafkax.UnwrapPayload[events.OrderCancelledPayload](env.Payload)
	if err != nil {
		h.drop(env, m, err)
		return nil
	}
	if err := h.svc.ApplyOrderCancelled(ctx, p); err != nil {
		h.log.Warn("order cancellation not applied",
			zap.String("event_id", env.EventID),
			zap.String("order_id", p.OrderID),
			zap.String("product_offer_id", p.ProductOfferID),
			zap.Int("quantity", p.Quantity),
			zap.Error(err))
	}
	return nil
}

func (h *Handlers) decode(m kafkago.Message, wantType string) (events.Envelope, bool) {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		h.log.Warn("undecodable event dropped", zap.ByteString("value", m.Value), zap.Error(err))
		return events.Envelope{}, false
	}
	if env.EventType != wantType {
		return events.Envelope{}, false
	}
	return env, true
}

// duplicate claims the event id in the dedup store. A dedup store failure
// degrades to at-least-once rather than blocking consumption.
func (h *Handlers) duplicate(ctx context.Context, env events.Envelope) bool {
	seen, err := h.dedup.Seen(ctx, env.EventID)
	if err != nil {
		h.log.Warn("dedup check failed, processing anyway",
			zap.String("event_id", env.EventID), zap.Error(err))
		return false
	}
	if seen {
		h.log.Info("duplicate event skipped", zap.String("event_id", env.EventID),
			zap.String("event_type", env.EventType))
	}
	return seen
}

func (h *Handlers) drop(env events.Envelope, m kafkago.Message, err error) {
	h.log.Warn("event payload dropped",
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.ByteString("payload", env.Payload),
		zap.Error(err))
}
