package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/agrimart/fulfillment/internal/clients"
	"github.com/agrimart/fulfillment/internal/domain"
	"github.com/agrimart/fulfillment/internal/events"
	kafkax "github.com/agrimart/fulfillment/internal/kafka"
)

type Repository interface {
	CreateOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	GetStatus(ctx context.Context, id string) (Status, error)
	SetStatus(ctx context.Context, id string, from, to Status) (bool, error)
	MarkPaid(ctx context.Context, id string, paidAt time.Time, paymentRef, receiptRef string) (bool, error)
	ReplaceDetails(ctx context.Context, id string, details []Detail, totalCents int64, totalItems int) error
}

type CatalogClient interface {
	ProductOffer(ctx context.Context, id string) (clients.ProductOffer, error)
}

type IdentityClient interface {
	User(ctx context.Context, id string) (clients.User, error)
}

// StockClient is the inventory service's sufficiency hint. It is advisory:
// passing it reserves nothing, and the decrement still happens at
// confirmation time.
type StockClient interface {
	Validate(ctx context.Context, productOfferID string, quantity int) (bool, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Publishers carries one producer per lifecycle topic.
type Publishers struct {
	Pending      Publisher
	Confirmed    Publisher
	Cancelled    Publisher
	ProducerPaid Publisher
}

type Service struct {
	repo     Repository
	catalog  CatalogClient
	identity IdentityClient
	stock    StockClient
	pub      Publishers
	name     string
	log      *zap.Logger
}

func NewService(repo Repository, catalog CatalogClient, identity IdentityClient, stock StockClient,
	pub Publishers, serviceName string, log *zap.Logger) *Service {
	return &Service{repo: repo, catalog: catalog, identity: identity, stock: stock, pub: pub, name: serviceName, log: log}
}

// Create places an order. Prices come from the catalog at call time, never
// from the caller; totals are recomputed from the lines. Stock is not checked
// here: sufficiency is decided at confirmation.
func (s *Service) Create(ctx context.Context, clientID string, lines []LineInput, traceID string) (Order, error) {
	if clientID == "" {
		return Order{}, fmt.Errorf("%w: client id required", domain.ErrInvalidArgument)
	}
	if len(lines) == 0 {
		return Order{}, fmt.Errorf("%w: order needs at least one line", domain.ErrInvalidArgument)
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: quantity must be positive for offer %s", domain.ErrInvalidArgument, l.ProductOfferID)
		}
	}

	user, err := s.identity.User(ctx, clientID)
	if errors.Is(err, domain.ErrNotFound) {
		return Order{}, fmt.Errorf("%w: unknown client %s", domain.ErrInvalidArgument, clientID)
	}
	if err != nil {
		return Order{}, err
	}
	if user.Address == "" {
		return Order{}, fmt.Errorf("%w: client %s has no registered address", domain.ErrInvalidArgument, clientID)
	}

	orderID := uuid.NewString()
	details, totalCents, totalItems, err := s.priceLines(ctx, orderID, lines)
	if err != nil {
		return Order{}, err
	}
	if err := s.checkStockHint(ctx, lines); err != nil {
		return Order{}, err
	}

	o := Order{
		ID:         orderID,
		ClientID:   clientID,
		Status:     StatusPending,
		Address:    user.Address,
		TotalCents: totalCents,
		TotalItems: totalItems,
		OrderDate:  time.Now().UTC(),
		Details:    details,
	}
	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return Order{}, err
	}

	for _, d := range o.Details {
		s.emit(s.pub.Pending, events.TypeOrderPending, traceID, o.ID, d.ProductOfferID,
			events.OrderPendingPayload{ProductOfferID: d.ProductOfferID, Quantity: d.Quantity})
	}
	return o, nil
}

// checkStockHint fails creation fast when inventory already reports a line
// as insufficient. A hint lookup failure is logged and ignored, the order is
// created anyway: sufficiency is decided for real at confirmation.
func (s *Service) checkStockHint(ctx context.Context, lines []LineInput) error {
	if s.stock == nil {
		return nil
	}
	for _, l := range lines {
		sufficient, err := s.stock.Validate(ctx, l.ProductOfferID, l.Quantity)
		if err != nil {
			s.log.Warn("stock hint unavailable",
				zap.String("product_offer_id", l.ProductOfferID), zap.Error(err))
			continue
		}
		if !sufficient {
			return fmt.Errorf("%w: insufficient stock for offer %s", domain.ErrInvalidArgument, l.ProductOfferID)
		}
	}
	return nil
}

// priceLines resolves every offer and builds the detail rows. Totals are the
// sums over the lines, nothing is patched incrementally.
func (s *Service) priceLines(ctx context.Context, orderID string, lines []LineInput) ([]Detail, int64, int, error) {
	details := make([]Detail, 0, len(lines))
	var totalCents int64
	var totalItems int
	for _, l := range lines {
		offer, err := s.catalog.ProductOffer(ctx, l.ProductOfferID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, 0, 0, fmt.Errorf("%w: offer %s not found", domain.ErrInvalidArgument, l.ProductOfferID)
		}
		if err != nil {
			return nil, 0, 0, err
		}
		if !offer.IsAvailable {
			return nil, 0, 0, fmt.Errorf("%w: offer %s is not available", domain.ErrInvalidArgument, l.ProductOfferID)
		}
		subtotal := offer.PriceCents * int64(l.Quantity)
		details = append(details, Detail{
			ID:             uuid.NewString(),
			OrderID:        orderID,
			ProductOfferID: l.ProductOfferID,
			Quantity:       l.Quantity,
			PriceCents:     offer.PriceCents,
			SubtotalCents:  subtotal,
		})
		totalCents += subtotal
		totalItems += l.Quantity
	}
	return details, totalCents, totalItems, nil
}

// UpdateLines replaces the full detail set of a still-pending order,
// revalidating and repricing every line.
func (s *Service) UpdateLines(ctx context.Context, orderID, clientID string, lines []LineInput) (Order, error) {
	if len(lines) == 0 {
		return Order{}, fmt.Errorf("%w: order needs at least one line", domain.ErrInvalidArgument)
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: quantity must be positive for offer %s", domain.ErrInvalidArgument, l.ProductOfferID)
		}
	}

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.ClientID != clientID {
		return Order{}, fmt.Errorf("%w: order %s belongs to another client", domain.ErrForbidden, orderID)
	}
	if o.Status != StatusPending {
		return Order{}, fmt.Errorf("%w: only pending orders can be updated", domain.ErrInvalidArgument)
	}

	details, totalCents, totalItems, err := s.priceLines(ctx, orderID, lines)
	if err != nil {
		return Order{}, err
	}
	if err := s.repo.ReplaceDetails(ctx, orderID, details, totalCents, totalItems); err != nil {
		return Order{}, err
	}

	o.Details = details
	o.TotalCents = totalCents
	o.TotalItems = totalItems
	return o, nil
}

// Cancel transitions a pending order to CANCELLED and tells inventory to
// release the lines.
func (s *Service) Cancel(ctx context.Context, orderID, clientID, traceID string) (Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.ClientID != clientID {
		return Order{}, fmt.Errorf("%w: order %s belongs to another client", domain.ErrForbidden, orderID)
	}
	if o.Status != StatusPending {
		return Order{}, fmt.Errorf("%w: only pending orders can be cancelled", domain.ErrInvalidArgument)
	}

	ok, err := s.repo.SetStatus(ctx, orderID, StatusPending, StatusCancelled)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, fmt.Errorf("%w: order %s changed status concurrently", domain.ErrConflict, orderID)
	}

	// Re-read after the transition: a line update may have swapped the details
	// between the snapshot above and the CAS. Once CANCELLED they are frozen.
	o, err = s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	s.emitCancelled(o, traceID)
	return o, nil
}

// ConfirmPayment is idempotent: an already-paid order is returned as is and
// nothing is emitted. Inventory decrement and producer notification both ride
// on the events published here; neither is awaited.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, paymentRef, receiptRef, traceID string) (Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Status == StatusPaid {
		return o, nil
	}
	if !CanTransition(o.Status, StatusPaid) {
		return Order{}, fmt.Errorf("%w: cannot pay a %s order", domain.ErrInvalidArgument, o.Status)
	}

	paidAt := time.Now().UTC()
	ok, err := s.repo.MarkPaid(ctx, orderID, paidAt, paymentRef, receiptRef)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		// Lost the race. If the winner was another confirmation, stay idempotent.
		cur, err := s.repo.GetOrder(ctx, orderID)
		if err != nil {
			return Order{}, err
		}
		if cur.Status == StatusPaid {
			return cur, nil
		}
		return Order{}, fmt.Errorf("%w: order %s changed status concurrently", domain.ErrConflict, orderID)
	}

	// Re-read after the transition: a line update may have swapped the details
	// between the snapshot above and MarkPaid's CAS. Once PAID, ReplaceDetails
	// can no longer touch them, so this read is the set inventory must see.
	o, err = s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	for _, d := range o.Details {
		s.emit(s.pub.Confirmed, events.TypeOrderConfirmed, traceID, o.ID, d.ProductOfferID,
			events.OrderConfirmedPayload{ProductOfferID: d.ProductOfferID, Quantity: d.Quantity})
	}
	s.notifyProducers(ctx, o, traceID)
	return o, nil
}

// notifyProducers is best effort: a producer we cannot resolve is logged and
// skipped, the payment stays confirmed.
func (s *Service) notifyProducers(ctx context.Context, o Order, traceID string) {
	seen := make(map[string]bool)
	for _, d := range o.Details {
		offer, err := s.catalog.ProductOffer(ctx, d.ProductOfferID)
		if err != nil {
			s.log.Warn("producer notification skipped",
				zap.String("order_id", o.ID),
				zap.String("product_offer_id", d.ProductOfferID),
				zap.Error(err))
			continue
		}
		if seen[offer.ProducerID] {
			continue
		}
		seen[offer.ProducerID] = true
		s.emit(s.pub.ProducerPaid, events.TypeProducerOrderPaid, traceID, o.ID, offer.ProducerID,
			events.ProducerOrderPaidPayload{OrderID: o.ID, ProducerID: offer.ProducerID, TotalCents: o.TotalCents})
	}
}

// UpdateStatus is the generic transition entry point (DELIVERED, admin
// cancellation). Requesting the current status is a no-op. Only a transition
// into CANCELLED emits inventory events.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to Status, traceID string) (Order, error) {
	if !ValidStatus(to) {
		return Order{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, to)
	}
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Status == to {
		return o, nil
	}
	if !CanTransition(o.Status, to) {
		return Order{}, fmt.Errorf("%w: no transition %s -> %s", domain.ErrConflict, o.Status, to)
	}

	ok, err := s.repo.SetStatus(ctx, orderID, o.Status, to)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, fmt.Errorf("%w: order %s changed status concurrently", domain.ErrConflict, orderID)
	}

	o.Status = to
	if to == StatusCancelled {
		s.emitCancelled(o, traceID)
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

func (s *Service) Status(ctx context.Context, orderID string) (Status, error) {
	return s.repo.GetStatus(ctx, orderID)
}

func (s *Service) emitCancelled(o Order, traceID string) {
	for _, d := range o.Details {
		s.emit(s.pub.Cancelled, events.TypeOrderCancelled, traceID, o.ID, d.ProductOfferID,
			events.OrderCancelledPayload{OrderID: o.ID, ProductOfferID: d.ProductOfferID, Quantity: d.Quantity})
	}
}

func (s *Service) emit(p Publisher, eventType, traceID, correlationID, key string, payload any) {
	if p == nil {
		return
	}
	env := events.New(eventType, s.name, traceID, correlationID, payload)
	p.Publish(events.PartitionKey(key), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
