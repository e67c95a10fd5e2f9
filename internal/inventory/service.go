package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/agrimart/fulfillment/internal/clients"
	"github.com/agrimart/fulfillment/internal/domain"
	"github.com/agrimart/fulfillment/internal/events"
	kafkax "github.com/agrimart/fulfillment/internal/kafka"
	"github.com/agrimart/fulfillment/internal/orders"
	"github.com/agrimart/fulfillment/internal/unitconv"
)

type Repository interface {
	Create(ctx context.Context, inv Inventory) error
	Get(ctx context.Context, id string) (Inventory, error)
	GetByOffer(ctx context.Context, productOfferID string) (Inventory, error)
	Update(ctx context.Context, id string, apply func(Inventory) (Inventory, error)) (Inventory, error)
	Decrement(ctx context.Context, productOfferID string, qty decimal.Decimal) (Inventory, bool, error)
	Increment(ctx context.Context, productOfferID string, qty decimal.Decimal) (Inventory, error)
	Delete(ctx context.Context, id string) error
}

type CatalogClient interface {
	ProductOffer(ctx context.Context, id string) (clients.ProductOffer, error)
	OfferExists(ctx context.Context, id string) (bool, error)
}

type IdentityClient interface {
	User(ctx context.Context, id string) (clients.User, error)
}

// OrderStatusClient asks the order service for a live status read. The
// cancellation guard depends on it.
type OrderStatusClient interface {
	Status(ctx context.Context, orderID string) (string, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	repo         Repository
	catalog      CatalogClient
	identity     IdentityClient
	orders       OrderStatusClient
	conv         *unitconv.Converter
	lowStock     Publisher
	availability Publisher
	name         string
	log          *zap.Logger
}

func NewService(repo Repository, catalog CatalogClient, identity IdentityClient, orderStatus OrderStatusClient,
	conv *unitconv.Converter, lowStock, availability Publisher, serviceName string, log *zap.Logger) *Service {
	return &Service{
		repo:         repo,
		catalog:      catalog,
		identity:     identity,
		orders:       orderStatus,
		conv:         conv,
		lowStock:     lowStock,
		availability: availability,
		name:         serviceName,
		log:          log,
	}
}

// validate checks the row invariants against a final state, never a delta.
func (s *Service) validate(inv Inventory) error {
	switch {
	case inv.AvailableQuantity.IsNegative():
		return fmt.Errorf("%w: available_quantity must not be negative", domain.ErrInvalidArgument)
	case inv.MaximumCapacity.LessThan(decimal.NewFromInt(1)):
		return fmt.Errorf("%w: maximum_capacity must be at least 1", domain.ErrInvalidArgument)
	case inv.AvailableQuantity.GreaterThan(inv.MaximumCapacity):
		return fmt.Errorf("%w: available_quantity exceeds maximum_capacity", domain.ErrInvalidArgument)
	case inv.MinimumThreshold.IsNegative(), inv.MinimumThreshold.GreaterThan(inv.MaximumCapacity):
		return fmt.Errorf("%w: minimum_threshold must be within [0, maximum_capacity]", domain.ErrInvalidArgument)
	}
	if !s.conv.Known(inv.Unit) {
		return fmt.Errorf("%w: unknown unit %q", domain.ErrInvalidArgument, inv.Unit)
	}
	return nil
}

// Create registers stock for an offer, once. Producer and offer are validated
// through the collaborators before anything is written.
func (s *Service) Create(ctx context.Context, in CreateInput) (Inventory, error) {
	inv := Inventory{
		ID:                uuid.NewString(),
		ProducerID:        in.ProducerID,
		ProductOfferID:    in.ProductOfferID,
		AvailableQuantity: in.AvailableQuantity,
		Unit:              in.Unit,
		MinimumThreshold:  in.MinimumThreshold,
		MaximumCapacity:   in.MaximumCapacity,
	}
	if err := s.validate(inv); err != nil {
		return Inventory{}, err
	}

	if _, err := s.identity.User(ctx, in.ProducerID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Inventory{}, fmt.Errorf("%w: producer %s", domain.ErrNotFound, in.ProducerID)
		}
		return Inventory{}, err
	}
	if _, err := s.catalog.ProductOffer(ctx, in.ProductOfferID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Inventory{}, fmt.Errorf("%w: offer %s", domain.ErrNotFound, in.ProductOfferID)
		}
		return Inventory{}, err
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		return Inventory{}, err
	}
	s.publishAvailability(inv)
	return inv, nil
}

func (s *Service) Get(ctx context.Context, id string) (Inventory, error) {
	return s.repo.Get(ctx, id)
}

// UpdateQuantities merges the patch onto the current row and re-validates the
// merged state before writing. Emission runs after the write like any other
// mutation.
func (s *Service) UpdateQuantities(ctx context.Context, id string, patch QuantityPatch) (Inventory, error) {
	inv, err := s.repo.Update(ctx, id, func(cur Inventory) (Inventory, error) {
		next := cur
		if patch.AvailableQuantity != nil {
			next.AvailableQuantity = *patch.AvailableQuantity
		}
		if patch.MinimumThreshold != nil {
			next.MinimumThreshold = *patch.MinimumThreshold
		}
		if patch.MaximumCapacity != nil {
			next.MaximumCapacity = *patch.MaximumCapacity
		}
		if err := s.validate(next); err != nil {
			return Inventory{}, err
		}
		return next, nil
	})
	if err != nil {
		return Inventory{}, err
	}
	s.checkLowStock(inv)
	s.publishAvailability(inv)
	return inv, nil
}

// Remove deletes a stock record. Stock for an offer the catalog still sells
// cannot be removed.
func (s *Service) Remove(ctx context.Context, id string) error {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	exists, err := s.catalog.OfferExists(ctx, inv.ProductOfferID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: offer %s still exists in the catalog", domain.ErrConflict, inv.ProductOfferID)
	}
	return s.repo.Delete(ctx, id)
}

// ValidateStock is the synchronous, non-binding sufficiency hint. It runs the
// same equivalence computation as confirmation but mutates nothing.
func (s *Service) ValidateStock(ctx context.Context, productOfferID string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidArgument)
	}
	inv, err := s.repo.GetByOffer(ctx, productOfferID)
	if err != nil {
		return false, err
	}
	required, err := s.equivalence(ctx, productOfferID, quantity, inv.Unit)
	if err != nil {
		return false, err
	}
	return inv.AvailableQuantity.GreaterThanOrEqual(required), nil
}

// equivalence converts an ordered quantity, expressed in the offer's
// packaging unit, into the inventory's stocking unit.
func (s *Service) equivalence(ctx context.Context, productOfferID string, quantity int, stockUnit string) (decimal.Decimal, error) {
	offer, err := s.catalog.ProductOffer(ctx, productOfferID)
	if err != nil {
		return decimal.Zero, err
	}
	base := offer.PackagingSize.Mul(decimal.NewFromInt(int64(quantity)))
	return s.conv.Convert(base, offer.Unit, stockUnit)
}

// ApplyOrderConfirmed decrements stock for one confirmed line. Insufficient
// stock leaves the row untouched and comes back as ErrInsufficientStock for
// the handler to report out of band; the caller never sees it.
func (s *Service) ApplyOrderConfirmed(ctx context.Context, p events.OrderConfirmedPayload) error {
	inv, err := s.repo.GetByOffer(ctx, p.ProductOfferID)
	if err != nil {
		return err
	}
	required, err := s.equivalence(ctx, p.ProductOfferID, p.Quantity, inv.Unit)
	if err != nil {
		return err
	}
	updated, ok, err := s.repo.Decrement(ctx, p.ProductOfferID, required)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: offer %s requires %s %s, only %s available",
			domain.ErrInsufficientStock, p.ProductOfferID, required, inv.Unit, updated.AvailableQuantity)
	}
	s.checkLowStock(updated)
	s.publishAvailability(updated)
	return nil
}

// ApplyOrderCancelled restocks one cancelled line, but only while the order
// service still reports the order PENDING. A cancellation racing a payment
// confirmation loses: once the order reads PAID the restock is skipped.
func (s *Service) ApplyOrderCancelled(ctx context.Context, p events.OrderCancelledPayload) error {
	status, err := s.orders.Status(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if status != string(orders.StatusPending) {
		s.log.Info("restock skipped, order no longer pending",
			zap.String("order_id", p.OrderID),
			zap.String("status", status),
			zap.String("product_offer_id", p.ProductOfferID))
		return nil
	}

	inv, err := s.repo.GetByOffer(ctx, p.ProductOfferID)
	if err != nil {
		return err
	}
	returned, err := s.equivalence(ctx, p.ProductOfferID, p.Quantity, inv.Unit)
	if err != nil {
		return err
	}
	updated, err := s.repo.Increment(ctx, p.ProductOfferID, returned)
	if err != nil {
		return err
	}
	s.publishAvailability(updated)
	return nil
}

// checkLowStock fires the alert whenever stock sits at or under the
// producer's threshold.
func (s *Service) checkLowStock(inv Inventory) {
	if inv.AvailableQuantity.GreaterThan(inv.MinimumThreshold) {
		return
	}
	s.emit(s.lowStock, events.TypeInventoryLowStock, inv.ProductOfferID, events.LowStockPayload{
		ProducerID:        inv.ProducerID,
		ProductOfferID:    inv.ProductOfferID,
		AvailableQuantity: inv.AvailableQuantity,
		MinimumThreshold:  inv.MinimumThreshold,
	})
}

// publishAvailability lets the catalog flip an offer sold-out/restocked
// without sharing a write path with it.
func (s *Service) publishAvailability(inv Inventory) {
	s.emit(s.availability, events.TypeOfferAvailability, inv.ProductOfferID, events.OfferAvailabilityPayload{
		ProductOfferID: inv.ProductOfferID,
		Available:      inv.AvailableQuantity.IsPositive(),
	})
}

func (s *Service) emit(p Publisher, eventType, key string, payload any) {
	if p == nil {
		return
	}
	env := events.New(eventType, s.name, "", key, payload)
	p.Publish(events.PartitionKey(key), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
