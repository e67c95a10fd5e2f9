package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agrimart/fulfillment/internal/clients"
	"github.com/agrimart/fulfillment/internal/domain"
	"github.com/agrimart/fulfillment/internal/events"
	"github.com/agrimart/fulfillment/internal/unitconv"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeInvRepo struct {
	byID map[string]Inventory
}

func newFakeInvRepo(seed ...Inventory) *fakeInvRepo {
	r := &fakeInvRepo{byID: make(map[string]Inventory)}
	for _, inv := range seed {
		r.byID[inv.ID] = inv
	}
	return r
}

func (r *fakeInvRepo) Create(ctx context.Context, inv Inventory) error {
	for _, cur := range r.byID {
		if cur.ProductOfferID == inv.ProductOfferID {
			return fmt.Errorf("%w: inventory already registered for offer %s", domain.ErrConflict, inv.ProductOfferID)
		}
	}
	r.byID[inv.ID] = inv
	return nil
}

func (r *fakeInvRepo) Get(ctx context.Context, id string) (Inventory, error) {
	inv, ok := r.byID[id]
	if !ok {
		return Inventory{}, fmt.Errorf("%w: inventory", domain.ErrNotFound)
	}
	return inv, nil
}

func (r *fakeInvRepo) GetByOffer(ctx context.Context, offerID string) (Inventory, error) {
	for _, inv := range r.byID {
		if inv.ProductOfferID == offerID {
			return inv, nil
		}
	}
	return Inventory{}, fmt.Errorf("%w: inventory", domain.ErrNotFound)
}

func (r *fakeInvRepo) Update(ctx context.Context, id string, apply func(Inventory) (Inventory, error)) (Inventory, error) {
	cur, err := r.Get(ctx, id)
	if err != nil {
		return Inventory{}, err
	}
	next, err := apply(cur)
	if err != nil {
		return Inventory{}, err
	}
	r.byID[id] = next
	return next, nil
}

func (r *fakeInvRepo) Decrement(ctx context.Context, offerID string, qty decimal.Decimal) (Inventory, bool, error) {
	inv, err := r.GetByOffer(ctx, offerID)
	if err != nil {
		return Inventory{}, false, err
	}
	if inv.AvailableQuantity.LessThan(qty) {
		return inv, false, nil
	}
	inv.AvailableQuantity = inv.AvailableQuantity.Sub(qty)
	r.byID[inv.ID] = inv
	return inv, true, nil
}

func (r *fakeInvRepo) Increment(ctx context.Context, offerID string, qty decimal.Decimal) (Inventory, error) {
	inv, err := r.GetByOffer(ctx, offerID)
	if err != nil {
		return Inventory{}, err
	}
	inv.AvailableQuantity = decimal.Min(inv.MaximumCapacity, inv.AvailableQuantity.Add(qty))
	r.byID[inv.ID] = inv
	return inv, nil
}

func (r *fakeInvRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.byID[id]; !ok {
		return fmt.Errorf("%w: inventory", domain.ErrNotFound)
	}
	delete(r.byID, id)
	return nil
}

type stubCatalog struct {
	offers map[string]clients.ProductOffer
}

func (c *stubCatalog) ProductOffer(ctx context.Context, id string) (clients.ProductOffer, error) {
	offer, ok := c.offers[id]
	if !ok {
		return clients.ProductOffer{}, fmt.Errorf("%w: offer", domain.ErrNotFound)
	}
	return offer, nil
}

func (c *stubCatalog) OfferExists(ctx context.Context, id string) (bool, error) {
	_, ok := c.offers[id]
	return ok, nil
}

type stubIdentity struct {
	users map[string]clients.User
}

func (c *stubIdentity) User(ctx context.Context, id string) (clients.User, error) {
	u, ok := c.users[id]
	if !ok {
		return clients.User{}, fmt.Errorf("%w: user", domain.ErrNotFound)
	}
	return u, nil
}

type stubOrderStatus struct {
	statuses map[string]string
	err      error
}

func (c *stubOrderStatus) Status(ctx context.Context, orderID string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	s, ok := c.statuses[orderID]
	if !ok {
		return "", fmt.Errorf("%w: order", domain.ErrNotFound)
	}
	return s, nil
}

type capturePub struct {
	envs []events.Envelope
}

func (p *capturePub) Publish(key, value []byte, headers ...kafkago.Header) {
	var env events.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		panic(err)
	}
	p.envs = append(p.envs, env)
}

type invFixture struct {
	svc          *Service
	repo         *fakeInvRepo
	lowStock     *capturePub
	availability *capturePub
	orderStatus  *stubOrderStatus
}

func newInvFixture(t *testing.T, repo *fakeInvRepo, offers map[string]clients.ProductOffer) invFixture {
	t.Helper()
	conv, err := unitconv.New(unitconv.DefaultTable())
	require.NoError(t, err)

	f := invFixture{
		repo:         repo,
		lowStock:     &capturePub{},
		availability: &capturePub{},
		orderStatus:  &stubOrderStatus{statuses: make(map[string]string)},
	}
	f.svc = NewService(
		repo,
		&stubCatalog{offers: offers},
		&stubIdentity{users: map[string]clients.User{
			"producer-1": {ID: "producer-1", FullName: "Producer One", Role: "producer"},
		}},
		f.orderStatus,
		conv,
		f.lowStock,
		f.availability,
		"inventory-test",
		zap.NewNop(),
	)
	return f
}

func kgOffers() map[string]clients.ProductOffer {
	return map[string]clients.ProductOffer{
		"offer-1": {
			ID:            "offer-1",
			ProducerID:    "producer-1",
			PackagingSize: decimal.NewFromInt(1),
			Unit:          "kg",
			PriceCents:    1000,
			IsAvailable:   true,
		},
		"offer-crate": {
			ID:            "offer-crate",
			ProducerID:    "producer-1",
			PackagingSize: decimal.NewFromInt(1),
			Unit:          "crate",
			PriceCents:    9000,
			IsAvailable:   true,
		},
	}
}

func kgStock(id, offerID, avail, threshold, capacity string) Inventory {
	return Inventory{
		ID:                id,
		ProducerID:        "producer-1",
		ProductOfferID:    offerID,
		AvailableQuantity: dec(avail),
		Unit:              "kg",
		MinimumThreshold:  dec(threshold),
		MaximumCapacity:   dec(capacity),
	}
}

func TestServiceCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	valid := CreateInput{
		ProducerID:        "producer-1",
		ProductOfferID:    "offer-1",
		AvailableQuantity: dec("10"),
		Unit:              "kg",
		MinimumThreshold:  dec("2"),
		MaximumCapacity:   dec("50"),
	}

	t.Run("registers stock and announces availability", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(), kgOffers())

		inv, err := f.svc.Create(ctx, valid)
		require.NoError(t, err)
		assert.NotEmpty(t, inv.ID)
		assert.True(t, inv.AvailableQuantity.Equal(dec("10")))

		require.Len(t, f.availability.envs, 1)
		var p events.OfferAvailabilityPayload
		require.NoError(t, json.Unmarshal(f.availability.envs[0].Payload, &p))
		assert.Equal(t, "offer-1", p.ProductOfferID)
		assert.True(t, p.Available)
	})

	t.Run("duplicate registration for the same offer is a conflict", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "5", "0", "50")), kgOffers())

		_, err := f.svc.Create(ctx, valid)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("unknown producer or offer", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(), kgOffers())

		in := valid
		in.ProducerID = "ghost"
		_, err := f.svc.Create(ctx, in)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		in = valid
		in.ProductOfferID = "ghost-offer"
		_, err = f.svc.Create(ctx, in)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("invariant violations are rejected", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(), kgOffers())

		cases := []func(*CreateInput){
			func(in *CreateInput) { in.AvailableQuantity = dec("-1") },
			func(in *CreateInput) { in.MaximumCapacity = dec("0.5") },
			func(in *CreateInput) { in.AvailableQuantity = dec("60") }, // above capacity
			func(in *CreateInput) { in.MinimumThreshold = dec("51") }, // above capacity
			func(in *CreateInput) { in.MinimumThreshold = dec("-1") },
			func(in *CreateInput) { in.Unit = "stone" },
		}
		for i, mutate := range cases {
			in := valid
			mutate(&in)
			_, err := f.svc.Create(ctx, in)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument, "case %d", i)
		}
	})
}

func TestServiceUpdateQuantities(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("patch merges onto current state and validates the result", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "10", "2", "50")), kgOffers())

		avail := dec("30")
		inv, err := f.svc.UpdateQuantities(ctx, "inv-1", QuantityPatch{AvailableQuantity: &avail})
		require.NoError(t, err)
		assert.True(t, inv.AvailableQuantity.Equal(dec("30")))
		assert.True(t, inv.MaximumCapacity.Equal(dec("50")), "untouched field retained")
	})

	t.Run("final state is validated, not the delta", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "40", "2", "50")), kgOffers())

		// lowering capacity below current stock must fail even though the
		// patch itself looks sane
		capacity := dec("30")
		_, err := f.svc.UpdateQuantities(ctx, "inv-1", QuantityPatch{MaximumCapacity: &capacity})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)

		cur, _ := f.repo.Get(ctx, "inv-1")
		assert.True(t, cur.AvailableQuantity.Equal(dec("40")), "state unchanged after rejected patch")
	})

	t.Run("low stock fires when the new level sits at or under the threshold", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "10", "5", "50")), kgOffers())

		avail := dec("3")
		_, err := f.svc.UpdateQuantities(ctx, "inv-1", QuantityPatch{AvailableQuantity: &avail})
		require.NoError(t, err)

		require.Len(t, f.lowStock.envs, 1)
		var p events.LowStockPayload
		require.NoError(t, json.Unmarshal(f.lowStock.envs[0].Payload, &p))
		assert.Equal(t, "producer-1", p.ProducerID)
		assert.True(t, p.AvailableQuantity.Equal(dec("3")))
		assert.True(t, p.MinimumThreshold.Equal(dec("5")))
	})

	t.Run("no low stock above the threshold", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "10", "5", "50")), kgOffers())

		avail := dec("6")
		_, err := f.svc.UpdateQuantities(ctx, "inv-1", QuantityPatch{AvailableQuantity: &avail})
		require.NoError(t, err)
		assert.Empty(t, f.lowStock.envs)
	})
}

func TestServiceRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stock for a live offer cannot be removed", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "10", "2", "50")), kgOffers())

		err := f.svc.Remove(ctx, "inv-1")
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("removal succeeds once the offer left the catalog", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "retired-offer", "10", "2", "50")), kgOffers())

		require.NoError(t, f.svc.Remove(ctx, "inv-1"))
		_, err := f.repo.Get(ctx, "inv-1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestServiceValidateStock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "10", "0", "50")), kgOffers())

	ok, err := f.svc.ValidateStock(ctx, "offer-1", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.ValidateStock(ctx, "offer-1", 11)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.ValidateStock(ctx, "offer-1", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	cur, _ := f.repo.Get(ctx, "inv-1")
	assert.True(t, cur.AvailableQuantity.Equal(dec("10")), "validation never mutates")
}

func TestApplyOrderConfirmed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("decrements by the converted equivalence", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "10", "0", "50")), kgOffers())

		err := f.svc.ApplyOrderConfirmed(ctx, events.OrderConfirmedPayload{ProductOfferID: "offer-1", Quantity: 2})
		require.NoError(t, err)

		cur, _ := f.repo.Get(ctx, "inv-1")
		assert.True(t, cur.AvailableQuantity.Equal(dec("8")), "got %s", cur.AvailableQuantity)
		require.Len(t, f.availability.envs, 1)
	})

	t.Run("converts packaging units into the stocking unit", func(t *testing.T) {
		// offer sells by the crate (125 kg), stock is kept in kg
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-crate", "300", "0", "500")), kgOffers())

		err := f.svc.ApplyOrderConfirmed(ctx, events.OrderConfirmedPayload{ProductOfferID: "offer-crate", Quantity: 2})
		require.NoError(t, err)

		cur, _ := f.repo.Get(ctx, "inv-1")
		assert.True(t, cur.AvailableQuantity.Equal(dec("50")), "300 - 2*125, got %s", cur.AvailableQuantity)
	})

	t.Run("insufficient stock never decrements", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "5", "0", "50")), kgOffers())

		err := f.svc.ApplyOrderConfirmed(ctx, events.OrderConfirmedPayload{ProductOfferID: "offer-1", Quantity: 10})
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)

		cur, _ := f.repo.Get(ctx, "inv-1")
		assert.True(t, cur.AvailableQuantity.Equal(dec("5")), "stock untouched")
		assert.Empty(t, f.availability.envs)
		assert.Empty(t, f.lowStock.envs)
	})

	t.Run("low stock fires at the boundary", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "8", "5", "50")), kgOffers())

		require.NoError(t, f.svc.ApplyOrderConfirmed(ctx, events.OrderConfirmedPayload{ProductOfferID: "offer-1", Quantity: 3}))
		assert.Len(t, f.lowStock.envs, 1, "8-3=5 <= threshold 5")
	})

	t.Run("no low stock just above the threshold", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "8", "5", "50")), kgOffers())

		require.NoError(t, f.svc.ApplyOrderConfirmed(ctx, events.OrderConfirmedPayload{ProductOfferID: "offer-1", Quantity: 2}))
		assert.Empty(t, f.lowStock.envs, "8-2=6 > threshold 5")
	})

	t.Run("unknown offer surfaces for the handler to log", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(), kgOffers())

		err := f.svc.ApplyOrderConfirmed(ctx, events.OrderConfirmedPayload{ProductOfferID: "offer-1", Quantity: 1})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestApplyOrderCancelled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("restocks while the order is still pending", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "8", "0", "50")), kgOffers())
		f.orderStatus.statuses["order-1"] = "PENDING"

		err := f.svc.ApplyOrderCancelled(ctx, events.OrderCancelledPayload{
			OrderID: "order-1", ProductOfferID: "offer-1", Quantity: 2,
		})
		require.NoError(t, err)

		cur, _ := f.repo.Get(ctx, "inv-1")
		assert.True(t, cur.AvailableQuantity.Equal(dec("10")))
		assert.Len(t, f.availability.envs, 1)
	})

	t.Run("a cancellation racing a payment loses", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "8", "0", "50")), kgOffers())
		f.orderStatus.statuses["order-1"] = "PAID"

		err := f.svc.ApplyOrderCancelled(ctx, events.OrderCancelledPayload{
			OrderID: "order-1", ProductOfferID: "offer-1", Quantity: 2,
		})
		require.NoError(t, err)

		cur, _ := f.repo.Get(ctx, "inv-1")
		assert.True(t, cur.AvailableQuantity.Equal(dec("8")), "no restock for a paid order")
		assert.Empty(t, f.availability.envs)
	})

	t.Run("restock clamps at maximum capacity", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "49", "0", "50")), kgOffers())
		f.orderStatus.statuses["order-1"] = "PENDING"

		err := f.svc.ApplyOrderCancelled(ctx, events.OrderCancelledPayload{
			OrderID: "order-1", ProductOfferID: "offer-1", Quantity: 5,
		})
		require.NoError(t, err)

		cur, _ := f.repo.Get(ctx, "inv-1")
		assert.True(t, cur.AvailableQuantity.Equal(dec("50")))
	})

	t.Run("status lookup failure surfaces for the handler to log", func(t *testing.T) {
		f := newInvFixture(t, newFakeInvRepo(kgStock("inv-1", "offer-1", "8", "0", "50")), kgOffers())
		f.orderStatus.err = fmt.Errorf("%w: orders service down", domain.ErrServiceUnavailable)

		err := f.svc.ApplyOrderCancelled(ctx, events.OrderCancelledPayload{
			OrderID: "order-1", ProductOfferID: "offer-1", Quantity: 2,
		})
		assert.ErrorIs(t, err, domain.ErrServiceUnavailable)

		cur, _ := f.repo.Get(ctx, "inv-1")
		assert.True(t, cur.AvailableQuantity.Equal(dec("8")), "stock untouched on failure")
	})
}
