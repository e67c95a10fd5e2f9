// Package clients holds the synchronous query clients for the external
// collaborators (catalog, identity) and the cross-service lookups the saga's
// guards depend on. All calls are bounded by the client timeout and surface
// ErrServiceUnavailable on transport failure, so a slow collaborator can
// never wedge order creation or an event handler.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agrimart/fulfillment/internal/domain"
)

type User struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Address  string `json:"address"`
	Role     string `json:"role"`
}

type ProductOffer struct {
	ID            string          `json:"id"`
	ProducerID    string          `json:"producer_id"`
	PackagingSize decimal.Decimal `json:"packaging_size"`
	Unit          string          `json:"unit"`
	PriceCents    int64           `json:"price_cents"`
	IsAvailable   bool            `json:"is_available"`
}

func getJSON(ctx context.Context, hc *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrServiceUnavailable, err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, rawURL)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: %s returned %d", domain.ErrServiceUnavailable, rawURL, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrServiceUnavailable, rawURL, err)
	}
	return nil
}

// Catalog queries product offers.
type Catalog struct {
	base string
	hc   *http.Client
}

func NewCatalog(baseURL string, timeout time.Duration) *Catalog {
	return &Catalog{base: baseURL, hc: &http.Client{Timeout: timeout}}
}

func (c *Catalog) ProductOffer(ctx context.Context, id string) (ProductOffer, error) {
	var offer ProductOffer
	err := getJSON(ctx, c.hc, fmt.Sprintf("%s/offers/%s", c.base, url.PathEscape(id)), &offer)
	return offer, err
}

// OfferExists distinguishes "gone from the catalog" from lookup failure.
func (c *Catalog) OfferExists(ctx context.Context, id string) (bool, error) {
	_, err := c.ProductOffer(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Identity queries users.
type Identity struct {
	base string
	hc   *http.Client
}

func NewIdentity(baseURL string, timeout time.Duration) *Identity {
	return &Identity{base: baseURL, hc: &http.Client{Timeout: timeout}}
}

func (c *Identity) User(ctx context.Context, id string) (User, error) {
	var u User
	err := getJSON(ctx, c.hc, fmt.Sprintf("%s/users/%s", c.base, url.PathEscape(id)), &u)
	return u, err
}

// Orders queries the order service for authoritative status. The cancellation
// handler's still-pending guard runs through this.
type Orders struct {
	base string
	hc   *http.Client
}

func NewOrders(baseURL string, timeout time.Duration) *Orders {
	return &Orders{base: baseURL, hc: &http.Client{Timeout: timeout}}
}

func (c *Orders) Status(ctx context.Context, orderID string) (string, error) {
	var body struct {
		Status string `json:"status"`
	}
	err := getJSON(ctx, c.hc, fmt.Sprintf("%s/orders/%s/status", c.base, url.PathEscape(orderID)), &body)
	return body.Status, err
}

// Stock queries the inventory service's non-binding sufficiency hint.
type Stock struct {
	base string
	hc   *http.Client
}

func NewStock(baseURL string, timeout time.Duration) *Stock {
	return &Stock{base: baseURL, hc: &http.Client{Timeout: timeout}}
}

func (c *Stock) Validate(ctx context.Context, productOfferID string, quantity int) (bool, error) {
	var body struct {
		Sufficient bool `json:"sufficient"`
	}
	u := fmt.Sprintf("%s/stock/validate?product_offer_id=%s&quantity=%d",
		c.base, url.QueryEscape(productOfferID), quantity)
	if err := getJSON(ctx, c.hc, u, &body); err != nil {
		return false, err
	}
	return body.Sufficient, nil
}
