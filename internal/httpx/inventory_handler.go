package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/agrimart/fulfillment/internal/inventory"
)

type InventoryHandler struct {
	Svc *inventory.Service
	Log *zap.Logger
}

func (h *InventoryHandler) Register(r *chi.Mux) {
	r.Post("/inventories", h.create)
	r.Get("/inventories/{id}", h.get)
	r.Patch("/inventories/{id}", h.updateQuantities)
	r.Delete("/inventories/{id}", h.remove)
	r.Get("/stock/validate", h.validateStock)
}

func (h *InventoryHandler) create(w http.ResponseWriter, r *http.Request) {
	var in inventory.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	inv, err := h.Svc.Create(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	inv, err := h.Svc.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InventoryHandler) updateQuantities(w http.ResponseWriter, r *http.Request) {
	var patch inventory.QuantityPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	inv, err := h.Svc.UpdateQuantities(ctx, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *InventoryHandler) remove(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.Remove(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validateStock is the non-binding pre-check the order service may consult
// before creating an order.
func (h *InventoryHandler) validateStock(w http.ResponseWriter, r *http.Request) {
	offerID := r.URL.Query().Get("product_offer_id")
	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if offerID == "" || err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "product_offer_id and quantity required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sufficient, err := h.Svc.ValidateStock(ctx, offerID, qty)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Log.Debug("stock validated", zap.String("product_offer_id", offerID), zap.Int("quantity", qty), zap.Bool("sufficient", sufficient))
	writeJSON(w, http.StatusOK, map[string]bool{"sufficient": sufficient})
}
