// Package api exposes the read-only status surface: current product
// state, snapshot history and the purchase attempt log.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
	"github.com/takuyadev/amazon-price-watcher/internal/store"
)

type Handlers struct {
	store  store.Store
	asins  []models.ASIN
	logger *slog.Logger
}

func NewHandlers(st store.Store, asins []models.ASIN, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:  st,
		asins:  asins,
		logger: logger,
	}
}

// Routes mounts every handler on a fresh router subtree.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{asin}", h.GetProduct)
		r.Get("/products/{asin}/history", h.GetHistory)
		r.Get("/products/{asin}/attempts", h.GetAttempts)
		r.Get("/attempts", h.ListAllAttempts)
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ProductStatus is one watched product's latest observation.
type ProductStatus struct {
	ASIN     models.ASIN      `json:"asin"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
}

// ListProducts returns the latest snapshot for every watched product.
// Products never successfully observed appear with a null snapshot.
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	out := make([]ProductStatus, 0, len(h.asins))
	for _, asin := range h.asins {
		latest, err := h.store.Latest(r.Context(), asin)
		if err != nil {
			h.logger.Error("failed to read latest snapshot", "error", err, "asin", asin)
			h.respondError(w, http.StatusInternalServerError, "failed to read snapshots")
			return
		}
		out = append(out, ProductStatus{ASIN: asin, Snapshot: latest})
	}
	h.respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	asin := models.ASIN(chi.URLParam(r, "asin"))

	latest, err := h.store.Latest(r.Context(), asin)
	if err != nil {
		h.logger.Error("failed to read latest snapshot", "error", err, "asin", asin)
		h.respondError(w, http.StatusInternalServerError, "failed to read snapshot")
		return
	}
	if latest == nil {
		h.respondError(w, http.StatusNotFound, "no snapshots for this product")
		return
	}
	h.respondJSON(w, http.StatusOK, latest)
}

// GetHistory returns the snapshot series, optionally bounded by a
// ?since=RFC3339 query parameter.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	asin := models.ASIN(chi.URLParam(r, "asin"))

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = parsed
	}

	history, err := h.store.History(r.Context(), asin, since)
	if err != nil {
		h.logger.Error("failed to read history", "error", err, "asin", asin)
		h.respondError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if history == nil {
		history = []models.Snapshot{}
	}
	h.respondJSON(w, http.StatusOK, history)
}

func (h *Handlers) GetAttempts(w http.ResponseWriter, r *http.Request) {
	asin := models.ASIN(chi.URLParam(r, "asin"))

	attempts, err := h.store.List(r.Context(), asin)
	if err != nil {
		h.logger.Error("failed to read attempts", "error", err, "asin", asin)
		h.respondError(w, http.StatusInternalServerError, "failed to read attempts")
		return
	}
	if attempts == nil {
		attempts = []models.PurchaseAttempt{}
	}
	h.respondJSON(w, http.StatusOK, attempts)
}

// ListAllAttempts returns the purchase attempts for every watched
// product, newest first within each product.
func (h *Handlers) ListAllAttempts(w http.ResponseWriter, r *http.Request) {
	out := []models.PurchaseAttempt{}
	for _, asin := range h.asins {
		attempts, err := h.store.List(r.Context(), asin)
		if err != nil {
			h.logger.Error("failed to read attempts", "error", err, "asin", asin)
			h.respondError(w, http.StatusInternalServerError, "failed to read attempts")
			return
		}
		out = append(out, attempts...)
	}
	h.respondJSON(w, http.StatusOK, out)
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
