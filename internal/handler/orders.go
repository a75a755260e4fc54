package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/men4u/cds/internal/classify"
	"github.com/men4u/cds/internal/enum"
	"github.com/men4u/cds/internal/poller"
	"github.com/men4u/cds/internal/session"
	"github.com/men4u/cds/internal/upstream"
)

// OrdersHandler serves bucketed order snapshots and the date filter.
type OrdersHandler struct {
	manager *poller.Manager
	feed    poller.Feed
	store   session.Store
	policy  classify.Policy
	expirer SessionExpirer
}

func NewOrdersHandler(manager *poller.Manager, feed poller.Feed, store session.Store, policy classify.Policy, expirer SessionExpirer) *OrdersHandler {
	return &OrdersHandler{manager: manager, feed: feed, store: store, policy: policy, expirer: expirer}
}

// RegisterOutletRoutes registers the outlet-scoped order endpoints. The
// caller mounts these under /outlets/{oid} behind the outlet access
// middleware.
func (h *OrdersHandler) RegisterOutletRoutes(r chi.Router) {
	r.Get("/orders", h.Snapshot)
	r.Put("/filter", h.SetFilter)
}

type filterRequest struct {
	Type  string `json:"type"`
	Start string `json:"start_date"`
	End   string `json:"end_date"`
}

// Snapshot returns the current bucketed view for an outlet. When a display
// is connected the poller's cached snapshot is served; otherwise a one-shot
// fetch answers the request without starting a poll loop.
func (h *OrdersHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	outletID, err := strconv.ParseInt(chi.URLParam(r, "oid"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid outlet id"})
		return
	}

	if snap, ok := h.manager.Snapshot(outletID); ok {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	rec, ok := h.store.Get()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired"})
		return
	}
	filter := h.store.Filter()

	resp, err := h.feed.OrderListView(r.Context(), rec.AccessToken, upstream.OrderListRequest{
		OutletID:   outletID,
		DateFilter: filter.Type,
		StartDate:  filter.Start,
		EndDate:    filter.End,
		OwnerID:    rec.OwnerID,
		AppSource:  enum.AppSource,
	})
	if err != nil {
		expireOn(err, h.expirer)
		writeFlowError(w, err)
		return
	}

	orders, err := classify.Classify(&resp, h.policy)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "malformed order feed"})
		return
	}

	writeJSON(w, http.StatusOK, poller.Snapshot{
		OutletID:     outletID,
		OutletName:   classify.OutletName(&resp),
		Filter:       filter,
		Orders:       orders,
		Subscription: resp.Subscription,
		FetchedAt:    time.Now(),
	})
}

// SetFilter changes the date range for the order feed. The filter is shared
// by every display and persists across restarts; polled outlets re-fetch
// immediately.
func (h *OrdersHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if !enum.ValidFilter(req.Type) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown date filter"})
		return
	}
	if req.Type == enum.FilterCustom && (req.Start == "" || req.End == "") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "custom filter requires start_date and end_date"})
		return
	}

	filter := session.Filter{Type: req.Type}
	if req.Type == enum.FilterCustom {
		filter.Start = req.Start
		filter.End = req.End
	}
	if err := h.store.SetFilter(filter); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.manager.Refresh()
	writeJSON(w, http.StatusOK, filter)
}

// GetFilter returns the active date filter.
func (h *OrdersHandler) GetFilter(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Filter())
}
