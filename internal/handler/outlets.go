package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/men4u/cds/internal/enum"
	"github.com/men4u/cds/internal/session"
	"github.com/men4u/cds/internal/upstream"
)

// OutletLister is the slice of the upstream client the outlet handler
// needs. Satisfied by *upstream.Client; narrow interface for testability.
type OutletLister interface {
	OutletList(ctx context.Context, token string, req upstream.OutletListRequest) ([]upstream.Outlet, error)
}

// SessionExpirer tears the session down after an upstream authorization
// failure. Satisfied by *auth.Flow. Every handler that talks upstream
// triggers it, so a dead session never lingers as AUTHENTICATED.
type SessionExpirer interface {
	Expire()
}

// OutletsHandler serves the outlet picker.
type OutletsHandler struct {
	client  OutletLister
	store   session.Store
	expirer SessionExpirer
}

func NewOutletsHandler(client OutletLister, store session.Store, expirer SessionExpirer) *OutletsHandler {
	return &OutletsHandler{client: client, store: store, expirer: expirer}
}

// RegisterRoutes registers outlet endpoints on the given Chi router.
func (h *OutletsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/outlets", h.List)
}

// List fetches the outlets the logged-in owner can display. A single-outlet
// CDS user gets just its own outlet back.
func (h *OutletsHandler) List(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.store.Get()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired"})
		return
	}

	outlets, err := h.client.OutletList(r.Context(), rec.AccessToken, upstream.OutletListRequest{
		OwnerID:   rec.OwnerID,
		AppSource: enum.AppSource,
		OutletID:  rec.OutletID,
	})
	if err != nil {
		expireOn(err, h.expirer)
		writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"outlets": outlets})
}
