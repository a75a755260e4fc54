package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/men4u/cds/internal/auth"
	"github.com/men4u/cds/internal/session"
	"github.com/men4u/cds/internal/upstream"
)

type mockOutletLister struct {
	outlets []upstream.Outlet
	err     error
	gotReq  upstream.OutletListRequest
	gotTok  string
}

func (m *mockOutletLister) OutletList(ctx context.Context, token string, req upstream.OutletListRequest) ([]upstream.Outlet, error) {
	m.gotTok = token
	m.gotReq = req
	return m.outlets, m.err
}

func testFlow(t *testing.T, store session.Store) *auth.Flow {
	t.Helper()
	return auth.NewFlow(&mockOTPClient{}, store, 30*time.Second)
}

func TestOutletList_Success(t *testing.T) {
	store := newTestStore(t)
	store.Set(session.Record{UserID: 42, OwnerID: 7, OutletID: 642, AccessToken: "tok"})

	lister := &mockOutletLister{outlets: []upstream.Outlet{
		{OutletID: 642, Name: "Main Street", IsActive: true},
		{OutletID: 643, Name: "Airport", IsActive: true},
	}}
	h := NewOutletsHandler(lister, store, testFlow(t, store))

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest("GET", "/outlets", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if lister.gotTok != "tok" {
		t.Errorf("access token: got %q", lister.gotTok)
	}
	if lister.gotReq.OwnerID != 7 || lister.gotReq.AppSource != "admin" {
		t.Errorf("request = %+v", lister.gotReq)
	}

	var resp struct {
		Outlets []upstream.Outlet `json:"outlets"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Outlets) != 2 {
		t.Errorf("outlets: got %d, want 2", len(resp.Outlets))
	}
}

func TestOutletList_NoSession(t *testing.T) {
	store := newTestStore(t)
	h := NewOutletsHandler(&mockOutletLister{}, store, testFlow(t, store))

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest("GET", "/outlets", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestOutletList_SessionExpiredUpstreamTearsDown(t *testing.T) {
	// An expired upstream session observed on any authenticated call must
	// clear the store and flip the flow, not just answer 401.
	store := newTestStore(t)
	store.Set(session.Record{UserID: 42, OwnerID: 7, AccessToken: "stale"})
	flow := testFlow(t, store)

	h := NewOutletsHandler(&mockOutletLister{err: upstream.ErrSessionExpired}, store, flow)

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest("GET", "/outlets", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if _, ok := store.Get(); ok {
		t.Error("session record still present after upstream reported it expired")
	}
	if flow.State() != auth.StateExpired {
		t.Errorf("flow state: got %s, want %s", flow.State(), auth.StateExpired)
	}
}
