package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/men4u/cds/internal/classify"
	"github.com/men4u/cds/internal/poller"
	"github.com/men4u/cds/internal/session"
	"github.com/men4u/cds/internal/upstream"
)

type fakeFeed struct {
	mu    sync.Mutex
	resp  upstream.OrderListResponse
	err   error
	calls []upstream.OrderListRequest
}

func (f *fakeFeed) OrderListView(ctx context.Context, token string, req upstream.OrderListRequest) (upstream.OrderListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.resp, f.err
}

func feedWith(placed ...upstream.FeedOrder) upstream.OrderListResponse {
	empty := []upstream.FeedOrder{}
	return upstream.OrderListResponse{
		PlacedOrders:  &placed,
		CookingOrders: &empty,
		PaidOrders:    &empty,
	}
}

func newOrdersHandler(t *testing.T, feed *fakeFeed) (*OrdersHandler, *poller.Manager, session.Store) {
	t.Helper()
	store := newTestStore(t)
	manager := poller.NewManager(poller.ManagerOptions{
		Feed:     feed,
		Store:    store,
		Policy:   classify.PolicyRefined,
		Interval: time.Hour,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(manager.StopAll)
	return NewOrdersHandler(manager, feed, store, classify.PolicyRefined, testFlow(t, store)), manager, store
}

func outletRequest(method, target, oid string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("oid", oid)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestSnapshot_OneShotFetch(t *testing.T) {
	feed := &fakeFeed{resp: feedWith(upstream.FeedOrder{
		OrderID:     1,
		OrderNumber: "A-001",
		GrandTotal:  decimal.NewFromInt(250),
	})}
	h, _, store := newOrdersHandler(t, feed)
	store.Set(session.Record{UserID: 42, OwnerID: 7, OutletID: 642, AccessToken: "tok"})

	rr := httptest.NewRecorder()
	h.Snapshot(rr, outletRequest("GET", "/outlets/642/orders", "642", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	var snap poller.Snapshot
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.OutletID != 642 {
		t.Errorf("outlet_id: got %d, want 642", snap.OutletID)
	}
	if len(snap.Orders) != 1 || snap.Orders[0].OrderNumber != "A-001" {
		t.Errorf("orders = %+v", snap.Orders)
	}

	feed.mu.Lock()
	defer feed.mu.Unlock()
	if len(feed.calls) != 1 {
		t.Fatalf("feed calls: got %d, want 1", len(feed.calls))
	}
	if feed.calls[0].OutletID != 642 || feed.calls[0].DateFilter != "today" || feed.calls[0].OwnerID != 7 {
		t.Errorf("feed request = %+v", feed.calls[0])
	}
}

func TestSnapshot_ServesPollerCacheWhenSubscribed(t *testing.T) {
	feed := &fakeFeed{resp: feedWith(upstream.FeedOrder{OrderID: 1, OrderNumber: "A-001"})}
	h, manager, store := newOrdersHandler(t, feed)
	store.Set(session.Record{UserID: 42, OwnerID: 7, OutletID: 642, AccessToken: "tok"})

	manager.Subscribe(642)
	defer manager.Unsubscribe(642)

	deadline := time.Now().Add(time.Second)
	for {
		if snap, ok := manager.Snapshot(642); ok && len(snap.Orders) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("poller never produced a snapshot")
		}
		time.Sleep(5 * time.Millisecond)
	}

	feed.mu.Lock()
	before := len(feed.calls)
	feed.mu.Unlock()

	rr := httptest.NewRecorder()
	h.Snapshot(rr, outletRequest("GET", "/outlets/642/orders", "642", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}

	feed.mu.Lock()
	after := len(feed.calls)
	feed.mu.Unlock()
	if after != before {
		t.Error("handler fetched upstream despite an active poller")
	}
}

func TestSnapshot_InvalidOutletID(t *testing.T) {
	h, _, _ := newOrdersHandler(t, &fakeFeed{})

	rr := httptest.NewRecorder()
	h.Snapshot(rr, outletRequest("GET", "/outlets/abc/orders", "abc", nil))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSnapshot_NoSession(t *testing.T) {
	h, _, _ := newOrdersHandler(t, &fakeFeed{})

	rr := httptest.NewRecorder()
	h.Snapshot(rr, outletRequest("GET", "/outlets/642/orders", "642", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestSnapshot_MalformedFeed(t *testing.T) {
	h, _, store := newOrdersHandler(t, &fakeFeed{resp: upstream.OrderListResponse{}})
	store.Set(session.Record{UserID: 42, OwnerID: 7, AccessToken: "tok"})

	rr := httptest.NewRecorder()
	h.Snapshot(rr, outletRequest("GET", "/outlets/642/orders", "642", nil))

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadGateway)
	}
}

func TestSnapshot_OneShotExpiryTearsDown(t *testing.T) {
	feed := &fakeFeed{err: upstream.ErrSessionExpired}
	h, _, store := newOrdersHandler(t, feed)
	store.Set(session.Record{UserID: 42, OwnerID: 7, OutletID: 642, AccessToken: "stale"})

	rr := httptest.NewRecorder()
	h.Snapshot(rr, outletRequest("GET", "/outlets/642/orders", "642", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if _, ok := store.Get(); ok {
		t.Error("session record still present after upstream reported it expired")
	}
}

func TestSetFilter_Valid(t *testing.T) {
	h, _, store := newOrdersHandler(t, &fakeFeed{})

	body, _ := json.Marshal(filterRequest{Type: "last7days"})
	rr := httptest.NewRecorder()
	h.SetFilter(rr, outletRequest("PUT", "/outlets/642/filter", "642", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if f := store.Filter(); f.Type != "last7days" {
		t.Errorf("stored filter: got %q, want last7days", f.Type)
	}
}

func TestSetFilter_UnknownType(t *testing.T) {
	h, _, store := newOrdersHandler(t, &fakeFeed{})

	body, _ := json.Marshal(filterRequest{Type: "fortnight"})
	rr := httptest.NewRecorder()
	h.SetFilter(rr, outletRequest("PUT", "/outlets/642/filter", "642", body))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if f := store.Filter(); f.Type != "today" {
		t.Errorf("filter changed on rejected input: %q", f.Type)
	}
}

func TestSetFilter_CustomRequiresDates(t *testing.T) {
	h, _, _ := newOrdersHandler(t, &fakeFeed{})

	body, _ := json.Marshal(filterRequest{Type: "custom", Start: "2026-08-01"})
	rr := httptest.NewRecorder()
	h.SetFilter(rr, outletRequest("PUT", "/outlets/642/filter", "642", body))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSetFilter_CustomStoresRange(t *testing.T) {
	h, _, store := newOrdersHandler(t, &fakeFeed{})

	body, _ := json.Marshal(filterRequest{Type: "custom", Start: "2026-08-01", End: "2026-08-15"})
	rr := httptest.NewRecorder()
	h.SetFilter(rr, outletRequest("PUT", "/outlets/642/filter", "642", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	f := store.Filter()
	if f.Type != "custom" || f.Start != "2026-08-01" || f.End != "2026-08-15" {
		t.Errorf("stored filter = %+v", f)
	}
}

func TestGetFilter_DefaultsToToday(t *testing.T) {
	h, _, _ := newOrdersHandler(t, &fakeFeed{})

	rr := httptest.NewRecorder()
	h.GetFilter(rr, httptest.NewRequest("GET", "/filter", nil))

	var f session.Filter
	json.NewDecoder(rr.Body).Decode(&f)
	if f.Type != "today" {
		t.Errorf("filter: got %q, want today", f.Type)
	}
}
