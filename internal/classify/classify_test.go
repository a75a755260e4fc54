package classify

import (
	"reflect"
	"testing"

	"github.com/men4u/cds/internal/enum"
	"github.com/men4u/cds/internal/upstream"
)

func feedOrder(id int64, statuses ...string) upstream.FeedOrder {
	o := upstream.FeedOrder{OrderID: id, OrderNumber: "N", OutletName: "Kiwari Outlet"}
	for _, s := range statuses {
		o.MenuDetails = append(o.MenuDetails, upstream.MenuItem{Name: "item", Status: s})
	}
	return o
}

func feed(placed, cooking, paid []upstream.FeedOrder) *upstream.OrderListResponse {
	return &upstream.OrderListResponse{
		PlacedOrders:  &placed,
		CookingOrders: &cooking,
		PaidOrders:    &paid,
	}
}

func bucketIDs(orders []Order, bucket string) []int64 {
	var ids []int64
	for _, o := range orders {
		if o.Bucket == bucket {
			ids = append(ids, o.OrderID)
		}
	}
	return ids
}

func TestSimplePolicyPreservesEveryOrderOnce(t *testing.T) {
	resp := feed(
		[]upstream.FeedOrder{feedOrder(1), feedOrder(2)},
		[]upstream.FeedOrder{feedOrder(3, "cooking")},
		[]upstream.FeedOrder{feedOrder(4, "paid"), feedOrder(5)},
	)

	out, err := Classify(resp, PolicySimple)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("got %d orders, want 5", len(out))
	}
	if got := bucketIDs(out, enum.BucketPlaced); !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Errorf("placed = %v", got)
	}
	if got := bucketIDs(out, enum.BucketOngoing); !reflect.DeepEqual(got, []int64{3}) {
		t.Errorf("ongoing = %v", got)
	}
	if got := bucketIDs(out, enum.BucketCompleted); !reflect.DeepEqual(got, []int64{4, 5}) {
		t.Errorf("completed = %v", got)
	}
}

func TestRefinedSplitsCookingOrderAcrossBuckets(t *testing.T) {
	resp := feed(nil, []upstream.FeedOrder{feedOrder(1, "cooking", "served")}, nil)

	out, err := Classify(resp, PolicyRefined)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d orders, want 2 (one per bucket)", len(out))
	}

	ongoing := out[0]
	completed := out[1]
	if ongoing.Bucket != enum.BucketOngoing || completed.Bucket != enum.BucketCompleted {
		t.Fatalf("buckets = %s, %s", ongoing.Bucket, completed.Bucket)
	}
	if ongoing.OrderID != 1 || completed.OrderID != 1 {
		t.Fatal("both copies must keep the source order id")
	}
	if len(ongoing.Items) != 1 || ongoing.Items[0].Status != "cooking" {
		t.Fatalf("ongoing items = %+v", ongoing.Items)
	}
	if len(completed.Items) != 1 || completed.Items[0].Status != "served" {
		t.Fatalf("completed items = %+v", completed.Items)
	}
}

func TestRefinedStatusMatchingIsCaseInsensitive(t *testing.T) {
	resp := feed(nil, []upstream.FeedOrder{feedOrder(1, "COOKING", "Served")}, nil)

	out, err := Classify(resp, PolicyRefined)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d orders, want 2", len(out))
	}
}

func TestRefinedDropsEmptyIntersection(t *testing.T) {
	// All items served: no ongoing copy should be rendered.
	resp := feed(nil, []upstream.FeedOrder{feedOrder(1, "served", "ready")}, nil)

	out, err := Classify(resp, PolicyRefined)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d orders, want 1", len(out))
	}
	if out[0].Bucket != enum.BucketCompleted || len(out[0].Items) != 2 {
		t.Fatalf("unexpected order: %+v", out[0])
	}
}

func TestRefinedPaidFallsBackToAllItems(t *testing.T) {
	// A paid order whose items carry unmatched statuses still renders with
	// its full item list.
	resp := feed(nil, nil, []upstream.FeedOrder{feedOrder(9, "weird", "unknown")})

	out, err := Classify(resp, PolicyRefined)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d orders, want 1", len(out))
	}
	if out[0].Bucket != enum.BucketCompleted || len(out[0].Items) != 2 {
		t.Fatalf("unexpected order: %+v", out[0])
	}
}

func TestRefinedPaidMatchesPaidStatus(t *testing.T) {
	resp := feed(nil, nil, []upstream.FeedOrder{feedOrder(9, "paid", "weird")})

	out, err := Classify(resp, PolicyRefined)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(out[0].Items) != 1 || out[0].Items[0].Status != "paid" {
		t.Fatalf("items = %+v", out[0].Items)
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	resp := feed(
		[]upstream.FeedOrder{feedOrder(1)},
		[]upstream.FeedOrder{feedOrder(2, "cooking", "served"), feedOrder(3, "processing")},
		[]upstream.FeedOrder{feedOrder(4, "paid")},
	)

	first, err := Classify(resp, PolicyRefined)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	second, err := Classify(resp, PolicyRefined)
	if err != nil {
		t.Fatalf("classify again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("re-classifying the same payload changed the result")
	}
}

func TestClassifyMalformedFeed(t *testing.T) {
	resp := &upstream.OrderListResponse{}
	if _, err := Classify(resp, PolicyRefined); err != ErrMalformedFeed {
		t.Fatalf("err = %v, want ErrMalformedFeed", err)
	}
}

func TestEmptyArraysAreNotMalformed(t *testing.T) {
	resp := feed(nil, nil, nil)
	out, err := Classify(resp, PolicyRefined)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %d orders, want 0", len(out))
	}
}

func TestOutletNamePrefersPlaced(t *testing.T) {
	placed := []upstream.FeedOrder{{OrderID: 1, OutletName: "First"}}
	paid := []upstream.FeedOrder{{OrderID: 2, OutletName: "Second"}}
	resp := &upstream.OrderListResponse{PlacedOrders: &placed, PaidOrders: &paid}

	if got := OutletName(resp); got != "First" {
		t.Fatalf("outlet name = %q, want First", got)
	}
}

func TestParsePolicyDefaultsToRefined(t *testing.T) {
	if ParsePolicy("simple") != PolicySimple {
		t.Fatal("simple not recognized")
	}
	if ParsePolicy("") != PolicyRefined || ParsePolicy("nonsense") != PolicyRefined {
		t.Fatal("unknown policies must default to refined")
	}
}
