// Package classify turns the raw upstream order feed into the flat,
// bucket-tagged order list the display columns render.
package classify

import (
	"errors"
	"strings"

	"github.com/men4u/cds/internal/enum"
	"github.com/men4u/cds/internal/upstream"
	"github.com/shopspring/decimal"
)

// ErrMalformedFeed is returned when a feed response is missing all three
// order arrays. Callers keep the previous snapshot and surface a retryable
// banner; they must not blank the display.
var ErrMalformedFeed = errors.New("malformed order feed: no order arrays present")

// Policy selects how cooking/paid orders map to buckets. There is one
// classification function; the policy is a flag, not a parallel code path.
type Policy string

const (
	// PolicySimple tags each feed array with its bucket as-is.
	PolicySimple Policy = "simple"
	// PolicyRefined additionally splits cooking orders per menu-item status
	// so partially served orders show up in both the ongoing and completed
	// columns, each copy carrying only its matching items.
	PolicyRefined Policy = "refined"
)

// ParsePolicy maps a config string to a Policy, defaulting to refined.
func ParsePolicy(s string) Policy {
	if Policy(s) == PolicySimple {
		return PolicySimple
	}
	return PolicyRefined
}

// Order is one display card. A source order split across buckets under the
// refined policy yields one Order per bucket.
type Order struct {
	OrderID      int64           `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	TableNumbers []string        `json:"table_numbers"`
	Items        []Item          `json:"items"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	PlacedAt     string          `json:"placed_at"`
	Bucket       string          `json:"bucket"`
}

type Item struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Item status sets driving the refined policy. Matching is case-insensitive.
var (
	ongoingStatuses = statusSet(
		enum.ItemStatusCooking, enum.ItemStatusOngoing, enum.ItemStatusProcessing,
	)
	cookingDoneStatuses = statusSet(
		enum.ItemStatusServed, enum.ItemStatusReady, enum.ItemStatusCompleted,
	)
	paidDoneStatuses = statusSet(
		enum.ItemStatusServed, enum.ItemStatusReady, enum.ItemStatusCompleted, enum.ItemStatusPaid,
	)
)

func statusSet(statuses ...string) map[string]bool {
	m := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		m[strings.ToLower(s)] = true
	}
	return m
}

// Classify buckets a feed response. It is a pure function of the payload:
// the same input always yields the same output, and each poll's result
// fully replaces the previous one.
func Classify(resp *upstream.OrderListResponse, policy Policy) ([]Order, error) {
	if resp.Malformed() {
		return nil, ErrMalformedFeed
	}

	placed := orders(resp.PlacedOrders)
	cooking := orders(resp.CookingOrders)
	paid := orders(resp.PaidOrders)

	out := make([]Order, 0, len(placed)+len(cooking)+len(paid))

	for _, o := range placed {
		out = append(out, tag(o, enum.BucketPlaced, o.MenuDetails))
	}

	if policy == PolicySimple {
		for _, o := range cooking {
			out = append(out, tag(o, enum.BucketOngoing, o.MenuDetails))
		}
		for _, o := range paid {
			out = append(out, tag(o, enum.BucketCompleted, o.MenuDetails))
		}
		return out, nil
	}

	// Refined: split cooking orders by item status. Copies with an empty
	// item intersection are dropped, not rendered as empty cards.
	var completed []Order
	for _, o := range cooking {
		if items := matching(o.MenuDetails, ongoingStatuses); len(items) > 0 {
			out = append(out, tag(o, enum.BucketOngoing, items))
		}
		if items := matching(o.MenuDetails, cookingDoneStatuses); len(items) > 0 {
			completed = append(completed, tag(o, enum.BucketCompleted, items))
		}
	}
	for _, o := range paid {
		items := matching(o.MenuDetails, paidDoneStatuses)
		if len(items) == 0 {
			// Paid orders always render; fall back to the full item list.
			items = o.MenuDetails
		}
		completed = append(completed, tag(o, enum.BucketCompleted, items))
	}

	return append(out, completed...), nil
}

// OutletName pulls the outlet name off the first order found in any array,
// placed first. The feed repeats it per order; an empty feed has none.
func OutletName(resp *upstream.OrderListResponse) string {
	for _, arr := range []*[]upstream.FeedOrder{resp.PlacedOrders, resp.CookingOrders, resp.PaidOrders} {
		if arr == nil {
			continue
		}
		for _, o := range *arr {
			if o.OutletName != "" {
				return o.OutletName
			}
		}
	}
	return ""
}

func orders(arr *[]upstream.FeedOrder) []upstream.FeedOrder {
	if arr == nil {
		return nil
	}
	return *arr
}

func matching(items []upstream.MenuItem, set map[string]bool) []upstream.MenuItem {
	var out []upstream.MenuItem
	for _, it := range items {
		if set[strings.ToLower(it.Status)] {
			out = append(out, it)
		}
	}
	return out
}

func tag(o upstream.FeedOrder, bucket string, items []upstream.MenuItem) Order {
	tagged := Order{
		OrderID:      o.OrderID,
		OrderNumber:  o.OrderNumber,
		TableNumbers: o.TableNumber,
		GrandTotal:   o.GrandTotal,
		PlacedAt:     o.DateTime,
		Bucket:       bucket,
	}
	for _, it := range items {
		tagged.Items = append(tagged.Items, Item{Name: it.Name, Status: it.Status})
	}
	return tagged
}
