package upstream

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// --- Auth ---

type LoginRequest struct {
	Mobile  string `json:"mobile"`
	AppType string `json:"app_type"`
}

type LoginResponse struct {
	Role   string `json:"role"`
	Detail string `json:"detail"`
}

type VerifyOTPRequest struct {
	Mobile      string `json:"mobile"`
	OTP         string `json:"otp"`
	DeviceID    string `json:"device_id"`
	DeviceModel string `json:"device_model"`
	FCMToken    string `json:"fcm_token"`
	AppType     string `json:"app_type"`
}

type VerifyOTPResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
	OwnerID     int64  `json:"owner_id"`
	OutletID    int64  `json:"outlet_id"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
	Name        string `json:"name"`
}

// LogoutRequest goes to the legacy common_api base. Response is ignored
// beyond the status line; logout is best-effort.
type LogoutRequest struct {
	UserID      int64  `json:"user_id"`
	Role        string `json:"role"`
	App         string `json:"app"`
	DeviceToken string `json:"device_token"`
}

// --- Outlets ---

type OutletListRequest struct {
	OwnerID   int64  `json:"owner_id"`
	AppSource string `json:"app_source"`
	OutletID  int64  `json:"outlet_id"`
}

type Outlet struct {
	OutletID   int64  `json:"outlet_id"`
	Name       string `json:"name"`
	OutletCode string `json:"outlet_code"`
	Address    string `json:"address"`
	OwnerName  string `json:"owner_name"`
	IsActive   bool   `json:"is_active"`
}

type outletListResponse struct {
	Outlets []Outlet `json:"outlets"`
}

// --- Order feed ---

type OrderListRequest struct {
	OutletID   int64  `json:"outlet_id"`
	DateFilter string `json:"date_filter"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
	OwnerID    int64  `json:"owner_id"`
	AppSource  string `json:"app_source"`
}

// OrderListResponse is the raw polled feed. The three arrays are pointers
// so a missing key is distinguishable from an empty list; a response where
// all three are absent is structurally malformed.
type OrderListResponse struct {
	PlacedOrders  *[]FeedOrder  `json:"placed_orders"`
	CookingOrders *[]FeedOrder  `json:"cooking_orders"`
	PaidOrders    *[]FeedOrder  `json:"paid_orders"`
	Subscription  *Subscription `json:"subscription_details"`
}

// Malformed reports whether the feed is missing all three order arrays.
func (r *OrderListResponse) Malformed() bool {
	return r.PlacedOrders == nil && r.CookingOrders == nil && r.PaidOrders == nil
}

type FeedOrder struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	OutletName  string          `json:"outlet_name"`
	TableNumber TableNumbers    `json:"table_number"`
	MenuDetails []MenuItem      `json:"menu_details"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	DateTime    string          `json:"date_time"`
}

type MenuItem struct {
	Name   string `json:"menu_name"`
	Status string `json:"status"`
}

// TableNumbers tolerates the feed sending either an array of table labels
// or a single bare string.
type TableNumbers []string

func (t *TableNumbers) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*t = list
		return nil
	}
	var single string
	if err := json.Unmarshal(b, &single); err != nil {
		// Anything else (null, number) renders as no tables.
		*t = nil
		return nil
	}
	if single == "" {
		*t = nil
		return nil
	}
	*t = []string{single}
	return nil
}

type Subscription struct {
	SubscriptionID int64           `json:"subscription_id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Tenure         string          `json:"tenure"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	Status         bool            `json:"status"`
}
