package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/men4u/cds/internal/enum"
)

// ErrSessionExpired marks any upstream response saying the bearer token is
// no longer valid. It is the sole trigger for the forced-logout path.
var ErrSessionExpired = errors.New("upstream session expired")

// sessionInvalidMarker appears in the body detail of expired-session
// responses alongside the 401 status.
const sessionInvalidMarker = "Invalid or inactive session"

// APIError is a non-2xx upstream response that is not a session expiry.
// Detail is surfaced to the user verbatim where the flow requires it.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("upstream error (%d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("upstream error (%d)", e.Status)
}

// Client talks to the order-management REST backend. The v2 API and the
// legacy common_api live on separate base URLs.
type Client struct {
	baseURL   string
	legacyURL string
	http      *http.Client
}

func NewClient(baseURL, legacyURL string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		legacyURL: strings.TrimRight(legacyURL, "/"),
		// The default client never times out; a wedged poll tick would
		// otherwise hang forever.
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// Login requests an OTP for the given mobile number.
func (c *Client) Login(ctx context.Context, mobile string) (LoginResponse, error) {
	var resp LoginResponse
	err := c.post(ctx, c.baseURL+"/v2/common/login", "", LoginRequest{
		Mobile:  mobile,
		AppType: enum.AppType,
	}, &resp)
	return resp, err
}

// VerifyOTP completes the login and returns the upstream session.
func (c *Client) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (VerifyOTPResponse, error) {
	var resp VerifyOTPResponse
	err := c.post(ctx, c.baseURL+"/v2/common/verify_otp", "", req, &resp)
	return resp, err
}

// OutletList returns the outlets selectable by the authenticated owner.
func (c *Client) OutletList(ctx context.Context, token string, req OutletListRequest) ([]Outlet, error) {
	var resp outletListResponse
	if err := c.post(ctx, c.baseURL+"/v2/common/get_outlet_list", token, req, &resp); err != nil {
		return nil, err
	}
	return resp.Outlets, nil
}

// OrderListView fetches the polled CDS/KDS order feed for one outlet.
func (c *Client) OrderListView(ctx context.Context, token string, req OrderListRequest) (OrderListResponse, error) {
	var resp OrderListResponse
	err := c.post(ctx, c.baseURL+"/v2/common/cds_kds_order_listview", token, req, &resp)
	return resp, err
}

// Logout notifies the backend the device session is done. Callers treat
// failures as non-fatal; the local session is cleared regardless.
func (c *Client) Logout(ctx context.Context, req LogoutRequest) error {
	return c.post(ctx, c.legacyURL+"/common_api/logout", "", req, nil)
}

func (c *Client) post(ctx context.Context, url, token string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.asError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) asError(resp *http.Response) error {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	detail := ""
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && len(body.Detail) > 0 {
		// detail is usually a string but some endpoints return objects.
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			detail = s
		} else {
			detail = string(body.Detail)
		}
	}

	if resp.StatusCode == http.StatusUnauthorized || strings.Contains(detail, sessionInvalidMarker) {
		if detail == "" {
			return ErrSessionExpired
		}
		return fmt.Errorf("%s: %w", detail, ErrSessionExpired)
	}
	return &APIError{Status: resp.StatusCode, Detail: detail}
}
