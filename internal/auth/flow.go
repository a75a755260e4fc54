package auth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/men4u/cds/internal/enum"
	"github.com/men4u/cds/internal/session"
	"github.com/men4u/cds/internal/upstream"
)

// Flow states. LoggedOut and Expired accept a new login exactly like
// Anonymous; they exist so the frontend can tell a forced teardown apart
// from a fresh start.
type State string

const (
	StateAnonymous     State = "ANONYMOUS"
	StateAwaitingOTP   State = "AWAITING_OTP"
	StateAuthenticated State = "AUTHENTICATED"
	StateLoggedOut     State = "LOGGED_OUT"
	StateExpired       State = "EXPIRED"
)

var (
	ErrInvalidMobile  = errors.New("mobile must be 10 digits starting with 6-9")
	ErrInvalidOTP     = errors.New("otp must be exactly 4 digits")
	ErrNotAwaitingOTP = errors.New("no OTP request in progress")
	ErrRoleNotAllowed = errors.New("only cds and manager users can run a display")
	ErrResendCooldown = errors.New("resend requested before cooldown elapsed")
)

var (
	mobilePattern = regexp.MustCompile(`^[6-9]\d{9}$`)
	otpPattern    = regexp.MustCompile(`^\d{4}$`)
)

const deviceModel = "cds-server"

// OTPClient is the slice of the upstream client the flow needs.
// Satisfied by *upstream.Client; narrow interface for testability.
type OTPClient interface {
	Login(ctx context.Context, mobile string) (upstream.LoginResponse, error)
	VerifyOTP(ctx context.Context, req upstream.VerifyOTPRequest) (upstream.VerifyOTPResponse, error)
	Logout(ctx context.Context, req upstream.LogoutRequest) error
}

// Flow drives the login lifecycle: ANONYMOUS → AWAITING_OTP →
// AUTHENTICATED → (LOGGED_OUT | EXPIRED). It owns writes to the session
// store; everything else only reads it.
type Flow struct {
	client   OTPClient
	store    session.Store
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	state    State
	mobile   string
	lastSent time.Time
}

func NewFlow(client OTPClient, store session.Store, cooldown time.Duration) *Flow {
	f := &Flow{
		client:   client,
		store:    store,
		cooldown: cooldown,
		now:      time.Now,
		state:    StateAnonymous,
	}
	// A persisted session survives a restart.
	if _, ok := store.Get(); ok {
		f.state = StateAuthenticated
	}
	return f
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// RequestOTP validates the mobile number locally, then asks upstream to
// send an OTP. Upstream failures leave the state untouched and surface the
// backend's error verbatim.
func (f *Flow) RequestOTP(ctx context.Context, mobile string) (string, error) {
	if !mobilePattern.MatchString(mobile) {
		return "", ErrInvalidMobile
	}

	resp, err := f.client.Login(ctx, mobile)
	if err != nil {
		return "", err
	}
	if resp.Role != enum.RoleCDS && resp.Role != enum.RoleManager {
		return "", ErrRoleNotAllowed
	}

	f.mu.Lock()
	f.state = StateAwaitingOTP
	f.mobile = mobile
	f.lastSent = f.now()
	f.mu.Unlock()

	return resp.Detail, nil
}

// ResendOTP re-sends the code to the mobile currently awaiting
// verification. Before the cooldown elapses it is a no-op: no upstream
// call is made.
func (f *Flow) ResendOTP(ctx context.Context) (string, error) {
	f.mu.Lock()
	if f.state != StateAwaitingOTP {
		f.mu.Unlock()
		return "", ErrNotAwaitingOTP
	}
	if f.now().Sub(f.lastSent) < f.cooldown {
		f.mu.Unlock()
		return "", ErrResendCooldown
	}
	mobile := f.mobile
	f.mu.Unlock()

	resp, err := f.client.Login(ctx, mobile)
	if err != nil {
		// Resend failures surface an error but do not change state.
		return "", err
	}

	f.mu.Lock()
	f.lastSent = f.now()
	f.mu.Unlock()
	return resp.Detail, nil
}

// VerifyOTP completes authentication. On success the session record is
// persisted; on failure the flow stays at AWAITING_OTP so the user can
// retry or resend.
func (f *Flow) VerifyOTP(ctx context.Context, otp string) (session.Record, error) {
	f.mu.Lock()
	if f.state != StateAwaitingOTP {
		f.mu.Unlock()
		return session.Record{}, ErrNotAwaitingOTP
	}
	mobile := f.mobile
	f.mu.Unlock()

	if !otpPattern.MatchString(otp) {
		return session.Record{}, ErrInvalidOTP
	}

	deviceID := uuid.NewString()
	fcmToken := uuid.NewString()
	resp, err := f.client.VerifyOTP(ctx, upstream.VerifyOTPRequest{
		Mobile:      mobile,
		OTP:         otp,
		DeviceID:    deviceID,
		DeviceModel: deviceModel,
		FCMToken:    fcmToken,
		AppType:     enum.AppType,
	})
	if err != nil {
		return session.Record{}, err
	}

	rec := session.Record{
		Name:        resp.Name,
		UserID:      resp.UserID,
		OwnerID:     resp.OwnerID,
		OutletID:    resp.OutletID,
		Role:        resp.Role,
		AccessToken: resp.AccessToken,
		DeviceID:    deviceID,
		DeviceToken: fcmToken,
		ExpiresAt:   resp.ExpiresAt,
	}
	if rec.OwnerID == 0 {
		// Older backends omit owner_id; the CDS user is the owner then.
		rec.OwnerID = resp.UserID
	}
	if err := f.store.Set(rec); err != nil {
		return session.Record{}, err
	}

	f.mu.Lock()
	f.state = StateAuthenticated
	f.mobile = ""
	f.mu.Unlock()

	return rec, nil
}

// Logout notifies upstream best-effort, then always clears the session.
func (f *Flow) Logout(ctx context.Context) {
	if rec, ok := f.store.Get(); ok {
		_ = f.client.Logout(ctx, upstream.LogoutRequest{
			UserID:      rec.UserID,
			Role:        rec.Role,
			App:         enum.AppType,
			DeviceToken: rec.DeviceToken,
		})
	}
	f.mu.Lock()
	f.state = StateLoggedOut
	f.mu.Unlock()

	// State changes first so store subscribers observing the cleared
	// event see LOGGED_OUT, not a stale AUTHENTICATED.
	_ = f.store.Clear()
}

// Expire tears the session down after an upstream authorization failure.
// Store subscribers (pollers, the websocket hub) are notified through the
// store's cleared event; this can fire asynchronously mid-poll.
func (f *Flow) Expire() {
	f.mu.Lock()
	f.state = StateExpired
	f.mu.Unlock()

	_ = f.store.Clear()
}
