package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/men4u/cds/internal/enum"
)

// Record is the persisted auth session. It mirrors what the upstream
// verify_otp response gives us, plus the device id we registered with.
type Record struct {
	Name        string `json:"name"`
	UserID      int64  `json:"user_id"`
	OwnerID     int64  `json:"owner_id"`
	OutletID    int64  `json:"outlet_id"`
	Role        string `json:"role"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
	DeviceToken string `json:"device_token"`
	ExpiresAt   string `json:"expires_at"`
}

// Filter is the date range applied to the order feed. Start/End are only
// set for the custom range (YYYY-MM-DD).
type Filter struct {
	Type  string `json:"type"`
	Start string `json:"start_date,omitempty"`
	End   string `json:"end_date,omitempty"`
}

// DefaultFilter is what a fresh display starts with.
func DefaultFilter() Filter { return Filter{Type: enum.FilterToday} }

type EventType string

const (
	EventUpdated EventType = "updated"
	EventCleared EventType = "cleared"
)

// Event is delivered to subscribers on every session change. Cleared events
// carry a zero Record.
type Event struct {
	Type   EventType
	Record Record
}

// Store holds the single auth session and the selected date filter.
// Components get it injected instead of reaching into shared globals;
// Subscribe replaces the browser's ad-hoc logout event broadcast.
type Store interface {
	Get() (Record, bool)
	Set(Record) error
	Clear() error
	Filter() Filter
	SetFilter(Filter) error
	Subscribe(func(Event))
}

// state is the on-disk shape. The filter is persisted alongside the session
// and restored on restart; selecting a new outlet does not reset it.
type state struct {
	Session *Record `json:"session"`
	Filter  Filter  `json:"date_filter"`
}

// FileStore persists the session as a single JSON file, the server-side
// analogue of browser localStorage. Writes go through a temp file + rename
// so a crash never leaves a torn record.
type FileStore struct {
	path string

	mu   sync.RWMutex
	st   state
	subs []func(Event)
}

var _ Store = (*FileStore)(nil)

// NewFileStore loads any previously persisted state from path. A missing
// file is a fresh anonymous store, not an error.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, st: state{Filter: DefaultFilter()}}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if err := json.Unmarshal(b, &s.st); err != nil {
		// A corrupt file should not brick the display; start anonymous.
		s.st = state{Filter: DefaultFilter()}
		return s, nil
	}
	if s.st.Filter.Type == "" {
		s.st.Filter = DefaultFilter()
	}
	return s, nil
}

func (s *FileStore) Get() (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.st.Session == nil {
		return Record{}, false
	}
	return *s.st.Session, true
}

func (s *FileStore) Set(rec Record) error {
	s.mu.Lock()
	s.st.Session = &rec
	err := s.persistLocked()
	subs := s.subsCopyLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	notify(subs, Event{Type: EventUpdated, Record: rec})
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	s.st.Session = nil
	err := s.persistLocked()
	subs := s.subsCopyLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	notify(subs, Event{Type: EventCleared})
	return nil
}

func (s *FileStore) Filter() Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.Filter
}

func (s *FileStore) SetFilter(f Filter) error {
	if !enum.ValidFilter(f.Type) {
		return fmt.Errorf("invalid date filter %q", f.Type)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.Filter = f
	return s.persistLocked()
}

func (s *FileStore) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *FileStore) persistLocked() error {
	b, err := json.MarshalIndent(s.st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (s *FileStore) subsCopyLocked() []func(Event) {
	out := make([]func(Event), len(s.subs))
	copy(out, s.subs)
	return out
}

// notify runs outside the store lock so subscribers can call back into the
// store without deadlocking.
func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
