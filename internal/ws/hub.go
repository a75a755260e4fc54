package ws

import (
	"encoding/json"
	"sync"
)

// Event types pushed to display clients.
const (
	EventOrdersSnapshot = "orders.snapshot"
	EventSessionExpired = "session.expired"
	EventSessionEnded   = "session.ended"
)

// Event is a message pushed to display clients.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// outletEvent routes an event to one outlet's room.
type outletEvent struct {
	OutletID int64
	Event    Event
}

// Hub maintains the set of connected displays, grouped into per-outlet
// rooms. Opening the first connection in a room selects that outlet;
// closing the last one unselects it.
type Hub struct {
	rooms map[int64]map[*Client]bool

	register     chan *Client
	unregister   chan *Client
	broadcast    chan *outletEvent
	broadcastAll chan Event

	// Room lifecycle hooks, wired to the poller manager.
	onRoomOpen  func(outletID int64)
	onRoomClose func(outletID int64)

	mu sync.RWMutex
}

// NewHub creates a hub. The hooks fire when an outlet room gains its first
// client and loses its last one; either may be nil.
func NewHub(onRoomOpen, onRoomClose func(outletID int64)) *Hub {
	if onRoomOpen == nil {
		onRoomOpen = func(int64) {}
	}
	if onRoomClose == nil {
		onRoomClose = func(int64) {}
	}
	return &Hub{
		rooms:        make(map[int64]map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan *outletEvent, 256),
		broadcastAll: make(chan Event, 16),
		onRoomOpen:   onRoomOpen,
		onRoomClose:  onRoomClose,
	}
}

// Run starts the hub's main loop.
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			first := h.rooms[client.outletID] == nil
			if first {
				h.rooms[client.outletID] = make(map[*Client]bool)
			}
			h.rooms[client.outletID][client] = true
			h.mu.Unlock()
			if first {
				h.onRoomOpen(client.outletID)
			}

		case client := <-h.unregister:
			h.remove(client)

		case event := <-h.broadcast:
			// Marshal once per room delivery.
			message, err := json.Marshal(event.Event)
			if err != nil {
				continue
			}
			h.deliver(event.OutletID, message)

		case event := <-h.broadcastAll:
			message, err := json.Marshal(event)
			if err != nil {
				continue
			}
			h.mu.RLock()
			outletIDs := make([]int64, 0, len(h.rooms))
			for outletID := range h.rooms {
				outletIDs = append(outletIDs, outletID)
			}
			h.mu.RUnlock()
			for _, outletID := range outletIDs {
				h.deliver(outletID, message)
			}
		}
	}
}

// deliver sends to every client in a room. Clients whose send buffer is
// full are dropped through the same removal path unregistration uses, so
// the close hook stays ordered with later registrations in the hub loop.
func (h *Hub) deliver(outletID int64, message []byte) {
	h.mu.RLock()
	var dropped []*Client
	for client := range h.rooms[outletID] {
		select {
		case client.send <- message:
		default:
			dropped = append(dropped, client)
		}
	}
	h.mu.RUnlock()
	for _, client := range dropped {
		h.remove(client)
	}
}

// remove takes a client out of its room, closing the room when it was the
// last one. Only the hub loop calls this, which keeps the open and close
// hooks strictly ordered.
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	last := false
	if clients, ok := h.rooms[client.outletID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			close(client.send)
			if len(clients) == 0 {
				delete(h.rooms, client.outletID)
				last = true
			}
		}
	}
	h.mu.Unlock()
	if last {
		h.onRoomClose(client.outletID)
	}
}

// BroadcastToOutlet sends an event to every display showing one outlet.
func (h *Hub) BroadcastToOutlet(outletID int64, event Event) {
	h.broadcast <- &outletEvent{OutletID: outletID, Event: event}
}

// BroadcastAll sends an event to every connected display, used for
// session teardown notifications.
func (h *Hub) BroadcastAll(event Event) {
	h.broadcastAll <- event
}
