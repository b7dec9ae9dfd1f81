// Package hub implements the relay: a registry of connected stations, the
// authoritative merged snapshot used to bootstrap joiners, and verbatim
// rebroadcast of mutations to everyone except the sender. The hub trusts
// sender payloads and overwrites by id without timestamp comparison; the
// stations' own merge rules deal with staleness.
package hub

import (
	"expvar"
	"log"
	"sync"
	"time"

	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/models"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/protocol"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/store"
)

var (
	messagesTotal   = expvar.NewInt("relay_messages_total")
	messagesDropped = expvar.NewInt("relay_messages_dropped_total")
	framesRejected  = expvar.NewInt("relay_frames_rejected_total")
)

type Client struct {
	ID   string
	Send chan []byte
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	state   *store.Store
}

func New() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		state:   store.New(),
	}
}

// Register adds the client and returns the live client count including it.
func (h *Hub) Register(client *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	return len(h.clients)
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) WelcomeMessage() protocol.Message {
	return protocol.Message{
		Type:        protocol.TypeWelcome,
		Message:     "Connected to QueueMaster Pro Server",
		ClientCount: h.ClientCount(),
		Timestamp:   models.Now(),
	}
}

// SnapshotMessage builds the full-sync payload for a single client.
func (h *Hub) SnapshotMessage() protocol.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return protocol.Message{
		Type:             protocol.TypeSync,
		Tickets:          h.state.Tickets(),
		Categories:       h.state.Categories(),
		Tellers:          h.state.Tellers(),
		AdminAccounts:    h.state.AdminAccounts(),
		DailyResetTime:   h.state.ResetEpoch(),
		CategoryCounters: h.state.Counters(),
		Timestamp:        models.Now(),
	}
}

// HandleFrame processes one inbound frame from a station: merge into the
// snapshot where the type carries state, then rebroadcast to every other
// client. Malformed frames are dropped without touching the connection.
func (h *Hub) HandleFrame(sender *Client, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		framesRejected.Add(1)
		log.Printf("drop frame client=%s err=%v", sender.ID, err)
		return
	}
	messagesTotal.Add(1)

	switch msg.Type {
	case protocol.TypePing:
		h.sendTo(sender, protocol.Message{Type: protocol.TypePong, Timestamp: models.Now()})

	case protocol.TypeRequestSync:
		h.sendTo(sender, h.SnapshotMessage())

	case protocol.TypeAnnounce:
		h.broadcastMessage(protocol.Message{
			Type:          protocol.TypeAnnounce,
			TicketNumber:  msg.TicketNumber,
			CounterNumber: msg.CounterNumber,
			Timestamp:     models.Now(),
		}, sender.ID)

	case protocol.TypeTicketUpdate:
		h.withState(func() { h.state.UpsertTicket(*msg.Ticket) })
		h.broadcastRaw(raw, sender.ID)

	case protocol.TypeTellerUpdate:
		h.withState(func() { h.state.UpsertTeller(*msg.Teller) })
		h.broadcastRaw(raw, sender.ID)

	case protocol.TypeCategoryUpdate:
		h.withState(func() { h.state.UpsertCategory(*msg.Category) })
		h.broadcastRaw(raw, sender.ID)

	case protocol.TypeAdminAccountUpdate:
		h.withState(func() { h.state.UpsertAdminAccount(*msg.Account) })
		h.broadcastRaw(raw, sender.ID)

	case protocol.TypeCounterUpdate:
		h.withState(func() {
			if msg.Count > h.state.Counter(msg.CategoryID) {
				h.state.SetCounter(msg.CategoryID, msg.Count)
			}
		})
		h.broadcastRaw(raw, sender.ID)

	case protocol.TypeDailyReset:
		h.withState(func() {
			h.state.SetResetEpoch(msg.ResetTime)
			h.state.ReplaceCounters(msg.CategoryCounters)
			h.state.ReplaceTickets(msg.Tickets)
		})
		h.broadcastRaw(raw, sender.ID)

	default:
		// sync/welcome/pong never originate from stations; ignore.
	}
}

// SweepExpiredTickets drops tickets older than the retention window from the
// snapshot and returns how many were removed. This runs independently of any
// station-side reset logic.
func (h *Hub) SweepExpiredTickets(retention time.Duration) int {
	cutoff := time.Now().Add(-retention).UnixMilli()
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for _, ticket := range h.state.Tickets() {
		if ticket.CreatedAt < cutoff {
			h.state.RemoveTicket(ticket.ID)
			removed++
		}
	}
	return removed
}

func (h *Hub) withState(apply func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	apply()
}

func (h *Hub) sendTo(client *Client, msg protocol.Message) {
	raw, err := msg.Encode()
	if err != nil {
		log.Printf("encode %s: %v", msg.Type, err)
		return
	}
	select {
	case client.Send <- raw:
	default:
		messagesDropped.Add(1)
		log.Printf("drop message for client %s", client.ID)
	}
}

func (h *Hub) broadcastMessage(msg protocol.Message, exceptID string) {
	raw, err := msg.Encode()
	if err != nil {
		log.Printf("encode %s: %v", msg.Type, err)
		return
	}
	h.broadcastRaw(raw, exceptID)
}

func (h *Hub) broadcastRaw(raw []byte, exceptID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.ID == exceptID {
			continue
		}
		select {
		case client.Send <- raw:
		default:
			messagesDropped.Add(1)
			log.Printf("drop message for client %s", client.ID)
		}
	}
}
