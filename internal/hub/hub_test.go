package hub

import (
	"testing"
	"time"

	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/models"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/protocol"
)

func newTestClient(id string) *Client {
	return &Client{ID: id, Send: make(chan []byte, 16)}
}

func recvMessage(t *testing.T, c *Client) protocol.Message {
	t.Helper()
	select {
	case raw := <-c.Send:
		msg, err := protocol.Decode(raw)
		if err != nil {
			t.Fatalf("decode broadcast: %v", err)
		}
		return msg
	default:
		t.Fatal("expected a message, channel empty")
		return protocol.Message{}
	}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected message for %s: %s", c.ID, raw)
	default:
	}
}

func ticketUpdateFrame(t *testing.T, ticket models.Ticket) []byte {
	t.Helper()
	raw, err := protocol.Message{Type: protocol.TypeTicketUpdate, Ticket: &ticket}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}

func TestRegisterCountsClients(t *testing.T) {
	h := New()
	a := newTestClient("a")
	if got := h.Register(a); got != 1 {
		t.Fatalf("count=%d, want 1", got)
	}
	if got := h.Register(newTestClient("b")); got != 2 {
		t.Fatalf("count=%d, want 2", got)
	}
	h.Unregister(a)
	if got := h.ClientCount(); got != 1 {
		t.Fatalf("count=%d, want 1", got)
	}
}

func TestRebroadcastSkipsSender(t *testing.T) {
	h := New()
	sender := newTestClient("sender")
	other := newTestClient("other")
	h.Register(sender)
	h.Register(other)

	ticket := models.Ticket{ID: "t1", Number: "G-001", CategoryID: "c1", Status: models.StatusWaiting, CreatedAt: 10, LastUpdated: 10}
	h.HandleFrame(sender, ticketUpdateFrame(t, ticket))

	got := recvMessage(t, other)
	if got.Type != protocol.TypeTicketUpdate || got.Ticket.ID != "t1" {
		t.Fatalf("broadcast mangled: %+v", got)
	}
	assertEmpty(t, sender)
}

func TestSnapshotMergesUnconditionally(t *testing.T) {
	h := New()
	sender := newTestClient("sender")
	h.Register(sender)

	// A stale write (older lastUpdated) still overwrites: the hub trusts
	// the sender and leaves conflict resolution to the stations.
	h.HandleFrame(sender, ticketUpdateFrame(t, models.Ticket{ID: "t1", Status: models.StatusCalling, CreatedAt: 5, LastUpdated: 100}))
	h.HandleFrame(sender, ticketUpdateFrame(t, models.Ticket{ID: "t1", Status: models.StatusWaiting, CreatedAt: 5, LastUpdated: 50}))

	snap := h.SnapshotMessage()
	if len(snap.Tickets) != 1 {
		t.Fatalf("tickets=%d, want 1", len(snap.Tickets))
	}
	if snap.Tickets[0].Status != models.StatusWaiting || snap.Tickets[0].LastUpdated != 50 {
		t.Fatalf("last write did not win: %+v", snap.Tickets[0])
	}
}

func TestCounterUpdateKeepsMax(t *testing.T) {
	h := New()
	sender := newTestClient("sender")
	h.Register(sender)

	frame := func(count int) []byte {
		raw, _ := protocol.Message{Type: protocol.TypeCounterUpdate, CategoryID: "c1", Count: count}.Encode()
		return raw
	}
	h.HandleFrame(sender, frame(5))
	h.HandleFrame(sender, frame(3)) // lower count must not regress

	if got := h.SnapshotMessage().CategoryCounters["c1"]; got != 5 {
		t.Fatalf("counter=%d, want 5", got)
	}
}

func TestDailyResetReplacesState(t *testing.T) {
	h := New()
	sender := newTestClient("sender")
	h.Register(sender)

	h.HandleFrame(sender, ticketUpdateFrame(t, models.Ticket{ID: "old", Status: models.StatusWaiting, CreatedAt: 1, LastUpdated: 1}))

	raw, _ := protocol.Message{
		Type:             protocol.TypeDailyReset,
		ResetTime:        9000,
		CategoryCounters: map[string]int{"c1": 0},
		Tickets:          []models.Ticket{{ID: "kept", Status: models.StatusServing, CreatedAt: 2, LastUpdated: 2}},
	}.Encode()
	h.HandleFrame(sender, raw)

	snap := h.SnapshotMessage()
	if snap.DailyResetTime != 9000 {
		t.Fatalf("epoch=%d", snap.DailyResetTime)
	}
	if len(snap.Tickets) != 1 || snap.Tickets[0].ID != "kept" {
		t.Fatalf("ticket set not replaced: %+v", snap.Tickets)
	}
	if got := snap.CategoryCounters["c1"]; got != 0 {
		t.Fatalf("counter=%d, want 0", got)
	}
}

func TestPingGetsPong(t *testing.T) {
	h := New()
	sender := newTestClient("sender")
	other := newTestClient("other")
	h.Register(sender)
	h.Register(other)

	raw, _ := protocol.Message{Type: protocol.TypePing, Timestamp: 1}.Encode()
	h.HandleFrame(sender, raw)

	got := recvMessage(t, sender)
	if got.Type != protocol.TypePong || got.Timestamp == 0 {
		t.Fatalf("expected pong, got %+v", got)
	}
	assertEmpty(t, other)
}

func TestRequestSyncGoesToRequesterOnly(t *testing.T) {
	h := New()
	sender := newTestClient("sender")
	other := newTestClient("other")
	h.Register(sender)
	h.Register(other)

	h.HandleFrame(other, ticketUpdateFrame(t, models.Ticket{ID: "t1", Status: models.StatusWaiting, CreatedAt: 1, LastUpdated: 1}))
	recvMessage(t, sender) // drain the rebroadcast

	raw, _ := protocol.Message{Type: protocol.TypeRequestSync}.Encode()
	h.HandleFrame(sender, raw)

	got := recvMessage(t, sender)
	if got.Type != protocol.TypeSync || len(got.Tickets) != 1 {
		t.Fatalf("expected sync with 1 ticket, got %+v", got)
	}
	assertEmpty(t, other)
}

func TestAnnounceRebroadcastOnly(t *testing.T) {
	h := New()
	sender := newTestClient("sender")
	other := newTestClient("other")
	h.Register(sender)
	h.Register(other)

	raw, _ := protocol.Message{Type: protocol.TypeAnnounce, TicketNumber: "G-004", CounterNumber: 2}.Encode()
	h.HandleFrame(sender, raw)

	got := recvMessage(t, other)
	if got.TicketNumber != "G-004" || got.CounterNumber != 2 || got.Timestamp == 0 {
		t.Fatalf("announce mangled: %+v", got)
	}
	if len(h.SnapshotMessage().Tickets) != 0 {
		t.Fatal("announce must not touch state")
	}
	assertEmpty(t, sender)
}

func TestMalformedFrameDropped(t *testing.T) {
	h := New()
	sender := newTestClient("sender")
	other := newTestClient("other")
	h.Register(sender)
	h.Register(other)

	h.HandleFrame(sender, []byte(`{"type":"ticket_update"`))
	h.HandleFrame(sender, []byte(`{"type":"no_such_type"}`))

	assertEmpty(t, other)
	if h.ClientCount() != 2 {
		t.Fatal("malformed frame must not drop clients")
	}
}

func TestSweepExpiredTickets(t *testing.T) {
	h := New()
	sender := newTestClient("sender")
	h.Register(sender)

	now := time.Now().UnixMilli()
	old := now - 25*time.Hour.Milliseconds()
	h.HandleFrame(sender, ticketUpdateFrame(t, models.Ticket{ID: "stale", Status: models.StatusCompleted, CreatedAt: old, LastUpdated: old}))
	h.HandleFrame(sender, ticketUpdateFrame(t, models.Ticket{ID: "fresh", Status: models.StatusWaiting, CreatedAt: now, LastUpdated: now}))

	if removed := h.SweepExpiredTickets(24 * time.Hour); removed != 1 {
		t.Fatalf("removed=%d, want 1", removed)
	}
	snap := h.SnapshotMessage()
	if len(snap.Tickets) != 1 || snap.Tickets[0].ID != "fresh" {
		t.Fatalf("sweep kept wrong tickets: %+v", snap.Tickets)
	}
}
