// Package protocol defines the JSON messages exchanged between stations and
// the relay. Every frame is a tagged union discriminated by the "type" field;
// Decode validates the tag and the payload shape at the boundary so malformed
// frames are dropped instead of propagating undefined fields.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/models"
)

const (
	TypeWelcome            = "welcome"
	TypeSync               = "sync"
	TypeRequestSync        = "request_sync"
	TypeTicketUpdate       = "ticket_update"
	TypeTellerUpdate       = "teller_update"
	TypeCategoryUpdate     = "category_update"
	TypeAdminAccountUpdate = "admin_account_update"
	TypeCounterUpdate      = "counter_update"
	TypeDailyReset         = "daily_reset"
	TypeAnnounce           = "announce"
	TypePing               = "ping"
	TypePong               = "pong"
)

var ErrUnknownType = errors.New("unknown message type")

type Message struct {
	Type        string `json:"type"`
	Message     string `json:"message,omitempty"`
	ClientCount int    `json:"clientCount,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`

	Ticket   *models.Ticket       `json:"ticket,omitempty"`
	Teller   *models.Teller       `json:"teller,omitempty"`
	Category *models.Category     `json:"category,omitempty"`
	Account  *models.AdminAccount `json:"account,omitempty"`

	Tickets          []models.Ticket       `json:"tickets,omitempty"`
	Categories       []models.Category     `json:"categories,omitempty"`
	Tellers          []models.Teller       `json:"tellers,omitempty"`
	AdminAccounts    []models.AdminAccount `json:"adminAccounts,omitempty"`
	DailyResetTime   int64                 `json:"dailyResetTime,omitempty"`
	CategoryCounters map[string]int        `json:"categoryCounters,omitempty"`

	CategoryID string `json:"categoryId,omitempty"`
	Count      int    `json:"count,omitempty"`
	ResetTime  int64  `json:"resetTime,omitempty"`

	TicketNumber  string `json:"ticketNumber,omitempty"`
	CounterNumber int    `json:"counterNumber,omitempty"`
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a frame and validates that the discriminator is known and
// the payload required by that type is present.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	switch msg.Type {
	case TypeWelcome, TypeSync, TypeRequestSync, TypeAnnounce, TypePing, TypePong, TypeDailyReset:
	case TypeTicketUpdate:
		if msg.Ticket == nil || msg.Ticket.ID == "" {
			return Message{}, errors.New("ticket_update without ticket")
		}
	case TypeTellerUpdate:
		if msg.Teller == nil || msg.Teller.ID == "" {
			return Message{}, errors.New("teller_update without teller")
		}
	case TypeCategoryUpdate:
		if msg.Category == nil || msg.Category.ID == "" {
			return Message{}, errors.New("category_update without category")
		}
	case TypeAdminAccountUpdate:
		if msg.Account == nil || msg.Account.ID == "" {
			return Message{}, errors.New("admin_account_update without account")
		}
	case TypeCounterUpdate:
		if msg.CategoryID == "" {
			return Message{}, errors.New("counter_update without categoryId")
		}
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	return msg, nil
}
