// Package models defines the entities replicated between stations and the
// relay. All timestamps are Unix milliseconds, matching what the wire
// protocol carries and what last-writer-wins comparison operates on.
package models

import "time"

// Ticket statuses.
const (
	StatusWaiting   = "WAITING"
	StatusCalling   = "CALLING"
	StatusServing   = "SERVING"
	StatusCompleted = "COMPLETED"
	StatusNoShow    = "NOSHOW"
)

// Teller statuses.
const (
	TellerOnline  = "ONLINE"
	TellerBusy    = "BUSY"
	TellerOffline = "OFFLINE"
	TellerBreak   = "BREAK"
)

// MaxTellers caps the number of teller stations system-wide.
const MaxTellers = 10

type Ticket struct {
	ID              string `json:"id"`
	Number          string `json:"number"`
	CategoryID      string `json:"categoryId"`
	Status          string `json:"status"`
	CreatedAt       int64  `json:"createdAt"`
	CalledAt        int64  `json:"calledAt,omitempty"`
	CompletedAt     int64  `json:"completedAt,omitempty"`
	TellerID        string `json:"tellerId,omitempty"`
	CounterNumber   int    `json:"counterNumber,omitempty"`
	LastUpdated     int64  `json:"lastUpdated,omitempty"`
	DailyIdentifier string `json:"dailyIdentifier,omitempty"`
}

// MergeStamp is the timestamp used for conflict resolution. Tickets written
// by older clients may lack lastUpdated, so completedAt and createdAt act as
// fallbacks.
func (t Ticket) MergeStamp() int64 {
	if t.LastUpdated != 0 {
		return t.LastUpdated
	}
	if t.CompletedAt != 0 {
		return t.CompletedAt
	}
	return t.CreatedAt
}

type Teller struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	CounterNumber       int      `json:"counterNumber"`
	Status              string   `json:"status"`
	CurrentTicketID     string   `json:"currentTicketId,omitempty"`
	AssignedCategoryIDs []string `json:"assignedCategoryIds"`
	LastUpdated         int64    `json:"lastUpdated,omitempty"`
}

func (t Teller) MergeStamp() int64 {
	return t.LastUpdated
}

// ServesCategory reports whether the teller may call tickets from the given
// category.
func (t Teller) ServesCategory(categoryID string) bool {
	for _, id := range t.AssignedCategoryIDs {
		if id == categoryID {
			return true
		}
	}
	return false
}

// Category carries no lastUpdated; updates replace the whole record and the
// last message wins unconditionally.
type Category struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Prefix        string `json:"prefix"`
	Color         string `json:"color"`
	EstimatedTime int    `json:"estimatedTime"`
}

// AdminAccount stores credentials in plaintext, as the deployed system does.
type AdminAccount struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}

// Now returns the current time in Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}
