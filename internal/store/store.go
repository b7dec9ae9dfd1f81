// Package store holds an in-memory copy of the replicated entities: one
// insertion-ordered table per entity type, the per-category issue counters,
// and the daily reset epoch. The store resolves no conflicts; callers decide
// what to upsert. It is not safe for concurrent use on its own.
package store

import "github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/models"

type table[E any] struct {
	order []string
	items map[string]E
}

func newTable[E any]() table[E] {
	return table[E]{items: make(map[string]E)}
}

func (t *table[E]) upsert(id string, item E) {
	if _, ok := t.items[id]; !ok {
		t.order = append(t.order, id)
	}
	t.items[id] = item
}

func (t *table[E]) remove(id string) {
	if _, ok := t.items[id]; !ok {
		return
	}
	delete(t.items, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *table[E]) get(id string) (E, bool) {
	item, ok := t.items[id]
	return item, ok
}

func (t *table[E]) list() []E {
	out := make([]E, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.items[id])
	}
	return out
}

func (t *table[E]) len() int {
	return len(t.items)
}

type Store struct {
	tickets    table[models.Ticket]
	tellers    table[models.Teller]
	categories table[models.Category]
	accounts   table[models.AdminAccount]
	counters   map[string]int
	resetEpoch int64
}

func New() *Store {
	return &Store{
		tickets:    newTable[models.Ticket](),
		tellers:    newTable[models.Teller](),
		categories: newTable[models.Category](),
		accounts:   newTable[models.AdminAccount](),
		counters:   make(map[string]int),
		resetEpoch: models.Now(),
	}
}

func (s *Store) UpsertTicket(t models.Ticket)  { s.tickets.upsert(t.ID, t) }
func (s *Store) RemoveTicket(id string)        { s.tickets.remove(id) }
func (s *Store) Ticket(id string) (models.Ticket, bool) { return s.tickets.get(id) }
func (s *Store) Tickets() []models.Ticket      { return s.tickets.list() }
func (s *Store) TicketCount() int              { return s.tickets.len() }

// ReplaceTickets swaps the whole ticket set; daily resets and full restores
// use this instead of per-id upserts.
func (s *Store) ReplaceTickets(tickets []models.Ticket) {
	s.tickets = newTable[models.Ticket]()
	for _, t := range tickets {
		s.tickets.upsert(t.ID, t)
	}
}

func (s *Store) UpsertTeller(t models.Teller)  { s.tellers.upsert(t.ID, t) }
func (s *Store) RemoveTeller(id string)        { s.tellers.remove(id) }
func (s *Store) Teller(id string) (models.Teller, bool) { return s.tellers.get(id) }
func (s *Store) Tellers() []models.Teller      { return s.tellers.list() }
func (s *Store) TellerCount() int              { return s.tellers.len() }

func (s *Store) UpsertCategory(c models.Category) { s.categories.upsert(c.ID, c) }
func (s *Store) RemoveCategory(id string)         { s.categories.remove(id) }
func (s *Store) Category(id string) (models.Category, bool) { return s.categories.get(id) }
func (s *Store) Categories() []models.Category    { return s.categories.list() }

func (s *Store) UpsertAdminAccount(a models.AdminAccount) { s.accounts.upsert(a.ID, a) }
func (s *Store) RemoveAdminAccount(id string)             { s.accounts.remove(id) }
func (s *Store) AdminAccount(id string) (models.AdminAccount, bool) { return s.accounts.get(id) }
func (s *Store) AdminAccounts() []models.AdminAccount     { return s.accounts.list() }
func (s *Store) AdminAccountCount() int                   { return s.accounts.len() }

func (s *Store) SetCounter(categoryID string, count int) { s.counters[categoryID] = count }
func (s *Store) RemoveCounter(categoryID string)         { delete(s.counters, categoryID) }

func (s *Store) Counter(categoryID string) int {
	return s.counters[categoryID]
}

// Counters returns a copy; callers mutate through SetCounter.
func (s *Store) Counters() map[string]int {
	out := make(map[string]int, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}

func (s *Store) ReplaceCounters(counters map[string]int) {
	s.counters = make(map[string]int, len(counters))
	for k, v := range counters {
		s.counters[k] = v
	}
}

func (s *Store) ResetEpoch() int64          { return s.resetEpoch }
func (s *Store) SetResetEpoch(epoch int64)  { s.resetEpoch = epoch }
