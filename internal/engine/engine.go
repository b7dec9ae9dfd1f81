// Package engine reconciles locally-applied mutations against relay
// broadcasts and full-sync snapshots. Every local operation applies
// optimistically, stamps lastUpdated, and either sends over the transport or
// lands in the durable pending-change queue for a later manual drain.
// Incoming remote writes merge by last-writer-wins on that stamp.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/cache"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/models"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/protocol"
	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/store"
)

var (
	ErrOffline           = errors.New("not connected to relay")
	ErrUnknownTicket     = errors.New("unknown ticket")
	ErrUnknownTeller     = errors.New("unknown teller")
	ErrUnknownCategory   = errors.New("unknown category")
	ErrInvalidTransition = errors.New("invalid ticket status transition")
	ErrNoEligibleTickets = errors.New("no eligible waiting tickets")
	ErrTellerLimit       = errors.New("teller limit reached")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrLastAdminAccount  = errors.New("cannot delete the last admin account")
)

// resetAfter is how long after the reset epoch a new daily reset becomes due.
const resetAfter = 20 * time.Hour

const resetAnnouncement = "System Note: Daily ticket numbers have been reset."

// Transport is the outbound half of the connection supervisor.
type Transport interface {
	Send(protocol.Message) error
	IsConnected() bool
}

// SyncReport aggregates a manual pending-change drain. Failures are counted,
// not itemized.
type SyncReport struct {
	Attempted int
	Sent      int
	Failed    int
}

type Engine struct {
	mu        sync.Mutex
	store     *store.Store
	cache     *cache.Cache
	transport Transport
	announce  func(ticketNumber string, counterNumber int)
	now       func() int64
	throttle  time.Duration

	lastClientCount int
}

// New wires an engine over its store, durable cache and transport. Cache and
// transport may be nil: a nil cache skips persistence and queueing, a nil
// transport means every broadcast queues.
func New(st *store.Store, c *cache.Cache, t Transport) *Engine {
	return &Engine{
		store:     st,
		cache:     c,
		transport: t,
		now:       models.Now,
		throttle:  50 * time.Millisecond,
	}
}

// SetAnnouncer registers the audio/announcement callback. It fires exactly
// once per successful call-next and once per remote announce message.
func (e *Engine) SetAnnouncer(fn func(ticketNumber string, counterNumber int)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.announce = fn
}

// LoadState restores the entity store from the durable cache.
func (e *Engine) LoadState() error {
	if e.cache == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var tickets []models.Ticket
	if err := e.loadKey(cache.KeyTickets, &tickets); err != nil {
		return err
	}
	e.store.ReplaceTickets(tickets)

	var categories []models.Category
	if err := e.loadKey(cache.KeyCategories, &categories); err != nil {
		return err
	}
	for _, c := range categories {
		e.store.UpsertCategory(c)
	}

	var tellers []models.Teller
	if err := e.loadKey(cache.KeyTellers, &tellers); err != nil {
		return err
	}
	for _, t := range tellers {
		e.store.UpsertTeller(t)
	}

	var accounts []models.AdminAccount
	if err := e.loadKey(cache.KeyAdminAccounts, &accounts); err != nil {
		return err
	}
	for _, a := range accounts {
		e.store.UpsertAdminAccount(a)
	}

	var counters map[string]int
	if err := e.loadKey(cache.KeyCategoryCounters, &counters); err != nil {
		return err
	}
	if counters != nil {
		e.store.ReplaceCounters(counters)
	}

	var epoch int64
	if err := e.loadKey(cache.KeyDailyResetTime, &epoch); err != nil {
		return err
	}
	if epoch != 0 {
		e.store.SetResetEpoch(epoch)
	} else {
		// First run on this cache: pin the freshly minted epoch so restarts
		// keep the same numbering cycle and reset deadline.
		e.persist(cache.KeyDailyResetTime, e.store.ResetEpoch())
	}
	return nil
}

func (e *Engine) loadKey(key string, dest any) error {
	err := e.cache.Load(key, dest)
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	return err
}

func (e *Engine) persist(key string, value any) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Save(key, value); err != nil {
		log.Printf("persist %s: %v", key, err)
	}
}

// FormatTicketNumber composes the human-readable number: category prefix plus
// a zero-padded sequence, e.g. G-007.
func FormatTicketNumber(prefix string, seq int) string {
	return fmt.Sprintf("%s-%03d", prefix, seq)
}

func dailyIdentifier(epoch int64, categoryID string) string {
	return time.UnixMilli(epoch).UTC().Format("2006-01-02") + "-" + categoryID
}

// IssueTicket creates a WAITING ticket for the category, bumping and
// broadcasting the category counter first so peers converge on the sequence.
func (e *Engine) IssueTicket(categoryID string) (models.Ticket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	category, ok := e.store.Category(categoryID)
	if !ok {
		return models.Ticket{}, ErrUnknownCategory
	}

	count := e.store.Counter(categoryID) + 1
	e.store.SetCounter(categoryID, count)
	e.broadcastCounter(categoryID, count)

	now := e.now()
	ticket := models.Ticket{
		ID:              "ticket-" + uuid.NewString(),
		Number:          FormatTicketNumber(category.Prefix, count),
		CategoryID:      categoryID,
		Status:          models.StatusWaiting,
		CreatedAt:       now,
		LastUpdated:     now,
		DailyIdentifier: dailyIdentifier(e.store.ResetEpoch(), categoryID),
	}
	e.store.UpsertTicket(ticket)
	e.broadcastTicket(ticket)

	e.persist(cache.KeyTickets, e.store.Tickets())
	e.persist(cache.KeyCategoryCounters, e.store.Counters())
	e.persist(cache.KeyLastIssuedTicket, ticket)
	return ticket, nil
}

// CallNext claims the oldest WAITING ticket in the teller's assigned
// categories. Any other CALLING ticket in the winning category is forced back
// to WAITING first; two stations racing can both transiently believe they
// won until the broadcasts settle.
func (e *Engine) CallNext(tellerID string) (models.Ticket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	teller, ok := e.store.Teller(tellerID)
	if !ok {
		return models.Ticket{}, ErrUnknownTeller
	}

	var next models.Ticket
	found := false
	for _, ticket := range e.store.Tickets() {
		if ticket.Status != models.StatusWaiting || !teller.ServesCategory(ticket.CategoryID) {
			continue
		}
		if !found || ticket.CreatedAt < next.CreatedAt {
			next = ticket
			found = true
		}
	}
	if !found {
		return models.Ticket{}, ErrNoEligibleTickets
	}

	now := e.now()
	for _, other := range e.store.Tickets() {
		if other.Status != models.StatusCalling || other.CategoryID != next.CategoryID || other.ID == next.ID {
			continue
		}
		other.Status = models.StatusWaiting
		other.TellerID = ""
		other.CounterNumber = 0
		other.LastUpdated = now
		e.store.UpsertTicket(other)
		e.broadcastTicket(other)
	}

	next.Status = models.StatusCalling
	next.TellerID = tellerID
	next.CounterNumber = teller.CounterNumber
	next.CalledAt = now
	next.LastUpdated = now
	e.store.UpsertTicket(next)

	teller.Status = models.TellerBusy
	teller.CurrentTicketID = next.ID
	teller.LastUpdated = now
	e.store.UpsertTeller(teller)

	e.broadcastTicket(next)
	e.broadcastTeller(teller)
	e.emitAnnouncement(next.Number, teller.CounterNumber)

	e.persist(cache.KeyTickets, e.store.Tickets())
	e.persist(cache.KeyTellers, e.store.Tellers())
	return next, nil
}

// UpdateTicketStatus drives the explicit teller actions: start serving,
// complete, no-show. Terminal transitions release the owning teller.
func (e *Engine) UpdateTicketStatus(ticketID, status string) (models.Ticket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ticket, ok := e.store.Ticket(ticketID)
	if !ok {
		return models.Ticket{}, ErrUnknownTicket
	}
	if !models.ValidTransition(ticket.Status, status) {
		return models.Ticket{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ticket.Status, status)
	}

	now := e.now()
	ticket.Status = status
	ticket.LastUpdated = now
	if status == models.StatusCompleted {
		ticket.CompletedAt = now
	}
	e.store.UpsertTicket(ticket)
	e.broadcastTicket(ticket)

	if models.TerminalStatus(status) {
		for _, teller := range e.store.Tellers() {
			if teller.CurrentTicketID != ticketID {
				continue
			}
			teller.Status = models.TellerOnline
			teller.CurrentTicketID = ""
			teller.LastUpdated = now
			e.store.UpsertTeller(teller)
			e.broadcastTeller(teller)
		}
		e.persist(cache.KeyTellers, e.store.Tellers())
	}

	e.persist(cache.KeyTickets, e.store.Tickets())
	return ticket, nil
}

func (e *Engine) AddCategory(category models.Category) models.Category {
	e.mu.Lock()
	defer e.mu.Unlock()

	category.ID = "c-" + uuid.NewString()
	e.store.UpsertCategory(category)
	e.store.SetCounter(category.ID, 0)
	e.broadcastCategory(category)

	e.persist(cache.KeyCategories, e.store.Categories())
	e.persist(cache.KeyCategoryCounters, e.store.Counters())
	return category
}

func (e *Engine) UpdateCategory(category models.Category) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.store.Category(category.ID); !ok {
		return ErrUnknownCategory
	}
	e.store.UpsertCategory(category)
	e.broadcastCategory(category)
	e.persist(cache.KeyCategories, e.store.Categories())
	return nil
}

// DeleteCategory removes the category, its counter, and every reference to
// it in teller assignments. Deletions are local to this station: the wire
// protocol carries no delete messages.
func (e *Engine) DeleteCategory(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.RemoveCategory(id)
	e.store.RemoveCounter(id)
	for _, teller := range e.store.Tellers() {
		kept := teller.AssignedCategoryIDs[:0]
		for _, categoryID := range teller.AssignedCategoryIDs {
			if categoryID != id {
				kept = append(kept, categoryID)
			}
		}
		teller.AssignedCategoryIDs = kept
		e.store.UpsertTeller(teller)
	}

	e.persist(cache.KeyCategories, e.store.Categories())
	e.persist(cache.KeyCategoryCounters, e.store.Counters())
	e.persist(cache.KeyTellers, e.store.Tellers())
}

func (e *Engine) AddTeller(teller models.Teller) (models.Teller, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store.TellerCount() >= models.MaxTellers {
		return models.Teller{}, ErrTellerLimit
	}
	teller.ID = "teller-" + uuid.NewString()
	teller.Status = models.TellerOnline
	teller.LastUpdated = e.now()
	if teller.AssignedCategoryIDs == nil {
		teller.AssignedCategoryIDs = []string{}
	}
	e.store.UpsertTeller(teller)
	e.broadcastTeller(teller)
	e.persist(cache.KeyTellers, e.store.Tellers())
	return teller, nil
}

func (e *Engine) UpdateTeller(teller models.Teller) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.store.Teller(teller.ID); !ok {
		return ErrUnknownTeller
	}
	teller.LastUpdated = e.now()
	e.store.UpsertTeller(teller)
	e.broadcastTeller(teller)
	e.persist(cache.KeyTellers, e.store.Tellers())
	return nil
}

func (e *Engine) DeleteTeller(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.RemoveTeller(id)
	e.persist(cache.KeyTellers, e.store.Tellers())
}

func (e *Engine) RegisterAdminAccount(email, password, name string) (models.AdminAccount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.store.AdminAccounts() {
		if existing.Email == email {
			return models.AdminAccount{}, ErrDuplicateEmail
		}
	}
	account := models.AdminAccount{
		ID:        "admin-" + uuid.NewString(),
		Email:     email,
		Password:  password,
		Name:      name,
		CreatedAt: e.now(),
	}
	e.store.UpsertAdminAccount(account)
	e.broadcastAccount(account)
	e.persist(cache.KeyAdminAccounts, e.store.AdminAccounts())
	return account, nil
}

func (e *Engine) UpdateAdminAccount(account models.AdminAccount) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.UpsertAdminAccount(account)
	e.broadcastAccount(account)
	e.persist(cache.KeyAdminAccounts, e.store.AdminAccounts())
}

// DeleteAdminAccount refuses to remove the last remaining account.
func (e *Engine) DeleteAdminAccount(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store.AdminAccountCount() <= 1 {
		return ErrLastAdminAccount
	}
	e.store.RemoveAdminAccount(id)
	e.persist(cache.KeyAdminAccounts, e.store.AdminAccounts())
	return nil
}

// Authenticate matches credentials against the replicated account set.
func (e *Engine) Authenticate(email, password string) (models.AdminAccount, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, account := range e.store.AdminAccounts() {
		if account.Email == email && account.Password == password {
			return account, true
		}
	}
	return models.AdminAccount{}, false
}

// DailyResetDue reports whether the numbering cycle has aged past the
// threshold and should roll over.
func (e *Engine) DailyResetDue() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now()-e.store.ResetEpoch() >= resetAfter.Milliseconds()
}

// PerformDailyReset zeroes all category counters, starts a new epoch and
// drops WAITING tickets; in-flight CALLING and SERVING tickets survive.
func (e *Engine) PerformDailyReset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	counters := make(map[string]int)
	for _, category := range e.store.Categories() {
		counters[category.ID] = 0
	}
	e.store.ReplaceCounters(counters)

	epoch := e.now()
	e.store.SetResetEpoch(epoch)

	var kept []models.Ticket
	for _, ticket := range e.store.Tickets() {
		if ticket.Status == models.StatusCalling || ticket.Status == models.StatusServing {
			kept = append(kept, ticket)
		}
	}
	e.store.ReplaceTickets(kept)

	e.sendOrQueue(protocol.Message{
		Type:             protocol.TypeDailyReset,
		ResetTime:        epoch,
		CategoryCounters: counters,
		Tickets:          kept,
	}, protocol.TypeDailyReset, dailyResetPayload{ResetTime: epoch, CategoryCounters: counters, Tickets: kept})
	e.emitAnnouncement(resetAnnouncement, 0)

	e.persist(cache.KeyTickets, e.store.Tickets())
	e.persist(cache.KeyCategoryCounters, counters)
	e.persist(cache.KeyDailyResetTime, epoch)
}

// HandleMessage merges one remote message into local state.
func (e *Engine) HandleMessage(msg protocol.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch msg.Type {
	case protocol.TypeWelcome:
		e.lastClientCount = msg.ClientCount

	case protocol.TypeTicketUpdate:
		if e.mergeTicket(*msg.Ticket) {
			e.persist(cache.KeyTickets, e.store.Tickets())
		}

	case protocol.TypeTellerUpdate:
		if e.mergeTeller(*msg.Teller) {
			e.persist(cache.KeyTellers, e.store.Tellers())
		}

	case protocol.TypeCategoryUpdate:
		e.store.UpsertCategory(*msg.Category)
		e.persist(cache.KeyCategories, e.store.Categories())

	case protocol.TypeAdminAccountUpdate:
		e.store.UpsertAdminAccount(*msg.Account)
		e.persist(cache.KeyAdminAccounts, e.store.AdminAccounts())

	case protocol.TypeCounterUpdate:
		if msg.Count > e.store.Counter(msg.CategoryID) {
			e.store.SetCounter(msg.CategoryID, msg.Count)
			e.persist(cache.KeyCategoryCounters, e.store.Counters())
		}

	case protocol.TypeSync:
		e.mergeSnapshot(msg)

	case protocol.TypeDailyReset:
		epoch := msg.ResetTime
		if epoch == 0 {
			epoch = e.now()
		}
		e.store.SetResetEpoch(epoch)
		e.store.ReplaceCounters(msg.CategoryCounters)
		e.store.ReplaceTickets(msg.Tickets)
		e.persist(cache.KeyTickets, e.store.Tickets())
		e.persist(cache.KeyCategoryCounters, e.store.Counters())
		e.persist(cache.KeyDailyResetTime, epoch)

	case protocol.TypeAnnounce:
		if e.announce != nil {
			e.announce(msg.TicketNumber, msg.CounterNumber)
		}

	case protocol.TypePing, protocol.TypePong, protocol.TypeRequestSync:
		// liveness traffic, no state
	}
}

func (e *Engine) mergeTicket(in models.Ticket) bool {
	local, ok := e.store.Ticket(in.ID)
	if ok && in.MergeStamp() <= local.MergeStamp() {
		return false // stale write, designed outcome
	}
	e.store.UpsertTicket(in)
	return true
}

func (e *Engine) mergeTeller(in models.Teller) bool {
	local, ok := e.store.Teller(in.ID)
	if ok && in.MergeStamp() <= local.MergeStamp() {
		return false
	}
	e.store.UpsertTeller(in)
	return true
}

func (e *Engine) mergeSnapshot(msg protocol.Message) {
	changedTickets := false
	for _, ticket := range msg.Tickets {
		if e.mergeTicket(ticket) {
			changedTickets = true
		}
	}
	changedTellers := false
	for _, teller := range msg.Tellers {
		if e.mergeTeller(teller) {
			changedTellers = true
		}
	}
	for _, category := range msg.Categories {
		e.store.UpsertCategory(category)
	}
	for _, account := range msg.AdminAccounts {
		e.store.UpsertAdminAccount(account)
	}
	if msg.DailyResetTime > e.store.ResetEpoch() {
		e.store.SetResetEpoch(msg.DailyResetTime)
		e.persist(cache.KeyDailyResetTime, msg.DailyResetTime)
	}
	countersChanged := false
	for categoryID, count := range msg.CategoryCounters {
		if count > e.store.Counter(categoryID) {
			e.store.SetCounter(categoryID, count)
			countersChanged = true
		}
	}

	if changedTickets {
		e.persist(cache.KeyTickets, e.store.Tickets())
	}
	if changedTellers {
		e.persist(cache.KeyTellers, e.store.Tellers())
	}
	if len(msg.Categories) > 0 {
		e.persist(cache.KeyCategories, e.store.Categories())
	}
	if len(msg.AdminAccounts) > 0 {
		e.persist(cache.KeyAdminAccounts, e.store.AdminAccounts())
	}
	if countersChanged {
		e.persist(cache.KeyCategoryCounters, e.store.Counters())
	}
	if e.cache != nil {
		if err := e.cache.UpdateLastSyncTime(); err != nil {
			log.Printf("update last sync: %v", err)
		}
	}
}

type counterPayload struct {
	CategoryID string `json:"categoryId"`
	Count      int    `json:"count"`
}

type dailyResetPayload struct {
	ResetTime        int64           `json:"resetTime"`
	CategoryCounters map[string]int  `json:"categoryCounters"`
	Tickets          []models.Ticket `json:"tickets"`
}

// SyncPendingChanges replays the offline queue in enqueue order. Manual only:
// it refuses when disconnected, throttles between sends, removes successes,
// and counts failures without retrying them within the pass. Ticket and
// teller payloads are re-stamped at send so the last replay wins everywhere.
func (e *Engine) SyncPendingChanges(ctx context.Context) (SyncReport, error) {
	if e.transport == nil || !e.transport.IsConnected() {
		return SyncReport{}, ErrOffline
	}
	if e.cache == nil {
		return SyncReport{}, nil
	}

	changes, err := e.cache.PendingChanges()
	if err != nil {
		return SyncReport{}, err
	}

	var report SyncReport
	for i, change := range changes {
		report.Attempted++
		msg, err := e.pendingMessage(change)
		if err != nil {
			// Unreplayable payload; it can never succeed, so drop it.
			log.Printf("drop pending change %s: %v", change.ID, err)
			report.Failed++
			if err := e.cache.RemovePendingChange(change.ID); err != nil {
				log.Printf("remove pending change %s: %v", change.ID, err)
			}
			continue
		}
		if err := e.transport.Send(msg); err != nil {
			report.Failed++
			if err := e.cache.IncrementRetry(change.ID); err != nil {
				log.Printf("count retry for %s: %v", change.ID, err)
			}
		} else {
			report.Sent++
			if err := e.cache.RemovePendingChange(change.ID); err != nil {
				log.Printf("remove pending change %s: %v", change.ID, err)
			}
		}

		if i < len(changes)-1 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(e.throttle):
			}
		}
	}

	if err := e.cache.UpdateLastSyncTime(); err != nil {
		log.Printf("update last sync: %v", err)
	}
	return report, nil
}

func (e *Engine) pendingMessage(change cache.PendingChange) (protocol.Message, error) {
	switch change.Type {
	case protocol.TypeTicketUpdate:
		var ticket models.Ticket
		if err := json.Unmarshal(change.Payload, &ticket); err != nil {
			return protocol.Message{}, err
		}
		ticket.LastUpdated = e.now()
		return protocol.Message{Type: protocol.TypeTicketUpdate, Ticket: &ticket}, nil
	case protocol.TypeTellerUpdate:
		var teller models.Teller
		if err := json.Unmarshal(change.Payload, &teller); err != nil {
			return protocol.Message{}, err
		}
		teller.LastUpdated = e.now()
		return protocol.Message{Type: protocol.TypeTellerUpdate, Teller: &teller}, nil
	case protocol.TypeCategoryUpdate:
		var category models.Category
		if err := json.Unmarshal(change.Payload, &category); err != nil {
			return protocol.Message{}, err
		}
		return protocol.Message{Type: protocol.TypeCategoryUpdate, Category: &category}, nil
	case protocol.TypeAdminAccountUpdate:
		var account models.AdminAccount
		if err := json.Unmarshal(change.Payload, &account); err != nil {
			return protocol.Message{}, err
		}
		return protocol.Message{Type: protocol.TypeAdminAccountUpdate, Account: &account}, nil
	case protocol.TypeCounterUpdate:
		var payload counterPayload
		if err := json.Unmarshal(change.Payload, &payload); err != nil {
			return protocol.Message{}, err
		}
		return protocol.Message{Type: protocol.TypeCounterUpdate, CategoryID: payload.CategoryID, Count: payload.Count}, nil
	case protocol.TypeDailyReset:
		var payload dailyResetPayload
		if err := json.Unmarshal(change.Payload, &payload); err != nil {
			return protocol.Message{}, err
		}
		return protocol.Message{
			Type:             protocol.TypeDailyReset,
			ResetTime:        payload.ResetTime,
			CategoryCounters: payload.CategoryCounters,
			Tickets:          payload.Tickets,
		}, nil
	default:
		return protocol.Message{}, fmt.Errorf("unreplayable change type %q", change.Type)
	}
}

// Read-only snapshots for the dashboards.

func (e *Engine) Tickets() []models.Ticket {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Tickets()
}

func (e *Engine) Tellers() []models.Teller {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Tellers()
}

func (e *Engine) Categories() []models.Category {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Categories()
}

func (e *Engine) AdminAccounts() []models.AdminAccount {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.AdminAccounts()
}

func (e *Engine) Counters() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Counters()
}

func (e *Engine) ResetEpoch() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ResetEpoch()
}

// ClientCount is the live station count last reported by the relay.
func (e *Engine) ClientCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastClientCount
}

func (e *Engine) PendingCount() int {
	if e.cache == nil {
		return 0
	}
	count, err := e.cache.PendingCount()
	if err != nil {
		log.Printf("pending count: %v", err)
		return 0
	}
	return count
}

func (e *Engine) broadcastTicket(ticket models.Ticket) {
	e.sendOrQueue(protocol.Message{Type: protocol.TypeTicketUpdate, Ticket: &ticket}, protocol.TypeTicketUpdate, ticket)
}

func (e *Engine) broadcastTeller(teller models.Teller) {
	e.sendOrQueue(protocol.Message{Type: protocol.TypeTellerUpdate, Teller: &teller}, protocol.TypeTellerUpdate, teller)
}

func (e *Engine) broadcastCategory(category models.Category) {
	e.sendOrQueue(protocol.Message{Type: protocol.TypeCategoryUpdate, Category: &category}, protocol.TypeCategoryUpdate, category)
}

func (e *Engine) broadcastAccount(account models.AdminAccount) {
	e.sendOrQueue(protocol.Message{Type: protocol.TypeAdminAccountUpdate, Account: &account}, protocol.TypeAdminAccountUpdate, account)
}

func (e *Engine) broadcastCounter(categoryID string, count int) {
	e.sendOrQueue(
		protocol.Message{Type: protocol.TypeCounterUpdate, CategoryID: categoryID, Count: count},
		protocol.TypeCounterUpdate,
		counterPayload{CategoryID: categoryID, Count: count},
	)
}

// sendOrQueue forwards a mutation to the relay, or records it as a pending
// change when the transport is down or the send fails.
func (e *Engine) sendOrQueue(msg protocol.Message, changeType string, payload any) {
	if e.transport != nil && e.transport.IsConnected() {
		if err := e.transport.Send(msg); err == nil {
			return
		}
	}
	if e.cache == nil {
		return
	}
	if _, err := e.cache.QueuePendingChange(changeType, payload); err != nil {
		log.Printf("queue %s: %v", changeType, err)
	}
}

// emitAnnouncement is best-effort and never queued: replaying announcements
// later would re-call numbers that already moved on.
func (e *Engine) emitAnnouncement(ticketNumber string, counterNumber int) {
	if e.transport != nil && e.transport.IsConnected() {
		_ = e.transport.Send(protocol.Message{
			Type:          protocol.TypeAnnounce,
			TicketNumber:  ticketNumber,
			CounterNumber: counterNumber,
			Timestamp:     e.now(),
		})
	}
	if e.announce != nil {
		e.announce(ticketNumber, counterNumber)
	}
}
