// Package cache persists a station's replicated state and its queue of
// pending changes across restarts. State entries are JSON blobs keyed the
// same way the browser build keyed localStorage; pending changes keep strict
// enqueue order so an offline session replays exactly as it happened.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/peanut-b/QueuMaster-Pro-Enterprise/internal/models"
)

// State keys shared with the browser build.
const (
	KeyTickets          = "q_tickets"
	KeyCategories       = "q_categories"
	KeyTellers          = "q_tellers"
	KeyAdminAccounts    = "q_admin_accounts"
	KeyCategoryCounters = "q_category_counters"
	KeyDailyResetTime   = "q_daily_reset_time"
	KeyLastIssuedTicket = "q_last_issued_ticket"
	KeyLastSync         = "q_last_sync"
)

var ErrNotFound = errors.New("cache: key not found")

type PendingChange struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  int64           `json:"timestamp"`
	RetryCount int             `json:"retryCount"`
}

type Cache struct {
	db *sql.DB
}

func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	c := &Cache{db: db}
	if err := c.init(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init() error {
	if _, err := c.db.Exec(
		`CREATE TABLE IF NOT EXISTS state (
			key TEXT NOT NULL PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	); err != nil {
		return err
	}
	if _, err := c.db.Exec(
		`CREATE TABLE IF NOT EXISTS pending_changes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0
		)`,
	); err != nil {
		return err
	}
	return nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) Save(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	_, err = c.db.Exec(
		`INSERT INTO state(key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), models.Now(),
	)
	return err
}

// Load unmarshals the stored value into dest. ErrNotFound means the caller
// should fall back to its default.
func (c *Cache) Load(key string, dest any) error {
	var raw string
	err := c.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dest)
}

func (c *Cache) QueuePendingChange(changeType string, payload any) (PendingChange, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return PendingChange{}, fmt.Errorf("queue %s: %w", changeType, err)
	}
	change := PendingChange{
		ID:        uuid.NewString(),
		Type:      changeType,
		Payload:   raw,
		CreatedAt: models.Now(),
	}
	_, err = c.db.Exec(
		`INSERT INTO pending_changes(id, type, payload, created_at, retry_count) VALUES (?, ?, ?, ?, 0)`,
		change.ID, change.Type, string(change.Payload), change.CreatedAt,
	)
	if err != nil {
		return PendingChange{}, err
	}
	return change, nil
}

// PendingChanges returns the queue in enqueue order.
func (c *Cache) PendingChanges() ([]PendingChange, error) {
	rows, err := c.db.Query(
		`SELECT id, type, payload, created_at, retry_count FROM pending_changes ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []PendingChange
	for rows.Next() {
		var change PendingChange
		var payload string
		if err := rows.Scan(&change.ID, &change.Type, &payload, &change.CreatedAt, &change.RetryCount); err != nil {
			return nil, err
		}
		change.Payload = json.RawMessage(payload)
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

func (c *Cache) RemovePendingChange(id string) error {
	_, err := c.db.Exec(`DELETE FROM pending_changes WHERE id = ?`, id)
	return err
}

func (c *Cache) IncrementRetry(id string) error {
	_, err := c.db.Exec(`UPDATE pending_changes SET retry_count = retry_count + 1 WHERE id = ?`, id)
	return err
}

func (c *Cache) PendingCount() (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM pending_changes`).Scan(&count)
	return count, err
}

func (c *Cache) UpdateLastSyncTime() error {
	return c.Save(KeyLastSync, models.Now())
}

func (c *Cache) LastSyncTime() (int64, error) {
	var at int64
	if err := c.Load(KeyLastSync, &at); err != nil {
		return 0, err
	}
	return at, nil
}
