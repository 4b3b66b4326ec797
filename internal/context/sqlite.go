package context

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/haasonsaas/aiwhisperer/pkg/models"
)

// SQLitePersister is the optional durable backing store for the Context
// Store, for deployments that want a session's history to survive a
// process restart rather than live only in the in-memory Store (spec.md
// §4.2, §4.6 session_restart). It is opt-in: most tests and short-lived
// CLI invocations use the plain in-memory Store instead.
type SQLitePersister struct {
	db *sql.DB
}

// OpenSQLitePersister opens (creating if necessary) a SQLite database at
// path and ensures its schema exists.
func OpenSQLitePersister(path string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open context store: %w", err)
	}

	p := &SQLitePersister{db: db}
	if err := p.init(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *SQLitePersister) init() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS context_messages (
			task_id    TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			payload    TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (task_id, seq)
		)
	`)
	if err != nil {
		return fmt.Errorf("create context_messages table: %w", err)
	}
	return nil
}

// Append persists message as the next entry in taskID's history.
func (p *SQLitePersister) Append(taskID string, message models.Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal context message: %w", err)
	}

	var seq int
	row := p.db.QueryRow(`SELECT COALESCE(MAX(seq), -1) + 1 FROM context_messages WHERE task_id = ?`, taskID)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("allocate sequence for task %s: %w", taskID, err)
	}

	_, err = p.db.Exec(
		`INSERT INTO context_messages (task_id, seq, payload) VALUES (?, ?, ?)`,
		taskID, seq, string(payload),
	)
	if err != nil {
		return fmt.Errorf("append context message for task %s: %w", taskID, err)
	}
	return nil
}

// Load returns taskID's persisted history in append order.
func (p *SQLitePersister) Load(taskID string) ([]models.Message, error) {
	rows, err := p.db.Query(
		`SELECT payload FROM context_messages WHERE task_id = ? ORDER BY seq ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("load context history for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var history []models.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan context message for task %s: %w", taskID, err)
		}
		var message models.Message
		if err := json.Unmarshal([]byte(payload), &message); err != nil {
			return nil, fmt.Errorf("unmarshal context message for task %s: %w", taskID, err)
		}
		history = append(history, message)
	}
	return history, rows.Err()
}

// Clear removes all persisted history for taskID.
func (p *SQLitePersister) Clear(taskID string) error {
	_, err := p.db.Exec(`DELETE FROM context_messages WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("clear context history for task %s: %w", taskID, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
