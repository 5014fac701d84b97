// Package history persists conversation messages in SQLite. The database is
// created on first use; when it cannot be opened the store degrades to
// in-memory storage so a broken disk never blocks a conversation.
package history

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"chatchain/internal/chat"
	"chatchain/internal/logger"
)

const defaultDBPath = "history.db"

// Record is one persisted conversational message.
type Record struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      chat.Role `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps per-session message history.
type Store struct {
	mu     sync.Mutex
	memory []Record

	db     *sql.DB
	nextID int64
}

// Open creates a store backed by the SQLite file at path (history.db when
// empty). An open or schema failure is logged and the store falls back to
// memory only.
func Open(path string) *Store {
	s := &Store{nextID: 1}
	if path == "" {
		path = defaultDBPath
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)")
	if err != nil {
		logger.L.Warn("sqlite open failed; using in-memory history", "path", path, "error", err)
		return s
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		role TEXT,
		content TEXT,
		created_at DATETIME
	);`); err != nil {
		logger.L.Warn("sqlite schema setup failed; using in-memory history", "path", path, "error", err)
		_ = db.Close()
		return s
	}

	s.db = db
	return s
}

// Close releases the underlying database, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save appends a message to the session history. With a database attached an
// insert failure is returned to the caller; messages land in memory only when
// the store runs without a database, so List always sees what Save kept.
func (s *Store) Save(sessionID string, msg chat.Message) error {
	now := time.Now().UTC()

	if s.db != nil {
		_, err := s.db.Exec(
			`INSERT INTO messages (session_id, role, content, created_at) VALUES (?,?,?,?);`,
			sessionID, string(msg.Role), msg.Content, now,
		)
		if err != nil {
			return fmt.Errorf("history insert: %w", err)
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory = append(s.memory, Record{
		ID:        s.nextID,
		SessionID: sessionID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: now,
	})
	s.nextID++
	return nil
}

// List returns all messages of a session in chronological order.
func (s *Store) List(sessionID string) ([]Record, error) {
	if s.db != nil {
		rows, err := s.db.Query(
			`SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id ASC;`,
			sessionID,
		)
		if err != nil {
			return nil, fmt.Errorf("history query: %w", err)
		}
		defer rows.Close()

		var out []Record
		for rows.Next() {
			var r Record
			var role string
			if err := rows.Scan(&r.ID, &r.SessionID, &role, &r.Content, &r.CreatedAt); err != nil {
				return nil, fmt.Errorf("history scan: %w", err)
			}
			r.Role = chat.Role(role)
			out = append(out, r)
		}
		return out, rows.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.memory {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Messages returns the session history as chat messages, oldest first.
func (s *Store) Messages(sessionID string) ([]chat.Message, error) {
	records, err := s.List(sessionID)
	if err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, chat.Message{Role: r.Role, Content: r.Content})
	}
	return msgs, nil
}
