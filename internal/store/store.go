package store

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lanternrouter/lantern/internal/logging"
)

// Store is a single-file, single-writer embedded conversation log.
// Readers may run concurrently; writes are serialized by mu so no
// observer ever sees a half-committed change.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string

	obsMu     sync.RWMutex
	observers []Observer

	log *logging.Logger
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema is current.
func Open(path string, log *logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Nop()
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db, path: path, log: log.With("store")}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// DBInfo returns the database file path and its current size on disk, used
// for operational reporting.
func (s *Store) DBInfo() (path string, sizeBytes int64) {
	info, err := os.Stat(s.path)
	if err != nil {
		return s.path, 0
	}
	return s.path, info.Size()
}

// Subscribe registers an observer, returning an index usable with
// Unsubscribe.
func (s *Store) Subscribe(obs Observer) int {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, obs)
	return len(s.observers) - 1
}

// Unsubscribe removes a previously registered observer.
func (s *Store) Unsubscribe(id int) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	if id < 0 || id >= len(s.observers) {
		return
	}
	s.observers[id] = nil
}

func (s *Store) notify(event string, payload any) {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	for _, obs := range s.observers {
		if obs == nil {
			continue
		}
		s.safeNotify(obs, event, payload)
	}
}

func (s *Store) safeNotify(obs Observer, event string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn().Interface("panic", r).Str("event", event).Msg("store observer panicked, ignoring")
		}
	}()
	obs(event, payload)
}

// CreateConversation inserts a new conversation and returns its id.
// Resolving or materializing a topic by name is the caller's
// responsibility via EnsureTopic.
func (s *Store) CreateConversation(title string, topicID *string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO conversations (id, title, topic_id, status) VALUES (?, ?, ?, ?)`,
		id, title, topicID, string(StatusActive),
	)
	if err != nil {
		return "", fmt.Errorf("store: create conversation: %w", err)
	}
	s.notify(EventConversationCreated, Conversation{ID: id, Title: title, TopicID: topicID, Status: StatusActive})
	return id, nil
}

// AppendMessage inserts a message and, via the schema's trigger, bumps the
// parent conversation's updated_at atomically with the insert. Assistant
// messages without a modelRef are rejected before the CHECK constraint
// would reject them, so the caller gets a clear error.
func (s *Store) AppendMessage(convID string, role Role, content string, modelRef *string) (string, error) {
	if role == RoleAssistant && modelRef == nil {
		return "", fmt.Errorf("store: assistant message must carry a model reference")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO messages (id, conversation_id, role, content, model_ref) VALUES (?, ?, ?, ?, ?)`,
		id, convID, string(role), content, modelRef,
	)
	if err != nil {
		return "", fmt.Errorf("store: append message: %w", err)
	}
	s.notify(EventMessageAppended, Message{ID: id, ConversationID: convID, Role: role, Content: content, ModelRef: modelRef})
	return id, nil
}

// GetMessages returns a conversation's messages in timestamp order.
func (s *Store) GetMessages(convID string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, conversation_id, role, content, model_ref, timestamp
		 FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC LIMIT ? OFFSET ?`,
		convID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var ts int64
		var modelRef sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &modelRef, &ts); err != nil {
			return nil, err
		}
		if modelRef.Valid {
			v := modelRef.String
			m.ModelRef = &v
		}
		m.Timestamp = unixToTime(ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteConversation removes a conversation and, via ON DELETE CASCADE,
// its messages.
func (s *Store) DeleteConversation(convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, convID)
	if err != nil {
		return fmt.Errorf("store: delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: conversation %q not found", convID)
	}
	s.notify(EventConversationDeleted, convID)
	return nil
}

// SetTitle renames a conversation.
func (s *Store) SetTitle(convID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE conversations SET title = ? WHERE id = ?`, title, convID)
	if err != nil {
		return fmt.Errorf("store: set title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: conversation %q not found", convID)
	}
	s.notify(EventTitleChanged, struct{ ID, Title string }{convID, title})
	return nil
}

// EnsureTopic returns the id of the topic with the given name, creating it
// if it does not already exist. Name uniqueness is enforced here, not by
// the caller.
func (s *Store) EnsureTopic(name string, parentID *string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	err := s.db.QueryRow(`SELECT id FROM topics WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("store: lookup topic: %w", err)
	}

	id = uuid.NewString()
	if _, err := s.db.Exec(`INSERT INTO topics (id, name, parent_id) VALUES (?, ?, ?)`, id, name, parentID); err != nil {
		return "", fmt.Errorf("store: create topic: %w", err)
	}
	return id, nil
}

// ListConversations returns conversations matching filters, most recently
// updated first.
func (s *Store) ListConversations(filters ListFilters, limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, title, topic_id, status, created_at, updated_at FROM conversations WHERE 1=1`
	var args []any

	if filters.TopicID != nil {
		query += " AND topic_id = ?"
		args = append(args, *filters.TopicID)
	}
	if filters.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filters.Status))
	}
	if filters.DateFrom != nil {
		query += " AND updated_at >= ?"
		args = append(args, filters.DateFrom.Unix())
	}
	if filters.DateTo != nil {
		query += " AND updated_at <= ?"
		args = append(args, filters.DateTo.Unix())
	}
	query += " ORDER BY updated_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConversations(rows)
}

func scanConversations(rows *sql.Rows) ([]Conversation, error) {
	var out []Conversation
	for rows.Next() {
		c, err := scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanConversationRow(rows *sql.Rows) (Conversation, error) {
	var c Conversation
	var topicID sql.NullString
	var status string
	var createdAt, updatedAt int64
	if err := rows.Scan(&c.ID, &c.Title, &topicID, &status, &createdAt, &updatedAt); err != nil {
		return Conversation{}, err
	}
	if topicID.Valid {
		v := topicID.String
		c.TopicID = &v
	}
	c.Status = Status(status)
	c.CreatedAt = unixToTime(createdAt)
	c.UpdatedAt = unixToTime(updatedAt)
	return c, nil
}

func unixToTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }
