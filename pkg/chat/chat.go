// Package chat persists conversation sessions: messages, per-session memory
// facts, and human feedback, on SQLite.
package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"copilot/pkg/logx"
)

// ErrNotFound is returned when a session or message lookup matches nothing.
var ErrNotFound = errors.New("not found")

// DefaultTitle is used for sessions created without an explicit title.
const DefaultTitle = "Seller chat"

// Session is one conversation thread with a seller.
type Session struct {
	SessionID  string `json:"session_id"`
	SellerID   string `json:"seller_id,omitempty"`
	SellerName string `json:"seller_name,omitempty"`
	Title      string `json:"title"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// Message is one chat turn inside a session.
type Message struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// Feedback is one piece of human feedback on a copilot response.
type Feedback struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id,omitempty"`
	RequestID string         `json:"request_id"`
	Rating    int            `json:"rating,omitempty"`
	Comment   string         `json:"comment,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// Store persists sessions, messages, memory facts, and feedback.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if needed) the chat database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		path,
	))
	if err != nil {
		return nil, logx.Wrap(err, "open chat db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, logx.Wrap(err, "ping chat db")
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logx.NewLogger("chat")}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			session_id TEXT PRIMARY KEY,
			seller_id TEXT,
			seller_name TEXT,
			title TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			request_id TEXT,
			metadata_json TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES chat_sessions(session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_memory_facts (
			session_id TEXT NOT NULL,
			fact_key TEXT NOT NULL,
			fact_value TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY(session_id, fact_key),
			FOREIGN KEY(session_id) REFERENCES chat_sessions(session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT,
			request_id TEXT NOT NULL,
			rating INTEGER,
			comment TEXT,
			metadata_json TEXT,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return logx.Wrap(err, "init chat schema")
		}
	}
	return nil
}

// CreateSession creates a fresh session with a generated id.
func (s *Store) CreateSession(ctx context.Context, sellerID, sellerName, title string) (*Session, error) {
	if title == "" {
		title = DefaultTitle
	}
	sessionID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions(session_id, seller_id, seller_name, title) VALUES (?, ?, ?, ?)`,
		sessionID, nullable(sellerID), nullable(sellerName), title,
	)
	if err != nil {
		return nil, logx.Wrap(err, "create session")
	}
	s.logger.Debug("created session %s", sessionID)
	return s.GetSession(ctx, sessionID)
}

// EnsureSession returns the session with the given id, creating it when
// missing. A new seller name on an existing session overwrites the old one.
func (s *Store) EnsureSession(ctx context.Context, sessionID, sellerID, sellerName string) (*Session, error) {
	existing, err := s.GetSession(ctx, sessionID)
	switch {
	case err == nil:
		if sellerName != "" && sellerName != existing.SellerName {
			if err := s.UpdateSellerName(ctx, sessionID, sellerName); err != nil {
				return nil, err
			}
			return s.GetSession(ctx, sessionID)
		}
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions(session_id, seller_id, seller_name, title) VALUES (?, ?, ?, ?)`,
		sessionID, nullable(sellerID), nullable(sellerName), DefaultTitle,
	)
	if err != nil {
		return nil, logx.Wrap(err, "ensure session")
	}
	return s.GetSession(ctx, sessionID)
}

// UpdateSellerName overwrites the remembered seller name on a session.
func (s *Store) UpdateSellerName(ctx context.Context, sessionID, sellerName string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET seller_name = ?, updated_at = CURRENT_TIMESTAMP WHERE session_id = ?`,
		sellerName, sessionID,
	)
	if err != nil {
		return logx.Wrap(err, "update seller name")
	}
	return nil
}

// GetSession loads one session, ErrNotFound when missing.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, seller_id, seller_name, title, created_at, updated_at
		 FROM chat_sessions WHERE session_id = ?`,
		sessionID,
	)
	var sess Session
	var sellerID, sellerName sql.NullString
	err := row.Scan(&sess.SessionID, &sellerID, &sellerName, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, logx.Wrap(err, "get session")
	}
	sess.SellerID = sellerID.String
	sess.SellerName = sellerName.String
	return &sess, nil
}

// ListSessions returns the most recently updated sessions, optionally
// filtered by seller.
func (s *Store) ListSessions(ctx context.Context, sellerID string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT session_id, seller_id, seller_name, title, created_at, updated_at
		 FROM chat_sessions ORDER BY updated_at DESC LIMIT ?`
	args := []any{limit}
	if sellerID != "" {
		query = `SELECT session_id, seller_id, seller_name, title, created_at, updated_at
		 FROM chat_sessions WHERE seller_id = ? ORDER BY updated_at DESC LIMIT ?`
		args = []any{sellerID, limit}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, logx.Wrap(err, "list sessions")
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var sid, sname sql.NullString
		if err := rows.Scan(&sess.SessionID, &sid, &sname, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, logx.Wrap(err, "scan session")
		}
		sess.SellerID = sid.String
		sess.SellerName = sname.String
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// AddMessage appends a message to a session and bumps the session's
// updated_at timestamp.
func (s *Store) AddMessage(ctx context.Context, sessionID, role, content, requestID string, metadata map[string]any) (*Message, error) {
	metaJSON, err := json.Marshal(orEmpty(metadata))
	if err != nil {
		return nil, logx.Wrap(err, "marshal message metadata")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages(session_id, role, content, request_id, metadata_json) VALUES (?, ?, ?, ?, ?)`,
		sessionID, role, content, nullable(requestID), string(metaJSON),
	)
	if err != nil {
		return nil, logx.Wrap(err, "add message")
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = CURRENT_TIMESTAMP WHERE session_id = ?`,
		sessionID,
	); err != nil {
		return nil, logx.Wrap(err, "touch session")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, logx.Wrap(err, "message id")
	}
	return s.GetMessage(ctx, id)
}

// GetMessage loads one message by id.
func (s *Store) GetMessage(ctx context.Context, id int64) (*Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, role, content, request_id, metadata_json, created_at
		 FROM chat_messages WHERE id = ?`,
		id,
	)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, logx.Wrap(err, "get message")
	}
	return msg, nil
}

// ListMessages returns the oldest messages of a session in insertion order.
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, request_id, metadata_json, created_at
		 FROM chat_messages WHERE session_id = ? ORDER BY id ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, logx.Wrap(err, "list messages")
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, logx.Wrap(err, "scan message")
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// RecentTurns renders the last limitPairs user/assistant exchanges as
// "role: content" lines for prompt context.
func (s *Store) RecentTurns(ctx context.Context, sessionID string, limitPairs int) ([]string, error) {
	if limitPairs <= 0 {
		limitPairs = 3
	}
	messages, err := s.ListMessages(ctx, sessionID, limitPairs*2+2)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}
	start := len(messages) - limitPairs*2
	if start < 0 {
		start = 0
	}
	turns := make([]string, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		turns = append(turns, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return turns, nil
}

// UpsertMemoryFact stores a key/value fact scoped to the session,
// overwriting any previous value for the key.
func (s *Store) UpsertMemoryFact(ctx context.Context, sessionID, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_memory_facts(session_id, fact_key, fact_value) VALUES (?, ?, ?)
		 ON CONFLICT(session_id, fact_key)
		 DO UPDATE SET fact_value = excluded.fact_value, updated_at = CURRENT_TIMESTAMP`,
		sessionID, key, value,
	)
	if err != nil {
		return logx.Wrap(err, "upsert memory fact")
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = CURRENT_TIMESTAMP WHERE session_id = ?`,
		sessionID,
	); err != nil {
		return logx.Wrap(err, "touch session")
	}
	return nil
}

// MemoryFacts returns all facts for a session, keyed and sorted by fact key.
func (s *Store) MemoryFacts(ctx context.Context, sessionID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fact_key, fact_value FROM chat_memory_facts WHERE session_id = ? ORDER BY fact_key ASC`,
		sessionID,
	)
	if err != nil {
		return nil, logx.Wrap(err, "list memory facts")
	}
	defer rows.Close()

	facts := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, logx.Wrap(err, "scan memory fact")
		}
		facts[k] = v
	}
	return facts, rows.Err()
}

// AddFeedback records human feedback for an analyze request.
func (s *Store) AddFeedback(ctx context.Context, fb Feedback) (int64, error) {
	if fb.RequestID == "" {
		return 0, errors.New("feedback needs a request id")
	}
	if fb.Rating != 0 && (fb.Rating < 1 || fb.Rating > 5) {
		return 0, fmt.Errorf("rating %d out of range", fb.Rating)
	}
	metaJSON, err := json.Marshal(orEmpty(fb.Metadata))
	if err != nil {
		return 0, logx.Wrap(err, "marshal feedback metadata")
	}
	var rating any
	if fb.Rating != 0 {
		rating = fb.Rating
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_feedback(session_id, request_id, rating, comment, metadata_json) VALUES (?, ?, ?, ?, ?)`,
		nullable(fb.SessionID), fb.RequestID, rating, nullable(fb.Comment), string(metaJSON),
	)
	if err != nil {
		return 0, logx.Wrap(err, "add feedback")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, logx.Wrap(err, "feedback id")
	}
	s.logger.Info("feedback recorded request=%s rating=%d", fb.RequestID, fb.Rating)
	return id, nil
}

// ListFeedback returns the feedback rows for one request.
func (s *Store) ListFeedback(ctx context.Context, requestID string) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, request_id, rating, comment, metadata_json, created_at
		 FROM chat_feedback WHERE request_id = ? ORDER BY id ASC`,
		requestID,
	)
	if err != nil {
		return nil, logx.Wrap(err, "list feedback")
	}
	defer rows.Close()

	var items []Feedback
	for rows.Next() {
		var fb Feedback
		var sessionID, comment, metaJSON sql.NullString
		var rating sql.NullInt64
		if err := rows.Scan(&fb.ID, &sessionID, &fb.RequestID, &rating, &comment, &metaJSON, &fb.CreatedAt); err != nil {
			return nil, logx.Wrap(err, "scan feedback")
		}
		fb.SessionID = sessionID.String
		fb.Comment = comment.String
		fb.Rating = int(rating.Int64)
		if metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &fb.Metadata); err != nil {
				return nil, logx.Wrap(err, "decode feedback metadata")
			}
		}
		items = append(items, fb)
	}
	return items, rows.Err()
}

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var msg Message
	var requestID, metaJSON sql.NullString
	if err := row.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &requestID, &metaJSON, &msg.CreatedAt); err != nil {
		return nil, err
	}
	msg.RequestID = requestID.String
	if metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &msg.Metadata); err != nil {
			return nil, err
		}
	}
	return &msg, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
