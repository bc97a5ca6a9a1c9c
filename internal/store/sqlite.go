// Package store is the C10 session store: the embedded SQL persistence
// layer for sessions, their message log, block UI state, and file-activity
// counters (spec §4.9). It is the on-disk twin of pkg/agentcore's domain
// types — one process-wide connection, serialized through a mutex per
// spec §5's shared-resource policy ("no lock is ever held across a
// suspension point other than the session-store connection").
//
// Grounded on internal/sessions/cockroach.go's prepared-statement shape,
// adapted from Postgres/CockroachDB to the embedded mattn/go-sqlite3
// driver the spec calls for (§6: "sessions.db — embedded SQL database").
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	working_dir TEXT NOT NULL DEFAULT '',
	agent_state TEXT NOT NULL DEFAULT 'idle',
	agent_started_at INTEGER,
	agent_last_event_at INTEGER
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);

CREATE TABLE IF NOT EXISTS block_ui_state (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	block_id TEXT NOT NULL,
	block_type TEXT NOT NULL,
	collapsed INTEGER NOT NULL DEFAULT 0,
	scroll_offset INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, block_id)
);

CREATE TABLE IF NOT EXISTS file_activity (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	file_path TEXT NOT NULL,
	read_count INTEGER NOT NULL DEFAULT 0,
	write_count INTEGER NOT NULL DEFAULT 0,
	edit_count INTEGER NOT NULL DEFAULT 0,
	last_accessed INTEGER NOT NULL,
	user_referenced INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, file_path)
);

CREATE TABLE IF NOT EXISTS user_preferences (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	user_id TEXT
);
`

// Store is the embedded SQLite session store. One instance owns one
// connection for the process's lifetime; callers never open their own.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (if absent) and opens the SQLite database at path, applying
// the schema idempotently. path is typically "<config dir>/sessions.db".
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sessions db: %w", err)
	}
	// A single logical connection matches the spec's "one connection per
	// process; queries serialize on it" — SQLite also only tolerates one
	// writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session row. Callers supply ID/CreatedAt; the
// store does not generate identifiers (see cmd/agentcore for uuid usage at
// the call site).
func (s *Store) CreateSession(ctx context.Context, sess agentcore.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, created_at, updated_at, working_dir, agent_state, agent_started_at, agent_last_event_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.CreatedAt.UnixNano(), sess.UpdatedAt.UnixNano(), sess.WorkingDir,
		string(sess.AgentState), nullableTime(sess.AgentStartedAt), nullableTime(sess.AgentLastEventAt))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession fetches one session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (agentcore.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at, working_dir, agent_state, agent_started_at, agent_last_event_at
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// UpdateSession overwrites the mutable fields of an existing session row.
func (s *Store) UpdateSession(ctx context.Context, sess agentcore.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET title = ?, updated_at = ?, working_dir = ?, agent_state = ?, agent_started_at = ?, agent_last_event_at = ?
		WHERE id = ?`,
		sess.Title, sess.UpdatedAt.UnixNano(), sess.WorkingDir, string(sess.AgentState),
		nullableTime(sess.AgentStartedAt), nullableTime(sess.AgentLastEventAt), sess.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update session: %q not found", sess.ID)
	}
	return nil
}

// DeleteSession removes a session and cascades to its messages, block UI
// state, and file activity (ON DELETE CASCADE; spec §3 ownership).
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// AppendMessage persists one message's content array, atomically per call.
// Per the append-only invariant, callers must not call this again for a
// message once its turn has been committed.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg agentcore.Message) (int64, error) {
	content, err := agentcore.MarshalBlocks(msg.Content)
	if err != nil {
		return 0, fmt.Errorf("encode message content: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(msg.Role), string(content), time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	return res.LastInsertId()
}

// ListMessages returns messages for a session in log order, paginated.
// limit<=0 means unbounded; offset may exceed the table size (returns
// empty, not an error) per spec §4.9's pagination contract.
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]agentcore.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, role, content FROM messages WHERE session_id = ? ORDER BY id LIMIT ? OFFSET ?`
	lim := limit
	if lim <= 0 {
		lim = -1 // SQLite treats LIMIT -1 as unbounded
	}
	rows, err := s.db.QueryContext(ctx, query, sessionID, lim, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []agentcore.Message
	for rows.Next() {
		var (
			seq     int64
			role    string
			content string
		)
		if err := rows.Scan(&seq, &role, &content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		blocks, err := agentcore.UnmarshalBlocks(json.RawMessage(content))
		if err != nil {
			return nil, fmt.Errorf("decode message %d: %w", seq, err)
		}
		out = append(out, agentcore.Message{Seq: seq, Role: agentcore.Role(role), Content: blocks})
	}
	return out, rows.Err()
}

// SetBlockUIState upserts the collapsed/scroll presentation state of one
// block within a session's transcript.
func (s *Store) SetBlockUIState(ctx context.Context, sessionID, blockID, blockType string, collapsed bool, scrollOffset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO block_ui_state (session_id, block_id, block_type, collapsed, scroll_offset)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, block_id) DO UPDATE SET
			block_type = excluded.block_type,
			collapsed = excluded.collapsed,
			scroll_offset = excluded.scroll_offset`,
		sessionID, blockID, blockType, boolToInt(collapsed), scrollOffset)
	if err != nil {
		return fmt.Errorf("set block ui state: %w", err)
	}
	return nil
}

// RecordFileActivity increments one counter (read/write/edit) for a file
// within a session and bumps last_accessed, creating the row if absent.
// kind is one of "read", "write", "edit".
func (s *Store) RecordFileActivity(ctx context.Context, sessionID, filePath, kind string, now time.Time) error {
	col, err := activityColumn(kind)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q := fmt.Sprintf(`
		INSERT INTO file_activity (session_id, file_path, %s, last_accessed, user_referenced)
		VALUES (?, ?, 1, ?, 0)
		ON CONFLICT(session_id, file_path) DO UPDATE SET
			%s = %s + 1,
			last_accessed = excluded.last_accessed`, col, col, col)
	if _, err := s.db.ExecContext(ctx, q, sessionID, filePath, now.UnixNano()); err != nil {
		return fmt.Errorf("record file activity: %w", err)
	}
	return nil
}

// MarkUserReferenced sets user_referenced=true for a file, creating the row
// if it doesn't already exist (a user can reference a file before any tool
// has touched it).
func (s *Store) MarkUserReferenced(ctx context.Context, sessionID, filePath string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_activity (session_id, file_path, last_accessed, user_referenced)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(session_id, file_path) DO UPDATE SET user_referenced = 1`,
		sessionID, filePath, now.UnixNano())
	if err != nil {
		return fmt.Errorf("mark user referenced: %w", err)
	}
	return nil
}

// RankedFile is one row of the importance-ranking query, with the reasons
// derived from which counters are nonzero (spec §4.9).
type RankedFile struct {
	FilePath string
	Score    float64
	Reasons  []string
}

// TopFiles returns the top-N files by importance score for a session,
// descending, computed with the §4.9 formula. now anchors the recency
// term so the result is deterministic for a given instant.
func (s *Store) TopFiles(ctx context.Context, sessionID string, limit int, now time.Time) ([]RankedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, read_count, write_count, edit_count, last_accessed, user_referenced
		FROM file_activity WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query file activity: %w", err)
	}
	defer rows.Close()

	var out []RankedFile
	for rows.Next() {
		var (
			path           string
			readCount      int
			writeCount     int
			editCount      int
			lastAccessedNs int64
			userRef        int
		)
		if err := rows.Scan(&path, &readCount, &writeCount, &editCount, &lastAccessedNs, &userRef); err != nil {
			return nil, fmt.Errorf("scan file activity: %w", err)
		}
		fa := agentcore.FileActivity{
			SessionID:      sessionID,
			FilePath:       path,
			ReadCount:      readCount,
			WriteCount:     writeCount,
			EditCount:      editCount,
			LastAccessed:   time.Unix(0, lastAccessedNs),
			UserReferenced: userRef != 0,
		}
		out = append(out, RankedFile{
			FilePath: path,
			Score:    fa.ImportanceScore(now),
			Reasons:  activityReasons(fa),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortRankedFilesDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func activityReasons(fa agentcore.FileActivity) []string {
	var reasons []string
	if fa.WriteCount > 0 {
		reasons = append(reasons, "written")
	}
	if fa.EditCount > 0 {
		reasons = append(reasons, "edited")
	}
	if fa.ReadCount > 0 {
		reasons = append(reasons, "read")
	}
	if fa.UserReferenced {
		reasons = append(reasons, "user_referenced")
	}
	return reasons
}

func sortRankedFilesDesc(files []RankedFile) {
	// Simple insertion sort: result sets are small (one session's touched
	// files), and this keeps the ordering stable for equal scores.
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && files[j].Score > files[j-1].Score; j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
}

// SetPreference upserts a user preference.
func (s *Store) SetPreference(ctx context.Context, key, value, userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (key, value, updated_at, user_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at, user_id = excluded.user_id`,
		key, value, now.UnixNano(), userID)
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	return nil
}

// GetPreference reads a user preference, if set.
func (s *Store) GetPreference(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM user_preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference: %w", err)
	}
	return value, true, nil
}

func activityColumn(kind string) (string, error) {
	switch kind {
	case "read":
		return "read_count", nil
	case "write":
		return "write_count", nil
	case "edit":
		return "edit_count", nil
	default:
		return "", fmt.Errorf("record file activity: unknown kind %q", kind)
	}
}

func scanSession(row *sql.Row) (agentcore.Session, error) {
	var (
		sess                              agentcore.Session
		createdAtNs, updatedAtNs          int64
		agentState                        string
		agentStartedAt, agentLastEventAt  sql.NullInt64
	)
	err := row.Scan(&sess.ID, &sess.Title, &createdAtNs, &updatedAtNs, &sess.WorkingDir,
		&agentState, &agentStartedAt, &agentLastEventAt)
	if err == sql.ErrNoRows {
		return agentcore.Session{}, fmt.Errorf("session not found")
	}
	if err != nil {
		return agentcore.Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.CreatedAt = time.Unix(0, createdAtNs)
	sess.UpdatedAt = time.Unix(0, updatedAtNs)
	sess.AgentState = agentcore.AgentState(agentState)
	if agentStartedAt.Valid {
		t := time.Unix(0, agentStartedAt.Int64)
		sess.AgentStartedAt = &t
	}
	if agentLastEventAt.Valid {
		t := time.Unix(0, agentLastEventAt.Int64)
		sess.AgentLastEventAt = &t
	}
	return sess, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
