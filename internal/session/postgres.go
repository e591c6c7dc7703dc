package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/docuchat/docuchat/internal/generation"
	"github.com/docuchat/docuchat/internal/observability"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	message_id TEXT UNIQUE NOT NULL,
	session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	sources JSONB,
	timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
`

// PostgresStore persists sessions and messages in PostgreSQL.
type PostgresStore struct {
	db     *sqlx.DB
	logger observability.Logger
}

// PostgresConfig holds the connection settings for the durable store.
type PostgresConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewPostgresStore connects per cfg, applies the pool limits, and ensures
// the schema exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger observability.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if cfg.Driver == "" {
		cfg.Driver = "postgres"
	}
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.Info("Database initialized", nil)
	return &PostgresStore{db: db, logger: logger}, nil
}

// Close releases the database connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateSession(ctx context.Context, sessionID string) error {
	now := Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (session_id) DO NOTHING`,
		sessionID, now)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveMessage(ctx context.Context, msg Message) error {
	if msg.Timestamp == "" {
		msg.Timestamp = Now()
	}

	var sources interface{}
	if len(msg.Sources) > 0 {
		encoded, err := json.Marshal(msg.Sources)
		if err != nil {
			return fmt.Errorf("failed to encode sources: %w", err)
		}
		sources = encoded
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (session_id) DO NOTHING`,
		msg.SessionID, msg.Timestamp); err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (message_id, session_id, role, content, sources, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id) DO UPDATE SET
			role = EXCLUDED.role,
			content = EXCLUDED.content,
			sources = EXCLUDED.sources,
			timestamp = EXCLUDED.timestamp`,
		msg.MessageID, msg.SessionID, msg.Role, msg.Content, sources, msg.Timestamp); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET updated_at = $1 WHERE session_id = $2`,
		msg.Timestamp, msg.SessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return tx.Commit()
}

type messageRow struct {
	MessageID string         `db:"message_id"`
	SessionID string         `db:"session_id"`
	Role      string         `db:"role"`
	Content   string         `db:"content"`
	Sources   sql.NullString `db:"sources"`
	Timestamp string         `db:"timestamp"`
}

func (s *PostgresStore) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT message_id, session_id, role, content, sources, timestamp
		FROM messages
		WHERE session_id = $1
		ORDER BY id ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		msg := Message{
			MessageID: row.MessageID,
			SessionID: row.SessionID,
			Role:      row.Role,
			Content:   row.Content,
			Timestamp: row.Timestamp,
		}
		if row.Sources.Valid {
			var sources []generation.Source
			if err := json.Unmarshal([]byte(row.Sources.String), &sources); err != nil {
				s.logger.Warn("Skipping undecodable message sources", map[string]interface{}{
					"message_id": row.MessageID,
					"error":      err.Error(),
				})
			} else {
				msg.Sources = sources
			}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *PostgresStore) GetHistory(ctx context.Context, sessionID string) ([]Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT message_id, session_id, role, content, sources, timestamp
		FROM messages
		WHERE session_id = $1
		ORDER BY id ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	history := make([]Message, 0, len(rows))
	for _, row := range rows {
		history = append(history, Message{Role: row.Role, Content: row.Content})
	}
	return history, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		s.logger.Info("Session deleted", map[string]interface{}{
			"session_id": sessionID,
		})
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]Info, error) {
	var infos []Info
	err := s.db.SelectContext(ctx, &infos, `
		SELECT s.session_id, s.created_at, s.updated_at,
			COUNT(m.id) AS message_count,
			COALESCE((SELECT content FROM messages
				WHERE session_id = s.session_id AND role = 'user'
				ORDER BY id ASC LIMIT 1), '') AS first_message
		FROM sessions s
		LEFT JOIN messages m ON s.session_id = m.session_id
		GROUP BY s.session_id
		ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if infos == nil {
		infos = []Info{}
	}
	return infos, nil
}
