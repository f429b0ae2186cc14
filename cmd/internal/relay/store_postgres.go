package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements ChatStore and MessageStore over PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Concurrency model:
//   - AppendReader relies on a unique (message_id, user_id) row with
//     ON CONFLICT DO NOTHING: the set-add is atomic and idempotent without
//     any read-modify-write of an array column.
//   - SetStatus carries its monotonic guard in the UPDATE predicate, so
//     concurrent advancers resolve in the database, not in Go.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "ripple").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("relay: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("relay: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "ripple",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("relay: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// ---- ChatStore ----

func (s *PostgresStore) ChatsFor(ctx context.Context, userID string) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("relay: nil store")
	}
	if userID == "" {
		return nil, errors.New("missing user id")
	}

	participants := pgIdent(s.schema, "chat_participants")

	rows, err := s.pool.Query(ctx,
		`SELECT chat_id FROM `+participants+` WHERE user_id = $1 ORDER BY chat_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Participants(ctx context.Context, chatID string) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("relay: nil store")
	}
	if chatID == "" {
		return nil, errors.New("missing chat id")
	}

	chats := pgIdent(s.schema, "chats")
	participants := pgIdent(s.schema, "chat_participants")

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+chats+` WHERE id = $1)`,
		chatID,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM `+participants+` WHERE chat_id = $1 ORDER BY user_id`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) IsParticipant(ctx context.Context, userID, chatID string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, errors.New("relay: nil store")
	}
	if userID == "" || chatID == "" {
		return false, nil
	}

	participants := pgIdent(s.schema, "chat_participants")

	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+participants+` WHERE chat_id = $1 AND user_id = $2)`,
		chatID, userID,
	).Scan(&ok)
	return ok, err
}

// ---- MessageStore ----

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("relay: nil store")
	}
	if id == "" {
		return Message{}, errors.New("missing message id")
	}

	messages := pgIdent(s.schema, "messages")
	reads := pgIdent(s.schema, "message_reads")

	var (
		m            Message
		status       string
		reactionsRaw []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT m.id, m.chat_id, m.sender_id, COALESCE(m.sender_name, ''),
		        COALESCE(m.content, ''), COALESCE(m.media_url, ''), COALESCE(m.kind, 'text'),
		        m.status, COALESCE(m.reactions, '[]'::jsonb), COALESCE(m.starred_by, '{}'),
		        m.created_at, m.edited_at,
		        COALESCE((SELECT array_agg(r.user_id ORDER BY r.read_at) FROM `+reads+` r WHERE r.message_id = m.id), '{}')
		   FROM `+messages+` m
		  WHERE m.id = $1`,
		id,
	).Scan(
		&m.ID, &m.ChatID, &m.SenderID, &m.SenderName,
		&m.Content, &m.MediaURL, &m.Kind,
		&status, &reactionsRaw, &m.StarredBy,
		&m.CreatedAt, &m.EditedAt,
		&m.ReadBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}

	m.Status = Status(status)

	var rx []struct {
		UserID string `json:"user_id"`
		Emoji  string `json:"emoji"`
	}
	if err := json.Unmarshal(reactionsRaw, &rx); err != nil {
		return Message{}, fmt.Errorf("decode reactions: %w", err)
	}
	for _, r := range rx {
		m.Reactions = append(m.Reactions, Reaction{UserID: r.UserID, Emoji: r.Emoji})
	}

	return m, nil
}

func (s *PostgresStore) AppendReader(ctx context.Context, messageID, userID string) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("relay: nil store")
	}
	if messageID == "" || userID == "" {
		return nil, errors.New("invalid input")
	}

	messages := pgIdent(s.schema, "messages")
	reads := pgIdent(s.schema, "message_reads")

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+messages+` WHERE id = $1)`,
		messageID,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+reads+` (message_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (message_id, user_id) DO NOTHING`,
		messageID, userID,
	); err != nil {
		return nil, err
	}

	var readBy []string
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(array_agg(user_id ORDER BY read_at), '{}')
		   FROM `+reads+`
		  WHERE message_id = $1`,
		messageID,
	).Scan(&readBy); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return readBy, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, messageID string, status Status) error {
	if s == nil || s.pool == nil {
		return errors.New("relay: nil store")
	}
	if messageID == "" || status.rank() < 0 {
		return errors.New("invalid input")
	}

	messages := pgIdent(s.schema, "messages")

	// The rank predicate makes the update a no-op for regressions, so the
	// guard holds even when two connections advance the same row at once.
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+messages+`
		    SET status = $2,
		        updated_at = now()
		  WHERE id = $1
		    AND (CASE status WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 WHEN 'read' THEN 2 ELSE -1 END)
		      < (CASE $2 WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 WHEN 'read' THEN 2 ELSE -1 END)`,
		messageID, string(status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows is either a benign regression or a missing message.
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+messages+` WHERE id = $1)`,
		messageID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
