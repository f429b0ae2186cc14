package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads and updates user rows via ripple.users.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
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
			return errors.New("identity: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed user store.
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
		return nil, errors.New("identity: nil pool")
	}
	return st, nil
}

// GetUser returns the user row for id, or ErrNotFound.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	if s == nil || s.pool == nil {
		return User{}, errors.New("identity: nil store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, OpError{Op: "identity.GetUser", Kind: ErrInvalidInput, Msg: "empty id"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, COALESCE(avatar_url, ''), COALESCE(status_message, ''), is_online, last_seen_at
		 FROM `+users+` WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.AvatarURL, &u.StatusMessage, &u.IsOnline, &u.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, OpError{Op: "identity.GetUser", Kind: ErrNotFound}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// SetOnlineStatus records the online flag and last-seen timestamp.
func (s *PostgresStore) SetOnlineStatus(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	if s == nil || s.pool == nil {
		return errors.New("identity: nil store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return OpError{Op: "identity.SetOnlineStatus", Kind: ErrInvalidInput, Msg: "empty id"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	users := pgIdent(s.schema, "users")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+users+` SET is_online = $2, last_seen_at = $3 WHERE id = $1`,
		id, online, lastSeen.UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: "identity.SetOnlineStatus", Kind: ErrNotFound}
	}
	return nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
