package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"maildigest/internal/domain"
	"maildigest/internal/ports"
)

// PostgresRepository persists digest history and important-sender flags.
type PostgresRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var (
	_ ports.DigestHistory        = (*PostgresRepository)(nil)
	_ ports.ImportantSenderStore = (*PostgresRepository)(nil)
)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// EnsureSchema creates the tables when they do not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	schema := []string{
		`CREATE TABLE IF NOT EXISTS digested_messages (
			message_id      TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender          TEXT NOT NULL,
			subject         TEXT NOT NULL DEFAULT '',
			urgency_tier    TEXT NOT NULL DEFAULT 'normal',
			digested_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS important_senders (
			address    TEXT PRIMARY KEY,
			flagged_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// AlreadyDigested returns a map with message ids already present in
// history.
func (r *PostgresRepository) AlreadyDigested(ctx context.Context, ids []string) (map[string]bool, error) {
	if r.db == nil || len(ids) == 0 {
		return map[string]bool{}, nil
	}

	query := `SELECT message_id FROM digested_messages WHERE message_id = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.StringArray(ids))
	if err != nil {
		return nil, fmt.Errorf("query digested: %w", err)
	}
	defer rows.Close()

	result := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		result[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// SaveDigested records every member message of the digest's items.
func (r *PostgresRepository) SaveDigested(ctx context.Context, conversationID string, items []domain.DigestItem) error {
	if r.db == nil || len(items) == 0 {
		return nil
	}

	insert := r.builder.
		Insert("digested_messages").
		Columns("message_id", "conversation_id", "sender", "subject", "urgency_tier").
		Suffix("ON CONFLICT (message_id) DO NOTHING")
	for _, item := range items {
		for _, ref := range item.MemberRefs {
			insert = insert.Values(ref, conversationID, item.GroupKey, item.Subject, string(item.Urgency.Tier))
		}
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build digested insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert digested: %w", err)
	}
	return nil
}

// ImportantSenders loads the persisted flag set.
func (r *PostgresRepository) ImportantSenders(ctx context.Context) ([]string, error) {
	if r.db == nil {
		return nil, nil
	}

	query, args, err := r.builder.
		Select("address").From("important_senders").OrderBy("address").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build senders query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query important senders: %w", err)
	}
	defer rows.Close()

	var senders []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		senders = append(senders, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return senders, nil
}

// SetImportantSender flags or unflags one address.
func (r *PostgresRepository) SetImportantSender(ctx context.Context, address string, important bool) error {
	if r.db == nil {
		return nil
	}

	var (
		query string
		args  []any
		err   error
	)
	if important {
		query, args, err = r.builder.
			Insert("important_senders").
			Columns("address").
			Values(address).
			Suffix("ON CONFLICT (address) DO NOTHING").
			ToSql()
	} else {
		query, args, err = r.builder.
			Delete("important_senders").
			Where(sq.Eq{"address": address}).
			ToSql()
	}
	if err != nil {
		return fmt.Errorf("build sender statement: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write important sender: %w", err)
	}
	return nil
}
