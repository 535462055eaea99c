package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource reads credential records from the mailbox_credentials
// table. The credential_key column holds the delimited
// "token,phoneId,wabaId" string the resolver parses.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

var _ Source = (*PostgresSource)(nil)

func (s *PostgresSource) Lookup(ctx context.Context, mailboxID string) (string, error) {
	var key string
	err := s.pool.QueryRow(ctx, `
		SELECT credential_key
		FROM mailbox_credentials
		WHERE mailbox_id = $1
		LIMIT 1
	`, mailboxID).Scan(&key)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, mailboxID)
	}
	if err != nil {
		return "", fmt.Errorf("credential lookup for %q: %w", mailboxID, err)
	}
	return key, nil
}
