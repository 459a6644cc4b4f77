package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Vector/gbp-ops-sync/models"
)

type connectionRepository struct {
	db *sql.DB
}

// ConnectionRepository persists OAuth connection records. Token state is
// deliberately absent; only the routing data needed to refresh lives
// here.
type ConnectionRepository interface {
	Get(ctx context.Context, id string) (*models.Connection, error)
	Create(ctx context.Context, conn *models.Connection) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.Connection, error)
}

// NewConnectionRepository creates a PostgreSQL-backed ConnectionRepository.
func NewConnectionRepository(db *sql.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

func (repo *connectionRepository) Get(ctx context.Context, id string) (*models.Connection, error) {
	const q = `SELECT id, external_user_id, source, COALESCE(broker_account_id, ''), created_at
	           FROM connections WHERE id = $1`

	var conn models.Connection

	err := repo.db.QueryRowContext(ctx, q, id).Scan(
		&conn.ID, &conn.ExternalUserID, &conn.Source, &conn.BrokerAccountID, &conn.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("connection %s: %w", id, models.ErrConnectionNotFound)
		}

		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	return &conn, nil
}

func (repo *connectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	if err := conn.Validate(); err != nil {
		return fmt.Errorf("invalid connection: %w", err)
	}

	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO connections (id, external_user_id, source, broker_account_id, created_at)
	           VALUES ($1, $2, $3, NULLIF($4, ''), $5)
	           ON CONFLICT (id) DO UPDATE SET
	               external_user_id = EXCLUDED.external_user_id,
	               source = EXCLUDED.source,
	               broker_account_id = EXCLUDED.broker_account_id`

	_, err := repo.db.ExecContext(ctx, q,
		conn.ID, conn.ExternalUserID, conn.Source, conn.BrokerAccountID, conn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}

	return nil
}

func (repo *connectionRepository) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM connections WHERE id = $1`

	result, err := repo.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("connection %s: %w", id, models.ErrConnectionNotFound)
	}

	return nil
}

func (repo *connectionRepository) List(ctx context.Context) ([]models.Connection, error) {
	const q = `SELECT id, external_user_id, source, COALESCE(broker_account_id, ''), created_at
	           FROM connections ORDER BY created_at DESC`

	rows, err := repo.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var ans []models.Connection

	for rows.Next() {
		var conn models.Connection

		if err := rows.Scan(&conn.ID, &conn.ExternalUserID, &conn.Source, &conn.BrokerAccountID, &conn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}

		ans = append(ans, conn)
	}

	return ans, rows.Err()
}
