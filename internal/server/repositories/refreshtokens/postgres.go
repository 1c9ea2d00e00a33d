package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const columns = `id, user_id, value, created_at, expires_at, revoked_at, replaced_by_token_id, created_by_ip`

const uniqueViolation = "23505"

// PostgresRepository works over dbx.DBTX (either *sql.DB or *sql.Tx).
// Rotate opens its own transaction when given a *sql.DB.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*models.RefreshToken, error) {
	var (
		t          models.RefreshToken
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Value, &t.CreatedAt, &t.ExpiresAt, &revokedAt, &replacedBy, &t.CreatedByIP); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		t.RevokedAt = &at
	}
	if replacedBy.Valid {
		id := replacedBy.String
		t.ReplacedByTokenID = &id
	}
	return &t, nil
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	return insert(ctx, r.db, token)
}

func insert(ctx context.Context, db dbx.DBTX, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, value, created_at, expires_at, created_by_ip)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := db.ExecContext(ctx, query,
		token.ID, token.UserID, token.Value, token.CreatedAt, token.ExpiresAt, token.CreatedByIP)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByValue(ctx context.Context, value string) (*models.RefreshToken, error) {
	query := `SELECT ` + columns + ` FROM refresh_tokens WHERE value = $1`

	t, err := scanToken(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Rotate(ctx context.Context, value string, next *models.RefreshToken, now time.Time) (*models.RefreshToken, error) {
	var (
		presented *models.RefreshToken
		outcome   error
	)

	// Refusals are reported through outcome so that the lazy revoke of an
	// expired record still commits.
	err := dbx.InTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		query := `SELECT ` + columns + ` FROM refresh_tokens WHERE value = $1 FOR UPDATE`

		t, err := scanToken(tx.QueryRowContext(ctx, query, value))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return common.ErrorNotFound
			}
			return fmt.Errorf("db error: %w", err)
		}
		presented = t

		if t.ExpiredAt(now) {
			if !t.Revoked() {
				if _, err := tx.ExecContext(ctx,
					`UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1`, t.ID, now); err != nil {
					return fmt.Errorf("db error: %w", err)
				}
				t.RevokedAt = &now
			}
			outcome = common.ErrTokenExpired
			return nil
		}

		if t.Revoked() {
			outcome = common.ErrTokenReused
			return nil
		}

		if err := insert(ctx, tx, next); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens SET revoked_at = $2, replaced_by_token_id = $3 WHERE id = $1`,
			t.ID, now, next.ID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		t.RevokedAt = &now
		t.ReplacedByTokenID = &next.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return presented, outcome
}

func (r *PostgresRepository) Revoke(ctx context.Context, value string, now time.Time) (*models.RefreshToken, error) {
	query := `
		UPDATE refresh_tokens SET revoked_at = COALESCE(revoked_at, $2)
		WHERE value = $1
		RETURNING ` + columns

	t, err := scanToken(r.db.QueryRowContext(ctx, query, value, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) RevokeAll(ctx context.Context, userID string, now time.Time) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) DescendantsOf(ctx context.Context, id string) ([]*models.RefreshToken, error) {
	query := `
		WITH RECURSIVE chain AS (
			SELECT t.*, 1 AS depth FROM refresh_tokens t
			WHERE t.id = (SELECT replaced_by_token_id FROM refresh_tokens WHERE id = $1)
			UNION ALL
			SELECT t.*, c.depth + 1 FROM refresh_tokens t
			JOIN chain c ON t.id = c.replaced_by_token_id
		)
		SELECT ` + columns + ` FROM chain ORDER BY depth
	`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.RefreshToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) RevokeDescendants(ctx context.Context, id string, now time.Time) (int64, error) {
	query := `
		WITH RECURSIVE chain AS (
			SELECT replaced_by_token_id AS id FROM refresh_tokens WHERE id = $1
			UNION ALL
			SELECT t.replaced_by_token_id FROM refresh_tokens t
			JOIN chain c ON t.id = c.id
		)
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE id IN (SELECT id FROM chain WHERE id IS NOT NULL) AND revoked_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
