package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

var (
	// ErrOperatorExists is returned when the operator name is taken.
	ErrOperatorExists = errors.New("operator already exists")
	// ErrPrefixTaken is returned when another operator's token shares the
	// lookup prefix. The caller should generate a new token.
	ErrPrefixTaken = errors.New("token prefix already in use")
)

const uniqueViolation = "23505"

// CreateOperator inserts an operator and returns its id.
func (s *Store) CreateOperator(ctx context.Context, op *model.Operator) (int64, error) {
	var id int64
	err := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO operators (name, token_prefix, token_hash)
		VALUES ($1, $2, $3)
		RETURNING id`,
		op.Name, op.TokenPrefix, op.TokenHash,
	).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == "operators_token_prefix_key" {
			return 0, fmt.Errorf("CreateOperator: %w", ErrPrefixTaken)
		}
		return 0, fmt.Errorf("CreateOperator: %q: %w", op.Name, ErrOperatorExists)
	}
	if err != nil {
		return 0, fmt.Errorf("CreateOperator: %w", err)
	}
	return id, nil
}

// OperatorByPrefix returns the operator owning a token prefix, or nil, nil.
func (s *Store) OperatorByPrefix(ctx context.Context, prefix string) (*model.Operator, error) {
	var op model.Operator
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, name, token_prefix, token_hash, created_at
		FROM operators WHERE token_prefix = $1`, prefix,
	).Scan(&op.ID, &op.Name, &op.TokenPrefix, &op.TokenHash, &op.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("OperatorByPrefix: %w", err)
	}
	return &op, nil
}

// ListOperators returns every operator, oldest first. Hashes are not loaded.
func (s *Store) ListOperators(ctx context.Context) ([]model.Operator, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, name, token_prefix, created_at
		FROM operators ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("ListOperators: %w", err)
	}
	defer rows.Close()

	var ops []model.Operator
	for rows.Next() {
		var op model.Operator
		if err := rows.Scan(&op.ID, &op.Name, &op.TokenPrefix, &op.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListOperators: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListOperators: %w", err)
	}
	return ops, nil
}

// DeleteOperator removes an operator by name. It reports whether a row
// was deleted.
func (s *Store) DeleteOperator(ctx context.Context, name string) (bool, error) {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM operators WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("DeleteOperator: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("DeleteOperator: %w", err)
	}
	return n == 1, nil
}
