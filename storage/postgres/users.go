package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sigforge/sigforge/internal/types"
)

const USERS_TABLE = "users"

func (p *PostgresBackend) FindUserById(ctx context.Context, userID string) (*types.User, error) {
	query := fmt.Sprintf(`SELECT id, username, created_at FROM %s WHERE id = $1 LIMIT 1;`, USERS_TABLE)

	rows, err := p.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	user, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[types.User])
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (p *PostgresBackend) FindUserByName(ctx context.Context, username string) (*types.UserWithPassword, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE username = $1 LIMIT 1;`, USERS_TABLE)

	rows, err := p.pool.Query(ctx, query, username)
	if err != nil {
		return nil, err
	}

	user, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[types.UserWithPassword])
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (p *PostgresBackend) InsertUser(ctx context.Context, username string, passwordHash string) (*types.User, error) {
	query := fmt.Sprintf(`INSERT INTO %s (id, username, password) VALUES ($1, $2, $3) RETURNING id, username, created_at;`, USERS_TABLE)

	rows, err := p.pool.Query(ctx, query, uuid.New().String(), username, passwordHash)
	if err != nil {
		return nil, err
	}

	user, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[types.User])
	if err != nil {
		return nil, err
	}

	return &user, nil
}
