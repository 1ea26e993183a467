package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sigforge/sigforge/internal/types"
)

const KEYS_TABLE = "signing_keys"

func (p *PostgresBackend) InsertSigningKey(ctx context.Context, key *types.SigningKey) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, name, algorithm, public_jwk, encrypted_private_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);`, KEYS_TABLE)

	_, err := p.pool.Exec(ctx, query,
		key.ID, key.Name, key.Algorithm, key.PublicJWK, key.EncryptedPrivateKey, key.CreatedAt)
	return err
}

func (p *PostgresBackend) GetSigningKey(ctx context.Context, keyID string) (*types.SigningKey, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE id = $1 LIMIT 1;`, KEYS_TABLE)

	rows, err := p.pool.Query(ctx, query, keyID)
	if err != nil {
		return nil, err
	}

	key, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[types.SigningKey])
	if err != nil {
		return nil, err
	}

	return &key, nil
}

func (p *PostgresBackend) GetAllSigningKeys(ctx context.Context) ([]types.SigningKey, error) {
	query := fmt.Sprintf(`SELECT * FROM %s ORDER BY created_at DESC;`, KEYS_TABLE)

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowToStructByName[types.SigningKey])
}

func (p *PostgresBackend) DeleteSigningKey(ctx context.Context, keyID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1;`, KEYS_TABLE)

	_, err := p.pool.Exec(ctx, query, keyID)
	return err
}
