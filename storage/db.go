package storage

import (
	"context"

	"github.com/sigforge/sigforge/internal/types"
)

type DatabaseStorage interface {
	Close() error

	FindUserById(ctx context.Context, userID string) (*types.User, error)
	FindUserByName(ctx context.Context, username string) (*types.UserWithPassword, error)
	InsertUser(ctx context.Context, username string, passwordHash string) (*types.User, error)

	InsertSigningKey(ctx context.Context, key *types.SigningKey) error
	GetSigningKey(ctx context.Context, keyID string) (*types.SigningKey, error)
	GetAllSigningKeys(ctx context.Context) ([]types.SigningKey, error)
	DeleteSigningKey(ctx context.Context, keyID string) error
}
