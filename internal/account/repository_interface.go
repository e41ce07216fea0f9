package account

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, name, email, passwordHash, role string) (*Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByExternalID(ctx context.Context, externalID string) (*Account, error)
	LinkExternalID(ctx context.Context, id uuid.UUID, externalID string) error
	EmailExists(ctx context.Context, email string) (bool, error)
}
