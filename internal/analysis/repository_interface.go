package analysis

import (
	"context"

	"adcopysurge/internal/ledger"
)

type Repository interface {
	Create(ctx context.Context, a *Analysis) error
	ListByAccount(ctx context.Context, id ledger.AccountID, limit, offset int) ([]Analysis, error)
}
