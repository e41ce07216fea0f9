package account

import (
	"context"

	"adcopysurge/internal/ledger"
)

// LedgerDirectory adapts the account repository to the ledger's contact
// lookup, so reset notices can reach the account's inbox.
type LedgerDirectory struct {
	repo Repository
}

func NewLedgerDirectory(repo Repository) *LedgerDirectory {
	return &LedgerDirectory{repo: repo}
}

func (d *LedgerDirectory) Email(ctx context.Context, id ledger.AccountID) (string, error) {
	acc, err := d.repo.FindByID(ctx, id.UUID)
	if err != nil {
		return "", err
	}
	return acc.Email, nil
}
