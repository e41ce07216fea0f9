package account

import (
	"time"

	"github.com/google/uuid"

	"adcopysurge/internal/ledger"
)

// Account is the billable identity. ID is the canonical internal
// identifier: it doubles as the ledger's AccountID, and every collaborator
// resolves external identities (auth-provider subjects) to it before
// touching credits.
type Account struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ExternalID   *string   `db:"external_id" json:"external_id,omitempty"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// LedgerID returns the account's identity in the ledger's identifier type.
func (a *Account) LedgerID() ledger.AccountID {
	return ledger.AccountID{UUID: a.ID}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	// Tier is optional; empty means the free tier.
	Tier string `json:"tier,omitempty"`
	// ExternalID is the auth-provider subject, when signup came through a
	// federated provider. It is what ResolveExternal later looks up.
	ExternalID string `json:"external_id,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	Account      Account `json:"account"`
}

// Profile is the /me payload: the account plus its current balance view.
type Profile struct {
	Account Account             `json:"account"`
	Credits *ledger.BalanceView `json:"credits"`
}
