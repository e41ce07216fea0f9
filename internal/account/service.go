package account

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"adcopysurge/internal/auth"
	"adcopysurge/internal/ledger"
	"adcopysurge/internal/logger"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// CreditLedger is the slice of the ledger the account service needs:
// provisioning at signup and the balance view for profiles.
type CreditLedger interface {
	Provision(ctx context.Context, id ledger.AccountID, tier ledger.Tier) (*ledger.CreditRecord, error)
	GetBalance(ctx context.Context, id ledger.AccountID) (*ledger.BalanceView, error)
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*Account, string, string, error)
	Login(ctx context.Context, req LoginRequest) (*Account, string, string, error)
	RefreshToken(ctx context.Context, refreshToken string) (string, *Account, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)
	ResolveExternal(ctx context.Context, externalID string) (ledger.AccountID, error)
}

type service struct {
	repo      Repository
	credits   CreditLedger
	jwtSecret string
}

func NewService(repo Repository, credits CreditLedger, jwtSecret string) Service {
	return &service{
		repo:      repo,
		credits:   credits,
		jwtSecret: jwtSecret,
	}
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*Account, string, string, error) {
	tier := ledger.TierFree
	if req.Tier != "" {
		tier = ledger.Tier(req.Tier)
		if !tier.Valid() {
			return nil, "", "", ledger.ErrInvalidTier
		}
	}

	exists, err := s.repo.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, "", "", err
	}
	if exists {
		return nil, "", "", ErrEmailExists
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, "", "", err
	}

	acc, err := s.repo.Create(ctx, req.Name, req.Email, passwordHash, "user")
	if err != nil {
		return nil, "", "", err
	}

	if req.ExternalID != "" {
		// Losing the link is recoverable (the subject re-links on next
		// login), so it never fails a registration that already committed.
		if err := s.repo.LinkExternalID(ctx, acc.ID, req.ExternalID); err != nil {
			logger.WithError(err).Warn("failed to link external identity",
				"account_id", acc.ID.String())
		} else {
			acc.ExternalID = &req.ExternalID
		}
	}

	// The credit record exists before the first token is issued, so the
	// first authenticated request can never hit AccountNotFound.
	if _, err := s.credits.Provision(ctx, acc.LedgerID(), tier); err != nil {
		return nil, "", "", err
	}

	accessToken, refreshToken, err := auth.GenerateTokens(
		acc.ID, acc.Email, acc.Role, s.jwtSecret, s.jwtSecret,
	)
	if err != nil {
		return nil, "", "", err
	}

	logger.Info("account registered", "account_id", acc.ID.String(), "tier", string(tier))
	return acc, accessToken, refreshToken, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*Account, string, string, error) {
	acc, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, "", "", ErrInvalidCredentials
	}

	if !auth.CheckPassword(acc.PasswordHash, req.Password) {
		return nil, "", "", ErrInvalidCredentials
	}

	accessToken, refreshToken, err := auth.GenerateTokens(
		acc.ID, acc.Email, acc.Role, s.jwtSecret, s.jwtSecret,
	)
	if err != nil {
		return nil, "", "", err
	}

	return acc, accessToken, refreshToken, nil
}

func (s *service) RefreshToken(ctx context.Context, refreshToken string) (string, *Account, error) {
	_, claims, err := auth.RefreshAccessToken(refreshToken, s.jwtSecret, s.jwtSecret)
	if err != nil {
		return "", nil, err
	}

	id, err := uuid.Parse(claims.AccountID)
	if err != nil {
		return "", nil, auth.ErrInvalidToken
	}

	acc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", nil, ErrNotFound
	}

	newAccessToken, err := auth.GenerateAccessToken(acc.ID, acc.Email, acc.Role, s.jwtSecret)
	if err != nil {
		return "", nil, err
	}

	return newAccessToken, acc, nil
}

func (s *service) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	acc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	view, err := s.credits.GetBalance(ctx, acc.LedgerID())
	if err != nil && !errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, err
	}

	return &Profile{Account: *acc, Credits: view}, nil
}

// ResolveExternal is the single place an auth-provider subject becomes a
// ledger identity. Handing any other identifier to the ledger is a bug.
func (s *service) ResolveExternal(ctx context.Context, externalID string) (ledger.AccountID, error) {
	acc, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		return ledger.AccountID{}, err
	}
	return acc.LedgerID(), nil
}
