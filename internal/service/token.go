package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/user-auth-service/internal/config"
	"github.com/iliyamo/user-auth-service/internal/repository"
	"github.com/iliyamo/user-auth-service/internal/utils"
)

// TokenStore persists the single current refresh token of a user.
type TokenStore interface {
	SetRefreshToken(ctx context.Context, id uint64, token string) error
	SwapRefreshToken(ctx context.Context, id uint64, old, token string) error
}

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	Access  utils.SignedToken
	Refresh utils.SignedToken
}

// TokenService issues, verifies and rotates access/refresh tokens. The two
// kinds are signed with distinct secrets, so neither verifies as the other.
type TokenService struct {
	accessSecret  string
	refreshSecret string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	store         TokenStore
}

func NewTokenService(cfg config.Config, store TokenStore) *TokenService {
	return &TokenService{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		accessTTL:     cfg.AccessTTL(),
		refreshTTL:    cfg.RefreshTTL(),
		store:         store,
	}
}

func (s *TokenService) IssueAccessToken(userID uint64) (utils.SignedToken, error) {
	return utils.NewAccessToken(s.accessSecret, userID, s.accessTTL)
}

func (s *TokenService) IssueRefreshToken(userID uint64) (utils.SignedToken, error) {
	return utils.NewRefreshToken(s.refreshSecret, userID, s.refreshTTL)
}

func (s *TokenService) VerifyAccess(raw string) (uint64, error) {
	return utils.ParseToken(raw, s.accessSecret)
}

func (s *TokenService) VerifyRefresh(raw string) (uint64, error) {
	return utils.ParseToken(raw, s.refreshSecret)
}

// IssuePair mints both tokens and stores the refresh token unconditionally,
// invalidating whatever refresh token the user held before.
func (s *TokenService) IssuePair(ctx context.Context, userID uint64) (TokenPair, error) {
	pair, err := s.mint(userID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.SetRefreshToken(ctx, userID, pair.Refresh.Token); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// RotatePair mints both tokens and stores the refresh token only if the
// stored value still equals presented. ErrInvalidRefreshToken means the
// presented token was already rotated away or cleared.
func (s *TokenService) RotatePair(ctx context.Context, userID uint64, presented string) (TokenPair, error) {
	pair, err := s.mint(userID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.SwapRefreshToken(ctx, userID, presented, pair.Refresh.Token); err != nil {
		if errors.Is(err, repository.ErrStaleToken) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, err
	}
	return pair, nil
}

func (s *TokenService) mint(userID uint64) (TokenPair, error) {
	access, err := s.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.IssueRefreshToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}
