package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/user-auth-service/internal/cache"
	"github.com/iliyamo/user-auth-service/internal/logging"
	"github.com/iliyamo/user-auth-service/internal/metrics"
	"github.com/iliyamo/user-auth-service/internal/model"
	"github.com/iliyamo/user-auth-service/internal/queue"
	"github.com/iliyamo/user-auth-service/internal/repository"
	"github.com/iliyamo/user-auth-service/internal/upload"
	"github.com/iliyamo/user-auth-service/internal/utils"
)

// UserStore is the slice of the credential store the auth flows use.
// repository.UserRepo and repositorytest.Users both satisfy it.
type UserStore interface {
	TokenStore
	Create(ctx context.Context, nu model.NewUser) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetPublicByID(ctx context.Context, id uint64) (model.PublicUser, error)
	GetByLogin(ctx context.Context, username, email string) (model.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	ClearRefreshToken(ctx context.Context, id uint64) error
}

// ImageUploader moves a local temp file to public storage and returns its
// URL. It owns the file once called. Delete removes an object by the URL
// Upload returned.
type ImageUploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
	Delete(ctx context.Context, url string) error
}

// EventPublisher delivers auth events. Failures are logged, never returned
// to the client.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AuthEvent) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, queue.AuthEvent) error { return nil }

// AuthService implements register, login, refresh, logout and the
// authentication step of the session guard.
type AuthService struct {
	users    UserStore
	sessions cache.PublicUserSource
	tokens   *TokenService
	uploader ImageUploader
	events   EventPublisher
	metrics  *metrics.Metrics
}

// NewAuthService wires the flows. sessions may be a cache in front of users;
// nil means users is queried directly. A nil uploader discards images and a
// nil events publisher drops events.
func NewAuthService(users UserStore, sessions cache.PublicUserSource, tokens *TokenService, uploader ImageUploader, events EventPublisher, m *metrics.Metrics) *AuthService {
	if sessions == nil {
		sessions = users
	}
	if uploader == nil {
		uploader = upload.Discard{}
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &AuthService{users: users, sessions: sessions, tokens: tokens, uploader: uploader, events: events, metrics: m}
}

// RegisterInput carries the registration form. The photo paths point at
// temp files already written by the transport layer; Register removes them.
type RegisterInput struct {
	Username     string
	Email        string
	Password     string
	ProfilePhoto string
	CoverPhoto   string
}

type LoginInput struct {
	Username string
	Email    string
	Password string
}

// LoginResult is the public user plus the freshly issued pair.
type LoginResult struct {
	User   model.PublicUser
	Tokens TokenPair
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (model.PublicUser, error) {
	log := logging.FromContext(ctx).With("svc", "auth", "op", "register")
	defer s.cleanupTemp(log, in.ProfilePhoto, in.CoverPhoto)

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" || email == "" || strings.TrimSpace(in.Password) == "" {
		s.metrics.Auth("register", metrics.OutcomeRejected)
		return model.PublicUser{}, ErrValidation
	}
	// Oversized input is rejected before anything is looked up or uploaded.
	if len(in.Password) > utils.MaxPasswordBytes ||
		utf8.RuneCountInString(username) > model.MaxUsernameLen ||
		utf8.RuneCountInString(email) > model.MaxEmailLen {
		s.metrics.Auth("register", metrics.OutcomeRejected)
		return model.PublicUser{}, ErrTooLong
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		s.metrics.Auth("register", metrics.OutcomeError)
		return model.PublicUser{}, fmt.Errorf("register: lookup: %w", err)
	}
	if exists {
		s.metrics.Auth("register", metrics.OutcomeRejected)
		return model.PublicUser{}, ErrConflict
	}

	profileURL := s.uploadImage(ctx, log, in.ProfilePhoto)
	coverURL := s.uploadImage(ctx, log, in.CoverPhoto)

	u, err := s.users.Create(ctx, model.NewUser{
		Username:     username,
		Email:        email,
		Password:     in.Password,
		ProfilePhoto: profileURL,
		CoverPhoto:   coverURL,
	})
	if err != nil {
		// No row points at the uploaded objects now.
		s.discardImages(ctx, log, profileURL, coverURL)
		if errors.Is(err, repository.ErrConflict) {
			s.metrics.Auth("register", metrics.OutcomeRejected)
			return model.PublicUser{}, ErrConflict
		}
		s.metrics.Auth("register", metrics.OutcomeError)
		return model.PublicUser{}, fmt.Errorf("register: create: %w", err)
	}

	s.metrics.Auth("register", metrics.OutcomeSuccess)
	log.Info("user_registered", "user_id", u.ID)
	s.publish(ctx, queue.UserRegistered, u.ID, u.Username)
	return u.Public(), nil
}

// Login accepts a username, an email or both; with both, either may match.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if in.Password == "" || (username == "" && email == "") {
		s.metrics.Auth("login", metrics.OutcomeRejected)
		return LoginResult{}, ErrValidation
	}

	u, err := s.users.GetByLogin(ctx, username, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.Auth("login", metrics.OutcomeRejected)
			return LoginResult{}, ErrNotFound
		}
		s.metrics.Auth("login", metrics.OutcomeError)
		return LoginResult{}, fmt.Errorf("login: lookup: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, in.Password) {
		s.metrics.Auth("login", metrics.OutcomeRejected)
		return LoginResult{}, ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(ctx, u.ID)
	if err != nil {
		s.metrics.Auth("login", metrics.OutcomeError)
		return LoginResult{}, fmt.Errorf("login: issue tokens: %w", err)
	}

	s.metrics.Auth("login", metrics.OutcomeSuccess)
	s.publish(ctx, queue.UserLoggedIn, u.ID, u.Username)
	return LoginResult{User: u.Public(), Tokens: pair}, nil
}

// Refresh verifies raw against the refresh secret and the stored token and
// rotates it. Of several concurrent calls with the same token exactly one
// succeeds.
func (s *AuthService) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		s.metrics.Auth("refresh", metrics.OutcomeRejected)
		return TokenPair{}, ErrMissingRefreshToken
	}
	id, err := s.tokens.VerifyRefresh(raw)
	if err != nil {
		s.metrics.Auth("refresh", metrics.OutcomeRejected)
		return TokenPair{}, ErrInvalidRefreshToken
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.Auth("refresh", metrics.OutcomeRejected)
			return TokenPair{}, ErrInvalidRefreshToken
		}
		s.metrics.Auth("refresh", metrics.OutcomeError)
		return TokenPair{}, fmt.Errorf("refresh: lookup: %w", err)
	}
	if u.RefreshToken == "" || u.RefreshToken != raw {
		s.metrics.Auth("refresh", metrics.OutcomeRejected)
		return TokenPair{}, ErrInvalidRefreshToken
	}

	pair, err := s.tokens.RotatePair(ctx, u.ID, raw)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			s.metrics.Auth("refresh", metrics.OutcomeRejected)
			return TokenPair{}, err
		}
		s.metrics.Auth("refresh", metrics.OutcomeError)
		return TokenPair{}, fmt.Errorf("refresh: rotate: %w", err)
	}

	s.metrics.Auth("refresh", metrics.OutcomeSuccess)
	s.publish(ctx, queue.UserTokenRefreshed, u.ID, u.Username)
	return pair, nil
}

// Logout clears the stored refresh token so no outstanding refresh token
// can be used again. Access tokens stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, u model.PublicUser) error {
	if u.ID == 0 {
		s.metrics.Auth("logout", metrics.OutcomeRejected)
		return ErrUnauthenticated
	}
	if err := s.users.ClearRefreshToken(ctx, u.ID); err != nil {
		s.metrics.Auth("logout", metrics.OutcomeError)
		return fmt.Errorf("logout: %w", err)
	}
	s.metrics.Auth("logout", metrics.OutcomeSuccess)
	s.publish(ctx, queue.UserLoggedOut, u.ID, u.Username)
	return nil
}

// Authenticate resolves an access token to the public user it names.
// Every failure other than a store outage is ErrUnauthenticated.
func (s *AuthService) Authenticate(ctx context.Context, rawAccess string) (model.PublicUser, error) {
	rawAccess = strings.TrimSpace(rawAccess)
	if rawAccess == "" {
		return model.PublicUser{}, ErrUnauthenticated
	}
	id, err := s.tokens.VerifyAccess(rawAccess)
	if err != nil {
		return model.PublicUser{}, ErrUnauthenticated
	}
	u, err := s.sessions.GetPublicByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PublicUser{}, ErrUnauthenticated
		}
		return model.PublicUser{}, fmt.Errorf("authenticate: %w", err)
	}
	return u, nil
}

func (s *AuthService) uploadImage(ctx context.Context, log *slog.Logger, path string) string {
	if path == "" {
		return ""
	}
	url, err := s.uploader.Upload(ctx, path)
	if err != nil {
		s.metrics.Upload(metrics.OutcomeError)
		log.Warn("image_upload_failed", "error", err)
		return ""
	}
	s.metrics.Upload(metrics.OutcomeSuccess)
	return url
}

func (s *AuthService) discardImages(ctx context.Context, log *slog.Logger, urls ...string) {
	for _, u := range urls {
		if u == "" {
			continue
		}
		if err := s.uploader.Delete(ctx, u); err != nil {
			log.Warn("image_delete_failed", "url", u, "error", err)
		}
	}
}

func (s *AuthService) cleanupTemp(log *slog.Logger, paths ...string) {
	for _, p := range paths {
		if err := upload.RemoveTemp(p); err != nil {
			log.Warn("temp_cleanup_failed", "path", p, "error", err)
		}
	}
}

func (s *AuthService) publish(ctx context.Context, typ string, userID uint64, username string) {
	ev := queue.NewAuthEvent(typ, userID, username)
	ev.RemoteIP = RemoteIPFromContext(ctx)
	if err := s.events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("auth_event_publish_failed", "type", typ, "user_id", userID, "error", err)
	}
}

type remoteIPKey struct{}

// WithRemoteIP records the client address so published events carry it.
func WithRemoteIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, remoteIPKey{}, ip)
}

func RemoteIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(remoteIPKey{}).(string)
	return ip
}
