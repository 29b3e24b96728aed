package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/user-auth-service/internal/config"
	"github.com/iliyamo/user-auth-service/internal/model"
	"github.com/iliyamo/user-auth-service/internal/queue"
	"github.com/iliyamo/user-auth-service/internal/repository"
	"github.com/iliyamo/user-auth-service/internal/repository/repositorytest"
	"github.com/iliyamo/user-auth-service/internal/utils"
)

var testCfg = config.Config{
	AccessSecret:   "access-secret",
	RefreshSecret:  "refresh-secret",
	AccessTTLMin:   15,
	RefreshTTLDays: 10,
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.AuthEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.AuthEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeUploader struct {
	err   error
	calls atomic.Int32

	mu      sync.Mutex
	deleted []string
}

func (u *fakeUploader) Delete(_ context.Context, url string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deleted = append(u.deleted, url)
	return nil
}

func (u *fakeUploader) Upload(_ context.Context, path string) (string, error) {
	u.calls.Add(1)
	_ = os.Remove(path)
	if u.err != nil {
		return "", u.err
	}
	return "https://cdn.example.com/" + filepath.Base(path), nil
}

func newTestService(t *testing.T) (*AuthService, *repositorytest.Users, *recordingPublisher) {
	t.Helper()
	users := repositorytest.NewUsers()
	events := &recordingPublisher{}
	svc := NewAuthService(users, nil, NewTokenService(testCfg, users), nil, events, nil)
	return svc, users, events
}

func tempImage(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "img-*.png")
	require.NoError(t, err)
	_, err = f.WriteString("png")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func registerAndLogin(t *testing.T, svc *AuthService, username string) LoginResult {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Username: username, Email: username + "@x.io", Password: "p1"})
	require.NoError(t, err)
	res, err := svc.Login(ctx, LoginInput{Username: username, Password: "p1"})
	require.NoError(t, err)
	return res
}

func TestRegister_Success(t *testing.T) {
	svc, _, events := newTestService(t)

	u, err := svc.Register(context.Background(), RegisterInput{Username: "Ann", Email: "a@x.io", Password: "p1"})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "ann", u.Username)
	assert.Equal(t, "a@x.io", u.Email)
	assert.Empty(t, u.ProfilePhoto)
	assert.Equal(t, []string{queue.UserRegistered}, events.types())
}

func TestRegister_Duplicate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Username: "ann", Email: "a@x.io", Password: "p1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Username: "ANN", Email: "other@x.io", Password: "p1"})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = svc.Register(ctx, RegisterInput{Username: "bob", Email: "a@x.io", Password: "p1"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRegister_MissingFieldRemovesTempFiles(t *testing.T) {
	svc, _, _ := newTestService(t)
	profile, cover := tempImage(t), tempImage(t)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "nick", Email: "n@x.io", Password: "   ",
		ProfilePhoto: profile, CoverPhoto: cover,
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.NoFileExists(t, profile)
	assert.NoFileExists(t, cover)
}

func TestRegister_UploadFailureKeepsGoing(t *testing.T) {
	users := repositorytest.NewUsers()
	up := &fakeUploader{err: errors.New("bucket gone")}
	svc := NewAuthService(users, nil, NewTokenService(testCfg, users), up, nil, nil)
	profile := tempImage(t)

	u, err := svc.Register(context.Background(), RegisterInput{Username: "ann", Email: "a@x.io", Password: "p1", ProfilePhoto: profile})
	require.NoError(t, err)
	assert.Empty(t, u.ProfilePhoto)
	assert.EqualValues(t, 1, up.calls.Load())
	assert.NoFileExists(t, profile)
}

func TestRegister_StoresUploadedURL(t *testing.T) {
	users := repositorytest.NewUsers()
	up := &fakeUploader{}
	svc := NewAuthService(users, nil, NewTokenService(testCfg, users), up, nil, nil)
	profile := tempImage(t)

	u, err := svc.Register(context.Background(), RegisterInput{Username: "ann", Email: "a@x.io", Password: "p1", ProfilePhoto: profile})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/"+filepath.Base(profile), u.ProfilePhoto)
	assert.Empty(t, u.CoverPhoto)
}

func TestRegister_ConcurrentDuplicates(t *testing.T) {
	svc, _, _ := newTestService(t)
	const n = 8

	var (
		wg        sync.WaitGroup
		ok        atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(context.Background(), RegisterInput{Username: "ann", Email: "a@x.io", Password: "p1"})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, n-1, conflicts.Load())
}

func TestLogin(t *testing.T) {
	svc, users, events := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Username: "ann", Email: "a@x.io", Password: "p1"})
	require.NoError(t, err)

	t.Run("by username", func(t *testing.T) {
		res, err := svc.Login(ctx, LoginInput{Username: "ann", Password: "p1"})
		require.NoError(t, err)
		assert.Equal(t, "ann", res.User.Username)
		assert.NotEmpty(t, res.Tokens.Access.Token)

		stored, err := users.GetByID(ctx, res.User.ID)
		require.NoError(t, err)
		assert.Equal(t, res.Tokens.Refresh.Token, stored.RefreshToken)
	})
	t.Run("by email", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginInput{Email: "a@x.io", Password: "p1"})
		assert.NoError(t, err)
	})
	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginInput{Username: "ann", Password: "nope"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginInput{Username: "zed", Password: "p1"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("missing fields", func(t *testing.T) {
		_, err := svc.Login(ctx, LoginInput{Password: "p1"})
		assert.ErrorIs(t, err, ErrValidation)
		_, err = svc.Login(ctx, LoginInput{Username: "ann"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	assert.Contains(t, events.types(), queue.UserLoggedIn)
}

func TestLogin_SecondLoginInvalidatesFirstRefresh(t *testing.T) {
	svc, _, _ := newTestService(t)
	first := registerAndLogin(t, svc, "ann")

	_, err := svc.Login(context.Background(), LoginInput{Username: "ann", Password: "p1"})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), first.Tokens.Refresh.Token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefresh_RotatesToken(t *testing.T) {
	svc, _, events := newTestService(t)
	ctx := context.Background()
	first := registerAndLogin(t, svc, "ann")

	second, err := svc.Refresh(ctx, first.Tokens.Refresh.Token)
	require.NoError(t, err)
	assert.NotEqual(t, first.Tokens.Refresh.Token, second.Refresh.Token)

	_, err = svc.Refresh(ctx, first.Tokens.Refresh.Token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	third, err := svc.Refresh(ctx, second.Refresh.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, third.Access.Token)
	assert.Contains(t, events.types(), queue.UserTokenRefreshed)
}

func TestRefresh_Rejections(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()
	res := registerAndLogin(t, svc, "ann")

	_, err := svc.Refresh(ctx, "  ")
	assert.ErrorIs(t, err, ErrMissingRefreshToken)

	_, err = svc.Refresh(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// access tokens are signed with the other secret
	_, err = svc.Refresh(ctx, res.Tokens.Access.Token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	expired, err := utils.NewRefreshToken(testCfg.RefreshSecret, res.User.ID, -time.Minute)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, expired.Token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	users.Delete(res.User.ID)
	_, err = svc.Refresh(ctx, res.Tokens.Refresh.Token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefresh_ConcurrentSameTokenOneWins(t *testing.T) {
	svc, _, _ := newTestService(t)
	res := registerAndLogin(t, svc, "ann")
	const n = 10

	var (
		wg       sync.WaitGroup
		ok       atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(context.Background(), res.Tokens.Refresh.Token)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInvalidRefreshToken):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, n-1, rejected.Load())
}

func TestLogout_ThenRefreshFails(t *testing.T) {
	svc, users, events := newTestService(t)
	ctx := context.Background()
	res := registerAndLogin(t, svc, "ann")

	require.NoError(t, svc.Logout(ctx, res.User))

	stored, err := users.GetByID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.RefreshToken)

	_, err = svc.Refresh(ctx, res.Tokens.Refresh.Token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.Contains(t, events.types(), queue.UserLoggedOut)

	assert.ErrorIs(t, svc.Logout(ctx, model.PublicUser{}), ErrUnauthenticated)
}

func TestAuthenticate(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()
	res := registerAndLogin(t, svc, "ann")

	u, err := svc.Authenticate(ctx, res.Tokens.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, u.ID)

	_, err = svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Authenticate(ctx, res.Tokens.Refresh.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	forged, err := utils.NewAccessToken("some-other-secret", res.User.ID, time.Minute)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, forged.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	users.Delete(res.User.ID)
	_, err = svc.Authenticate(ctx, res.Tokens.Access.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestEventsCarryRemoteIP(t *testing.T) {
	svc, _, events := newTestService(t)
	ctx := WithRemoteIP(context.Background(), "203.0.113.7")

	_, err := svc.Register(ctx, RegisterInput{Username: "ann", Email: "a@x.io", Password: "p1"})
	require.NoError(t, err)

	events.mu.Lock()
	defer events.mu.Unlock()
	require.Len(t, events.events, 1)
	assert.Equal(t, "203.0.113.7", events.events[0].RemoteIP)
	assert.Equal(t, "ann", events.events[0].Username)
}

func modelUser(username string) model.NewUser {
	return model.NewUser{Username: username, Email: username + "@x.io", Password: "p1"}
}

// conflictingStore reports no existing user but loses the unique index
// race on insert.
type conflictingStore struct {
	*repositorytest.Users
}

func (conflictingStore) Create(context.Context, model.NewUser) (model.User, error) {
	return model.User{}, repository.ErrConflict
}

func TestRegister_LostRaceDeletesUploadedImages(t *testing.T) {
	store := conflictingStore{repositorytest.NewUsers()}
	up := &fakeUploader{}
	svc := NewAuthService(store, nil, NewTokenService(testCfg, store), up, nil, nil)
	profile, cover := tempImage(t), tempImage(t)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "ann", Email: "a@x.io", Password: "p1",
		ProfilePhoto: profile, CoverPhoto: cover,
	})
	require.ErrorIs(t, err, ErrConflict)
	assert.ElementsMatch(t, []string{
		"https://cdn.example.com/" + filepath.Base(profile),
		"https://cdn.example.com/" + filepath.Base(cover),
	}, up.deleted)
}

func TestRegister_TooLongRejectedBeforeUpload(t *testing.T) {
	users := repositorytest.NewUsers()
	up := &fakeUploader{}
	svc := NewAuthService(users, nil, NewTokenService(testCfg, users), up, nil, nil)

	cases := map[string]RegisterInput{
		"password": {Username: "ann", Email: "a@x.io", Password: strings.Repeat("a", 73)},
		"username": {Username: strings.Repeat("u", 65), Email: "a@x.io", Password: "p1"},
		"email":    {Username: "ann", Email: strings.Repeat("e", 256), Password: "p1"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			in.ProfilePhoto = tempImage(t)
			_, err := svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, ErrTooLong)
			assert.ErrorIs(t, err, ErrValidation)
			assert.NoFileExists(t, in.ProfilePhoto)
		})
	}
	assert.Zero(t, up.calls.Load())

	_, err := svc.Register(context.Background(), RegisterInput{Username: "ann", Email: "a@x.io", Password: strings.Repeat("a", 72)})
	assert.NoError(t, err)
}
