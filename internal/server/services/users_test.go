package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/authgateway/internal/common"
	"github.com/dmitrijs2005/authgateway/internal/dbx"
	"github.com/dmitrijs2005/authgateway/internal/server/models"
	usersrepo "github.com/dmitrijs2005/authgateway/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type fakeUsersRepo struct {
	byID    map[string]*models.User
	byEmail map[string]*models.User

	createErr error
	getErr    error
	bumpErr   error
	updateErr error

	updated map[string]string
}

func newFakeUsersRepo(users ...*models.User) *fakeUsersRepo {
	r := &fakeUsersRepo{
		byID:    map[string]*models.User{},
		byEmail: map[string]*models.User{},
		updated: map[string]string{},
	}
	for _, u := range users {
		r.byID[u.ID] = u
		r.byEmail[u.Email] = u
	}
	return r
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byEmail[u.Email]; ok {
		return nil, common.ErrAlreadyExists
	}
	f.byID[u.ID] = u
	f.byEmail[u.Email] = u
	return u, nil
}

func (f *fakeUsersRepo) FindUserByID(_ context.Context, id string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) IncrementTokenVersion(_ context.Context, id string) (int, error) {
	if f.bumpErr != nil {
		return 0, f.bumpErr
	}
	u, ok := f.byID[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	u.TokenVersion++
	return u.TokenVersion, nil
}

func (f *fakeUsersRepo) UpdatePassword(_ context.Context, id, hash string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	u, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = hash
	f.updated[id] = hash
	return nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.u }

type fakeHasher struct {
	hashErr   error
	verifyErr error
	verified  int
}

func (h *fakeHasher) Hash(pw string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "h:" + pw, nil
}

func (h *fakeHasher) Verify(pw, encoded string) (bool, error) {
	h.verified++
	if h.verifyErr != nil {
		return false, h.verifyErr
	}
	return encoded == "h:"+pw, nil
}

type fakeLimiter struct {
	checkErr error
	failed   []string
	reset    []string
}

func (l *fakeLimiter) Check(context.Context, string) error { return l.checkErr }
func (l *fakeLimiter) Fail(_ context.Context, email string) error {
	l.failed = append(l.failed, email)
	return nil
}
func (l *fakeLimiter) Reset(_ context.Context, email string) error {
	l.reset = append(l.reset, email)
	return nil
}

const adaID = "7f0c4b8e-2f1e-4a39-9a55-3d6f4f0e8a11"

func ada() *models.User {
	return &models.User{ID: adaID, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", PasswordHash: "h:secret", TokenVersion: 1}
}

type userFixture struct {
	svc     *UserService
	repo    *fakeUsersRepo
	hasher  *fakeHasher
	limiter *fakeLimiter
	obs     *recordingObserver
	mock    sqlmock.Sqlmock
}

func newUserFixture(t *testing.T, users ...*models.User) *userFixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	f := &userFixture{
		repo:    newFakeUsersRepo(users...),
		hasher:  &fakeHasher{},
		limiter: &fakeLimiter{},
		obs:     &recordingObserver{},
		mock:    mock,
	}
	f.svc = NewUserService(db, &fakeRepoManager{u: f.repo}, newIssuer(t, nil), f.hasher, f.limiter, f.obs, nil)
	return f
}

// --- Register ---

func TestRegister_Success(t *testing.T) {
	f := newUserFixture(t)
	mobile := "+37120000000"

	u, err := f.svc.Register(context.Background(), RegisterInput{
		Email: "  Ada@Example.com ", Password: "secret-pw", FirstName: " Ada", LastName: "Lovelace", Mobile: &mobile,
	})
	require.NoError(t, err)

	assert.Len(t, u.ID, 36)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, "Ada", u.FirstName)
	assert.Equal(t, "h:secret-pw", u.PasswordHash)
	assert.Equal(t, 0, u.TokenVersion)
	assert.Equal(t, &mobile, u.Mobile)
}

func registerInput(email string) RegisterInput {
	return RegisterInput{Email: email, Password: "long-password", FirstName: "Ada", LastName: "Lovelace"}
}

func TestRegister_Duplicate(t *testing.T) {
	f := newUserFixture(t, ada())

	_, err := f.svc.Register(context.Background(), registerInput("ada@example.com"))
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestRegister_Errors(t *testing.T) {
	f := newUserFixture(t)
	f.hasher.hashErr = errors.New("oom")
	_, err := f.svc.Register(context.Background(), registerInput("grace@example.com"))
	assert.ErrorIs(t, err, common.ErrorInternal)

	f = newUserFixture(t)
	f.repo.createErr = errors.New("db down")
	_, err = f.svc.Register(context.Background(), registerInput("grace@example.com"))
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestRegister_Validation(t *testing.T) {
	bad := "0037120000000"
	tests := []struct {
		name   string
		mutate func(in *RegisterInput)
	}{
		{name: "empty email", mutate: func(in *RegisterInput) { in.Email = "  " }},
		{name: "malformed email", mutate: func(in *RegisterInput) { in.Email = "not-an-email" }},
		{name: "short password", mutate: func(in *RegisterInput) { in.Password = "short" }},
		{name: "blank first name", mutate: func(in *RegisterInput) { in.FirstName = "   " }},
		{name: "empty last name", mutate: func(in *RegisterInput) { in.LastName = "" }},
		{name: "mobile not e164", mutate: func(in *RegisterInput) { in.Mobile = &bad }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUserFixture(t)
			in := registerInput("grace@example.com")
			tt.mutate(&in)

			_, err := f.svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, common.ErrValidation)
			assert.Empty(t, f.repo.byID)
		})
	}
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	f := newUserFixture(t, ada())

	s, err := f.svc.Login(context.Background(), "ADA@example.com", "secret")
	require.NoError(t, err)

	assert.Equal(t, adaID, s.User.ID)
	assert.NotEmpty(t, s.AccessToken)
	assert.NotEmpty(t, s.RefreshToken)
	assert.False(t, s.RefreshExpiresAt.IsZero())
	assert.Equal(t, []string{"ada@example.com"}, f.limiter.reset)
	assert.Equal(t, []string{"ok"}, f.obs.logins)

	// the login token pair is accepted by the refresh flow
	rs := NewRefreshService(f.repo, newIssuer(t, nil), nil, nil)
	assert.True(t, rs.Refresh(context.Background(), s.RefreshToken).OK)
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newUserFixture(t, ada())

	_, err := f.svc.Login(context.Background(), "ada@example.com", "nope")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Equal(t, []string{"ada@example.com"}, f.limiter.failed)
	assert.Equal(t, []string{"unauthorized"}, f.obs.logins)
}

func TestLogin_UnknownEmailStillVerifies(t *testing.T) {
	f := newUserFixture(t)

	_, err := f.svc.Login(context.Background(), "nobody@example.com", "secret")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Equal(t, 1, f.hasher.verified)
	assert.Equal(t, []string{"nobody@example.com"}, f.limiter.failed)
}

func TestLogin_RateLimited(t *testing.T) {
	f := newUserFixture(t, ada())
	f.limiter.checkErr = common.ErrRateLimited

	_, err := f.svc.Login(context.Background(), "ada@example.com", "secret")
	assert.ErrorIs(t, err, common.ErrRateLimited)
	assert.Zero(t, f.hasher.verified)
	assert.Equal(t, []string{"rate_limited"}, f.obs.logins)
}

func TestLogin_LimiterDownFailsOpen(t *testing.T) {
	f := newUserFixture(t, ada())
	f.limiter.checkErr = errors.New("redis unavailable")

	_, err := f.svc.Login(context.Background(), "ada@example.com", "secret")
	assert.NoError(t, err)
}

func TestLogin_StoreError(t *testing.T) {
	f := newUserFixture(t, ada())
	f.repo.getErr = errors.New("db down")

	_, err := f.svc.Login(context.Background(), "ada@example.com", "secret")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestLogin_VerifyError(t *testing.T) {
	f := newUserFixture(t, ada())
	f.hasher.verifyErr = errors.New("bad hash")

	_, err := f.svc.Login(context.Background(), "ada@example.com", "secret")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

// --- Me ---

func TestMe(t *testing.T) {
	f := newUserFixture(t, ada())

	u, err := f.svc.Me(context.Background(), adaID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.FirstName)

	_, err = f.svc.Me(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	f.repo.getErr = errors.New("db down")
	_, err = f.svc.Me(context.Background(), adaID)
	assert.ErrorIs(t, err, common.ErrorInternal)
}

// --- LogoutAll ---

func TestLogoutAll_RevokesRefreshTokens(t *testing.T) {
	f := newUserFixture(t, ada())
	ctx := context.Background()

	s, err := f.svc.Login(ctx, "ada@example.com", "secret")
	require.NoError(t, err)

	v, err := f.svc.LogoutAll(ctx, adaID)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, f.obs.revocations)

	rs := NewRefreshService(f.repo, newIssuer(t, nil), nil, nil)
	assert.False(t, rs.Refresh(ctx, s.RefreshToken).OK)
}

func TestLogoutAll_Errors(t *testing.T) {
	f := newUserFixture(t)
	_, err := f.svc.LogoutAll(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	f = newUserFixture(t, ada())
	f.repo.bumpErr = errors.New("db down")
	_, err = f.svc.LogoutAll(context.Background(), adaID)
	assert.ErrorIs(t, err, common.ErrorInternal)
}

// --- ChangePassword ---

func TestChangePassword_Success(t *testing.T) {
	f := newUserFixture(t, ada())
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	ctx := context.Background()

	old, err := f.svc.Login(ctx, "ada@example.com", "secret")
	require.NoError(t, err)

	s, err := f.svc.ChangePassword(ctx, adaID, "secret", "better")
	require.NoError(t, err)

	assert.Equal(t, "h:better", f.repo.updated[adaID])
	assert.Equal(t, 2, s.User.TokenVersion)
	require.NoError(t, f.mock.ExpectationsWereMet())

	rs := NewRefreshService(f.repo, newIssuer(t, nil), nil, nil)
	assert.False(t, rs.Refresh(ctx, old.RefreshToken).OK, "old session revoked")
	assert.True(t, rs.Refresh(ctx, s.RefreshToken).OK, "new session valid")
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	f := newUserFixture(t, ada())

	_, err := f.svc.ChangePassword(context.Background(), adaID, "guess", "better")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Empty(t, f.repo.updated)
}

func TestChangePassword_RollsBackOnFailure(t *testing.T) {
	f := newUserFixture(t, ada())
	f.repo.bumpErr = errors.New("db down")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.ChangePassword(context.Background(), adaID, "secret", "better")
	assert.ErrorIs(t, err, common.ErrorInternal)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestChangePassword_UnknownUser(t *testing.T) {
	f := newUserFixture(t)

	_, err := f.svc.ChangePassword(context.Background(), "missing", "a", "b")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ada@example.com", normalizeEmail(" ADA@Example.COM\t"))
	assert.False(t, strings.ContainsAny(normalizeEmail(" x "), " "))
}
