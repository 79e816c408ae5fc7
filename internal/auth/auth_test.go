package auth

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cinelog/catalog-api/internal/models"
	"github.com/cinelog/catalog-api/internal/session"
	"github.com/cinelog/catalog-api/internal/store"
	"github.com/cinelog/catalog-api/internal/store/memory"
	apperrors "github.com/cinelog/catalog-api/pkg/errors"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setup(t *testing.T, secret string) (*Accounts, *Guard, *memory.Repository) {
	t.Helper()
	repo := memory.New()
	st := repo.Store()
	codec := session.NewCodec(secret, 0)
	return NewAccounts(st.Users, codec, quietLogger(), WithHashCost(bcrypt.MinCost)), NewGuard(st.Users, codec), repo
}

func TestRegisterThenLoginReturnsSameToken(t *testing.T) {
	for _, secret := range []string{"", "test-secret"} {
		accounts, _, repo := setup(t, secret)
		ctx := context.Background()

		registered, err := accounts.Register(ctx, "alice", "p1")
		require.NoError(t, err)
		require.NotEmpty(t, registered.SessionToken)

		loggedIn, err := accounts.Login(ctx, "alice", "p1")
		require.NoError(t, err)
		assert.Equal(t, registered.SessionToken, loggedIn.SessionToken)

		stored, ok := repo.User("alice")
		require.True(t, ok)
		assert.NotEqual(t, "p1", stored.Password, "password must be hashed")
		assert.Empty(t, stored.CreatedMovies)
	}
}

func TestRegisterExistingNameLeavesRecordUntouched(t *testing.T) {
	accounts, _, repo := setup(t, "")
	ctx := context.Background()

	_, err := accounts.Register(ctx, "alice", "p1")
	require.NoError(t, err)
	before, _ := repo.User("alice")

	_, err = accounts.Register(ctx, "alice", "other")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 401, appErr.HTTPStatus())
	assert.Equal(t, apperrors.MsgUsernameTaken, appErr.Message)

	after, _ := repo.User("alice")
	assert.Equal(t, before.Password, after.Password)
	assert.Equal(t, before.SessionToken, after.SessionToken)

	_, err = accounts.Login(ctx, "alice", "p1")
	assert.NoError(t, err)
}

func TestLoginFailures(t *testing.T) {
	accounts, _, _ := setup(t, "")
	ctx := context.Background()
	_, err := accounts.Register(ctx, "alice", "p1")
	require.NoError(t, err)

	for _, tc := range []struct{ name, password string }{
		{"alice", "wrong"},
		{"bob", "p1"},
	} {
		_, err := accounts.Login(ctx, tc.name, tc.password)
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.CodeUnauthorized, appErr.Code)
		assert.Equal(t, apperrors.MsgBadCredentials, appErr.Message)
	}

	_, err = accounts.Login(ctx, "", "p1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeBadRequest))
}

func TestAuthenticate(t *testing.T) {
	accounts, guard, _ := setup(t, "")
	ctx := context.Background()
	alice, err := accounts.Register(ctx, "alice", "p1")
	require.NoError(t, err)
	_, err = accounts.Register(ctx, "bob", "p2")
	require.NoError(t, err)

	user, filter, err := guard.Authenticate(ctx, "alice", alice.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Name)
	assert.Equal(t, models.SessionFilter{Name: "alice", Token: alice.SessionToken}, filter)
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	for _, secret := range []string{"", "test-secret"} {
		accounts, guard, _ := setup(t, secret)
		ctx := context.Background()
		alice, err := accounts.Register(ctx, "alice", "p1")
		require.NoError(t, err)
		bob, err := accounts.Register(ctx, "bob", "p2")
		require.NoError(t, err)

		cases := map[string][2]string{
			"wrong name":        {"carol", alice.SessionToken},
			"wrong token":       {"alice", "not-a-token"},
			"both wrong":        {"carol", "not-a-token"},
			"other users token": {"alice", bob.SessionToken},
			"empty":             {"", ""},
		}

		var messages []string
		for name, tc := range cases {
			user, _, err := guard.Authenticate(ctx, tc[0], tc[1])
			assert.Nil(t, user, name)
			appErr, ok := apperrors.As(err)
			require.True(t, ok, name)
			assert.Equal(t, apperrors.CodeUnauthorized, appErr.Code, name)
			messages = append(messages, appErr.ToErrorResponse().Error)
		}
		for _, m := range messages {
			assert.Equal(t, apperrors.MsgUnauthorized, m)
		}
	}
}

type failingUsers struct{ store.UserStore }

func (failingUsers) FindBySession(context.Context, models.SessionFilter) (*models.User, error) {
	return nil, errors.New("connection reset")
}

func TestAuthenticateStoreFailure(t *testing.T) {
	guard := NewGuard(failingUsers{}, session.NewCodec("", 0))

	_, _, err := guard.Authenticate(context.Background(), "alice", "token")
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeStoreError, appErr.Code)
	assert.Equal(t, apperrors.MsgDatabaseError, appErr.Message)
}
