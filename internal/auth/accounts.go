package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/cinelog/catalog-api/internal/models"
	"github.com/cinelog/catalog-api/internal/session"
	"github.com/cinelog/catalog-api/internal/store"
	apperrors "github.com/cinelog/catalog-api/pkg/errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Accounts registers users and logs them in.
type Accounts struct {
	users    store.UserStore
	codec    *session.Codec
	logger   *logrus.Logger
	hashCost int
}

type AccountsOption func(*Accounts)

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) AccountsOption {
	return func(a *Accounts) { a.hashCost = cost }
}

func NewAccounts(users store.UserStore, codec *session.Codec, logger *logrus.Logger, opts ...AccountsOption) *Accounts {
	a := &Accounts{
		users:    users,
		codec:    codec,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register creates a user with a fresh session token. A taken name is an
// Unauthorized error and leaves the existing record untouched.
func (a *Accounts) Register(ctx context.Context, name, password string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "auth.register")
	defer span.End()

	if name == "" || password == "" {
		return nil, apperrors.BadRequest("Name and password are required")
	}

	_, err := a.users.FindByName(ctx, name)
	switch {
	case err == nil:
		return nil, apperrors.NewAppError(apperrors.CodeUnauthorized, apperrors.MsgUsernameTaken, store.ErrConflict)
	case !errors.Is(err, store.ErrNotFound):
		return nil, apperrors.StoreError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.hashCost)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.CodeInternalError, "Failed to process password", err)
	}

	tok, err := a.codec.Issue(name)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.CodeInternalError, "Failed to issue session", err)
	}

	user := &models.User{
		Name:          name,
		Password:      string(hash),
		SessionToken:  tok.Value,
		MovieRatings:  []models.MovieRating{},
		CreatedMovies: []string{},
	}

	// A concurrent registration can win between the lookup and the insert.
	if err := a.users.Insert(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, apperrors.NewAppError(apperrors.CodeUnauthorized, apperrors.MsgUsernameTaken, err)
		}
		return nil, apperrors.StoreError(fmt.Errorf("insert user: %w", err))
	}

	a.logger.WithField("username", name).Info("User registered successfully")
	return user, nil
}

// Login checks the password and returns the stored user. The session token
// is returned unchanged.
func (a *Accounts) Login(ctx context.Context, name, password string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	defer span.End()

	if name == "" || password == "" {
		return nil, apperrors.BadRequest("Name and password are required")
	}

	user, err := a.users.FindByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		a.logger.WithField("username", name).Warn("User not found")
		return nil, apperrors.NewAppError(apperrors.CodeUnauthorized, apperrors.MsgBadCredentials, err)
	}
	if err != nil {
		return nil, apperrors.StoreError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		a.logger.WithField("username", name).Warn("Invalid password")
		return nil, apperrors.NewAppError(apperrors.CodeUnauthorized, apperrors.MsgBadCredentials, err)
	}

	a.logger.WithField("username", name).Info("User logged in successfully")
	return user, nil
}
