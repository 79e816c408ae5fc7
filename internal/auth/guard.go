// Package auth resolves session credentials to users and manages accounts.
package auth

import (
	"context"
	"errors"

	"github.com/cinelog/catalog-api/internal/models"
	"github.com/cinelog/catalog-api/internal/session"
	"github.com/cinelog/catalog-api/internal/store"
	apperrors "github.com/cinelog/catalog-api/pkg/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("catalog-api/auth")

// Guard is the Identity Guard: it turns a presented (name, token) pair into
// the user record holding it.
type Guard struct {
	users store.UserStore
	codec *session.Codec
}

func NewGuard(users store.UserStore, codec *session.Codec) *Guard {
	return &Guard{users: users, codec: codec}
}

// Authenticate returns the single user whose name and session token both
// match, together with the filter that matched it. A wrong name, a wrong
// token and a malformed pair all yield the same Unauthorized error; a store
// failure yields StoreError. It has no side effects.
func (g *Guard) Authenticate(ctx context.Context, name, token string) (*models.User, models.SessionFilter, error) {
	ctx, span := tracer.Start(ctx, "auth.authenticate")
	defer span.End()

	filter, err := g.codec.Filter(name, token)
	if err != nil {
		span.SetStatus(codes.Error, "malformed credentials")
		return nil, models.SessionFilter{}, apperrors.Unauthorized(err)
	}
	span.SetAttributes(attribute.String("user.name", name))

	user, err := g.users.FindBySession(ctx, filter)
	if errors.Is(err, store.ErrNotFound) {
		span.SetStatus(codes.Error, "no matching session")
		return nil, models.SessionFilter{}, apperrors.Unauthorized(err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store error")
		return nil, models.SessionFilter{}, apperrors.StoreError(err)
	}

	return user, filter, nil
}
