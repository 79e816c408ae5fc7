package catalog

import (
	"context"

	"github.com/cinelog/catalog-api/internal/models"
	"github.com/cinelog/catalog-api/internal/store"
	apperrors "github.com/cinelog/catalog-api/pkg/errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Reader is the Catalog Reader.
type Reader struct {
	movies store.MovieStore
}

func NewReader(movies store.MovieStore) *Reader {
	return &Reader{movies: movies}
}

// ListAll returns every movie.
func (r *Reader) ListAll(ctx context.Context) ([]models.MovieView, error) {
	ctx, span := tracer.Start(ctx, "catalog.list_all")
	defer span.End()

	movies, err := r.movies.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.StoreError(err)
	}
	return views(movies), nil
}

// ListByOwner returns the movies in user's created set. Ids that no longer
// resolve are skipped. The caller has already authenticated user.
func (r *Reader) ListByOwner(ctx context.Context, user *models.User) ([]models.MovieView, error) {
	if user == nil {
		return nil, apperrors.Unauthorized(nil)
	}
	if len(user.CreatedMovies) == 0 {
		return []models.MovieView{}, nil
	}

	ctx, span := tracer.Start(ctx, "catalog.list_by_owner", trace.WithAttributes(
		attribute.String("user.name", user.Name),
		attribute.Int("movies.owned", len(user.CreatedMovies)),
	))
	defer span.End()

	movies, err := r.movies.ListByIDs(ctx, user.CreatedMovies)
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.StoreError(err)
	}
	return views(movies), nil
}

func views(movies []models.Movie) []models.MovieView {
	out := make([]models.MovieView, 0, len(movies))
	for _, m := range movies {
		out = append(out, m.View())
	}
	return out
}
