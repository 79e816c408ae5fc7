// Package store defines the Credential Store contract: the document store
// holding users and movies. Backends live in subpackages.
//
// Two invariants are pushed into every backend rather than left to callers:
// a (title, author) pair is unique at insert time, and appending to a user's
// created movies is a single store operation scoped by the session filter.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cinelog/catalog-api/internal/metrics"
	"github.com/cinelog/catalog-api/internal/models"
)

var (
	// ErrNotFound is returned when no record matches a lookup or filter.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when an insert violates a uniqueness rule
	// (user name, or movie title and author).
	ErrConflict = errors.New("store: conflict")
)

// UserStore holds user records.
type UserStore interface {
	// FindByName returns the user with the given name or ErrNotFound.
	FindByName(ctx context.Context, name string) (*models.User, error)

	// FindBySession returns the single user matching both filter fields or ErrNotFound.
	FindBySession(ctx context.Context, f models.SessionFilter) (*models.User, error)

	// Insert creates the user; ErrConflict if the name is taken.
	Insert(ctx context.Context, user *models.User) error

	// AppendCreatedMovie atomically appends movieID to the created movies of the
	// user matching f. ErrNotFound if the filter matches nobody.
	AppendCreatedMovie(ctx context.Context, f models.SessionFilter, movieID string) error
}

// MovieStore holds movie records.
type MovieStore interface {
	// FindByTitleAuthor returns the movie with that pair or ErrNotFound.
	FindByTitleAuthor(ctx context.Context, title, author string) (*models.Movie, error)

	// Insert stores the movie and returns its store-assigned id. ErrConflict if
	// the (title, author) pair already exists.
	Insert(ctx context.Context, movie *models.Movie) (string, error)

	// List returns every movie.
	List(ctx context.Context) ([]models.Movie, error)

	// ListByIDs returns the movies whose ids are in ids. Unknown ids are skipped.
	ListByIDs(ctx context.Context, ids []string) ([]models.Movie, error)
}

// Store bundles the collections of one backend.
type Store struct {
	Users  UserStore
	Movies MovieStore
	Ping   func(ctx context.Context) error
	Close  func(ctx context.Context) error
}

// Bound derives a context limited by timeout. A non-positive timeout leaves
// the parent deadline in place.
func Bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Observe records the duration of a store call started at start. Lookups
// that end in ErrNotFound are successful calls.
func Observe(backend, operation string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		err = nil
	}
	metrics.RecordStoreCall(backend, operation, err, time.Since(start))
}
