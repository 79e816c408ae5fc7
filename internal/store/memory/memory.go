// Package memory is an in-process Credential Store used for local runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/cinelog/catalog-api/internal/models"
	"github.com/cinelog/catalog-api/internal/session"
	"github.com/cinelog/catalog-api/internal/store"

	"github.com/google/uuid"
)

// Repository keeps users and movies in maps guarded by one lock, so uniqueness
// checks and appends are atomic with respect to each other.
type Repository struct {
	sync.RWMutex
	users  map[string]*models.User
	movies map[string]*models.Movie
	order  []string
}

// New is factory method for repository.
func New() *Repository {
	return &Repository{
		users:  map[string]*models.User{},
		movies: map[string]*models.Movie{},
	}
}

// Store exposes the repository through the store contract.
func (r *Repository) Store() *store.Store {
	return &store.Store{
		Users:  Users{r},
		Movies: Movies{r},
		Ping:   func(context.Context) error { return nil },
		Close:  func(context.Context) error { return nil },
	}
}

// MovieCount returns the number of stored movies.
func (r *Repository) MovieCount() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.movies)
}

// User returns a copy of the stored user, for assertions.
func (r *Repository) User(name string) (models.User, bool) {
	r.RLock()
	defer r.RUnlock()
	u, ok := r.users[name]
	if !ok {
		return models.User{}, false
	}
	return cloneUser(u), true
}

func cloneUser(u *models.User) models.User {
	c := *u
	c.CreatedMovies = append([]string(nil), u.CreatedMovies...)
	c.MovieRatings = append([]models.MovieRating(nil), u.MovieRatings...)
	return c
}

// Users implements store.UserStore.
type Users struct{ r *Repository }

func (s Users) FindByName(_ context.Context, name string) (*models.User, error) {
	s.r.RLock()
	defer s.r.RUnlock()
	u, ok := s.r.users[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := cloneUser(u)
	return &c, nil
}

func (s Users) FindBySession(_ context.Context, f models.SessionFilter) (*models.User, error) {
	s.r.RLock()
	defer s.r.RUnlock()
	u, ok := s.r.users[f.Name]
	if !ok || !session.Matches(u, f) {
		return nil, store.ErrNotFound
	}
	c := cloneUser(u)
	return &c, nil
}

func (s Users) Insert(_ context.Context, user *models.User) error {
	s.r.Lock()
	defer s.r.Unlock()
	if _, exists := s.r.users[user.Name]; exists {
		return store.ErrConflict
	}
	c := cloneUser(user)
	s.r.users[user.Name] = &c
	return nil
}

func (s Users) AppendCreatedMovie(_ context.Context, f models.SessionFilter, movieID string) error {
	s.r.Lock()
	defer s.r.Unlock()
	u, ok := s.r.users[f.Name]
	if !ok || !session.Matches(u, f) {
		return store.ErrNotFound
	}
	for _, id := range u.CreatedMovies {
		if id == movieID {
			return nil
		}
	}
	u.CreatedMovies = append(u.CreatedMovies, movieID)
	return nil
}

// Movies implements store.MovieStore.
type Movies struct{ r *Repository }

func (s Movies) FindByTitleAuthor(_ context.Context, title, author string) (*models.Movie, error) {
	s.r.RLock()
	defer s.r.RUnlock()
	for _, m := range s.r.movies {
		if m.Title == title && m.Author == author {
			c := *m
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s Movies) Insert(_ context.Context, movie *models.Movie) (string, error) {
	s.r.Lock()
	defer s.r.Unlock()
	for _, m := range s.r.movies {
		if m.Title == movie.Title && m.Author == movie.Author {
			return "", store.ErrConflict
		}
	}
	c := *movie
	c.ID = uuid.NewString()
	s.r.movies[c.ID] = &c
	s.r.order = append(s.r.order, c.ID)
	return c.ID, nil
}

func (s Movies) List(_ context.Context) ([]models.Movie, error) {
	s.r.RLock()
	defer s.r.RUnlock()
	out := make([]models.Movie, 0, len(s.r.order))
	for _, id := range s.r.order {
		out = append(out, *s.r.movies[id])
	}
	return out, nil
}

func (s Movies) ListByIDs(_ context.Context, ids []string) ([]models.Movie, error) {
	s.r.RLock()
	defer s.r.RUnlock()
	out := make([]models.Movie, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.r.movies[id]; ok {
			out = append(out, *m)
		}
	}
	return out, nil
}
