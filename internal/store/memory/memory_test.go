package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cinelog/catalog-api/internal/models"
	"github.com/cinelog/catalog-api/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers_InsertRejectsDuplicateName(t *testing.T) {
	s := New().Store()
	ctx := context.Background()

	require.NoError(t, s.Users.Insert(ctx, &models.User{Name: "alice", Password: "h1", SessionToken: "t1"}))
	err := s.Users.Insert(ctx, &models.User{Name: "alice", Password: "h2", SessionToken: "t2"})
	assert.ErrorIs(t, err, store.ErrConflict)

	u, err := s.Users.FindByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "h1", u.Password)
	assert.Equal(t, "t1", u.SessionToken)
}

func TestUsers_FindBySession(t *testing.T) {
	s := New().Store()
	ctx := context.Background()
	require.NoError(t, s.Users.Insert(ctx, &models.User{Name: "alice", SessionToken: "t1"}))

	u, err := s.Users.FindBySession(ctx, models.SessionFilter{Name: "alice", Token: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Name)

	_, err = s.Users.FindBySession(ctx, models.SessionFilter{Name: "alice", Token: "t2"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Users.FindBySession(ctx, models.SessionFilter{Name: "bob", Token: "t1"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsers_AppendCreatedMovieConcurrent(t *testing.T) {
	repo := New()
	s := repo.Store()
	ctx := context.Background()
	f := models.SessionFilter{Name: "alice", Token: "t1"}
	require.NoError(t, s.Users.Insert(ctx, &models.User{Name: "alice", SessionToken: "t1"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Users.AppendCreatedMovie(ctx, f, fmt.Sprintf("m-%d", i)))
		}(i)
	}
	wg.Wait()

	u, ok := repo.User("alice")
	require.True(t, ok)
	assert.Len(t, u.CreatedMovies, 50)
}

func TestUsers_AppendCreatedMovieWrongToken(t *testing.T) {
	s := New().Store()
	ctx := context.Background()
	require.NoError(t, s.Users.Insert(ctx, &models.User{Name: "alice", SessionToken: "t1"}))

	err := s.Users.AppendCreatedMovie(ctx, models.SessionFilter{Name: "alice", Token: "x"}, "m-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMovies_InsertAndList(t *testing.T) {
	s := New().Store()
	ctx := context.Background()

	id1, err := s.Movies.Insert(ctx, &models.Movie{Title: "T1", Author: "A", ImageURL: "k1.png"})
	require.NoError(t, err)
	id2, err := s.Movies.Insert(ctx, &models.Movie{Title: "T2", Author: "A", ImageURL: "k2.png"})
	require.NoError(t, err)

	_, err = s.Movies.Insert(ctx, &models.Movie{Title: "T1", Author: "A", ImageURL: "k3.png"})
	assert.ErrorIs(t, err, store.ErrConflict)

	all, err := s.Movies.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, id1, all[0].ID)
	assert.Equal(t, id2, all[1].ID)

	some, err := s.Movies.ListByIDs(ctx, []string{id2, "missing"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "T2", some[0].Title)

	found, err := s.Movies.FindByTitleAuthor(ctx, "T1", "A")
	require.NoError(t, err)
	assert.Equal(t, "k1.png", found.ImageURL)

	_, err = s.Movies.FindByTitleAuthor(ctx, "T1", "B")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
