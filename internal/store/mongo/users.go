package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cinelog/catalog-api/internal/models"
	"github.com/cinelog/catalog-api/internal/store"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type ratingDoc struct {
	MovieID bson.ObjectID `bson:"movie_id"`
	Rating  float64       `bson:"rating"`
}

type userDoc struct {
	ID            bson.ObjectID   `bson:"_id,omitempty"`
	Name          string          `bson:"name"`
	Password      string          `bson:"password"`
	SessionToken  string          `bson:"session_token"`
	MovieRatings  []ratingDoc     `bson:"movie_ratings"`
	CreatedMovies []bson.ObjectID `bson:"created_movies"`
}

func (d *userDoc) model() *models.User {
	u := &models.User{
		Name:          d.Name,
		Password:      d.Password,
		SessionToken:  d.SessionToken,
		MovieRatings:  make([]models.MovieRating, 0, len(d.MovieRatings)),
		CreatedMovies: make([]string, 0, len(d.CreatedMovies)),
	}
	for _, r := range d.MovieRatings {
		u.MovieRatings = append(u.MovieRatings, models.MovieRating{MovieID: r.MovieID.Hex(), Rating: r.Rating})
	}
	for _, id := range d.CreatedMovies {
		u.CreatedMovies = append(u.CreatedMovies, id.Hex())
	}
	return u
}

// Users implements store.UserStore.
type Users struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func (u *Users) findOne(ctx context.Context, filter bson.D) (*models.User, error) {
	var doc userDoc
	err := u.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user failed: %w", err)
	}
	return doc.model(), nil
}

func (u *Users) FindByName(ctx context.Context, name string) (user *models.User, err error) {
	defer func(start time.Time) { observe("users.find_by_name", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, u.timeout)
	defer cancel()

	return u.findOne(ctx, bson.D{{Key: "name", Value: name}})
}

// FindBySession queries with the {name, session_token} equality filter.
func (u *Users) FindBySession(ctx context.Context, f models.SessionFilter) (user *models.User, err error) {
	defer func(start time.Time) { observe("users.find_by_session", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, u.timeout)
	defer cancel()

	return u.findOne(ctx, sessionFilter(f))
}

func (u *Users) Insert(ctx context.Context, user *models.User) (err error) {
	defer func(start time.Time) { observe("users.insert", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, u.timeout)
	defer cancel()

	doc := userDoc{
		Name:          user.Name,
		Password:      user.Password,
		SessionToken:  user.SessionToken,
		MovieRatings:  []ratingDoc{},
		CreatedMovies: []bson.ObjectID{},
	}

	_, err = u.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user failed: %w", err)
	}
	return nil
}

// AppendCreatedMovie uses $addToSet, a single-document atomic update.
func (u *Users) AppendCreatedMovie(ctx context.Context, f models.SessionFilter, movieID string) (err error) {
	defer func(start time.Time) { observe("users.append_created_movie", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, u.timeout)
	defer cancel()

	oid, err := bson.ObjectIDFromHex(movieID)
	if err != nil {
		return fmt.Errorf("invalid movie id %q: %w", movieID, err)
	}

	result, err := u.coll.UpdateOne(ctx, sessionFilter(f), bson.D{
		{Key: "$addToSet", Value: bson.D{{Key: "created_movies", Value: oid}}},
	})
	if err != nil {
		return fmt.Errorf("update user failed: %w", err)
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func sessionFilter(f models.SessionFilter) bson.D {
	return bson.D{
		{Key: "name", Value: f.Name},
		{Key: "session_token", Value: f.Token},
	}
}
