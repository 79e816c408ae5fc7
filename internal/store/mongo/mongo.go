// Package mongo implements the Credential Store on MongoDB. Movie ids are
// ObjectIDs rendered as hex; users reference movies by ObjectID in
// created_movies.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/cinelog/catalog-api/internal/config"
	"github.com/cinelog/catalog-api/internal/store"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const backend = "mongo"

// Connect opens the client, ensures the unique indexes and returns the store.
func Connect(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*store.Store, error) {
	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetTimeout(cfg.Store.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Mongo.Database)
	users := &Users{coll: db.Collection(cfg.Mongo.UsersCollection), timeout: cfg.Store.Timeout}
	movies := &Movies{coll: db.Collection(cfg.Mongo.MoviesCollection), timeout: cfg.Store.Timeout}

	if err := ensureIndexes(ctx, users, movies); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"database":          cfg.Mongo.Database,
		"users_collection":  cfg.Mongo.UsersCollection,
		"movies_collection": cfg.Mongo.MoviesCollection,
	}).Info("Connected to MongoDB")

	return &store.Store{
		Users:  users,
		Movies: movies,
		Ping: func(ctx context.Context) error {
			ctx, cancel := store.Bound(ctx, cfg.Store.Timeout)
			defer cancel()
			return client.Ping(ctx, readpref.Primary())
		},
		Close: client.Disconnect,
	}, nil
}

// ensureIndexes makes the store enforce user name and (title, author) uniqueness.
func ensureIndexes(ctx context.Context, users *Users, movies *Movies) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := users.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("name_unique"),
	}); err != nil {
		return fmt.Errorf("create users index: %w", err)
	}

	if _, err := movies.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "title", Value: 1}, {Key: "author", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("title_author_unique"),
	}); err != nil {
		return fmt.Errorf("create movies index: %w", err)
	}

	return nil
}

func observe(operation string, start time.Time, err error) {
	store.Observe(backend, operation, start, err)
}
