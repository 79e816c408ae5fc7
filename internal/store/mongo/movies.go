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

type movieDoc struct {
	ID         bson.ObjectID `bson:"_id,omitempty"`
	Title      string        `bson:"title"`
	Author     string        `bson:"author"`
	ImageURL   string        `bson:"image_url"`
	AvgRating  float32       `bson:"avg_rating"`
	NumRatings uint32        `bson:"num_ratings"`
}

func (d *movieDoc) model() models.Movie {
	return models.Movie{
		ID:         d.ID.Hex(),
		Title:      d.Title,
		Author:     d.Author,
		ImageURL:   d.ImageURL,
		AvgRating:  d.AvgRating,
		NumRatings: d.NumRatings,
	}
}

// Movies implements store.MovieStore.
type Movies struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func (m *Movies) FindByTitleAuthor(ctx context.Context, title, author string) (movie *models.Movie, err error) {
	defer func(start time.Time) { observe("movies.find_by_title_author", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, m.timeout)
	defer cancel()

	var doc movieDoc
	err = m.coll.FindOne(ctx, bson.D{
		{Key: "title", Value: title},
		{Key: "author", Value: author},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find movie failed: %w", err)
	}

	found := doc.model()
	return &found, nil
}

func (m *Movies) Insert(ctx context.Context, movie *models.Movie) (id string, err error) {
	defer func(start time.Time) { observe("movies.insert", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, m.timeout)
	defer cancel()

	doc := movieDoc{
		ID:         bson.NewObjectID(),
		Title:      movie.Title,
		Author:     movie.Author,
		ImageURL:   movie.ImageURL,
		AvgRating:  movie.AvgRating,
		NumRatings: movie.NumRatings,
	}

	_, err = m.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return "", store.ErrConflict
	}
	if err != nil {
		return "", fmt.Errorf("insert movie failed: %w", err)
	}

	return doc.ID.Hex(), nil
}

func (m *Movies) List(ctx context.Context) (movies []models.Movie, err error) {
	defer func(start time.Time) { observe("movies.list", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, m.timeout)
	defer cancel()

	return m.find(ctx, bson.D{})
}

// ListByIDs issues one $in query; ids that are not valid ObjectIDs cannot
// exist and are skipped.
func (m *Movies) ListByIDs(ctx context.Context, ids []string) (movies []models.Movie, err error) {
	defer func(start time.Time) { observe("movies.list_by_ids", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, m.timeout)
	defer cancel()

	oids := make([]bson.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, convErr := bson.ObjectIDFromHex(id)
		if convErr != nil {
			continue
		}
		oids = append(oids, oid)
	}
	if len(oids) == 0 {
		return []models.Movie{}, nil
	}

	return m.find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}})
}

func (m *Movies) find(ctx context.Context, filter bson.D) ([]models.Movie, error) {
	cursor, err := m.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find movies failed: %w", err)
	}

	var docs []movieDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode movies failed: %w", err)
	}

	movies := make([]models.Movie, 0, len(docs))
	for i := range docs {
		movies = append(movies, docs[i].model())
	}
	return movies, nil
}
