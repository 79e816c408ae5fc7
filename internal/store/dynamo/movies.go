package dynamo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cinelog/catalog-api/internal/models"
	"github.com/cinelog/catalog-api/internal/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	recordMovie = "movie"
	recordGuard = "title_author"

	// BatchGetItem accepts at most 100 keys per request.
	batchGetLimit = 100
)

// movieItem is a movie as stored, tagged with its record type.
type movieItem struct {
	models.Movie
	RecordType string `dynamodbav:"record_type"`
}

// guardItem reserves a (title, author) pair and points at the movie holding it.
type guardItem struct {
	MovieID    string `dynamodbav:"movie_id"`
	RecordType string `dynamodbav:"record_type"`
	Ref        string `dynamodbav:"ref"`
	Title      string `dynamodbav:"title"`
	Author     string `dynamodbav:"author"`
}

// Movies implements store.MovieStore.
type Movies struct {
	client  API
	table   string
	timeout time.Duration
}

func movieKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"movie_id": &types.AttributeValueMemberS{Value: id},
	}
}

// guardKey hashes the pair so arbitrary titles fit the key size limit.
func guardKey(title, author string) string {
	sum := sha256.Sum256([]byte(title + "\x00" + author))
	return recordGuard + "#" + hex.EncodeToString(sum[:])
}

func (m *Movies) getMovie(ctx context.Context, id string) (*models.Movie, error) {
	result, err := m.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(m.table),
		Key:            movieKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get movie failed: %w", err)
	}
	if len(result.Item) == 0 {
		return nil, store.ErrNotFound
	}

	var item movieItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal movie failed: %w", err)
	}
	return &item.Movie, nil
}

func (m *Movies) FindByTitleAuthor(ctx context.Context, title, author string) (movie *models.Movie, err error) {
	defer func(start time.Time) { observe("movies.find_by_title_author", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, m.timeout)
	defer cancel()

	result, err := m.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(m.table),
		Key:            movieKey(guardKey(title, author)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get guard failed: %w", err)
	}
	if len(result.Item) == 0 {
		return nil, store.ErrNotFound
	}

	var guard guardItem
	if err := attributevalue.UnmarshalMap(result.Item, &guard); err != nil {
		return nil, fmt.Errorf("unmarshal guard failed: %w", err)
	}

	return m.getMovie(ctx, guard.Ref)
}

// Insert writes the movie and its pair guard in one transaction.
func (m *Movies) Insert(ctx context.Context, movie *models.Movie) (id string, err error) {
	defer func(start time.Time) { observe("movies.insert", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, m.timeout)
	defer cancel()

	record := movieItem{Movie: *movie, RecordType: recordMovie}
	record.ID = uuid.NewString()

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return "", fmt.Errorf("marshal movie failed: %w", err)
	}
	guard, err := attributevalue.MarshalMap(guardItem{
		MovieID:    guardKey(movie.Title, movie.Author),
		RecordType: recordGuard,
		Ref:        record.ID,
		Title:      movie.Title,
		Author:     movie.Author,
	})
	if err != nil {
		return "", fmt.Errorf("marshal guard failed: %w", err)
	}

	_, err = m.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(m.table),
				Item:                guard,
				ConditionExpression: aws.String("attribute_not_exists(movie_id)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(m.table),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(movie_id)"),
			}},
		},
	})
	if isTransactionConflict(err) {
		return "", store.ErrConflict
	}
	if err != nil {
		return "", fmt.Errorf("transact write failed: %w", err)
	}

	return record.ID, nil
}

func (m *Movies) List(ctx context.Context) (movies []models.Movie, err error) {
	defer func(start time.Time) { observe("movies.list", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, m.timeout)
	defer cancel()

	paginator := dynamodb.NewScanPaginator(m.client, &dynamodb.ScanInput{
		TableName:        aws.String(m.table),
		FilterExpression: aws.String("record_type = :movie"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":movie": &types.AttributeValueMemberS{Value: recordMovie},
		},
	})

	movies = []models.Movie{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		var items []movieItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal movies failed: %w", err)
		}
		for _, item := range items {
			movies = append(movies, item.Movie)
		}
	}

	return movies, nil
}

// ListByIDs batches the lookups and returns movies in the order of ids.
func (m *Movies) ListByIDs(ctx context.Context, ids []string) (movies []models.Movie, err error) {
	defer func(start time.Time) { observe("movies.list_by_ids", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, m.timeout)
	defer cancel()

	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	found := make(map[string]models.Movie, len(unique))
	for start := 0; start < len(unique); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(unique) {
			end = len(unique)
		}

		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range unique[start:end] {
			keys = append(keys, movieKey(id))
		}

		request := map[string]types.KeysAndAttributes{
			m.table: {Keys: keys, ConsistentRead: aws.Bool(true)},
		}
		for len(request) > 0 {
			out, err := m.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("batch get failed: %w", err)
			}

			var items []movieItem
			if err := attributevalue.UnmarshalListOfMaps(out.Responses[m.table], &items); err != nil {
				return nil, fmt.Errorf("unmarshal movies failed: %w", err)
			}
			for _, item := range items {
				if item.RecordType == recordMovie {
					found[item.ID] = item.Movie
				}
			}

			request = out.UnprocessedKeys
		}
	}

	movies = make([]models.Movie, 0, len(found))
	for _, id := range unique {
		if movie, ok := found[id]; ok {
			movies = append(movies, movie)
		}
	}

	return movies, nil
}
