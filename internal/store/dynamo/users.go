package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/cinelog/catalog-api/internal/models"
	"github.com/cinelog/catalog-api/internal/session"
	"github.com/cinelog/catalog-api/internal/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Users implements store.UserStore. "name" is a DynamoDB reserved word, so
// every expression refers to it through #n.
type Users struct {
	client  API
	table   string
	timeout time.Duration
}

func userKey(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"name": &types.AttributeValueMemberS{Value: name},
	}
}

func (u *Users) get(ctx context.Context, name string) (*models.User, error) {
	result, err := u.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(u.table),
		Key:            userKey(name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get user failed: %w", err)
	}
	if len(result.Item) == 0 {
		return nil, store.ErrNotFound
	}

	var user models.User
	if err := attributevalue.UnmarshalMap(result.Item, &user); err != nil {
		return nil, fmt.Errorf("unmarshal user failed: %w", err)
	}
	return &user, nil
}

func (u *Users) FindByName(ctx context.Context, name string) (user *models.User, err error) {
	defer func(start time.Time) { observe("users.find_by_name", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, u.timeout)
	defer cancel()

	return u.get(ctx, name)
}

// FindBySession fetches by key and compares the token in constant time.
func (u *Users) FindBySession(ctx context.Context, f models.SessionFilter) (user *models.User, err error) {
	defer func(start time.Time) { observe("users.find_by_session", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, u.timeout)
	defer cancel()

	user, err = u.get(ctx, f.Name)
	if err != nil {
		return nil, err
	}
	if !session.Matches(user, f) {
		return nil, store.ErrNotFound
	}
	return user, nil
}

func (u *Users) Insert(ctx context.Context, user *models.User) (err error) {
	defer func(start time.Time) { observe("users.insert", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, u.timeout)
	defer cancel()

	record := *user
	if record.CreatedMovies == nil {
		record.CreatedMovies = []string{}
	}
	if record.MovieRatings == nil {
		record.MovieRatings = []models.MovieRating{}
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	_, err = u.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(u.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#n)"),
		ExpressionAttributeNames: map[string]string{"#n": "name"},
	})
	if isConditionFailed(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("put item failed: %w", err)
	}

	return nil
}

// AppendCreatedMovie appends with list_append in a single UpdateItem guarded
// by the session token, so concurrent appends for one user cannot overwrite
// each other.
func (u *Users) AppendCreatedMovie(ctx context.Context, f models.SessionFilter, movieID string) (err error) {
	defer func(start time.Time) { observe("users.append_created_movie", start, err) }(time.Now())
	ctx, cancel := store.Bound(ctx, u.timeout)
	defer cancel()

	_, err = u.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(u.table),
		Key:                 userKey(f.Name),
		UpdateExpression:    aws.String("SET created_movies = list_append(if_not_exists(created_movies, :empty), :ids)"),
		ConditionExpression: aws.String("attribute_exists(#n) AND session_token = :token"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":ids": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberS{Value: movieID},
			}},
			":token": &types.AttributeValueMemberS{Value: f.Token},
		},
	})
	if isConditionFailed(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update item failed: %w", err)
	}

	return nil
}
