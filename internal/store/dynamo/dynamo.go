// Package dynamo implements the Credential Store on DynamoDB.
//
// Users live in a table keyed by "name". Movies live in a table keyed by
// "movie_id"; next to each movie item the same table holds a guard item keyed
// by a hash of (title, author), written in one transaction with the movie so
// the pair stays unique under concurrent inserts.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cinelog/catalog-api/internal/awsclient"
	"github.com/cinelog/catalog-api/internal/config"
	"github.com/cinelog/catalog-api/internal/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

const backend = "dynamodb"

// API is the subset of the DynamoDB client the store uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// NewClient creates the DynamoDB client shared by both tables.
func NewClient(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	awsCfg, err := awsclient.LoadConfig(ctx, cfg.DynamoDB.Region, &cfg.AWS, logger)
	if err != nil {
		return nil, err
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDB.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		}
	})

	logger.WithFields(logrus.Fields{
		"region":       cfg.DynamoDB.Region,
		"users_table":  cfg.DynamoDB.UsersTableName,
		"movies_table": cfg.DynamoDB.MoviesTableName,
	}).Info("DynamoDB client initialized")

	return client, nil
}

// New wires both collections onto one client.
func New(client API, cfg *config.Config) *store.Store {
	users := &Users{client: client, table: cfg.DynamoDB.UsersTableName, timeout: cfg.Store.Timeout}
	movies := &Movies{client: client, table: cfg.DynamoDB.MoviesTableName, timeout: cfg.Store.Timeout}

	return &store.Store{
		Users:  users,
		Movies: movies,
		Ping: func(ctx context.Context) error {
			ctx, cancel := store.Bound(ctx, cfg.Store.Timeout)
			defer cancel()
			_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(users.table)})
			if err != nil {
				return fmt.Errorf("describe table %s: %w", users.table, err)
			}
			return nil
		},
		Close: func(context.Context) error { return nil },
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func isTransactionConflict(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	for _, reason := range tce.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

func observe(operation string, start time.Time, err error) {
	store.Observe(backend, operation, start, err)
}
