// Package db implements the secondary index on DynamoDB.
package db

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zpreserve/internal/repository/migrate"
)

// DynamoAPI is the subset of the DynamoDB client used by the index and its migrations.
type DynamoAPI interface {
	migrate.Client
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type DynamoDb struct {
	Client DynamoAPI
	Table  string
}

// NewDatabase creates a DynamoDB client for the index table. An endpoint overrides the
// regional service endpoint, for local DynamoDB.
func NewDatabase(awsConfig aws.Config, table, endpoint string) (*DynamoDb, error) {
	if table == "" {
		return nil, fmt.Errorf("an index table name is required")
	}
	client := dynamodb.NewFromConfig(awsConfig, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	log.Debugf("Created DynamoDB client for table %s", table)
	return &DynamoDb{Client: client, Table: table}, nil
}

// MigrateDb creates the index table.
func (d *DynamoDb) MigrateDb(ctx context.Context) error {
	return migrate.ForIndexTable(d.Client, d.Table).Up(ctx)
}

// MigrateDown deletes the index table.
func (d *DynamoDb) MigrateDown(ctx context.Context) error {
	return migrate.ForIndexTable(d.Client, d.Table).Down(ctx)
}
