package migrate

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	FileIndexVersion = "20250901000000_file_index_table"
	// ServiceTimeIndexName is the sparse index ordering entries by their next service time.
	ServiceTimeIndexName = "service_time_index"
)

// CreateFileIndexTable creates the table holding one entry per registered object.
type CreateFileIndexTable struct {
	Table string
}

func (m *CreateFileIndexTable) Version() string {
	return FileIndexVersion
}

func (m *CreateFileIndexTable) TableName() string {
	return m.Table
}

func (m *CreateFileIndexTable) Up(ctx context.Context, client Client) error {
	input := &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("location"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("path"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("service_time"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("location"),
				KeyType:       types.KeyTypeHash,
			},
			{
				AttributeName: aws.String("path"),
				KeyType:       types.KeyTypeRange,
			},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(ServiceTimeIndexName),
				KeySchema: []types.KeySchemaElement{
					{
						AttributeName: aws.String("location"),
						KeyType:       types.KeyTypeHash,
					},
					{
						AttributeName: aws.String("service_time"),
						KeyType:       types.KeyTypeRange,
					},
				},
				Projection: &types.Projection{
					ProjectionType: types.ProjectionTypeKeysOnly,
				},
			},
		},
		TableName:   aws.String(m.Table),
		BillingMode: types.BillingModePayPerRequest,
		Tags: []types.Tag{
			{
				Key:   aws.String("Purpose"),
				Value: aws.String("PreservationIndex"),
			},
		},
	}

	if _, err := client.CreateTable(ctx, input); err != nil {
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(m.Table),
	}, 5*time.Minute)
}

func (m *CreateFileIndexTable) Down(ctx context.Context, client Client) error {
	if _, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(m.Table),
	}); err != nil {
		return err
	}

	waiter := dynamodb.NewTableNotExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(m.Table),
	}, 5*time.Minute)
}
