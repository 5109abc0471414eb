// Package migrate creates and removes the DynamoDB tables used by the index.
package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"
)

// Client is the subset of the DynamoDB API needed to manage tables.
type Client interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Migration is one reversible schema change.
type Migration interface {
	Version() string
	TableName() string
	Up(ctx context.Context, client Client) error
	Down(ctx context.Context, client Client) error
}

// Migrator applies migrations in order and reverts them in reverse order.
type Migrator struct {
	client     Client
	migrations []Migration
}

func NewMigrator(client Client, migrations ...Migration) *Migrator {
	return &Migrator{client: client, migrations: migrations}
}

// ForIndexTable returns the migrations of the index stored in table.
func ForIndexTable(client Client, table string) *Migrator {
	return NewMigrator(client, &CreateFileIndexTable{Table: table})
}

// Up applies every migration. Tables that already exist are left untouched.
func (m *Migrator) Up(ctx context.Context) error {
	for _, migration := range m.migrations {
		err := migration.Up(ctx, m.client)
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			log.Infof("Table %s already exists, skipping %s", migration.TableName(), migration.Version())
			continue
		}
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", migration.Version(), err)
		}
		log.Infof("Applied migration %s", migration.Version())
	}
	return nil
}

// Down reverts every migration. Missing tables are not an error.
func (m *Migrator) Down(ctx context.Context) error {
	for i := len(m.migrations) - 1; i >= 0; i-- {
		migration := m.migrations[i]
		err := migration.Down(ctx, m.client)
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			log.Infof("Table %s does not exist, skipping %s", migration.TableName(), migration.Version())
			continue
		}
		if err != nil {
			return fmt.Errorf("revert migration %s: %w", migration.Version(), err)
		}
		log.Infof("Reverted migration %s", migration.Version())
	}
	return nil
}
