package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zpreserve/internal/domain"
	zerrors "github.com/zzenonn/zpreserve/internal/errors"
	"github.com/zzenonn/zpreserve/internal/index"
	"github.com/zzenonn/zpreserve/internal/location"
	"github.com/zzenonn/zpreserve/internal/repository/migrate"
)

// DefaultPageSize bounds the items evaluated by one query.
const DefaultPageSize = 1000

// indexItem is one entry of the index table. ServiceTime is omitted when no service is ever
// due again, which keeps the entry out of the sparse service time index.
type indexItem struct {
	Location     string `dynamodbav:"location"`
	Path         string `dynamodbav:"path"`
	Registered   string `dynamodbav:"registered"`
	Deregistered bool   `dynamodbav:"deregistered"`
	ServiceTime  string `dynamodbav:"service_time,omitempty"`
	UpdatedAt    string `dynamodbav:"updated_at"`
}

// pageCursor records the location being queried and DynamoDB's last evaluated key.
type pageCursor struct {
	Location int               `json:"location"`
	Key      map[string]string `json:"key,omitempty"`
}

// IndexRepository is an index.Index stored in a DynamoDB table keyed by location and path.
type IndexRepository struct {
	client      DynamoAPI
	tableName   string
	pageSize    int32
	registry    *location.Registry
	serviceTime index.ServiceTimeFunc
}

var _ index.Index = (*IndexRepository)(nil)

// NewIndexRepository initializes a new IndexRepository. The registry resolves path filters
// to the locations that are queried.
func NewIndexRepository(client DynamoAPI, tableName string, pageSize int, registry *location.Registry, serviceTime index.ServiceTimeFunc) IndexRepository {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return IndexRepository{
		client:      client,
		tableName:   tableName,
		pageSize:    int32(pageSize),
		registry:    registry,
		serviceTime: serviceTime,
	}
}

func entryKey(p string) string {
	return location.TrimTrailingSeparator(p)
}

// Index stores the entry for file, replacing any previous one.
func (repo *IndexRepository) Index(ctx context.Context, file *domain.FileRecord) error {
	if file.Metadata == nil {
		return zerrors.RegistrationError(file.Path, "cannot index a file without metadata")
	}

	item := indexItem{
		Location:     file.Location.Name(),
		Path:         entryKey(file.Path),
		Registered:   domain.FormatTimestamp(file.Metadata.Registered),
		Deregistered: file.Metadata.IsDeregistered(),
		UpdatedAt:    domain.FormatTimestamp(time.Now()),
	}
	if next, ok := repo.serviceTime(file); ok && !item.Deregistered {
		item.ServiceTime = domain.FormatTimestamp(next)
	}

	itemMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal index entry: %w", err)
	}
	if _, err := repo.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(repo.tableName),
		Item:      itemMap,
	}); err != nil {
		return fmt.Errorf("failed to index %s: %w", file.Path, err)
	}
	return nil
}

// Remove deletes the entry for file.
func (repo *IndexRepository) Remove(ctx context.Context, file *domain.FileRecord) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(repo.tableName),
		Key: map[string]types.AttributeValue{
			"location": &types.AttributeValueMemberS{Value: file.Location.Name()},
			"path":     &types.AttributeValueMemberS{Value: entryKey(file.Path)},
		},
	}
	if _, err := repo.client.DeleteItem(ctx, input); err != nil {
		return fmt.Errorf("failed to remove %s from index: %w", file.Path, err)
	}
	return nil
}

// RegisteredPaths lists registered entries location by location, in path order.
func (repo *IndexRepository) RegisteredPaths(ctx context.Context, filter index.Filter, cursor index.Cursor) (index.Page, error) {
	return repo.page(ctx, filter, cursor, func(loc string, start map[string]types.AttributeValue) *dynamodb.QueryInput {
		input := &dynamodb.QueryInput{
			TableName:              aws.String(repo.tableName),
			KeyConditionExpression: aws.String("#loc = :loc"),
			FilterExpression:       aws.String("#dereg = :false"),
			ExpressionAttributeNames: map[string]string{
				"#loc":   "location",
				"#dereg": "deregistered",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":loc":   &types.AttributeValueMemberS{Value: loc},
				":false": &types.AttributeValueMemberBOOL{Value: false},
			},
			ExclusiveStartKey: start,
			Limit:             aws.Int32(repo.pageSize),
		}
		if len(filter.Paths) == 1 {
			input.KeyConditionExpression = aws.String("#loc = :loc AND begins_with(#path, :prefix)")
			input.ExpressionAttributeNames["#path"] = "path"
			input.ExpressionAttributeValues[":prefix"] = &types.AttributeValueMemberS{Value: entryKey(filter.Paths[0])}
		}
		return input
	})
}

// PathsWithStaleServices lists entries due at or before asOf, location by location, oldest
// service time first.
func (repo *IndexRepository) PathsWithStaleServices(ctx context.Context, filter index.Filter, asOf time.Time, cursor index.Cursor) (index.Page, error) {
	return repo.page(ctx, filter, cursor, func(loc string, start map[string]types.AttributeValue) *dynamodb.QueryInput {
		return &dynamodb.QueryInput{
			TableName:              aws.String(repo.tableName),
			IndexName:              aws.String(migrate.ServiceTimeIndexName),
			KeyConditionExpression: aws.String("#loc = :loc AND #st <= :asof"),
			ExpressionAttributeNames: map[string]string{
				"#loc": "location",
				"#st":  "service_time",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":loc":  &types.AttributeValueMemberS{Value: loc},
				":asof": &types.AttributeValueMemberS{Value: domain.FormatTimestamp(asOf)},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: start,
			Limit:             aws.Int32(repo.pageSize),
		}
	})
}

// page queries until it has at least one matching path or every location is exhausted, so
// that an empty page always ends the listing.
func (repo *IndexRepository) page(ctx context.Context, filter index.Filter, cursor index.Cursor,
	build func(loc string, start map[string]types.AttributeValue) *dynamodb.QueryInput) (index.Page, error) {
	locations, err := repo.locationsFor(filter)
	if err != nil {
		return index.Page{}, err
	}
	c, err := decodeCursor(cursor)
	if err != nil {
		return index.Page{}, err
	}

	for c.Location < len(locations) {
		var start map[string]types.AttributeValue
		if len(c.Key) > 0 {
			if start, err = attributevalue.MarshalMap(c.Key); err != nil {
				return index.Page{}, fmt.Errorf("failed to marshal start key: %w", err)
			}
		}

		loc := locations[c.Location]
		result, err := repo.client.Query(ctx, build(loc, start))
		if err != nil {
			return index.Page{}, fmt.Errorf("failed to query index: %w", err)
		}

		var paths []string
		for _, item := range result.Items {
			var entry indexItem
			if err := attributevalue.UnmarshalMap(item, &entry); err != nil {
				return index.Page{}, fmt.Errorf("failed to unmarshal index entry: %w", err)
			}
			if filter.MatchesPath(entry.Path) {
				paths = append(paths, entry.Path)
			}
		}

		if len(result.LastEvaluatedKey) > 0 {
			var key map[string]string
			if err := attributevalue.UnmarshalMap(result.LastEvaluatedKey, &key); err != nil {
				return index.Page{}, fmt.Errorf("failed to unmarshal last evaluated key: %w", err)
			}
			c = pageCursor{Location: c.Location, Key: key}
		} else {
			c = pageCursor{Location: c.Location + 1}
		}

		if len(paths) > 0 {
			log.Debugf("Index returned %d paths from location %s", len(paths), loc)
			next, err := encodeCursor(c)
			if err != nil {
				return index.Page{}, err
			}
			return index.Page{Paths: paths, Next: next}, nil
		}
	}
	return index.Page{}, nil
}

// locationsFor returns the location names a filter touches, in registry order.
func (repo *IndexRepository) locationsFor(filter index.Filter) ([]string, error) {
	if len(filter.Locations) > 0 {
		return filter.Locations, nil
	}
	if len(filter.Paths) == 0 {
		return repo.registry.Names(), nil
	}

	selected := make(map[string]bool)
	for _, p := range filter.Paths {
		loc, err := repo.registry.LocationForPath(p)
		if err != nil {
			return nil, err
		}
		selected[loc.Name()] = true
	}
	var names []string
	for _, name := range repo.registry.Names() {
		if selected[name] {
			names = append(names, name)
		}
	}
	return names, nil
}

func decodeCursor(cursor index.Cursor) (pageCursor, error) {
	var c pageCursor
	if cursor == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(cursor), &c); err != nil {
		return c, fmt.Errorf("malformed index cursor: %w", err)
	}
	return c, nil
}

func encodeCursor(c pageCursor) (index.Cursor, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode index cursor: %w", err)
	}
	return index.Cursor(data), nil
}
