package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// SnapshotCatalog tracks the committed snapshot versions of one population
// lineage in DynamoDB. Snapshot bytes live in S3; the catalog provides the
// compare-and-swap semantics S3 lacks, so concurrent exporters cannot
// clobber each other's latest pointer.
//
// Table schema:
//   - Partition key: lineage (string) - the S3 prefix of the population
//   - Sort key: version (number) - monotonically increasing version
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name popstore-snapshots \
//	  --attribute-definitions AttributeName=lineage,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=lineage,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type SnapshotCatalog struct {
	client    DDBClient
	tableName string
	lineage   string
}

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ErrConcurrentCommit is returned when another writer committed the same
// version first.
var ErrConcurrentCommit = errors.New("concurrent snapshot commit detected")

// NewSnapshotCatalog creates a catalog for one population lineage. The
// lineage should be the "s3://bucket/prefix" the snapshots are written
// under.
func NewSnapshotCatalog(client DDBClient, tableName, lineage string) *SnapshotCatalog {
	return &SnapshotCatalog{
		client:    client,
		tableName: tableName,
		lineage:   lineage,
	}
}

// Latest returns the most recently committed version and its snapshot blob
// name. A zero version means nothing has been committed yet.
func (c *SnapshotCatalog) Latest(ctx context.Context) (uint64, string, error) {
	resp, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("lineage = :lineage"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lineage": &types.AttributeValueMemberS{Value: c.lineage},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to query catalog: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid version attribute in catalog")
	}
	nameAttr, ok := item["snapshot"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid snapshot attribute in catalog")
	}

	var version uint64
	if _, err := fmt.Sscanf(versionAttr.Value, "%d", &version); err != nil {
		return 0, "", fmt.Errorf("failed to parse version: %w", err)
	}

	return version, nameAttr.Value, nil
}

// Commit records snapshotName as the next version with a conditional
// write. Returns ErrConcurrentCommit if another writer won the race.
func (c *SnapshotCatalog) Commit(ctx context.Context, snapshotName string) (uint64, error) {
	currentVersion, _, err := c.Latest(ctx)
	if err != nil {
		return 0, err
	}
	newVersion := currentVersion + 1

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"lineage":  &types.AttributeValueMemberS{Value: c.lineage},
			"version":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", newVersion)},
			"snapshot": &types.AttributeValueMemberS{Value: snapshotName},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, ErrConcurrentCommit
		}
		return 0, fmt.Errorf("failed to commit snapshot version: %w", err)
	}

	return newVersion, nil
}

// Version returns the snapshot blob name committed at one version.
func (c *SnapshotCatalog) Version(ctx context.Context, version uint64) (string, error) {
	resp, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"lineage": &types.AttributeValueMemberS{Value: c.lineage},
			"version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", version)},
		},
	})
	if err != nil {
		return "", err
	}
	if resp.Item == nil {
		return "", fmt.Errorf("version %d not found", version)
	}
	nameAttr, ok := resp.Item["snapshot"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("invalid snapshot attribute in catalog")
	}
	return nameAttr.Value, nil
}

// Forget removes one committed version from the catalog. The snapshot blob
// itself is not touched.
func (c *SnapshotCatalog) Forget(ctx context.Context, version uint64) error {
	_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"lineage": &types.AttributeValueMemberS{Value: c.lineage},
			"version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", version)},
		},
	})
	return err
}
