package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/rectree/blobstore"
)

// CommitStore stores files in S3 and records, per pointer, which uploaded
// file is current in DynamoDB.
//
// Table schema:
//   - Partition key: base_uri (string) - base URI plus "#" plus the pointer
//   - Sort key: version (number) - monotonically increasing version
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name rectree-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CommitStore struct {
	*Store
	ddbClient DDBClient
	tableName string
	baseURI   string
}

var _ blobstore.Committer = (*CommitStore)(nil)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ErrConcurrentModification is returned when another writer committed the
// same version first.
var ErrConcurrentModification = errors.New("s3: concurrent modification detected")

const (
	attrBaseURI = "base_uri"
	attrVersion = "version"
	attrObject  = "object_name"
)

// NewCommitStore creates a new S3+DynamoDB commit store.
// baseURI (e.g. "s3://bucket/prefix") namespaces the pointers in the table.
func NewCommitStore(store *Store, ddbClient DDBClient, tableName, baseURI string) *CommitStore {
	return &CommitStore{
		Store:     store,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

func (s *CommitStore) partition(pointer string) string {
	return s.baseURI + "#" + pointer
}

// Commit implements blobstore.Committer.
func (s *CommitStore) Commit(ctx context.Context, pointer, name string) error {
	current, _, err := s.latest(ctx, pointer)
	if err != nil {
		return err
	}

	_, err = s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			attrBaseURI: &types.AttributeValueMemberS{Value: s.partition(pointer)},
			attrVersion: &types.AttributeValueMemberN{Value: strconv.FormatUint(current+1, 10)},
			attrObject:  &types.AttributeValueMemberS{Value: name},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("s3: commit %s: %w", pointer, err)
	}
	return nil
}

// Current implements blobstore.Committer.
func (s *CommitStore) Current(ctx context.Context, pointer string) (string, error) {
	version, name, err := s.latest(ctx, pointer)
	if err != nil {
		return "", err
	}
	if version == 0 {
		return "", blobstore.ErrNotFound
	}
	return name, nil
}

// Version returns the file name a specific committed version refers to.
func (s *CommitStore) Version(ctx context.Context, pointer string, version uint64) (string, error) {
	out, err := s.ddbClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			attrBaseURI: &types.AttributeValueMemberS{Value: s.partition(pointer)},
			attrVersion: &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3: get version %d of %s: %w", version, pointer, err)
	}
	if len(out.Item) == 0 {
		return "", blobstore.ErrNotFound
	}

	_, name, err := parseItem(out.Item)
	return name, err
}

// Prune deletes every committed version of pointer except the newest keep,
// together with the files they refer to. It returns the number of versions removed.
func (s *CommitStore) Prune(ctx context.Context, pointer string, keep int) (int, error) {
	var (
		seen    int
		removed int
		start   map[string]types.AttributeValue
	)

	for {
		resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("base_uri = :uri"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uri": &types.AttributeValueMemberS{Value: s.partition(pointer)},
			},
			ScanIndexForward:  aws.Bool(false),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return removed, fmt.Errorf("s3: query %s: %w", pointer, err)
		}

		for _, item := range resp.Items {
			seen++
			if seen <= keep {
				continue
			}

			version, name, err := parseItem(item)
			if err != nil {
				return removed, err
			}
			if err := s.Delete(ctx, name); err != nil {
				return removed, err
			}
			_, err = s.ddbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					attrBaseURI: &types.AttributeValueMemberS{Value: s.partition(pointer)},
					attrVersion: &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
				},
			})
			if err != nil {
				return removed, fmt.Errorf("s3: delete version %d of %s: %w", version, pointer, err)
			}
			removed++
		}

		if len(resp.LastEvaluatedKey) == 0 {
			return removed, nil
		}
		start = resp.LastEvaluatedKey
	}
}

// latest queries DynamoDB for the newest committed version of pointer.
func (s *CommitStore) latest(ctx context.Context, pointer string) (uint64, string, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.partition(pointer)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3: query %s: %w", pointer, err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}
	return parseItem(resp.Items[0])
}

func parseItem(item map[string]types.AttributeValue) (uint64, string, error) {
	versionAttr, ok := item[attrVersion].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: invalid version attribute in DynamoDB")
	}
	nameAttr, ok := item[attrObject].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: invalid object_name attribute in DynamoDB")
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("s3: parse version: %w", err)
	}
	return version, nameAttr.Value, nil
}
