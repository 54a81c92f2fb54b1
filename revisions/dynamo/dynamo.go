// Package dynamo keeps the head revision of a segment store in DynamoDB.
//
// Every accepted head is a new item with a monotonically increasing version;
// a conditional write on the version gives the compare-and-set that plain
// object storage lacks.
//
// Table schema:
//   - Partition key: store (string) - identifies the store
//   - Sort key: version (number) - monotonically increasing version
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name segstore-revisions \
//	  --attribute-definitions AttributeName=store,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=store,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/revisions"
)

// Client is the subset of the DynamoDB API used by Revisions.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Revisions implements revisions.Revisions on a DynamoDB table.
type Revisions struct {
	client    Client
	tableName string
	store     string
}

var _ revisions.Revisions = (*Revisions)(nil)

// New creates DynamoDB backed revisions. store is the partition key value
// naming the segment store, e.g. its blob store URI.
func New(client Client, tableName, store string) *Revisions {
	return &Revisions{
		client:    client,
		tableName: tableName,
		store:     store,
	}
}

// Head implements revisions.Revisions.
func (r *Revisions) Head(ctx context.Context) (model.RecordID, bool, error) {
	version, head, err := r.latest(ctx)
	if err != nil {
		return model.RecordID{}, false, err
	}
	return head, version > 0, nil
}

// SetHead implements revisions.Revisions. A concurrent writer that commits
// the same version first makes SetHead report false.
func (r *Revisions) SetHead(ctx context.Context, expected, head model.RecordID) (bool, error) {
	version, current, err := r.latest(ctx)
	if err != nil {
		return false, err
	}
	if current != expected {
		return false, nil
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			"store":   &types.AttributeValueMemberS{Value: r.store},
			"version": &types.AttributeValueMemberN{Value: strconv.FormatUint(version+1, 10)},
			"head":    &types.AttributeValueMemberS{Value: head.String()},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return false, fmt.Errorf("failed to commit head to DynamoDB: %w", err)
	}
	return true, nil
}

// Close implements revisions.Revisions. The client is owned by the caller.
func (r *Revisions) Close() error { return nil }

// latest queries the newest committed version. Version 0 means no head.
func (r *Revisions) latest(ctx context.Context) (uint64, model.RecordID, error) {
	resp, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("#s = :store"),
		ExpressionAttributeNames: map[string]string{
			"#s": "store",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":store": &types.AttributeValueMemberS{Value: r.store},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, model.RecordID{}, fmt.Errorf("failed to query DynamoDB: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, model.RecordID{}, nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, model.RecordID{}, errors.New("invalid version attribute in DynamoDB")
	}
	headAttr, ok := item["head"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, model.RecordID{}, errors.New("invalid head attribute in DynamoDB")
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, model.RecordID{}, fmt.Errorf("failed to parse version: %w", err)
	}
	head, err := model.ParseRecordID(headAttr.Value)
	if err != nil {
		return 0, model.RecordID{}, err
	}
	return version, head, nil
}
