package dynamo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/zlnvch/collabdocs/store"
)

func newDynamoDBClient(ctx context.Context, devMode bool, dynamodbEndpoint string) (*dynamodb.Client, error) {
	if devMode {
		// Load config with dummy credentials and region for local/dev
		cfg, err := config.LoadDefaultConfig(ctx,
			config.WithRegion("us-east-1"),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("dummy", "dummy", ""),
			),
		)
		if err != nil {
			return nil, err
		}

		return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(dynamodbEndpoint)
		}), nil
	}

	// Production: default config (task role and AWS endpoints)
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg), nil
}

func keyOf(pk string, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// getItem retrieves an item of type T from DynamoDB by PK and SK
func getItem[T any](dynamoStore *DynamoStore, ctx context.Context, pk string, sk string, consistentRead bool) (T, error) {
	var zero T

	resp, err := dynamoStore.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(dynamoStore.tableName),
		Key:            keyOf(pk, sk),
		ConsistentRead: aws.Bool(consistentRead),
	})
	if err != nil {
		return zero, fmt.Errorf("GetItem failed: %w", err)
	}
	if resp.Item == nil {
		return zero, store.ErrItemNotFound
	}

	var item T
	if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
		return zero, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return item, nil
}

// putItem writes item. With mustNotExist the write fails with
// store.ErrConditionFailed when an item with the same PK already exists;
// with mustExist it fails with store.ErrItemNotFound when none does.
func putItem[T any](dynamoStore *DynamoStore, ctx context.Context, item T, mustNotExist bool, mustExist bool) error {
	avMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(dynamoStore.tableName),
		Item:      avMap,
	}
	switch {
	case mustNotExist:
		input.ConditionExpression = aws.String("attribute_not_exists(PK)")
	case mustExist:
		input.ConditionExpression = aws.String("attribute_exists(PK)")
	}

	_, err = dynamoStore.client.PutItem(ctx, input)
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			if mustNotExist {
				return store.ErrConditionFailed
			}
			return store.ErrItemNotFound
		}
		return fmt.Errorf("failed to put item: %w", err)
	}

	return nil
}

// queryAllByGSI returns every item of type T in indexName whose partition key
// pkField equals pkValue and, when skValue is set, whose sort key skField
// equals skValue. filterField/filterValue add an optional equality filter.
func queryAllByGSI[T any](
	dynamoStore *DynamoStore,
	ctx context.Context,
	indexName, pkField, pkValue, skField, skValue string,
	filterField, filterValue string,
) ([]T, error) {
	input := buildGSIQuery(dynamoStore, indexName, pkField, pkValue, skField, skValue, filterField, filterValue)

	var results []T
	paginator := dynamodb.NewQueryPaginator(dynamoStore.client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query GSI failed: %w", err)
		}

		var pageItems []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal page items: %w", err)
		}

		results = append(results, pageItems...)
	}

	return results, nil
}

// countByGSI counts items matching a GSI query without fetching them
func countByGSI(
	dynamoStore *DynamoStore,
	ctx context.Context,
	indexName, pkField, pkValue, skField, skValue string,
	filterField, filterValue string,
) (int, error) {
	input := buildGSIQuery(dynamoStore, indexName, pkField, pkValue, skField, skValue, filterField, filterValue)
	input.Select = types.SelectCount

	var totalCount int32
	paginator := dynamodb.NewQueryPaginator(dynamoStore.client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("count GSI failed: %w", err)
		}
		totalCount += page.Count
	}

	return int(totalCount), nil
}

func buildGSIQuery(
	dynamoStore *DynamoStore,
	indexName, pkField, pkValue, skField, skValue string,
	filterField, filterValue string,
) *dynamodb.QueryInput {
	// Attribute names go through placeholders since Name and Role are reserved words
	keyCond := "#pk = :pk"
	exprAttrNames := map[string]string{
		"#pk": pkField,
	}
	exprAttrValues := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pkValue},
	}

	if skField != "" && skValue != "" {
		keyCond += " AND #sk = :sk"
		exprAttrNames["#sk"] = skField
		exprAttrValues[":sk"] = &types.AttributeValueMemberS{Value: skValue}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(dynamoStore.tableName),
		IndexName:                 aws.String(indexName),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  exprAttrNames,
		ExpressionAttributeValues: exprAttrValues,
	}

	if filterField != "" {
		input.FilterExpression = aws.String("#f = :f")
		exprAttrNames["#f"] = filterField
		exprAttrValues[":f"] = &types.AttributeValueMemberS{Value: filterValue}
	}

	return input
}

// batchGetItems fetches items by PK/SK in chunks of 100, retrying unprocessed
// keys with backoff. Missing items are skipped.
func batchGetItems[T any](dynamoStore *DynamoStore, ctx context.Context, keys []map[string]types.AttributeValue) ([]T, error) {
	var results []T

	for i := 0; i < len(keys); i += 100 {
		end := min(i+100, len(keys))
		pending := keys[i:end]
		backoff := 50 * time.Millisecond

		for len(pending) > 0 {
			resp, err := dynamoStore.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{
					dynamoStore.tableName: {Keys: pending},
				},
			})
			if err != nil {
				return nil, fmt.Errorf("BatchGetItem failed: %w", err)
			}

			var items []T
			if err := attributevalue.UnmarshalListOfMaps(resp.Responses[dynamoStore.tableName], &items); err != nil {
				return nil, fmt.Errorf("failed to unmarshal batch items: %w", err)
			}
			results = append(results, items...)

			unprocessed, ok := resp.UnprocessedKeys[dynamoStore.tableName]
			if !ok || len(unprocessed.Keys) == 0 {
				break
			}
			pending = unprocessed.Keys

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			if backoff < time.Second {
				backoff *= 2
			}
		}
	}

	return results, nil
}

// transactWrite runs items as one transaction. A cancelled transaction whose
// reasons include a failed condition is reported as store.ErrConditionFailed.
func transactWrite(dynamoStore *DynamoStore, ctx context.Context, items []types.TransactWriteItem) error {
	_, err := dynamoStore.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			for _, reason := range tce.CancellationReasons {
				if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
					return store.ErrConditionFailed
				}
			}
		}
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

func marshalPut[T any](tableName string, item T, condition string, values map[string]types.AttributeValue) (types.TransactWriteItem, error) {
	avMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal error: %w", err)
	}
	put := &types.Put{
		TableName: aws.String(tableName),
		Item:      avMap,
	}
	if condition != "" {
		put.ConditionExpression = aws.String(condition)
		put.ExpressionAttributeValues = values
	}
	return types.TransactWriteItem{Put: put}, nil
}

// deleteItemWithCondition deletes an item by PK and SK, only if a specified field equals a given value.
// Returns an error if the item does not exist, the condition is not met, or other DB issues occur.
func deleteItemWithCondition(dynamoStore *DynamoStore, ctx context.Context, pk string, sk string, conditionField string, expectedValue string) error {
	key := keyOf(pk, sk)

	input := &dynamodb.DeleteItemInput{
		TableName:           aws.String(dynamoStore.tableName),
		Key:                 key,
		ConditionExpression: aws.String("attribute_exists(PK)"),
	}

	if conditionField != "" {
		input.ConditionExpression = aws.String("attribute_exists(PK) AND #f = :val")
		input.ExpressionAttributeNames = map[string]string{"#f": conditionField}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":val": &types.AttributeValueMemberS{Value: expectedValue},
		}
	}

	_, err := dynamoStore.client.DeleteItem(ctx, input)
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			// Either the item is gone or the condition did not hold
			getResp, getErr := dynamoStore.client.GetItem(ctx, &dynamodb.GetItemInput{
				TableName: aws.String(dynamoStore.tableName),
				Key:       key,
			})
			if getErr != nil {
				return fmt.Errorf("delete failed, and GetItem check also failed: %w", getErr)
			}
			if getResp.Item == nil {
				return store.ErrItemNotFound
			}
			return store.ErrConditionFailed
		}
		return fmt.Errorf("delete failed: %w", err)
	}

	return nil
}

// updateExpression builds a SET expression for fields, in key order so the
// expression is stable. Keys are never updated.
func updateExpression(fields map[string]any) (string, map[string]string, map[string]types.AttributeValue, error) {
	names := make([]string, 0, len(fields))
	for field := range fields {
		if field == "PK" || field == "SK" {
			continue
		}
		names = append(names, field)
	}
	if len(names) == 0 {
		return "", nil, nil, errors.New("no fields to update")
	}
	slices.Sort(names)

	parts := make([]string, len(names))
	exprAttrNames := make(map[string]string, len(names))
	exprAttrValues := make(map[string]types.AttributeValue, len(names))
	for i, field := range names {
		av, err := attributevalue.Marshal(fields[field])
		if err != nil {
			return "", nil, nil, fmt.Errorf("marshal %s: %w", field, err)
		}
		parts[i] = fmt.Sprintf("#%s = :%s", field, field)
		exprAttrNames["#"+field] = field
		exprAttrValues[":"+field] = av
	}

	return "SET " + strings.Join(parts, ", "), exprAttrNames, exprAttrValues, nil
}

// updateItem updates the listed fields of an existing item and returns the
// item as stored afterwards. Returns store.ErrItemNotFound if it does not exist.
func updateItem[T any](
	dynamoStore *DynamoStore,
	ctx context.Context,
	pk string,
	sk string,
	fields map[string]any,
) (T, error) {
	var zero T

	updateExpr, exprAttrNames, exprAttrValues, err := updateExpression(fields)
	if err != nil {
		return zero, err
	}

	out, err := dynamoStore.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(dynamoStore.tableName),
		Key:                       keyOf(pk, sk),
		UpdateExpression:          aws.String(updateExpr),
		ExpressionAttributeNames:  exprAttrNames,
		ExpressionAttributeValues: exprAttrValues,
		ConditionExpression:       aws.String("attribute_exists(PK) AND attribute_exists(SK)"),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			return zero, store.ErrItemNotFound
		}
		return zero, fmt.Errorf("update failed: %w", err)
	}

	var updated T
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return zero, fmt.Errorf("failed to unmarshal updated item: %w", err)
	}

	return updated, nil
}
