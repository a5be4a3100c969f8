package dynamo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gofrs/uuid/v5"

	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/store"
)

// DynamoStore keeps users, email locks and documents in one table.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoStore(ctx context.Context, devMode bool, dynamodbEndpoint string, tableName string) (*DynamoStore, error) {
	client, err := newDynamoDBClient(ctx, devMode, dynamodbEndpoint)
	if err != nil {
		return nil, err
	}

	tables, err := getTables(ctx, client)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(tables, tableName) {
		return nil, fmt.Errorf("given table name '%s' not found in dynamodb", tableName)
	}

	return &DynamoStore{client: client, tableName: tableName}, nil
}

func getTables(ctx context.Context, client *dynamodb.Client) ([]string, error) {
	var tableNames []string
	paginator := dynamodb.NewListTablesPaginator(client, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tables failed: %w", err)
		}
		tableNames = append(tableNames, page.TableNames...)
	}
	return tableNames, nil
}

func (dynamoStore *DynamoStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	userId, err := uuid.NewV4()
	if err != nil {
		return models.User{}, err
	}
	user.Id = userId.String()

	now := time.Now().Unix()
	user.Created = now
	user.Updated = now

	du := userToDynamo(user)
	lock := dynamoEmailLock{PK: emailKey(user.Email), SK: emailSK, UserId: user.Id}

	putUser, err := marshalPut(dynamoStore.tableName, du, "attribute_not_exists(PK)", nil)
	if err != nil {
		return models.User{}, err
	}
	putLock, err := marshalPut(dynamoStore.tableName, lock, "attribute_not_exists(PK)", nil)
	if err != nil {
		return models.User{}, err
	}

	err = transactWrite(dynamoStore, ctx, []types.TransactWriteItem{putUser, putLock})
	if errors.Is(err, store.ErrConditionFailed) {
		return models.User{}, store.ErrEmailTaken
	}
	if err != nil {
		return models.User{}, err
	}

	return userFromDynamo(du), nil
}

func (dynamoStore *DynamoStore) GetUser(ctx context.Context, userId string) (models.User, error) {
	du, err := getItem[dynamoUser](dynamoStore, ctx, userKey(userId), userSK, false)
	if err != nil {
		return models.User{}, err
	}
	return userFromDynamo(du), nil
}

func (dynamoStore *DynamoStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	lock, err := getItem[dynamoEmailLock](dynamoStore, ctx, emailKey(email), emailSK, true)
	if err != nil {
		return models.User{}, err
	}
	return dynamoStore.GetUser(ctx, lock.UserId)
}

func (dynamoStore *DynamoStore) GetUsers(ctx context.Context, userIds []string) ([]models.User, error) {
	if len(userIds) == 0 {
		return []models.User{}, nil
	}

	seen := make(map[string]bool, len(userIds))
	keys := make([]map[string]types.AttributeValue, 0, len(userIds))
	for _, id := range userIds {
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, keyOf(userKey(id), userSK))
	}

	items, err := batchGetItems[dynamoUser](dynamoStore, ctx, keys)
	if err != nil {
		return nil, err
	}

	users := make([]models.User, len(items))
	for i, du := range items {
		users[i] = userFromDynamo(du)
	}
	return users, nil
}

func (dynamoStore *DynamoStore) ListCompanyUsers(ctx context.Context, companyId string) ([]models.User, error) {
	items, err := queryAllByGSI[dynamoUser](dynamoStore, ctx, companyIndex, "CompanyId", companyId, "SK", userSK, "", "")
	if err != nil {
		return nil, err
	}

	users := make([]models.User, len(items))
	for i, du := range items {
		users[i] = userFromDynamo(du)
	}
	return users, nil
}

func (dynamoStore *DynamoStore) CountCompanyUsersByRole(ctx context.Context, companyId string, role models.Role) (int, error) {
	return countByGSI(dynamoStore, ctx, companyIndex, "CompanyId", companyId, "SK", userSK, "Role", string(role))
}

// UpdateUserProfile updates the profile fields of an existing user. When
// the email changes the old lock is released and the new one claimed in the
// same transaction.
func (dynamoStore *DynamoStore) UpdateUserProfile(ctx context.Context, user models.User) (models.User, error) {
	current, err := dynamoStore.GetUser(ctx, user.Id)
	if err != nil {
		return models.User{}, err
	}

	email := strings.ToLower(user.Email)
	fields := map[string]any{
		"Name":         user.Name,
		"Email":        email,
		"CompanyId":    user.CompanyId,
		"ProfileImage": user.ProfileImage,
		"Updated":      user.Updated,
	}

	if strings.EqualFold(current.Email, email) {
		du, err := updateItem[dynamoUser](dynamoStore, ctx, userKey(user.Id), userSK, fields)
		if err != nil {
			return models.User{}, err
		}
		return userFromDynamo(du), nil
	}

	updateExpr, exprAttrNames, exprAttrValues, err := updateExpression(fields)
	if err != nil {
		return models.User{}, err
	}
	updateUser := types.TransactWriteItem{
		Update: &types.Update{
			TableName:                 aws.String(dynamoStore.tableName),
			Key:                       keyOf(userKey(user.Id), userSK),
			UpdateExpression:          aws.String(updateExpr),
			ExpressionAttributeNames:  exprAttrNames,
			ExpressionAttributeValues: exprAttrValues,
			ConditionExpression:       aws.String("attribute_exists(PK)"),
		},
	}

	lock := dynamoEmailLock{PK: emailKey(email), SK: emailSK, UserId: user.Id}
	putLock, err := marshalPut(dynamoStore.tableName, lock,
		"attribute_not_exists(PK) OR UserId = :uid",
		map[string]types.AttributeValue{":uid": &types.AttributeValueMemberS{Value: user.Id}},
	)
	if err != nil {
		return models.User{}, err
	}

	releaseLock := types.TransactWriteItem{
		Delete: &types.Delete{
			TableName: aws.String(dynamoStore.tableName),
			Key:       keyOf(emailKey(current.Email), emailSK),
		},
	}

	err = transactWrite(dynamoStore, ctx, []types.TransactWriteItem{updateUser, putLock, releaseLock})
	if errors.Is(err, store.ErrConditionFailed) {
		return models.User{}, store.ErrEmailTaken
	}
	if err != nil {
		return models.User{}, err
	}

	current.Name = user.Name
	current.Email = email
	current.CompanyId = user.CompanyId
	current.ProfileImage = user.ProfileImage
	current.Updated = user.Updated
	return current, nil
}

func (dynamoStore *DynamoStore) UpdateUserAccess(ctx context.Context, userId string, role models.Role, capabilities models.Capabilities, updated int64) (models.User, error) {
	du, err := updateItem[dynamoUser](dynamoStore, ctx, userKey(userId), userSK, map[string]any{
		"Role":         string(role),
		"Capabilities": dynamoCapabilities(capabilities),
		"Updated":      updated,
	})
	if err != nil {
		return models.User{}, err
	}
	return userFromDynamo(du), nil
}

func (dynamoStore *DynamoStore) UpdateUserPassword(ctx context.Context, userId string, passwordHash string, updated int64) error {
	_, err := updateItem[dynamoUser](dynamoStore, ctx, userKey(userId), userSK, map[string]any{
		"PasswordHash": passwordHash,
		"Updated":      updated,
	})
	return err
}

func (dynamoStore *DynamoStore) CreateDocument(ctx context.Context, doc models.Document) (models.Document, error) {
	documentId, err := uuid.NewV4()
	if err != nil {
		return models.Document{}, err
	}
	doc.Id = documentId.String()

	dd := documentToDynamo(doc)
	if err := putItem(dynamoStore, ctx, dd, true, false); err != nil {
		return models.Document{}, err
	}

	return documentFromDynamo(dd), nil
}

func (dynamoStore *DynamoStore) GetDocument(ctx context.Context, documentId string) (models.Document, error) {
	dd, err := getItem[dynamoDocument](dynamoStore, ctx, documentKey(documentId), documentSK, true)
	if err != nil {
		return models.Document{}, err
	}
	return documentFromDynamo(dd), nil
}

// FindDocuments needs a company scope; the membership filters are applied
// after the GSI query.
func (dynamoStore *DynamoStore) FindDocuments(ctx context.Context, filter store.DocumentFilter) ([]models.Document, error) {
	if filter.CompanyId == "" {
		return nil, errors.New("FindDocuments requires a company id")
	}

	items, err := queryAllByGSI[dynamoDocument](dynamoStore, ctx, companyIndex, "CompanyId", filter.CompanyId, "SK", documentSK, "", "")
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(items))
	for _, dd := range items {
		doc := documentFromDynamo(dd)
		if filter.Matches(doc) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (dynamoStore *DynamoStore) UpdateDocumentDetails(ctx context.Context, documentId string, title *string, content *string, updated int64) (models.Document, error) {
	fields := map[string]any{"Updated": updated}
	if title != nil {
		fields["Title"] = *title
	}
	if content != nil {
		fields["Content"] = *content
	}

	dd, err := updateItem[dynamoDocument](dynamoStore, ctx, documentKey(documentId), documentSK, fields)
	if err != nil {
		return models.Document{}, err
	}
	return documentFromDynamo(dd), nil
}

func (dynamoStore *DynamoStore) UpdateDocumentContent(ctx context.Context, documentId string, content string, updated int64) (models.Document, error) {
	dd, err := updateItem[dynamoDocument](dynamoStore, ctx, documentKey(documentId), documentSK, map[string]any{
		"Content": content,
		"Updated": updated,
	})
	if err != nil {
		return models.Document{}, err
	}
	return documentFromDynamo(dd), nil
}

func (dynamoStore *DynamoStore) UpdateDocumentPermissions(ctx context.Context, documentId string, read []string, edit []string, updated int64) (models.Document, error) {
	dd, err := updateItem[dynamoDocument](dynamoStore, ctx, documentKey(documentId), documentSK, map[string]any{
		"ReadPermissions": nonNil(read),
		"EditPermissions": nonNil(edit),
		"Updated":         updated,
	})
	if err != nil {
		return models.Document{}, err
	}
	return documentFromDynamo(dd), nil
}

func (dynamoStore *DynamoStore) DeleteDocument(ctx context.Context, documentId string, ownerId string) error {
	return deleteItemWithCondition(dynamoStore, ctx, documentKey(documentId), documentSK, "OwnerId", ownerId)
}
