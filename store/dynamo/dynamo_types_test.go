package dynamo

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zlnvch/collabdocs/models"
)

func TestUserToDynamo_KeysAndEmail(t *testing.T) {
	du := userToDynamo(models.User{
		Id:           "u1",
		Email:        "Ada@Example.com",
		Role:         models.RoleAdmin,
		Capabilities: models.Capabilities{CanReadDocuments: true},
	})

	assert.Equal(t, "USER#u1", du.PK)
	assert.Equal(t, userSK, du.SK)
	assert.Equal(t, "ada@example.com", du.Email)
	assert.Equal(t, "EMAIL#ada@example.com", emailKey("Ada@Example.com"))

	back := userFromDynamo(du)
	assert.Equal(t, models.RoleAdmin, back.Role)
	assert.True(t, back.Capabilities.CanReadDocuments)
	assert.False(t, back.Capabilities.CanEditDocuments)
}

func TestDocumentToDynamo_EmptyListsStayLists(t *testing.T) {
	item, err := attributevalue.MarshalMap(documentToDynamo(models.Document{Id: "d1", OwnerId: "u1"}))
	require.NoError(t, err)

	assert.Equal(t, &types.AttributeValueMemberS{Value: "DOC#d1"}, item["PK"])
	for _, field := range []string{"Collaborators", "ReadPermissions", "EditPermissions"} {
		list, ok := item[field].(*types.AttributeValueMemberL)
		require.True(t, ok, field)
		assert.Empty(t, list.Value)
	}

	var dd dynamoDocument
	require.NoError(t, attributevalue.UnmarshalMap(item, &dd))
	doc := documentFromDynamo(dd)
	assert.Equal(t, "d1", doc.Id)
	assert.NotNil(t, doc.ReadPermissions)
}

func TestUpdateExpression_OnlyListedFields(t *testing.T) {
	expr, names, values, err := updateExpression(map[string]any{
		"ReadPermissions": []string{"owner"},
		"EditPermissions": []string{"owner"},
		"Updated":         int64(5),
		"PK":              "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, "SET #EditPermissions = :EditPermissions, #ReadPermissions = :ReadPermissions, #Updated = :Updated", expr)
	assert.NotContains(t, names, "#Content")
	assert.NotContains(t, names, "#PK")
	assert.Len(t, values, 3)

	_, _, _, err = updateExpression(map[string]any{"SK": "x"})
	assert.Error(t, err)
}
