package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/store"
)

const documentColumns = `id, title, content, owner_id, company_id, collaborators, read_permissions, edit_permissions, created, updated`

func scanDocument(row pgx.Row) (models.Document, error) {
	var doc models.Document
	err := row.Scan(
		&doc.Id,
		&doc.Title,
		&doc.Content,
		&doc.OwnerId,
		&doc.CompanyId,
		&doc.Collaborators,
		&doc.ReadPermissions,
		&doc.EditPermissions,
		&doc.Created,
		&doc.Updated,
	)
	doc.Collaborators = nonNil(doc.Collaborators)
	doc.ReadPermissions = nonNil(doc.ReadPermissions)
	doc.EditPermissions = nonNil(doc.EditPermissions)
	return doc, err
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc models.Document) (models.Document, error) {
	documentId, err := uuid.NewV4()
	if err != nil {
		return models.Document{}, err
	}
	doc.Id = documentId.String()
	doc.Collaborators = nonNil(doc.Collaborators)
	doc.ReadPermissions = nonNil(doc.ReadPermissions)
	doc.EditPermissions = nonNil(doc.EditPermissions)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		doc.Id,
		doc.Title,
		doc.Content,
		doc.OwnerId,
		doc.CompanyId,
		doc.Collaborators,
		doc.ReadPermissions,
		doc.EditPermissions,
		doc.Created,
		doc.Updated,
	)
	if err != nil {
		return models.Document{}, fmt.Errorf("create document: %w", err)
	}

	return doc, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentId string) (models.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, documentId))
	if err != nil {
		if isPgNoRowsError(err) {
			return models.Document{}, store.ErrItemNotFound
		}
		return models.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// FindDocuments pushes the company and membership filters into SQL and
// re-checks each row with filter.Matches.
func (s *PostgresStore) FindDocuments(ctx context.Context, filter store.DocumentFilter) ([]models.Document, error) {
	if filter.CompanyId == "" {
		return nil, errors.New("FindDocuments requires a company id")
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE company_id = $1`
	args := []any{filter.CompanyId}

	if filter.MemberId != "" {
		args = append(args, filter.MemberId)
		n := len(args)
		query += fmt.Sprintf(` AND (owner_id = $%d OR $%d = ANY(collaborators) OR $%d = ANY(read_permissions) OR $%d = ANY(edit_permissions))`, n, n, n, n)
	}
	if filter.OwnerIds != nil {
		args = append(args, filter.OwnerIds)
		n := len(args)
		query += fmt.Sprintf(` AND (owner_id = ANY($%d) OR collaborators && $%d)`, n, n)
	}
	query += ` ORDER BY updated DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if filter.Matches(doc) {
			docs = append(docs, doc)
		}
	}
	return docs, rows.Err()
}

func (s *PostgresStore) UpdateDocumentDetails(ctx context.Context, documentId string, title *string, content *string, updated int64) (models.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx, `
		UPDATE documents
		SET title = COALESCE($1, title), content = COALESCE($2, content), updated = $3
		WHERE id = $4
		RETURNING `+documentColumns,
		title, content, updated, documentId,
	))
	if err != nil {
		if isPgNoRowsError(err) {
			return models.Document{}, store.ErrItemNotFound
		}
		return models.Document{}, fmt.Errorf("update document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) UpdateDocumentContent(ctx context.Context, documentId string, content string, updated int64) (models.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx, `
		UPDATE documents SET content = $1, updated = $2
		WHERE id = $3
		RETURNING `+documentColumns,
		content, updated, documentId,
	))
	if err != nil {
		if isPgNoRowsError(err) {
			return models.Document{}, store.ErrItemNotFound
		}
		return models.Document{}, fmt.Errorf("update document content: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) UpdateDocumentPermissions(ctx context.Context, documentId string, read []string, edit []string, updated int64) (models.Document, error) {
	doc, err := scanDocument(s.pool.QueryRow(ctx, `
		UPDATE documents SET read_permissions = $1, edit_permissions = $2, updated = $3
		WHERE id = $4
		RETURNING `+documentColumns,
		nonNil(read), nonNil(edit), updated, documentId,
	))
	if err != nil {
		if isPgNoRowsError(err) {
			return models.Document{}, store.ErrItemNotFound
		}
		return models.Document{}, fmt.Errorf("update document permissions: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, documentId string, ownerId string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND owner_id = $2`, documentId, ownerId)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, documentId).Scan(&exists); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if !exists {
		return store.ErrItemNotFound
	}
	return store.ErrConditionFailed
}
