package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/asuwest1/ContractReviewOA/internal/database"
	"github.com/asuwest1/ContractReviewOA/internal/errors"
)

// DocumentRepository manages workflow documents. The single-golden-document
// invariant is enforced here: inserting a golden document demotes the previous
// one inside the same transaction, and a partial unique index backstops it.
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// AddDocument inserts a document. When doc.IsGolden is set, any previously
// golden document for the workflow is demoted in the same transaction so no
// reader ever observes two golden documents.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *Document) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if doc.IsGolden {
			_, err := tx.Exec(ctx, `
				UPDATE workflow_documents
				SET is_golden = FALSE
				WHERE workflow_id = $1 AND is_golden
			`, doc.WorkflowID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to demote golden document")
			}
		}
		return insertDocument(ctx, tx, doc)
	})
}

// ListDocuments returns a workflow's documents ordered by version.
func (r *DocumentRepository) ListDocuments(ctx context.Context, workflowID int64) ([]*Document, error) {
	rows, err := r.db.Query(ctx, `
		SELECT doc_id, workflow_id, file_path, is_golden, version, note, uploaded_by, uploaded_at
		FROM workflow_documents
		WHERE workflow_id = $1
		ORDER BY version, doc_id
	`, workflowID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list documents")
	}
	return scanDocuments(rows)
}

// MaxVersion returns the highest document version for a workflow, 0 when the
// workflow has no documents yet.
func (r *DocumentRepository) MaxVersion(ctx context.Context, workflowID int64) (int, error) {
	var version int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM workflow_documents
		WHERE workflow_id = $1
	`, workflowID).Scan(&version)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to get max document version")
	}
	return version, nil
}

// insertDocument runs inside an open transaction.
func insertDocument(ctx context.Context, tx pgx.Tx, doc *Document) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO workflow_documents
		    (workflow_id, file_path, is_golden, version, note, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING doc_id, uploaded_at
	`,
		doc.WorkflowID, doc.FilePath, doc.IsGolden, doc.Version, doc.Note, doc.UploadedBy,
	).Scan(&doc.ID, &doc.UploadedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert document")
	}
	return nil
}

func scanDocuments(rows pgx.Rows) ([]*Document, error) {
	defer rows.Close()
	var docs []*Document
	for rows.Next() {
		d := &Document{}
		err := rows.Scan(
			&d.ID,
			&d.WorkflowID,
			&d.FilePath,
			&d.IsGolden,
			&d.Version,
			&d.Note,
			&d.UploadedBy,
			&d.UploadedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan document")
		}
		docs = append(docs, d)
	}
	return docs, nil
}
