package repository

import (
	"context"
	"strings"
	"time"

	"safevoice/internal/common/db"
	"safevoice/internal/grievance/model"
)

// AttachmentRepository stores references to evidence objects.
type AttachmentRepository interface {
	CreateBatch(ctx context.Context, tx db.Transaction, attachments []model.Attachment) error
	ListByIssue(ctx context.Context, tx db.Transaction, issueID int64) ([]model.Attachment, error)
	DeleteByIssue(ctx context.Context, tx db.Transaction, issueID int64) error
}

type MySQLAttachmentRepository struct {
	db db.Database
}

func NewAttachmentRepository(database db.Database) *MySQLAttachmentRepository {
	return &MySQLAttachmentRepository{db: database}
}

// CreateBatch writes every row in a single multi-value INSERT.
func (r *MySQLAttachmentRepository) CreateBatch(ctx context.Context, tx db.Transaction, attachments []model.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}
	now := time.Now().UTC()
	placeholders := make([]string, 0, len(attachments))
	args := make([]interface{}, 0, len(attachments)*8)
	for _, a := range attachments {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, a.IssueID, a.ObjectKey, a.URL, a.FileName, a.ContentType, a.SizeBytes, a.Checksum, now)
	}
	query := "INSERT INTO attachments (issue_id, object_key, url, file_name, content_type, size_bytes, checksum, created_at) VALUES " +
		strings.Join(placeholders, ", ")
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query, args...)
	return err
}

func (r *MySQLAttachmentRepository) ListByIssue(ctx context.Context, tx db.Transaction, issueID int64) ([]model.Attachment, error) {
	query := `
		SELECT id, issue_id, object_key, url, file_name, content_type, size_bytes, checksum, created_at
		FROM attachments
		WHERE issue_id = ?
		ORDER BY id ASC`

	rows, err := db.GetQuerier(r.db, tx).Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Attachment
	for rows.Next() {
		var a model.Attachment
		if err := rows.Scan(&a.ID, &a.IssueID, &a.ObjectKey, &a.URL, &a.FileName, &a.ContentType, &a.SizeBytes, &a.Checksum, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *MySQLAttachmentRepository) DeleteByIssue(ctx context.Context, tx db.Transaction, issueID int64) error {
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, "DELETE FROM attachments WHERE issue_id = ?", issueID)
	return err
}
