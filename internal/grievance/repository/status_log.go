package repository

import (
	"context"
	"errors"
	"time"

	"safevoice/internal/common/db"
	"safevoice/internal/grievance/model"
)

// StatusLogRepository is the append-only audit trail. Entries are never updated;
// DeleteByIssue exists only for the issue cascade.
type StatusLogRepository interface {
	Record(ctx context.Context, tx db.Transaction, entry *model.StatusLogEntry) error
	// History returns entries oldest first.
	History(ctx context.Context, tx db.Transaction, issueID int64) ([]model.StatusLogEntry, error)
	DeleteByIssue(ctx context.Context, tx db.Transaction, issueID int64) error
}

type MySQLStatusLogRepository struct {
	db db.Database
}

func NewStatusLogRepository(database db.Database) *MySQLStatusLogRepository {
	return &MySQLStatusLogRepository{db: database}
}

func (r *MySQLStatusLogRepository) Record(ctx context.Context, tx db.Transaction, entry *model.StatusLogEntry) error {
	if entry == nil {
		return errors.New("status log entry is nil")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query := "INSERT INTO status_log (issue_id, status, actor_role, remarks, created_at) VALUES (?, ?, ?, ?, ?)"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		entry.IssueID, string(entry.Status), string(entry.ActorRole), entry.Remark, entry.CreatedAt)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	return nil
}

func (r *MySQLStatusLogRepository) History(ctx context.Context, tx db.Transaction, issueID int64) ([]model.StatusLogEntry, error) {
	query := `
		SELECT id, issue_id, status, actor_role, remarks, created_at
		FROM status_log
		WHERE issue_id = ?
		ORDER BY created_at ASC, id ASC`

	rows, err := db.GetQuerier(r.db, tx).Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StatusLogEntry
	for rows.Next() {
		var e model.StatusLogEntry
		if err := rows.Scan(&e.ID, &e.IssueID, &e.Status, &e.ActorRole, &e.Remark, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *MySQLStatusLogRepository) DeleteByIssue(ctx context.Context, tx db.Transaction, issueID int64) error {
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, "DELETE FROM status_log WHERE issue_id = ?", issueID)
	return err
}
