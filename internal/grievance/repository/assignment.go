package repository

import (
	"context"
	"database/sql"
	"time"

	"safevoice/internal/common/db"
	"safevoice/internal/grievance/model"
	baserepo "safevoice/pkg/repository"
)

// AssignmentRepository is the ledger binding each issue to at most one resolver, ever.
type AssignmentRepository interface {
	// Create fails with ErrAlreadyAssigned when the issue already has an assignment.
	Create(ctx context.Context, tx db.Transaction, issueID, resolverID int64) (model.Assignment, error)
	Get(ctx context.Context, tx db.Transaction, issueID int64) (model.Assignment, error)
	ListByResolver(ctx context.Context, resolverID int64, opts baserepo.ListOptions) ([]model.ResolverIssue, error)
	DeleteByIssue(ctx context.Context, tx db.Transaction, issueID int64) error
}

type MySQLAssignmentRepository struct {
	db db.Database
}

func NewAssignmentRepository(database db.Database) *MySQLAssignmentRepository {
	return &MySQLAssignmentRepository{db: database}
}

// Create relies on the primary key of issue_assignment; a concurrent insert for the
// same issue loses with a duplicate-key error.
func (r *MySQLAssignmentRepository) Create(ctx context.Context, tx db.Transaction, issueID, resolverID int64) (model.Assignment, error) {
	assignedAt := time.Now().UTC()
	query := "INSERT INTO issue_assignment (issue_id, resolver_id, assigned_at) VALUES (?, ?, ?)"
	if _, err := db.GetQuerier(r.db, tx).Exec(ctx, query, issueID, resolverID, assignedAt); err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return model.Assignment{}, ErrAlreadyAssigned
		}
		return model.Assignment{}, err
	}
	return model.Assignment{IssueID: issueID, ResolverID: resolverID, AssignedAt: assignedAt}, nil
}

func (r *MySQLAssignmentRepository) Get(ctx context.Context, tx db.Transaction, issueID int64) (model.Assignment, error) {
	query := "SELECT issue_id, resolver_id, assigned_at FROM issue_assignment WHERE issue_id = ?"
	var a model.Assignment
	err := db.GetQuerier(r.db, tx).QueryRow(ctx, query, issueID).Scan(&a.IssueID, &a.ResolverID, &a.AssignedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Assignment{}, ErrAssignmentNotFound
		}
		return model.Assignment{}, err
	}
	return a, nil
}

func (r *MySQLAssignmentRepository) ListByResolver(ctx context.Context, resolverID int64, opts baserepo.ListOptions) ([]model.ResolverIssue, error) {
	query := `
		SELECT ` + issueColumns + `, rp.name, a.assigned_at, s.id, s.solution_text
		FROM issue_assignment a
		JOIN issues i ON i.id = a.issue_id
		LEFT JOIN reporters rp ON rp.id = i.reporter_id
		LEFT JOIN solutions s ON s.issue_id = i.id
		WHERE a.resolver_id = ?
		ORDER BY a.assigned_at DESC, i.id DESC
		LIMIT ? OFFSET ?`

	rows, err := r.db.Query(ctx, query, resolverID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ResolverIssue
	for rows.Next() {
		var (
			item         model.ResolverIssue
			reporterName sql.NullString
			solutionID   sql.NullInt64
			solutionText sql.NullString
		)
		dest := append(issueScanDest(&item.Issue), &reporterName, &item.AssignedAt, &solutionID, &solutionText)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		item.ReporterName = reporterName.String
		item.SolutionID = solutionID.Int64
		item.SolutionText = solutionText.String
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *MySQLAssignmentRepository) DeleteByIssue(ctx context.Context, tx db.Transaction, issueID int64) error {
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, "DELETE FROM issue_assignment WHERE issue_id = ?", issueID)
	return err
}
