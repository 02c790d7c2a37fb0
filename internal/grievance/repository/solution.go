package repository

import (
	"context"
	"errors"
	"time"

	"safevoice/internal/common/db"
	"safevoice/internal/grievance/model"
)

// SolutionRepository holds at most one live solution per issue.
type SolutionRepository interface {
	// Create fails with ErrSolutionExists while a live solution exists.
	Create(ctx context.Context, tx db.Transaction, solution *model.Solution) (int64, error)
	GetByIssue(ctx context.Context, tx db.Transaction, issueID int64) (model.Solution, error)
	UpdateText(ctx context.Context, tx db.Transaction, issueID, resolverID int64, text string) error
	// Delete removes the solution only when resolverID wrote it.
	Delete(ctx context.Context, tx db.Transaction, issueID, resolverID int64) error
	// DeleteByIssue is the unscoped delete used by the issue cascade.
	DeleteByIssue(ctx context.Context, tx db.Transaction, issueID int64) error
}

type MySQLSolutionRepository struct {
	db db.Database
}

func NewSolutionRepository(database db.Database) *MySQLSolutionRepository {
	return &MySQLSolutionRepository{db: database}
}

func (r *MySQLSolutionRepository) Create(ctx context.Context, tx db.Transaction, solution *model.Solution) (int64, error) {
	if solution == nil {
		return 0, errors.New("solution is nil")
	}
	now := time.Now().UTC()
	query := "INSERT INTO solutions (issue_id, resolver_id, solution_text, resolved_at, updated_at) VALUES (?, ?, ?, ?, ?)"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, solution.IssueID, solution.ResolverID, solution.Text, now, now)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return 0, ErrSolutionExists
		}
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	solution.ID = id
	solution.ResolvedAt = now
	solution.UpdatedAt = now
	return id, nil
}

func (r *MySQLSolutionRepository) GetByIssue(ctx context.Context, tx db.Transaction, issueID int64) (model.Solution, error) {
	query := "SELECT id, issue_id, resolver_id, solution_text, resolved_at, updated_at FROM solutions WHERE issue_id = ?"
	var s model.Solution
	err := db.GetQuerier(r.db, tx).QueryRow(ctx, query, issueID).
		Scan(&s.ID, &s.IssueID, &s.ResolverID, &s.Text, &s.ResolvedAt, &s.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Solution{}, ErrSolutionNotFound
		}
		return model.Solution{}, err
	}
	return s, nil
}

func (r *MySQLSolutionRepository) UpdateText(ctx context.Context, tx db.Transaction, issueID, resolverID int64, text string) error {
	query := "UPDATE solutions SET solution_text = ?, updated_at = ? WHERE issue_id = ? AND resolver_id = ?"
	return r.execOne(ctx, tx, query, text, time.Now().UTC(), issueID, resolverID)
}

func (r *MySQLSolutionRepository) Delete(ctx context.Context, tx db.Transaction, issueID, resolverID int64) error {
	return r.execOne(ctx, tx, "DELETE FROM solutions WHERE issue_id = ? AND resolver_id = ?", issueID, resolverID)
}

func (r *MySQLSolutionRepository) DeleteByIssue(ctx context.Context, tx db.Transaction, issueID int64) error {
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, "DELETE FROM solutions WHERE issue_id = ?", issueID)
	return err
}

func (r *MySQLSolutionRepository) execOne(ctx context.Context, tx db.Transaction, query string, args ...interface{}) error {
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSolutionNotFound
	}
	return nil
}
