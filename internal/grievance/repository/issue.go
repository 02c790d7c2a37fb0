package repository

import (
	"context"
	"database/sql"
	"errors"

	"safevoice/internal/common/db"
	"safevoice/internal/grievance/model"
	baserepo "safevoice/pkg/repository"
)

const issueColumns = "i.id, i.reporter_id, i.title, i.description, i.category, i.anonymous, i.status, i.user_acknowledged, i.created_at, i.updated_at"

// IssueRepository persists issues. Only the lifecycle engine calls UpdateStatus.
type IssueRepository interface {
	Create(ctx context.Context, tx db.Transaction, issue *model.Issue) (int64, error)
	Get(ctx context.Context, tx db.Transaction, issueID int64) (model.Issue, error)
	// GetForUpdate locks the issue row until tx ends.
	GetForUpdate(ctx context.Context, tx db.Transaction, issueID int64) (model.Issue, error)
	UpdateStatus(ctx context.Context, tx db.Transaction, issueID int64, status model.Status) error
	UpdateContent(ctx context.Context, tx db.Transaction, issueID int64, title, description, category string) error
	SetAcknowledged(ctx context.Context, tx db.Transaction, issueID int64) error
	Delete(ctx context.Context, tx db.Transaction, issueID int64) error
	Exists(ctx context.Context, issueID int64) (bool, error)

	ListByReporter(ctx context.Context, reporterID int64, opts baserepo.ListOptions) ([]model.ReporterIssue, error)
	ListAll(ctx context.Context, opts baserepo.ListOptions) ([]model.AdminIssue, error)
	ListUnassigned(ctx context.Context) ([]model.AssignableIssue, error)
}

type MySQLIssueRepository struct {
	db db.Database
}

func NewIssueRepository(database db.Database) *MySQLIssueRepository {
	return &MySQLIssueRepository{db: database}
}

func (r *MySQLIssueRepository) Create(ctx context.Context, tx db.Transaction, issue *model.Issue) (int64, error) {
	if issue == nil {
		return 0, errors.New("issue is nil")
	}
	if issue.Status == "" {
		issue.Status = model.StatusOpen
	}

	query := "INSERT INTO issues (reporter_id, title, description, category, anonymous, status) VALUES (?, ?, ?, ?, ?, ?)"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		issue.ReporterID, issue.Title, issue.Description, issue.Category, issue.Anonymous, string(issue.Status))
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	issue.ID = id
	return id, nil
}

func (r *MySQLIssueRepository) Get(ctx context.Context, tx db.Transaction, issueID int64) (model.Issue, error) {
	query := "SELECT " + issueColumns + " FROM issues i WHERE i.id = ?"
	return r.getOne(ctx, tx, query, issueID)
}

func (r *MySQLIssueRepository) GetForUpdate(ctx context.Context, tx db.Transaction, issueID int64) (model.Issue, error) {
	if tx == nil {
		return model.Issue{}, errors.New("row lock requires a transaction")
	}
	query := "SELECT " + issueColumns + " FROM issues i WHERE i.id = ? FOR UPDATE"
	return r.getOne(ctx, tx, query, issueID)
}

func (r *MySQLIssueRepository) getOne(ctx context.Context, tx db.Transaction, query string, issueID int64) (model.Issue, error) {
	issue, err := scanIssue(db.GetQuerier(r.db, tx).QueryRow(ctx, query, issueID))
	if err != nil {
		if db.IsNoRows(err) {
			return model.Issue{}, ErrIssueNotFound
		}
		return model.Issue{}, err
	}
	return issue, nil
}

func (r *MySQLIssueRepository) UpdateStatus(ctx context.Context, tx db.Transaction, issueID int64, status model.Status) error {
	if !status.Valid() {
		return errors.New("invalid issue status: " + string(status))
	}
	return r.execOne(ctx, tx, "UPDATE issues SET status = ? WHERE id = ?", string(status), issueID)
}

func (r *MySQLIssueRepository) UpdateContent(ctx context.Context, tx db.Transaction, issueID int64, title, description, category string) error {
	query := "UPDATE issues SET title = ?, description = ?, category = ? WHERE id = ?"
	return r.execOne(ctx, tx, query, title, description, category, issueID)
}

func (r *MySQLIssueRepository) SetAcknowledged(ctx context.Context, tx db.Transaction, issueID int64) error {
	return r.execOne(ctx, tx, "UPDATE issues SET user_acknowledged = 1 WHERE id = ?", issueID)
}

func (r *MySQLIssueRepository) Delete(ctx context.Context, tx db.Transaction, issueID int64) error {
	return r.execOne(ctx, tx, "DELETE FROM issues WHERE id = ?", issueID)
}

// execOne treats zero affected rows as a missing issue. Updates that change nothing
// still match because the DSN sets clientFoundRows.
func (r *MySQLIssueRepository) execOne(ctx context.Context, tx db.Transaction, query string, args ...interface{}) error {
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrIssueNotFound
	}
	return nil
}

func (r *MySQLIssueRepository) Exists(ctx context.Context, issueID int64) (bool, error) {
	var one int
	err := r.db.QueryRow(ctx, "SELECT 1 FROM issues WHERE id = ?", issueID).Scan(&one)
	if err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *MySQLIssueRepository) ListByReporter(ctx context.Context, reporterID int64, opts baserepo.ListOptions) ([]model.ReporterIssue, error) {
	query := `
		SELECT ` + issueColumns + `, s.solution_text, s.resolved_at, rv.name
		FROM issues i
		LEFT JOIN solutions s ON s.issue_id = i.id
		LEFT JOIN resolvers rv ON rv.id = s.resolver_id
		WHERE i.reporter_id = ?
		ORDER BY i.created_at DESC, i.id DESC
		LIMIT ? OFFSET ?`

	rows, err := r.db.Query(ctx, query, reporterID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ReporterIssue
	for rows.Next() {
		var (
			item         model.ReporterIssue
			solutionText sql.NullString
			resolvedAt   sql.NullTime
			resolverName sql.NullString
		)
		dest := append(issueScanDest(&item.Issue), &solutionText, &resolvedAt, &resolverName)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		item.SolutionText = solutionText.String
		item.ResolverName = resolverName.String
		if resolvedAt.Valid {
			t := resolvedAt.Time
			item.ResolvedAt = &t
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *MySQLIssueRepository) ListAll(ctx context.Context, opts baserepo.ListOptions) ([]model.AdminIssue, error) {
	query := `
		SELECT ` + issueColumns + `, rp.name, a.issue_id IS NOT NULL
		FROM issues i
		LEFT JOIN reporters rp ON rp.id = i.reporter_id
		LEFT JOIN issue_assignment a ON a.issue_id = i.id
		ORDER BY i.created_at DESC, i.id DESC
		LIMIT ? OFFSET ?`

	rows, err := r.db.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AdminIssue
	for rows.Next() {
		var (
			item         model.AdminIssue
			reporterName sql.NullString
		)
		dest := append(issueScanDest(&item.Issue), &reporterName, &item.Assigned)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		item.ReporterName = reporterName.String
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *MySQLIssueRepository) ListUnassigned(ctx context.Context) ([]model.AssignableIssue, error) {
	query := `
		SELECT i.id, i.title, i.created_at
		FROM issues i
		LEFT JOIN issue_assignment a ON a.issue_id = i.id
		WHERE a.issue_id IS NULL
		ORDER BY i.created_at DESC, i.id DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AssignableIssue
	for rows.Next() {
		var item model.AssignableIssue
		if err := rows.Scan(&item.ID, &item.Title, &item.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func issueScanDest(issue *model.Issue) []interface{} {
	return []interface{}{
		&issue.ID,
		&issue.ReporterID,
		&issue.Title,
		&issue.Description,
		&issue.Category,
		&issue.Anonymous,
		&issue.Status,
		&issue.Acknowledged,
		&issue.CreatedAt,
		&issue.UpdatedAt,
	}
}

func scanIssue(scanner db.Scanner) (model.Issue, error) {
	var issue model.Issue
	if err := scanner.Scan(issueScanDest(&issue)...); err != nil {
		return model.Issue{}, err
	}
	return issue, nil
}
