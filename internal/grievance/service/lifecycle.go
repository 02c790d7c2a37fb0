package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"safevoice/internal/common/db"
	"safevoice/internal/grievance/model"
	"safevoice/internal/grievance/repository"
	pkgerrors "safevoice/pkg/errors"
	"safevoice/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	maxTitleLen    = 255
	maxCategoryLen = 64
	maxTextBytes   = 65535
	maxRemarkLen   = 512

	remarkSolutionSubmitted = "Solution submitted"
	remarkSolutionUpdated   = "Solution updated"
	remarkSolutionDeleted   = "Solution deleted"
)

// Transactor runs fn inside one atomic unit of work.
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx db.Transaction) error) error
}

// Repositories groups the stores the lifecycle engine writes through.
type Repositories struct {
	Tx          Transactor
	Issues      repository.IssueRepository
	Assignments repository.AssignmentRepository
	Solutions   repository.SolutionRepository
	StatusLog   repository.StatusLogRepository
	Attachments repository.AttachmentRepository
	Directory   repository.Directory
}

// LifecycleOptions configures validation rules of the engine.
type LifecycleOptions struct {
	// Categories restricts issue categories; empty accepts any category.
	Categories []string
}

// LifecycleService is the only writer of issue status. Every operation checks
// the acting principal and runs its guard and writes in one transaction.
type LifecycleService struct {
	repos       Repositories
	attachments *AttachmentStore
	events      *EventPublisher
	limiter     *RateLimiter
	categories  map[string]string
}

// NewLifecycleService wires the engine. events and limiter may be nil.
func NewLifecycleService(repos Repositories, attachments *AttachmentStore, events *EventPublisher, limiter *RateLimiter, opts LifecycleOptions) *LifecycleService {
	var categories map[string]string
	if len(opts.Categories) > 0 {
		categories = make(map[string]string, len(opts.Categories))
		for _, c := range opts.Categories {
			c = strings.TrimSpace(c)
			if c != "" {
				categories[strings.ToLower(c)] = c
			}
		}
	}
	return &LifecycleService{
		repos:       repos,
		attachments: attachments,
		events:      events,
		limiter:     limiter,
		categories:  categories,
	}
}

// SubmitInput is a new issue as entered by its reporter.
type SubmitInput struct {
	Title       string
	Description string
	Category    string
	Anonymous   bool
	Attachments []model.AttachmentUpload
}

// EditInput replaces the editable content of an issue.
type EditInput struct {
	Title       string
	Description string
	Category    string
}

// SubmitIssue creates an Open issue and uploads its evidence.
func (s *LifecycleService) SubmitIssue(ctx context.Context, reporter model.Principal, input SubmitInput) (issueID int64, err error) {
	defer func() { observe(string(model.OpSubmit), err) }()

	if err := requireRole(reporter, model.RoleReporter); err != nil {
		return 0, err
	}
	title, description, category, err := s.validateContent(input.Title, input.Description, input.Category)
	if err != nil {
		return 0, err
	}
	prepared, err := s.attachments.Prepare(input.Attachments)
	if err != nil {
		return 0, err
	}
	if err := s.limiter.Allow(ctx, submissionRateKey(reporter.ID)); err != nil {
		return 0, err
	}

	issue := &model.Issue{
		ReporterID:  reporter.ID,
		Title:       title,
		Description: description,
		Category:    category,
		Anonymous:   input.Anonymous,
		Status:      model.StatusOpen,
	}
	err = s.inTx(ctx, "submit issue", func(tx db.Transaction) error {
		if _, err := s.repos.Directory.ReporterName(ctx, tx, reporter.ID); err != nil {
			if errors.Is(err, repository.ErrPrincipalNotFound) {
				return pkgerrors.UnauthorizedError("unknown reporter")
			}
			return err
		}
		_, err := s.repos.Issues.Create(ctx, tx, issue)
		return err
	})
	if err != nil {
		return 0, err
	}

	if len(prepared) > 0 {
		if err := s.storeAttachments(ctx, issue.ID, prepared); err != nil {
			s.rollbackSubmission(ctx, reporter, issue.ID)
			return 0, err
		}
	}

	var total int64
	for _, u := range prepared {
		total += u.Size()
	}
	attachmentBytes.Observe(float64(total))
	logger.Info(ctx, "issue submitted",
		zap.Int64("issue_id", issue.ID),
		zap.Int("attachments", len(prepared)),
		zap.Int64("attachment_bytes", total))
	s.publish(ctx, model.EventIssueSubmitted, issue.ID, model.StatusOpen, reporter)
	return issue.ID, nil
}

// storeAttachments uploads evidence and records the references. Rows are only
// written after every upload succeeded; on failure the uploaded objects are released.
func (s *LifecycleService) storeAttachments(ctx context.Context, issueID int64, prepared []PreparedUpload) error {
	stored, err := s.attachments.UploadAll(ctx, issueID, prepared)
	if err != nil {
		return err
	}
	err = s.inTx(ctx, "record attachments", func(tx db.Transaction) error {
		if _, err := s.repos.Issues.GetForUpdate(ctx, tx, issueID); err != nil {
			if errors.Is(err, repository.ErrIssueNotFound) {
				return pkgerrors.New(pkgerrors.IssueNotFound)
			}
			return err
		}
		return s.repos.Attachments.CreateBatch(ctx, tx, stored)
	})
	if err != nil {
		s.attachments.releaseQuietly(ctx, objectKeys(stored))
		return err
	}
	return nil
}

// rollbackSubmission removes an issue whose evidence could not be stored.
func (s *LifecycleService) rollbackSubmission(ctx context.Context, reporter model.Principal, issueID int64) {
	ctx = context.WithoutCancel(ctx)
	err := s.inTx(ctx, "rollback submission", func(tx db.Transaction) error {
		return s.cascadeDelete(ctx, tx, issueID)
	})
	if err != nil && !pkgerrors.Is(err, pkgerrors.IssueNotFound) {
		logger.Error(ctx, "rollback failed submission failed", zap.Int64("issue_id", issueID), zap.Error(err))
		return
	}
	s.publish(ctx, model.EventIssueDeleted, issueID, "", reporter)
}

// AssignIssue permanently binds an Open issue to a resolver.
func (s *LifecycleService) AssignIssue(ctx context.Context, admin model.Principal, issueID, resolverID int64) (err error) {
	defer func() { observe(string(model.OpAssign), err) }()

	if err := requireRole(admin, model.RoleAdmin); err != nil {
		return err
	}
	if issueID <= 0 || resolverID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams)
	}

	var to model.Status
	err = s.inTx(ctx, "assign issue", func(tx db.Transaction) error {
		issue, err := s.lockIssue(ctx, tx, issueID)
		if err != nil {
			return err
		}
		if existing, err := s.repos.Assignments.Get(ctx, tx, issueID); err == nil {
			return pkgerrors.New(pkgerrors.AlreadyAssigned).WithDetail("resolver_id", existing.ResolverID)
		} else if !errors.Is(err, repository.ErrAssignmentNotFound) {
			return err
		}
		t, ok := model.CanTransition(issue.Status, model.OpAssign)
		if !ok {
			return invalidTransition(issue.Status, model.OpAssign)
		}
		resolver, err := s.repos.Directory.Resolver(ctx, tx, resolverID)
		if err != nil {
			if errors.Is(err, repository.ErrResolverNotFound) {
				return pkgerrors.New(pkgerrors.ResolverNotFound)
			}
			return err
		}
		adminName, err := s.repos.Directory.AdminName(ctx, tx, admin.ID)
		if err != nil {
			if errors.Is(err, repository.ErrPrincipalNotFound) {
				return pkgerrors.ForbiddenError("unknown admin")
			}
			return err
		}
		if _, err := s.repos.Assignments.Create(ctx, tx, issueID, resolverID); err != nil {
			if errors.Is(err, repository.ErrAlreadyAssigned) {
				return pkgerrors.New(pkgerrors.AlreadyAssigned)
			}
			return err
		}
		if err := s.repos.Issues.UpdateStatus(ctx, tx, issueID, t.To); err != nil {
			return err
		}
		remark := fmt.Sprintf("Admin (%s) assigned issue (%s) to Resolver (%s - %s)",
			adminName, issue.Title, resolver.Name, resolver.Designation)
		to = t.To
		return s.record(ctx, tx, issueID, t.Logged, model.RoleAdmin, remark)
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "issue assigned", zap.Int64("issue_id", issueID), zap.Int64("resolver_id", resolverID))
	s.publish(ctx, model.EventIssueAssigned, issueID, to, admin)
	return nil
}

// ProposeSolution attaches the assigned resolver's solution and resolves the issue.
func (s *LifecycleService) ProposeSolution(ctx context.Context, resolver model.Principal, issueID int64, text string) (err error) {
	defer func() { observe(string(model.OpPropose), err) }()

	if err := requireRole(resolver, model.RoleResolver); err != nil {
		return err
	}
	text, err = validateSolutionText(text)
	if err != nil {
		return err
	}

	var to model.Status
	err = s.inTx(ctx, "propose solution", func(tx db.Transaction) error {
		issue, err := s.lockAssigned(ctx, tx, issueID, resolver.ID)
		if err != nil {
			return err
		}
		if _, err := s.repos.Solutions.GetByIssue(ctx, tx, issueID); err == nil {
			return pkgerrors.New(pkgerrors.SolutionAlreadyExists)
		} else if !errors.Is(err, repository.ErrSolutionNotFound) {
			return err
		}
		t, ok := model.CanTransition(issue.Status, model.OpPropose)
		if !ok {
			return invalidTransition(issue.Status, model.OpPropose)
		}
		solution := &model.Solution{IssueID: issueID, ResolverID: resolver.ID, Text: text}
		if _, err := s.repos.Solutions.Create(ctx, tx, solution); err != nil {
			if errors.Is(err, repository.ErrSolutionExists) {
				return pkgerrors.New(pkgerrors.SolutionAlreadyExists)
			}
			return err
		}
		if err := s.repos.Issues.UpdateStatus(ctx, tx, issueID, t.To); err != nil {
			return err
		}
		to = t.To
		return s.record(ctx, tx, issueID, t.Logged, model.RoleResolver, remarkSolutionSubmitted)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, model.EventSolutionProposed, issueID, to, resolver)
	return nil
}

// ReviseSolution replaces the solution text. Status stays Resolved but the
// revision is still logged, as "Updated".
func (s *LifecycleService) ReviseSolution(ctx context.Context, resolver model.Principal, issueID int64, text string) (err error) {
	defer func() { observe(string(model.OpRevise), err) }()

	if err := requireRole(resolver, model.RoleResolver); err != nil {
		return err
	}
	text, err = validateSolutionText(text)
	if err != nil {
		return err
	}

	var to model.Status
	err = s.inTx(ctx, "revise solution", func(tx db.Transaction) error {
		issue, err := s.lockAssigned(ctx, tx, issueID, resolver.ID)
		if err != nil {
			return err
		}
		t, err := s.solutionTransition(ctx, tx, issue, model.OpRevise)
		if err != nil {
			return err
		}
		if err := s.repos.Solutions.UpdateText(ctx, tx, issueID, resolver.ID, text); err != nil {
			if errors.Is(err, repository.ErrSolutionNotFound) {
				return pkgerrors.New(pkgerrors.SolutionNotFound)
			}
			return err
		}
		if t.To != issue.Status {
			if err := s.repos.Issues.UpdateStatus(ctx, tx, issueID, t.To); err != nil {
				return err
			}
		}
		to = t.To
		return s.record(ctx, tx, issueID, t.Logged, model.RoleResolver, remarkSolutionUpdated)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, model.EventSolutionRevised, issueID, to, resolver)
	return nil
}

// WithdrawSolution deletes the solution and moves the issue back to Assigned.
func (s *LifecycleService) WithdrawSolution(ctx context.Context, resolver model.Principal, issueID int64) (err error) {
	defer func() { observe(string(model.OpWithdraw), err) }()

	if err := requireRole(resolver, model.RoleResolver); err != nil {
		return err
	}

	var to model.Status
	err = s.inTx(ctx, "withdraw solution", func(tx db.Transaction) error {
		issue, err := s.lockAssigned(ctx, tx, issueID, resolver.ID)
		if err != nil {
			return err
		}
		t, err := s.solutionTransition(ctx, tx, issue, model.OpWithdraw)
		if err != nil {
			return err
		}
		if err := s.repos.Solutions.Delete(ctx, tx, issueID, resolver.ID); err != nil {
			if errors.Is(err, repository.ErrSolutionNotFound) {
				return pkgerrors.New(pkgerrors.SolutionNotFound)
			}
			return err
		}
		if err := s.repos.Issues.UpdateStatus(ctx, tx, issueID, t.To); err != nil {
			return err
		}
		to = t.To
		return s.record(ctx, tx, issueID, t.Logged, model.RoleResolver, remarkSolutionDeleted)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, model.EventSolutionWithdrawn, issueID, to, resolver)
	return nil
}

// DeleteIssue removes an issue and everything it owns. Evidence objects are
// released first; a failure there leaves the issue intact and safe to retry.
func (s *LifecycleService) DeleteIssue(ctx context.Context, reporter model.Principal, issueID int64) (err error) {
	defer func() { observe(string(model.OpDelete), err) }()

	if err := requireRole(reporter, model.RoleReporter); err != nil {
		return err
	}
	issue, err := s.repos.Issues.Get(ctx, nil, issueID)
	if err != nil {
		return mapIssueErr(err, "get issue")
	}
	if issue.ReporterID != reporter.ID {
		return pkgerrors.ForbiddenError("only the reporter can delete this issue")
	}
	attachments, err := s.repos.Attachments.ListByIssue(ctx, nil, issueID)
	if err != nil {
		return pkgerrors.Wrap(fmt.Errorf("list attachments failed: %w", err), pkgerrors.DatabaseError)
	}
	if err := s.attachments.DeleteAll(ctx, attachments); err != nil {
		return err
	}

	err = s.inTx(ctx, "delete issue", func(tx db.Transaction) error {
		locked, err := s.lockIssue(ctx, tx, issueID)
		if err != nil {
			return err
		}
		if locked.ReporterID != reporter.ID {
			return pkgerrors.New(pkgerrors.Forbidden)
		}
		return s.cascadeDelete(ctx, tx, issueID)
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "issue deleted", zap.Int64("issue_id", issueID), zap.Int("attachments", len(attachments)))
	s.publish(ctx, model.EventIssueDeleted, issueID, "", reporter)
	return nil
}

// cascadeDelete removes every row owned by the issue, then the issue itself.
func (s *LifecycleService) cascadeDelete(ctx context.Context, tx db.Transaction, issueID int64) error {
	if err := s.repos.Attachments.DeleteByIssue(ctx, tx, issueID); err != nil {
		return err
	}
	if err := s.repos.StatusLog.DeleteByIssue(ctx, tx, issueID); err != nil {
		return err
	}
	if err := s.repos.Solutions.DeleteByIssue(ctx, tx, issueID); err != nil {
		return err
	}
	if err := s.repos.Assignments.DeleteByIssue(ctx, tx, issueID); err != nil {
		return err
	}
	if err := s.repos.Issues.Delete(ctx, tx, issueID); err != nil {
		return mapIssueErr(err, "delete issue")
	}
	return nil
}

// AcknowledgeResolution marks that the reporter has seen the outcome. The flag
// is reporter-local and never enters the status log.
func (s *LifecycleService) AcknowledgeResolution(ctx context.Context, reporter model.Principal, issueID int64) (err error) {
	defer func() { observe(string(model.OpAcknowledge), err) }()

	if err := requireRole(reporter, model.RoleReporter); err != nil {
		return err
	}
	var status model.Status
	err = s.inTx(ctx, "acknowledge issue", func(tx db.Transaction) error {
		issue, err := s.lockOwned(ctx, tx, issueID, reporter.ID)
		if err != nil {
			return err
		}
		if _, ok := model.CanTransition(issue.Status, model.OpAcknowledge); !ok {
			return invalidTransition(issue.Status, model.OpAcknowledge)
		}
		status = issue.Status
		return s.repos.Issues.SetAcknowledged(ctx, tx, issueID)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, model.EventIssueAcknowledged, issueID, status, reporter)
	return nil
}

// EditIssue changes title, description and category while the issue is still
// Open and unassigned.
func (s *LifecycleService) EditIssue(ctx context.Context, reporter model.Principal, issueID int64, input EditInput) (err error) {
	defer func() { observe(string(model.OpEdit), err) }()

	if err := requireRole(reporter, model.RoleReporter); err != nil {
		return err
	}
	title, description, category, err := s.validateContent(input.Title, input.Description, input.Category)
	if err != nil {
		return err
	}
	err = s.inTx(ctx, "edit issue", func(tx db.Transaction) error {
		issue, err := s.lockOwned(ctx, tx, issueID, reporter.ID)
		if err != nil {
			return err
		}
		if _, err := s.repos.Assignments.Get(ctx, tx, issueID); err == nil {
			return pkgerrors.New(pkgerrors.IssueLocked)
		} else if !errors.Is(err, repository.ErrAssignmentNotFound) {
			return err
		}
		if _, ok := model.CanTransition(issue.Status, model.OpEdit); !ok {
			return pkgerrors.New(pkgerrors.IssueLocked)
		}
		return s.repos.Issues.UpdateContent(ctx, tx, issueID, title, description, category)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, model.EventIssueEdited, issueID, model.StatusOpen, reporter)
	return nil
}

func (s *LifecycleService) lockIssue(ctx context.Context, tx db.Transaction, issueID int64) (model.Issue, error) {
	if issueID <= 0 {
		return model.Issue{}, pkgerrors.New(pkgerrors.InvalidParams)
	}
	issue, err := s.repos.Issues.GetForUpdate(ctx, tx, issueID)
	if err != nil {
		return model.Issue{}, mapIssueErr(err, "lock issue")
	}
	return issue, nil
}

func (s *LifecycleService) lockOwned(ctx context.Context, tx db.Transaction, issueID, reporterID int64) (model.Issue, error) {
	issue, err := s.lockIssue(ctx, tx, issueID)
	if err != nil {
		return model.Issue{}, err
	}
	if issue.ReporterID != reporterID {
		return model.Issue{}, pkgerrors.ForbiddenError("issue belongs to another reporter")
	}
	return issue, nil
}

// lockAssigned locks the issue and checks that resolverID holds its assignment.
func (s *LifecycleService) lockAssigned(ctx context.Context, tx db.Transaction, issueID, resolverID int64) (model.Issue, error) {
	issue, err := s.lockIssue(ctx, tx, issueID)
	if err != nil {
		return model.Issue{}, err
	}
	assignment, err := s.repos.Assignments.Get(ctx, tx, issueID)
	if err != nil {
		if errors.Is(err, repository.ErrAssignmentNotFound) {
			return model.Issue{}, pkgerrors.New(pkgerrors.NotAssignedToCaller)
		}
		return model.Issue{}, err
	}
	if assignment.ResolverID != resolverID {
		return model.Issue{}, pkgerrors.New(pkgerrors.NotAssignedToCaller)
	}
	return issue, nil
}

// solutionTransition requires a live solution before checking the table, so a
// missing solution reports SolutionNotFound rather than a status conflict.
func (s *LifecycleService) solutionTransition(ctx context.Context, tx db.Transaction, issue model.Issue, op model.Operation) (model.Transition, error) {
	if _, err := s.repos.Solutions.GetByIssue(ctx, tx, issue.ID); err != nil {
		if errors.Is(err, repository.ErrSolutionNotFound) {
			return model.Transition{}, pkgerrors.New(pkgerrors.SolutionNotFound)
		}
		return model.Transition{}, err
	}
	t, ok := model.CanTransition(issue.Status, op)
	if !ok {
		return model.Transition{}, invalidTransition(issue.Status, op)
	}
	return t, nil
}

func (s *LifecycleService) record(ctx context.Context, tx db.Transaction, issueID int64, status model.Status, actor model.Role, remark string) error {
	return s.repos.StatusLog.Record(ctx, tx, &model.StatusLogEntry{
		IssueID:   issueID,
		Status:    status,
		ActorRole: actor,
		Remark:    clip(remark, maxRemarkLen),
	})
}

// inTx runs fn in a transaction. Coded errors pass through; anything else is a
// storage failure.
func (s *LifecycleService) inTx(ctx context.Context, op string, fn func(tx db.Transaction) error) error {
	err := s.repos.Tx.Transaction(ctx, fn)
	if err == nil {
		return nil
	}
	var coded *pkgerrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return pkgerrors.Wrap(fmt.Errorf("%s failed: %w", op, err), pkgerrors.DatabaseError)
}

func (s *LifecycleService) publish(ctx context.Context, eventType string, issueID int64, status model.Status, actor model.Principal) {
	if s.events == nil {
		return
	}
	event := model.LifecycleEvent{
		EventType:  eventType,
		IssueID:    issueID,
		Status:     status,
		ActorRole:  actor.Role,
		ActorID:    actor.ID,
		OccurredAt: time.Now().UTC(),
	}
	if eventType == model.EventIssueDeleted && s.attachments != nil {
		event.Bucket = s.attachments.Bucket()
		event.Prefix = s.attachments.IssuePrefix(issueID)
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Warn(ctx, "publish lifecycle event failed",
			zap.String("event_type", eventType),
			zap.Int64("issue_id", issueID),
			zap.Error(err))
	}
}

func (s *LifecycleService) validateContent(title, description, category string) (string, string, string, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	category = strings.TrimSpace(category)
	switch {
	case title == "":
		return "", "", "", pkgerrors.ValidationError("title", "is required")
	case utf8.RuneCountInString(title) > maxTitleLen:
		return "", "", "", pkgerrors.ValidationError("title", fmt.Sprintf("must be at most %d characters", maxTitleLen))
	case description == "":
		return "", "", "", pkgerrors.ValidationError("description", "is required")
	case len(description) > maxTextBytes:
		return "", "", "", pkgerrors.ValidationError("description", "is too long")
	case category == "":
		return "", "", "", pkgerrors.ValidationError("category", "is required")
	case utf8.RuneCountInString(category) > maxCategoryLen:
		return "", "", "", pkgerrors.ValidationError("category", fmt.Sprintf("must be at most %d characters", maxCategoryLen))
	}
	if s.categories != nil {
		canonical, ok := s.categories[strings.ToLower(category)]
		if !ok {
			return "", "", "", pkgerrors.ValidationError("category", "is not a known category")
		}
		category = canonical
	}
	return title, description, category, nil
}

func validateSolutionText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", pkgerrors.ValidationError("solution", "is required")
	}
	if len(text) > maxTextBytes {
		return "", pkgerrors.ValidationError("solution", "is too long")
	}
	return text, nil
}

func requireRole(p model.Principal, role model.Role) error {
	if p.IsAnonymous() {
		return pkgerrors.New(pkgerrors.Unauthorized)
	}
	if p.Role != role {
		return pkgerrors.New(pkgerrors.Forbidden).WithMessagef("operation requires the %s role", role)
	}
	return nil
}

func invalidTransition(from model.Status, op model.Operation) error {
	return pkgerrors.New(pkgerrors.InvalidTransition).
		WithDetail("status", string(from)).
		WithDetail("operation", string(op))
}

func mapIssueErr(err error, op string) error {
	if errors.Is(err, repository.ErrIssueNotFound) {
		return pkgerrors.New(pkgerrors.IssueNotFound)
	}
	var coded *pkgerrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return pkgerrors.Wrap(fmt.Errorf("%s failed: %w", op, err), pkgerrors.DatabaseError)
}

func objectKeys(attachments []model.Attachment) []string {
	keys := make([]string, 0, len(attachments))
	for _, a := range attachments {
		keys = append(keys, a.ObjectKey)
	}
	return keys
}

func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
