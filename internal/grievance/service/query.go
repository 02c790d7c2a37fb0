package service

import (
	"context"
	"errors"
	"fmt"

	"safevoice/internal/grievance/model"
	"safevoice/internal/grievance/repository"
	pkgerrors "safevoice/pkg/errors"
	baserepo "safevoice/pkg/repository"
)

// GetIssueView returns the issue with its history, evidence and solution.
// Reporters see their own issues, resolvers the issues assigned to them, admins all.
func (s *LifecycleService) GetIssueView(ctx context.Context, viewer model.Principal, issueID int64) (model.IssueView, error) {
	if viewer.IsAnonymous() {
		return model.IssueView{}, pkgerrors.New(pkgerrors.Unauthorized)
	}
	if issueID <= 0 {
		return model.IssueView{}, pkgerrors.New(pkgerrors.InvalidParams)
	}
	issue, err := s.repos.Issues.Get(ctx, nil, issueID)
	if err != nil {
		return model.IssueView{}, mapIssueErr(err, "get issue")
	}

	view := model.IssueView{Issue: issue}
	assignment, err := s.repos.Assignments.Get(ctx, nil, issueID)
	switch {
	case err == nil:
		view.Assignment = &assignment
	case !errors.Is(err, repository.ErrAssignmentNotFound):
		return model.IssueView{}, dbErr("get assignment", err)
	}

	switch viewer.Role {
	case model.RoleReporter:
		if issue.ReporterID != viewer.ID {
			return model.IssueView{}, pkgerrors.New(pkgerrors.Forbidden)
		}
	case model.RoleResolver:
		if view.Assignment == nil || view.Assignment.ResolverID != viewer.ID {
			return model.IssueView{}, pkgerrors.New(pkgerrors.Forbidden)
		}
	case model.RoleAdmin:
	default:
		return model.IssueView{}, pkgerrors.New(pkgerrors.Forbidden)
	}

	if issue.Anonymous && !ownsIssue(viewer, issue) {
		view.ReporterName = model.AnonymousReporterName
	} else {
		name, err := s.repos.Directory.ReporterName(ctx, nil, issue.ReporterID)
		if err != nil && !errors.Is(err, repository.ErrPrincipalNotFound) {
			return model.IssueView{}, dbErr("get reporter", err)
		}
		view.ReporterName = name
	}

	if view.Assignment != nil {
		resolver, err := s.repos.Directory.Resolver(ctx, nil, view.Assignment.ResolverID)
		switch {
		case err == nil:
			view.Resolver = &resolver
		case !errors.Is(err, repository.ErrResolverNotFound):
			return model.IssueView{}, dbErr("get resolver", err)
		}
	}

	solution, err := s.repos.Solutions.GetByIssue(ctx, nil, issueID)
	switch {
	case err == nil:
		view.Solution = &solution
	case !errors.Is(err, repository.ErrSolutionNotFound):
		return model.IssueView{}, dbErr("get solution", err)
	}

	if view.History, err = s.repos.StatusLog.History(ctx, nil, issueID); err != nil {
		return model.IssueView{}, dbErr("get history", err)
	}
	if view.Attachments, err = s.repos.Attachments.ListByIssue(ctx, nil, issueID); err != nil {
		return model.IssueView{}, dbErr("list attachments", err)
	}
	return view, nil
}

// ListReporterIssues is the reporter dashboard: own issues, newest first.
func (s *LifecycleService) ListReporterIssues(ctx context.Context, reporter model.Principal, opts baserepo.ListOptions) ([]model.ReporterIssue, error) {
	if err := requireRole(reporter, model.RoleReporter); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.InvalidParams)
	}
	items, err := s.repos.Issues.ListByReporter(ctx, reporter.ID, opts)
	if err != nil {
		return nil, dbErr("list reporter issues", err)
	}
	return items, nil
}

// ListAdminIssues is the admin dashboard: every issue, the issues still
// waiting for a resolver, and the resolver roster.
func (s *LifecycleService) ListAdminIssues(ctx context.Context, admin model.Principal, opts baserepo.ListOptions) (model.AdminDashboard, error) {
	if err := requireRole(admin, model.RoleAdmin); err != nil {
		return model.AdminDashboard{}, err
	}
	if err := opts.Validate(); err != nil {
		return model.AdminDashboard{}, pkgerrors.Wrap(err, pkgerrors.InvalidParams)
	}

	var (
		dashboard model.AdminDashboard
		err       error
	)
	if dashboard.Issues, err = s.repos.Issues.ListAll(ctx, opts); err != nil {
		return model.AdminDashboard{}, dbErr("list issues", err)
	}
	for i := range dashboard.Issues {
		if dashboard.Issues[i].Issue.Anonymous {
			dashboard.Issues[i].ReporterName = model.AnonymousReporterName
		}
	}
	if dashboard.Assignable, err = s.repos.Issues.ListUnassigned(ctx); err != nil {
		return model.AdminDashboard{}, dbErr("list unassigned issues", err)
	}
	if dashboard.Resolvers, err = s.repos.Directory.ListResolvers(ctx); err != nil {
		return model.AdminDashboard{}, dbErr("list resolvers", err)
	}
	return dashboard, nil
}

// ListResolverIssues is the resolver dashboard: issues assigned to the caller.
func (s *LifecycleService) ListResolverIssues(ctx context.Context, resolver model.Principal, opts baserepo.ListOptions) ([]model.ResolverIssue, error) {
	if err := requireRole(resolver, model.RoleResolver); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.InvalidParams)
	}
	items, err := s.repos.Assignments.ListByResolver(ctx, resolver.ID, opts)
	if err != nil {
		return nil, dbErr("list resolver issues", err)
	}
	for i := range items {
		if items[i].Issue.Anonymous {
			items[i].ReporterName = model.AnonymousReporterName
		}
	}
	return items, nil
}

func ownsIssue(p model.Principal, issue model.Issue) bool {
	return p.Is(model.RoleReporter) && p.ID == issue.ReporterID
}

func dbErr(op string, err error) error {
	return pkgerrors.Wrap(fmt.Errorf("%s failed: %w", op, err), pkgerrors.DatabaseError)
}
