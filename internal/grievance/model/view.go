package model

import "time"

// IssueView is everything a viewer may see about one issue.
type IssueView struct {
	Issue        Issue
	ReporterName string
	Assignment   *Assignment
	Resolver     *Resolver
	Solution     *Solution
	History      []StatusLogEntry
	Attachments  []Attachment
}

// ReporterIssue is one row of the reporter dashboard.
type ReporterIssue struct {
	Issue        Issue
	SolutionText string
	ResolvedAt   *time.Time
	ResolverName string
}

// AdminIssue is one row of the admin dashboard.
type AdminIssue struct {
	Issue        Issue
	ReporterName string
	Assigned     bool
}

// AssignableIssue is an issue that has never been assigned.
type AssignableIssue struct {
	ID        int64
	Title     string
	CreatedAt time.Time
}

// AdminDashboard aggregates the admin's working set.
type AdminDashboard struct {
	Issues     []AdminIssue
	Assignable []AssignableIssue
	Resolvers  []Resolver
}

// ResolverIssue is one row of the resolver dashboard.
type ResolverIssue struct {
	Issue        Issue
	ReporterName string
	AssignedAt   time.Time
	SolutionID   int64
	SolutionText string
}
