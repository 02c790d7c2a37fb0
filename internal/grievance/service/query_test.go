package service_test

import (
	"context"
	"testing"

	"safevoice/internal/grievance/model"
	"safevoice/internal/grievance/service"
	pkgerrors "safevoice/pkg/errors"
	baserepo "safevoice/pkg/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitAnonymous(t *testing.T, h *harness, reporter model.Principal, title string) int64 {
	t.Helper()
	id, err := h.lifecycle.SubmitIssue(context.Background(), reporter, service.SubmitInput{
		Title:       title,
		Description: "Please keep my name out of this",
		Category:    "Harassment",
		Anonymous:   true,
	})
	require.NoError(t, err)
	return id
}

func TestIssueViewHidesAnonymousReporter(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOptions{})
	id := submitAnonymous(t, h, reporterAsha, "Bullying in hostel B")
	require.NoError(t, h.lifecycle.AssignIssue(ctx, adminPriya, id, resolverDan.ID))

	own, err := h.lifecycle.GetIssueView(ctx, reporterAsha, id)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", own.ReporterName)

	for _, viewer := range []model.Principal{adminPriya, resolverDan} {
		view, err := h.lifecycle.GetIssueView(ctx, viewer, id)
		require.NoError(t, err)
		assert.Equal(t, model.AnonymousReporterName, view.ReporterName, "viewer %s", viewer.Role)
	}

	dashboard, err := h.lifecycle.ListAdminIssues(ctx, adminPriya, baserepo.ListOptions{})
	require.NoError(t, err)
	require.Len(t, dashboard.Issues, 1)
	assert.Equal(t, model.AnonymousReporterName, dashboard.Issues[0].ReporterName)

	assigned, err := h.lifecycle.ListResolverIssues(ctx, resolverDan, baserepo.ListOptions{})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, model.AnonymousReporterName, assigned[0].ReporterName)
}

func TestIssueViewShowsNamedReporter(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOptions{})
	id := h.submit(t, reporterAsha, "Broken heater", pngFile("a.png", 512))
	require.NoError(t, h.lifecycle.AssignIssue(ctx, adminPriya, id, resolverDan.ID))
	require.NoError(t, h.lifecycle.ProposeSolution(ctx, resolverDan, id, "Fixed"))

	view, err := h.lifecycle.GetIssueView(ctx, adminPriya, id)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", view.ReporterName)
	require.NotNil(t, view.Assignment)
	assert.Equal(t, resolverDan.ID, view.Assignment.ResolverID)
	require.NotNil(t, view.Resolver)
	assert.Equal(t, "Daniel Kim", view.Resolver.Name)
	require.NotNil(t, view.Solution)
	assert.Equal(t, "Fixed", view.Solution.Text)
	assert.Len(t, view.History, 2)
	assert.Len(t, view.Attachments, 1)
}

func TestIssueViewVisibility(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOptions{})
	id := h.submit(t, reporterAsha, "Broken heater")

	_, err := h.lifecycle.GetIssueView(ctx, model.Anonymous, id)
	requireCode(t, err, pkgerrors.Unauthorized)
	_, err = h.lifecycle.GetIssueView(ctx, reporterBen, id)
	requireCode(t, err, pkgerrors.Forbidden)
	_, err = h.lifecycle.GetIssueView(ctx, resolverDan, id)
	requireCode(t, err, pkgerrors.Forbidden)
	_, err = h.lifecycle.GetIssueView(ctx, adminPriya, 4242)
	requireCode(t, err, pkgerrors.IssueNotFound)

	require.NoError(t, h.lifecycle.AssignIssue(ctx, adminPriya, id, resolverDan.ID))
	_, err = h.lifecycle.GetIssueView(ctx, resolverDan, id)
	require.NoError(t, err)
	_, err = h.lifecycle.GetIssueView(ctx, resolverMei, id)
	requireCode(t, err, pkgerrors.Forbidden)
}

func TestReporterDashboard(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOptions{})
	first := h.submit(t, reporterAsha, "First")
	second := h.submit(t, reporterAsha, "Second")
	h.submit(t, reporterBen, "Not Asha's")
	require.NoError(t, h.lifecycle.AssignIssue(ctx, adminPriya, first, resolverMei.ID))
	require.NoError(t, h.lifecycle.ProposeSolution(ctx, resolverMei, first, "Sorted"))

	items, err := h.lifecycle.ListReporterIssues(ctx, reporterAsha, baserepo.ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second, items[0].Issue.ID)
	assert.Equal(t, first, items[1].Issue.ID)
	assert.Empty(t, items[0].SolutionText)
	assert.Equal(t, "Sorted", items[1].SolutionText)
	assert.Equal(t, "Mei Tan", items[1].ResolverName)
	require.NotNil(t, items[1].ResolvedAt)

	page, err := h.lifecycle.ListReporterIssues(ctx, reporterAsha, baserepo.ListOptions{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first, page[0].Issue.ID)

	_, err = h.lifecycle.ListReporterIssues(ctx, reporterAsha, baserepo.ListOptions{Limit: 1000})
	requireCode(t, err, pkgerrors.InvalidParams)
	_, err = h.lifecycle.ListReporterIssues(ctx, adminPriya, baserepo.ListOptions{})
	requireCode(t, err, pkgerrors.Forbidden)
}

func TestAdminDashboard(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOptions{})
	assigned := h.submit(t, reporterAsha, "Assigned one")
	waiting := h.submit(t, reporterBen, "Waiting one")
	require.NoError(t, h.lifecycle.AssignIssue(ctx, adminPriya, assigned, resolverDan.ID))

	dashboard, err := h.lifecycle.ListAdminIssues(ctx, adminPriya, baserepo.ListOptions{})
	require.NoError(t, err)
	require.Len(t, dashboard.Issues, 2)
	byID := map[int64]model.AdminIssue{}
	for _, item := range dashboard.Issues {
		byID[item.Issue.ID] = item
	}
	assert.True(t, byID[assigned].Assigned)
	assert.False(t, byID[waiting].Assigned)
	assert.Equal(t, "Ben Okafor", byID[waiting].ReporterName)

	require.Len(t, dashboard.Assignable, 1)
	assert.Equal(t, waiting, dashboard.Assignable[0].ID)

	require.Len(t, dashboard.Resolvers, 2)
	assert.Equal(t, "Daniel Kim", dashboard.Resolvers[0].Name)
	assert.Equal(t, "Mei Tan", dashboard.Resolvers[1].Name)

	_, err = h.lifecycle.ListAdminIssues(ctx, resolverDan, baserepo.ListOptions{})
	requireCode(t, err, pkgerrors.Forbidden)
}

func TestResolverDashboard(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOptions{})
	mine := h.submit(t, reporterAsha, "Mine")
	theirs := h.submit(t, reporterAsha, "Theirs")
	require.NoError(t, h.lifecycle.AssignIssue(ctx, adminPriya, mine, resolverDan.ID))
	require.NoError(t, h.lifecycle.AssignIssue(ctx, adminPriya, theirs, resolverMei.ID))
	require.NoError(t, h.lifecycle.ProposeSolution(ctx, resolverDan, mine, "Done"))

	items, err := h.lifecycle.ListResolverIssues(ctx, resolverDan, baserepo.ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, mine, items[0].Issue.ID)
	assert.Equal(t, "Asha Rao", items[0].ReporterName)
	assert.Equal(t, "Done", items[0].SolutionText)
	assert.NotZero(t, items[0].SolutionID)
}
