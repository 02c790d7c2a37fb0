package controller

import (
	"safevoice/internal/grievance/middleware"
	"safevoice/internal/grievance/service"
	baserepo "safevoice/pkg/repository"
	"safevoice/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// DashboardController serves the per-role issue lists.
type DashboardController struct {
	lifecycle *service.LifecycleService
}

func NewDashboardController(lifecycle *service.LifecycleService) *DashboardController {
	return &DashboardController{lifecycle: lifecycle}
}

// Register mounts the dashboard routes on group.
func (h *DashboardController) Register(group *gin.RouterGroup) {
	dashboard := group.Group("/dashboard")
	dashboard.GET("/reporter", h.Reporter)
	dashboard.GET("/admin", h.Admin)
	dashboard.GET("/resolver", h.Resolver)
}

func (h *DashboardController) Reporter(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	items, err := h.lifecycle.ListReporterIssues(c.Request.Context(), middleware.PrincipalFrom(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]ReporterIssueResponse, 0, len(items))
	for _, item := range items {
		row := ReporterIssueResponse{
			IssueResponse: toIssueResponse(item.Issue, ""),
			SolutionText:  item.SolutionText,
			ResolverName:  item.ResolverName,
		}
		if item.ResolvedAt != nil {
			row.ResolvedAt = formatTime(*item.ResolvedAt)
		}
		out = append(out, row)
	}
	response.Success(c, ReporterDashboardResponse{Issues: out})
}

func (h *DashboardController) Admin(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	dashboard, err := h.lifecycle.ListAdminIssues(c.Request.Context(), middleware.PrincipalFrom(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := AdminDashboardResponse{
		Issues:     make([]AdminIssueResponse, 0, len(dashboard.Issues)),
		Assignable: make([]AssignableIssueResponse, 0, len(dashboard.Assignable)),
		Resolvers:  make([]ResolverResponse, 0, len(dashboard.Resolvers)),
	}
	for _, item := range dashboard.Issues {
		out.Issues = append(out.Issues, AdminIssueResponse{
			IssueResponse: toIssueResponse(item.Issue, item.ReporterName),
			Assigned:      item.Assigned,
		})
	}
	for _, item := range dashboard.Assignable {
		out.Assignable = append(out.Assignable, AssignableIssueResponse{
			ID:        item.ID,
			Title:     item.Title,
			CreatedAt: formatTime(item.CreatedAt),
		})
	}
	for _, r := range dashboard.Resolvers {
		out.Resolvers = append(out.Resolvers, toResolverResponse(r))
	}
	response.Success(c, out)
}

func (h *DashboardController) Resolver(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	items, err := h.lifecycle.ListResolverIssues(c.Request.Context(), middleware.PrincipalFrom(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]ResolverIssueResponse, 0, len(items))
	for _, item := range items {
		out = append(out, ResolverIssueResponse{
			IssueResponse: toIssueResponse(item.Issue, item.ReporterName),
			AssignedAt:    formatTime(item.AssignedAt),
			SolutionID:    item.SolutionID,
			SolutionText:  item.SolutionText,
		})
	}
	response.Success(c, ResolverDashboardResponse{Issues: out})
}

func listOptions(c *gin.Context) (baserepo.ListOptions, bool) {
	var opts baserepo.ListOptions
	if err := c.ShouldBindQuery(&opts); err != nil {
		response.BadRequest(c, "Invalid pagination parameters")
		return baserepo.ListOptions{}, false
	}
	return opts, true
}

// ReporterIssueResponse is one row of the reporter dashboard.
type ReporterIssueResponse struct {
	IssueResponse
	SolutionText string `json:"solution_text,omitempty"`
	ResolvedAt   string `json:"resolved_at,omitempty"`
	ResolverName string `json:"resolver_name,omitempty"`
}

// ReporterDashboardResponse defines the reporter dashboard payload.
type ReporterDashboardResponse struct {
	Issues []ReporterIssueResponse `json:"issues"`
}

// AdminIssueResponse is one row of the admin dashboard.
type AdminIssueResponse struct {
	IssueResponse
	Assigned bool `json:"assigned"`
}

// AssignableIssueResponse is an issue waiting for a resolver.
type AssignableIssueResponse struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// AdminDashboardResponse defines the admin dashboard payload.
type AdminDashboardResponse struct {
	Issues     []AdminIssueResponse      `json:"issues"`
	Assignable []AssignableIssueResponse `json:"assignable"`
	Resolvers  []ResolverResponse        `json:"resolvers"`
}

// ResolverIssueResponse is one row of the resolver dashboard.
type ResolverIssueResponse struct {
	IssueResponse
	AssignedAt   string `json:"assigned_at"`
	SolutionID   int64  `json:"solution_id,omitempty"`
	SolutionText string `json:"solution_text,omitempty"`
}

// ResolverDashboardResponse defines the resolver dashboard payload.
type ResolverDashboardResponse struct {
	Issues []ResolverIssueResponse `json:"issues"`
}

