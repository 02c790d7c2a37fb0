package controller

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"safevoice/internal/grievance/middleware"
	"safevoice/internal/grievance/model"
	"safevoice/internal/grievance/service"
	pkgerrors "safevoice/pkg/errors"
	"safevoice/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const (
	attachmentsField    = "attachments[]"
	attachmentsFieldAlt = "attachments"
	multipartMemory     = 4 << 20
)

// IssueController handles issue lifecycle HTTP endpoints.
type IssueController struct {
	lifecycle       *service.LifecycleService
	maxRequestBytes int64
}

// NewIssueController creates an IssueController. Request bodies larger than
// maxRequestBytes are rejected before they are read into memory.
func NewIssueController(lifecycle *service.LifecycleService, maxRequestBytes int64) *IssueController {
	if maxRequestBytes <= 0 {
		maxRequestBytes = 2*service.MaxAttachmentBytes + 64<<10
	}
	return &IssueController{lifecycle: lifecycle, maxRequestBytes: maxRequestBytes}
}

// Register mounts the issue routes on group.
func (h *IssueController) Register(group *gin.RouterGroup) {
	issues := group.Group("/issues")
	issues.POST("", h.Submit)
	issues.GET("/:id", h.Get)
	issues.PUT("/:id", h.Edit)
	issues.DELETE("/:id", h.Delete)
	issues.POST("/:id/acknowledge", h.Acknowledge)
	issues.POST("/:id/assignment", h.Assign)
	issues.POST("/:id/solution", h.ProposeSolution)
	issues.PUT("/:id/solution", h.ReviseSolution)
	issues.DELETE("/:id/solution", h.WithdrawSolution)
}

// Submit handles a multipart issue submission with optional evidence files.
func (h *IssueController) Submit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxRequestBytes)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			response.Error(c, pkgerrors.New(pkgerrors.AttachmentSizeExceeded))
			return
		}
		response.BadRequest(c, "Invalid multipart form")
		return
	}

	uploads, err := readUploads(c.Request.MultipartForm)
	if err != nil {
		response.BadRequest(c, "Invalid attachment")
		return
	}

	id, err := h.lifecycle.SubmitIssue(c.Request.Context(), middleware.PrincipalFrom(c), service.SubmitInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Category:    c.PostForm("category"),
		Anonymous:   parseCheckbox(c.PostForm("anonymous")),
		Attachments: uploads,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, "Issue submitted", SubmitIssueResponse{ID: id, Status: string(model.StatusOpen)})
}

// Get returns the issue view for the caller.
func (h *IssueController) Get(c *gin.Context) {
	issueID, ok := issueIDParam(c)
	if !ok {
		return
	}

	view, err := h.lifecycle.GetIssueView(c.Request.Context(), middleware.PrincipalFrom(c), issueID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, toIssueViewResponse(view))
}

// Edit replaces title, description and category of an unassigned issue.
func (h *IssueController) Edit(c *gin.Context) {
	issueID, ok := issueIDParam(c)
	if !ok {
		return
	}
	var req EditIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	err := h.lifecycle.EditIssue(c.Request.Context(), middleware.PrincipalFrom(c), issueID, service.EditInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, "Issue updated", nil)
}

// Delete removes an issue and everything attached to it.
func (h *IssueController) Delete(c *gin.Context) {
	issueID, ok := issueIDParam(c)
	if !ok {
		return
	}

	if err := h.lifecycle.DeleteIssue(c.Request.Context(), middleware.PrincipalFrom(c), issueID); err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, "Issue deleted", nil)
}

// Acknowledge records that the reporter has seen the resolution.
func (h *IssueController) Acknowledge(c *gin.Context) {
	issueID, ok := issueIDParam(c)
	if !ok {
		return
	}

	if err := h.lifecycle.AcknowledgeResolution(c.Request.Context(), middleware.PrincipalFrom(c), issueID); err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, "Issue acknowledged", nil)
}

// Assign binds the issue to a resolver.
func (h *IssueController) Assign(c *gin.Context) {
	issueID, ok := issueIDParam(c)
	if !ok {
		return
	}
	var req AssignIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ResolverID <= 0 {
		response.BadRequest(c, "Invalid resolver id")
		return
	}

	if err := h.lifecycle.AssignIssue(c.Request.Context(), middleware.PrincipalFrom(c), issueID, req.ResolverID); err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, "Issue assigned", nil)
}

// ProposeSolution submits the assigned resolver's solution.
func (h *IssueController) ProposeSolution(c *gin.Context) {
	issueID, ok := issueIDParam(c)
	if !ok {
		return
	}
	var req SolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	if err := h.lifecycle.ProposeSolution(c.Request.Context(), middleware.PrincipalFrom(c), issueID, req.Solution); err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, "Solution submitted", nil)
}

// ReviseSolution replaces the solution text.
func (h *IssueController) ReviseSolution(c *gin.Context) {
	issueID, ok := issueIDParam(c)
	if !ok {
		return
	}
	var req SolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	if err := h.lifecycle.ReviseSolution(c.Request.Context(), middleware.PrincipalFrom(c), issueID, req.Solution); err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, "Solution updated", nil)
}

// WithdrawSolution deletes the solution.
func (h *IssueController) WithdrawSolution(c *gin.Context) {
	issueID, ok := issueIDParam(c)
	if !ok {
		return
	}

	if err := h.lifecycle.WithdrawSolution(c.Request.Context(), middleware.PrincipalFrom(c), issueID); err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, "Solution deleted", nil)
}

func issueIDParam(c *gin.Context) (int64, bool) {
	issueID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || issueID <= 0 {
		response.BadRequest(c, "Invalid issue id")
		return 0, false
	}
	return issueID, true
}

func readUploads(form *multipart.Form) ([]model.AttachmentUpload, error) {
	if form == nil {
		return nil, nil
	}
	headers := make([]*multipart.FileHeader, 0, len(form.File[attachmentsField])+len(form.File[attachmentsFieldAlt]))
	headers = append(headers, form.File[attachmentsField]...)
	headers = append(headers, form.File[attachmentsFieldAlt]...)
	uploads := make([]model.AttachmentUpload, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, fmt.Errorf("read %s failed: %w", fh.Filename, err)
		}
		uploads = append(uploads, model.AttachmentUpload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return uploads, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func parseCheckbox(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// EditIssueRequest defines the issue edit payload.
type EditIssueRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description" binding:"required"`
	Category    string `json:"category" binding:"required"`
}

// AssignIssueRequest defines the assignment payload.
type AssignIssueRequest struct {
	ResolverID int64 `json:"resolver_id" binding:"required"`
}

// SolutionRequest defines the solution payload.
type SolutionRequest struct {
	Solution string `json:"solution" binding:"required"`
}

// SubmitIssueResponse defines the submission response payload.
type SubmitIssueResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// IssueResponse defines the issue payload shared by views and dashboards.
type IssueResponse struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	Anonymous    bool   `json:"anonymous"`
	Status       string `json:"status"`
	Acknowledged bool   `json:"user_acknowledged"`
	ReporterName string `json:"reporter_name,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// StatusLogResponse defines one audit trail entry.
type StatusLogResponse struct {
	Status    string `json:"status"`
	ActorRole string `json:"actor_role"`
	UpdatedBy string `json:"updated_by"`
	Remark    string `json:"remark"`
	CreatedAt string `json:"created_at"`
}

// AttachmentResponse defines one evidence reference.
type AttachmentResponse struct {
	URL         string `json:"url"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	Checksum    string `json:"checksum"`
}

// SolutionResponse defines the live solution of an issue.
type SolutionResponse struct {
	ID         int64  `json:"id"`
	Text       string `json:"text"`
	ResolvedAt string `json:"resolved_at"`
	UpdatedAt  string `json:"updated_at"`
}

// ResolverResponse defines a resolver directory entry.
type ResolverResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Designation string `json:"designation"`
}

// IssueViewResponse defines the issue detail payload.
type IssueViewResponse struct {
	Issue       IssueResponse        `json:"issue"`
	AssignedAt  string               `json:"assigned_at,omitempty"`
	Resolver    *ResolverResponse    `json:"resolver,omitempty"`
	Solution    *SolutionResponse    `json:"solution,omitempty"`
	History     []StatusLogResponse  `json:"history"`
	Attachments []AttachmentResponse `json:"attachments"`
}

func toIssueResponse(issue model.Issue, reporterName string) IssueResponse {
	return IssueResponse{
		ID:           issue.ID,
		Title:        issue.Title,
		Description:  issue.Description,
		Category:     issue.Category,
		Anonymous:    issue.Anonymous,
		Status:       string(issue.Status),
		Acknowledged: issue.Acknowledged,
		ReporterName: reporterName,
		CreatedAt:    formatTime(issue.CreatedAt),
		UpdatedAt:    formatTime(issue.UpdatedAt),
	}
}

func toResolverResponse(r model.Resolver) ResolverResponse {
	return ResolverResponse{ID: r.ID, Name: r.Name, Designation: r.Designation}
}

func toIssueViewResponse(view model.IssueView) IssueViewResponse {
	out := IssueViewResponse{
		Issue:       toIssueResponse(view.Issue, view.ReporterName),
		History:     make([]StatusLogResponse, 0, len(view.History)),
		Attachments: make([]AttachmentResponse, 0, len(view.Attachments)),
	}
	if view.Assignment != nil {
		out.AssignedAt = formatTime(view.Assignment.AssignedAt)
	}
	if view.Resolver != nil {
		r := toResolverResponse(*view.Resolver)
		out.Resolver = &r
	}
	if view.Solution != nil {
		out.Solution = &SolutionResponse{
			ID:         view.Solution.ID,
			Text:       view.Solution.Text,
			ResolvedAt: formatTime(view.Solution.ResolvedAt),
			UpdatedAt:  formatTime(view.Solution.UpdatedAt),
		}
	}
	for _, e := range view.History {
		out.History = append(out.History, StatusLogResponse{
			Status:    string(e.Status),
			ActorRole: string(e.ActorRole),
			UpdatedBy: e.ActorRole.DisplayName(),
			Remark:    e.Remark,
			CreatedAt: formatTime(e.CreatedAt),
		})
	}
	for _, a := range view.Attachments {
		out.Attachments = append(out.Attachments, AttachmentResponse{
			URL:         a.URL,
			FileName:    a.FileName,
			ContentType: a.ContentType,
			SizeBytes:   a.SizeBytes,
			Checksum:    a.Checksum,
		})
	}
	return out
}
