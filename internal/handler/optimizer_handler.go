package handler

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-optimizer/internal/dto"
	"github.com/noah-isme/course-optimizer/internal/middleware"
	"github.com/noah-isme/course-optimizer/internal/models"
	"github.com/noah-isme/course-optimizer/internal/service"
	appErrors "github.com/noah-isme/course-optimizer/pkg/errors"
	"github.com/noah-isme/course-optimizer/pkg/response"
)

type optimizerService interface {
	Start(ctx context.Context, req dto.StartOptimizerRunRequest, actorID string) (*dto.OptimizerRunResponse, error)
	Get(ctx context.Context, id string) (*dto.OptimizerRunResponse, error)
	List(ctx context.Context, req dto.OptimizerRunListRequest) ([]dto.OptimizerRunResponse, *models.Pagination, error)
	Status(ctx context.Context, id string) (*dto.OptimizerRunStatusResponse, error)
	Results(ctx context.Context, id string) (*dto.OptimizerResultsResponse, error)
	Export(ctx context.Context, id string, req dto.OptimizerExportRequest) (*dto.OptimizerExportResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.RunDownload, error)
}

// OptimizerHandler exposes optimizer run endpoints.
type OptimizerHandler struct {
	service optimizerService
}

// NewOptimizerHandler constructs the handler.
func NewOptimizerHandler(service optimizerService) *OptimizerHandler {
	return &OptimizerHandler{service: service}
}

// StartRun godoc
// @Summary Queue an optimizer run
// @Description Validates the window and priority, stores the run and hands it to the worker queue.
// @Tags Optimizer
// @Accept json
// @Produce json
// @Param payload body dto.StartOptimizerRunRequest true "Run request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /optimizer/runs [post]
func (h *OptimizerHandler) StartRun(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.StartOptimizerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid optimizer payload"))
		return
	}
	run, err := h.service.Start(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run)
}

// ListRuns godoc
// @Summary List optimizer runs
// @Tags Optimizer
// @Produce json
// @Param status query string false "QUEUED, RUNNING, COMPLETED or FAILED"
// @Param priority query string false "Priority filter"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /optimizer/runs [get]
func (h *OptimizerHandler) ListRuns(c *gin.Context) {
	var req dto.OptimizerRunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid query"))
		return
	}
	runs, pagination, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

// GetRun godoc
// @Summary Get an optimizer run
// @Tags Optimizer
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /optimizer/runs/{id} [get]
func (h *OptimizerHandler) GetRun(c *gin.Context) {
	run, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// RunStatus godoc
// @Summary Poll the progress of an optimizer run
// @Tags Optimizer
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /optimizer/runs/{id}/status [get]
func (h *OptimizerHandler) RunStatus(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// RunResults godoc
// @Summary Assignments and failed requests of a completed run
// @Tags Optimizer
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /optimizer/runs/{id}/results [get]
func (h *OptimizerHandler) RunResults(c *gin.Context) {
	results, err := h.service.Results(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// ExportRun godoc
// @Summary Export a completed run as CSV or PDF
// @Tags Optimizer
// @Accept json
// @Produce json
// @Param id path string true "Run ID"
// @Param payload body dto.OptimizerExportRequest true "Export format"
// @Success 201 {object} response.Envelope
// @Router /optimizer/runs/{id}/export [post]
func (h *OptimizerHandler) ExportRun(c *gin.Context) {
	var req dto.OptimizerExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation(err, "invalid export payload"))
		return
	}
	result, err := h.service.Export(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// DownloadExport godoc
// @Summary Download an exported run report
// @Tags Optimizer
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /optimizer/exports/{token} [get]
func (h *OptimizerHandler) DownloadExport(c *gin.Context) {
	token := c.Param("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.service.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export file"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), contentType(download.Filename), download.File, nil)
}

func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
