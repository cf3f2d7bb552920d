package job

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	jobrepo "github.com/Ramsey-B/sage/internal/repositories/job"
	sagecontext "github.com/Ramsey-B/sage/pkg/context"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/reconciler"
)

// Register registers reconciliation job routes
func Register(g *echo.Group) {
	g.POST("", SubmitJob)
	g.GET("", ListJobs)
	g.GET("/:jobId", GetJob)
	g.DELETE("/:jobId", CancelJob)
}

// SubmitJob submits a reconciliation job. Resubmitting the same request id
// while the job is still active returns the existing job.
func SubmitJob(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := sagecontext.GetTenantID(ctx)

	var req models.ReconciliationRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SubmittedBy == nil {
		if userID := sagecontext.GetUserID(ctx); userID != "" {
			req.SubmittedBy = &userID
		}
	}

	ctx, engine, err := ectoinject.GetContext[*reconciler.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	job, err := engine.Submit(ctx, tenantID, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, job)
}

// GetJob gets a job with its progress counters
func GetJob(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := sagecontext.GetTenantID(ctx)

	id := c.Param("jobId")

	ctx, repo, err := ectoinject.GetContext[*jobrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	job, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, job)
}

// ListJobs lists jobs for the tenant, newest first
func ListJobs(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := sagecontext.GetTenantID(ctx)

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}
	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "offset must be a non-negative integer")
		}
		offset = parsed
	}

	ctx, repo, err := ectoinject.GetContext[*jobrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	jobs, err := repo.List(ctx, tenantID, limit, offset)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, jobs)
}

// CancelJob requests cancellation of a pending or running job
func CancelJob(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := sagecontext.GetTenantID(ctx)

	id := c.Param("jobId")

	ctx, engine, err := ectoinject.GetContext[*reconciler.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := engine.Cancel(ctx, tenantID, id); err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "cancellation requested"})
}
