package match

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	matchrepo "github.com/Ramsey-B/sage/internal/repositories/match"
	sagecontext "github.com/Ramsey-B/sage/pkg/context"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/review"
)

// Register registers match result routes
func Register(g *echo.Group) {
	g.GET("/jobs/:jobId/matches", ListMatches)
	g.GET("/jobs/:jobId/matches/summary", MatchSummary)
	g.GET("/matches/:id", GetMatch)
	g.PATCH("/matches/:id/review", ReviewMatch)
}

// ListMatches lists match results for a job, paged and ordered by
// confidence descending
func ListMatches(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := sagecontext.GetTenantID(ctx)

	jobID := c.Param("jobId")

	var filter models.MatchFilter
	if err := c.Bind(&filter); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}

	ctx, repo, err := ectoinject.GetContext[*matchrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	page, err := repo.ListByJob(ctx, tenantID, jobID, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, page)
}

// MatchSummary returns match counts per status for a job
func MatchSummary(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := sagecontext.GetTenantID(ctx)

	jobID := c.Param("jobId")

	ctx, repo, err := ectoinject.GetContext[*matchrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	counts, err := repo.CountByStatus(ctx, tenantID, jobID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, counts)
}

// GetMatch gets a match result by ID
func GetMatch(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := sagecontext.GetTenantID(ctx)

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*matchrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	match, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, match)
}

// ReviewMatch applies a reviewer decision to a match. The owning job must
// be in a terminal state and the request must carry the match's current
// version.
func ReviewMatch(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := sagecontext.GetTenantID(ctx)

	id := c.Param("id")

	var req models.ReviewRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, svc, err := ectoinject.GetContext[*review.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	match, err := svc.Review(ctx, tenantID, id, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, match)
}
