package rule

import (
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	rulerepo "github.com/Ramsey-B/sage/internal/repositories/rule"
	sagecontext "github.com/Ramsey-B/sage/pkg/context"
	"github.com/Ramsey-B/sage/pkg/models"
)

var validate = validator.New()

// Register registers reconciliation rule routes
func Register(g *echo.Group) {
	g.GET("", ListRules)
	g.GET("/:id", GetRule)
	g.POST("", CreateRule)
	g.PUT("/:id", UpdateRule)
	g.DELETE("/:id", DeleteRule)
}

// ListRules lists the tenant's rules. active=true narrows to active rules
// ordered by priority.
func ListRules(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := sagecontext.GetTenantID(ctx)

	ctx, repo, err := ectoinject.GetContext[*rulerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	var rules []models.ReconciliationRule
	if c.QueryParam("active") == "true" {
		rules, err = repo.ListActive(ctx, tenantID)
	} else {
		rules, err = repo.List(ctx, tenantID)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rules)
}

// GetRule gets a rule by ID
func GetRule(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := sagecontext.GetTenantID(ctx)

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*rulerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	rule, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, rule)
}

// CreateRule creates a new reconciliation rule
func CreateRule(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := sagecontext.GetTenantID(ctx)

	var req models.CreateRuleRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var conditions models.RuleConditions
	if err := json.Unmarshal(req.Conditions, &conditions); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "conditions must be a valid rule condition block")
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	rule := &models.ReconciliationRule{
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Priority:    req.Priority,
		IsActive:    isActive,
		Conditions:  req.Conditions,
	}

	ctx, repo, err := ectoinject.GetContext[*rulerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := repo.Create(ctx, rule)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, created)
}

// UpdateRule partially updates a rule
func UpdateRule(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := sagecontext.GetTenantID(ctx)

	id := c.Param("id")

	var req models.UpdateRuleRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if len(req.Conditions) > 0 {
		var conditions models.RuleConditions
		if err := json.Unmarshal(req.Conditions, &conditions); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "conditions must be a valid rule condition block")
		}
	}

	ctx, repo, err := ectoinject.GetContext[*rulerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	updated, err := repo.Update(ctx, tenantID, id, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, updated)
}

// DeleteRule soft deletes a rule
func DeleteRule(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := sagecontext.GetTenantID(ctx)

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*rulerepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}
