package handler

import (
	"net/http"

	"fieldops-backend/internal/middleware"
	"fieldops-backend/internal/model"
	"fieldops-backend/internal/service"
	"fieldops-backend/pkg/pagination"
	"fieldops-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type IncomeHandler struct {
	incomeService service.IncomeService
}

func NewIncomeHandler(incomeService service.IncomeService) *IncomeHandler {
	return &IncomeHandler{incomeService: incomeService}
}

func (h *IncomeHandler) RegisterRoutes(router *gin.RouterGroup) {
	incomes := router.Group("/api/incomes")
	{
		incomes.POST("", middleware.RequireRole(model.RoleAdmin, model.RoleEngineer), h.CreateIncome)
		incomes.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleEngineer), h.ListIncomes)
		incomes.GET("/outstanding", middleware.RequireRole(model.RoleAdmin, model.RoleEngineer), h.ListOutstanding)
		incomes.PUT("/:id/correct", middleware.RequireRole(model.RoleAdmin), h.CorrectIncome)
		incomes.PUT("/:id/void", middleware.RequireRole(model.RoleAdmin), h.VoidIncome)
		incomes.PUT("/:id/reactivate", middleware.RequireRole(model.RoleAdmin), h.ReactivateIncome)
	}
}

// CreateIncome logs a work entry and opens the receivable
// @Summary      Create income
// @Description  Prices the logged hours against the payer's rate schedule (or a manual rate) and records the receivable
// @Tags         incomes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateIncomeRequest  true  "Create Income Payload"
// @Success      201      {object}  response.Response{data=service.IncomeResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Router       /api/incomes [post]
func (h *IncomeHandler) CreateIncome(c *gin.Context) {
	var req service.CreateIncomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	income, err := h.incomeService.CreateIncome(c.Request.Context(), userIDStr, req)
	if err != nil {
		status := statusForError(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, income))
}

// ListIncomes returns a paginated list of incomes
// @Summary      List incomes
// @Description  Retrieves a paginated list of incomes, optionally filtered by payer, project or status
// @Tags         incomes
// @Security     BearerAuth
// @Produce      json
// @Param        payer_client_id  query     string  false  "Filter by payer client ID"
// @Param        project_id       query     string  false  "Filter by project ID"
// @Param        status           query     string  false  "Filter by status (PENDING, PARTIAL, PAID)"
// @Param        include_voided   query     bool    false  "Include voided incomes"
// @Param        page             query     int     false  "Page number (default 1)"
// @Param        limit            query     int     false  "Number of items per page (default 20)"
// @Success      200              {object}  response.Response{data=response.ListData}
// @Failure      500              {object}  response.Response
// @Router       /api/incomes [get]
func (h *IncomeHandler) ListIncomes(c *gin.Context) {
	p := pagination.Parse(c)

	filter := service.IncomeFilter{
		PayerClientID: c.Query("payer_client_id"),
		ProjectID:     c.Query("project_id"),
		Status:        c.Query("status"),
		IncludeVoided: c.Query("include_voided") == "true",
		Page:          p.Page,
		Limit:         p.Limit,
	}

	incomes, total, err := h.incomeService.ListIncomes(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, incomes, total, p.Page, p.Limit))
}

// ListOutstanding returns a payer's open incomes ordered by due date
// @Summary      List outstanding incomes
// @Description  Retrieves a payer's unpaid and partially paid incomes, oldest due date first
// @Tags         incomes
// @Security     BearerAuth
// @Produce      json
// @Param        payer_client_id  query     string  true  "Payer client ID"
// @Success      200              {object}  response.Response{data=[]service.IncomeResponse}
// @Failure      400              {object}  response.Response
// @Router       /api/incomes/outstanding [get]
func (h *IncomeHandler) ListOutstanding(c *gin.Context) {
	payerClientID := c.Query("payer_client_id")
	if payerClientID == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "payer_client_id is required"))
		return
	}

	incomes, err := h.incomeService.ListOutstanding(c.Request.Context(), payerClientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, incomes))
}

// CorrectIncome re-prices an income nothing has been applied to
// @Summary      Correct income
// @Description  Rewrites the applied rate of an income that has no payments applied yet
// @Tags         incomes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Income ID"
// @Param        payload  body      service.CorrectIncomeRequest  true  "Correct Income Payload"
// @Success      200      {object}  response.Response{data=service.IncomeResponse}
// @Failure      400      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/incomes/{id}/correct [put]
func (h *IncomeHandler) CorrectIncome(c *gin.Context) {
	var req service.CorrectIncomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	income, err := h.incomeService.CorrectIncome(c.Request.Context(), userIDStr, c.Param("id"), req)
	if err != nil {
		status := statusForError(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, income))
}

// VoidIncome excludes an income from balances and allocation
// @Summary      Void income
// @Description  Marks an income as voided so it no longer accepts payments or counts toward balances
// @Tags         incomes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Income ID"
// @Success      200  {object}  response.Response{data=service.IncomeResponse}
// @Failure      400  {object}  response.Response
// @Router       /api/incomes/{id}/void [put]
func (h *IncomeHandler) VoidIncome(c *gin.Context) {
	h.setVoided(c, true)
}

// ReactivateIncome restores a voided income
// @Summary      Reactivate income
// @Description  Clears the voided flag so the income counts toward balances again
// @Tags         incomes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Income ID"
// @Success      200  {object}  response.Response{data=service.IncomeResponse}
// @Failure      400  {object}  response.Response
// @Router       /api/incomes/{id}/reactivate [put]
func (h *IncomeHandler) ReactivateIncome(c *gin.Context) {
	h.setVoided(c, false)
}

func (h *IncomeHandler) setVoided(c *gin.Context, voided bool) {
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	income, err := h.incomeService.SetVoided(c.Request.Context(), userIDStr, c.Param("id"), voided)
	if err != nil {
		status := statusForError(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, income))
}
