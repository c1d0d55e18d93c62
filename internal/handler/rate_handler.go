package handler

import (
	"net/http"

	"fieldops-backend/internal/middleware"
	"fieldops-backend/internal/model"
	"fieldops-backend/internal/service"
	"fieldops-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type RateHandler struct {
	rateService service.RateService
}

func NewRateHandler(rateService service.RateService) *RateHandler {
	return &RateHandler{rateService: rateService}
}

func (h *RateHandler) RegisterRoutes(router *gin.RouterGroup) {
	rates := router.Group("/api/rates")
	{
		rates.POST("", middleware.RequireRole(model.RoleAdmin), h.CreateRate)
	}

	clients := router.Group("/api/clients")
	{
		clients.GET("/:id/rates", middleware.RequireRole(model.RoleAdmin, model.RoleEngineer), h.ListRates)
		clients.GET("/:id/rates/active", middleware.RequireRole(model.RoleAdmin, model.RoleEngineer), h.GetActiveRate)
	}
}

// CreateRate installs a new rate schedule for a client
// @Summary      Create rate schedule
// @Description  Installs a new tariff schedule for a client and closes out the previous active one
// @Tags         rates
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateRateRequest  true  "Create Rate Payload"
// @Success      201      {object}  response.Response{data=service.RateResponse}
// @Failure      400      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/rates [post]
func (h *RateHandler) CreateRate(c *gin.Context) {
	var req service.CreateRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	rate, err := h.rateService.CreateRate(c.Request.Context(), userIDStr, req)
	if err != nil {
		status := statusForError(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, rate))
}

// ListRates returns a client's rate schedules
// @Summary      List rate schedules
// @Description  Retrieves a client's rate schedules, newest first, optionally active only
// @Tags         rates
// @Security     BearerAuth
// @Produce      json
// @Param        id      path      string  true   "Client ID"
// @Param        active  query     bool    false  "Only return the active schedule"
// @Success      200     {object}  response.Response{data=[]service.RateResponse}
// @Failure      500     {object}  response.Response
// @Router       /api/clients/{id}/rates [get]
func (h *RateHandler) ListRates(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	rates, err := h.rateService.ListRates(c.Request.Context(), c.Param("id"), activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, rates))
}

// GetActiveRate returns a client's currently active rate schedule
// @Summary      Get active rate schedule
// @Description  Retrieves the rate schedule currently in force for a client
// @Tags         rates
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response{data=service.RateResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/clients/{id}/rates/active [get]
func (h *RateHandler) GetActiveRate(c *gin.Context) {
	rate, err := h.rateService.GetActiveRate(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusForError(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, rate))
}
