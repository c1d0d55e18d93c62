package handler

import (
	"net/http"
	"strconv"

	"fieldops-backend/internal/middleware"
	"fieldops-backend/internal/model"
	"fieldops-backend/internal/service"
	"fieldops-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

func (h *PaymentHandler) RegisterRoutes(router *gin.RouterGroup) {
	payments := router.Group("/api/payments")
	{
		payments.POST("", middleware.RequireRole(model.RoleAdmin, model.RoleEngineer), h.RegisterPayment)
		payments.GET("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleEngineer), h.GetPayment)
		payments.POST("/:id/apply", middleware.RequireRole(model.RoleAdmin, model.RoleEngineer), h.ApplyRemainder)
	}

	clients := router.Group("/api/clients")
	{
		clients.GET("/:id/payments", middleware.RequireRole(model.RoleAdmin, model.RoleEngineer), h.ListClientPayments)
		clients.GET("/:id/balance", middleware.RequireRole(model.RoleAdmin, model.RoleEngineer), h.GetClientBalance)
	}
}

// RegisterPayment records an incoming payment and applies it to incomes
// @Summary      Register payment
// @Description  Converts the received amount to USD and applies it to the selected incomes in the order given
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RegisterPaymentRequest  true  "Register Payment Payload"
// @Success      201      {object}  response.Response{data=service.PaymentResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Router       /api/payments [post]
func (h *PaymentHandler) RegisterPayment(c *gin.Context) {
	var req service.RegisterPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	payment, err := h.paymentService.RegisterPayment(c.Request.Context(), userIDStr, req)
	if err != nil {
		status := statusForError(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, payment))
}

// ApplyRemainder applies a payment's unapplied balance to further incomes
// @Summary      Apply payment remainder
// @Description  Applies the dormant unapplied balance of an existing payment to the named incomes
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                         true  "Payment ID"
// @Param        payload  body      service.ApplyRemainderRequest  true  "Apply Remainder Payload"
// @Success      200      {object}  response.Response{data=service.PaymentResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/payments/{id}/apply [post]
func (h *PaymentHandler) ApplyRemainder(c *gin.Context) {
	var req service.ApplyRemainderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	payment, err := h.paymentService.ApplyRemainder(c.Request.Context(), userIDStr, c.Param("id"), req)
	if err != nil {
		status := statusForError(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, payment))
}

// GetPayment returns a payment with its applied links
// @Summary      Get payment
// @Description  Retrieves a payment by ID, including the incomes it was applied to
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Payment ID"
// @Success      200  {object}  response.Response{data=service.PaymentResponse}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/payments/{id} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.paymentService.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := statusForError(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, payment))
}

// ListClientPayments returns a client's most recent payments
// @Summary      List client payments
// @Description  Retrieves the most recent payments recorded for a client
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id     path      string  true   "Client ID"
// @Param        limit  query     int     false  "Number of payments to return (default 20)"
// @Success      200    {object}  response.Response{data=[]service.PaymentResponse}
// @Failure      500    {object}  response.Response
// @Router       /api/clients/{id}/payments [get]
func (h *PaymentHandler) ListClientPayments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	payments, err := h.paymentService.ListClientPayments(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, payments))
}

// GetClientBalance returns a client's billing summary
// @Summary      Get client balance
// @Description  Returns the total paid and outstanding USD amounts and overdue income count for a client
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response{data=service.ClientBalanceResponse}
// @Failure      500  {object}  response.Response
// @Router       /api/clients/{id}/balance [get]
func (h *PaymentHandler) GetClientBalance(c *gin.Context) {
	balance, err := h.paymentService.OutstandingBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, balance))
}
