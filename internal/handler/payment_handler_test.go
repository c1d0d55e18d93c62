package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fieldops-backend/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// stubPaymentService returns a fixed error from GetPayment so the handler's
// status mapping can be checked in isolation.
type stubPaymentService struct {
	getErr error
}

func (s stubPaymentService) RegisterPayment(_ context.Context, _ string, _ service.RegisterPaymentRequest) (service.PaymentResponse, error) {
	return service.PaymentResponse{}, nil
}
func (s stubPaymentService) ApplyRemainder(_ context.Context, _ string, _ string, _ service.ApplyRemainderRequest) (service.PaymentResponse, error) {
	return service.PaymentResponse{}, nil
}
func (s stubPaymentService) GetPayment(_ context.Context, _ string) (service.PaymentResponse, error) {
	return service.PaymentResponse{}, s.getErr
}
func (s stubPaymentService) ListClientPayments(_ context.Context, _ string, _ int) ([]service.PaymentResponse, error) {
	return nil, nil
}
func (s stubPaymentService) OutstandingBalance(_ context.Context, _ string) (service.ClientBalanceResponse, error) {
	return service.ClientBalanceResponse{}, nil
}

func TestGetPayment_StatusByErrorKind(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"malformed id", fmt.Errorf("invalid payment id: bad uuid"), http.StatusBadRequest},
		{"unknown id", fmt.Errorf("payment not found: %w", gorm.ErrRecordNotFound), http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewPaymentHandler(stubPaymentService{getErr: tc.err})
			router := gin.New()
			router.GET("/api/payments/:id", h.GetPayment)

			req := httptest.NewRequest(http.MethodGet, "/api/payments/whatever", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}
