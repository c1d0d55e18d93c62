package service

import (
	"context"
	"encoding/json"
	"log"

	"fieldops-backend/internal/repository"
	ws "fieldops-backend/internal/websocket"

	"github.com/shopspring/decimal"
)

// ReminderService runs the daily overdue scan: every non-voided income past
// its due date that still carries a balance is summarized for the
// dashboard. Read-only; it never mutates the ledger.
type ReminderService interface {
	ScanOverdue(ctx context.Context) error
}

type reminderService struct {
	incomeRepo repository.IncomeRepository
	hub        *ws.Hub
}

func NewReminderService(incomeRepo repository.IncomeRepository, hub *ws.Hub) ReminderService {
	return &reminderService{incomeRepo: incomeRepo, hub: hub}
}

func (s *reminderService) ScanOverdue(ctx context.Context) error {
	overdue, err := s.incomeRepo.ListOverdue(ctx)
	if err != nil {
		return err
	}

	total := decimal.Zero
	for _, income := range overdue {
		total = total.Add(income.RemainingUSD)
	}

	log.Printf("Overdue scan: %d incomes past due, %s USD outstanding", len(overdue), total.StringFixed(2))

	if s.hub == nil || len(overdue) == 0 {
		return nil
	}

	payload, err := json.Marshal(ws.BillingEvent{
		Event: "overdue_incomes",
		Data: map[string]interface{}{
			"count":     len(overdue),
			"total_usd": total.StringFixed(2),
		},
	})
	if err != nil {
		return err
	}
	s.hub.Broadcast <- payload

	return nil
}
