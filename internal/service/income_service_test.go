package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldops-backend/internal/exchange"
	"fieldops-backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fakeRateRepo struct {
	schedules map[uuid.UUID]*model.ClientRate
}

func (f *fakeRateRepo) Create(_ context.Context, rate *model.ClientRate) error {
	rate.ID = uuid.New()
	f.schedules[rate.ClientID] = rate
	return nil
}
func (f *fakeRateRepo) FindActiveByClient(_ context.Context, clientID uuid.UUID) (*model.ClientRate, error) {
	schedule, ok := f.schedules[clientID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return schedule, nil
}
func (f *fakeRateRepo) ListByClient(_ context.Context, _ uuid.UUID, _ bool) ([]model.ClientRate, error) {
	return nil, nil
}
func (f *fakeRateRepo) DeactivateForClient(_ context.Context, clientID uuid.UUID, _ time.Time) error {
	delete(f.schedules, clientID)
	return nil
}

type fakeProjectRepo struct{}

func (fakeProjectRepo) Create(_ context.Context, _ *model.Project) error { return nil }
func (fakeProjectRepo) FindByID(_ context.Context, _ uuid.UUID) (*model.Project, error) {
	return nil, gorm.ErrRecordNotFound
}
func (fakeProjectRepo) List(_ context.Context, _ *uuid.UUID, _, _ int) ([]model.Project, int64, error) {
	return nil, 0, nil
}
func (fakeProjectRepo) Update(_ context.Context, _ *model.Project) error { return nil }
func (fakeProjectRepo) Delete(_ context.Context, _ uuid.UUID) error      { return nil }

// failingConverter simulates an unreachable rate source.
type failingConverter struct{}

func (failingConverter) Convert(_ context.Context, _ decimal.Decimal, _ string) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, exchange.ErrRateUnavailable
}
func (failingConverter) ConvertFromSettlement(_ context.Context, _ decimal.Decimal, _ string) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, exchange.ErrRateUnavailable
}

type incomeFixture struct {
	svc     IncomeService
	incomes *fakeIncomeRepo
	rates   *fakeRateRepo
	audits  *fakeAuditRepo
	payerID uuid.UUID
	userID  string
}

func newIncomeFixture(t *testing.T, converter exchange.Converter) *incomeFixture {
	t.Helper()

	payerID := uuid.New()
	clients := &fakeClientRepo{clients: map[uuid.UUID]*model.Client{
		payerID: {ID: payerID, CompanyName: "Acme Mining"},
	}}
	incomes := &fakeIncomeRepo{incomes: map[uuid.UUID]*model.Income{}}
	rates := &fakeRateRepo{schedules: map[uuid.UUID]*model.ClientRate{}}
	audits := &fakeAuditRepo{}

	svc := NewIncomeService(incomes, rates, clients, fakeProjectRepo{}, audits, fakeTxManager{}, converter)

	return &incomeFixture{
		svc:     svc,
		incomes: incomes,
		rates:   rates,
		audits:  audits,
		payerID: payerID,
		userID:  uuid.New().String(),
	}
}

func (fx *incomeFixture) installSchedule() {
	fx.rates.schedules[fx.payerID] = &model.ClientRate{
		ID:               uuid.New(),
		ClientID:         fx.payerID,
		HourlyRate:       decimal.NewFromFloat(17.5),
		HalfDayRate:      decimal.NewFromInt(80),
		FullDayRate:      decimal.NewFromInt(140),
		OvertimeHourRate: decimal.NewFromInt(20),
		Active:           true,
	}
}

func (fx *incomeFixture) createRequest(hours string) CreateIncomeRequest {
	return CreateIncomeRequest{
		ServiceClientID: fx.payerID.String(),
		PayerClientID:   fx.payerID.String(),
		Activity:        "pump inspection",
		HoursWorked:     hours,
		ServiceDate:     "2026-02-10",
	}
}

func TestCreateIncome_PricesAgainstSchedule(t *testing.T) {
	fx := newIncomeFixture(t, fakeConverter{rate: decimal.NewFromFloat(0.05)})
	fx.installSchedule()

	resp, err := fx.svc.CreateIncome(context.Background(), fx.userID, fx.createRequest("7"))
	if err != nil {
		t.Fatal(err)
	}

	if resp.RateType != model.RateFullDay {
		t.Errorf("rate type = %s, want FULL_DAY", resp.RateType)
	}
	if resp.TotalUSD != "140.0000" {
		t.Errorf("total_usd = %s, want 140.0000", resp.TotalUSD)
	}
	if resp.RemainingUSD != resp.TotalUSD {
		t.Errorf("remaining_usd = %s, want %s", resp.RemainingUSD, resp.TotalUSD)
	}
	if resp.PaymentStatus != model.StatusPending {
		t.Errorf("status = %s, want PENDING", resp.PaymentStatus)
	}
	if resp.DueDate != "2026-03-12" {
		t.Errorf("due_date = %s, want 2026-03-12 (service date + 30 days)", resp.DueDate)
	}
	if len(fx.audits.entries) != 1 || fx.audits.entries[0].Action != model.ActionCreateIncome {
		t.Errorf("audit entries = %+v, want one CREATE_INCOME", fx.audits.entries)
	}
}

func TestCreateIncome_ManualRateSkipsSchedule(t *testing.T) {
	// No schedule installed: a manual rate must still succeed.
	fx := newIncomeFixture(t, fakeConverter{rate: decimal.NewFromFloat(0.05)})

	manual := "500"
	req := fx.createRequest("7")
	req.ManualRate = &manual

	resp, err := fx.svc.CreateIncome(context.Background(), fx.userID, req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.RateType != model.RateManual {
		t.Errorf("rate type = %s, want MANUAL", resp.RateType)
	}
	if resp.TotalUSD != "500.0000" {
		t.Errorf("total_usd = %s, want 500.0000", resp.TotalUSD)
	}
}

func TestCreateIncome_NoScheduleFails(t *testing.T) {
	fx := newIncomeFixture(t, fakeConverter{rate: decimal.NewFromFloat(0.05)})

	_, err := fx.svc.CreateIncome(context.Background(), fx.userID, fx.createRequest("7"))
	if !errors.Is(err, ErrNoActiveRate) {
		t.Fatalf("err = %v, want ErrNoActiveRate", err)
	}
	if len(fx.incomes.incomes) != 0 {
		t.Error("failed pricing still persisted an income")
	}
}

func TestCreateIncome_RateSourceDownFails(t *testing.T) {
	fx := newIncomeFixture(t, failingConverter{})
	fx.installSchedule()

	// The income must not be written with a guessed conversion rate.
	_, err := fx.svc.CreateIncome(context.Background(), fx.userID, fx.createRequest("7"))
	if !errors.Is(err, exchange.ErrRateUnavailable) {
		t.Fatalf("err = %v, want ErrRateUnavailable", err)
	}
	if len(fx.incomes.incomes) != 0 {
		t.Error("income persisted despite unavailable conversion rate")
	}
}

func TestCreateIncome_NegativeHours(t *testing.T) {
	fx := newIncomeFixture(t, fakeConverter{rate: decimal.NewFromFloat(0.05)})
	fx.installSchedule()

	_, err := fx.svc.CreateIncome(context.Background(), fx.userID, fx.createRequest("-1"))
	if !errors.Is(err, ErrInvalidHours) {
		t.Fatalf("err = %v, want ErrInvalidHours", err)
	}
}

func TestCreateIncome_RejectsZeroTotal(t *testing.T) {
	// A zero-total income would stay PENDING with nothing to settle, so
	// creation must refuse it outright.
	fx := newIncomeFixture(t, fakeConverter{rate: decimal.NewFromFloat(0.05)})
	fx.installSchedule()

	_, err := fx.svc.CreateIncome(context.Background(), fx.userID, fx.createRequest("0"))
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
	if len(fx.incomes.incomes) != 0 {
		t.Error("zero-total income was persisted")
	}

	manual := "0"
	req := fx.createRequest("7")
	req.ManualRate = &manual
	_, err = fx.svc.CreateIncome(context.Background(), fx.userID, req)
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("manual zero rate: err = %v, want ErrInvalidAmount", err)
	}
}

func TestCorrectIncome_OnlyUntouchedIncomes(t *testing.T) {
	fx := newIncomeFixture(t, fakeConverter{rate: decimal.NewFromFloat(0.05)})
	fx.installSchedule()

	created, err := fx.svc.CreateIncome(context.Background(), fx.userID, fx.createRequest("7"))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := fx.svc.CorrectIncome(context.Background(), fx.userID, created.ID, CorrectIncomeRequest{RateApplied: "95"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.RateType != model.RateManual || resp.TotalUSD != "95.0000" || resp.RemainingUSD != "95.0000" {
		t.Errorf("correction gave type=%s total=%s remaining=%s", resp.RateType, resp.TotalUSD, resp.RemainingUSD)
	}

	// Simulate money applied: corrections must now be refused.
	id, _ := uuid.Parse(created.ID)
	fx.incomes.incomes[id].RemainingUSD = decimal.NewFromInt(10)

	_, err = fx.svc.CorrectIncome(context.Background(), fx.userID, created.ID, CorrectIncomeRequest{RateApplied: "80"})
	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("err = %v, want ErrInvalidTarget", err)
	}
}

func TestCorrectIncome_RejectsZeroRate(t *testing.T) {
	fx := newIncomeFixture(t, fakeConverter{rate: decimal.NewFromFloat(0.05)})
	fx.installSchedule()

	created, err := fx.svc.CreateIncome(context.Background(), fx.userID, fx.createRequest("7"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = fx.svc.CorrectIncome(context.Background(), fx.userID, created.ID, CorrectIncomeRequest{RateApplied: "0"})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestSetVoided_Toggles(t *testing.T) {
	fx := newIncomeFixture(t, fakeConverter{rate: decimal.NewFromFloat(0.05)})
	fx.installSchedule()

	created, err := fx.svc.CreateIncome(context.Background(), fx.userID, fx.createRequest("5"))
	if err != nil {
		t.Fatal(err)
	}

	voided, err := fx.svc.SetVoided(context.Background(), fx.userID, created.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !voided.Voided {
		t.Error("income not voided")
	}

	restored, err := fx.svc.SetVoided(context.Background(), fx.userID, created.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Voided {
		t.Error("income not reactivated")
	}
}
