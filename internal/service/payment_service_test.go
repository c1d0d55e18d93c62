package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldops-backend/internal/model"
	"fieldops-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- In-memory fakes ---

type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// flakyTxManager loses the serialization race on the first `failures`
// commits, the way two allocations contending for the same income rows
// would, then lets the transaction through.
type flakyTxManager struct {
	failures int
	attempts int
}

func (m *flakyTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	m.attempts++
	if m.attempts <= m.failures {
		return &pgconn.PgError{Code: "40001"}
	}
	return fn(ctx)
}

type fakeConverter struct {
	rate decimal.Decimal // applied to any non-USD currency
}

func (f fakeConverter) Convert(_ context.Context, amount decimal.Decimal, fromCurrency string) (decimal.Decimal, decimal.Decimal, error) {
	if fromCurrency == model.SettlementCurrency {
		return amount, decimal.NewFromInt(1), nil
	}
	return amount.Mul(f.rate), f.rate, nil
}

func (f fakeConverter) ConvertFromSettlement(_ context.Context, amount decimal.Decimal, toCurrency string) (decimal.Decimal, decimal.Decimal, error) {
	if toCurrency == model.SettlementCurrency {
		return amount, decimal.NewFromInt(1), nil
	}
	return amount.Div(f.rate), decimal.NewFromInt(1).Div(f.rate), nil
}

type fakeClientRepo struct {
	clients map[uuid.UUID]*model.Client
}

func (f *fakeClientRepo) Create(_ context.Context, c *model.Client) error { return nil }
func (f *fakeClientRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}
func (f *fakeClientRepo) List(_ context.Context, _ string, _, _ int) ([]model.Client, int64, error) {
	return nil, 0, nil
}
func (f *fakeClientRepo) Update(_ context.Context, _ *model.Client) error { return nil }
func (f *fakeClientRepo) Delete(_ context.Context, _ uuid.UUID) error     { return nil }

type fakeIncomeRepo struct {
	incomes map[uuid.UUID]*model.Income
}

func (f *fakeIncomeRepo) Create(_ context.Context, income *model.Income) error {
	income.ID = uuid.New()
	f.incomes[income.ID] = income
	return nil
}
func (f *fakeIncomeRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Income, error) {
	income, ok := f.incomes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *income
	return &cp, nil
}
func (f *fakeIncomeRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Income, error) {
	return f.FindByID(ctx, id)
}
func (f *fakeIncomeRepo) ListOutstandingByPayer(_ context.Context, _ uuid.UUID) ([]model.Income, error) {
	return nil, nil
}
func (f *fakeIncomeRepo) ListOverdue(_ context.Context) ([]model.Income, error) { return nil, nil }
func (f *fakeIncomeRepo) List(_ context.Context, _ repository.IncomeListFilter) ([]model.Income, int64, error) {
	return nil, 0, nil
}
func (f *fakeIncomeRepo) Update(_ context.Context, income *model.Income) error {
	cp := *income
	f.incomes[income.ID] = &cp
	return nil
}
func (f *fakeIncomeRepo) SetVoided(_ context.Context, id uuid.UUID, voided bool) error {
	if income, ok := f.incomes[id]; ok {
		income.Voided = voided
	}
	return nil
}

type fakePaymentRepo struct {
	payments map[uuid.UUID]*model.Payment
	links    []model.PaymentLink
}

func (f *fakePaymentRepo) Create(_ context.Context, p *model.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	f.payments[p.ID] = &cp
	return nil
}
func (f *fakePaymentRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}
func (f *fakePaymentRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return f.FindByID(ctx, id)
}
func (f *fakePaymentRepo) Update(_ context.Context, p *model.Payment) error {
	cp := *p
	f.payments[p.ID] = &cp
	return nil
}
func (f *fakePaymentRepo) ListByClient(_ context.Context, _ uuid.UUID, _ int) ([]model.Payment, error) {
	return nil, nil
}
func (f *fakePaymentRepo) CreateLink(_ context.Context, link *model.PaymentLink) error {
	f.links = append(f.links, *link)
	return nil
}
func (f *fakePaymentRepo) ListLinksByPayment(_ context.Context, paymentID uuid.UUID) ([]model.PaymentLink, error) {
	var out []model.PaymentLink
	for _, l := range f.links {
		if l.PaymentID == paymentID {
			out = append(out, l)
		}
	}
	return out, nil
}
func (f *fakePaymentRepo) GetClientBalance(_ context.Context, _ uuid.UUID) (repository.ClientBalance, error) {
	return repository.ClientBalance{}, nil
}

type fakeAuditRepo struct {
	entries []model.AuditLog
}

func (f *fakeAuditRepo) Create(_ context.Context, entry *model.AuditLog) error {
	f.entries = append(f.entries, *entry)
	return nil
}
func (f *fakeAuditRepo) List(_ context.Context, _, _ int) ([]model.AuditLog, int64, error) {
	return nil, 0, nil
}

// --- Fixture ---

type paymentFixture struct {
	svc      PaymentService
	payments *fakePaymentRepo
	incomes  *fakeIncomeRepo
	audits   *fakeAuditRepo
	clientID uuid.UUID
	userID   string
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	return newPaymentFixtureTx(t, fakeTxManager{})
}

func newPaymentFixtureTx(t *testing.T, txManager repository.TransactionManager) *paymentFixture {
	t.Helper()

	clientID := uuid.New()
	clients := &fakeClientRepo{clients: map[uuid.UUID]*model.Client{
		clientID: {ID: clientID, CompanyName: "Acme Mining"},
	}}
	incomes := &fakeIncomeRepo{incomes: map[uuid.UUID]*model.Income{}}
	payments := &fakePaymentRepo{payments: map[uuid.UUID]*model.Payment{}}
	audits := &fakeAuditRepo{}

	svc := NewPaymentService(payments, incomes, clients, audits, txManager, fakeConverter{rate: decimal.NewFromFloat(0.05)}, nil)

	return &paymentFixture{
		svc:      svc,
		payments: payments,
		incomes:  incomes,
		audits:   audits,
		clientID: clientID,
		userID:   uuid.New().String(),
	}
}

func (fx *paymentFixture) addIncome(t *testing.T, remaining string) uuid.UUID {
	t.Helper()
	r, _ := decimal.NewFromString(remaining)
	income := &model.Income{
		PayerClientID: fx.clientID,
		Activity:      "site maintenance",
		TotalUSD:      r,
		RemainingUSD:  r,
		PaymentStatus: model.StatusPending,
		DueDate:       time.Now().AddDate(0, 0, 30),
	}
	if err := fx.incomes.Create(context.Background(), income); err != nil {
		t.Fatal(err)
	}
	return income.ID
}

// --- Tests ---

func TestRegisterPayment_ConvertsAndAllocates(t *testing.T) {
	fx := newPaymentFixture(t)
	first := fx.addIncome(t, "40")
	second := fx.addIncome(t, "40")

	// 1200 local at 0.05 = 60 USD: fills the first income, half of the second.
	resp, err := fx.svc.RegisterPayment(context.Background(), fx.userID, RegisterPaymentRequest{
		ClientID:    fx.clientID.String(),
		PaymentDate: "2026-03-15",
		Currency:    "MXN",
		Amount:      "1200",
		IncomeIDs:   []string{first.String(), second.String()},
	})
	if err != nil {
		t.Fatal(err)
	}

	if resp.AmountUSD != "60.0000" {
		t.Errorf("amount_usd = %s, want 60.0000", resp.AmountUSD)
	}
	if resp.RemainingUSD != "0.0000" {
		t.Errorf("remaining_usd = %s, want 0.0000", resp.RemainingUSD)
	}
	if resp.AmountLocal == nil || *resp.AmountLocal != "1200.0000" {
		t.Errorf("amount_local = %v, want 1200.0000", resp.AmountLocal)
	}
	if len(resp.Links) != 2 {
		t.Fatalf("got %d links, want 2", len(resp.Links))
	}
	if resp.Links[0].AmountAppliedUSD != "40.0000" || resp.Links[1].AmountAppliedUSD != "20.0000" {
		t.Errorf("links applied %s and %s, want 40.0000 and 20.0000",
			resp.Links[0].AmountAppliedUSD, resp.Links[1].AmountAppliedUSD)
	}

	a, _ := fx.incomes.FindByID(context.Background(), first)
	if a.PaymentStatus != model.StatusPaid || !a.RemainingUSD.IsZero() {
		t.Errorf("first income status=%s remaining=%s, want PAID/0", a.PaymentStatus, a.RemainingUSD)
	}
	b, _ := fx.incomes.FindByID(context.Background(), second)
	if b.PaymentStatus != model.StatusPartial || !b.RemainingUSD.Equal(decimal.NewFromInt(20)) {
		t.Errorf("second income status=%s remaining=%s, want PARTIAL/20", b.PaymentStatus, b.RemainingUSD)
	}

	if len(fx.audits.entries) != 1 || fx.audits.entries[0].Action != model.ActionRegisterPayment {
		t.Errorf("audit entries = %+v, want one REGISTER_PAYMENT", fx.audits.entries)
	}
}

func TestRegisterPayment_USDNeedsNoLocalAmount(t *testing.T) {
	fx := newPaymentFixture(t)
	target := fx.addIncome(t, "100")

	resp, err := fx.svc.RegisterPayment(context.Background(), fx.userID, RegisterPaymentRequest{
		ClientID:    fx.clientID.String(),
		PaymentDate: "2026-03-15",
		Currency:    "USD",
		Amount:      "100",
		IncomeIDs:   []string{target.String()},
	})
	if err != nil {
		t.Fatal(err)
	}

	if resp.AmountLocal != nil {
		t.Errorf("amount_local = %v, want nil for USD payments", *resp.AmountLocal)
	}
	if resp.ConversionRate != "1.000000" {
		t.Errorf("conversion_rate = %s, want 1.000000", resp.ConversionRate)
	}
}

func TestRegisterPayment_RejectsForeignIncome(t *testing.T) {
	fx := newPaymentFixture(t)

	// Income owed by a different payer.
	foreign := &model.Income{
		PayerClientID: uuid.New(),
		TotalUSD:      decimal.NewFromInt(50),
		RemainingUSD:  decimal.NewFromInt(50),
		PaymentStatus: model.StatusPending,
	}
	if err := fx.incomes.Create(context.Background(), foreign); err != nil {
		t.Fatal(err)
	}

	_, err := fx.svc.RegisterPayment(context.Background(), fx.userID, RegisterPaymentRequest{
		ClientID:    fx.clientID.String(),
		PaymentDate: "2026-03-15",
		Currency:    "USD",
		Amount:      "50",
		IncomeIDs:   []string{foreign.ID.String()},
	})
	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("err = %v, want ErrInvalidTarget", err)
	}
	if len(fx.payments.links) != 0 {
		t.Error("rejected payment still wrote links")
	}
}

func TestRegisterPayment_RejectsVoidedIncome(t *testing.T) {
	fx := newPaymentFixture(t)
	target := fx.addIncome(t, "50")
	fx.incomes.incomes[target].Voided = true

	_, err := fx.svc.RegisterPayment(context.Background(), fx.userID, RegisterPaymentRequest{
		ClientID:    fx.clientID.String(),
		PaymentDate: "2026-03-15",
		Currency:    "USD",
		Amount:      "50",
		IncomeIDs:   []string{target.String()},
	})
	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("err = %v, want ErrInvalidTarget", err)
	}
}

func TestRegisterPayment_RejectsDustAmount(t *testing.T) {
	fx := newPaymentFixture(t)
	target := fx.addIncome(t, "50")

	_, err := fx.svc.RegisterPayment(context.Background(), fx.userID, RegisterPaymentRequest{
		ClientID:    fx.clientID.String(),
		PaymentDate: "2026-03-15",
		Currency:    "USD",
		Amount:      "0.005",
		IncomeIDs:   []string{target.String()},
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestApplyRemainder(t *testing.T) {
	fx := newPaymentFixture(t)
	first := fx.addIncome(t, "40")

	// Overpay: 100 USD against 40 leaves a 60 USD dormant remainder.
	resp, err := fx.svc.RegisterPayment(context.Background(), fx.userID, RegisterPaymentRequest{
		ClientID:    fx.clientID.String(),
		PaymentDate: "2026-03-15",
		Currency:    "USD",
		Amount:      "100",
		IncomeIDs:   []string{first.String()},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.RemainingUSD != "60.0000" {
		t.Fatalf("remaining_usd = %s, want 60.0000", resp.RemainingUSD)
	}

	// The remainder stays dormant until explicitly applied.
	later := fx.addIncome(t, "45")
	applied, err := fx.svc.ApplyRemainder(context.Background(), fx.userID, resp.ID, ApplyRemainderRequest{
		IncomeIDs: []string{later.String()},
	})
	if err != nil {
		t.Fatal(err)
	}

	if applied.RemainingUSD != "15.0000" {
		t.Errorf("remaining_usd = %s, want 15.0000", applied.RemainingUSD)
	}
	income, _ := fx.incomes.FindByID(context.Background(), later)
	if income.PaymentStatus != model.StatusPaid {
		t.Errorf("income status = %s, want PAID", income.PaymentStatus)
	}
	if len(applied.Links) != 2 {
		t.Errorf("got %d links, want 2 across both allocations", len(applied.Links))
	}
}

func TestApplyRemainder_NoRemainder(t *testing.T) {
	fx := newPaymentFixture(t)
	first := fx.addIncome(t, "40")

	resp, err := fx.svc.RegisterPayment(context.Background(), fx.userID, RegisterPaymentRequest{
		ClientID:    fx.clientID.String(),
		PaymentDate: "2026-03-15",
		Currency:    "USD",
		Amount:      "40",
		IncomeIDs:   []string{first.String()},
	})
	if err != nil {
		t.Fatal(err)
	}

	another := fx.addIncome(t, "10")
	_, err = fx.svc.ApplyRemainder(context.Background(), fx.userID, resp.ID, ApplyRemainderRequest{
		IncomeIDs: []string{another.String()},
	})
	if !errors.Is(err, ErrNoRemainder) {
		t.Fatalf("err = %v, want ErrNoRemainder", err)
	}
}

func TestRegisterPayment_RetriesSerializationFailure(t *testing.T) {
	tx := &flakyTxManager{failures: 2}
	fx := newPaymentFixtureTx(t, tx)
	target := fx.addIncome(t, "40")

	resp, err := fx.svc.RegisterPayment(context.Background(), fx.userID, RegisterPaymentRequest{
		ClientID:    fx.clientID.String(),
		PaymentDate: "2026-03-15",
		Currency:    "USD",
		Amount:      "40",
		IncomeIDs:   []string{target.String()},
	})
	if err != nil {
		t.Fatal(err)
	}

	if tx.attempts != 3 {
		t.Errorf("tx attempts = %d, want 3 (two lost races, one commit)", tx.attempts)
	}
	if resp.RemainingUSD != "0.0000" {
		t.Errorf("remaining_usd = %s, want 0.0000", resp.RemainingUSD)
	}
	if len(fx.payments.payments) != 1 {
		t.Errorf("got %d payment rows, want 1 after retried commit", len(fx.payments.payments))
	}
	income, _ := fx.incomes.FindByID(context.Background(), target)
	if income.PaymentStatus != model.StatusPaid || !income.RemainingUSD.IsZero() {
		t.Errorf("income status=%s remaining=%s, want PAID/0", income.PaymentStatus, income.RemainingUSD)
	}
}

func TestRegisterPayment_ConflictAfterRetriesExhausted(t *testing.T) {
	tx := &flakyTxManager{failures: 10}
	fx := newPaymentFixtureTx(t, tx)
	target := fx.addIncome(t, "40")

	_, err := fx.svc.RegisterPayment(context.Background(), fx.userID, RegisterPaymentRequest{
		ClientID:    fx.clientID.String(),
		PaymentDate: "2026-03-15",
		Currency:    "USD",
		Amount:      "40",
		IncomeIDs:   []string{target.String()},
	})
	if !errors.Is(err, ErrAllocationConflict) {
		t.Fatalf("err = %v, want ErrAllocationConflict", err)
	}

	if tx.attempts != 3 {
		t.Errorf("tx attempts = %d, want 3 before giving up", tx.attempts)
	}
	if len(fx.payments.payments) != 0 || len(fx.payments.links) != 0 {
		t.Error("conflicted allocation left ledger writes behind")
	}
	income, _ := fx.incomes.FindByID(context.Background(), target)
	if !income.RemainingUSD.Equal(decimal.NewFromInt(40)) {
		t.Errorf("income remaining = %s, want untouched 40", income.RemainingUSD)
	}
}
