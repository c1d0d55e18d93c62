package service

import (
	"errors"
	"testing"
	"time"

	"fieldops-backend/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func openIncome(remaining string) *model.Income {
	r, _ := decimal.NewFromString(remaining)
	return &model.Income{
		ID:            uuid.New(),
		TotalUSD:      r,
		RemainingUSD:  r,
		PaymentStatus: model.StatusPending,
	}
}

func usd(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

var allocDate = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func TestAllocate_ExactDistribution(t *testing.T) {
	a := openIncome("50")
	b := openIncome("30")

	links, leftover, err := allocate(uuid.New(), usd("60"), []*model.Income{a, b}, allocDate)
	if err != nil {
		t.Fatal(err)
	}

	if len(links) != 2 {
		t.Fatalf("got %d links, want 2", len(links))
	}
	if !links[0].AmountAppliedUSD.Equal(usd("50")) || !links[1].AmountAppliedUSD.Equal(usd("10")) {
		t.Errorf("applied %s and %s, want 50 and 10", links[0].AmountAppliedUSD, links[1].AmountAppliedUSD)
	}
	if !leftover.IsZero() {
		t.Errorf("leftover = %s, want 0", leftover)
	}

	if a.PaymentStatus != model.StatusPaid || !a.RemainingUSD.IsZero() {
		t.Errorf("first income: status=%s remaining=%s, want PAID/0", a.PaymentStatus, a.RemainingUSD)
	}
	if a.PaidDate == nil || !a.PaidDate.Equal(allocDate) {
		t.Errorf("first income paid date = %v, want %v", a.PaidDate, allocDate)
	}
	if b.PaymentStatus != model.StatusPartial || !b.RemainingUSD.Equal(usd("20")) {
		t.Errorf("second income: status=%s remaining=%s, want PARTIAL/20", b.PaymentStatus, b.RemainingUSD)
	}
}

func TestAllocate_OrderIsCallersOrder(t *testing.T) {
	a := openIncome("40")
	b := openIncome("40")

	// b first: the amount must land on b, not on a.
	links, _, err := allocate(uuid.New(), usd("25"), []*model.Income{b, a}, allocDate)
	if err != nil {
		t.Fatal(err)
	}

	if len(links) != 1 || links[0].IncomeID != b.ID {
		t.Fatalf("allocation did not follow the given order")
	}
	if !b.RemainingUSD.Equal(usd("15")) {
		t.Errorf("b remaining = %s, want 15", b.RemainingUSD)
	}
	if !a.RemainingUSD.Equal(usd("40")) || a.PaymentStatus != model.StatusPending {
		t.Errorf("a was touched: remaining=%s status=%s", a.RemainingUSD, a.PaymentStatus)
	}
}

func TestAllocate_OverpaymentKeepsLeftover(t *testing.T) {
	a := openIncome("40")

	links, leftover, err := allocate(uuid.New(), usd("100"), []*model.Income{a}, allocDate)
	if err != nil {
		t.Fatal(err)
	}

	if !links[0].AmountAppliedUSD.Equal(usd("40")) {
		t.Errorf("applied = %s, want 40", links[0].AmountAppliedUSD)
	}
	if !leftover.Equal(usd("60")) {
		t.Errorf("leftover = %s, want 60", leftover)
	}
	if a.PaymentStatus != model.StatusPaid {
		t.Errorf("status = %s, want PAID", a.PaymentStatus)
	}
}

func TestAllocate_ConservesAmount(t *testing.T) {
	targets := []*model.Income{openIncome("12.34"), openIncome("0.66"), openIncome("199.99")}
	amount := usd("87.65")

	links, leftover, err := allocate(uuid.New(), amount, targets, allocDate)
	if err != nil {
		t.Fatal(err)
	}

	sum := leftover
	for _, l := range links {
		sum = sum.Add(l.AmountAppliedUSD)
	}
	if !sum.Equal(amount) {
		t.Errorf("sum(links)+leftover = %s, want %s", sum, amount)
	}
	for _, inc := range targets {
		if inc.RemainingUSD.IsNegative() {
			t.Errorf("income %s went negative: %s", inc.ID, inc.RemainingUSD)
		}
	}
}

func TestAllocate_Rejections(t *testing.T) {
	t.Run("amount below minimum", func(t *testing.T) {
		a := openIncome("40")
		if _, _, err := allocate(uuid.New(), usd("0.009"), []*model.Income{a}, allocDate); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("err = %v, want ErrInvalidAmount", err)
		}
		if !a.RemainingUSD.Equal(usd("40")) {
			t.Error("rejected allocation mutated a target")
		}
	})

	t.Run("voided target", func(t *testing.T) {
		a := openIncome("40")
		v := openIncome("10")
		v.Voided = true
		if _, _, err := allocate(uuid.New(), usd("20"), []*model.Income{a, v}, allocDate); !errors.Is(err, ErrInvalidTarget) {
			t.Fatalf("err = %v, want ErrInvalidTarget", err)
		}
		// Rejection happens before any balance moves.
		if !a.RemainingUSD.Equal(usd("40")) {
			t.Error("rejected allocation mutated a target")
		}
	})

	t.Run("already paid target", func(t *testing.T) {
		p := openIncome("0")
		p.PaymentStatus = model.StatusPaid
		if _, _, err := allocate(uuid.New(), usd("20"), []*model.Income{p}, allocDate); !errors.Is(err, ErrInvalidTarget) {
			t.Fatalf("err = %v, want ErrInvalidTarget", err)
		}
	})

	t.Run("duplicate target", func(t *testing.T) {
		a := openIncome("40")
		if _, _, err := allocate(uuid.New(), usd("20"), []*model.Income{a, a}, allocDate); !errors.Is(err, ErrInvalidTarget) {
			t.Fatalf("err = %v, want ErrInvalidTarget", err)
		}
	})
}
