package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestConvert_USDPassThrough(t *testing.T) {
	// No server: a USD amount must never hit the rate source.
	c := NewClient("http://127.0.0.1:1", time.Second)

	usd, rate, err := c.Convert(context.Background(), decimal.NewFromInt(250), "usd")
	if err != nil {
		t.Fatal(err)
	}
	if !usd.Equal(decimal.NewFromInt(250)) {
		t.Errorf("amount = %s, want 250", usd)
	}
	if !rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("rate = %s, want 1", rate)
	}
}

func TestConvert_SpotRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest/MXN" {
			t.Errorf("path = %s, want /latest/MXN", r.URL.Path)
		}
		w.Write([]byte(`{"result":"success","conversion_rates":{"USD":0.0571,"EUR":0.0523}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	usd, rate, err := c.Convert(context.Background(), decimal.NewFromInt(1000), "MXN")
	if err != nil {
		t.Fatal(err)
	}
	if !rate.Equal(decimal.NewFromFloat(0.0571)) {
		t.Errorf("rate = %s, want 0.0571", rate)
	}
	if !usd.Equal(decimal.NewFromFloat(57.1)) {
		t.Errorf("converted = %s, want 57.1", usd)
	}
}

func TestConvertFromSettlement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest/USD" {
			t.Errorf("path = %s, want /latest/USD", r.URL.Path)
		}
		w.Write([]byte(`{"conversion_rates":{"MXN":17.52}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	local, rate, err := c.ConvertFromSettlement(context.Background(), decimal.NewFromInt(100), "MXN")
	if err != nil {
		t.Fatal(err)
	}
	if !rate.Equal(decimal.NewFromFloat(17.52)) {
		t.Errorf("rate = %s, want 17.52", rate)
	}
	if !local.Equal(decimal.NewFromInt(1752)) {
		t.Errorf("converted = %s, want 1752", local)
	}
}

func TestConvert_FailuresAreRateUnavailable(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"missing target currency", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"conversion_rates":{"EUR":0.052}}`))
		}},
		{"non-positive rate", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"conversion_rates":{"USD":0}}`))
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}},
		{"upstream error status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			c := NewClient(srv.URL, time.Second)
			if _, _, err := c.Convert(context.Background(), decimal.NewFromInt(100), "MXN"); !errors.Is(err, ErrRateUnavailable) {
				t.Errorf("err = %v, want ErrRateUnavailable", err)
			}
		})
	}
}

func TestConvert_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 20*time.Millisecond)
	if _, _, err := c.Convert(context.Background(), decimal.NewFromInt(100), "MXN"); !errors.Is(err, ErrRateUnavailable) {
		t.Errorf("err = %v, want ErrRateUnavailable", err)
	}
}
