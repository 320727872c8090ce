package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/estatehub/backend/internal/services"
)

func TestHTTPGateway_Initiate(t *testing.T) {
	var got struct {
		ExternalID string            `json:"external_id"`
		Amount     decimal.Decimal   `json:"amount"`
		Metadata   map[string]string `json:"metadata"`
	}
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		check.Equal(t, "/v2/invoices", r.URL.Path)
		user, pass, _ = r.BasicAuth()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"inv_123","invoice_url":"https://pay.example/inv_123"}`))
	}))
	defer srv.Close()

	gw := NewHTTP(Config{BaseURL: srv.URL + "/", APIKey: "key_test"})
	req := services.DepositRequest{TransactionID: uuid.New(), AuctionID: uuid.New(), UserID: uuid.New(), Amount: 50025}

	handle, err := gw.Initiate(context.Background(), req)
	assert.NoError(t, err)
	check.Equal(t, "inv_123", handle.Reference)
	check.Equal(t, "https://pay.example/inv_123", handle.RedirectURL)
	check.Equal(t, req.TransactionID.String(), got.ExternalID)
	check.True(t, got.Amount.Equal(decimal.RequireFromString("500.25")))
	check.Equal(t, req.AuctionID.String(), got.Metadata["auction_id"])
	check.Equal(t, "key_test", user)
	check.Equal(t, "", pass)
}

func TestHTTPGateway_InitiateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `{}`},
		{"empty id", http.StatusOK, `{"invoice_url":"https://pay.example"}`},
		{"bad json", http.StatusOK, `{"id":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTP(Config{BaseURL: srv.URL}).Initiate(context.Background(), services.DepositRequest{Amount: 100})
			check.Error(t, err)
		})
	}
}

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"transaction_id":"x","status":"PAID"}`)
	sig := Sign("s3cret", body)

	check.NoError(t, Verify("s3cret", sig, body))
	check.True(t, errors.Is(Verify("other", sig, body), ErrBadSignature))
	check.True(t, errors.Is(Verify("s3cret", sig, append(body, ' ')), ErrBadSignature))
	check.True(t, errors.Is(Verify("s3cret", "zz-not-hex", body), ErrBadSignature))
	check.True(t, errors.Is(Verify("s3cret", "", body), ErrBadSignature))

	gw := NewHTTP(Config{CallbackSecret: "s3cret"})
	check.NoError(t, gw.VerifyCallback(sig, body))
	sb := NewSandbox(Config{CallbackSecret: "s3cret"})
	check.NoError(t, sb.VerifyCallback(sig, body))
}

func TestSandbox_Initiate(t *testing.T) {
	sb := NewSandbox(Config{ReturnURL: "https://app.example/deposit/return"})
	req := services.DepositRequest{TransactionID: uuid.New(), Amount: 500}

	handle, err := sb.Initiate(context.Background(), req)
	assert.NoError(t, err)
	check.Equal(t, "sandbox-"+req.TransactionID.String(), handle.Reference)

	u, err := url.Parse(handle.RedirectURL)
	assert.NoError(t, err)
	check.Equal(t, "app.example", u.Host)
	check.Equal(t, req.TransactionID.String(), u.Query().Get("transaction_id"))
}

func TestToMajor(t *testing.T) {
	check.Equal(t, "12.34", ToMajor(1234, 2).StringFixed(2))
	check.Equal(t, "1234", ToMajor(1234, 0).String())
}
