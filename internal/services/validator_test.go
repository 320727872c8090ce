package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestParsePaymentCallback(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	txID, auctionID, userID := uuid.New(), uuid.New(), uuid.New()
	valid := `{"transaction_id":"` + txID.String() + `","auction_id":"` + auctionID.String() +
		`","user_id":"` + userID.String() + `","amount":500,"status":"PAID","reference":"inv-1"}`

	cb, err := v.ParsePaymentCallback([]byte(valid))
	if err != nil {
		t.Fatalf("ParsePaymentCallback: %v", err)
	}
	if cb.TransactionID != txID || cb.AuctionID != auctionID || cb.UserID != userID || cb.Amount != 500 || cb.Status != CallbackStatusPaid {
		t.Errorf("unexpected callback: %+v", cb)
	}

	invalid := map[string]string{
		"not json":        `{"transaction_id":`,
		"missing amount":  `{"transaction_id":"` + txID.String() + `","auction_id":"` + auctionID.String() + `","user_id":"` + userID.String() + `","status":"PAID"}`,
		"fractional":      `{"transaction_id":"` + txID.String() + `","auction_id":"` + auctionID.String() + `","user_id":"` + userID.String() + `","amount":5.5,"status":"PAID"}`,
		"unknown status":  `{"transaction_id":"` + txID.String() + `","auction_id":"` + auctionID.String() + `","user_id":"` + userID.String() + `","amount":500,"status":"MAYBE"}`,
		"bad uuid":        `{"transaction_id":"nope","auction_id":"` + auctionID.String() + `","user_id":"` + userID.String() + `","amount":500,"status":"PAID"}`,
		"extra property":  `{"transaction_id":"` + txID.String() + `","auction_id":"` + auctionID.String() + `","user_id":"` + userID.String() + `","amount":500,"status":"PAID","admin":true}`,
		"negative amount": `{"transaction_id":"` + txID.String() + `","auction_id":"` + auctionID.String() + `","user_id":"` + userID.String() + `","amount":-1,"status":"FAILED"}`,
	}
	for name, body := range invalid {
		t.Run(name, func(t *testing.T) {
			if _, err := v.ParsePaymentCallback([]byte(body)); !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v; want ErrValidation", err)
			}
		})
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	if err := v.Validate("nope", []byte(`{}`)); err == nil || errors.Is(err, ErrValidation) {
		t.Errorf("err = %v; want unknown schema error", err)
	}
}
