package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/estatehub/backend/internal/services"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw callback body.
const SignatureHeader = "X-Callback-Signature"

// DefaultMinorUnitExponent is the number of decimals between the engine's
// minor units and the gateway's major-unit amounts.
const DefaultMinorUnitExponent = 2

var ErrBadSignature = errors.New("gateway: callback signature mismatch")

// Config configures both gateway implementations.
type Config struct {
	BaseURL        string
	APIKey         string
	CallbackSecret string
	ReturnURL      string
	Exponent       int32
}

// HTTPGateway creates hosted payment invoices over the gateway's REST API.
type HTTPGateway struct {
	cfg    Config
	client *http.Client
}

func NewHTTP(cfg Config) *HTTPGateway {
	if cfg.Exponent == 0 {
		cfg.Exponent = DefaultMinorUnitExponent
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPGateway{cfg: cfg, client: &http.Client{Timeout: 15 * time.Second}}
}

type invoiceRequest struct {
	ExternalID  string          `json:"external_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	SuccessURL  string          `json:"success_redirect_url,omitempty"`
	Metadata    map[string]any  `json:"metadata"`
}

type invoiceResponse struct {
	ID         string `json:"id"`
	InvoiceURL string `json:"invoice_url"`
}

// Initiate creates an invoice whose external id is the engine's transaction id.
func (g *HTTPGateway) Initiate(ctx context.Context, req services.DepositRequest) (*services.GatewayHandle, error) {
	body, err := json.Marshal(invoiceRequest{
		ExternalID:  req.TransactionID.String(),
		Amount:      ToMajor(req.Amount, g.cfg.Exponent),
		Description: "Auction deposit " + req.AuctionID.String(),
		SuccessURL:  g.cfg.ReturnURL,
		Metadata: map[string]any{
			"auction_id": req.AuctionID.String(),
			"user_id":    req.UserID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal invoice: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v2/invoices", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create invoice request: %w", err)
	}
	httpReq.SetBasicAuth(g.cfg.APIKey, "")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway create invoice failed: %s", resp.Status)
	}

	var out invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode invoice: %w", err)
	}
	if out.ID == "" {
		return nil, errors.New("gateway: empty invoice id")
	}
	return &services.GatewayHandle{Reference: out.ID, RedirectURL: out.InvoiceURL}, nil
}

func (g *HTTPGateway) VerifyCallback(signature string, body []byte) error {
	return Verify(g.cfg.CallbackSecret, signature, body)
}

// Sandbox stands in for the gateway in development. It returns a local
// redirect and accepts callbacks signed with the configured secret.
type Sandbox struct {
	cfg Config
}

func NewSandbox(cfg Config) *Sandbox {
	return &Sandbox{cfg: cfg}
}

func (s *Sandbox) Initiate(_ context.Context, req services.DepositRequest) (*services.GatewayHandle, error) {
	ref := "sandbox-" + req.TransactionID.String()
	redirect := s.cfg.ReturnURL
	if redirect == "" {
		redirect = "http://localhost:8080/sandbox/pay"
	}
	q := url.Values{}
	q.Set("reference", ref)
	q.Set("transaction_id", req.TransactionID.String())
	return &services.GatewayHandle{Reference: ref, RedirectURL: redirect + "?" + q.Encode()}, nil
}

func (s *Sandbox) VerifyCallback(signature string, body []byte) error {
	return Verify(s.cfg.CallbackSecret, signature, body)
}

// ToMajor converts minor units to the gateway's decimal amount.
func ToMajor(minor int64, exponent int32) decimal.Decimal {
	return decimal.New(minor, -exponent)
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against body in constant time.
func Verify(secret, signature string, body []byte) error {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}
