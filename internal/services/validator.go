package services

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const SchemaPaymentCallback = "payment_callback"

// Callback statuses reported by the payment gateway.
const (
	CallbackStatusPaid   = "PAID"
	CallbackStatusFailed = "FAILED"
)

// ErrValidation can be used with errors.Is to detect payload schema failures.
var ErrValidation = errors.New("validation failed")

// PaymentCallback is the gateway's deposit notification after schema validation.
type PaymentCallback struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	AuctionID     uuid.UUID `json:"auction_id"`
	UserID        uuid.UUID `json:"user_id"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	Reference     string    `json:"reference,omitempty"`
}

// Validator holds the compiled payload schemas, keyed by schema name.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded *.json schema. A file named
// payment_callback.v1.json is registered as "payment_callback".
func NewValidator() (*Validator, error) {
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	schemas := make(map[string]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimSuffix(e.Name(), ".json"), ".v1")
		data, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		c := jsonschema.NewCompiler()
		c.AssertFormat = true
		id := "https://estatehub.dev/schemas/" + name
		if err := c.AddResource(id, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %q: %w", name, err)
		}
		schemas[name], err = c.Compile(id)
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", name, err)
		}
	}
	return &Validator{schemas: schemas}, nil
}

// Validate rejects raw if it is not JSON or does not match the named schema.
func (v *Validator) Validate(schema string, raw []byte) error {
	s, ok := v.schemas[schema]
	if !ok {
		return fmt.Errorf("unknown schema %q", schema)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// ParsePaymentCallback validates raw against the callback schema and decodes it.
func (v *Validator) ParsePaymentCallback(raw []byte) (*PaymentCallback, error) {
	if err := v.Validate(SchemaPaymentCallback, raw); err != nil {
		return nil, err
	}
	var cb PaymentCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return &cb, nil
}
