// Package gateway is the boundary to online payment providers. Only the
// contract lives here; provider wire formats stay inside their adapters.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const EventChargeSuccess = "charge.success"

var (
	ErrProviderNotFound   = errors.New("payment_provider_not_found")
	ErrNotConfigured      = errors.New("payment_provider_not_configured")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
)

type Gateway interface {
	Provider() string
	// NewReference returns a fresh transaction reference in the provider's format.
	NewReference() string
	Initialize(ctx context.Context, req InitializeRequest) (Session, error)
	// VerifyWebhook checks the raw body against the provider signature header.
	VerifyWebhook(payload []byte, headers http.Header) error
	// ParseWebhook decodes an already verified body.
	ParseWebhook(payload []byte) (*Event, error)
}

type InitializeRequest struct {
	Reference   string
	Email       string
	AmountKobo  int64
	Currency    string
	CallbackURL string
	Metadata    map[string]string
}

// Session is what the parent's browser needs to continue to checkout.
type Session struct {
	Provider         string `json:"provider"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
}

type Event struct {
	Provider   string
	EventID    string
	Type       string
	Reference  string
	AmountKobo int64
	Currency   string
	Metadata   map[string]string
	PaidAt     time.Time
}

// DedupKey identifies the event across deliveries.
func (e Event) DedupKey() string {
	return e.Provider + ":" + e.EventID
}
