package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/smallbiznis/schoolpay/internal/gateway"
	"github.com/smallbiznis/schoolpay/internal/observability/tracing"
	"go.uber.org/zap"
)

const (
	signatureHeader = "x-paystack-signature"
	defaultTimeout  = 8 * time.Second
)

type Adapter struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	callbackURL   string
	client        *http.Client
	log           *zap.Logger
}

func New(cfg config.PaystackConfig, log *zap.Logger) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Adapter{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		callbackURL:   cfg.CallbackURL,
		client:        tracing.WrapHTTPClient(&http.Client{Timeout: timeout}, "paystack"),
		log:           log.Named("gateway.paystack"),
	}
}

func (a *Adapter) Provider() string {
	return gateway.ProviderPaystack
}

func (a *Adapter) NewReference() string {
	return "SP-" + ulid.Make().String()
}

type initializeBody struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// Initialize calls POST /transaction/initialize once. Any transport error or
// non-2xx answer is reported as ErrGatewayUnavailable so the parent can retry.
func (a *Adapter) Initialize(ctx context.Context, req gateway.InitializeRequest) (gateway.Session, error) {
	if a.secretKey == "" {
		return gateway.Session{}, gateway.ErrNotConfigured
	}
	callback := req.CallbackURL
	if callback == "" {
		callback = a.callbackURL
	}
	body, err := json.Marshal(initializeBody{
		Email:       req.Email,
		Amount:      req.AmountKobo,
		Currency:    req.Currency,
		Reference:   req.Reference,
		CallbackURL: callback,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return gateway.Session{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return gateway.Session{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		a.log.Warn("paystack initialize failed", zap.String("reference", req.Reference), zap.Error(err))
		return gateway.Session{}, fmt.Errorf("%w: %v", gateway.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	var decoded initializeResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&decoded)
	if resp.StatusCode >= http.StatusMultipleChoices || decodeErr != nil || !decoded.Status {
		a.log.Warn("paystack initialize rejected",
			zap.String("reference", req.Reference),
			zap.Int("status", resp.StatusCode),
			zap.String("message", decoded.Message),
		)
		return gateway.Session{}, gateway.ErrGatewayUnavailable
	}

	reference := decoded.Data.Reference
	if reference == "" {
		reference = req.Reference
	}
	return gateway.Session{
		Provider:         gateway.ProviderPaystack,
		Reference:        reference,
		AuthorizationURL: decoded.Data.AuthorizationURL,
		AccessCode:       decoded.Data.AccessCode,
	}, nil
}

// VerifyWebhook compares the hex HMAC-SHA512 of the raw body, keyed with the
// secret key, against x-paystack-signature.
func (a *Adapter) VerifyWebhook(payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return gateway.ErrNotConfigured
	}
	received := strings.TrimSpace(headers.Get(signatureHeader))
	if received == "" {
		return gateway.ErrInvalidSignature
	}
	if !hmac.Equal([]byte(strings.ToLower(received)), []byte(Sign(a.webhookSecret, payload))) {
		return gateway.ErrInvalidSignature
	}
	return nil
}

// Sign returns the signature Paystack would send for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type webhookEvent struct {
	Event string      `json:"event"`
	Data  webhookData `json:"data"`
}

type webhookData struct {
	ID        json.Number    `json:"id"`
	Reference string         `json:"reference"`
	Amount    int64          `json:"amount"`
	Currency  string         `json:"currency"`
	Status    string         `json:"status"`
	PaidAt    string         `json:"paid_at"`
	Metadata  map[string]any `json:"metadata"`
}

func (a *Adapter) ParseWebhook(payload []byte) (*gateway.Event, error) {
	var event webhookEvent
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&event); err != nil {
		return nil, gateway.ErrInvalidPayload
	}
	if strings.TrimSpace(event.Event) == "" {
		return nil, gateway.ErrInvalidPayload
	}

	eventID := event.Data.ID.String()
	if eventID == "" {
		eventID = event.Data.Reference
	}

	out := &gateway.Event{
		Provider:   gateway.ProviderPaystack,
		EventID:    event.Event + ":" + eventID,
		Type:       event.Event,
		Reference:  strings.TrimSpace(event.Data.Reference),
		AmountKobo: event.Data.Amount,
		Currency:   strings.ToUpper(strings.TrimSpace(event.Data.Currency)),
		Metadata:   flattenMetadata(event.Data.Metadata),
	}
	if paidAt, err := time.Parse(time.RFC3339, event.Data.PaidAt); err == nil {
		out.PaidAt = paidAt.UTC()
	}
	return out, nil
}

// Paystack echoes metadata back with whatever JSON types it was given.
func flattenMetadata(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		switch v := value.(type) {
		case string:
			out[key] = v
		case json.Number:
			out[key] = v.String()
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[key] = strconv.FormatBool(v)
		}
	}
	return out
}
