// Package webhook turns verified gateway callbacks into payment
// confirmations.
package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/schoolpay/internal/gateway"
	"github.com/smallbiznis/schoolpay/internal/idempotency"
	obscontext "github.com/smallbiznis/schoolpay/internal/observability/context"
	"github.com/smallbiznis/schoolpay/internal/observability/metrics"
	"github.com/smallbiznis/schoolpay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrEventAlreadyProcessed = errors.New("event_already_processed")

type Outcome string

const (
	OutcomeConfirmed        Outcome = "confirmed"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeRejected         Outcome = "rejected"
	OutcomeUnknownReference Outcome = "unknown_reference"
	OutcomeAlreadyConfirmed Outcome = "already_confirmed"
	OutcomeFailed           Outcome = "failed"
)

// Acknowledged reports whether the gateway should be told to stop retrying.
func (o Outcome) Acknowledged() bool {
	switch o {
	case OutcomeConfirmed, OutcomeDuplicate, OutcomeIgnored, OutcomeUnknownReference, OutcomeAlreadyConfirmed:
		return true
	}
	return false
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Gateways    *gateway.Registry
	Idempotency idempotency.Store
	Payments    domain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Ingester struct {
	log         *zap.Logger
	gateways    *gateway.Registry
	idempotency idempotency.Store
	payments    domain.Service
	metrics     *metrics.Metrics
}

func New(p Params) *Ingester {
	return &Ingester{
		log:         p.Log.Named("payment.webhook"),
		gateways:    p.Gateways,
		idempotency: p.Idempotency,
		payments:    p.Payments,
		metrics:     p.Metrics,
	}
}

// Ingest verifies, deduplicates and applies one gateway callback. The
// returned error is nil for every outcome the gateway should not retry
// except a duplicate, which returns ErrEventAlreadyProcessed.
func (i *Ingester) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (Outcome, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	log := i.log.With(
		zap.String("provider", provider),
		zap.String("remote_addr", obscontext.ClientIPFromContext(ctx)),
	)

	gw, err := i.gateways.Get(provider)
	if err != nil {
		return i.finish(ctx, provider, OutcomeRejected), err
	}
	if err := gw.VerifyWebhook(payload, headers); err != nil {
		log.Error("webhook signature rejected", zap.Error(err))
		return i.finish(ctx, provider, OutcomeRejected), gateway.ErrInvalidSignature
	}

	event, err := gw.ParseWebhook(payload)
	if err != nil {
		log.Warn("webhook payload unreadable", zap.Error(err))
		return i.finish(ctx, provider, OutcomeRejected), err
	}
	log = log.With(zap.String("event_type", event.Type), zap.String("reference", event.Reference))
	if event.Type != gateway.EventChargeSuccess {
		log.Debug("webhook event ignored")
		return i.finish(ctx, provider, OutcomeIgnored), nil
	}

	key := event.DedupKey()
	duplicate, err := i.idempotency.MarkSeen(ctx, idempotency.KindWebhookDedup, key)
	if err != nil {
		log.Error("webhook dedup failed", zap.Error(err))
		return i.finish(ctx, provider, OutcomeFailed), err
	}
	if duplicate {
		log.Info("webhook event already processed", zap.String("event_id", event.EventID))
		return i.finish(ctx, provider, OutcomeDuplicate), ErrEventAlreadyProcessed
	}

	payment, err := i.payments.ConfirmOnline(ctx, domain.ConfirmOnlineRequest{
		Provider:   provider,
		SchoolID:   event.Metadata["school_id"],
		Reference:  event.Reference,
		AmountKobo: event.AmountKobo,
		PaidAt:     event.PaidAt,
	})
	switch {
	case err == nil:
		log.Info("webhook confirmed payment",
			zap.String("payment_id", payment.ID.String()),
			zap.String("receipt_number", payment.ReceiptValue()),
		)
		return i.finish(ctx, provider, OutcomeConfirmed), nil
	case errors.Is(err, domain.ErrAlreadyConfirmed):
		log.Info("webhook for payment that is no longer pending")
		return i.finish(ctx, provider, OutcomeAlreadyConfirmed), nil
	case errors.Is(err, domain.ErrUnknownReference):
		log.Warn("webhook for unknown payment reference")
		return i.finish(ctx, provider, OutcomeUnknownReference), nil
	default:
		// Let the gateway's retry reach ConfirmOnline again.
		if ferr := i.idempotency.Forget(ctx, idempotency.KindWebhookDedup, key); ferr != nil {
			log.Error("webhook dedup release failed", zap.Error(ferr))
		}
		log.Error("webhook confirmation failed", zap.Error(err))
		return i.finish(ctx, provider, OutcomeFailed), err
	}
}

func (i *Ingester) finish(ctx context.Context, provider string, outcome Outcome) Outcome {
	i.metrics.RecordWebhook(ctx, provider, string(outcome))
	return outcome
}
