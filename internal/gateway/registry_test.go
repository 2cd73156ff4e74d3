package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct{ provider string }

func (s stubGateway) Provider() string     { return s.provider }
func (s stubGateway) NewReference() string { return "REF" }
func (s stubGateway) Initialize(context.Context, InitializeRequest) (Session, error) {
	return Session{}, nil
}
func (s stubGateway) VerifyWebhook([]byte, http.Header) error { return nil }
func (s stubGateway) ParseWebhook([]byte) (*Event, error)    { return &Event{}, nil }

func TestRegistryResolvesCaseInsensitively(t *testing.T) {
	r := NewRegistry(stubGateway{provider: " Paystack "}, nil, stubGateway{provider: ""})

	gw, err := r.Get("PAYSTACK")
	require.NoError(t, err)
	assert.Equal(t, " Paystack ", gw.Provider())

	_, err = r.Default()
	assert.NoError(t, err)

	_, err = r.Get("flutterwave")
	assert.ErrorIs(t, err, ErrProviderNotFound)

	var nilRegistry *Registry
	_, err = nilRegistry.Get("paystack")
	assert.ErrorIs(t, err, ErrProviderNotFound)
}
