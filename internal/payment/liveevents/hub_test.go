package liveevents

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishIsScopedToSchool(t *testing.T) {
	hub := NewHub()
	subA, _, err := hub.Subscribe(1)
	require.NoError(t, err)
	defer subA.Close()
	subB, _, err := hub.Subscribe(2)
	require.NoError(t, err)
	defer subB.Close()

	hub.Publish(1, Event{Type: TypePaymentConfirmed, PaymentID: "p1"})

	select {
	case ev := <-subA.Events():
		assert.Equal(t, "p1", ev.PaymentID)
	case <-time.After(time.Second):
		t.Fatal("school 1 did not receive its event")
	}
	select {
	case ev := <-subB.Events():
		t.Fatalf("school 2 received %v", ev)
	default:
	}
}

func TestSubscribeReplaysBuffer(t *testing.T) {
	hub := NewHub()
	for i := 0; i < DefaultBufferSize+5; i++ {
		hub.Publish(7, Event{Type: TypePaymentConfirmed})
	}
	sub, backlog, err := hub.Subscribe(7)
	require.NoError(t, err)
	defer sub.Close()
	assert.Len(t, backlog, DefaultBufferSize)
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe(3)
	require.NoError(t, err)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultSubscriberBuffer*3; i++ {
			hub.Publish(3, Event{Type: TypePaymentVoided})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
	assert.Len(t, sub.Events(), DefaultSubscriberBuffer)
}

func TestCloseRemovesSubscriber(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe(4)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers(4))
	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Subscribers(4))

	_, _, err = hub.Subscribe(0)
	assert.ErrorIs(t, err, ErrInvalidSchool)

	var nilHub *Hub
	nilHub.Publish(1, Event{})
	_, _, err = nilHub.Subscribe(1)
	assert.ErrorIs(t, err, ErrHubUnavailable)
}

func TestServeStreamsEvents(t *testing.T) {
	hub := NewHub()
	school := snowflake.ID(9)
	hub.Publish(school, Event{Type: TypePaymentConfirmed, PaymentID: "backlog"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Serve(hub, w, r, school, zap.NewNop())
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var first Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "backlog", first.PaymentID)

	require.Eventually(t, func() bool { return hub.Subscribers(school) == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(school, Event{Type: TypePaymentVoided, PaymentID: "live", Amount: decimal.NewFromInt(500)})

	var second Event
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, TypePaymentVoided, second.Type)
	assert.True(t, second.Amount.Equal(decimal.NewFromInt(500)))
}
