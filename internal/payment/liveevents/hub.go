// Package liveevents fans confirmed and voided payments out to the bursar
// dashboards connected for the same school.
package liveevents

import (
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const (
	TypePaymentConfirmed = "payment.confirmed"
	TypePaymentVoided    = "payment.voided"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

var (
	ErrHubUnavailable = errors.New("hub_unavailable")
	ErrInvalidSchool  = errors.New("invalid_school")
)

type Event struct {
	Type          string          `json:"type"`
	PaymentID     string          `json:"payment_id"`
	InvoiceID     string          `json:"invoice_id"`
	StudentID     string          `json:"student_id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"payment_method"`
	ReceiptNumber string          `json:"receipt_number,omitempty"`
	InvoiceStatus string          `json:"invoice_status"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Hub keeps a short replay buffer per school so a dashboard that reconnects
// sees the last few events.
type Hub struct {
	mu               sync.RWMutex
	streams          map[snowflake.ID]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub      *Hub
	schoolID snowflake.ID
	id       uint64
	ch       chan Event
	once     sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[snowflake.ID]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish never blocks. A subscriber whose channel is full misses the event.
func (h *Hub) Publish(schoolID snowflake.ID, event Event) {
	if h == nil || schoolID == 0 {
		return
	}
	st := h.ensureStream(schoolID)

	st.mu.Lock()
	st.buffer = append(st.buffer, event)
	if len(st.buffer) > h.bufferSize {
		st.buffer = st.buffer[len(st.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(st.subs))
	for _, ch := range st.subs {
		subs = append(subs, ch)
	}
	st.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a live subscription and a copy of the replay buffer.
func (h *Hub) Subscribe(schoolID snowflake.ID) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	if schoolID == 0 {
		return nil, nil, ErrInvalidSchool
	}

	st := h.ensureStream(schoolID)
	st.mu.Lock()
	id := st.nextID
	st.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	st.subs[id] = ch
	buffer := append([]Event(nil), st.buffer...)
	st.mu.Unlock()

	return &Subscription{hub: h, schoolID: schoolID, id: id, ch: ch}, buffer, nil
}

// Subscribers reports how many dashboards a school has connected.
func (h *Hub) Subscribers(schoolID snowflake.ID) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	st := h.streams[schoolID]
	h.mu.RUnlock()
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.subs)
}

func (h *Hub) ensureStream(schoolID snowflake.ID) *stream {
	h.mu.RLock()
	current := h.streams[schoolID]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[schoolID]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[schoolID] = current
	}
	return current
}

func (h *Hub) unsubscribe(schoolID snowflake.ID, id uint64) {
	h.mu.RLock()
	st := h.streams[schoolID]
	h.mu.RUnlock()
	if st == nil {
		return
	}

	st.mu.Lock()
	delete(st.subs, id)
	st.mu.Unlock()
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.schoolID, s.id)
	})
}
