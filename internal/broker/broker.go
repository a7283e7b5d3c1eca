// SPDX-License-Identifier: Apache-2.0

// Package broker fans typed envelopes out to long-lived streaming
// subscriptions. Each subscription owns a bounded FIFO queue; a slow
// consumer is dropped like a normal disconnect instead of blocking the
// producer or buffering without bound.
package broker

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/patternloop/assistant-runtime/internal/metrics"
)

// Logical channels. Chat streams use a per-connection channel name so
// the same lifecycle and backpressure rules apply.
const (
	ChannelDashboard = "dashboard"
)

type EnvelopeType string

const (
	TypeChatChunk EnvelopeType = "chat_chunk"
	TypeChatDone  EnvelopeType = "chat_done"
	TypeRefresh   EnvelopeType = "refresh"
	TypePing      EnvelopeType = "ping"
	TypeError     EnvelopeType = "error"
)

// Envelope is the typed message frame delivered to subscribers.
type Envelope struct {
	Type    EnvelopeType   `json:"type"`
	Content string         `json:"content,omitempty"`
	TS      string         `json:"ts,omitempty"`
	Session string         `json:"session,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Subscription lifecycle: Connecting -> Open -> {Draining -> Closed | Closed}.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateDraining
	StateClosed
)

type Subscription struct {
	ID       uuid.UUID
	Channel  string
	Filter   string
	OpenedAt time.Time

	broker    *Broker
	queue     chan Envelope
	state     atomic.Int32
	closeOnce sync.Once

	// sendMu serializes enqueue against Close so the queue is never
	// written after it is closed.
	sendMu sync.Mutex
	closed bool
}

type Broker struct {
	mu         sync.RWMutex
	logger     *slog.Logger
	queueDepth int
	channels   map[string]map[*Subscription]struct{}
}

func New(queueDepth int, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &Broker{
		logger:     logger,
		queueDepth: queueDepth,
		channels:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a new live subscription on the channel. The
// returned subscription is Open; the caller drains C() and must call
// Close when the transport goes away.
func (b *Broker) Subscribe(channel, filter string) *Subscription {
	sub := &Subscription{
		ID:       uuid.New(),
		Channel:  channel,
		Filter:   filter,
		OpenedAt: time.Now().UTC(),
		broker:   b,
		queue:    make(chan Envelope, b.queueDepth),
	}
	sub.state.Store(int32(StateConnecting))

	b.mu.Lock()
	set, ok := b.channels[channel]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.channels[channel] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	sub.state.Store(int32(StateOpen))
	metrics.IncSubscriptions(channel)

	b.logger.Debug("subscription opened",
		"channel", channel,
		"subscription_id", sub.ID,
		"filter", filter,
	)

	return sub
}

// Broadcast delivers the envelope to every open subscription on the
// channel whose filter matches. Subscriptions that cannot keep up are
// dropped; the drop is a normal disconnect, never surfaced to others.
func (b *Broker) Broadcast(channel string, env Envelope) int {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.channels[channel]))
	for sub := range b.channels[channel] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if !sub.matches(env) {
			continue
		}
		switch sub.offer(env) {
		case offerDelivered:
			delivered++
		case offerOverflow:
			b.logger.Warn("dropping slow subscriber",
				"channel", channel,
				"subscription_id", sub.ID,
			)
			metrics.IncDroppedSubscriptions(channel)
			sub.Close()
		}
	}
	return delivered
}

// SubscriberCount reports the live subscriptions on a channel.
func (b *Broker) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.channels[sub.Channel]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.channels, sub.Channel)
		}
	}
}

func (s *Subscription) matches(env Envelope) bool {
	if s.Filter == "" || env.Session == "" {
		return true
	}
	return s.Filter == env.Session
}

type offerResult int

const (
	offerDelivered offerResult = iota
	offerSkipped
	offerOverflow
)

// offer enqueues without blocking. Draining and closed subscriptions
// silently skip: no application message may follow a drain.
func (s *Subscription) offer(env Envelope) offerResult {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed || State(s.state.Load()) != StateOpen {
		return offerSkipped
	}
	select {
	case s.queue <- env:
		return offerDelivered
	default:
		return offerOverflow
	}
}

// Send delivers one envelope to this subscription only (used by the
// point-to-point chat stream). It reports false when the subscription
// was dropped for overflow or is no longer open.
func (s *Subscription) Send(env Envelope) bool {
	switch s.offer(env) {
	case offerDelivered:
		return true
	case offerOverflow:
		metrics.IncDroppedSubscriptions(s.Channel)
		s.Close()
		return false
	default:
		return false
	}
}

// C is the subscription's FIFO delivery queue. It is closed when the
// subscription closes; buffered envelopes may still be read after a
// drain begins.
func (s *Subscription) C() <-chan Envelope {
	return s.queue
}

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	return State(s.state.Load())
}

// Drain stops application delivery while letting already-buffered
// envelopes flush to the reader.
func (s *Subscription) Drain() {
	s.state.CompareAndSwap(int32(StateOpen), int32(StateDraining))
}

// Close is terminal: it deregisters the subscription from its channel
// and closes the delivery queue. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.sendMu.Lock()
		s.closed = true
		s.state.Store(int32(StateClosed))
		s.sendMu.Unlock()

		s.broker.remove(s)
		metrics.DecSubscriptions(s.Channel)
		close(s.queue)
	})
}
