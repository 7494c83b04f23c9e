package changefeed

import (
	"sync"

	"github.com/rs/zerolog"
)

// subscriptionBuffer is the per-subscriber queue depth. Events beyond it are
// dropped for that subscriber.
const subscriptionBuffer = 64

// Filter selects events for one table owned by one user. An empty UserID
// matches every user's rows in Table.
type Filter struct {
	Table  string
	UserID string
}

func (f Filter) topic() string { return f.Table + ":" + f.UserID }

// Publisher accepts events for fan-out.
type Publisher interface {
	Publish(ev Event)
}

// Source opens filtered subscriptions.
type Source interface {
	Subscribe(f Filter) *Subscription
}

// Broker fans events out to subscribers keyed by table and user.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	logger zerolog.Logger
}

func NewBroker(logger zerolog.Logger) *Broker {
	return &Broker{
		topics: make(map[string]map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscription. The caller must Close it.
func (b *Broker) Subscribe(f Filter) *Subscription {
	sub := &Subscription{
		events: make(chan Event, subscriptionBuffer),
		topic:  f.topic(),
		broker: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[sub.topic] == nil {
		b.topics[sub.topic] = make(map[*Subscription]struct{})
	}
	b.topics[sub.topic][sub] = struct{}{}
	return sub
}

// Publish delivers ev to every matching subscriber without blocking.
func (b *Broker) Publish(ev Event) {
	topics := []string{Filter{Table: ev.Table}.topic()}
	if uid := ev.UserID(); uid != "" {
		topics = append(topics, Filter{Table: ev.Table, UserID: uid}.topic())
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, topic := range topics {
		for sub := range b.topics[topic] {
			select {
			case sub.events <- ev:
			default:
				b.logger.Warn().Str("topic", topic).Str("event", string(ev.Type)).Msg("subscriber buffer full, event dropped")
			}
		}
	}
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[sub.topic]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	}
	close(sub.events)
}

// SubscriberCount reports subscribers for a filter.
func (b *Broker) SubscriberCount(f Filter) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[f.topic()])
}

// Subscription is one consumer's view of the feed.
type Subscription struct {
	events chan Event
	topic  string
	broker *Broker
	once   sync.Once
}

// Events is closed after Close.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.broker.remove(s) })
}
