// Package notify fans committed match changes out to subscribers. The Hub is
// process-local; RedisBridge relays events between instances.
package notify

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Liunai/pallavolo/internal/models"
)

type EventType string

const (
	// EventMatchSnapshot is the first frame of a change feed.
	EventMatchSnapshot EventType = "match_snapshot"
	EventMatchCreated  EventType = "match_created"
	EventMatchUpdated  EventType = "match_updated"
	EventMatchClosed   EventType = "match_closed"
	EventMatchDeleted  EventType = "match_deleted"
)

// MatchEvent carries the full current match document, never a diff.
type MatchEvent struct {
	Type    EventType     `json:"type"`
	MatchID string        `json:"matchId"`
	Match   *models.Match `json:"match,omitempty"`
}

// Terminal reports whether no further events follow for the match.
func (e MatchEvent) Terminal() bool {
	return e.Type == EventMatchClosed || e.Type == EventMatchDeleted
}

// Publisher is implemented by Hub and RedisBridge.
type Publisher interface {
	Publish(ctx context.Context, ev MatchEvent)
}

// subscriberBuffer bounds how far a slow websocket may fall behind before
// events are dropped for it.
const subscriberBuffer = 16

type Subscription struct {
	hub     *Hub
	matchID string
	ch      chan MatchEvent
	once    sync.Once
}

// Events yields events for the subscribed match. The channel is closed by Close.
func (s *Subscription) Events() <-chan MatchEvent {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers for events of one match. An empty matchID receives
// every match's events.
func (h *Hub) Subscribe(matchID string) *Subscription {
	sub := &Subscription{hub: h, matchID: matchID, ch: make(chan MatchEvent, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[matchID] == nil {
		h.subs[matchID] = make(map[*Subscription]struct{})
	}
	h.subs[matchID][sub] = struct{}{}
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sub.matchID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.matchID)
		}
	}
	close(sub.ch)
}

// Publish delivers ev to local subscribers without blocking. A subscriber
// whose buffer is full loses its oldest queued event instead of ev, so the
// newest match document and the final close or delete always get through.
func (h *Hub) Publish(ctx context.Context, ev MatchEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, key := range []string{ev.MatchID, ""} {
		for sub := range h.subs[key] {
			if dropped := sub.offer(ev); dropped > 0 {
				h.logger.WithFields(logrus.Fields{
					"match":   ev.MatchID,
					"event":   ev.Type,
					"dropped": dropped,
				}).Warn("slow subscriber, dropped stale match events")
			}
		}
	}
}

// offer enqueues ev, evicting the oldest buffered events while the buffer is
// full. It returns how many events were evicted.
func (s *Subscription) offer(ev MatchEvent) int {
	dropped := 0
	for {
		select {
		case s.ch <- ev:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			dropped++
		default:
		}
	}
}

// SubscriberCount returns the number of open subscriptions for matchID.
func (h *Hub) SubscriberCount(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[matchID])
}
