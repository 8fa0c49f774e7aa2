// Package webhooks pushes fleet events to external receivers (HR systems, ops dashboards)
// as signed HTTP POSTs with retry.
package webhooks

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// maxPending bounds the retry queue; events beyond it are dropped with a warning.
const maxPending = 1000

// Delivery is one event bound for one receiver.
type Delivery struct {
	ID        string
	URL       string
	EventType string
	Payload   []byte
	Attempts  int
	NextAt    time.Time
}

type Notifier struct {
	URLs        []string
	Secret      string
	MaxAttempts int
	Log         *logrus.Logger

	worker
	mu      sync.Mutex
	pending []Delivery
	now     func() time.Time
}

func NewNotifier(urls []string, secret string, maxAttempts int, log *logrus.Logger) *Notifier {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	n := &Notifier{URLs: urls, Secret: secret, MaxAttempts: maxAttempts, Log: log, now: time.Now}
	n.worker = newWorker()
	return n
}

// Emit queues eventType for every receiver. It never blocks on the network.
func (n *Notifier) Emit(eventType string, data map[string]any) {
	now := n.now()
	id := "evt_" + uuid.NewString()
	body, err := json.Marshal(map[string]any{
		"id":   id,
		"type": eventType,
		"ts":   now.UTC().Format(time.RFC3339),
		"data": data,
	})
	if err != nil {
		n.Log.WithError(err).WithField("type", eventType).Error("encode webhook payload")
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, url := range n.URLs {
		if len(n.pending) >= maxPending {
			n.Log.WithField("type", eventType).Warn("webhook queue full, dropping event")
			return
		}
		n.pending = append(n.pending, Delivery{ID: id, URL: url, EventType: eventType, Payload: body, NextAt: now})
	}
}

// Pending reports how many deliveries are waiting.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// takeDue removes and returns deliveries whose NextAt has passed.
func (n *Notifier) takeDue(now time.Time, limit int) []Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	var due []Delivery
	keep := n.pending[:0]
	for _, d := range n.pending {
		if len(due) < limit && !d.NextAt.After(now) {
			due = append(due, d)
			continue
		}
		keep = append(keep, d)
	}
	n.pending = keep
	return due
}

func (n *Notifier) requeue(d Delivery) {
	n.mu.Lock()
	n.pending = append(n.pending, d)
	n.mu.Unlock()
}
