package webhooks

import (
    "bytes"
    "context"
    "net/http"
    "strconv"
    "time"

    "github.com/sirupsen/logrus"

    "cabdispatch/internal/metrics"
)

type worker struct {
    HTTP *http.Client
    stop chan struct{}
    done chan struct{}
}

func newWorker() worker {
    return worker{HTTP: &http.Client{Timeout: 5 * time.Second}, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start polls the queue every second until Close.
func (n *Notifier) Start() {
    go func() {
        defer close(n.done)
        ticker := time.NewTicker(1 * time.Second)
        defer ticker.Stop()
        for {
            select {
            case <-n.stop:
                return
            case <-ticker.C:
                n.processOnce()
            }
        }
    }()
}

// Close stops the worker; undelivered events are dropped.
func (n *Notifier) Close() {
    close(n.stop)
    <-n.done
    if left := n.Pending(); left > 0 {
        n.Log.WithField("pending", left).Warn("webhook notifier closed with undelivered events")
    }
}

func (n *Notifier) processOnce() {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    for _, d := range n.takeDue(n.now(), 50) {
        code, err := n.deliver(ctx, d)
        if err == nil && code >= 200 && code < 300 {
            metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
            continue
        }
        d.Attempts++
        entry := n.Log.WithFields(logrus.Fields{"id": d.ID, "url": d.URL, "attempts": d.Attempts, "code": code})
        if err != nil { entry = entry.WithError(err) }
        if d.Attempts >= n.MaxAttempts {
            metrics.WebhookDeliveries.WithLabelValues("dead_letter").Inc()
            entry.Error("webhook delivery gave up")
            continue
        }
        metrics.WebhookDeliveries.WithLabelValues("retry").Inc()
        entry.Debug("webhook delivery failed, retrying")
        d.NextAt = n.now().Add(nextBackoff(d.Attempts - 1))
        n.requeue(d)
    }
}

func (n *Notifier) deliver(ctx context.Context, d Delivery) (int, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Payload))
    if err != nil { return 0, err }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Event-Type", d.EventType)
    req.Header.Set("X-Event-Id", d.ID)
    if n.Secret != "" {
        ts := n.now()
        req.Header.Set("X-Signature-Timestamp", strconv.FormatInt(ts.Unix(), 10))
        req.Header.Set("X-Signature", SignHMAC(n.Secret, ts, d.Payload))
    }
    resp, err := n.HTTP.Do(req)
    if err != nil { return 0, err }
    _ = resp.Body.Close()
    return resp.StatusCode, nil
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
