package metrics

import (
    "net/http"
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // Allocations counts allocation attempts by mode (single, bulk) and outcome
    Allocations = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "allocations_total", Help: "Allocation attempts by mode and outcome."},
        []string{"mode", "outcome"},
    )
    // AllocationScore tracks the score of every successful assignment
    AllocationScore = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "allocation_score", Help: "Score of assigned driver/vehicle pairs.", Buckets: []float64{40, 50, 60, 70, 80, 85, 90, 95, 100}},
    )
    // FleetSuggestions counts advisor suggestions by type
    FleetSuggestions = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "fleet_suggestions_total", Help: "Fleet optimization suggestions emitted by type."},
        []string{"type"},
    )
    // WebhookDeliveries counts outbound webhook attempts by outcome (delivered, retry, dead_letter)
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Outbound webhook delivery attempts by outcome."},
        []string{"outcome"},
    )
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(Allocations)
        Registry.MustRegister(AllocationScore)
        Registry.MustRegister(FleetSuggestions)
        Registry.MustRegister(WebhookDeliveries)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
    RegisterDefault()
    return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// ObserveAllocation records one allocation outcome.
func ObserveAllocation(mode string, assigned bool, score float64) {
    outcome := "unassigned"
    if assigned {
        outcome = "assigned"
        AllocationScore.Observe(score)
    }
    Allocations.WithLabelValues(mode, outcome).Inc()
}
