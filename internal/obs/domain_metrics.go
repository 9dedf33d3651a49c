package obs

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DomainMetrics holds the invoicing counters exported on /metrics.
type DomainMetrics struct {
	Invoices       *prometheus.CounterVec
	Payments       *prometheus.CounterVec
	Quotes         prometheus.Counter
	DashboardCache *prometheus.CounterVec
	Jobs           *prometheus.CounterVec

	lineItems metric.Int64Histogram
}

var (
	domainMu sync.RWMutex
	domain   *DomainMetrics
)

// MustRegisterDomainMetrics creates the domain collectors on reg and makes
// them the target of the Record helpers. Calling it again with the same
// registry reuses the collectors already registered there.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &DomainMetrics{
		Invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_total",
			Help:      "Invoice mutations by action.",
		}, []string{"action"}),
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_recorded_total",
			Help:      "Payments recorded by payment mode.",
		}, []string{"mode"}),
		Quotes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_quotes_total",
			Help:      "Invoice totals computed without persisting.",
		}),
		DashboardCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_cache_total",
			Help:      "Dashboard cache lookups by result.",
		}, []string{"result"}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Background tasks processed by type and result.",
		}, []string{"type", "result"}),
	}
	m.Invoices = registerOrReuse(reg, m.Invoices)
	m.Payments = registerOrReuse(reg, m.Payments)
	m.Quotes = registerOrReuse(reg, m.Quotes)
	m.DashboardCache = registerOrReuse(reg, m.DashboardCache)
	m.Jobs = registerOrReuse(reg, m.Jobs)

	hist, err := otel.Meter("github.com/noah-isme/backend-invoice/internal/obs").Int64Histogram(
		"invoice.line_items",
		metric.WithDescription("Line items per computed invoice."),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100),
	)
	if err == nil {
		m.lineItems = hist
	}

	domainMu.Lock()
	domain = m
	domainMu.Unlock()
	return m
}

func currentDomain() *DomainMetrics {
	domainMu.RLock()
	defer domainMu.RUnlock()
	return domain
}

// RecordInvoice counts an invoice mutation such as "created" or "cancelled".
func RecordInvoice(action string) {
	if m := currentDomain(); m != nil {
		m.Invoices.WithLabelValues(action).Inc()
	}
}

// RecordPayment counts a recorded payment.
func RecordPayment(mode string) {
	if m := currentDomain(); m != nil {
		m.Payments.WithLabelValues(mode).Inc()
	}
}

// RecordQuote counts a computed quote.
func RecordQuote() {
	if m := currentDomain(); m != nil {
		m.Quotes.Inc()
	}
}

// RecordLineItems observes how many items went into one totals computation.
func RecordLineItems(ctx context.Context, source string, n int) {
	if m := currentDomain(); m != nil && m.lineItems != nil {
		m.lineItems.Record(ctx, int64(n), metric.WithAttributes(attribute.String("source", source)))
	}
}

// RecordDashboardCache counts a dashboard cache lookup: "hit", "miss" or "error".
func RecordDashboardCache(result string) {
	if m := currentDomain(); m != nil {
		m.DashboardCache.WithLabelValues(result).Inc()
	}
}

// RecordJob counts a processed background task.
func RecordJob(taskType, result string) {
	if m := currentDomain(); m != nil {
		m.Jobs.WithLabelValues(taskType, result).Inc()
	}
}
