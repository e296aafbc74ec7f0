package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TenantSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbxadmin_tenant_syncs_total",
			Help: "Tenant configuration syncs by result",
		},
		[]string{"result"}, // "ok", "error"
	)

	TenantSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pbxadmin_tenant_sync_duration_seconds",
			Help:    "Time spent rendering and writing one tenant's configuration",
			Buckets: prometheus.DefBuckets,
		},
	)

	FilesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pbxadmin_config_files_written_total",
			Help: "Configuration files written under the FreeSWITCH root",
		},
	)

	FilesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pbxadmin_config_files_pruned_total",
			Help: "Stale per-extension directory files removed",
		},
	)

	Reloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbxadmin_freeswitch_reloads_total",
			Help: "FreeSWITCH reload attempts by outcome",
		},
		[]string{"status"}, // "ok", "skipped", "failed"
	)

	ReloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pbxadmin_freeswitch_reload_duration_seconds",
			Help:    "Wall time of a reload including every command variant tried",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	ReloadBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pbxadmin_freeswitch_reload_breaker_state",
			Help: "Reload circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	XMLCurlRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbxadmin_xml_curl_requests_total",
			Help: "mod_xml_curl lookups by section and result",
		},
		[]string{"section", "result"}, // result: "ok", "not_found", "error"
	)
)

// ObserveSync records the outcome of one tenant sync.
func ObserveSync(start time.Time, err error) {
	TenantSyncDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		TenantSyncs.WithLabelValues("error").Inc()
		return
	}
	TenantSyncs.WithLabelValues("ok").Inc()
}

// TenantCounter returns the number of configured tenants.
type TenantCounter interface {
	CountTenants(ctx context.Context) (int, error)
}

// Collector reports store-derived gauges at scrape time.
type Collector struct {
	tenants     TenantCounter
	startTime   time.Time
	tenantsDesc *prometheus.Desc
	uptimeDesc  *prometheus.Desc
}

// NewCollector creates a scrape-time collector. tenants may be nil.
func NewCollector(tenants TenantCounter, startTime time.Time) *Collector {
	return &Collector{
		tenants:   tenants,
		startTime: startTime,
		tenantsDesc: prometheus.NewDesc(
			"pbxadmin_tenants",
			"Number of tenants in the record store",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"pbxadmin_uptime_seconds",
			"Seconds since the process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tenantsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.tenants != nil {
		n, err := c.tenants.CountTenants(ctx)
		if err != nil {
			slog.Error("metrics: failed to count tenants", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(c.tenantsDesc, prometheus.GaugeValue, float64(n))
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue, time.Since(c.startTime).Seconds(),
	)
}
