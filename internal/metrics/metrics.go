package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Program cache
	ProgramCompilations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpublas_program_compilations_total",
		Help: "The total number of device program builds by result",
	}, []string{"module", "entry_point", "result"})

	ProgramCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpublas_program_cache_hits_total",
		Help: "The total number of program lookups served from the cache",
	})

	// Selection and dispatch
	VariantSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpublas_variant_selections_total",
		Help: "Total number of calls dispatched per operation and variant",
	}, []string{"operation", "variant"})

	DispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpublas_dispatch_failures_total",
		Help: "Total number of failed calls per operation and error category",
	}, []string{"operation", "category"})

	LaunchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gpublas_launch_duration_ms",
		Help:    "Duration of device program execution in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 20), // 10us to ~5s
	}, []string{"entry_point"})

	// Device memory
	TransferredBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpublas_transferred_bytes_total",
		Help: "Bytes copied between host and device by direction",
	}, []string{"direction"})

	BufferCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpublas_buffer_cache_lookups_total",
		Help: "Device buffer cache lookups by result",
	}, []string{"result"})

	DeviceMemoryUsedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gpublas_device_memory_used_bytes",
		Help: "Device memory currently allocated in bytes",
	})
)

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
