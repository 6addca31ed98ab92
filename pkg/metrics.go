package nxload

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics describes finished loads for a node exporter textfile collector.
// Each Metrics owns its registry so several can coexist.
type Metrics struct {
	Registry        *prometheus.Registry
	EventsLoaded    prometheus.Counter
	ElementsLoaded  prometheus.Gauge
	SourcesLoaded   prometheus.Counter
	SourcesRejected prometheus.Counter
	Diagnostics     *prometheus.CounterVec
	LoadDuration    prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EventsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nxload_events_loaded_total",
			Help: "Total number of events binned by detector element",
		}),
		ElementsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nxload_elements_loaded",
			Help: "Number of detector elements in the last load",
		}),
		SourcesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nxload_sources_loaded_total",
			Help: "Total number of event data groups loaded",
		}),
		SourcesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nxload_sources_rejected_total",
			Help: "Total number of event data groups rejected as malformed",
		}),
		Diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nxload_diagnostics_total",
			Help: "Total number of recoverable conditions found while loading",
		}, []string{"kind"}),
		LoadDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nxload_load_duration_seconds",
			Help: "Duration of the last load",
		}),
	}
	m.Registry.MustRegister(
		m.EventsLoaded,
		m.ElementsLoaded,
		m.SourcesLoaded,
		m.SourcesRejected,
		m.Diagnostics,
		m.LoadDuration,
	)
	return m
}

// Observe records one finished load.
func (m *Metrics) Observe(result *Result, diags Diagnostics, elapsed time.Duration) {
	m.SourcesRejected.Add(float64(len(diags.OfKind(MalformedSource))))
	for _, diag := range diags {
		m.Diagnostics.WithLabelValues(diag.Kind.String()).Inc()
	}
	m.ElementsLoaded.Set(0)
	if result != nil && result.Detector != nil {
		m.SourcesLoaded.Add(float64(len(result.Detector.Banks)))
		m.EventsLoaded.Add(float64(result.Detector.NumEvents()))
		m.ElementsLoaded.Set(float64(result.Detector.NumElements()))
	}
	m.LoadDuration.Set(elapsed.Seconds())
}

// WriteTextfile writes the metrics in the text exposition format.
func (m *Metrics) WriteTextfile(filename string) error {
	if err := prometheus.WriteToTextfile(filename, m.Registry); err != nil {
		return fmt.Errorf("error writing metrics to %q: %w", filename, err)
	}
	return nil
}
