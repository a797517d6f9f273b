/*package metrics contains the Prometheus collectors updated while impact
loads runs and renders plots. They live on their own registry, which can be
dumped to a node_exporter textfile with WriteTextfile.*/
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Kinds of file, used as the "kind" label.
const (
	StepLog    = "step_log"
	PhaseSpace = "phase_space"
	EndSlice   = "end_slice"
)

var (
	Registry = prometheus.NewRegistry()

	FilesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "impact_files_read_total",
			Help: "Total number of Impact-T output files read",
		},
		[]string{"kind"},
	)

	FilesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "impact_files_skipped_total",
			Help: "Total number of optional BPM files which were missing",
		},
		[]string{"kind"},
	)

	RecordsLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "impact_records_loaded_total",
			Help: "Total number of rows and records loaded",
		},
		[]string{"kind"},
	)

	MalformedFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "impact_malformed_files_total",
			Help: "Total number of files where reading stopped before EOF",
		},
		[]string{"kind"},
	)

	LoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "impact_load_duration_seconds",
		Help:    "Histogram of the time taken to load a run directory",
		Buckets: prometheus.DefBuckets,
	})

	PlotsRendered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "impact_plots_rendered_total",
			Help: "Total number of plot files written",
		},
		[]string{"plot", "format"},
	)
)

func init() {
	Registry.MustRegister(FilesRead, FilesSkipped, RecordsLoaded)
	Registry.MustRegister(MalformedFiles, LoadDuration, PlotsRendered)
}

// ObserveFile updates the collectors after a file of the given kind has been
// read.
func ObserveFile(kind string, records int, malformed bool) {
	FilesRead.WithLabelValues(kind).Inc()
	RecordsLoaded.WithLabelValues(kind).Add(float64(records))
	if malformed {
		MalformedFiles.WithLabelValues(kind).Inc()
	}
}

// ObserveSkip updates the collectors after an optional file was missing.
func ObserveSkip(kind string) {
	FilesSkipped.WithLabelValues(kind).Inc()
}

// ObserveLoad records how long a load took.
func ObserveLoad(start time.Time) {
	LoadDuration.Observe(time.Since(start).Seconds())
}

// ObservePlot updates the collectors after a plot has been written.
func ObservePlot(plot, format string) {
	PlotsRendered.WithLabelValues(plot, format).Inc()
}

// WriteTextfile writes every collector to path in the Prometheus text format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
