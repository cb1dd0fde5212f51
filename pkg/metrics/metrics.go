package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Key constants are exported primarily for documentation reasons. Typically,
// they will not be used programmatically outside of defining the collectors.
const (
	FilesExaminedTotalKey      = "hardup_files_examined_total"
	FilesTotalKey              = "hardup_files_total"
	ComparisonsTotalKey        = "hardup_comparisons_total"
	ChecksumRejectionsTotalKey = "hardup_checksum_rejections_total"
	ReclaimedBytesTotalKey     = "hardup_reclaimed_bytes_total"
	SkippedTotalKey            = "hardup_skipped_total"
	RunDurationSecondsKey      = "hardup_run_duration_seconds"
)

// Values of the "action" label of FilesTotal.
const (
	ActionKept   = "kept"
	ActionKnown  = "known"
	ActionMerged = "merged"
	ActionLinked = "linked"
)

var (
	FilesExaminedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: FilesExaminedTotalKey,
		Help: "Cumulative number of regular files fed to the identity index.",
	})
	FilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: FilesTotalKey,
		Help: "Cumulative number of files by the action taken on them.",
	}, []string{"action"})
	ComparisonsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ComparisonsTotalKey,
		Help: "Cumulative number of full byte-for-byte comparisons.",
	})
	ChecksumRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ChecksumRejectionsTotalKey,
		Help: "Cumulative number of candidates ruled out by the checksum pre-filter.",
	})
	ReclaimedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: ReclaimedBytesTotalKey,
		Help: "Cumulative size of duplicate inodes merged into a canonical file.",
	})
	SkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: SkippedTotalKey,
		Help: "Cumulative number of paths skipped during discovery, by reason.",
	}, []string{"reason"})
	RunDurationSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: RunDurationSecondsKey,
		Help: "Wall time of the last deduplication run.",
	})
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		FilesExaminedTotal,
		FilesTotal,
		ComparisonsTotal,
		ChecksumRejectionsTotal,
		ReclaimedBytesTotal,
		SkippedTotal,
		RunDurationSeconds,
	}
}

// WriteTextfile writes all collectors in the node_exporter textfile format.
func WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(err, "failed to register collector")
		}
	}

	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return errors.Wrapf(err, "failed to write metrics to %s", path)
	}
	return nil
}
