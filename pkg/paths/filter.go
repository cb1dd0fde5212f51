package paths

import (
	"github.com/sirupsen/logrus"

	"github.com/hardup/hardup/pkg/expression"
	"github.com/hardup/hardup/pkg/fileid"
	"github.com/hardup/hardup/pkg/logger"
	"github.com/hardup/hardup/pkg/metrics"
	"github.com/hardup/hardup/pkg/regex"
)

// Reasons a discovered path is skipped, used as the metrics "reason" label.
const (
	SkipExcluded    = "excluded"
	SkipFiltered    = "filtered"
	SkipOtherDevice = "other_device"
	SkipUnreadable  = "unreadable"
	SkipNotRegular  = "not_regular"
	SkipVisited     = "already_walked"
)

// Filter decides which discovered paths reach the index. A nil Filter accepts everything.
type Filter struct {
	Exclude    []*regex.Pattern
	Expression *expression.CompiledExpression

	log *logrus.Entry
}

func NewFilter(exclude []*regex.Pattern, expr *expression.CompiledExpression) *Filter {
	return &Filter{
		Exclude:    exclude,
		Expression: expr,
		log:        logger.GetLogger("filter"),
	}
}

// Excluded reports whether path matches one of the exclude patterns.
// A pattern that cannot be evaluated excludes the path.
func (f *Filter) Excluded(path string) bool {
	if f == nil || len(f.Exclude) == 0 {
		return false
	}

	match, err := regex.CheckAny(path, f.Exclude)
	if err != nil {
		f.log.WithError(err).Warnf("Failed matching exclude patterns against %q, ignoring it", path)
		return true
	}
	if match {
		f.log.Tracef("Skipping excluded path: %s", path)
	}

	return match
}

// Accept reports whether a regular file should be examined.
func (f *Filter) Accept(path string, st fileid.Stat) bool {
	if f == nil {
		return true
	}

	if f.Excluded(path) {
		metrics.SkippedTotal.WithLabelValues(SkipExcluded).Inc()
		return false
	}

	if f.Expression == nil {
		return true
	}

	match, err := expression.CheckFileMatch(expression.NewFile(path, st), f.Expression)
	if err != nil {
		f.log.WithError(err).Warnf("Failed evaluating filter against %q, ignoring it", path)
		metrics.SkippedTotal.WithLabelValues(SkipFiltered).Inc()
		return false
	}
	if !match {
		f.log.Tracef("Skipping filtered path: %s", path)
		metrics.SkippedTotal.WithLabelValues(SkipFiltered).Inc()
	}

	return match
}
