// Package dedupe drives a deduplication run: it resolves the roots, walks them
// on the reference device and feeds every accepted regular file to the index.
package dedupe

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hardup/hardup/pkg/fileid"
	"github.com/hardup/hardup/pkg/index"
	"github.com/hardup/hardup/pkg/logger"
	"github.com/hardup/hardup/pkg/metrics"
	"github.com/hardup/hardup/pkg/paths"
)

const defaultBuffer = 256

// Observer is the part of the index a run feeds.
type Observer interface {
	Observe(path string, st fileid.Stat) (index.Outcome, error)
	Stats() index.Stats
}

// RootError is returned when a root cannot be examined at all.
type RootError struct {
	Root string
	Err  error
}

func (e *RootError) Error() string {
	return fmt.Sprintf("root %s: %v", e.Root, e.Err)
}

func (e *RootError) Unwrap() error {
	return e.Err
}

type Options struct {
	// Source walks directory roots, defaults to a sequential paths.Walker.
	Source paths.Source
	// Filter is applied to roots that are regular files.
	Filter *paths.Filter
	// Pipelined decouples the walk from the index through a buffered channel.
	Pipelined bool
	// Buffer is the channel capacity when Pipelined is set.
	Buffer int
}

type Summary struct {
	Roots        int
	SkippedRoots int
	Duration     time.Duration
	Stats        index.Stats
}

type Runner struct {
	index     Observer
	source    paths.Source
	filter    *paths.Filter
	pipelined bool
	buffer    int
	log       *logrus.Entry

	device     uint64
	haveDevice bool
	summary    Summary
}

func New(ix Observer, opts Options) *Runner {
	if opts.Source == nil {
		opts.Source = paths.NewWalker(opts.Filter)
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}

	return &Runner{
		index:     ix,
		source:    opts.Source,
		filter:    opts.Filter,
		pipelined: opts.Pipelined,
		buffer:    opts.Buffer,
		log:       logger.GetLogger("dedupe"),
	}
}

// Run processes roots in order. The first root fixes the reference device.
func (r *Runner) Run(ctx context.Context, roots []string) (Summary, error) {
	start := time.Now()

	var err error
	for _, root := range roots {
		if err = r.handleRoot(ctx, root); err != nil {
			break
		}
	}

	return r.finish(start), err
}

// RunStream reads roots from in, separated by delim, and processes each as it arrives.
func (r *Runner) RunStream(ctx context.Context, in io.Reader, delim byte) (Summary, error) {
	start := time.Now()

	err := paths.ScanRoots(in, delim, func(root string) error {
		return r.handleRoot(ctx, root)
	})

	return r.finish(start), err
}

func (r *Runner) finish(start time.Time) Summary {
	r.summary.Duration = time.Since(start)
	r.summary.Stats = r.index.Stats()
	metrics.RunDurationSeconds.Set(r.summary.Duration.Seconds())

	return r.summary
}

func (r *Runner) handleRoot(ctx context.Context, root string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	st, err := fileid.Lstat(root)
	if err != nil {
		return &RootError{Root: root, Err: err}
	}

	r.summary.Roots++
	if !r.haveDevice {
		r.device = st.Device
		r.haveDevice = true
	}
	if st.Device != r.device {
		r.log.Warnf("%s resides on another file system, ignoring", root)
		metrics.SkippedTotal.WithLabelValues(paths.SkipOtherDevice).Inc()
		r.summary.SkippedRoots++
		return nil
	}

	switch {
	case st.IsDir():
		r.log.Debugf("Walking %s", root)
		return r.walk(ctx, root)
	case st.IsRegular():
		if !r.filter.Accept(root, st) {
			r.summary.SkippedRoots++
			return nil
		}
		return r.observe(paths.Entry{Path: root, Stat: st})
	default:
		r.log.Warnf("%s is neither a directory nor a regular file, ignoring", root)
		metrics.SkippedTotal.WithLabelValues(paths.SkipNotRegular).Inc()
		r.summary.SkippedRoots++
		return nil
	}
}

func (r *Runner) walk(ctx context.Context, root string) error {
	if !r.pipelined {
		return r.source.Walk(ctx, root, r.device, r.observe)
	}

	g, gctx := errgroup.WithContext(ctx)
	entries := make(chan paths.Entry, r.buffer)

	g.Go(func() error {
		defer close(entries)
		return r.source.Walk(gctx, root, r.device, func(e paths.Entry) error {
			select {
			case entries <- e:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	g.Go(func() error {
		for e := range entries {
			if err := r.observe(e); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

func (r *Runner) observe(e paths.Entry) error {
	_, err := r.index.Observe(e.Path, e.Stat)
	return err
}
