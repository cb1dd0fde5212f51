package paths

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/pkg/errors"
	"github.com/scylladb/go-set/u64set"
	"github.com/sirupsen/logrus"

	"github.com/hardup/hardup/pkg/fileid"
	"github.com/hardup/hardup/pkg/logger"
	"github.com/hardup/hardup/pkg/metrics"
)

/* Structs */

// Entry is a regular file discovered below a root.
type Entry struct {
	Path string
	Stat fileid.Stat
}

/* Types */

// WalkFunc receives every accepted regular file. Returning an error stops the walk.
type WalkFunc func(Entry) error

// Source discovers the regular files below root that live on device.
type Source interface {
	Walk(ctx context.Context, root string, device uint64, fn WalkFunc) error
}

// visited remembers the directory inodes already entered on the walked device,
// so overlapping roots and bind mounts are walked once.
type visited struct {
	mu     sync.Mutex
	inodes *u64set.Set
	log    *logrus.Entry
}

func newVisited(log *logrus.Entry) *visited {
	return &visited{inodes: u64set.New(), log: log}
}

// enter reports whether the directory has not been walked yet and marks it.
func (v *visited) enter(path string, inode uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.inodes.Has(inode) {
		v.log.Debugf("%s was already walked, ignoring", path)
		metrics.SkippedTotal.WithLabelValues(SkipVisited).Inc()
		return false
	}

	v.inodes.Add(inode)
	return true
}

func (v *visited) enterRoot(root string) (bool, error) {
	st, err := fileid.Lstat(root)
	if err != nil {
		return false, errors.Wrap(err, "failed to stat walk root")
	}

	return v.enter(root, st.Inode), nil
}

/* Sequential */

// Walker visits a tree depth first. Each directory is read completely and
// closed before its subdirectories are visited, files in name order.
// A Walker remembers the directories it entered across calls to Walk.
type Walker struct {
	filter  *Filter
	visited *visited
	log     *logrus.Entry
}

func NewWalker(filter *Filter) *Walker {
	log := logger.GetLogger("walker")
	return &Walker{
		filter:  filter,
		visited: newVisited(log),
		log:     log,
	}
}

func (w *Walker) Walk(ctx context.Context, root string, device uint64, fn WalkFunc) error {
	ok, err := w.visited.enterRoot(root)
	if err != nil || !ok {
		return err
	}

	return w.recurse(ctx, root, device, fn)
}

func (w *Walker) recurse(ctx context.Context, dir string, device uint64, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.log.WithError(err).Errorf("Failed to list directory %s", dir)
		metrics.SkippedTotal.WithLabelValues(SkipUnreadable).Inc()
		return nil
	}

	var subdirs []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		st, err := fileid.Lstat(path)
		if err != nil {
			w.log.WithError(err).Errorf("Failed to stat %s", path)
			metrics.SkippedTotal.WithLabelValues(SkipUnreadable).Inc()
			continue
		}

		if st.Device != device {
			w.log.Warnf("%s resides on another file system, ignoring", path)
			metrics.SkippedTotal.WithLabelValues(SkipOtherDevice).Inc()
			continue
		}

		switch {
		case st.IsDir():
			if w.filter.Excluded(path) {
				metrics.SkippedTotal.WithLabelValues(SkipExcluded).Inc()
				continue
			}
			if !w.visited.enter(path, st.Inode) {
				continue
			}
			subdirs = append(subdirs, path)
		case st.IsRegular():
			if !w.filter.Accept(path, st) {
				continue
			}
			if err := fn(Entry{Path: path, Stat: st}); err != nil {
				return err
			}
		default:
			w.log.Tracef("Skipping special file: %s", path)
			metrics.SkippedTotal.WithLabelValues(SkipNotRegular).Inc()
		}
	}

	for _, sub := range subdirs {
		if err := w.recurse(ctx, sub, device, fn); err != nil {
			return err
		}
	}

	return nil
}

/* Concurrent */

// FastWalker reads directories in parallel with fastwalk. fn is called from
// several goroutines at once and visiting order is not deterministic.
// Files are stat'ed before earlier names of the same inode are relinked, so
// their link count rarely drops to one and pending relink entries of the index
// stay until the run ends.
type FastWalker struct {
	filter  *Filter
	workers int
	visited *visited
	log     *logrus.Entry
}

// NewFastWalker creates a FastWalker; workers <= 0 uses the fastwalk default.
func NewFastWalker(filter *Filter, workers int) *FastWalker {
	log := logger.GetLogger("fastwalk")
	return &FastWalker{
		filter:  filter,
		workers: workers,
		visited: newVisited(log),
		log:     log,
	}
}

func (w *FastWalker) Walk(ctx context.Context, root string, device uint64, fn WalkFunc) error {
	ok, err := w.visited.enterRoot(root)
	if err != nil || !ok {
		return err
	}

	conf := &fastwalk.Config{NumWorkers: w.workers}

	cleanRoot := filepath.Clean(root)
	return fastwalk.Walk(conf, root, func(path string, _ fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			w.log.WithError(err).Errorf("Failed to walk %s", path)
			metrics.SkippedTotal.WithLabelValues(SkipUnreadable).Inc()
			return nil
		}
		if filepath.Clean(path) == cleanRoot {
			return nil
		}

		st, err := fileid.Lstat(path)
		if err != nil {
			w.log.WithError(err).Errorf("Failed to stat %s", path)
			metrics.SkippedTotal.WithLabelValues(SkipUnreadable).Inc()
			return nil
		}

		if st.Device != device {
			w.log.Warnf("%s resides on another file system, ignoring", path)
			metrics.SkippedTotal.WithLabelValues(SkipOtherDevice).Inc()
			if st.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		switch {
		case st.IsDir():
			if w.filter.Excluded(path) {
				metrics.SkippedTotal.WithLabelValues(SkipExcluded).Inc()
				return fs.SkipDir
			}
			if !w.visited.enter(path, st.Inode) {
				return fs.SkipDir
			}
			return nil
		case st.IsRegular():
			if !w.filter.Accept(path, st) {
				return nil
			}
			return fn(Entry{Path: path, Stat: st})
		default:
			w.log.Tracef("Skipping special file: %s", path)
			metrics.SkippedTotal.WithLabelValues(SkipNotRegular).Inc()
			return nil
		}
	})
}
