// Package index implements the identity index that decides, file by file,
// whether a newly discovered path is already retained, a sibling of an inode
// that was merged earlier, or a duplicate of a retained file.
//
// The first file discovered with a given content identity becomes canonical.
// Callers that care which physical copy survives must control traversal order.
package index

import (
	"bytes"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/hardup/hardup/pkg/fileid"
	"github.com/hardup/hardup/pkg/logger"
	"github.com/hardup/hardup/pkg/metrics"
	"github.com/hardup/hardup/pkg/record"
)

type Action int

const (
	// Kept means the path is (a link to) a retained canonical file.
	Kept Action = iota + 1
	// Merged means the path was another link to an already merged inode and
	// was relinked to that inode's canonical file without comparison.
	Merged
	// LinkedToCanonical means the path was found equal to a canonical file and relinked.
	LinkedToCanonical
)

func (a Action) String() string {
	switch a {
	case Kept:
		return "kept"
	case Merged:
		return "merged"
	case LinkedToCanonical:
		return "linked"
	default:
		return "unknown"
	}
}

// Outcome is the decision taken for one observed path.
type Outcome struct {
	Action Action
	Path   string
	Size   int64
	// Target is the canonical record the path belongs to after this step.
	Target *record.FileRecord
	// Known is set when the inode was already canonical, no record was created.
	Known bool
}

// Linker replaces duplicate with a hardlink to canonical.
type Linker interface {
	ReplaceWithLink(canonical, duplicate string) error
}

// Comparator decides byte-for-byte equality of two content sources.
type Comparator interface {
	Equal(a, b record.Comparable) (bool, error)
}

type ComparatorFunc func(a, b record.Comparable) (bool, error)

func (f ComparatorFunc) Equal(a, b record.Comparable) (bool, error) {
	return f(a, b)
}

type Options struct {
	IgnoreMtime  bool
	UseChecksum  bool
	SimulateOnly bool

	// Hasher defaults to record.Adler32.
	Hasher record.Hasher
	// Fs is where records are opened for comparison, defaults to the OS filesystem.
	Fs afero.Fs
	// Comparator defaults to record.Equal.
	Comparator Comparator
	// Linker is required unless SimulateOnly is set.
	Linker Linker
}

type Stats struct {
	Examined           uint64
	Kept               uint64
	Known              uint64
	Merged             uint64
	Linked             uint64
	Comparisons        uint64
	ChecksumRejections uint64
	ReclaimedBytes     uint64
}

type Index struct {
	opts Options
	log  *logrus.Entry

	mu sync.Mutex
	// kept is the canonical set: inode -> retained record
	kept map[uint64]*record.FileRecord
	// toLink maps a merged, still multiply linked inode to its canonical inode
	toLink map[uint64]uint64
	// sizes lists canonical inodes per size, in promotion order
	sizes map[int64][]uint64
	stats Stats
}

func New(opts Options) *Index {
	if opts.Hasher == nil {
		opts.Hasher = record.Adler32
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Comparator == nil {
		opts.Comparator = ComparatorFunc(record.Equal)
	}

	return &Index{
		opts:   opts,
		log:    logger.GetLogger("index"),
		kept:   make(map[uint64]*record.FileRecord),
		toLink: make(map[uint64]uint64),
		sizes:  make(map[int64][]uint64),
	}
}

// Observe feeds one regular file into the index. Lookup, comparison, linking
// and insertion happen under one lock, so concurrent callers see each file
// processed atomically. The only errors returned come from the Linker and
// are fatal to the run.
func (x *Index) Observe(path string, st fileid.Stat) (Outcome, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.stats.Examined++
	metrics.FilesExaminedTotal.Inc()
	x.log.Debugf("Examining %q", path)

	if canonical, ok := x.kept[st.Inode]; ok {
		x.log.Debugf("Another link to inode %d that we keep", st.Inode)
		x.stats.Known++
		metrics.FilesTotal.WithLabelValues(metrics.ActionKnown).Inc()
		return Outcome{Action: Kept, Path: path, Size: st.Size, Target: canonical, Known: true}, nil
	}

	if target, ok := x.toLink[st.Inode]; ok {
		canonical := x.kept[target]
		x.log.Debugf("Another link to inode %d that we merge with %s", st.Inode, canonical)
		if err := x.link(canonical, path); err != nil {
			return Outcome{}, err
		}
		if st.Nlink == 1 {
			delete(x.toLink, st.Inode)
			x.released(st.Size)
		}

		x.stats.Merged++
		metrics.FilesTotal.WithLabelValues(metrics.ActionMerged).Inc()
		return Outcome{Action: Merged, Path: path, Size: st.Size, Target: canonical}, nil
	}

	f := record.New(x.opts.Fs, path, st)
	x.log.Debugf("%s is new to us", f)

	for _, ino := range x.sizes[st.Size] {
		candidate := x.kept[ino]
		if !x.matches(candidate, f) {
			continue
		}

		x.log.Infof("Linking %s to %q", candidate, path)
		if st.Nlink > 1 {
			x.toLink[st.Inode] = ino
		}
		if err := x.link(candidate, path); err != nil {
			return Outcome{}, err
		}

		if st.Nlink == 1 {
			x.released(st.Size)
		}

		x.stats.Linked++
		metrics.FilesTotal.WithLabelValues(metrics.ActionLinked).Inc()
		return Outcome{Action: LinkedToCanonical, Path: path, Size: st.Size, Target: candidate}, nil
	}

	x.log.Debugf("We keep %s", f)
	x.kept[st.Inode] = f
	x.sizes[st.Size] = append(x.sizes[st.Size], st.Inode)

	x.stats.Kept++
	metrics.FilesTotal.WithLabelValues(metrics.ActionKept).Inc()
	return Outcome{Action: Kept, Path: path, Size: st.Size, Target: f}, nil
}

// matches applies the candidate filters cheapest first.
func (x *Index) matches(candidate, f *record.FileRecord) bool {
	x.log.Tracef("Looking if it matches %s", candidate)

	cs, fs := candidate.Stat(), f.Stat()
	if cs.Mode != fs.Mode || cs.Uid != fs.Uid || cs.Gid != fs.Gid {
		return false
	}
	if !x.opts.IgnoreMtime && cs.ModTime.Unix() != fs.ModTime.Unix() {
		return false
	}

	if x.opts.UseChecksum {
		want, err := candidate.Checksum(x.opts.Hasher)
		if err != nil {
			x.log.WithError(err).Warnf("Failed checksumming %s, skipping candidate", candidate)
			return false
		}
		got, err := f.Checksum(x.opts.Hasher)
		if err != nil {
			x.log.WithError(err).Warnf("Failed checksumming %s, skipping candidate", f)
			return false
		}
		if !bytes.Equal(want, got) {
			x.stats.ChecksumRejections++
			metrics.ChecksumRejectionsTotal.Inc()
			return false
		}
	}

	x.stats.Comparisons++
	metrics.ComparisonsTotal.Inc()
	equal, err := x.opts.Comparator.Equal(candidate, f)
	if err != nil {
		x.log.WithError(err).Warnf("Failed comparing %s with %s, skipping candidate", candidate, f)
		return false
	}

	return equal
}

// released accounts for an inode whose last observed name was replaced.
// Inodes with names outside the walked roots are never counted.
func (x *Index) released(size int64) {
	x.stats.ReclaimedBytes += uint64(size)
	metrics.ReclaimedBytesTotal.Add(float64(size))
}

func (x *Index) link(canonical *record.FileRecord, path string) error {
	if x.opts.SimulateOnly {
		x.log.Infof("Simulate-only enabled, skipping link of %q", path)
		return nil
	}

	return x.opts.Linker.ReplaceWithLink(canonical.Path(), path)
}

func (x *Index) Stats() Stats {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.stats
}

// Canonical returns the retained record for an inode, if any.
func (x *Index) Canonical(inode uint64) (*record.FileRecord, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	r, ok := x.kept[inode]
	return r, ok
}

// Pending returns the canonical inode an unfinished merged inode is redirected to.
func (x *Index) Pending(inode uint64) (uint64, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	target, ok := x.toLink[inode]
	return target, ok
}
