// Package record holds the per-file state of a deduplication pass: the
// FileRecord observed at discovery time, the byte-for-byte comparator and
// the memoized checksum used as a comparison pre-filter.
package record

import (
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/hardup/hardup/pkg/fileid"
)

// Describable is implemented by anything that can be named in diagnostics.
type Describable interface {
	fmt.Stringer
}

// Comparable is a content source the comparator and checksum can read.
type Comparable interface {
	Describable
	Open() (io.ReadCloser, error)
}

// FileRecord is one regular file as observed when its inode was first seen.
// Path and Stat never change; the file is not re-stat'ed.
type FileRecord struct {
	path string
	stat fileid.Stat
	fs   afero.Fs

	// checksums memoized per hasher name
	sums map[string][]byte
}

func New(fs afero.Fs, path string, st fileid.Stat) *FileRecord {
	return &FileRecord{
		path: path,
		stat: st,
		fs:   fs,
	}
}

func (r *FileRecord) Path() string {
	return r.path
}

func (r *FileRecord) Stat() fileid.Stat {
	return r.stat
}

func (r *FileRecord) Inode() uint64 {
	return r.stat.Inode
}

func (r *FileRecord) Size() int64 {
	return r.stat.Size
}

func (r *FileRecord) Open() (io.ReadCloser, error) {
	return r.fs.Open(r.path)
}

func (r *FileRecord) String() string {
	return fmt.Sprintf("inode %d, represented by %s", r.stat.Inode, r.path)
}

// Checksum returns the checksum of the whole file, computing it on first use.
func (r *FileRecord) Checksum(h Hasher) ([]byte, error) {
	if sum, ok := r.sums[h.Name()]; ok {
		return sum, nil
	}

	sum, err := Sum(r, h)
	if err != nil {
		return nil, err
	}

	if r.sums == nil {
		r.sums = make(map[string][]byte, 1)
	}
	r.sums[h.Name()] = sum
	return sum, nil
}
