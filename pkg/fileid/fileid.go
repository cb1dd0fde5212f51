// Package fileid reads the inode metadata files are matched on.
package fileid

import (
	"time"
)

// File type bits of st_mode, fixed by POSIX.
const (
	modeTypeMask uint32 = 0o170000
	modeDir      uint32 = 0o040000
	modeRegular  uint32 = 0o100000
)

// Stat is the subset of lstat(2) metadata the deduplication engine relies on.
type Stat struct {
	Device  uint64
	Inode   uint64
	Size    int64
	Mode    uint32 // raw st_mode, file type and permission bits
	Uid     uint32
	Gid     uint32
	ModTime time.Time
	Nlink   uint64
}

func (s Stat) IsRegular() bool {
	return s.Mode&modeTypeMask == modeRegular
}

func (s Stat) IsDir() bool {
	return s.Mode&modeTypeMask == modeDir
}
