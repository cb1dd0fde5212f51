package fileid

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Lstat returns the identity and metadata of path without following symlinks.
// This uses unix.Lstat directly instead of os.Lstat to keep the raw st_mode, uid and gid.
func Lstat(path string) (Stat, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return Stat{}, errors.Wrapf(err, "lstat %q", path)
	}

	return fromUnix(&st), nil
}

func fromUnix(st *unix.Stat_t) Stat {
	return Stat{
		Device:  uint64(st.Dev),
		Inode:   uint64(st.Ino),
		Size:    st.Size,
		Mode:    uint32(st.Mode),
		Uid:     st.Uid,
		Gid:     st.Gid,
		ModTime: time.Unix(st.Mtim.Unix()),
		Nlink:   uint64(st.Nlink),
	}
}
