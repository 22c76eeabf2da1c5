//go:build linux || darwin || freebsd

package index

import (
	"time"

	"golang.org/x/sys/unix"
)

// platformStat fills the fields os.FileInfo does not carry portably.
// Failures leave the portable values in place.
func platformStat(absPath string, e *Entry) {
	var st unix.Stat_t
	if err := unix.Lstat(absPath, &st); err != nil {
		return
	}
	e.Dev = uint32(st.Dev)
	e.Ino = uint32(st.Ino)
	e.UID = st.Uid
	e.GID = st.Gid
	sec, nsec := st.Ctim.Unix()
	e.CTime = time.Unix(sec, nsec)
}
