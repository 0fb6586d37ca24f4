//go:build linux

package selector

import (
	"golang.org/x/sys/unix"

	"github.com/PizzaHomicide/playcore/internal/log"
)

func totalMemoryMB() (int, bool) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		log.Debug("Unable to read system memory", "error", err)
		return 0, false
	}
	total := uint64(info.Totalram) * uint64(info.Unit)
	return int(total / (1024 * 1024)), true
}
