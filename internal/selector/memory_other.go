//go:build !linux

package selector

// Memory is only probed on linux, elsewhere the requirement is assumed to be met
func totalMemoryMB() (int, bool) {
	return 0, false
}
