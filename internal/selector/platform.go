package selector

// Platform describes the device the player runs on
type Platform interface {
	// IsTV reports whether this is a TV class device
	IsTV() bool
	// MemoryMB returns total physical memory, and false when it cannot be determined
	MemoryMB() (int, bool)
}

// HostPlatform probes the machine we are running on.  The TV flag comes from configuration since there is no portable
// way to detect it.
type HostPlatform struct {
	TV bool
}

func (p HostPlatform) IsTV() bool {
	return p.TV
}

func (p HostPlatform) MemoryMB() (int, bool) {
	return totalMemoryMB()
}

// StaticPlatform is a fixed answer, mostly for tests and forced setups.  A zero Memory means unknown.
type StaticPlatform struct {
	TV     bool
	Memory int
}

func (p StaticPlatform) IsTV() bool {
	return p.TV
}

func (p StaticPlatform) MemoryMB() (int, bool) {
	return p.Memory, p.Memory > 0
}
