// Package selector decides, once per source, whether playback runs in-process or on the headless host.
package selector

import (
	"fmt"
	"sync"

	"github.com/PizzaHomicide/playcore/internal/log"
	"github.com/PizzaHomicide/playcore/internal/media"
	"github.com/PizzaHomicide/playcore/internal/playback"
)

// CustomFunc overrides automatic selection entirely
type CustomFunc func(src media.VideoSource, cfg Config) playback.ControllerType

// Config drives selection.  The zero value disables cross-thread playback, use DefaultConfig.
type Config struct {
	// ForceType skips every other rule when set
	ForceType playback.ControllerType
	// Custom is consulted before the built-in rules when set
	Custom               CustomFunc
	EnableCrossThread    bool
	MinMemoryMB          int
	EnableForLiveStreams bool
	EnableForVOD         bool
}

// DefaultConfig routes live streams to the headless host and keeps VOD in-process
func DefaultConfig() Config {
	return Config{
		EnableCrossThread:    true,
		MinMemoryMB:          2048,
		EnableForLiveStreams: true,
		EnableForVOD:         false,
	}
}

// Recommendation is a selection plus a human readable explanation, for diagnostics
type Recommendation struct {
	Type   playback.ControllerType
	Reason string
}

// Selector picks a controller type for a source
type Selector struct {
	platform Platform

	mu  sync.RWMutex
	cfg Config
}

// New creates a selector for the given platform
func New(cfg Config, platform Platform) *Selector {
	log.Debug("Player selector initialized",
		"force_type", string(cfg.ForceType),
		"enable_cross_thread", cfg.EnableCrossThread,
		"enable_for_live", cfg.EnableForLiveStreams,
		"enable_for_vod", cfg.EnableForVOD)
	return &Selector{cfg: cfg, platform: platform}
}

// Select returns the controller type to use for src.  It is a pure function of the config, the platform and src.
func (s *Selector) Select(src media.VideoSource) playback.ControllerType {
	rec := s.recommend(src)
	log.Debug("Selected player type", "type", string(rec.Type), "reason", rec.Reason, "uri", src.URI)
	return rec.Type
}

// GetRecommendation explains the decision Select would make
func (s *Selector) GetRecommendation(src media.VideoSource) Recommendation {
	return s.recommend(src)
}

func (s *Selector) recommend(src media.VideoSource) Recommendation {
	cfg := s.Config()

	if cfg.ForceType != "" {
		return Recommendation{Type: cfg.ForceType, Reason: "Player type is forced in configuration"}
	}

	if cfg.Custom != nil {
		return Recommendation{Type: cfg.Custom(src, cfg), Reason: "Custom selector function was used"}
	}

	if !cfg.EnableCrossThread {
		return Recommendation{Type: playback.InProcess, Reason: "Cross-thread player is disabled in configuration"}
	}

	if missing := s.deviceShortfall(cfg); missing != "" {
		return Recommendation{Type: playback.InProcess, Reason: "Device does not meet requirements for cross-thread player" + missing}
	}

	content := Classify(src)
	if useCrossThread(cfg, content) {
		return Recommendation{Type: playback.CrossThread, Reason: fmt.Sprintf("Cross-thread player is recommended for %s content", content)}
	}
	return Recommendation{Type: playback.InProcess, Reason: fmt.Sprintf("In-process player is recommended for %s content", content)}
}

// IsCrossThreadAvailable reports whether automatic selection could ever pick the headless host
func (s *Selector) IsCrossThreadAvailable() bool {
	cfg := s.Config()
	return cfg.EnableCrossThread && s.deviceShortfall(cfg) == "" && cfg.ForceType == ""
}

// UpdateConfig applies fn to a copy of the current config and swaps it in
func (s *Selector) UpdateConfig(fn func(*Config)) {
	s.mu.Lock()
	cfg := s.cfg
	fn(&cfg)
	s.cfg = cfg
	s.mu.Unlock()

	log.Debug("Player selector config updated",
		"force_type", string(cfg.ForceType),
		"enable_cross_thread", cfg.EnableCrossThread,
		"enable_for_live", cfg.EnableForLiveStreams,
		"enable_for_vod", cfg.EnableForVOD)
}

// Config returns a copy of the current config
func (s *Selector) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// deviceShortfall describes what the device lacks for the cross-thread player, empty when it is capable
func (s *Selector) deviceShortfall(cfg Config) string {
	if !s.platform.IsTV() {
		log.Debug("Not a TV platform, cross-thread player not recommended")
		return ": not a TV platform"
	}
	if mem, ok := s.platform.MemoryMB(); ok && mem < cfg.MinMemoryMB {
		log.Debug("Insufficient memory for cross-thread player", "memory_mb", mem, "required_mb", cfg.MinMemoryMB)
		return fmt.Sprintf(": %d MB of memory, %d MB required", mem, cfg.MinMemoryMB)
	}
	return ""
}

func useCrossThread(cfg Config, content ContentType) bool {
	switch content {
	case ContentLive:
		return cfg.EnableForLiveStreams
	case ContentVOD:
		return cfg.EnableForVOD
	default:
		return false
	}
}

var (
	defaultMu       sync.Mutex
	defaultSelector *Selector
)

// Default returns the process wide selector, creating it with DefaultConfig on first use
func Default() *Selector {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultSelector == nil {
		defaultSelector = New(DefaultConfig(), HostPlatform{})
	}
	return defaultSelector
}

// ResetDefault drops the process wide selector so the next Default call builds a fresh one
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSelector = nil
}
