// Package player assembles playback sessions from configuration: it picks the controller type for a source and builds
// the matching in-process service or headless client.
package player

import (
	"github.com/PizzaHomicide/playcore/internal/config"
	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/headless"
	"github.com/PizzaHomicide/playcore/internal/log"
	"github.com/PizzaHomicide/playcore/internal/media"
	"github.com/PizzaHomicide/playcore/internal/mpv"
	"github.com/PizzaHomicide/playcore/internal/playback"
	"github.com/PizzaHomicide/playcore/internal/selector"
)

// Factory builds controllers and sessions
type Factory struct {
	cfg          *config.Config
	selector     *selector.Selector
	newElement   playback.ElementFactory
	newAdapter   playback.AdapterConstructor
	newTransport headless.TransportFactory
}

// Option configures a Factory
type Option func(*Factory)

// WithBackend replaces the in-process media element and adapter
func WithBackend(newElement playback.ElementFactory, newAdapter playback.AdapterConstructor) Option {
	return func(f *Factory) {
		f.newElement = newElement
		f.newAdapter = newAdapter
	}
}

// WithTransport replaces how the cross-thread client reaches the headless host
func WithTransport(newTransport headless.TransportFactory) Option {
	return func(f *Factory) {
		f.newTransport = newTransport
	}
}

// WithSelector replaces the selector derived from the configuration
func WithSelector(s *selector.Selector) Option {
	return func(f *Factory) {
		f.selector = s
	}
}

// NewFactory creates a factory for the given configuration
func NewFactory(cfg *config.Config, opts ...Option) *Factory {
	f := &Factory{
		cfg:          cfg,
		newTransport: headless.DialTransport(cfg.Headless.SocketPath),
	}

	switch cfg.Player.Backend {
	case "", "mpv":
	default:
		log.Warn("Unknown player backend, falling back to mpv", "backend", cfg.Player.Backend)
	}
	mpvCfg := mpv.Config{Path: cfg.Player.Path, Args: cfg.Player.Args}
	f.newElement = mpv.ElementFactory(mpvCfg)
	f.newAdapter = mpv.NewAdapter

	for _, opt := range opts {
		opt(f)
	}
	if f.selector == nil {
		f.selector = selector.New(SelectorConfig(cfg), selector.HostPlatform{TV: cfg.Selector.IsTV()})
	}
	return f
}

// SelectorConfig converts the selector section of the configuration
func SelectorConfig(cfg *config.Config) selector.Config {
	return selector.Config{
		ForceType:            playback.ControllerType(cfg.Selector.ForceType),
		EnableCrossThread:    cfg.Selector.CrossThreadEnabled(),
		MinMemoryMB:          cfg.Selector.MinMemoryMB,
		EnableForLiveStreams: cfg.Selector.LiveStreamsEnabled(),
		EnableForVOD:         cfg.Selector.VODEnabled(),
	}
}

// Selector returns the selector used to pick controller types
func (f *Factory) Selector() *selector.Selector {
	return f.selector
}

// NewService creates an in-process service.  It doubles as the headless host's per session service factory.
func (f *Factory) NewService() *playback.InProcessService {
	registry := events.NewRegistry(events.WithInterval(f.cfg.Player.ThrottleInterval()))
	return playback.NewInProcessService(f.newElement, f.newAdapter, playback.WithRegistry(registry))
}

// NewClient creates a cross-thread client talking to the headless host
func (f *Factory) NewClient() *headless.Client {
	return headless.NewClient(headless.ClientConfig{
		ServiceComponentID:  f.cfg.Headless.ServiceComponentID,
		EnableStatusUpdates: f.cfg.Headless.StatusUpdatesEnabled(),
		PositionInterval:    f.cfg.Headless.PositionInterval(),
	}, f.newTransport)
}

// ControllerFactory selects the controller type for src once.  Every controller the returned factory builds has that
// type, so a session keeps its player across resets.
func (f *Factory) ControllerFactory(src media.VideoSource) playback.ControllerFactory {
	rec := f.selector.GetRecommendation(src)
	log.Info("Selected player type", "type", string(rec.Type), "reason", rec.Reason, "uri", src.URI)

	if rec.Type == playback.CrossThread {
		return func() playback.Controller { return f.NewClient() }
	}
	return func() playback.Controller { return f.NewService() }
}

// NewSession creates a session for src with the selected controller mounted
func (f *Factory) NewSession(src media.VideoSource) *playback.Session {
	return playback.NewSession(f.ControllerFactory(src), playback.WithDeinitTimeout(f.cfg.Player.DeinitTimeout()))
}
