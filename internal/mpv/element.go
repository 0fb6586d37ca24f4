// Package mpv drives an mpv process over its JSON IPC and exposes it as a playback media element and adapter.
package mpv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PizzaHomicide/playcore/internal/events"
	"github.com/PizzaHomicide/playcore/internal/ipc"
	"github.com/PizzaHomicide/playcore/internal/log"
	"github.com/PizzaHomicide/playcore/internal/media"
	"github.com/PizzaHomicide/playcore/internal/playback"
)

// ErrNotRunning is returned for commands on an element that has no mpv attached
var ErrNotRunning = errors.New("mpv is not running")

const (
	// commandTimeout bounds commands issued without a caller context
	commandTimeout  = 5 * time.Second
	connectAttempts = 20
	connectDelay    = 100 * time.Millisecond
	eventQueueSize  = 256
)

// Config describes how mpv is started
type Config struct {
	// Path to the mpv binary, "mpv" when empty
	Path string
	// Args are extra command line arguments, split with ParseArgs
	Args string
	// SocketPath overrides the per instance IPC address
	SocketPath string
}

// Element is a playback.MediaElement backed by one mpv process started with --idle.  Property changes are turned into
// the normalized event vocabulary and delivered on their own goroutine.
type Element struct {
	*events.Dispatcher

	cfg Config

	// start launches mpv and returns a connection to its IPC socket
	start func(ctx context.Context) (net.Conn, error)

	mu         sync.Mutex
	conn       *ipc.Conn
	cmd        *exec.Cmd
	exited     chan struct{}
	socketPath string
	state      *playerState
	autoplay   bool
	queue      chan events.Event

	// pendingSubs are external subtitles requested before a file was loaded.  mpv attaches them to the current file,
	// so they are added once file-loaded arrives.
	pendingSubs []media.TextTrack
}

// addSubtitles is queued ahead of the file-loaded events and handled by the delivery goroutine, never emitted
const addSubtitles events.Type = "mpv-add-subtitles"

// NewElement creates an element that starts mpv on Initialize
func NewElement(cfg Config) *Element {
	e := &Element{
		Dispatcher: events.NewDispatcher(),
		cfg:        cfg,
		state:      newPlayerState(),
	}
	e.start = e.launch
	return e
}

// ElementFactory returns a playback.ElementFactory producing fresh mpv elements
func ElementFactory(cfg Config) playback.ElementFactory {
	return func() playback.MediaElement {
		return NewElement(cfg)
	}
}

// Initialize starts mpv, connects to it and subscribes to the properties the element mirrors
func (e *Element) Initialize(ctx context.Context) error {
	raw, err := e.start(ctx)
	if err != nil {
		// Kill whatever was started without waiting for it
		killCtx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = e.stopProcess(killCtx)
		return err
	}

	queue := make(chan events.Event, eventQueueSize)
	conn := ipc.NewConn(raw, e.onFrame)

	e.mu.Lock()
	e.conn = conn
	e.state = newPlayerState()
	e.queue = queue
	e.pendingSubs = nil
	e.mu.Unlock()

	go e.deliver(conn, queue)

	for i, name := range observedProperties {
		if _, err := e.command(ctx, "observe_property", i+1, name); err != nil {
			_ = e.Deinitialize(ctx)
			return fmt.Errorf("observing %s: %w", name, err)
		}
	}

	log.Debug("mpv element initialized", "socket_path", e.socketPath)
	return nil
}

func (e *Element) launch(ctx context.Context) (net.Conn, error) {
	path := e.cfg.Path
	if path == "" {
		path = "mpv"
	}

	socketPath := e.cfg.SocketPath
	if socketPath == "" {
		socketPath = ipc.SocketPath("playcore-mpv-" + uuid.NewString() + ".sock")
	}

	args := []string{
		"--idle=yes",
		"--no-terminal",
		"--keep-open=no",
		"--force-window=yes",
		"--input-ipc-server=" + socketPath,
	}
	if e.cfg.Args != "" {
		args = append(args, ParseArgs(e.cfg.Args)...)
	}

	log.Info("Starting mpv", "path", path, "socket_path", socketPath)

	// The process outlives the initialize call, so it is not bound to ctx
	cmd := exec.Command(path, args...)
	setupPlayerProcess(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mpv: %w", err)
	}

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		log.Debug("mpv process exited", "error", err)
		close(exited)
	}()

	e.mu.Lock()
	e.cmd = cmd
	e.exited = exited
	e.socketPath = socketPath
	e.mu.Unlock()

	conn, err := ipc.DialRetry(ctx, socketPath, connectAttempts, connectDelay)
	if err != nil {
		return nil, fmt.Errorf("connecting to mpv: %w", err)
	}
	return conn, nil
}

// Deinitialize asks mpv to quit and waits for it, killing it if ctx ends first
func (e *Element) Deinitialize(ctx context.Context) error {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()

	if conn != nil {
		if err := conn.Send(command{Command: []any{"quit"}}); err != nil {
			log.Debug("Failed to send quit to mpv", "error", err)
		}
		_ = conn.Close()
	}

	return e.stopProcess(ctx)
}

// DeinitializeSync is Deinitialize bounded by timeout
func (e *Element) DeinitializeSync(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return e.Deinitialize(ctx)
}

func (e *Element) stopProcess(ctx context.Context) error {
	e.mu.Lock()
	cmd, exited, socketPath := e.cmd, e.exited, e.socketPath
	e.cmd = nil
	e.exited = nil
	e.mu.Unlock()

	var err error
	if cmd != nil && cmd.Process != nil {
		select {
		case <-exited:
		case <-ctx.Done():
			log.Info("Stopping mpv")
			if killErr := cmd.Process.Kill(); killErr != nil {
				err = fmt.Errorf("killing mpv: %w", killErr)
			}
		}
	}

	// Remove socket file if it exists (Unix only)
	if socketPath != "" && runtime.GOOS != "windows" {
		if _, statErr := os.Stat(socketPath); statErr == nil {
			if rmErr := os.Remove(socketPath); rmErr != nil {
				log.Warn("Failed to remove mpv socket file", "path", socketPath, "error", rmErr)
			}
		}
	}
	return err
}

// SetSurfaceHandle embeds mpv's video output into the native window h
func (e *Element) SetSurfaceHandle(h playback.ViewHandle) error {
	wid, err := strconv.ParseInt(string(h), 0, 64)
	if err != nil {
		return fmt.Errorf("surface handle %q is not a window id: %w", h, err)
	}
	return e.setProperty("wid", wid)
}

func (e *Element) ClearSurfaceHandle(playback.ViewHandle) error {
	return e.setProperty("wid", -1)
}

// SetCaptionViewHandle turns subtitle rendering on.  mpv draws captions into the video surface, the handle itself is
// not used.
func (e *Element) SetCaptionViewHandle(playback.ViewHandle) error {
	return e.setProperty("sub-visibility", true)
}

func (e *Element) ClearCaptionViewHandle(playback.ViewHandle) error {
	return e.setProperty("sub-visibility", false)
}

func (e *Element) SetAutoplay(autoplay bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoplay = autoplay
}

func (e *Element) Autoplay() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoplay
}

func (e *Element) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.timePos
}

func (e *Element) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.duration
}

func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.paused
}

// snapshot returns a copy of the mirrored state
func (e *Element) snapshot() playerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := *e.state
	s.tracks = append([]Track(nil), e.state.tracks...)
	return s
}

type command struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id,omitempty"`
}

type reply struct {
	RequestID int64           `json:"request_id"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// command runs an mpv input command and returns its data
func (e *Element) command(ctx context.Context, args ...any) (json.RawMessage, error) {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return nil, ErrNotRunning
	}

	log.Trace("Sending mpv command", "command", args)
	raw, err := conn.Call(ctx, func(id int64) any {
		return command{Command: args, RequestID: id}
	})
	if err != nil {
		return nil, fmt.Errorf("mpv %v: %w", args[0], err)
	}

	var r reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decoding mpv reply: %w", err)
	}
	if r.Error != "" && r.Error != "success" {
		return nil, fmt.Errorf("mpv %v: %s", args[0], r.Error)
	}
	return r.Data, nil
}

func (e *Element) setProperty(name string, value any) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	_, err := e.command(ctx, "set_property", name, value)
	return err
}

// onFrame runs on the reader goroutine and must not issue commands
func (e *Element) onFrame(raw json.RawMessage) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
		log.Debug("Ignoring unexpected mpv frame", "frame", string(raw))
		return
	}

	e.mu.Lock()
	out := e.state.apply(f)
	if f.Event == "file-loaded" && len(e.pendingSubs) > 0 {
		out = append([]events.Event{{Type: addSubtitles, Data: e.pendingSubs}}, out...)
		e.pendingSubs = nil
	}
	queue, conn := e.queue, e.conn
	e.mu.Unlock()

	if queue == nil || conn == nil {
		return
	}
	for _, ev := range out {
		select {
		case queue <- ev:
		case <-conn.Done():
			return
		}
	}
}

func (e *Element) deliver(conn *ipc.Conn, queue chan events.Event) {
	for {
		select {
		case ev := <-queue:
			if ev.Type == addSubtitles {
				e.addPendingSubtitles(ev.Data.([]media.TextTrack))
				continue
			}
			log.Trace("mpv event", "event", string(ev.Type))
			e.Emit(ev)
		case <-conn.Done():
			return
		}
	}
}

// queueSubtitle holds track back until the next file-loaded.  It reports false when a file is already loaded or mpv
// is not running, in which case the caller should add the track directly.
func (e *Element) queueSubtitle(track media.TextTrack) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil || e.state.loaded {
		return false
	}
	e.pendingSubs = append(e.pendingSubs, track)
	return true
}

func (e *Element) addPendingSubtitles(tracks []media.TextTrack) {
	for _, track := range tracks {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		if err := e.subAdd(ctx, track); err != nil {
			log.Warn("Failed to add text track", "uri", track.URI, "error", err)
		}
		cancel()
	}
}

// subAdd loads an external subtitle file into the current file without selecting it
func (e *Element) subAdd(ctx context.Context, track media.TextTrack) error {
	title := track.Label
	if title == "" {
		title = track.Language
	}
	_, err := e.command(ctx, "sub-add", track.URI, "auto", title, track.Language)
	return err
}
