package session

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nerrad567/keygrid-core/internal/button"
	"github.com/nerrad567/keygrid-core/internal/devconfig"
	"github.com/nerrad567/keygrid-core/internal/driver"
	"github.com/nerrad567/keygrid-core/internal/module"
	"github.com/nerrad567/keygrid-core/internal/render"
)

// Default tuning values applied by New.
const (
	DefaultPollRate  = 100.0
	DefaultQueueSize = 64
)

// Logger defines the logging interface used by a Session.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// State is a session lifecycle state.
type State int32

const (
	StateBlank State = iota
	StateConnecting
	StateLive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateBlank:
		return "blank"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ConfigStore persists device configs. *devconfig.Store satisfies it.
type ConfigStore interface {
	Load(serial string) (*devconfig.DeviceConfig, error)
	Save(cfg *devconfig.DeviceConfig) error
}

// Sink receives every event a session produces and returns the names of
// the modules it was offered to.
type Sink interface {
	Emit(ctx context.Context, ev module.Event) []string
}

// RenderRecorder records render pass statistics. *influxdb.Client
// satisfies it.
type RenderRecorder interface {
	WriteRenderPass(serial string, keys, uploaded int, took time.Duration)
}

// Options configures a Session.
type Options struct {
	// Identifier is the discovered device. Serial and Layout are required.
	Identifier driver.Identifier

	// Configs loads and saves the device config. Required.
	Configs ConfigStore

	Sink    Sink
	Images  render.ImageSource
	Metrics RenderRecorder

	// PollRate is the input poll limit in Hz.
	PollRate float64

	// QueueSize bounds the command and event queues.
	QueueSize int

	Logger Logger
}

// Info is a point-in-time description of a session.
type Info struct {
	Serial      string        `json:"serial"`
	Driver      string        `json:"driver"`
	Description string        `json:"description"`
	VendorID    uint16        `json:"vendor_id"`
	ProductID   uint16        `json:"product_id"`
	State       string        `json:"state"`
	Layout      driver.Layout `json:"layout"`
	Brightness  uint8         `json:"brightness"`
	Depth       int           `json:"depth"`
}

// link is one attachment of a device. A reconnect gets a new link.
type link struct {
	dev      driver.Device
	commands chan Command
	dirty    chan struct{}
	events   chan module.Event
	cancel   context.CancelFunc
	done     chan struct{}
	finished chan struct{}
	doneOnce sync.Once

	// Owned by the command loop. shownOn records the panel each key was
	// last drawn from.
	shown   map[uint8]string
	shownOn map[uint8]*button.Panel
	cached  map[string]struct{}
	stale   map[string]struct{}
}

func (l *link) stop() {
	l.doneOnce.Do(func() {
		l.cancel()
		close(l.done)
	})
}

// Session manages one device. It implements module.DeviceHandle.
type Session struct {
	id       driver.Identifier
	configs  ConfigStore
	sink     Sink
	images   render.ImageSource
	metrics  RenderRecorder
	pollRate float64
	queue    int
	logger   Logger

	stack      *button.Stack
	brightness atomic.Uint32

	mu      sync.Mutex
	state   State
	loaded  bool
	retired bool
	link    *link
}

var _ module.DeviceHandle = (*Session)(nil)

// New returns a Blank session for opts.Identifier.
func New(opts Options) (*Session, error) {
	if opts.Identifier.Serial == "" {
		return nil, fmt.Errorf("%w: empty serial", ErrInvalidOptions)
	}
	if opts.Configs == nil {
		return nil, fmt.Errorf("%w: no config store", ErrInvalidOptions)
	}
	if opts.PollRate <= 0 {
		opts.PollRate = DefaultPollRate
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	s := &Session{
		id:       opts.Identifier,
		configs:  opts.Configs,
		sink:     opts.Sink,
		images:   opts.Images,
		metrics:  opts.Metrics,
		pollRate: opts.PollRate,
		queue:    opts.QueueSize,
		logger:   opts.Logger,
		stack:    button.NewStack(button.NewRawPanel("")),
	}
	s.brightness.Store(devconfig.DefaultBrightness)
	return s, nil
}

// Serial implements module.DeviceHandle.
func (s *Session) Serial() string { return s.id.Serial }

// Identifier returns the device identity the session was created for.
func (s *Session) Identifier() driver.Identifier { return s.id }

// Layout returns the device input layout.
func (s *Session) Layout() driver.Layout { return s.id.Layout }

// Stack implements module.DeviceHandle.
func (s *Session) Stack() *button.Stack { return s.stack }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Live reports whether a device is attached.
func (s *Session) Live() bool {
	return s.State() == StateLive
}

// Brightness returns the configured backlight percentage.
func (s *Session) Brightness() uint8 {
	return uint8(s.brightness.Load()) // #nosec G115 -- stored values are clamped to 100
}

// Info describes the session.
func (s *Session) Info() Info {
	return Info{
		Serial:      s.id.Serial,
		Driver:      s.id.Driver,
		Description: s.id.Description,
		VendorID:    s.id.VendorID,
		ProductID:   s.id.ProductID,
		State:       s.State().String(),
		Layout:      s.id.Layout,
		Brightness:  s.Brightness(),
		Depth:       s.stack.Depth(),
	}
}

// Attach takes ownership of a connected device and goes Live. The first
// attach loads the device config, seeding and saving a blank one when none
// exists. Later attaches keep the in-memory stack.
//
// On failure the device is closed and the session is Closed. A session
// that was closed with Close refuses dev with ErrClosed.
func (s *Session) Attach(dev driver.Device) error {
	s.mu.Lock()
	if s.retired {
		s.mu.Unlock()
		_ = dev.Close()
		return ErrClosed
	}
	if s.state == StateConnecting || s.state == StateLive {
		s.mu.Unlock()
		return ErrAlreadyAttached
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if err := s.prepare(dev); err != nil {
		_ = dev.Close()
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &link{
		dev:      dev,
		commands: make(chan Command, s.queue),
		dirty:    make(chan struct{}, 1),
		events:   make(chan module.Event, s.queue),
		cancel:   cancel,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		shown:    make(map[uint8]string),
		shownOn:  make(map[uint8]*button.Panel),
		cached:   make(map[string]struct{}),
		stale:    make(map[string]struct{}),
	}

	s.mu.Lock()
	if s.retired {
		s.state = StateClosed
		s.mu.Unlock()
		cancel()
		_ = dev.Close()
		return ErrClosed
	}
	s.state = StateLive
	s.link = l
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.pollLoop(gctx, l) })
	g.Go(func() error { return s.commandLoop(gctx, l) })
	g.Go(func() error { return s.dispatchLoop(gctx, l) })
	go func() {
		s.detach(l, g.Wait())
	}()

	s.logger.Info("device session live", "serial", s.id.Serial, "driver", s.id.Driver)
	s.emit(ctx, module.Event{Type: module.EventDeviceConnected})
	s.MarkDirty()
	return nil
}

func (s *Session) prepare(dev driver.Device) error {
	if err := s.ensureConfig(); err != nil {
		return err
	}
	if err := dev.Reset(); err != nil {
		return fmt.Errorf("resetting device: %w", err)
	}
	if err := dev.SetBrightness(s.Brightness()); err != nil {
		return fmt.Errorf("setting brightness: %w", err)
	}
	return nil
}

func (s *Session) ensureConfig() error {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded {
		return nil
	}

	cfg, err := s.configs.Load(s.id.Serial)
	switch {
	case errors.Is(err, devconfig.ErrNotFound):
		cfg = s.configFor(button.NewRawPanel(""))
		if err := s.configs.Save(cfg); err != nil {
			return fmt.Errorf("%w: seeding %s: %v", ErrConfig, s.id.Serial, err)
		}
		s.logger.Info("seeded device config", "serial", s.id.Serial)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	s.apply(cfg)

	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// detach ends l. It runs exactly once per link, after its loops return.
func (s *Session) detach(l *link, cause error) {
	l.stop()

	s.mu.Lock()
	if s.link == l {
		s.link = nil
		s.state = StateClosed
	}
	s.mu.Unlock()

	if err := l.dev.Close(); err != nil {
		s.logger.Warn("closing device", "serial", s.id.Serial, "error", err)
	}

	switch {
	case cause == nil:
		s.logger.Info("device session closed", "serial", s.id.Serial)
	case errors.Is(cause, driver.ErrLostConnection):
		s.logger.Warn("device connection lost", "serial", s.id.Serial)
	default:
		s.logger.Error("device session failed", "serial", s.id.Serial, "error", cause)
	}

	s.emit(context.Background(), module.Event{Type: module.EventDeviceDisconnected})
	close(l.finished)
}

// Close detaches the device and waits for the loops to stop, or for ctx.
// The session never attaches again, including an Attach already in flight.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.retired = true
	if s.state == StateBlank {
		s.state = StateClosed
	}
	l := s.link
	s.mu.Unlock()
	if l == nil {
		return nil
	}
	l.stop()
	select {
	case <-l.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) current() *link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

// Enqueue queues cmd for the command loop, blocking while the queue is full.
func (s *Session) Enqueue(ctx context.Context, cmd Command) error {
	l := s.current()
	if l == nil {
		return ErrNotLive
	}
	select {
	case l.commands <- cmd:
		return nil
	case <-l.done:
		return ErrNotLive
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MarkDirty implements module.DeviceHandle. Calls made before the pending
// redraw runs collapse into one.
func (s *Session) MarkDirty() {
	l := s.current()
	if l == nil {
		return
	}
	select {
	case l.dirty <- struct{}{}:
	default:
	}
}

// SetBrightness implements module.DeviceHandle. The value is kept for the
// next attach and the device config even while not Live.
func (s *Session) SetBrightness(percent uint8) {
	percent = clampPercent(percent)
	s.brightness.Store(uint32(percent))
	if err := s.Enqueue(context.Background(), Brightness(percent)); err != nil && !errors.Is(err, ErrNotLive) {
		s.logger.Warn("queueing brightness", "serial", s.id.Serial, "error", err)
	}
}

func (s *Session) pollLoop(ctx context.Context, l *link) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	limiter := rate.NewLimiter(rate.Limit(s.pollRate), 1)
	debounce := driver.NewDebouncer(s.id.Layout.KeyCount())

	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		events, err := l.dev.Poll()
		switch {
		case err == nil:
		case errors.Is(err, driver.ErrNoData):
			continue
		case errors.Is(err, driver.ErrLostConnection):
			return err
		default:
			return fmt.Errorf("%w: poll: %v", ErrDriver, err)
		}

		for _, ev := range debounce.Filter(events) {
			if !s.input(ctx, l, ev) {
				return nil
			}
		}
	}
}

// input queues the edge and, on release, the button action. It reports
// false once the link is stopping.
func (s *Session) input(ctx context.Context, l *link, ev driver.InputEvent) bool {
	typ := module.EventButtonUp
	if ev.Down {
		typ = module.EventButtonDown
	}
	if !s.queueEvent(ctx, l, module.Event{Type: typ, Key: module.KeyPtr(ev.Key)}) {
		return false
	}
	if ev.Down {
		return true
	}
	if act, ok := s.action(ev.Key, "device"); ok {
		return s.queueEvent(ctx, l, act)
	}
	return true
}

func (s *Session) queueEvent(ctx context.Context, l *link, ev module.Event) bool {
	select {
	case l.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-l.done:
		return false
	}
}

// action resolves key against the visible panel.
func (s *Session) action(key uint8, source string) (module.Event, bool) {
	top := s.stack.Top()
	u, ok := top.Button(key)
	if !ok {
		return module.Event{}, false
	}
	return module.Event{
		Type:   module.EventButtonAction,
		Key:    module.KeyPtr(key),
		Panel:  top.DisplayName(),
		Button: u.Snapshot(),
		Unique: u,
		Source: source,
	}, true
}

// Press activates key as if it had been released on the device. It
// returns false when the visible panel has no button there.
func (s *Session) Press(ctx context.Context, key uint8, source string) (bool, error) {
	if !s.id.Layout.ValidKey(key) {
		return false, fmt.Errorf("%w: %d", ErrKeyOutOfRange, key)
	}
	l := s.current()
	if l == nil {
		return false, ErrNotLive
	}
	ev, ok := s.action(key, source)
	if !ok {
		return false, nil
	}
	if !s.queueEvent(ctx, l, ev) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return false, ErrNotLive
	}
	return true, nil
}

func (s *Session) dispatchLoop(ctx context.Context, l *link) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-l.events:
			s.emit(ctx, ev)
		}
	}
}

// emit stamps ev with the session and hands it to the sink.
func (s *Session) emit(ctx context.Context, ev module.Event) []string {
	if s.sink == nil {
		return nil
	}
	ev.Serial = s.id.Serial
	ev.Device = s
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	return s.sink.Emit(ctx, ev)
}

func (s *Session) commandLoop(ctx context.Context, l *link) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		var err error
		select {
		case <-ctx.Done():
			return nil
		case <-l.dirty:
			err = s.renderAll(l)
		case cmd := <-l.commands:
			err = s.execute(l, cmd)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, driver.ErrLostConnection) {
			return err
		}
		s.logger.Warn("device command failed", "serial", s.id.Serial, "error", err)
	}
}

func (s *Session) execute(l *link, cmd Command) error {
	switch cmd.Kind {
	case CmdRedraw:
		return s.renderAll(l)
	case CmdRedrawKey:
		if !s.id.Layout.ValidKey(cmd.Key) {
			return fmt.Errorf("%w: %d", ErrKeyOutOfRange, cmd.Key)
		}
		if _, err := s.renderKey(l, s.stack.Top(), cmd.Key); err != nil {
			return err
		}
		return s.evictStale(l)
	case CmdClearKey:
		if err := l.dev.ClearKey(cmd.Key); err != nil {
			return err
		}
		delete(l.shown, cmd.Key)
		delete(l.shownOn, cmd.Key)
		return nil
	case CmdClear:
		if err := l.dev.Clear(); err != nil {
			return err
		}
		clear(l.shown)
		clear(l.shownOn)
		return nil
	case CmdSetBrightness:
		return l.dev.SetBrightness(cmd.Percent)
	default:
		return fmt.Errorf("unknown command %s", cmd.Kind)
	}
}
